package store

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centinela-labs/centinela/internal/model"
)

func TestSignature(t *testing.T) {
	longTitle := strings.Repeat("a", 80)
	longPlace := strings.Repeat("b", 40)

	sig := Signature(longTitle, longPlace, "robo_casa")
	assert.Equal(t, strings.Repeat("a", 50)+"|"+strings.Repeat("b", 30)+"|robo_casa", sig)

	// Short values pass through untouched; matching is case-sensitive.
	assert.Equal(t, "Bloqueo|Centro|bloqueo_vial", Signature("Bloqueo", "Centro", "bloqueo_vial"))
	assert.NotEqual(t, Signature("bloqueo", "Centro", "x"), Signature("Bloqueo", "Centro", "x"))
}

func TestSignatureTruncatesByCharacter(t *testing.T) {
	// Multibyte text must not be cut mid-rune.
	title := strings.Repeat("ñ", 60)
	sig := Signature(title, "lugar", "otro")
	assert.Equal(t, strings.Repeat("ñ", 50)+"|lugar|otro", sig)
}

func TestSimilarityAsymmetric(t *testing.T) {
	newSet := map[string]struct{}{"a": {}, "b": {}}
	oldSet := map[string]struct{}{"a": {}, "b": {}, "c": {}, "d": {}}

	// Both new signatures are contained in the old set: fully similar
	// from the new record's perspective.
	assert.Equal(t, 1.0, similarity(newSet, oldSet))
	assert.Equal(t, 0.5, similarity(oldSet, newSet))
	assert.Equal(t, 0.0, similarity(map[string]struct{}{}, oldSet))
}

func TestMergeHistorySkipsDuplicateOfRecentEntry(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	first := testRecord(time.Now().UTC().Format(time.RFC3339), "robo en plaza", "choque en Constituyentes")
	appended, err := s.MergeHistory(first)
	require.NoError(t, err)
	require.True(t, appended)

	// Same incidents, new timestamp: a duplicate run.
	duplicate := testRecord(time.Now().UTC().Format(time.RFC3339), "robo en plaza", "choque en Constituyentes")
	appended, err = s.MergeHistory(duplicate)
	require.NoError(t, err)
	assert.False(t, appended)
	assert.Len(t, s.History(0), 1)
}

func TestMergeHistoryAppendsNovelRun(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.MergeHistory(testRecord(time.Now().UTC().Format(time.RFC3339), "incidente uno"))
	require.NoError(t, err)

	appended, err := s.MergeHistory(testRecord(time.Now().UTC().Format(time.RFC3339), "incidente dos"))
	require.NoError(t, err)
	assert.True(t, appended)
	assert.Len(t, s.History(0), 2)
}

func TestMergeHistoryOnlyChecksRecentEntries(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	old := testRecord(time.Now().UTC().Format(time.RFC3339), "incidente repetido")
	_, err = s.MergeHistory(old)
	require.NoError(t, err)

	// Push the matching entry past the comparison window.
	for i := 0; i < dedupRecentEntries; i++ {
		_, err = s.MergeHistory(testRecord(time.Now().UTC().Format(time.RFC3339), fmt.Sprintf("relleno %d", i)))
		require.NoError(t, err)
	}

	appended, err := s.MergeHistory(testRecord(time.Now().UTC().Format(time.RFC3339), "incidente repetido"))
	require.NoError(t, err)
	assert.True(t, appended, "entries beyond the recent window no longer block appends")
}

func TestMergeHistorySkipsEmptyRecords(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	appended, err := s.MergeHistory(nil)
	require.NoError(t, err)
	assert.False(t, appended)

	appended, err = s.MergeHistory(&model.PipelineRecord{Timestamp: "2026-01-05T10:00:00Z"})
	require.NoError(t, err)
	assert.False(t, appended)

	appended, err = s.MergeHistory(testRecord("", "sin timestamp"))
	require.NoError(t, err)
	assert.False(t, appended)
}

func TestMergeHistoryCapsEntries(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < historyCap+5; i++ {
		rec := testRecord(time.Now().UTC().Format(time.RFC3339), fmt.Sprintf("incidente %d", i))
		appended, err := s.MergeHistory(rec)
		require.NoError(t, err)
		require.True(t, appended)
	}

	history := s.History(0)
	assert.Len(t, history, historyCap)
	// Newest first, oldest evicted.
	assert.Equal(t, fmt.Sprintf("incidente %d", historyCap+4), history[0].Candidates[0].Title)
}

func TestTypeCounts(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := &model.PipelineRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Candidates: []model.GeocodedCandidate{
			{Title: "a", Type: "robo_casa"},
			{Title: "b", Type: "robo_casa"},
			{Title: "c", Type: "accidente_vial"},
			{Title: "d", Type: ""},
		},
	}
	_, err = s.MergeHistory(rec)
	require.NoError(t, err)

	counts := s.TypeCounts()
	assert.Equal(t, 2, counts["robo_casa"])
	assert.Equal(t, 1, counts["accidente_vial"])
	assert.Equal(t, 1, counts["desconocido"])
}

func TestHeatmapPoints(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := &model.PipelineRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Candidates: []model.GeocodedCandidate{
			{Title: "a", Severity: "alta", Coordinates: &model.Coordinates{Lat: 1, Lng: 2}},
			{Title: "b", Severity: "crítica", Coordinates: &model.Coordinates{Lat: 3, Lng: 4}},
			{Title: "c", Severity: "media", Coordinates: &model.Coordinates{Lat: 5, Lng: 6}},
			{Title: "d", Severity: "alta"}, // sin coordenadas
		},
	}
	_, err = s.MergeHistory(rec)
	require.NoError(t, err)

	points := s.HeatmapPoints()
	require.Len(t, points, 3)
	assert.Equal(t, 1.5, points[0].Intensity)
	assert.Equal(t, 2.0, points[1].Intensity)
	assert.Equal(t, 1.0, points[2].Intensity)
}
