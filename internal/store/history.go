package store

import (
	"strings"

	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/model"
)

// dedup parameters: a new record is a duplicate when its candidate
// signatures overlap any of the last few history entries by more than
// the threshold.
const (
	dedupRecentEntries = 3
	dedupThreshold     = 0.8
)

// Signature builds the near-duplicate fingerprint of one incident:
// truncated title and place joined with the type. Truncation is a plain
// character cut, mid-word is expected; matching is case-sensitive.
func Signature(title, place, incidentType string) string {
	return truncate(title, 50) + "|" + truncate(place, 30) + "|" + incidentType
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// signatureSet builds the signature set over a record's candidate list.
func signatureSet(rec *model.PipelineRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(rec.Candidates))
	for _, c := range rec.Candidates {
		set[Signature(c.Title, c.Place, c.Type)] = struct{}{}
	}
	return set
}

// similarity is the fraction of the new record's signatures found in the
// old set. The denominator is always the new set's size: a new record
// whose incidents are all contained in a recent one counts as fully
// similar even when the old entry had more.
func similarity(newSet, oldSet map[string]struct{}) float64 {
	if len(newSet) == 0 {
		return 0
	}
	matched := 0
	for sig := range newSet {
		if _, ok := oldSet[sig]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(newSet))
}

// MergeHistory implements Store. Records without a timestamp or without
// candidates are never appended.
func (s *FileStore) MergeHistory(rec *model.PipelineRecord) (bool, error) {
	if rec == nil || rec.Timestamp == "" || len(rec.Candidates) == 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newSet := signatureSet(rec)
	for i, recent := range s.history {
		if i >= dedupRecentEntries {
			break
		}
		sim := similarity(newSet, signatureSet(&recent))
		if sim > dedupThreshold {
			zap.L().Info("store: run duplicates recent history, skipping append",
				zap.Float64("similarity", sim),
				zap.String("matched_entry", recent.Timestamp),
			)
			return false, nil
		}
	}

	updated := append([]model.PipelineRecord{*rec}, s.history...)
	if len(updated) > historyCap {
		updated = updated[:historyCap]
	}

	if err := s.writeJSON(historyFile, updated); err != nil {
		return false, err
	}
	s.history = updated

	zap.L().Info("store: run appended to history",
		zap.String("timestamp", rec.Timestamp),
		zap.Int("history_entries", len(updated)),
	)
	return true, nil
}

// TypeCounts aggregates incident-type counts across the whole history.
func (s *FileStore) TypeCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range s.history {
		for _, c := range rec.Candidates {
			t := c.Type
			if strings.TrimSpace(t) == "" {
				t = "desconocido"
			}
			counts[t]++
		}
	}
	return counts
}

// HeatmapPoints collects every geocoded incident across history with a
// severity-derived intensity.
func (s *FileStore) HeatmapPoints() []model.HeatmapPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []model.HeatmapPoint
	for _, rec := range s.history {
		for _, c := range rec.Candidates {
			if c.Coordinates == nil {
				continue
			}
			points = append(points, model.HeatmapPoint{
				Lat:       c.Coordinates.Lat,
				Lng:       c.Coordinates.Lng,
				Intensity: model.IntensityForSeverity(c.Severity),
			})
		}
	}
	return points
}
