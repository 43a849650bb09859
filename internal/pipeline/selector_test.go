package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centinela-labs/centinela/internal/model"
)

func sampleCandidates() []model.Candidate {
	return []model.Candidate{
		{
			ID:           0,
			Title:        "Robo en plaza comercial",
			Place:        strp("Plaza de Armas"),
			IncidentType: strp("robo_negocio"),
			Severity:     strp("media"),
		},
		{
			ID:           1,
			Title:        "Bloqueo en Constituyentes",
			Place:        strp("Constituyentes"),
			IncidentType: strp("bloqueo_vial"),
			Severity:     strp("alta"),
		},
	}
}

func TestSelectEmptyShortCircuits(t *testing.T) {
	selector := NewSelector(&scriptAsker{}, &mapGeocoder{})

	selection, selected, geocoded := selector.Select(context.Background(), nil)

	assert.Equal(t, model.UrgencyIrrelevant, selection.Urgency)
	assert.Nil(t, selected)
	assert.Nil(t, geocoded)
}

func TestSelectPicksRankedCandidate(t *testing.T) {
	asker := &scriptAsker{responses: map[string]string{
		markRouting: `{"selected_id": 1, "urgency": "critical", "justification": "bloqueo activo"}`,
	}}
	geocoder := &mapGeocoder{coords: map[string]*model.Coordinates{
		"Constituyentes": {Lat: 20.59, Lng: -100.39},
	}}
	selector := NewSelector(asker, geocoder)

	selection, selected, geocoded := selector.Select(context.Background(), sampleCandidates())

	assert.Equal(t, 1, selection.SelectedID)
	assert.Equal(t, model.UrgencyCritical, selection.Urgency)
	assert.Equal(t, "bloqueo activo", selection.Justification)
	require.NotNil(t, selected)
	assert.Equal(t, "Bloqueo en Constituyentes", selected.Title)

	require.Len(t, geocoded, 2)
	assert.Nil(t, geocoded[0].Coordinates)
	require.NotNil(t, geocoded[1].Coordinates)
	assert.Equal(t, 20.59, geocoded[1].Coordinates.Lat)
}

func TestSelectUnknownIDFallsBackToFirst(t *testing.T) {
	asker := &scriptAsker{responses: map[string]string{
		markRouting: `{"selected_id": 99, "urgency": "high", "justification": "x"}`,
	}}
	selector := NewSelector(asker, &mapGeocoder{})

	selection, selected, _ := selector.Select(context.Background(), sampleCandidates())

	require.NotNil(t, selected)
	assert.Equal(t, 0, selected.ID)
	assert.Equal(t, 0, selection.SelectedID)
	assert.Equal(t, model.UrgencyHigh, selection.Urgency)
}

func TestSelectUnusableRankingDefaultsToStandard(t *testing.T) {
	asker := &scriptAsker{failures: map[string]error{markRouting: eris.New("timeout")}}
	selector := NewSelector(asker, &mapGeocoder{})

	selection, selected, geocoded := selector.Select(context.Background(), sampleCandidates())

	require.NotNil(t, selected)
	assert.Equal(t, 0, selected.ID)
	assert.Equal(t, model.UrgencyStandard, selection.Urgency)
	assert.Len(t, geocoded, 2)
}

func TestSelectUnknownUrgencyMapsToStandard(t *testing.T) {
	asker := &scriptAsker{responses: map[string]string{
		markRouting: `{"selected_id": 0, "urgency": "urgentísimo", "justification": "x"}`,
	}}
	selector := NewSelector(asker, &mapGeocoder{})

	selection, _, _ := selector.Select(context.Background(), sampleCandidates())
	assert.Equal(t, model.UrgencyStandard, selection.Urgency)
}

func TestSelectGeocodedViewDefaults(t *testing.T) {
	asker := &scriptAsker{responses: map[string]string{
		markRouting: `{"selected_id": 0, "urgency": "low", "justification": "x"}`,
	}}
	selector := NewSelector(asker, &mapGeocoder{})

	candidates := []model.Candidate{{ID: 0, Title: "Sin datos", SourceURL: "https://n.mx/x"}}
	_, _, geocoded := selector.Select(context.Background(), candidates)

	require.Len(t, geocoded, 1)
	assert.Equal(t, "No especificado", geocoded[0].Place)
	assert.Empty(t, geocoded[0].Type)
	assert.Nil(t, geocoded[0].Coordinates)
}
