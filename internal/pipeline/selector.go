package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/geo"
	"github.com/centinela-labs/centinela/internal/llm"
	"github.com/centinela-labs/centinela/internal/model"
)

const routingPrompt = `Analiza estos %d incidentes de seguridad y selecciona el más urgente o relevante,
priorizando aquellos que afectan vialidades o rutas de tránsito:

%s

CRITERIOS DE SELECCIÓN (por prioridad):
1. Incidentes que afecten directamente vialidades (bloqueos, accidentes)
2. Incidentes con impacto en la seguridad de conductores o transeúntes
3. Gravedad del incidente
4. Actualidad (fecha/hora reciente)

Determina:
1. El ID del incidente más urgente para vialidades (campo "id" de cada incidente)
2. El nivel de urgencia (critical, high, standard, low, irrelevant)
3. Justificación breve de tu selección

Responde en JSON con campos: "selected_id", "urgency", "justification"`

// promptCandidate is the content-stripped candidate view shown to the
// ranking prompt.
type promptCandidate struct {
	ID         int    `json:"id"`
	Title      string `json:"titulo"`
	Place      string `json:"lugar"`
	Date       string `json:"fecha"`
	Time       string `json:"hora"`
	Type       string `json:"tipo"`
	Severity   string `json:"gravedad"`
	Summary    string `json:"resumen"`
	RoadImpact string `json:"impacto_vial"`
}

// Selector ranks the run's candidates, picks the incident to refine, and
// geocodes the full candidate list for the map.
type Selector struct {
	asker    llm.Asker
	geocoder geo.Geocoder
}

// NewSelector wires a Selector.
func NewSelector(asker llm.Asker, geocoder geo.Geocoder) *Selector {
	return &Selector{asker: asker, geocoder: geocoder}
}

// Select never fails once candidates exist: a bad ranking reply falls
// back to the first candidate at standard urgency. An empty candidate
// list short-circuits to irrelevant with no selection.
func (s *Selector) Select(ctx context.Context, candidates []model.Candidate) (model.Selection, *model.Candidate, []model.GeocodedCandidate) {
	if len(candidates) == 0 {
		zap.L().Info("selector: no candidates, marking run irrelevant")
		return model.Selection{Urgency: model.UrgencyIrrelevant}, nil, nil
	}

	views := make([]promptCandidate, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, promptCandidate{
			ID:         c.ID,
			Title:      c.Title,
			Place:      derefOr(c.Place, "No especificado"),
			Date:       derefOr(c.IncidentDate, "No especificada"),
			Time:       derefOr(c.IncidentTime, "No especificada"),
			Type:       derefOr(c.IncidentType, "No especificado"),
			Severity:   derefOr(c.Severity, "No especificada"),
			Summary:    derefOr(c.Summary, "No disponible"),
			RoadImpact: derefOr(c.RoadImpact, "No especificado"),
		})
	}
	encoded, _ := json.Marshal(views)

	var decision struct {
		SelectedID    int    `json:"selected_id"`
		Urgency       string `json:"urgency"`
		Justification string `json:"justification"`
	}
	if err := s.asker.AskStructured(ctx, fmt.Sprintf(routingPrompt, len(views), encoded), 0.2, &decision); err != nil {
		zap.L().Warn("selector: ranking reply unusable, falling back to first candidate", zap.Error(err))
	}

	selected := findByID(candidates, decision.SelectedID)
	if selected == nil {
		zap.L().Warn("selector: selected id not found, using first candidate",
			zap.Int("selected_id", decision.SelectedID),
		)
		selected = &candidates[0]
	}

	selection := model.Selection{
		SelectedID:    selected.ID,
		Urgency:       model.ParseUrgency(decision.Urgency),
		Justification: decision.Justification,
	}

	geocoded := s.geocodeAll(ctx, candidates)

	zap.L().Info("selector: incident selected",
		zap.Int("selected_id", selection.SelectedID),
		zap.String("urgency", string(selection.Urgency)),
		zap.Int("geocoded_candidates", len(geocoded)),
	)
	return selection, selected, geocoded
}

func findByID(candidates []model.Candidate, id int) *model.Candidate {
	for i := range candidates {
		if candidates[i].ID == id {
			return &candidates[i]
		}
	}
	return nil
}

// geocodeAll resolves each candidate's place sequentially; the geocoder
// applies its own rate limit. Unresolvable places keep nil coordinates.
func (s *Selector) geocodeAll(ctx context.Context, candidates []model.Candidate) []model.GeocodedCandidate {
	geocoded := make([]model.GeocodedCandidate, 0, len(candidates))
	for _, c := range candidates {
		place := derefOr(c.Place, "No especificado")
		coords := s.geocoder.Geocode(ctx, place)

		geocoded = append(geocoded, model.GeocodedCandidate{
			Title:       c.Title,
			SourceURL:   c.SourceURL,
			Place:       place,
			Date:        deref(c.IncidentDate),
			Time:        deref(c.IncidentTime),
			Type:        deref(c.IncidentType),
			Severity:    deref(c.Severity),
			Summary:     deref(c.Summary),
			RoadImpact:  deref(c.RoadImpact),
			Coordinates: coords,
		})
	}
	return geocoded
}
