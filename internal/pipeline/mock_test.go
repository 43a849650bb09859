package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/centinela-labs/centinela/internal/fetch"
	"github.com/centinela-labs/centinela/internal/llm"
	"github.com/centinela-labs/centinela/internal/model"
)

// scriptAsker replies to prompts by matching marker substrings, so each
// stage can be scripted independently.
type scriptAsker struct {
	responses map[string]string
	failures  map[string]error
	prompts   []string
}

// Stable prompt markers, one per stage.
const (
	markExtraction = "Analiza esta noticia policiaca"
	markRouting    = "selecciona el más urgente"
	markClassify   = "Clasifica este incidente"
	markPlace      = "Extrae el lugar exacto"
	markAnalytics  = "enfoque en su impacto vial"
	markEvaluate   = "Evalúa la confianza"
	markPredict    = "Genera predicciones"
	markRecommend  = "recomendaciones ESPECÍFICAS"
	markReport     = "Genera reportes para diferentes audiencias"
)

func (a *scriptAsker) AskText(ctx context.Context, prompt string, temperature float64) (string, error) {
	a.prompts = append(a.prompts, prompt)
	for marker, err := range a.failures {
		if strings.Contains(prompt, marker) {
			return "", err
		}
	}
	for marker, response := range a.responses {
		if strings.Contains(prompt, marker) {
			return response, nil
		}
	}
	return "", eris.Errorf("no scripted response for prompt: %.60s", prompt)
}

func (a *scriptAsker) AskStructured(ctx context.Context, prompt string, temperature float64, out any) error {
	text, err := a.AskText(ctx, prompt, temperature)
	if err != nil {
		return err
	}
	return llm.Unmarshal(text, out)
}

func (a *scriptAsker) promptCount(marker string) int {
	count := 0
	for _, p := range a.prompts {
		if strings.Contains(p, marker) {
			count++
		}
	}
	return count
}

// mapGeocoder resolves places from a fixed table; unknown places stay
// unresolved.
type mapGeocoder struct {
	coords map[string]*model.Coordinates
	places []string
}

func (g *mapGeocoder) Geocode(ctx context.Context, place string) *model.Coordinates {
	place = strings.TrimSpace(place)
	if place == "" || strings.EqualFold(place, "no especificado") {
		return nil
	}
	g.places = append(g.places, place)
	return g.coords[place]
}

type stubSearcher struct {
	docs []fetch.RawDocument
	err  error
}

func (s *stubSearcher) Search(ctx context.Context, query string) ([]fetch.RawDocument, error) {
	return s.docs, s.err
}

type stubFetcher struct {
	bodies   map[string]string
	failures map[string]error
}

func (f *stubFetcher) FetchDocument(ctx context.Context, rawURL string) (string, error) {
	if err := f.failures[rawURL]; err != nil {
		return "", err
	}
	return f.bodies[rawURL], nil
}

// memStore is an in-memory store.Store for orchestrator tests.
type memStore struct {
	current    *model.PipelineRecord
	history    []model.PipelineRecord
	replaceErr error
	mergeErr   error
	merges     int
}

func (m *memStore) Current() *model.PipelineRecord { return m.current }

func (m *memStore) ReplaceCurrent(rec *model.PipelineRecord) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.current = rec
	return nil
}

func (m *memStore) History(days int) []model.PipelineRecord { return m.history }

func (m *memStore) MergeHistory(rec *model.PipelineRecord) (bool, error) {
	m.merges++
	if m.mergeErr != nil {
		return false, m.mergeErr
	}
	m.history = append([]model.PipelineRecord{*rec}, m.history...)
	return true, nil
}

func (m *memStore) CitizenReports(days int) []model.CitizenReport { return nil }

func (m *memStore) AppendCitizenReport(r model.CitizenReport) error { return nil }

func strp(s string) *string { return &s }
