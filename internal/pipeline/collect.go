package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/fetch"
	"github.com/centinela-labs/centinela/internal/geo"
	"github.com/centinela-labs/centinela/internal/llm"
	"github.com/centinela-labs/centinela/internal/model"
)

const extractionPrompt = `Analiza esta noticia policiaca de Querétaro, México y extrae información precisa sobre el incidente principal.

TÍTULO: %s
FECHA DE PUBLICACIÓN: %s
URL: %s

CONTENIDO:
%s

Extrae EXCLUSIVAMENTE un único incidente principal con los siguientes datos exactos:
1. lugar_exacto: Ubicación específica donde ocurrió el incidente (nombre exacto de colonia, calle o punto de referencia)
2. fecha_incidente: Fecha del incidente (formato DD/MM/YYYY si se menciona)
3. hora_incidente: Hora aproximada (formato HH:MM si se menciona)
4. tipo_incidente: Categoría precisa (homicidio, robo, secuestro, asalto, accidente vial, etc.)
5. gravedad: Nivel de gravedad (baja, media, alta, crítica)
6. resumen_conciso: Párrafo breve que resume el incidente principal
7. impacto_vial: Si el incidente afecta alguna vialidad, nombra la vialidad específica o indica "ninguna"

Responde ÚNICAMENTE en formato JSON con estos campos exactos. Extrae solo datos mencionados explícitamente.
Si algún dato no está disponible, asigna null (no inventes datos ni uses "No especificado").`

// extraction is the 7-field shape the extraction prompt asks for. Null
// fields stay nil: absence of a datum is meaningful downstream.
type extraction struct {
	Place        *string `json:"lugar_exacto"`
	IncidentDate *string `json:"fecha_incidente"`
	IncidentTime *string `json:"hora_incidente"`
	IncidentType *string `json:"tipo_incidente"`
	Severity     *string `json:"gravedad"`
	Summary      *string `json:"resumen_conciso"`
	RoadImpact   *string `json:"impacto_vial"`
}

// Collector turns a search query into normalized incident candidates:
// search, per-document body fetch, LLM extraction, and a geocode probe
// that validates the extracted place early.
type Collector struct {
	searcher fetch.Searcher
	fetcher  fetch.Fetcher
	asker    llm.Asker
	geocoder geo.Geocoder
	query    string
	minChars int
}

// NewCollector wires a Collector. minChars is the body length under
// which the search snippet replaces the fetched article text.
func NewCollector(searcher fetch.Searcher, fetcher fetch.Fetcher, asker llm.Asker, geocoder geo.Geocoder, query string, minChars int) *Collector {
	if minChars <= 0 {
		minChars = 100
	}
	return &Collector{
		searcher: searcher,
		fetcher:  fetcher,
		asker:    asker,
		geocoder: geocoder,
		query:    query,
		minChars: minChars,
	}
}

// Collect gathers candidates for one run. Per-document failures skip
// the document; a failed search degrades to an empty list so the run
// can still complete as irrelevant.
func (c *Collector) Collect(ctx context.Context) []model.Candidate {
	docs, err := c.searcher.Search(ctx, c.query)
	if err != nil {
		zap.L().Error("collect: search failed", zap.Error(err))
		return nil
	}
	zap.L().Info("collect: search complete", zap.Int("results", len(docs)))

	var candidates []model.Candidate
	for idx, doc := range docs {
		candidate, ok := c.processDocument(ctx, idx, doc)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
		zap.L().Info("collect: candidate extracted",
			zap.Int("id", candidate.ID),
			zap.String("title", candidate.Title),
			zap.Stringp("place", candidate.Place),
		)
	}
	return candidates
}

func (c *Collector) processDocument(ctx context.Context, idx int, doc fetch.RawDocument) (model.Candidate, bool) {
	content, err := c.fetcher.FetchDocument(ctx, doc.URL)
	if err != nil {
		zap.L().Warn("collect: fetch failed, skipping document",
			zap.String("url", doc.URL),
			zap.Error(err),
		)
		return model.Candidate{}, false
	}
	if len(content) < c.minChars {
		content = doc.Snippet
	}

	published := doc.PublishedDate
	if published == "" {
		published = "Fecha no encontrada"
	}

	prompt := fmt.Sprintf(extractionPrompt, doc.Title, published, doc.URL, content)

	var details extraction
	if err := c.asker.AskStructured(ctx, prompt, 0.1, &details); err != nil {
		zap.L().Warn("collect: extraction unusable, dropping candidate",
			zap.String("title", doc.Title),
			zap.Error(err),
		)
		return model.Candidate{}, false
	}

	// Early geocode probe. The result is discarded; this only surfaces
	// unresolvable places in the logs before refinement depends on them.
	if place := strings.TrimSpace(deref(details.Place)); place != "" {
		if coords := c.geocoder.Geocode(ctx, place); coords == nil {
			zap.L().Warn("collect: extracted place did not geocode", zap.String("place", place))
		}
	}

	return model.Candidate{
		ID:           idx,
		Title:        doc.Title,
		SourceURL:    doc.URL,
		PublishedAt:  &published,
		Place:        details.Place,
		IncidentDate: details.IncidentDate,
		IncidentTime: details.IncidentTime,
		IncidentType: details.IncidentType,
		Severity:     details.Severity,
		Summary:      details.Summary,
		RoadImpact:   details.RoadImpact,
		FullContent:  content,
	}, true
}

// deref returns the pointed-to string or "".
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// derefOr returns the pointed-to string, or fallback when the pointer is
// nil or the value empty.
func derefOr(s *string, fallback string) string {
	if v := deref(s); v != "" {
		return v
	}
	return fallback
}

// truncateRunes caps s at n runes for prompt construction.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
