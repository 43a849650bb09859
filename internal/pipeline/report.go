package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/llm"
	"github.com/centinela-labs/centinela/internal/model"
)

const reportingPrompt = `Genera reportes para diferentes audiencias basados en estos datos de seguridad vial:

INCIDENTE PRINCIPAL:
%s

TODOS LOS INCIDENTES RECIENTES (%d):
%s

ANÁLISIS:
- Tipo de incidente: %s
- Coordenadas: %s
- Análisis de impacto: %s
- Predicciones: %s
- Recomendaciones: %s

Genera tres tipos de reporte:

1. "authorities": Informe técnico para autoridades de tránsito y seguridad
2. "citizens": Información y advertencias para conductores y transeúntes
3. "media": Nota informativa destacando el impacto en las vialidades

Cada reporte debe incluir información específica sobre:
- Cuáles rutas o vialidades se ven afectadas
- Recomendaciones de rutas alternativas
- Tiempos estimados de afectación

Responde en JSON con estos tres campos exactos.`

// Reporter synthesizes the three audience-targeted report sections.
type Reporter struct {
	asker llm.Asker
}

// NewReporter wires a Reporter.
func NewReporter(asker llm.Asker) *Reporter {
	return &Reporter{asker: asker}
}

// Synthesize produces all three sections or none: a missing section or
// an unusable reply replaces every section with its error placeholder.
func (r *Reporter) Synthesize(ctx context.Context, selected *model.GeocodedCandidate, geocoded []model.GeocodedCandidate, ref *model.Refinement) *model.Reports {
	if selected == nil || len(geocoded) == 0 {
		zap.L().Warn("report: insufficient data, skipping synthesis")
		return &model.Reports{}
	}

	top := geocoded
	if len(top) > 3 {
		top = top[:3]
	}
	mainJSON, _ := json.Marshal(selected)
	incidentsJSON, _ := json.Marshal(top)

	prompt := fmt.Sprintf(reportingPrompt,
		mainJSON,
		len(geocoded),
		incidentsJSON,
		incidentType(ref),
		coordinatesLine(ref),
		impactLine(ref),
		riskLine(ref),
		recommendationsLine(ref),
	)

	var reports model.Reports
	err := r.asker.AskStructured(ctx, prompt, 0.4, &reports)
	if err != nil || !sectionPresent(reports.Authorities) || !sectionPresent(reports.Citizens) || !sectionPresent(reports.Media) {
		zap.L().Warn("report: incomplete report output, using placeholders", zap.Error(err))
		return placeholderReports()
	}

	zap.L().Info("report: three audience reports generated")
	return &reports
}

func placeholderReports() *model.Reports {
	return &model.Reports{
		Authorities: json.RawMessage(`{"error": "No se pudo generar el reporte técnico"}`),
		Citizens:    json.RawMessage(`{"error": "No se pudo generar la alerta ciudadana"}`),
		Media:       json.RawMessage(`{"error": "No se pudo generar la nota informativa"}`),
	}
}

func sectionPresent(section json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(section))
	return trimmed != "" && trimmed != "null"
}

func incidentType(ref *model.Refinement) string {
	if ref == nil || ref.IncidentType == "" {
		return "No clasificado"
	}
	return string(ref.IncidentType)
}

func coordinatesLine(ref *model.Refinement) string {
	if ref == nil || ref.Coordinates == nil {
		return "No disponibles"
	}
	return fmt.Sprintf("lat %f, lng %f", ref.Coordinates.Lat, ref.Coordinates.Lng)
}

func impactLine(ref *model.Refinement) string {
	if ref == nil || ref.Analysis == nil || ref.Analysis.Impact == "" {
		return "No disponible"
	}
	return ref.Analysis.Impact
}

func riskLine(ref *model.Refinement) string {
	if ref == nil || ref.Predictions == nil || ref.Predictions.RiskLevel == "" {
		return "No disponible"
	}
	return ref.Predictions.RiskLevel
}

func recommendationsLine(ref *model.Refinement) string {
	if ref == nil || len(ref.Recommendations) == 0 {
		return "No disponibles"
	}
	recs := ref.Recommendations
	if len(recs) > 2 {
		recs = recs[:2]
	}
	return strings.Join(recs, " | ")
}
