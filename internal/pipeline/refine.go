package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/geo"
	"github.com/centinela-labs/centinela/internal/llm"
	"github.com/centinela-labs/centinela/internal/model"
)

// refinePasses is the fixed number of full refinement passes. Every pass
// runs every stage; there is no early exit.
const refinePasses = 2

// confidenceGate is the threshold below which predictions are replaced
// with the fixed degraded output.
const confidenceGate = 0.3

const classificationPrompt = `Clasifica este incidente de seguridad en UNA de estas categorías EXACTAS:
%s

Título: %s
Clasificación inicial: %s
Contenido: %s

Responde en JSON con un solo campo "incident_type" con la categoría exacta.`

const placeExtractionPrompt = `Extrae el lugar exacto donde ocurrió este incidente en Querétaro.
Busca nombres de colonias, calles, cruces o puntos de referencia.
Si hay múltiples lugares, selecciona el más específico donde ocurrió el hecho.

Contenido: %s

Responde SOLO con el nombre del lugar, sin explicaciones.`

const analyticsPrompt = `Analiza este incidente de seguridad con enfoque en su impacto vial:

DATOS:
- Tipo: %s
- Lugar: %s
- Fecha: %s
- Hora: %s
- Resumen: %s
- Impacto vial: %s

Genera un análisis con:
- "pattern": patrones temporales o espaciales relacionados con este tipo de incidente
- "impact": impacto en vialidades y tránsito (bajo, moderado, alto, severo)
- "risk_factors": factores que contribuyeron al incidente
- "affected_routes": vías o rutas afectadas por el incidente
- "estimated_duration": duración estimada del impacto en vialidades

Responde en JSON con estos campos exactos.`

const evaluationPrompt = `Evalúa la confianza en este análisis de incidente de seguridad:

DATOS DEL INCIDENTE:
%s

ANÁLISIS REALIZADO:
%s

Considera factores como:
- Completitud de información del incidente
- Coherencia del análisis
- Confiabilidad de la fuente
- Precisión de la ubicación
- Claridad del impacto vial

Genera un valor de confianza entre 0.0 y 1.0 donde:
- 0.0-0.3: Datos y análisis de baja confianza
- 0.4-0.6: Confianza moderada
- 0.7-0.8: Alta confianza
- 0.9-1.0: Confianza muy alta

Responde en JSON con campo "confidence" (valor numérico) y "justification" (razones).`

const predictivePrompt = `Genera predicciones para este incidente de seguridad con enfoque en impacto vial:

DATOS:
- Tipo: %s
- Lugar: %s
- Fecha/Hora: %s a las %s
- Impacto vial: %s
- Análisis de patrones: %s
- Rutas afectadas: %s
- Confianza en los datos: %.2f

Genera predicciones con estos campos exactos:
- "risk_level": nivel de riesgo vial (bajo, moderado, elevado, crítico)
- "duration": duración estimada del impacto vial (en horas específicas)
- "congestion_probability": probabilidad de congestionamiento (0-100%%)
- "alternative_routes": sugerencias de rutas alternativas específicas
- "best_times": mejores horarios para circular por la zona afectada

Responde en JSON.`

const recommenderPrompt = `Genera recomendaciones ESPECÍFICAS para este incidente vial en Querétaro:

DATOS DEL INCIDENTE:
- Tipo: %s
- Lugar exacto: %s
- Coordenadas: Latitud %f, Longitud %f
- Nivel de riesgo vial: %s
- Rutas afectadas: %s

VIALIDADES PRINCIPALES DE QUERÉTARO:
%s

Proporciona 5 recomendaciones diferentes y específicas para conductores.
Usa EXCLUSIVAMENTE nombres reales de avenidas, calles y colonias de Querétaro.

Responde ÚNICAMENTE con una lista JSON de recomendaciones.`

// Refiner runs the bounded analysis loop over the selected incident.
type Refiner struct {
	asker    llm.Asker
	geocoder geo.Geocoder
	roads    *RoadNetwork
}

// NewRefiner wires a Refiner.
func NewRefiner(asker llm.Asker, geocoder geo.Geocoder, roads *RoadNetwork) *Refiner {
	return &Refiner{asker: asker, geocoder: geocoder, roads: roads}
}

// Refine runs the fixed stage sequence classify → geolocate → analyze →
// evaluate → predict → recommend over the incident, twice. Stage
// failures degrade their own output and never abort the loop; the
// returned refinement is always complete.
func (r *Refiner) Refine(ctx context.Context, incident *model.Candidate) *model.Refinement {
	ref := &model.Refinement{}
	for ref.IterationCount < refinePasses {
		zap.L().Info("refine: starting pass", zap.Int("iteration", ref.IterationCount))

		r.classify(ctx, incident, ref)
		r.geolocate(ctx, incident, ref)
		r.analyze(ctx, incident, ref)
		r.evaluate(ctx, incident, ref)
		r.predict(ctx, incident, ref)
		r.recommend(ctx, incident, ref)

		ref.IterationCount++
	}

	zap.L().Info("refine: complete",
		zap.String("incident_type", string(ref.IncidentType)),
		zap.Float64("confidence", ref.Confidence),
		zap.Bool("located", ref.Coordinates != nil),
	)
	return ref
}

func (r *Refiner) classify(ctx context.Context, incident *model.Candidate, ref *model.Refinement) {
	categories := make([]string, 0, len(model.AllIncidentTypes()))
	for _, t := range model.AllIncidentTypes() {
		categories = append(categories, "- "+string(t))
	}

	prompt := fmt.Sprintf(classificationPrompt,
		strings.Join(categories, "\n"),
		incident.Title,
		deref(incident.IncidentType),
		truncateRunes(incident.FullContent, 2000),
	)

	var result struct {
		IncidentType string `json:"incident_type"`
	}
	if err := r.asker.AskStructured(ctx, prompt, 0.1, &result); err != nil {
		zap.L().Warn("refine: classification unusable, falling back to extracted type", zap.Error(err))
		ref.IncidentType = model.ParseIncidentType(deref(incident.IncidentType))
		return
	}
	ref.IncidentType = model.ParseIncidentType(result.IncidentType)
}

// geolocate resolves coordinates through the fallback chain: declared
// place, then LLM place extraction from the article body, then the
// road-impact text. Exhausting the chain leaves coordinates nil.
func (r *Refiner) geolocate(ctx context.Context, incident *model.Candidate, ref *model.Refinement) {
	place := strings.TrimSpace(deref(incident.Place))

	if place == "" || strings.EqualFold(place, "no especificado") {
		extracted, err := r.asker.AskText(ctx,
			fmt.Sprintf(placeExtractionPrompt, truncateRunes(incident.FullContent, 3000)), 0.1)
		if err != nil {
			zap.L().Warn("refine: place extraction failed", zap.Error(err))
		} else {
			place = strings.TrimSpace(extracted)
		}
	}

	coords := r.geocoder.Geocode(ctx, place)

	if coords == nil {
		if road := strings.TrimSpace(deref(incident.RoadImpact)); road != "" && !strings.EqualFold(road, "no especificado") {
			coords = r.geocoder.Geocode(ctx, road)
		}
	}

	ref.Coordinates = coords
}

func (r *Refiner) analyze(ctx context.Context, incident *model.Candidate, ref *model.Refinement) {
	if ref.Coordinates == nil {
		zap.L().Warn("refine: no coordinates, emitting degraded analysis")
		ref.Analysis = &model.Analysis{
			Pattern: "No hay datos suficientes para análisis",
			Impact:  model.ImpactUnknown,
		}
		return
	}

	prompt := fmt.Sprintf(analyticsPrompt,
		ref.IncidentType,
		derefOr(incident.Place, "No especificado"),
		derefOr(incident.IncidentDate, "No especificada"),
		derefOr(incident.IncidentTime, "No especificada"),
		derefOr(incident.Summary, "No disponible"),
		derefOr(incident.RoadImpact, "No especificado"),
	)

	var analysis model.Analysis
	if err := r.asker.AskStructured(ctx, prompt, 0.4, &analysis); err != nil {
		zap.L().Warn("refine: analysis unusable, emitting degraded analysis", zap.Error(err))
		ref.Analysis = &model.Analysis{
			Pattern: "No hay datos suficientes para análisis",
			Impact:  model.ImpactUnknown,
		}
		return
	}
	ref.Analysis = &analysis
}

func (r *Refiner) evaluate(ctx context.Context, incident *model.Candidate, ref *model.Refinement) {
	incidentJSON, _ := json.Marshal(promptIncident(incident))
	analysisJSON, _ := json.Marshal(ref.Analysis)

	var result struct {
		Confidence    any    `json:"confidence"`
		Justification string `json:"justification"`
	}
	err := r.asker.AskStructured(ctx,
		fmt.Sprintf(evaluationPrompt, incidentJSON, analysisJSON), 0.3, &result)
	if err != nil {
		zap.L().Warn("refine: confidence evaluation unusable, using default", zap.Error(err))
		ref.Confidence = 0.5
		return
	}
	ref.Confidence = coerceConfidence(result.Confidence)
}

func (r *Refiner) predict(ctx context.Context, incident *model.Candidate, ref *model.Refinement) {
	if ref.Confidence < confidenceGate {
		zap.L().Warn("refine: confidence below prediction gate",
			zap.Float64("confidence", ref.Confidence),
		)
		ref.Predictions = model.DegradedPredictions()
		return
	}

	prompt := fmt.Sprintf(predictivePrompt,
		ref.IncidentType,
		deref(incident.Place),
		deref(incident.IncidentDate),
		deref(incident.IncidentTime),
		deref(incident.RoadImpact),
		ref.Analysis.Pattern,
		strings.Join(ref.Analysis.AffectedRoutes, ", "),
		ref.Confidence,
	)

	var predictions model.Predictions
	if err := r.asker.AskStructured(ctx, prompt, 0.4, &predictions); err != nil {
		zap.L().Warn("refine: predictions unusable, using degraded output", zap.Error(err))
		ref.Predictions = model.DegradedPredictions()
		return
	}
	ref.Predictions = &predictions
}

func (r *Refiner) recommend(ctx context.Context, incident *model.Candidate, ref *model.Refinement) {
	if ref.Coordinates == nil || ref.Predictions == nil {
		zap.L().Warn("refine: insufficient data for route recommendations")
		ref.Recommendations = []string{"No hay suficientes datos para recomendar rutas alternativas"}
		return
	}

	prompt := fmt.Sprintf(recommenderPrompt,
		ref.IncidentType,
		derefOr(incident.Place, "No especificado"),
		ref.Coordinates.Lat,
		ref.Coordinates.Lng,
		ref.Predictions.RiskLevel,
		strings.Join(ref.Analysis.AffectedRoutes, ", "),
		r.roads.PromptContext(),
	)

	text, err := r.asker.AskText(ctx, prompt, 0.4)
	if err != nil {
		zap.L().Warn("refine: recommendation request failed", zap.Error(err))
		ref.Recommendations = []string{"Error al generar recomendaciones. Utilice rutas alternativas principales."}
		return
	}

	ref.Recommendations = parseRecommendations(text)
}

// parseRecommendations accepts either a bare JSON list or an object
// wrapping one under "recommendations".
func parseRecommendations(text string) []string {
	var list []string
	if err := llm.Unmarshal(text, &list); err == nil && len(list) > 0 {
		return list
	}

	var wrapped struct {
		Recommendations []string `json:"recommendations"`
	}
	if err := llm.Unmarshal(text, &wrapped); err == nil && len(wrapped.Recommendations) > 0 {
		return wrapped.Recommendations
	}

	return []string{"No se pudieron generar recomendaciones específicas"}
}

// promptIncident is the content-stripped incident view used in prompts
// that embed the whole incident.
func promptIncident(c *model.Candidate) promptCandidate {
	return promptCandidate{
		ID:         c.ID,
		Title:      c.Title,
		Place:      derefOr(c.Place, "No especificado"),
		Date:       derefOr(c.IncidentDate, "No especificada"),
		Time:       derefOr(c.IncidentTime, "No especificada"),
		Type:       derefOr(c.IncidentType, "No especificado"),
		Severity:   derefOr(c.Severity, "No especificada"),
		Summary:    derefOr(c.Summary, "No disponible"),
		RoadImpact: derefOr(c.RoadImpact, "No especificado"),
	}
}

// coerceConfidence normalizes whatever the model returned for the
// confidence field into a float clamped to [0, 1], rounded to two
// decimals. Anything unusable becomes 0.5.
func coerceConfidence(v any) float64 {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0.5
		}
		f = parsed
	default:
		return 0.5
	}

	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return math.Round(f*100) / 100
}
