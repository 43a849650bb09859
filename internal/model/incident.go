package model

import (
	"encoding/json"
	"strings"
)

// UrgencyTier is the coarse priority assigned to a run at selection time.
type UrgencyTier string

const (
	UrgencyCritical   UrgencyTier = "critical"
	UrgencyHigh       UrgencyTier = "high"
	UrgencyStandard   UrgencyTier = "standard"
	UrgencyLow        UrgencyTier = "low"
	UrgencyIrrelevant UrgencyTier = "irrelevant"
)

// ParseUrgency maps free text onto the closed urgency set. Unknown values
// fall back to standard, matching the selector's contract that selection
// never fails once candidates exist.
func ParseUrgency(s string) UrgencyTier {
	switch UrgencyTier(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyCritical:
		return UrgencyCritical
	case UrgencyHigh:
		return UrgencyHigh
	case UrgencyStandard:
		return UrgencyStandard
	case UrgencyLow:
		return UrgencyLow
	case UrgencyIrrelevant:
		return UrgencyIrrelevant
	default:
		return UrgencyStandard
	}
}

// IncidentType is the closed classification vocabulary. The refinement
// loop always resolves to one of these; anything unmapped becomes otro.
type IncidentType string

const (
	TypeHomicidioDoloso   IncidentType = "homicidio_doloso"
	TypeHomicidioCulposo  IncidentType = "homicidio_culposo"
	TypeSecuestro         IncidentType = "secuestro"
	TypeExtorsion         IncidentType = "extorsión"
	TypeRoboCasa          IncidentType = "robo_casa"
	TypeRoboVehiculo      IncidentType = "robo_vehículo"
	TypeRoboTranseunte    IncidentType = "robo_transeúnte"
	TypeRoboNegocio       IncidentType = "robo_negocio"
	TypeViolenciaFamiliar IncidentType = "violencia_familiar"
	TypeViolacion         IncidentType = "violación"
	TypeNarcomenudeo      IncidentType = "narcomenudeo"
	TypeLesionesDolosas   IncidentType = "lesiones_dolosas"
	TypeFraude            IncidentType = "fraude"
	TypeAmenazas          IncidentType = "amenazas"
	TypeAccidenteVial     IncidentType = "accidente_vial"
	TypeBloqueoVial       IncidentType = "bloqueo_vial"
	TypeOtro              IncidentType = "otro"
)

// AllIncidentTypes returns the full classification vocabulary in prompt order.
func AllIncidentTypes() []IncidentType {
	return []IncidentType{
		TypeHomicidioDoloso, TypeHomicidioCulposo, TypeSecuestro,
		TypeExtorsion, TypeRoboCasa, TypeRoboVehiculo, TypeRoboTranseunte,
		TypeRoboNegocio, TypeViolenciaFamiliar, TypeViolacion,
		TypeNarcomenudeo, TypeLesionesDolosas, TypeFraude, TypeAmenazas,
		TypeAccidenteVial, TypeBloqueoVial, TypeOtro,
	}
}

// ParseIncidentType maps free text onto the closed vocabulary.
func ParseIncidentType(s string) IncidentType {
	it := IncidentType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range AllIncidentTypes() {
		if t == it {
			return t
		}
	}
	return TypeOtro
}

// Severity levels as reported by extraction. Kept as free text in records
// (extraction output is advisory), but the heatmap intensity contract is
// fixed on these two values.
const (
	SeverityAlta    = "alta"
	SeverityCritica = "crítica"
)

// IntensityForSeverity maps a severity string to heatmap intensity.
// Anything other than alta or crítica (including empty) gets base weight.
func IntensityForSeverity(severity string) float64 {
	switch severity {
	case SeverityAlta:
		return 1.5
	case SeverityCritica:
		return 2.0
	default:
		return 1.0
	}
}

// Coordinates is a geocoded point. Absence is modeled as a nil pointer,
// never a zero value: (0,0) is a valid location in principle.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Candidate is one news item normalized to the common extraction shape.
// Nil pointer fields mean "not mentioned in the source" — distinct from
// empty strings. FullContent is working state for the refinement loop and
// never persisted.
type Candidate struct {
	ID           int     `json:"id"`
	Title        string  `json:"noticia"`
	SourceURL    string  `json:"url"`
	PublishedAt  *string `json:"fecha_publicacion"`
	Place        *string `json:"lugar"`
	IncidentDate *string `json:"fecha_incidente"`
	IncidentTime *string `json:"hora_incidente"`
	IncidentType *string `json:"tipo_incidente"`
	Severity     *string `json:"gravedad"`
	Summary      *string `json:"resumen"`
	RoadImpact   *string `json:"impacto_vial"`
	FullContent  string  `json:"-"`
}

// GeocodedCandidate is the persisted, content-stripped projection of a
// candidate plus its optional geocoded location. This is the shape the
// dashboard and the history signatures operate on.
type GeocodedCandidate struct {
	Title       string       `json:"titulo"`
	SourceURL   string       `json:"url"`
	Place       string       `json:"lugar"`
	Date        string       `json:"fecha"`
	Time        string       `json:"hora"`
	Type        string       `json:"tipo"`
	Severity    string       `json:"gravedad"`
	Summary     string       `json:"resumen"`
	RoadImpact  string       `json:"impacto_vial"`
	Coordinates *Coordinates `json:"coordenadas"`
}

// Selection is the router's decision over a run's candidate list.
type Selection struct {
	SelectedID    int         `json:"selected_id"`
	Urgency       UrgencyTier `json:"urgency"`
	Justification string      `json:"justification"`
}

// StringList unmarshals either a JSON array of strings or a single bare
// string. LLM output alternates between the two for list-valued fields.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one == "" {
		*l = nil
		return nil
	}
	*l = StringList{one}
	return nil
}

// FlexString unmarshals any JSON scalar into a string. LLMs return
// numbers where strings were requested ("congestion_probability": 80).
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(strings.Trim(string(data), `"`))
	return nil
}

// Analysis is the impact analysis produced for the selected incident.
type Analysis struct {
	Pattern           string     `json:"pattern"`
	Impact            string     `json:"impact"`
	RiskFactors       StringList `json:"risk_factors,omitempty"`
	AffectedRoutes    StringList `json:"affected_routes,omitempty"`
	EstimatedDuration FlexString `json:"estimated_duration,omitempty"`
}

// ImpactUnknown marks a degraded analysis emitted without coordinates.
const ImpactUnknown = "desconocido"

// Predictions is the road-risk forecast for the selected incident.
type Predictions struct {
	RiskLevel             string     `json:"risk_level"`
	Duration              FlexString `json:"duration"`
	CongestionProbability FlexString `json:"congestion_probability,omitempty"`
	AlternativeRoutes     StringList `json:"alternative_routes,omitempty"`
	BestTimes             StringList `json:"best_times,omitempty"`
}

// DegradedPredictions is the fixed output substituted when confidence
// falls below the prediction gate. Predictions are not attempted at low
// confidence to avoid fabricated certainty.
func DegradedPredictions() *Predictions {
	return &Predictions{
		RiskLevel: "undetermined",
		Duration:  "not applicable",
	}
}

// Refinement accumulates the state of the bounded refinement loop.
// Created fresh per selected incident, mutated stage by stage.
type Refinement struct {
	IterationCount  int          `json:"iteration_count"`
	IncidentType    IncidentType `json:"incident_type"`
	Coordinates     *Coordinates `json:"coordinates"`
	Analysis        *Analysis    `json:"analysis"`
	Confidence      float64      `json:"confidence"`
	Predictions     *Predictions `json:"predictions"`
	Recommendations []string     `json:"recommendations"`
}

// Reports holds the three audience-targeted summaries. Sections are kept
// as raw JSON so that whatever structure the model produced survives the
// round trip to disk unchanged.
type Reports struct {
	Authorities json.RawMessage `json:"authorities,omitempty"`
	Citizens    json.RawMessage `json:"citizens,omitempty"`
	Media       json.RawMessage `json:"media,omitempty"`
}

// PipelineRecord is the result of one full pipeline run.
type PipelineRecord struct {
	Timestamp        string              `json:"timestamp"`
	Urgency          UrgencyTier         `json:"urgency"`
	Candidates       []GeocodedCandidate `json:"incidents"`
	SelectedIncident *GeocodedCandidate  `json:"main_incident"`
	Refinement       *Refinement         `json:"refinement"`
	Reports          *Reports            `json:"reports"`
}

// CitizenReport is an independently sourced incident report.
type CitizenReport struct {
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Description string       `json:"description"`
	Type        string       `json:"tipo"`
	Coordinates *Coordinates `json:"coordenadas"`
	Place       string       `json:"lugar"`
	Source      string       `json:"source"`
	Verified    bool         `json:"verified"`
	Name        string       `json:"name,omitempty"`
	Contact     string       `json:"contact,omitempty"`
	Severity    string       `json:"severity,omitempty"`
	Images      []string     `json:"images,omitempty"`
}

// HeatmapPoint is one weighted coordinate for the dashboard heatmap.
type HeatmapPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity float64 `json:"intensity"`
}

// MapIncident is the merged map view of a system or citizen incident.
type MapIncident struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Type         string       `json:"type"`
	Location     string       `json:"location"`
	Timestamp    string       `json:"timestamp"`
	Time         string       `json:"time"`
	Severity     string       `json:"severity"`
	Coordinates  *Coordinates `json:"coordinates"`
	Source       string       `json:"source"`
	URL          string       `json:"url,omitempty"`
	Verified     *bool        `json:"verified,omitempty"`
	ReporterName string       `json:"reporter_name,omitempty"`
}
