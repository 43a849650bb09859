package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/centinela-labs/centinela/internal/model"
)

var titleCaser = cases.Title(language.Spanish)

// emptyRecord is what the dashboard gets before any run has completed.
func emptyRecord() *model.PipelineRecord {
	return &model.PipelineRecord{
		Candidates: []model.GeocodedCandidate{},
		Reports:    &model.Reports{},
	}
}

func (s *Server) handleSecurityData(w http.ResponseWriter, _ *http.Request) {
	record := s.store.Current()
	if record == nil || len(record.Candidates) == 0 {
		if history := s.store.History(0); len(history) > 0 {
			writeJSON(w, http.StatusOK, history[0])
			return
		}
		record = emptyRecord()
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleLatestNews(w http.ResponseWriter, _ *http.Request) {
	var all []model.GeocodedCandidate
	if current := s.store.Current(); current != nil {
		all = append(all, current.Candidates...)
	}

	history := s.store.History(0)
	if len(history) > 5 {
		history = history[:5]
	}
	for _, entry := range history {
		for _, incident := range entry.Candidates {
			if !containsIncident(all, incident) {
				all = append(all, incident)
			}
		}
	}

	// Best-effort ordering; incident dates are free text.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Date > all[j].Date
	})

	latest := all
	if len(latest) > 3 {
		latest = latest[:3]
	}
	if latest == nil {
		latest = []model.GeocodedCandidate{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"latest_news": latest,
		"total_count": len(all),
	})
}

// containsIncident treats a matching title, or a matching place and
// type, as the same incident.
func containsIncident(incidents []model.GeocodedCandidate, candidate model.GeocodedCandidate) bool {
	for _, existing := range incidents {
		if existing.Title == candidate.Title {
			return true
		}
		if existing.Place == candidate.Place && existing.Type == candidate.Type {
			return true
		}
	}
	return false
}

func (s *Server) handleHistoricalData(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	history := s.store.History(days)
	if history == nil {
		history = []model.PipelineRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleIncidentTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.TypeCounts())
}

func (s *Server) handleHeatmapData(w http.ResponseWriter, _ *http.Request) {
	points := s.store.HeatmapPoints()
	if points == nil {
		points = []model.HeatmapPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleTriggerUpdate(w http.ResponseWriter, r *http.Request) {
	err := s.trigger.TriggerNow(r.Context())
	if err != nil {
		zap.L().Error("server: triggered run failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": err == nil})
}

func (s *Server) handleGetCitizenReports(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 1)
	reports := s.store.CitizenReports(days)
	if reports == nil {
		reports = []model.CitizenReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

type citizenReportRequest struct {
	Description  string   `json:"description"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	IncidentType string   `json:"incident_type"`
	LocationName string   `json:"location_name"`
	Name         string   `json:"name"`
	Contact      string   `json:"contact"`
	Severity     string   `json:"severity"`
	Images       []string `json:"images"`
}

func (s *Server) handleAddCitizenReport(w http.ResponseWriter, r *http.Request) {
	var req citizenReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Datos inválidos"})
		return
	}

	switch {
	case strings.TrimSpace(req.Description) == "":
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Campo requerido: description"})
		return
	case req.Latitude == nil:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Campo requerido: latitude"})
		return
	case req.Longitude == nil:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Campo requerido: longitude"})
		return
	}

	report := model.CitizenReport{
		ID:          shortID(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Description: req.Description,
		Type:        orDefault(req.IncidentType, "reporte_ciudadano"),
		Coordinates: &model.Coordinates{Lat: *req.Latitude, Lng: *req.Longitude},
		Place:       orDefault(req.LocationName, "Ubicación reportada por ciudadano"),
		Source:      "citizen",
		Verified:    false,
		Name:        req.Name,
		Contact:     req.Contact,
		Severity:    req.Severity,
		Images:      req.Images,
	}

	if err := s.store.AppendCitizenReport(report); err != nil {
		zap.L().Error("server: save citizen report", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "No se pudo guardar el reporte"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Reporte guardado correctamente",
		"report_id": report.ID,
	})
}

// handleAllIncidents merges the last 24 hours of system incidents with
// citizen reports into the unified map shape. Only located incidents are
// included.
func (s *Server) handleAllIncidents(w http.ResponseWriter, _ *http.Request) {
	var system []model.GeocodedCandidate
	if current := s.store.Current(); current != nil {
		system = append(system, current.Candidates...)
	}
	for _, entry := range s.store.History(1) {
		for _, incident := range entry.Candidates {
			if !containsSystemIncident(system, incident) {
				system = append(system, incident)
			}
		}
	}

	merged := []model.MapIncident{}
	today := time.Now().Format("02/01/2006")

	for _, incident := range system {
		if incident.Coordinates == nil {
			continue
		}
		merged = append(merged, model.MapIncident{
			ID:          shortID(),
			Title:       orDefault(incident.Title, "Incidente sin título"),
			Description: orDefault(incident.Summary, "Sin descripción"),
			Type:        orDefault(incident.Type, "desconocido"),
			Location:    orDefault(incident.Place, "Ubicación no especificada"),
			Timestamp:   orDefault(incident.Date, today),
			Time:        incident.Time,
			Severity:    orDefault(incident.Severity, "media"),
			Coordinates: incident.Coordinates,
			Source:      "system",
			URL:         incident.SourceURL,
		})
	}

	for _, report := range s.store.CitizenReports(1) {
		if report.Coordinates == nil {
			continue
		}
		verified := report.Verified
		merged = append(merged, model.MapIncident{
			ID:           report.ID,
			Title:        "Reporte ciudadano: " + titleCaser.String(strings.ReplaceAll(orDefault(report.Type, "Incidente"), "_", " ")),
			Description:  orDefault(report.Description, "Sin descripción"),
			Type:         orDefault(report.Type, "reporte_ciudadano"),
			Location:     orDefault(report.Place, "Ubicación reportada por ciudadano"),
			Timestamp:    reportDate(report.Timestamp, today),
			Severity:     orDefault(report.Severity, "media"),
			Coordinates:  report.Coordinates,
			Source:       "citizen",
			Verified:     &verified,
			ReporterName: orDefault(report.Name, "Anónimo"),
		})
	}

	writeJSON(w, http.StatusOK, merged)
}

// containsSystemIncident matches on title and place together.
func containsSystemIncident(incidents []model.GeocodedCandidate, candidate model.GeocodedCandidate) bool {
	for _, existing := range incidents {
		if existing.Title == candidate.Title && existing.Place == candidate.Place {
			return true
		}
	}
	return false
}

func reportDate(timestamp, fallback string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fallback
	}
	return t.Format("02/01/2006")
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func shortID() string {
	return uuid.NewString()[:8]
}
