// Package store owns the three persisted collections: the current run
// snapshot, the history log, and citizen reports. One writer (the
// orchestrator / API append path), many readers (the dashboard). Writes
// replace whole files atomically so readers always see a complete
// snapshot.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/model"
)

const (
	currentFile = "security_data.json"
	historyFile = "historical_data.json"
	citizenFile = "citizen_reports.json"

	// historyCap bounds the history log; the oldest entry is evicted
	// when an append would exceed it.
	historyCap = 100

	// citizenWindow prunes citizen reports on load.
	citizenWindow = 24 * time.Hour
)

// Store is the persistence surface consumed by the orchestrator and the
// dashboard.
type Store interface {
	// Current returns the last persisted run snapshot, or nil when no
	// run has completed yet. Callers must treat the record as read-only.
	Current() *model.PipelineRecord
	// ReplaceCurrent persists rec as the current snapshot.
	ReplaceCurrent(rec *model.PipelineRecord) error
	// History returns persisted runs, most recent first. days > 0
	// limits to runs within that many days.
	History(days int) []model.PipelineRecord
	// MergeHistory deduplicates rec against recent history and prepends
	// it when novel. Returns true when the record was appended.
	MergeHistory(rec *model.PipelineRecord) (bool, error)
	// CitizenReports returns citizen reports, optionally limited to a
	// day window.
	CitizenReports(days int) []model.CitizenReport
	// AppendCitizenReport persists one new citizen report.
	AppendCitizenReport(r model.CitizenReport) error
}

// FileStore implements Store on three JSON files in a data directory.
type FileStore struct {
	dir string

	mu      sync.RWMutex
	current *model.PipelineRecord
	history []model.PipelineRecord
	citizen []model.CitizenReport
}

// Open loads the collections from dir, creating it if needed. Missing
// files start their collections empty; citizen reports older than 24h
// are pruned on load.
func Open(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "store: create data dir")
	}

	s := &FileStore{dir: dir}

	var current model.PipelineRecord
	ok, err := s.readJSON(currentFile, &current)
	if err != nil {
		return nil, err
	}
	if ok {
		s.current = &current
	}

	if _, err := s.readJSON(historyFile, &s.history); err != nil {
		return nil, err
	}

	var reports []model.CitizenReport
	if _, err := s.readJSON(citizenFile, &reports); err != nil {
		return nil, err
	}
	s.citizen = pruneCitizenReports(reports, time.Now().UTC())

	zap.L().Info("store: loaded",
		zap.String("dir", dir),
		zap.Bool("has_current", s.current != nil),
		zap.Int("history_entries", len(s.history)),
		zap.Int("citizen_reports", len(s.citizen)),
	)
	return s, nil
}

// Current implements Store.
func (s *FileStore) Current() *model.PipelineRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// ReplaceCurrent implements Store.
func (s *FileStore) ReplaceCurrent(rec *model.PipelineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeJSON(currentFile, rec); err != nil {
		return err
	}
	s.current = rec
	return nil
}

// History implements Store.
func (s *FileStore) History(days int) []model.PipelineRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		out := make([]model.PipelineRecord, len(s.history))
		copy(out, s.history)
		return out
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	var out []model.PipelineRecord
	for _, rec := range s.history {
		if rec.Timestamp >= cutoff {
			out = append(out, rec)
		}
	}
	return out
}

// CitizenReports implements Store.
func (s *FileStore) CitizenReports(days int) []model.CitizenReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		out := make([]model.CitizenReport, len(s.citizen))
		copy(out, s.citizen)
		return out
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	var out []model.CitizenReport
	for _, r := range s.citizen {
		if r.Timestamp >= cutoff {
			out = append(out, r)
		}
	}
	return out
}

// AppendCitizenReport implements Store.
func (s *FileStore) AppendCitizenReport(r model.CitizenReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := append(append([]model.CitizenReport{}, s.citizen...), r)
	if err := s.writeJSON(citizenFile, updated); err != nil {
		return err
	}
	s.citizen = updated

	zap.L().Info("store: citizen report saved",
		zap.String("report_id", r.ID),
		zap.String("type", r.Type),
	)
	return nil
}

// pruneCitizenReports drops reports older than the rolling window.
func pruneCitizenReports(reports []model.CitizenReport, now time.Time) []model.CitizenReport {
	cutoff := now.Add(-citizenWindow).Format(time.RFC3339)
	var kept []model.CitizenReport
	for _, r := range reports {
		if r.Timestamp >= cutoff {
			kept = append(kept, r)
		}
	}
	return kept
}

// readJSON loads a JSON file into out. Returns false when the file does
// not exist.
func (s *FileStore) readJSON(name string, out any) (bool, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "store: read %s", name)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, eris.Wrapf(err, "store: parse %s", name)
	}
	return true, nil
}

// writeJSON persists v via temp file + rename so concurrent readers of
// the file never observe a partial write.
func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "store: marshal %s", name)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "store: create temp for %s", name)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "store: write %s", name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "store: close temp for %s", name)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "store: replace %s", name)
	}
	return nil
}
