// Package pipeline implements the incident-processing run: collect
// candidates from news search, select the most urgent, refine it through
// the bounded analysis loop, synthesize audience reports, and persist.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/model"
	"github.com/centinela-labs/centinela/internal/store"
)

// Pipeline sequences one full run over its stage components.
type Pipeline struct {
	collector *Collector
	selector  *Selector
	refiner   *Refiner
	reporter  *Reporter
	store     store.Store
}

// New wires the orchestrator.
func New(collector *Collector, selector *Selector, refiner *Refiner, reporter *Reporter, st store.Store) *Pipeline {
	return &Pipeline{
		collector: collector,
		selector:  selector,
		refiner:   refiner,
		reporter:  reporter,
		store:     st,
	}
}

// Run executes one full pipeline pass and returns the resulting record.
// Stage degradation never fails the run; persistence failures are logged
// and the in-memory record is still returned. Only context cancellation
// produces an error.
func (p *Pipeline) Run(ctx context.Context) (*model.PipelineRecord, error) {
	started := time.Now()
	zap.L().Info("pipeline: run started")

	candidates := p.collector.Collect(ctx)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: run cancelled")
	}

	selection, selected, geocoded := p.selector.Select(ctx, candidates)
	if selection.Justification != "" {
		zap.L().Info("pipeline: selection justification",
			zap.String("justification", selection.Justification),
		)
	}

	record := &model.PipelineRecord{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Urgency:    selection.Urgency,
		Candidates: geocoded,
		Reports:    &model.Reports{},
	}

	if selected != nil {
		if idx := indexByID(candidates, selection.SelectedID); idx >= 0 {
			record.SelectedIncident = &geocoded[idx]
		}
		record.Refinement = p.refiner.Refine(ctx, selected)
		record.Reports = p.reporter.Synthesize(ctx, record.SelectedIncident, geocoded, record.Refinement)
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: run cancelled")
	}

	p.persist(record)

	zap.L().Info("pipeline: run finished",
		zap.String("urgency", string(record.Urgency)),
		zap.Int("incidents", len(record.Candidates)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return record, nil
}

// persist writes the snapshot and merges history. Runs without incidents
// leave the previous snapshot in place so the dashboard keeps showing
// the last real data.
func (p *Pipeline) persist(record *model.PipelineRecord) {
	if len(record.Candidates) == 0 {
		zap.L().Info("pipeline: no incidents this run, keeping previous snapshot")
		return
	}

	if err := p.store.ReplaceCurrent(record); err != nil {
		zap.L().Error("pipeline: failed to persist snapshot", zap.Error(err))
	}

	appended, err := p.store.MergeHistory(record)
	if err != nil {
		zap.L().Error("pipeline: failed to merge history", zap.Error(err))
		return
	}
	if !appended {
		zap.L().Info("pipeline: run not appended to history")
	}
}

func indexByID(candidates []model.Candidate, id int) int {
	for i := range candidates {
		if candidates[i].ID == id {
			return i
		}
	}
	return -1
}
