// Package pipeline sequences the generation stages into a run: fetch the
// user's interactions, detect patterns, generate a theme, enrich with live
// search, write cards, select and enrich widgets, assemble the dashboard.
// Fetch failures abort the run; every generative stage degrades to its
// deterministic fallback and the run completes anyway.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftlab/driftboard/internal/content"
	"github.com/driftlab/driftboard/internal/detect"
	"github.com/driftlab/driftboard/internal/enrich"
	"github.com/driftlab/driftboard/internal/metrics"
	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/store"
	"github.com/driftlab/driftboard/internal/theme"
	"github.com/driftlab/driftboard/internal/widgets"
)

// Stage names a pipeline phase as surfaced in progress events and run rows.
type Stage string

const (
	StageFetch         Stage = "fetch"
	StageDetect        Stage = "detect"
	StageTheme         Stage = "theme"
	StageEnrich        Stage = "enrich"
	StageWrite         Stage = "write"
	StageSelectWidgets Stage = "select-widgets"
	StageEnrichWidgets Stage = "enrich-widgets"
	StageAssemble      Stage = "assemble"
	StageComplete      Stage = "complete"
	StageFailed        Stage = "failed"
)

// stagePercent fixes each stage's progress value. Percents are monotonic
// over the stage order.
var stagePercent = map[Stage]int{
	StageFetch:         0,
	StageDetect:        10,
	StageTheme:         30,
	StageEnrich:        50,
	StageWrite:         60,
	StageSelectWidgets: 70,
	StageEnrichWidgets: 85,
	StageAssemble:      95,
	StageComplete:      100,
}

// Run statuses as persisted in the runs table.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ProgressEvent is pushed to the run's sink at each stage boundary.
type ProgressEvent struct {
	RunID   string `json:"run_id"`
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// FatalError aborts a run. Only fetch failures (and a broken final
// artifact) produce one; generative stages never do.
type FatalError struct {
	Stage Stage
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Stages bundles the per-stage runners the orchestrator drives.
type Stages struct {
	Detector *detect.Detector
	Themer   *theme.Themer
	Enricher *enrich.Enricher
	Writer   *content.Writer
	Widgets  *widgets.Selector
}

// Orchestrator drives one dashboard generation run end to end.
type Orchestrator struct {
	log      *slog.Logger
	db       *store.DB
	stages   Stages
	recorder metrics.Recorder
	daysBack int
}

// New creates an orchestrator. recorder may be nil.
func New(log *slog.Logger, db *store.DB, stages Stages, recorder metrics.Recorder, daysBack int) *Orchestrator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if daysBack < 1 {
		daysBack = 30
	}
	return &Orchestrator{log: log, db: db, stages: stages, recorder: recorder, daysBack: daysBack}
}

// Run executes the full pipeline for userID. Progress events are sent to
// events without blocking; a slow or absent sink never stalls the run.
// The returned dashboard is already persisted. events may be nil.
func (o *Orchestrator) Run(ctx context.Context, userID string, events chan<- ProgressEvent) (*model.Dashboard, error) {
	runID := uuid.NewString()
	start := time.Now()
	log := o.log.With("run", runID, "user", userID)

	if err := o.db.InsertRun(runID, userID); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	dashboard, err := o.runStages(ctx, log, runID, userID, events)
	if err != nil {
		msg := err.Error()
		if ferr := o.db.FinishRun(runID, StatusFailed, &msg); ferr != nil {
			log.Error("marking run failed", "error", ferr)
		}
		percent := 0
		var fatal *FatalError
		if errors.As(err, &fatal) {
			percent = stagePercent[fatal.Stage]
		}
		o.emit(events, ProgressEvent{RunID: runID, Stage: StageFailed, Percent: percent, Message: msg})
		o.recorder.ObserveRun(StatusFailed, time.Since(start))
		log.Error("run failed", "error", err)
		return nil, err
	}

	if err := o.db.FinishRun(runID, StatusComplete, nil); err != nil {
		log.Error("marking run complete", "error", err)
	}
	o.emit(events, ProgressEvent{RunID: runID, Stage: StageComplete, Percent: stagePercent[StageComplete],
		Message: "Dashboard ready", Payload: dashboard})
	o.recorder.ObserveRun(StatusComplete, time.Since(start))
	log.Info("run complete", "patterns", len(dashboard.Patterns),
		"cards", len(dashboard.Cards), "widgets", len(dashboard.Widgets),
		"duration", time.Since(start).Round(time.Millisecond))
	return dashboard, nil
}

func (o *Orchestrator) runStages(ctx context.Context, log *slog.Logger, runID, userID string, events chan<- ProgressEvent) (*model.Dashboard, error) {
	// Fetch. The only stage with no fallback: without interaction data
	// there is nothing to personalize.
	o.progress(events, runID, StageFetch, "Fetching activity history")
	fetchStart := time.Now()
	interactions, err := o.db.GetInteractions(userID, o.daysBack)
	if err == nil && len(interactions) == 0 {
		err = fmt.Errorf("no interactions recorded for user %q in the last %d days", userID, o.daysBack)
	}
	if err != nil {
		o.recorder.ObserveStage(string(StageFetch), metrics.OutcomeFatal, time.Since(fetchStart))
		return nil, &FatalError{Stage: StageFetch, Err: err}
	}
	o.recorder.ObserveStage(string(StageFetch), metrics.OutcomeOK, time.Since(fetchStart))

	// Detect.
	o.progress(events, runID, StageDetect, "Detecting behavioral patterns")
	patterns := observeStage(o, StageDetect, func() ([]model.Pattern, error) {
		return o.stages.Detector.Detect(ctx, interactions)
	}, func() []model.Pattern {
		return detect.Fallback(interactions)
	}, log)

	// Theme.
	o.progress(events, runID, StageTheme, "Generating theme")
	dashTheme := observeStage(o, StageTheme, func() (*model.Theme, error) {
		return o.stages.Themer.Generate(ctx, patterns)
	}, theme.Fallback, log)

	// Search-enrich. Per-item failures are absorbed inside the stage.
	o.progress(events, runID, StageEnrich, "Gathering fresh context")
	enriched := timedStage(o, StageEnrich, func() []model.EnrichedPattern {
		return o.stages.Enricher.Enrich(ctx, patterns)
	})

	// Write content. Per-card failures become fillers inside the stage.
	o.progress(events, runID, StageWrite, "Writing content cards")
	cards := timedStage(o, StageWrite, func() []model.ContentCard {
		return o.stages.Writer.WriteCards(ctx, enriched)
	})

	// Select widgets.
	o.progress(events, runID, StageSelectWidgets, "Choosing widgets")
	selected := observeStage(o, StageSelectWidgets, func() ([]model.Widget, error) {
		return o.stages.Widgets.Select(ctx, enriched)
	}, func() []model.Widget {
		return o.stages.Widgets.Fallback(enriched)
	}, log)

	// Enrich widgets with live data; failures keep the placeholder.
	o.progress(events, runID, StageEnrichWidgets, "Fetching live widget data")
	liveWidgets := timedStage(o, StageEnrichWidgets, func() []model.Widget {
		return o.stages.Widgets.Enrich(ctx, selected)
	})

	// Assemble. The artifact must satisfy the cardinality invariants no
	// matter which stages degraded, so short outputs are padded from the
	// deterministic producers before validation.
	o.progress(events, runID, StageAssemble, "Assembling dashboard")
	dashboard := &model.Dashboard{
		RunID:       runID,
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
		Theme:       *dashTheme,
		Patterns:    enriched,
		Cards:       o.ensureCards(cards, enriched, log),
		Widgets:     o.ensureWidgets(liveWidgets, enriched, log),
	}
	if err := dashboard.Validate(); err != nil {
		return nil, &FatalError{Stage: StageAssemble, Err: err}
	}

	payload, err := json.Marshal(dashboard)
	if err != nil {
		return nil, &FatalError{Stage: StageAssemble, Err: err}
	}
	if _, err := o.db.SaveDashboard(runID, userID, string(payload)); err != nil {
		return nil, &FatalError{Stage: StageAssemble, Err: err}
	}
	return dashboard, nil
}

// observeStage runs a stage's primary producer and substitutes its fallback
// on failure. Fallback substitution is logged for operators but invisible in
// the run's outcome.
func observeStage[T any](o *Orchestrator, stage Stage, primary func() (T, error), fallback func() T, log *slog.Logger) T {
	start := time.Now()
	v, err := primary()
	if err != nil {
		log.Warn("stage degraded to fallback", "stage", stage, "error", err)
		o.recorder.ObserveStage(string(stage), metrics.OutcomeFallback, time.Since(start))
		return fallback()
	}
	o.recorder.ObserveStage(string(stage), metrics.OutcomeOK, time.Since(start))
	return v
}

// timedStage records the duration of a stage that cannot fail as a whole.
func timedStage[T any](o *Orchestrator, stage Stage, run func() T) T {
	start := time.Now()
	v := run()
	o.recorder.ObserveStage(string(stage), metrics.OutcomeOK, time.Since(start))
	return v
}

// ensureCards pads or trims the card set to the dashboard bounds.
func (o *Orchestrator) ensureCards(cards []model.ContentCard, patterns []model.EnrichedPattern, log *slog.Logger) []model.ContentCard {
	if len(cards) > model.MaxCards {
		cards = cards[:model.MaxCards]
	}
	sizes := []model.CardSize{model.CardMedium, model.CardSmall, model.CardLarge}
	for i := 0; len(cards) < model.MinCards && len(patterns) > 0; i++ {
		p := patterns[i%len(patterns)]
		log.Warn("padding short card set", "have", len(cards), "want", model.MinCards)
		cards = append(cards, content.FallbackCard(p.Pattern, sizes[i%len(sizes)]))
	}
	return cards
}

// ensureWidgets pads or trims the widget set to the dashboard bounds.
func (o *Orchestrator) ensureWidgets(ws []model.Widget, patterns []model.EnrichedPattern, log *slog.Logger) []model.Widget {
	if len(ws) > model.MaxWidgets {
		ws = ws[:model.MaxWidgets]
	}
	if len(ws) < model.MinWidgets {
		log.Warn("padding short widget set", "have", len(ws), "want", model.MinWidgets)
		for _, fb := range o.stages.Widgets.Fallback(patterns) {
			if len(ws) >= model.MinWidgets {
				break
			}
			ws = append(ws, fb)
		}
	}
	return ws
}

// progress records the stage transition and pushes an event. The send never
// blocks: a slow or disconnected sink drops events, the run continues.
func (o *Orchestrator) progress(events chan<- ProgressEvent, runID string, stage Stage, message string) {
	percent := stagePercent[stage]
	if err := o.db.UpdateRunProgress(runID, string(stage), percent); err != nil {
		o.log.Warn("updating run progress", "run", runID, "stage", stage, "error", err)
	}
	o.emit(events, ProgressEvent{RunID: runID, Stage: stage, Percent: percent, Message: message})
}

func (o *Orchestrator) emit(events chan<- ProgressEvent, ev ProgressEvent) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
		o.log.Debug("progress sink full, dropping event", "stage", ev.Stage)
	}
}
