// Package pipeline runs the analysis of a project as a chain of stages. Each
// stage is one job: it reads the project's configuration and artifacts, does
// its work through the tool adapter and the scoring client, stores the new
// artifacts and state, and asks the dispatcher for the next stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yumyai/varenrich/logger"
	"github.com/yumyai/varenrich/pkg/db"
	"github.com/yumyai/varenrich/pkg/model"
	"github.com/yumyai/varenrich/pkg/scoring"
	"github.com/yumyai/varenrich/pkg/tools"
)

const (
	StageAssemble    = "assemble"
	StageFilter      = "filter"
	StageCheckScores = "check-scores"
	StageScoreFilter = "score-filter"
	StageAnalyze     = "analyze"
)

var ErrUnknownStage = errors.New("unknown stage")

// Dispatcher schedules a stage run. Transport and retries are up to the
// implementation.
type Dispatcher interface {
	Enqueue(ctx context.Context, stage, projectID string, args map[string]string, delay time.Duration) error
}

// Exporter publishes the result tables of a finished project.
type Exporter interface {
	Export(ctx context.Context, projectID string, generation int, files []string) error
}

type Options struct {
	ProjectsDir string
	Refs        tools.AnnotationRefs
	// Delay before an unfinished scoring check runs again.
	ScoreRetry time.Duration
}

type Orchestrator struct {
	store    *db.Store
	tools    tools.Adapter
	scoring  scoring.Client
	dispatch Dispatcher
	exporter Exporter
	metrics  *Metrics
	opts     Options
}

func New(store *db.Store, adapter tools.Adapter, client scoring.Client, dispatch Dispatcher, opts Options) *Orchestrator {
	if opts.ScoreRetry <= 0 {
		opts.ScoreRetry = 15 * time.Minute
	}
	return &Orchestrator{
		store:    store,
		tools:    adapter,
		scoring:  client,
		dispatch: dispatch,
		opts:     opts,
	}
}

func (o *Orchestrator) SetExporter(e Exporter) { o.exporter = e }

func (o *Orchestrator) SetMetrics(m *Metrics) { o.metrics = m }

// run is the working context of one stage invocation.
type run struct {
	project   *model.Project
	artifacts *model.Artifacts
	log       *zap.Logger
}

type stage struct {
	from   []model.State // states the stage may start from
	during model.State   // held while the stage runs; empty for none
	fn     func(o *Orchestrator, ctx context.Context, r *run) (model.State, error)
}

var stages = map[string]stage{
	StageAssemble: {
		from:   []model.State{model.StateInitial},
		during: model.StateAnnotating,
		fn:     (*Orchestrator).assemble,
	},
	StageFilter: {
		from:   []model.State{model.StateAnnotated},
		during: model.StateFiltering,
		fn:     (*Orchestrator).filter,
	},
	StageCheckScores: {
		from:   []model.State{model.StateCaddWaiting, model.StateCaddError},
		during: model.StateCaddChecking,
		fn:     (*Orchestrator).checkScores,
	},
	StageScoreFilter: {
		from: []model.State{model.StateCaddFiltering},
		fn:   (*Orchestrator).scoreFilter,
	},
	StageAnalyze: {
		from: []model.State{model.StateAnalyzing},
		fn:   (*Orchestrator).analyze,
	},
}

// StageFor names the stage that continues a project in state s, or "" when
// nothing is left to run.
func StageFor(s model.State) string {
	switch s {
	case model.StateInitial:
		return StageAssemble
	case model.StateAnnotated:
		return StageFilter
	case model.StateCaddWaiting, model.StateCaddError:
		return StageCheckScores
	case model.StateCaddFiltering:
		return StageScoreFilter
	case model.StateAnalyzing:
		return StageAnalyze
	}
	return ""
}

// Run executes one stage for a project. It refuses to start while another
// job of the project is running (db.ErrJobRunning) and skips, without a job
// record, a stage the project state has moved past (model.ErrStaleStage). A
// failing stage leaves the project in the state it started from, so the stage
// can be retried.
func (o *Orchestrator) Run(ctx context.Context, name, projectID string) error {
	st, ok := stages[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}

	job, err := o.store.BeginJob(ctx, projectID, name)
	if err != nil {
		return err
	}

	log := logger.With(zap.String("project", projectID), zap.String("stage", name), zap.String("job", job.ID))
	start := time.Now()

	project, artifacts, err := o.store.GetProjectArtifacts(ctx, projectID)
	if err != nil {
		o.fail(ctx, log, job, "", name, start, err)
		return err
	}
	startState := project.State

	if !startsFrom(st, startState) {
		if err := o.store.DiscardJob(context.WithoutCancel(ctx), job); err != nil {
			log.Error("Could not discard stale job", zap.Error(err))
		}
		o.metrics.observeStage(name, "skipped", time.Since(start))
		return fmt.Errorf("%w: %s in state %s", model.ErrStaleStage, name, startState)
	}

	current := startState
	if st.during != "" {
		if current, err = model.Advance(startState, st.during); err != nil {
			o.fail(ctx, log, job, startState, name, start, err)
			return err
		}
		if err := o.store.SetState(ctx, projectID, current); err != nil {
			o.fail(ctx, log, job, startState, name, start, err)
			return err
		}
		project.State = current
	}

	log.Info("Stage started", zap.String("state", string(current)))

	next, err := st.fn(o, ctx, &run{project: project, artifacts: artifacts, log: log})
	if err == nil {
		_, err = model.Advance(current, next)
	}
	if err != nil {
		o.fail(ctx, log, job, startState, name, start, err)
		return err
	}

	if err := o.store.CommitStage(ctx, job, next, artifacts); err != nil {
		o.fail(ctx, log, job, startState, name, start, err)
		return err
	}

	o.metrics.observeStage(name, "done", time.Since(start))
	log.Info("Stage finished", zap.String("state", string(next)), zap.Duration("duration", time.Since(start)))

	return o.continueFrom(ctx, projectID, next)
}

func startsFrom(st stage, s model.State) bool {
	for _, f := range st.from {
		if f == s {
			return true
		}
	}
	return false
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, job *model.Job, restore model.State, name string, start time.Time, cause error) {
	o.metrics.observeStage(name, "error", time.Since(start))
	log.Error("Stage failed", zap.Error(cause), zap.Duration("duration", time.Since(start)))

	// the stage context may be the reason for the failure
	if err := o.store.FailStage(context.WithoutCancel(ctx), job, restore, cause); err != nil {
		log.Error("Could not record stage failure", zap.Error(err))
	}
}

// continueFrom enqueues the stage that follows a project entering state s.
func (o *Orchestrator) continueFrom(ctx context.Context, projectID string, s model.State) error {
	var delay time.Duration
	switch s {
	case model.StateCaddError, model.StateDone:
		// both wait for the user
		return nil
	case model.StateCaddWaiting:
		delay = o.opts.ScoreRetry
	}

	next := StageFor(s)
	if next == "" {
		return nil
	}
	if err := o.dispatch.Enqueue(ctx, next, projectID, nil, delay); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", next, projectID, err)
	}
	return nil
}

// Process starts (or resumes) the pipeline of a project from its current
// state. It returns the name of the enqueued stage, or "" when the project
// is done.
func (o *Orchestrator) Process(ctx context.Context, projectID string) (string, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	next := StageFor(p.State)
	if next == "" {
		return "", nil
	}
	if err := o.dispatch.Enqueue(ctx, next, projectID, nil, 0); err != nil {
		return "", err
	}
	return next, nil
}

// CheckScores asks for an immediate scoring check. Only meaningful while the
// project waits on the scoring service.
func (o *Orchestrator) CheckScores(ctx context.Context, projectID string) error {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !startsFrom(stages[StageCheckScores], p.State) {
		return fmt.Errorf("%w: no scoring check in state %s", model.ErrInvalidTransition, p.State)
	}
	return o.dispatch.Enqueue(ctx, StageCheckScores, projectID, nil, 0)
}

// ResumeWaiting enqueues a scoring check for every project waiting on the
// scoring service. Pending checks do not survive a restart.
func (o *Orchestrator) ResumeWaiting(ctx context.Context) (int, error) {
	projects, err := o.store.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range projects {
		if p.State != model.StateCaddWaiting {
			continue
		}
		if err := o.dispatch.Enqueue(ctx, StageCheckScores, p.ID, nil, 0); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
