// Package dispatch provides an in-process stage dispatcher: every enqueued
// stage runs on its own goroutine once its delay has passed. Nothing is
// persisted; stages pending at shutdown are dropped and picked up again
// through the project state.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yumyai/varenrich/logger"
	"github.com/yumyai/varenrich/pkg/db"
	"github.com/yumyai/varenrich/pkg/model"
)

var ErrClosed = errors.New("dispatcher is closed")

// Runner executes one stage of a project.
type Runner interface {
	Run(ctx context.Context, stage, projectID string) error
}

type Local struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	runner Runner
	timers map[*time.Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewLocal() *Local {
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*time.Timer]struct{}),
	}
}

// SetRunner wires the stage runner. The orchestrator needs the dispatcher
// at construction, so the runner is set afterwards.
func (l *Local) SetRunner(r Runner) {
	l.mu.Lock()
	l.runner = r
	l.mu.Unlock()
}

// Enqueue schedules stage for projectID after delay. args are accepted for
// interface compatibility and not used.
func (l *Local) Enqueue(_ context.Context, stage, projectID string, _ map[string]string, delay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	logger.Debug("Stage enqueued", zap.String("stage", stage), zap.String("project", projectID), zap.Duration("delay", delay))

	l.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		l.mu.Lock()
		delete(l.timers, t)
		runner := l.runner
		l.mu.Unlock()

		defer l.wg.Done()
		l.run(runner, stage, projectID)
	})
	l.timers[t] = struct{}{}
	return nil
}

func (l *Local) run(runner Runner, stage, projectID string) {
	if runner == nil {
		logger.Error("No runner for stage", zap.String("stage", stage), zap.String("project", projectID))
		return
	}
	if l.ctx.Err() != nil {
		return
	}

	err := runner.Run(l.ctx, stage, projectID)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrJobRunning):
		// the running job continues the chain itself
		logger.Warn("Stage skipped, project busy", zap.String("stage", stage), zap.String("project", projectID))
	case errors.Is(err, model.ErrStaleStage):
		logger.Info("Stage skipped, project state moved on", zap.String("stage", stage), zap.String("project", projectID))
	default:
		logger.Error("Stage run failed", zap.String("stage", stage), zap.String("project", projectID), zap.Error(err))
	}
}

// Close drops pending stages, cancels the running ones and waits for them
// to return.
func (l *Local) Close() {
	l.mu.Lock()
	l.closed = true
	for t := range l.timers {
		if t.Stop() {
			l.wg.Done()
		}
		delete(l.timers, t)
	}
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}
