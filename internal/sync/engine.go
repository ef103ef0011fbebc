package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"example.com/lifeline/agent/internal/repositories"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Status is the aggregate view exposed to observers: outbox counts, the last
// completed cycle and the last error either half of the cycle produced.
type Status struct {
	Pending         int64      `json:"pending"`
	Accepted        int64      `json:"accepted"`
	Rejected        int64      `json:"rejected"`
	LastCycleAt     *time.Time `json:"last_cycle_at"`
	LastError       string     `json:"last_error,omitempty"`
	CycleInProgress bool       `json:"cycle_in_progress"`
}

// PushRunner drains the outbox; satisfied by *Pusher
type PushRunner interface {
	Push(ctx context.Context) (PushOutcome, error)
}

// PullRunner walks the inbound stream; satisfied by *Puller
type PullRunner interface {
	Pull(ctx context.Context) (PullOutcome, error)
}

// Engine orchestrates synchronization cycles: push before pull, at most one
// cycle in flight, errors contained and surfaced only through Status.
type Engine struct {
	queue  *repositories.QueueRepository
	pusher PushRunner
	puller PullRunner

	// Optional connectivity signal; nil means always attempt the cycle.
	online func() bool

	inFlight atomic.Bool

	mu     sync.RWMutex
	status Status

	schedMu   sync.Mutex
	scheduler gocron.Scheduler
}

// NewEngine creates a new sync engine
func NewEngine(queue *repositories.QueueRepository, pusher PushRunner, puller PullRunner, online func() bool) *Engine {
	return &Engine{
		queue:  queue,
		pusher: pusher,
		puller: puller,
		online: online,
	}
}

// RunCycle executes one full synchronization cycle. Invoking it while a cycle
// is already in progress is a no-op: the second caller neither blocks nor
// starts a second pusher/puller pair. A cycle that has started always runs to
// completion and always clears the in-progress flag.
func (e *Engine) RunCycle(ctx context.Context) {
	if e.online != nil && !e.online() {
		log.Debug().Msg("Skipping sync cycle, device is offline")
		return
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		log.Debug().Msg("Sync cycle already in progress, skipping")
		return
	}
	defer e.inFlight.Store(false)

	var cycleErr error

	// Push before pull: locally-originated changes reach the server before
	// the pull can echo state that has not seen them.
	pushOutcome, err := e.pusher.Push(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Push failed")
		cycleErr = errors.Wrap(err, "push")
	}

	pullOutcome, err := e.puller.Pull(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Pull halted with error")
		if cycleErr == nil {
			cycleErr = errors.Wrap(err, "pull")
		}
	}

	stats, err := e.queue.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh queue stats")
		if cycleErr == nil {
			cycleErr = errors.Wrap(err, "stats")
		}
	}

	now := time.Now()

	e.mu.Lock()
	e.status.Pending = stats.Pending
	e.status.Accepted = stats.Accepted
	e.status.Rejected = stats.Rejected
	e.status.LastCycleAt = &now
	if cycleErr != nil {
		e.status.LastError = cycleErr.Error()
	} else {
		e.status.LastError = ""
	}
	e.mu.Unlock()

	log.Info().
		Int("pushed", pushOutcome.Pushed).
		Int("push_errors", pushOutcome.Errors).
		Int("pulled", pullOutcome.Pulled).
		Msg("Sync cycle completed")
}

// StartPeriodic triggers one immediate cycle and then one cycle per interval
// until StopPeriodic is called
func (e *Engine) StartPeriodic(ctx context.Context, interval time.Duration) error {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	if e.scheduler != nil {
		return errors.New("periodic sync already started")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "failed to create scheduler")
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			e.RunCycle(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule sync job")
	}

	scheduler.Start()
	e.scheduler = scheduler

	log.Info().Dur("interval", interval).Msg("Periodic sync started")

	return nil
}

// StopPeriodic cancels the timer. A cycle already in flight runs to
// completion.
func (e *Engine) StopPeriodic() error {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	if e.scheduler == nil {
		return nil
	}

	err := e.scheduler.Shutdown()
	e.scheduler = nil
	if err != nil {
		return errors.Wrap(err, "failed to stop scheduler")
	}

	log.Info().Msg("Periodic sync stopped")

	return nil
}

// Stats returns fresh outbox counts straight from the queue store
func (e *Engine) Stats(ctx context.Context) (repositories.QueueStats, error) {
	return e.queue.Stats(ctx)
}

// Status returns a snapshot of the engine's aggregate state
func (e *Engine) Status() Status {
	e.mu.RLock()
	status := e.status
	e.mu.RUnlock()

	status.CycleInProgress = e.inFlight.Load()
	return status
}
