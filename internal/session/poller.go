// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// PollerConfig tunes one loop's refresh cadence.
type PollerConfig struct {
	// FastPoll applies while the loop is running.
	FastPoll time.Duration
	// SlowPoll applies while the loop is paused, to notice server-side
	// resumption.
	SlowPoll time.Duration
	// Backstop is the absolute lifetime of one polling arm. When it elapses
	// the poller reports a timeout and stops, so a loop stuck in running can
	// never keep a client polling forever.
	Backstop time.Duration
}

// Poller periodically refreshes a single loop while it is active. The next
// interval always derives from the most recently observed status; a loop
// that reaches stopped disarms the poller.
type Poller struct {
	loopID string
	cfg    PollerConfig
	fetch  func(ctx context.Context) (*loop.Loop, error)
	// apply hands a fresh aggregate to the owner and reports whether polling
	// should continue.
	apply     func(next *loop.Loop) bool
	onTimeout func(loopID string, err error)
	log       *slog.Logger
}

// NewPoller creates a poller for one loop.
func NewPoller(loopID string, cfg PollerConfig, fetch func(ctx context.Context) (*loop.Loop, error), apply func(*loop.Loop) bool, onTimeout func(string, error), log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if onTimeout == nil {
		onTimeout = func(string, error) {}
	}
	return &Poller{
		loopID:    loopID,
		cfg:       cfg,
		fetch:     fetch,
		apply:     apply,
		onTimeout: onTimeout,
		log:       log,
	}
}

// Run polls until the loop stops, the context is cancelled, or the backstop
// elapses. It blocks; callers run it in a goroutine.
func (p *Poller) Run(ctx context.Context, initial loop.Status) {
	deadline := time.NewTimer(p.cfg.Backstop)
	defer deadline.Stop()

	status := initial
	for {
		interval := p.intervalFor(status)
		if interval <= 0 {
			return
		}

		tick := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			tick.Stop()
			return
		case <-deadline.C:
			tick.Stop()
			p.log.Warn("polling backstop reached", "loop_id", p.loopID, "backstop", p.cfg.Backstop)
			p.onTimeout(p.loopID, tanderr.New(tanderr.CodeSessionPollBackstop,
				"polling gave up after "+p.cfg.Backstop.String(), tanderr.FieldLoopID(p.loopID)))
			return
		case <-tick.C:
		}

		next, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if tanderr.IsRejection(err) {
				// The loop no longer exists server-side; nothing to poll.
				p.log.Info("poll target gone", "loop_id", p.loopID, "error", err)
				return
			}
			// Transient transport trouble; keep the cadence and retry.
			p.log.Debug("poll failed", "loop_id", p.loopID, "error", err)
			continue
		}

		if !p.apply(next) {
			return
		}
		status = next.Status
	}
}

func (p *Poller) intervalFor(status loop.Status) time.Duration {
	switch status {
	case loop.StatusRunning:
		return p.cfg.FastPoll
	case loop.StatusPaused:
		return p.cfg.SlowPoll
	default:
		return 0
	}
}
