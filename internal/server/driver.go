// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tandem-dev/tandem/internal/loop"
)

// ThinkingPlaceholder is the transient content a participant's message holds
// while its turn is being produced. Clients detect the in-place rewrite to
// the real response through their content diff.
const ThinkingPlaceholder = "Thinking..."

// Driver advances every running loop one step per tick. Turns are synthetic:
// each participant's output is its rendered user prompt with the literal
// {prior_output} token replaced by the previous message. That is enough to
// exercise the whole client protocol, including literal stop conditions.
// Conditions that would need a model to judge never match here.
type Driver struct {
	reg      *Registry
	interval time.Duration
	log      *slog.Logger
}

// NewDriver creates a turn driver over the registry.
func NewDriver(reg *Registry, interval time.Duration, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{reg: reg, interval: interval, log: log}
}

// Run ticks until the context is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reg.step(d.log)
		}
	}
}

// step advances each running loop by half a turn: placeholder in, then the
// finished response on the next tick.
func (r *Registry) step(log *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.loops {
		if l.Status != loop.StatusRunning {
			continue
		}
		r.advanceTurn(l, log)
	}
}

func (r *Registry) advanceTurn(l *loop.Loop, log *slog.Logger) {
	last := l.LastMessage()
	if last == nil {
		// A running loop without a seed message is unreachable through the
		// API; stop it rather than spin.
		l.Status = loop.StatusStopped
		return
	}

	now := r.now()

	if last.Sender != loop.SenderUser && last.Content == ThinkingPlaceholder {
		p := l.Participant(last.Sender)
		if p == nil {
			// The participant was removed mid-turn.
			l.Messages = l.Messages[:len(l.Messages)-1]
			l.UpdatedAt = now
			return
		}

		last.Content = synthesize(p, r.priorOutput(l))
		last.Timestamp = now
		l.CurrentTurn++
		l.UpdatedAt = now

		if stop := matchedStop(l, last.Content); stop != nil {
			log.Info("stop condition matched", "loop_id", l.ID, "stop_id", stop.ID, "condition", stop.StopCondition)
			l.Status = loop.StatusStopped
			return
		}
		if l.MaxTurns != nil && l.CurrentTurn >= *l.MaxTurns {
			log.Info("max turns reached", "loop_id", l.ID, "turns", l.CurrentTurn)
			l.Status = loop.StatusStopped
		}
		return
	}

	next := l.NextParticipant(last.Sender)
	if next == nil {
		l.Status = loop.StatusStopped
		l.UpdatedAt = now
		return
	}

	l.Messages = append(l.Messages, &loop.Message{
		ID:        uuid.NewString(),
		Sender:    next.ID,
		Content:   ThinkingPlaceholder,
		Timestamp: now,
	})
	l.UpdatedAt = now
}

// priorOutput is the content of the newest completed message, skipping a
// trailing placeholder.
func (r *Registry) priorOutput(l *loop.Loop) string {
	for i := len(l.Messages) - 1; i >= 0; i-- {
		m := l.Messages[i]
		if m.Content == ThinkingPlaceholder {
			continue
		}
		return m.Content
	}
	return ""
}

// synthesize renders a participant's turn. The output embeds the rendered
// user prompt so literal stop conditions can match against it.
func synthesize(p *loop.Participant, prior string) string {
	rendered := strings.ReplaceAll(p.UserPrompt, loop.PlaceholderPriorOutput, prior)
	if strings.TrimSpace(rendered) == "" {
		rendered = prior
	}
	return fmt.Sprintf("[%s] %s", p.Model, rendered)
}

// matchedStop returns the first stop sequence whose literal condition occurs
// in the content. Sequences with a system prompt require a model verdict and
// never match in the synthetic driver.
func matchedStop(l *loop.Loop, content string) *loop.StopSequence {
	for _, s := range l.SortedStopSequences() {
		if s.SystemPrompt != "" || s.StopCondition == "" {
			continue
		}
		if strings.Contains(content, s.StopCondition) {
			return s
		}
	}
	return nil
}
