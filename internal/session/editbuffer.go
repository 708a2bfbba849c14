// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// EditState is the lifecycle of a buffered edit.
type EditState int

const (
	EditIdle EditState = iota
	EditPending
	EditSaving
	EditSaved
	EditError
)

func (s EditState) String() string {
	switch s {
	case EditPending:
		return "pending"
	case EditSaving:
		return "saving"
	case EditSaved:
		return "saved"
	case EditError:
		return "error"
	default:
		return "idle"
	}
}

// Patch is a partial entity edit that can be accumulated across keystrokes.
type Patch[P any] interface {
	Merge(P) P
	IsEmpty() bool
	Equal(P) bool
}

// CommitFunc persists an accumulated patch for one entity.
type CommitFunc[P any] func(ctx context.Context, entityID string, patch P) error

// StateFunc observes edit state transitions for one entity.
type StateFunc func(entityID string, state EditState, err error)

// Buffer accumulates partial edits per entity and commits them after a quiet
// period. Continuous inputs (text, sliders) wait out the debounce window so a
// burst of keystrokes becomes one request; discrete inputs commit at once.
// Each queued edit marks the owning loop's guard so a poll arriving mid-edit
// cannot clobber the uncommitted value, and the guard is held for a short
// grace period after the server acknowledges, covering a pre-commit read that
// is still in flight.
type Buffer[P Patch[P]] struct {
	loopID   string
	debounce time.Duration
	grace    time.Duration
	guards   *GuardSet
	commit   CommitFunc[P]
	onState  StateFunc
	log      *slog.Logger

	mu    sync.Mutex
	edits map[string]*bufferedEdit[P]
}

type bufferedEdit[P Patch[P]] struct {
	patch P
	state EditState
	err   error
	// gen invalidates timers that fire after being superseded.
	gen   uint64
	timer *time.Timer
}

// NewBuffer creates an edit buffer for one loop's entities.
func NewBuffer[P Patch[P]](loopID string, debounce, grace time.Duration, guards *GuardSet, commit CommitFunc[P], onState StateFunc, log *slog.Logger) *Buffer[P] {
	if onState == nil {
		onState = func(string, EditState, error) {}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Buffer[P]{
		loopID:   loopID,
		debounce: debounce,
		grace:    grace,
		guards:   guards,
		commit:   commit,
		onState:  onState,
		log:      log,
		edits:    make(map[string]*bufferedEdit[P]),
	}
}

// Queue merges a patch into the entity's pending edit. Discrete edits commit
// immediately; continuous ones restart the debounce timer, so only the last
// keystroke of a burst schedules the actual commit.
func (b *Buffer[P]) Queue(ctx context.Context, entityID string, patch P, discrete bool) {
	if patch.IsEmpty() {
		return
	}

	b.mu.Lock()
	edit, ok := b.edits[entityID]
	if !ok {
		edit = &bufferedEdit[P]{}
		b.edits[entityID] = edit
	}
	if edit.timer != nil {
		edit.timer.Stop()
		edit.timer = nil
	}
	edit.patch = edit.patch.Merge(patch)
	edit.state = EditPending
	edit.err = nil
	edit.gen++
	gen := edit.gen

	b.guards.Mark(b.loopID, entityID)

	if discrete {
		b.mu.Unlock()
		b.onState(entityID, EditPending, nil)
		b.flush(ctx, entityID, gen)
		return
	}

	edit.timer = time.AfterFunc(b.debounce, func() {
		b.flush(ctx, entityID, gen)
	})
	b.mu.Unlock()
	b.onState(entityID, EditPending, nil)
}

// Flush commits the entity's pending edit right away, e.g. when focus leaves
// a field before the debounce window elapses.
func (b *Buffer[P]) Flush(ctx context.Context, entityID string) {
	b.mu.Lock()
	edit, ok := b.edits[entityID]
	if !ok || edit.state != EditPending {
		b.mu.Unlock()
		return
	}
	if edit.timer != nil {
		edit.timer.Stop()
		edit.timer = nil
	}
	gen := edit.gen
	b.mu.Unlock()

	b.flush(ctx, entityID, gen)
}

// FlushAll commits every pending edit. Used on shutdown and before lifecycle
// transitions so a start request never races a half-typed prompt.
func (b *Buffer[P]) FlushAll(ctx context.Context) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.edits))
	for id, edit := range b.edits {
		if edit.state == EditPending {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Flush(ctx, id)
	}
}

// State returns the entity's current edit state.
func (b *Buffer[P]) State(entityID string) (EditState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	edit, ok := b.edits[entityID]
	if !ok {
		return EditIdle, nil
	}
	return edit.state, edit.err
}

// Pending returns the accumulated uncommitted patch for the entity, so views
// can render the in-flight value instead of the stale authoritative one.
func (b *Buffer[P]) Pending(entityID string) (P, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero P
	edit, ok := b.edits[entityID]
	if !ok || (edit.state != EditPending && edit.state != EditSaving) {
		return zero, false
	}
	return edit.patch, true
}

func (b *Buffer[P]) flush(ctx context.Context, entityID string, gen uint64) {
	b.mu.Lock()
	edit, ok := b.edits[entityID]
	if !ok || edit.gen != gen || edit.state != EditPending {
		// Superseded by a newer keystroke; its own timer will commit.
		b.mu.Unlock()
		return
	}
	patch := edit.patch
	edit.state = EditSaving
	b.mu.Unlock()

	b.onState(entityID, EditSaving, nil)

	err := b.commit(ctx, entityID, patch)

	b.mu.Lock()
	edit, ok = b.edits[entityID]
	if !ok || edit.gen != gen {
		// New edits arrived while the commit was in flight; they hold their
		// own guard and will commit on their own schedule.
		b.mu.Unlock()
		return
	}

	if err != nil {
		edit.state = EditError
		edit.err = tanderr.Wrap(err, tanderr.CodeSessionEditCommitFailure, "committing edit",
			tanderr.FieldLoopID(b.loopID), tanderr.FieldEntityID(entityID))
		reported := edit.err
		b.guards.Clear(b.loopID, entityID)
		b.mu.Unlock()

		b.log.Warn("edit commit failed", "loop_id", b.loopID, "entity_id", entityID, "error", err)
		b.onState(entityID, EditError, reported)
		return
	}

	edit.state = EditSaved
	b.mu.Unlock()

	b.onState(entityID, EditSaved, nil)

	// The acknowledged aggregate already reflects the edit, but a poll read
	// started before the commit may still deliver the old value. Hold the
	// guard for the grace window, then let refreshes through again.
	time.AfterFunc(b.grace, func() {
		b.mu.Lock()
		edit, ok := b.edits[entityID]
		if !ok || edit.gen != gen {
			b.mu.Unlock()
			return
		}
		delete(b.edits, entityID)
		b.mu.Unlock()

		b.guards.Clear(b.loopID, entityID)
		b.onState(entityID, EditIdle, nil)
	})
}
