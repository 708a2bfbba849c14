// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

// Package session keeps client-side loop state reconciled with the backend.
// It owns the authoritative local copies, the edit buffers that debounce
// field changes, and the pollers that refresh running loops.
package session

import (
	"sync"
	"time"
)

// GuardSet tracks entities with uncommitted or just-committed edits. While a
// guard is active, polled aggregates must not overwrite the loop that owns
// the entity. Guards expire after the stale window so a lost acknowledgment
// cannot block refreshes forever.
type GuardSet struct {
	mu    sync.Mutex
	stale time.Duration
	now   func() time.Time
	marks map[string]map[string]time.Time
}

// NewGuardSet creates a guard set with the given stale window.
func NewGuardSet(stale time.Duration) *GuardSet {
	return &GuardSet{
		stale: stale,
		now:   time.Now,
		marks: make(map[string]map[string]time.Time),
	}
}

// Mark records a pending edit for the entity. Re-marking refreshes the stale
// clock.
func (g *GuardSet) Mark(loopID, entityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	byEntity, ok := g.marks[loopID]
	if !ok {
		byEntity = make(map[string]time.Time)
		g.marks[loopID] = byEntity
	}
	byEntity[entityID] = g.now()
}

// Clear drops the guard for the entity, if any.
func (g *GuardSet) Clear(loopID, entityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	byEntity, ok := g.marks[loopID]
	if !ok {
		return
	}
	delete(byEntity, entityID)
	if len(byEntity) == 0 {
		delete(g.marks, loopID)
	}
}

// ClearLoop drops every guard belonging to the loop.
func (g *GuardSet) ClearLoop(loopID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.marks, loopID)
}

// Active reports whether the entity currently holds a fresh guard.
func (g *GuardSet) Active(loopID, entityID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	byEntity, ok := g.marks[loopID]
	if !ok {
		return false
	}
	marked, ok := byEntity[entityID]
	if !ok {
		return false
	}
	if g.now().Sub(marked) > g.stale {
		delete(byEntity, entityID)
		return false
	}
	return true
}

// ActiveForLoop reports whether any entity of the loop holds a fresh guard.
// Expired guards are pruned on the way.
func (g *GuardSet) ActiveForLoop(loopID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	byEntity, ok := g.marks[loopID]
	if !ok {
		return false
	}

	cutoff := g.now().Add(-g.stale)
	active := false
	for entityID, marked := range byEntity {
		if marked.Before(cutoff) {
			delete(byEntity, entityID)
			continue
		}
		active = true
	}
	if len(byEntity) == 0 {
		delete(g.marks, loopID)
	}
	return active
}
