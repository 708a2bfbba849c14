// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuardMarkAndClear(t *testing.T) {
	g := NewGuardSet(time.Minute)

	assert.False(t, g.ActiveForLoop("loop-1"))

	g.Mark("loop-1", "p-1")
	assert.True(t, g.Active("loop-1", "p-1"))
	assert.True(t, g.ActiveForLoop("loop-1"))
	assert.False(t, g.ActiveForLoop("loop-2"))

	g.Clear("loop-1", "p-1")
	assert.False(t, g.ActiveForLoop("loop-1"))
}

func TestGuardExpiresAfterStaleWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuardSet(2 * time.Second)
	g.now = func() time.Time { return now }

	g.Mark("loop-1", "p-1")
	assert.True(t, g.ActiveForLoop("loop-1"))

	// Within the window the guard holds.
	now = now.Add(1500 * time.Millisecond)
	assert.True(t, g.ActiveForLoop("loop-1"))

	// Past the window it expires on its own, even without an ack.
	now = now.Add(time.Second)
	assert.False(t, g.ActiveForLoop("loop-1"))
	assert.False(t, g.Active("loop-1", "p-1"))
}

func TestGuardRemarkRefreshesClock(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuardSet(2 * time.Second)
	g.now = func() time.Time { return now }

	g.Mark("loop-1", "p-1")
	now = now.Add(1500 * time.Millisecond)
	g.Mark("loop-1", "p-1") // another keystroke

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, g.ActiveForLoop("loop-1"), "re-mark must restart the stale clock")
}

func TestGuardLoopIsolation(t *testing.T) {
	g := NewGuardSet(time.Minute)
	g.Mark("loop-1", "p-1")
	g.Mark("loop-2", "p-9")

	g.ClearLoop("loop-1")
	assert.False(t, g.ActiveForLoop("loop-1"))
	assert.True(t, g.ActiveForLoop("loop-2"))
}
