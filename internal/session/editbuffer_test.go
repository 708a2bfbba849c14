// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commitRecorder struct {
	mu      sync.Mutex
	patches []loop.ParticipantUpdate
	ids     []string
	err     error
}

func (c *commitRecorder) commit(_ context.Context, entityID string, patch loop.ParticipantUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, entityID)
	c.patches = append(c.patches, patch)
	return c.err
}

func (c *commitRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.patches)
}

func (c *commitRecorder) last() loop.ParticipantUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patches[len(c.patches)-1]
}

func newTestBuffer(rec *commitRecorder, debounce, grace time.Duration) (*Buffer[loop.ParticipantUpdate], *GuardSet) {
	guards := NewGuardSet(time.Minute)
	b := NewBuffer("loop-1", debounce, grace, guards, rec.commit, nil, nil)
	return b, guards
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestBufferDebouncesBurstIntoOneCommit(t *testing.T) {
	rec := &commitRecorder{}
	b, _ := newTestBuffer(rec, 30*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	// A typing burst: each keystroke supersedes the previous timer.
	b.Queue(ctx, "p-1", loop.ParticipantUpdate{DisplayName: loop.Ptr("P")}, false)
	b.Queue(ctx, "p-1", loop.ParticipantUpdate{DisplayName: loop.Ptr("Pr")}, false)
	b.Queue(ctx, "p-1", loop.ParticipantUpdate{DisplayName: loop.Ptr("Pro")}, false)

	waitFor(t, func() bool { return rec.count() == 1 })
	assert.Equal(t, "Pro", *rec.last().DisplayName)

	// Nothing further arrives.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestBufferMergesDistinctFields(t *testing.T) {
	rec := &commitRecorder{}
	b, _ := newTestBuffer(rec, 20*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	b.Queue(ctx, "p-1", loop.ParticipantUpdate{Temperature: loop.Ptr(0.9)}, false)
	b.Queue(ctx, "p-1", loop.ParticipantUpdate{DisplayName: loop.Ptr("Pro")}, false)

	waitFor(t, func() bool { return rec.count() == 1 })
	got := rec.last()
	assert.Equal(t, 0.9, *got.Temperature)
	assert.Equal(t, "Pro", *got.DisplayName)
}

func TestBufferDiscreteCommitsImmediately(t *testing.T) {
	rec := &commitRecorder{}
	b, _ := newTestBuffer(rec, time.Hour, 10*time.Millisecond)
	ctx := context.Background()

	b.Queue(ctx, "p-1", loop.ParticipantUpdate{Model: loop.Ptr("model-b")}, true)
	assert.Equal(t, 1, rec.count(), "discrete edits must not wait out the debounce")
}

func TestBufferGuardsEntityUntilGraceElapses(t *testing.T) {
	rec := &commitRecorder{}
	b, guards := newTestBuffer(rec, 10*time.Millisecond, 40*time.Millisecond)
	ctx := context.Background()

	b.Queue(ctx, "p-1", loop.ParticipantUpdate{DisplayName: loop.Ptr("x")}, false)
	assert.True(t, guards.ActiveForLoop("loop-1"))

	waitFor(t, func() bool { return rec.count() == 1 })
	// Acknowledged but still inside the grace window.
	assert.True(t, guards.ActiveForLoop("loop-1"))

	waitFor(t, func() bool { return !guards.ActiveForLoop("loop-1") })

	state, err := b.State("p-1")
	assert.Equal(t, EditIdle, state)
	assert.NoError(t, err)
}

func TestBufferCommitFailureReleasesGuard(t *testing.T) {
	rec := &commitRecorder{err: errors.New("boom")}
	b, guards := newTestBuffer(rec, 5*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	b.Queue(ctx, "p-1", loop.ParticipantUpdate{DisplayName: loop.Ptr("x")}, false)

	waitFor(t, func() bool {
		state, _ := b.State("p-1")
		return state == EditError
	})

	_, stateErr := b.State("p-1")
	require.Error(t, stateErr)
	assert.True(t, tanderr.HasCode(stateErr, tanderr.CodeSessionEditCommitFailure))
	// A failed commit must not leave the entity guarded against refreshes.
	assert.False(t, guards.ActiveForLoop("loop-1"))
}

func TestBufferFlushCommitsEarly(t *testing.T) {
	rec := &commitRecorder{}
	b, _ := newTestBuffer(rec, time.Hour, 10*time.Millisecond)
	ctx := context.Background()

	b.Queue(ctx, "p-1", loop.ParticipantUpdate{UserPrompt: loop.Ptr("respond to {prior_output}")}, false)
	assert.Equal(t, 0, rec.count())

	b.Flush(ctx, "p-1")
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "respond to {prior_output}", *rec.last().UserPrompt)
}

func TestBufferEmptyPatchIgnored(t *testing.T) {
	rec := &commitRecorder{}
	b, guards := newTestBuffer(rec, 5*time.Millisecond, 5*time.Millisecond)

	b.Queue(context.Background(), "p-1", loop.ParticipantUpdate{}, true)
	assert.Equal(t, 0, rec.count())
	assert.False(t, guards.ActiveForLoop("loop-1"))
}

func TestBufferPendingExposesUncommittedValue(t *testing.T) {
	rec := &commitRecorder{}
	b, _ := newTestBuffer(rec, time.Hour, 10*time.Millisecond)

	b.Queue(context.Background(), "p-1", loop.ParticipantUpdate{DisplayName: loop.Ptr("draft")}, false)

	pending, ok := b.Pending("p-1")
	require.True(t, ok)
	assert.Equal(t, "draft", *pending.DisplayName)

	_, ok = b.Pending("p-2")
	assert.False(t, ok)
}
