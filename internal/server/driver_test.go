// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package server

import (
	"log/slog"
	"testing"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedLoop(t *testing.T, reg *Registry, participants ...ParticipantPayload) *loop.Loop {
	t.Helper()

	l := reg.Create("test")
	for _, p := range participants {
		_, _, err := reg.AddParticipant(l.ID, p)
		require.NoError(t, err)
	}
	started, err := reg.Start(l.ID, "seed prompt")
	require.NoError(t, err)
	return started
}

func step(reg *Registry) {
	reg.step(slog.Default())
}

func TestDriverAlternatesPlaceholderAndResponse(t *testing.T) {
	reg := NewRegistry()
	l := startedLoop(t, reg,
		ParticipantPayload{Model: "model-a", UserPrompt: "answer: {prior_output}"},
	)

	// First tick: the first participant goes into its thinking phase.
	step(reg)
	got, err := reg.Get(l.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, ThinkingPlaceholder, got.LastMessage().Content)
	assert.Equal(t, 0, got.CurrentTurn)

	// Second tick: the placeholder is rewritten in place with the rendered
	// prompt, prior output substituted.
	step(reg)
	got, err = reg.Get(l.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "[model-a] answer: seed prompt", got.LastMessage().Content)
	assert.Equal(t, 1, got.CurrentTurn)
}

func TestDriverCyclesParticipantsInOrder(t *testing.T) {
	reg := NewRegistry()
	l := startedLoop(t, reg,
		ParticipantPayload{Model: "model-a", DisplayName: "Pro"},
		ParticipantPayload{Model: "model-b", DisplayName: "Con"},
	)

	for i := 0; i < 8; i++ {
		step(reg)
	}

	got, err := reg.Get(l.ID)
	require.NoError(t, err)

	senders := make([]string, 0)
	for _, m := range got.Messages[1:] {
		senders = append(senders, got.Participant(m.Sender).DisplayName)
	}
	// 8 half-ticks produce 4 completed turns alternating Pro, Con.
	assert.Equal(t, []string{"Pro", "Con", "Pro", "Con"}, senders)
}

func TestDriverLiteralStopConditionStopsLoop(t *testing.T) {
	reg := NewRegistry()
	l := startedLoop(t, reg,
		ParticipantPayload{Model: "model-a", UserPrompt: "we are AGREED on {prior_output}"},
	)
	_, _, err := reg.AddStopSequence(l.ID, ParticipantPayload{Model: "judge", StopCondition: "AGREED"})
	require.NoError(t, err)

	step(reg) // placeholder
	step(reg) // response contains AGREED

	got, err := reg.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusStopped, got.Status)
}

func TestDriverModelJudgedConditionNeverMatches(t *testing.T) {
	reg := NewRegistry()
	l := startedLoop(t, reg,
		ParticipantPayload{Model: "model-a", UserPrompt: "we are AGREED"},
	)
	// A system prompt means the condition needs a model verdict; the
	// synthetic driver cannot provide one.
	_, _, err := reg.AddStopSequence(l.ID, ParticipantPayload{
		Model: "judge", StopCondition: "AGREED", SystemPrompt: "judge consensus",
	})
	require.NoError(t, err)

	step(reg)
	step(reg)

	got, err := reg.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusRunning, got.Status)
}

func TestDriverStopsAtMaxTurns(t *testing.T) {
	reg := NewRegistry()
	l := startedLoop(t, reg, ParticipantPayload{Model: "model-a"})

	mt := 2
	_, err := reg.SetMaxTurns(l.ID, &mt)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		step(reg)
	}

	got, err := reg.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, loop.StatusStopped, got.Status)
	assert.Equal(t, 2, got.CurrentTurn)
}

func TestDriverIgnoresPausedLoops(t *testing.T) {
	reg := NewRegistry()
	l := startedLoop(t, reg, ParticipantPayload{Model: "model-a"})

	_, err := reg.Pause(l.ID)
	require.NoError(t, err)

	step(reg)
	step(reg)

	got, err := reg.Get(l.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1, "a paused loop must not advance")
}

func TestRegistryLifecycleConflicts(t *testing.T) {
	reg := NewRegistry()
	l := reg.Create("test")

	_, err := reg.Pause(l.ID)
	require.Error(t, err)
	assert.True(t, tanderr.IsConflict(err))

	_, err = reg.Resume(l.ID)
	require.Error(t, err)
	assert.True(t, tanderr.IsConflict(err))

	_, err = reg.Stop(l.ID)
	require.Error(t, err)
	assert.True(t, tanderr.IsConflict(err))

	// Reset of a stopped loop is allowed.
	_, err = reg.Reset(l.ID)
	require.NoError(t, err)
}

func TestRegistryStartRequiresParticipantsAndPrompt(t *testing.T) {
	reg := NewRegistry()
	l := reg.Create("test")

	_, err := reg.Start(l.ID, "go")
	require.Error(t, err)
	assert.Equal(t, 400, tanderr.HTTPStatus(err))

	_, _, err = reg.AddParticipant(l.ID, ParticipantPayload{Model: "m"})
	require.NoError(t, err)

	_, err = reg.Start(l.ID, "")
	require.Error(t, err)
	assert.Equal(t, 400, tanderr.HTTPStatus(err))
}

func TestRegistryResetPreservesConfiguration(t *testing.T) {
	reg := NewRegistry()
	l := startedLoop(t, reg, ParticipantPayload{Model: "model-a"})

	step(reg)
	step(reg)

	_, err := reg.Stop(l.ID)
	require.NoError(t, err)

	got, err := reg.Reset(l.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Equal(t, 0, got.CurrentTurn)
	assert.Len(t, got.Participants, 1)
}

func TestRegistryReorderRestoresContiguousIndices(t *testing.T) {
	reg := NewRegistry()
	l := reg.Create("test")

	var ids []string
	for _, m := range []string{"a", "b", "c"} {
		_, p, err := reg.AddParticipant(l.ID, ParticipantPayload{Model: m})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	got, err := reg.ReorderParticipants(l.ID, []string{ids[2], ids[0], ids[1]})
	require.NoError(t, err)

	ordered := got.SortedParticipants()
	assert.Equal(t, []string{ids[2], ids[0], ids[1]},
		[]string{ordered[0].ID, ordered[1].ID, ordered[2].ID})
	for i, p := range ordered {
		assert.Equal(t, i, p.OrderIndex)
	}
}

func TestRegistryRemoveParticipantClosesIndexGap(t *testing.T) {
	reg := NewRegistry()
	l := reg.Create("test")

	var ids []string
	for _, m := range []string{"a", "b", "c"} {
		_, p, err := reg.AddParticipant(l.ID, ParticipantPayload{Model: m})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	got, err := reg.RemoveParticipant(l.ID, ids[1])
	require.NoError(t, err)

	ordered := got.SortedParticipants()
	require.Len(t, ordered, 2)
	assert.Equal(t, 0, ordered[0].OrderIndex)
	assert.Equal(t, 1, ordered[1].OrderIndex)
}
