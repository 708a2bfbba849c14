// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package loop_test

import (
	"testing"
	"time"

	"github.com/tandem-dev/tandem/internal/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTemperature(t *testing.T) {
	assert.Equal(t, 0.0, loop.ClampTemperature(-0.5))
	assert.Equal(t, 2.0, loop.ClampTemperature(3.1))
	assert.Equal(t, 0.7, loop.ClampTemperature(0.7))
}

func TestClampMaxTokens(t *testing.T) {
	assert.Equal(t, 100, loop.ClampMaxTokens(1))
	assert.Equal(t, 8000, loop.ClampMaxTokens(100000))
	assert.Equal(t, 4000, loop.ClampMaxTokens(4000))
}

func TestSortedParticipantsAndReindex(t *testing.T) {
	l := &loop.Loop{
		Participants: []*loop.Participant{
			{ID: "c", OrderIndex: 7},
			{ID: "a", OrderIndex: 2},
			{ID: "b", OrderIndex: 5},
		},
	}

	ordered := l.SortedParticipants()
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{ordered[0].ID, ordered[1].ID, ordered[2].ID})

	// Reindex restores a contiguous 0..N-1 sequence in the same order.
	l.Reindex()
	ordered = l.SortedParticipants()
	for i, p := range ordered {
		assert.Equal(t, i, p.OrderIndex)
	}
	assert.Equal(t, []string{"a", "b", "c"}, []string{ordered[0].ID, ordered[1].ID, ordered[2].ID})
}

func TestNextParticipantCyclesInOrder(t *testing.T) {
	l := &loop.Loop{
		Participants: []*loop.Participant{
			{ID: "p2", OrderIndex: 1},
			{ID: "p1", OrderIndex: 0},
			{ID: "p3", OrderIndex: 2},
		},
	}

	// The user seed message hands the turn to the first participant.
	assert.Equal(t, "p1", l.NextParticipant(loop.SenderUser).ID)
	assert.Equal(t, "p2", l.NextParticipant("p1").ID)
	assert.Equal(t, "p3", l.NextParticipant("p2").ID)
	// Wraps around at the end.
	assert.Equal(t, "p1", l.NextParticipant("p3").ID)
	// Unknown sender restarts at the beginning.
	assert.Equal(t, "p1", l.NextParticipant("gone").ID)
}

func TestNextParticipantEmptyLoop(t *testing.T) {
	l := &loop.Loop{}
	assert.Nil(t, l.NextParticipant(loop.SenderUser))
}

func TestCloneIsDeep(t *testing.T) {
	mt := 5
	l := &loop.Loop{
		ID:            "loop-1",
		Participants:  []*loop.Participant{{ID: "p1", DisplayName: "AI 1"}},
		StopSequences: []*loop.StopSequence{{ID: "s1", StopCondition: "DONE"}},
		Messages:      []*loop.Message{{ID: "m1", Content: "hello"}},
		MaxTurns:      &mt,
	}

	c := l.Clone()
	c.Participants[0].DisplayName = "changed"
	c.StopSequences[0].StopCondition = "changed"
	c.Messages[0].Content = "changed"
	*c.MaxTurns = 9

	assert.Equal(t, "AI 1", l.Participants[0].DisplayName)
	assert.Equal(t, "DONE", l.StopSequences[0].StopCondition)
	assert.Equal(t, "hello", l.Messages[0].Content)
	assert.Equal(t, 5, *l.MaxTurns)
}

func TestChangedHeuristic(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := &loop.Loop{
		Status:   loop.StatusRunning,
		Messages: []*loop.Message{{ID: "m1", Content: "Thinking...", Timestamp: ts}},
	}

	same := base.Clone()
	assert.False(t, loop.Changed(base, same))

	statusFlip := base.Clone()
	statusFlip.Status = loop.StatusPaused
	assert.True(t, loop.Changed(base, statusFlip))

	grown := base.Clone()
	grown.Messages = append(grown.Messages, &loop.Message{ID: "m2", Content: "hi", Timestamp: ts})
	assert.True(t, loop.Changed(base, grown))

	// The placeholder -> response transition edits the last message in place:
	// same count, different content. Must register as a change.
	rewritten := base.Clone()
	rewritten.Messages[0].Content = "an actual answer"
	assert.True(t, loop.Changed(base, rewritten))

	// Metadata-only churn (updated_at, title) is not a change.
	touched := base.Clone()
	touched.Title = "renamed"
	touched.UpdatedAt = ts.Add(time.Minute)
	assert.False(t, loop.Changed(base, touched))
}

func TestDedupeByID(t *testing.T) {
	a := &loop.Loop{ID: "a"}
	b := &loop.Loop{ID: "b"}
	dup := &loop.Loop{ID: "a", Title: "duplicate insert"}

	out := loop.DedupeByID([]*loop.Loop{a, b, dup, nil})
	require.Len(t, out, 2)
	assert.Same(t, a, out[0])
	assert.Same(t, b, out[1])
}

func TestSortByUpdatedNewestFirst(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := &loop.Loop{ID: "old", UpdatedAt: t0}
	mid := &loop.Loop{ID: "mid", UpdatedAt: t0.Add(time.Hour)}
	newest := &loop.Loop{ID: "new", UpdatedAt: t0.Add(2 * time.Hour)}

	loops := []*loop.Loop{old, newest, mid}
	loop.SortByUpdated(loops)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{loops[0].ID, loops[1].ID, loops[2].ID})
}

func TestParticipantUpdateMergeLastWins(t *testing.T) {
	first := loop.ParticipantUpdate{Temperature: loop.Ptr(0.3), DisplayName: loop.Ptr("one")}
	second := loop.ParticipantUpdate{Temperature: loop.Ptr(0.9)}

	merged := first.Merge(second)
	assert.Equal(t, 0.9, *merged.Temperature)
	assert.Equal(t, "one", *merged.DisplayName)
}

func TestParticipantUpdateClamped(t *testing.T) {
	u := loop.ParticipantUpdate{Temperature: loop.Ptr(5.0), MaxTokens: loop.Ptr(10)}
	c := u.Clamped()
	assert.Equal(t, 2.0, *c.Temperature)
	assert.Equal(t, 100, *c.MaxTokens)
	// Original is untouched.
	assert.Equal(t, 5.0, *u.Temperature)
}

func TestParticipantUpdateApplyTo(t *testing.T) {
	p := &loop.Participant{DisplayName: "AI 1", Model: "m-old", Temperature: 0.7}
	u := loop.ParticipantUpdate{Model: loop.Ptr("m-new"), Temperature: loop.Ptr(1.2)}
	u.ApplyTo(p)

	assert.Equal(t, "AI 1", p.DisplayName)
	assert.Equal(t, "m-new", p.Model)
	assert.Equal(t, 1.2, p.Temperature)
}

func TestStopSequenceUpdateEqualAndEmpty(t *testing.T) {
	assert.True(t, loop.StopSequenceUpdate{}.IsEmpty())

	a := loop.StopSequenceUpdate{StopCondition: loop.Ptr("STOP")}
	b := loop.StopSequenceUpdate{StopCondition: loop.Ptr("STOP")}
	c := loop.StopSequenceUpdate{StopCondition: loop.Ptr("HALT")}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(loop.StopSequenceUpdate{}))
}
