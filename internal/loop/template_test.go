// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package loop_test

import (
	"testing"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRoundTripPreservesOrder(t *testing.T) {
	mt := 12
	l := &loop.Loop{
		ID:       "loop-1",
		Title:    "Debate",
		MaxTurns: &mt,
		Participants: []*loop.Participant{
			{ID: "b", DisplayName: "Con", Model: "model-b", Temperature: 0.9, MaxTokens: 2000, OrderIndex: 1},
			{ID: "a", DisplayName: "Pro", Model: "model-a", Temperature: 0.4, MaxTokens: 4000, SystemPrompt: "argue for", OrderIndex: 0},
		},
		StopSequences: []*loop.StopSequence{
			{ID: "s", DisplayName: "Consensus", Model: "model-judge", StopCondition: "AGREED", OrderIndex: 0},
		},
		Messages: []*loop.Message{{ID: "m", Content: "transcript is not exported"}},
	}

	data, err := loop.MarshalTemplate(l.ToTemplate())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "transcript is not exported")

	parsed, err := loop.ParseTemplate(data)
	require.NoError(t, err)

	assert.Equal(t, "Debate", parsed.Title)
	require.NotNil(t, parsed.MaxTurns)
	assert.Equal(t, 12, *parsed.MaxTurns)

	// Slice position encodes the order, regardless of the source indices.
	require.Len(t, parsed.Participants, 2)
	assert.Equal(t, "Pro", parsed.Participants[0].DisplayName)
	assert.Equal(t, "Con", parsed.Participants[1].DisplayName)
	assert.Equal(t, "argue for", parsed.Participants[0].SystemPrompt)

	require.Len(t, parsed.StopSequences, 1)
	assert.Equal(t, "AGREED", parsed.StopSequences[0].StopCondition)
}

func TestParseTemplateRejectsEmptyParticipants(t *testing.T) {
	_, err := loop.ParseTemplate([]byte("title: empty\nparticipants: []\n"))
	require.Error(t, err)
	assert.True(t, tanderr.HasCode(err, tanderr.CodeTemplateInvalid))
}

func TestParseTemplateRejectsMissingModel(t *testing.T) {
	src := `
title: bad
participants:
  - display_name: nameless
`
	_, err := loop.ParseTemplate([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")
}

func TestParseTemplateRejectsStopSequenceWithoutCondition(t *testing.T) {
	src := `
title: bad
participants:
  - model: model-a
stop_sequences:
  - model: model-judge
`
	_, err := loop.ParseTemplate([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop_condition is required")
}

func TestParseTemplateRejectsMalformedYAML(t *testing.T) {
	_, err := loop.ParseTemplate([]byte("title: [unclosed"))
	require.Error(t, err)
	assert.True(t, tanderr.HasCode(err, tanderr.CodeTemplateInvalid))
}
