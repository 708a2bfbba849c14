// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package loop

import (
	"sort"
	"time"
)

// Status represents the lifecycle state of a loop. It is server-authoritative:
// clients request transitions and never assign it directly.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

// SenderUser is the sentinel sender id for the seed message a start request
// injects into the transcript.
const SenderUser = "user"

// PlaceholderPriorOutput is the literal token a participant's user prompt may
// embed; the server substitutes the previous participant's output for it.
const PlaceholderPriorOutput = "{prior_output}"

// Parameter bounds enforced client-side before transmission.
const (
	TemperatureMin = 0.0
	TemperatureMax = 2.0
	MaxTokensMin   = 100
	MaxTokensMax   = 8000
)

// Message is one entry in a loop transcript. The transcript is append-only
// and only ever replaced wholesale by server responses.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"` // participant id or SenderUser
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Participant is one AI role in the sequential pipeline.
type Participant struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"display_name"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	OrderIndex   int     `json:"order_index"`
}

// StopSequence is an evaluator that can terminate a running loop. An empty
// SystemPrompt means the condition is a literal substring match against the
// latest message; otherwise it is judged by the configured model.
type StopSequence struct {
	ID            string  `json:"id"`
	DisplayName   string  `json:"display_name"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	SystemPrompt  string  `json:"system_prompt"`
	StopCondition string  `json:"stop_condition"`
	OrderIndex    int     `json:"order_index"`
}

// Loop is the aggregate root. Every mutating API call returns the entire
// updated aggregate; the client never computes diffs against the server.
type Loop struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Status        Status          `json:"status"`
	Participants  []*Participant  `json:"participants"`
	StopSequences []*StopSequence `json:"stop_sequences"`
	Messages      []*Message      `json:"messages"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CurrentTurn   int             `json:"current_turn"`
	MaxTurns      *int            `json:"max_turns"` // nil means unlimited
}

// ClampTemperature forces t into [TemperatureMin, TemperatureMax].
func ClampTemperature(t float64) float64 {
	if t < TemperatureMin {
		return TemperatureMin
	}
	if t > TemperatureMax {
		return TemperatureMax
	}
	return t
}

// ClampMaxTokens forces n into [MaxTokensMin, MaxTokensMax].
func ClampMaxTokens(n int) int {
	if n < MaxTokensMin {
		return MaxTokensMin
	}
	if n > MaxTokensMax {
		return MaxTokensMax
	}
	return n
}

// SortedParticipants returns the participants ordered by OrderIndex.
func (l *Loop) SortedParticipants() []*Participant {
	out := make([]*Participant, len(l.Participants))
	copy(out, l.Participants)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// SortedStopSequences returns the stop sequences ordered by OrderIndex.
func (l *Loop) SortedStopSequences() []*StopSequence {
	out := make([]*StopSequence, len(l.StopSequences))
	copy(out, l.StopSequences)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// Participant returns the participant with the given id, or nil.
func (l *Loop) Participant(id string) *Participant {
	for _, p := range l.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// StopSequence returns the stop sequence with the given id, or nil.
func (l *Loop) StopSequence(id string) *StopSequence {
	for _, s := range l.StopSequences {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// LastMessage returns the most recent transcript entry, or nil for an empty
// transcript.
func (l *Loop) LastMessage() *Message {
	if len(l.Messages) == 0 {
		return nil
	}
	return l.Messages[len(l.Messages)-1]
}

// NextParticipant returns the participant that speaks after the given sender.
// The user sentinel (and an unknown sender) hands the turn to the first
// participant; the sequence wraps around at the end.
func (l *Loop) NextParticipant(sender string) *Participant {
	ordered := l.SortedParticipants()
	if len(ordered) == 0 {
		return nil
	}
	if sender == "" || sender == SenderUser {
		return ordered[0]
	}
	for i, p := range ordered {
		if p.ID == sender {
			return ordered[(i+1)%len(ordered)]
		}
	}
	return ordered[0]
}

// Reindex restores contiguous 0..N-1 OrderIndex values for both ordered
// collections, preserving their current relative order.
func (l *Loop) Reindex() {
	for i, p := range l.SortedParticipants() {
		p.OrderIndex = i
	}
	for i, s := range l.SortedStopSequences() {
		s.OrderIndex = i
	}
}

// Clone returns a deep copy of the aggregate. The session store hands out
// clones so callers can never alias its authoritative copy.
func (l *Loop) Clone() *Loop {
	if l == nil {
		return nil
	}

	out := *l
	out.Participants = make([]*Participant, len(l.Participants))
	for i, p := range l.Participants {
		cp := *p
		out.Participants[i] = &cp
	}
	out.StopSequences = make([]*StopSequence, len(l.StopSequences))
	for i, s := range l.StopSequences {
		cs := *s
		out.StopSequences[i] = &cs
	}
	out.Messages = make([]*Message, len(l.Messages))
	for i, m := range l.Messages {
		cm := *m
		out.Messages[i] = &cm
	}
	if l.MaxTurns != nil {
		mt := *l.MaxTurns
		out.MaxTurns = &mt
	}
	return &out
}

// Changed reports whether next differs from prev under the cheap polling
// heuristic: status, message count, and the last message's content and
// timestamp. It deliberately ignores everything else so an unchanged
// aggregate does not trigger a replacement.
func Changed(prev, next *Loop) bool {
	if prev == nil || next == nil {
		return prev != next
	}
	if prev.Status != next.Status {
		return true
	}
	if len(prev.Messages) != len(next.Messages) {
		return true
	}
	pm, nm := prev.LastMessage(), next.LastMessage()
	if pm == nil || nm == nil {
		return (pm == nil) != (nm == nil)
	}
	return pm.Content != nm.Content || !pm.Timestamp.Equal(nm.Timestamp)
}

// DedupeByID removes duplicate aggregates from a loop list, keeping the first
// occurrence of each id.
func DedupeByID(loops []*Loop) []*Loop {
	seen := make(map[string]bool, len(loops))
	out := loops[:0]
	for _, l := range loops {
		if l == nil || seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	return out
}

// SortByUpdated orders a loop list most recently updated first.
func SortByUpdated(loops []*Loop) {
	sort.SliceStable(loops, func(i, j int) bool {
		return loops[i].UpdatedAt.After(loops[j].UpdatedAt)
	})
}
