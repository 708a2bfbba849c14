// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

// Package server is the bundled loop backend: an in-memory registry behind
// the HTTP surface the client reconciles against, plus a synthetic turn
// driver that advances running loops. It exists so the client can be
// developed and exercised without a model-serving deployment.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// Defaults applied to participants created without explicit values.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	defaultLoopTitle   = "Untitled Loop"
)

// ParticipantPayload is the create payload for participants and, with
// StopCondition set, stop sequences.
type ParticipantPayload struct {
	DisplayName   string  `json:"display_name,omitempty"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	SystemPrompt  string  `json:"system_prompt,omitempty"`
	UserPrompt    string  `json:"user_prompt,omitempty"`
	StopCondition string  `json:"stop_condition,omitempty"`
}

// Registry is the in-memory loop store. Every accessor returns clones; the
// registry's own copies are only touched under its lock.
type Registry struct {
	mu    sync.Mutex
	loops map[string]*loop.Loop
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		loops: make(map[string]*loop.Loop),
		now:   time.Now,
	}
}

func notFound(loopID string) error {
	return tanderr.New(tanderr.CodeServerEntityNotFound, "loop not found", tanderr.FieldLoopID(loopID))
}

func (r *Registry) get(loopID string) (*loop.Loop, error) {
	l, ok := r.loops[loopID]
	if !ok {
		return nil, notFound(loopID)
	}
	return l, nil
}

// Create adds a new stopped loop.
func (r *Registry) Create(title string) *loop.Loop {
	r.mu.Lock()
	defer r.mu.Unlock()

	if title == "" {
		title = defaultLoopTitle
	}
	now := r.now()
	l := &loop.Loop{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    loop.StatusStopped,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.loops[l.ID] = l
	return l.Clone()
}

// List returns every loop, most recently updated first.
func (r *Registry) List() []*loop.Loop {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*loop.Loop, 0, len(r.loops))
	for _, l := range r.loops {
		out = append(out, l.Clone())
	}
	loop.SortByUpdated(out)
	return out
}

// Get returns one loop.
func (r *Registry) Get(loopID string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	return l.Clone(), nil
}

// SetTitle renames a loop.
func (r *Registry) SetTitle(loopID, title string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, tanderr.New(tanderr.CodeServerRequestInvalid, "title must not be empty", tanderr.FieldLoopID(loopID))
	}
	l.Title = title
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// SetMaxTurns sets or clears the loop's turn cap.
func (r *Registry) SetMaxTurns(loopID string, maxTurns *int) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	if maxTurns != nil && *maxTurns <= 0 {
		return nil, tanderr.New(tanderr.CodeServerRequestInvalid, "max_turns must be positive", tanderr.FieldLoopID(loopID))
	}
	l.MaxTurns = maxTurns
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// Delete removes a loop.
func (r *Registry) Delete(loopID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.get(loopID); err != nil {
		return err
	}
	delete(r.loops, loopID)
	return nil
}

// AddParticipant appends a participant with the next order index.
func (r *Registry) AddParticipant(loopID string, p ParticipantPayload) (*loop.Loop, *loop.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, nil, err
	}
	if p.Model == "" {
		return nil, nil, tanderr.New(tanderr.CodeServerRequestInvalid, "model is required", tanderr.FieldLoopID(loopID))
	}

	created := &loop.Participant{
		ID:           uuid.NewString(),
		DisplayName:  p.DisplayName,
		Model:        p.Model,
		Temperature:  defaultTemperature,
		MaxTokens:    defaultMaxTokens,
		SystemPrompt: p.SystemPrompt,
		UserPrompt:   p.UserPrompt,
		OrderIndex:   len(l.Participants),
	}
	if created.DisplayName == "" {
		created.DisplayName = fmt.Sprintf("AI %d", len(l.Participants)+1)
	}
	if p.Temperature != 0 {
		created.Temperature = loop.ClampTemperature(p.Temperature)
	}
	if p.MaxTokens != 0 {
		created.MaxTokens = loop.ClampMaxTokens(p.MaxTokens)
	}

	l.Participants = append(l.Participants, created)
	l.UpdatedAt = r.now()
	cp := *created
	return l.Clone(), &cp, nil
}

// UpdateParticipant applies a partial edit.
func (r *Registry) UpdateParticipant(loopID, participantID string, u loop.ParticipantUpdate) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	p := l.Participant(participantID)
	if p == nil {
		return nil, tanderr.New(tanderr.CodeServerEntityNotFound, "participant not found",
			tanderr.FieldLoopID(loopID), tanderr.FieldEntityID(participantID))
	}

	u.Clamped().ApplyTo(p)
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// RemoveParticipant deletes a participant and closes the index gap.
func (r *Registry) RemoveParticipant(loopID, participantID string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	if l.Participant(participantID) == nil {
		return nil, tanderr.New(tanderr.CodeServerEntityNotFound, "participant not found",
			tanderr.FieldLoopID(loopID), tanderr.FieldEntityID(participantID))
	}

	kept := l.Participants[:0]
	for _, p := range l.Participants {
		if p.ID != participantID {
			kept = append(kept, p)
		}
	}
	l.Participants = kept
	l.Reindex()
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// ReorderParticipants applies the id permutation and restores contiguous
// indices. Ids not present are ignored; participants missing from the
// permutation keep their relative order after the listed ones.
func (r *Registry) ReorderParticipants(loopID string, ids []string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}

	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	for _, p := range l.Participants {
		if i, ok := rank[p.ID]; ok {
			p.OrderIndex = i
		} else {
			p.OrderIndex = len(ids) + p.OrderIndex
		}
	}
	l.Reindex()
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// AddStopSequence appends a stop sequence with the next order index.
func (r *Registry) AddStopSequence(loopID string, p ParticipantPayload) (*loop.Loop, *loop.StopSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, nil, err
	}
	if p.Model == "" {
		return nil, nil, tanderr.New(tanderr.CodeServerRequestInvalid, "model is required", tanderr.FieldLoopID(loopID))
	}
	if p.StopCondition == "" {
		return nil, nil, tanderr.New(tanderr.CodeServerRequestInvalid, "stop_condition is required", tanderr.FieldLoopID(loopID))
	}

	created := &loop.StopSequence{
		ID:            uuid.NewString(),
		DisplayName:   p.DisplayName,
		Model:         p.Model,
		Temperature:   defaultTemperature,
		MaxTokens:     defaultMaxTokens,
		SystemPrompt:  p.SystemPrompt,
		StopCondition: p.StopCondition,
		OrderIndex:    len(l.StopSequences),
	}
	if created.DisplayName == "" {
		created.DisplayName = fmt.Sprintf("Stop %d", len(l.StopSequences)+1)
	}
	if p.Temperature != 0 {
		created.Temperature = loop.ClampTemperature(p.Temperature)
	}
	if p.MaxTokens != 0 {
		created.MaxTokens = loop.ClampMaxTokens(p.MaxTokens)
	}

	l.StopSequences = append(l.StopSequences, created)
	l.UpdatedAt = r.now()
	cp := *created
	return l.Clone(), &cp, nil
}

// UpdateStopSequence applies a partial edit.
func (r *Registry) UpdateStopSequence(loopID, stopID string, u loop.StopSequenceUpdate) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	s := l.StopSequence(stopID)
	if s == nil {
		return nil, tanderr.New(tanderr.CodeServerEntityNotFound, "stop sequence not found",
			tanderr.FieldLoopID(loopID), tanderr.FieldEntityID(stopID))
	}

	u.Clamped().ApplyTo(s)
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// RemoveStopSequence deletes a stop sequence and closes the index gap.
func (r *Registry) RemoveStopSequence(loopID, stopID string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	if l.StopSequence(stopID) == nil {
		return nil, tanderr.New(tanderr.CodeServerEntityNotFound, "stop sequence not found",
			tanderr.FieldLoopID(loopID), tanderr.FieldEntityID(stopID))
	}

	kept := l.StopSequences[:0]
	for _, s := range l.StopSequences {
		if s.ID != stopID {
			kept = append(kept, s)
		}
	}
	l.StopSequences = kept
	l.Reindex()
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// ReorderStopSequences applies the id permutation for stop sequences.
func (r *Registry) ReorderStopSequences(loopID string, ids []string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}

	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	for _, s := range l.StopSequences {
		if i, ok := rank[s.ID]; ok {
			s.OrderIndex = i
		} else {
			s.OrderIndex = len(ids) + s.OrderIndex
		}
	}
	l.Reindex()
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

// Start transitions a stopped loop to running: the transcript is cleared and
// reseeded with the user's prompt, and the turn counter restarts.
func (r *Registry) Start(loopID, initialPrompt string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	if initialPrompt == "" {
		return nil, tanderr.New(tanderr.CodeServerRequestInvalid, "initial_prompt is required", tanderr.FieldLoopID(loopID))
	}
	if len(l.Participants) == 0 {
		return nil, tanderr.New(tanderr.CodeServerRequestInvalid, "loop has no participants", tanderr.FieldLoopID(loopID))
	}
	if l.Status != loop.StatusStopped {
		return nil, conflict(l, "start")
	}

	now := r.now()
	l.Status = loop.StatusRunning
	l.CurrentTurn = 0
	l.Messages = []*loop.Message{{
		ID:        uuid.NewString(),
		Sender:    loop.SenderUser,
		Content:   initialPrompt,
		Timestamp: now,
	}}
	l.UpdatedAt = now
	return l.Clone(), nil
}

// Pause transitions a running loop to paused.
func (r *Registry) Pause(loopID string) (*loop.Loop, error) {
	return r.setStatus(loopID, "pause", loop.StatusPaused, loop.StatusRunning)
}

// Resume transitions a paused loop back to running.
func (r *Registry) Resume(loopID string) (*loop.Loop, error) {
	return r.setStatus(loopID, "resume", loop.StatusRunning, loop.StatusPaused)
}

// Stop transitions an active loop to stopped.
func (r *Registry) Stop(loopID string) (*loop.Loop, error) {
	return r.setStatus(loopID, "stop", loop.StatusStopped, loop.StatusRunning, loop.StatusPaused)
}

// Reset clears the transcript of a non-running loop, keeping configuration.
func (r *Registry) Reset(loopID string) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}
	if l.Status == loop.StatusRunning {
		return nil, conflict(l, "reset")
	}

	l.Messages = nil
	l.CurrentTurn = 0
	l.Status = loop.StatusStopped
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

func (r *Registry) setStatus(loopID, op string, to loop.Status, from ...loop.Status) (*loop.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.get(loopID)
	if err != nil {
		return nil, err
	}

	ok := false
	for _, f := range from {
		if l.Status == f {
			ok = true
			break
		}
	}
	if !ok {
		return nil, conflict(l, op)
	}

	l.Status = to
	l.UpdatedAt = r.now()
	return l.Clone(), nil
}

func conflict(l *loop.Loop, op string) error {
	return tanderr.New(tanderr.CodeServerLifecycleState,
		"cannot "+op+" a "+string(l.Status)+" loop",
		tanderr.FieldLoopID(l.ID), tanderr.FieldStatus(string(l.Status)))
}
