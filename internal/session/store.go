// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tandem-dev/tandem/internal/api"
	"github.com/tandem-dev/tandem/internal/config"
	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// Repository is the backend surface the store reconciles against.
// *api.Client implements it.
type Repository interface {
	ListLoops(ctx context.Context) ([]*loop.Loop, error)
	GetLoop(ctx context.Context, id string) (*loop.Loop, error)
	CreateLoop(ctx context.Context, title string) (*loop.Loop, error)
	UpdateTitle(ctx context.Context, id, title string) (*loop.Loop, error)
	SetMaxTurns(ctx context.Context, id string, maxTurns *int) (*loop.Loop, error)
	DeleteLoop(ctx context.Context, id string) error

	AddParticipant(ctx context.Context, loopID string, p api.NewParticipant) (*loop.Loop, *loop.Participant, error)
	UpdateParticipant(ctx context.Context, loopID, participantID string, u loop.ParticipantUpdate) (*loop.Loop, error)
	RemoveParticipant(ctx context.Context, loopID, participantID string) (*loop.Loop, error)
	ReorderParticipants(ctx context.Context, loopID string, participantIDs []string) (*loop.Loop, error)

	AddStopSequence(ctx context.Context, loopID string, s api.NewStopSequence) (*loop.Loop, *loop.StopSequence, error)
	UpdateStopSequence(ctx context.Context, loopID, stopID string, u loop.StopSequenceUpdate) (*loop.Loop, error)
	RemoveStopSequence(ctx context.Context, loopID, stopID string) (*loop.Loop, error)
	ReorderStopSequences(ctx context.Context, loopID string, stopIDs []string) (*loop.Loop, error)

	Start(ctx context.Context, loopID, initialPrompt string) (*loop.Loop, error)
	Pause(ctx context.Context, loopID string) (*loop.Loop, error)
	Resume(ctx context.Context, loopID string) (*loop.Loop, error)
	Stop(ctx context.Context, loopID string) (*loop.Loop, error)
	Reset(ctx context.Context, loopID string) (*loop.Loop, error)
}

// PromptStore persists the last initial prompt per loop across sessions.
type PromptStore interface {
	Prompt(loopID string) (string, error)
	SavePrompt(loopID, prompt string) error
	DeletePrompt(loopID string) error
}

// EventKind classifies store notifications.
type EventKind int

const (
	EventListChanged EventKind = iota
	EventLoopChanged
	EventLoopRemoved
	EventEditState
	EventPollTimeout
)

// Event is a store notification delivered to subscribers. Loop, when set, is
// a clone the subscriber may keep.
type Event struct {
	Kind     EventKind
	LoopID   string
	Loop     *loop.Loop
	EntityID string
	State    EditState
	Err      error
}

// Store holds the authoritative local copies of every known loop and keeps
// them reconciled with the backend. All mutations of one loop are serialized
// through a per-loop mutex, so a lifecycle request can never interleave with
// an entity edit for the same loop.
type Store struct {
	repo    Repository
	prompts PromptStore
	cfg     config.SyncConfig
	log     *slog.Logger
	guards  *GuardSet

	mu     sync.Mutex
	loops  map[string]*loop.Loop
	loopMu map[string]*sync.Mutex

	pollMu  sync.Mutex
	pollGen uint64
	pollers map[string]*pollHandle

	bufMu            sync.Mutex
	participantEdits map[string]*Buffer[loop.ParticipantUpdate]
	stopEdits        map[string]*Buffer[loop.StopSequenceUpdate]

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(Event)

	ctx    context.Context
	cancel context.CancelFunc
}

type pollHandle struct {
	gen    uint64
	cancel context.CancelFunc
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(log *slog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithPrompts attaches prompt persistence.
func WithPrompts(p PromptStore) StoreOption {
	return func(s *Store) { s.prompts = p }
}

// NewStore creates a session store over the given backend.
func NewStore(repo Repository, cfg config.SyncConfig, opts ...StoreOption) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		repo:             repo,
		cfg:              cfg,
		log:              slog.Default(),
		guards:           NewGuardSet(cfg.StaleGuard),
		loops:            make(map[string]*loop.Loop),
		loopMu:           make(map[string]*sync.Mutex),
		pollers:          make(map[string]*pollHandle),
		participantEdits: make(map[string]*Buffer[loop.ParticipantUpdate]),
		stopEdits:        make(map[string]*Buffer[loop.StopSequenceUpdate]),
		subs:             make(map[int]func(Event)),
		ctx:              ctx,
		cancel:           cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops every poller and flushes pending edits.
func (s *Store) Close() {
	s.bufMu.Lock()
	pbufs := make([]*Buffer[loop.ParticipantUpdate], 0, len(s.participantEdits))
	for _, b := range s.participantEdits {
		pbufs = append(pbufs, b)
	}
	sbufs := make([]*Buffer[loop.StopSequenceUpdate], 0, len(s.stopEdits))
	for _, b := range s.stopEdits {
		sbufs = append(sbufs, b)
	}
	s.bufMu.Unlock()

	for _, b := range pbufs {
		b.FlushAll(s.ctx)
	}
	for _, b := range sbufs {
		b.FlushAll(s.ctx)
	}

	s.cancel()
}

// Subscribe registers an event callback and returns its removal function.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Refresh replaces the local list with the backend's. Loops with an active
// edit guard keep their local copy until the guard clears.
func (s *Store) Refresh(ctx context.Context) ([]*loop.Loop, error) {
	fetched, err := s.repo.ListLoops(ctx)
	if err != nil {
		return nil, err
	}
	// A duplicated id would corrupt every lookup downstream; keep the first
	// occurrence of each.
	fetched = loop.DedupeByID(fetched)

	s.mu.Lock()
	next := make(map[string]*loop.Loop, len(fetched))
	for _, l := range fetched {
		if s.guards.ActiveForLoop(l.ID) {
			if prev, ok := s.loops[l.ID]; ok {
				next[l.ID] = prev
				continue
			}
		}
		next[l.ID] = l
	}
	s.loops = next
	s.mu.Unlock()

	for _, l := range fetched {
		s.reconcilePolling(l.ID, l.Status)
	}
	s.stopOrphanedPollers(next)

	s.emit(Event{Kind: EventListChanged})
	return s.Loops(), nil
}

// Loops returns clones of every known loop, most recently updated first.
func (s *Store) Loops() []*loop.Loop {
	s.mu.Lock()
	out := make([]*loop.Loop, 0, len(s.loops))
	for _, l := range s.loops {
		out = append(out, l.Clone())
	}
	s.mu.Unlock()

	loop.SortByUpdated(out)
	return out
}

// Loop returns a clone of one loop.
func (s *Store) Loop(id string) (*loop.Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loops[id]
	if !ok {
		return nil, tanderr.New(tanderr.CodeSessionLoopNotLoaded, "loop is not loaded", tanderr.FieldLoopID(id))
	}
	return l.Clone(), nil
}

// Create makes a new loop and adopts it.
func (s *Store) Create(ctx context.Context, title string) (*loop.Loop, error) {
	created, err := s.repo.CreateLoop(ctx, title)
	if err != nil {
		return nil, err
	}

	s.adopt(created)
	s.emit(Event{Kind: EventListChanged})
	return created.Clone(), nil
}

// Rename updates the loop title.
func (s *Store) Rename(ctx context.Context, loopID, title string) (*loop.Loop, error) {
	return s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return s.repo.UpdateTitle(ctx, loopID, title)
	})
}

// SetMaxTurns sets or clears the loop's turn cap. Nil means unlimited.
func (s *Store) SetMaxTurns(ctx context.Context, loopID string, maxTurns *int) (*loop.Loop, error) {
	return s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return s.repo.SetMaxTurns(ctx, loopID, maxTurns)
	})
}

// Delete removes the loop everywhere: backend, local copy, poller, guards,
// edit buffers, and the persisted prompt.
func (s *Store) Delete(ctx context.Context, loopID string) error {
	lk := s.lockFor(loopID)
	lk.Lock()
	defer lk.Unlock()

	if err := s.repo.DeleteLoop(ctx, loopID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.loops, loopID)
	delete(s.loopMu, loopID)
	s.mu.Unlock()

	s.stopPolling(loopID)
	s.guards.ClearLoop(loopID)

	s.bufMu.Lock()
	delete(s.participantEdits, loopID)
	delete(s.stopEdits, loopID)
	s.bufMu.Unlock()

	if s.prompts != nil {
		if err := s.prompts.DeletePrompt(loopID); err != nil {
			s.log.Warn("clearing saved prompt failed", "loop_id", loopID, "error", err)
		}
	}

	s.emit(Event{Kind: EventLoopRemoved, LoopID: loopID})
	return nil
}

// AddParticipant appends a participant to the loop.
func (s *Store) AddParticipant(ctx context.Context, loopID string, p api.NewParticipant) (*loop.Participant, error) {
	lk := s.lockFor(loopID)
	lk.Lock()
	defer lk.Unlock()

	updated, created, err := s.repo.AddParticipant(ctx, loopID, p)
	if err != nil {
		return nil, err
	}

	s.adopt(updated)
	s.emit(Event{Kind: EventLoopChanged, LoopID: loopID, Loop: updated.Clone()})
	return created, nil
}

// RemoveParticipant deletes a participant. The last participant of a loop
// cannot be removed.
func (s *Store) RemoveParticipant(ctx context.Context, loopID, participantID string) error {
	current, err := s.Loop(loopID)
	if err != nil {
		return err
	}
	if len(current.Participants) <= 1 {
		return tanderr.New(tanderr.CodeSessionLastParticipant,
			"a loop must keep at least one participant",
			tanderr.FieldLoopID(loopID), tanderr.FieldEntityID(participantID))
	}

	_, err = s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return s.repo.RemoveParticipant(ctx, loopID, participantID)
	})
	return err
}

// ReorderParticipants replaces the participant order with the id permutation.
func (s *Store) ReorderParticipants(ctx context.Context, loopID string, participantIDs []string) (*loop.Loop, error) {
	return s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return s.repo.ReorderParticipants(ctx, loopID, participantIDs)
	})
}

// AddStopSequence appends a stop sequence to the loop.
func (s *Store) AddStopSequence(ctx context.Context, loopID string, seq api.NewStopSequence) (*loop.StopSequence, error) {
	lk := s.lockFor(loopID)
	lk.Lock()
	defer lk.Unlock()

	updated, created, err := s.repo.AddStopSequence(ctx, loopID, seq)
	if err != nil {
		return nil, err
	}

	s.adopt(updated)
	s.emit(Event{Kind: EventLoopChanged, LoopID: loopID, Loop: updated.Clone()})
	return created, nil
}

// RemoveStopSequence deletes a stop sequence.
func (s *Store) RemoveStopSequence(ctx context.Context, loopID, stopID string) error {
	_, err := s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return s.repo.RemoveStopSequence(ctx, loopID, stopID)
	})
	return err
}

// ReorderStopSequences replaces the stop-sequence order.
func (s *Store) ReorderStopSequences(ctx context.Context, loopID string, stopIDs []string) (*loop.Loop, error) {
	return s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return s.repo.ReorderStopSequences(ctx, loopID, stopIDs)
	})
}

// EditParticipant queues a buffered partial edit. Continuous edits debounce;
// discrete ones commit immediately.
func (s *Store) EditParticipant(ctx context.Context, loopID, participantID string, u loop.ParticipantUpdate, discrete bool) error {
	if _, err := s.Loop(loopID); err != nil {
		return err
	}
	s.participantBuffer(loopID).Queue(ctx, participantID, u.Clamped(), discrete)
	return nil
}

// EditStopSequence queues a buffered partial edit for a stop sequence.
func (s *Store) EditStopSequence(ctx context.Context, loopID, stopID string, u loop.StopSequenceUpdate, discrete bool) error {
	if _, err := s.Loop(loopID); err != nil {
		return err
	}
	s.stopBuffer(loopID).Queue(ctx, stopID, u.Clamped(), discrete)
	return nil
}

// ParticipantEditState reports the buffered edit state for a participant.
func (s *Store) ParticipantEditState(loopID, participantID string) (EditState, error) {
	return s.participantBuffer(loopID).State(participantID)
}

// StopSequenceEditState reports the buffered edit state for a stop sequence.
func (s *Store) StopSequenceEditState(loopID, stopID string) (EditState, error) {
	return s.stopBuffer(loopID).State(stopID)
}

// FlushEdits commits every pending edit of the loop immediately.
func (s *Store) FlushEdits(ctx context.Context, loopID string) {
	s.participantBuffer(loopID).FlushAll(ctx)
	s.stopBuffer(loopID).FlushAll(ctx)
}

// Start transitions a stopped loop to running with the initial prompt. The
// prompt is validated and persisted locally before the request is sent, and
// pending edits are flushed first so the run never races a half-typed field.
func (s *Store) Start(ctx context.Context, loopID, initialPrompt string) (*loop.Loop, error) {
	current, err := s.Loop(loopID)
	if err != nil {
		return nil, err
	}

	s.FlushEdits(ctx, loopID)

	if err := ValidateStart(current, initialPrompt); err != nil {
		return nil, err
	}

	if s.prompts != nil {
		if err := s.prompts.SavePrompt(loopID, initialPrompt); err != nil {
			s.log.Warn("persisting initial prompt failed", "loop_id", loopID, "error", err)
		}
	}

	return s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return s.repo.Start(ctx, loopID, initialPrompt)
	})
}

// Pause transitions a running loop to paused.
func (s *Store) Pause(ctx context.Context, loopID string) (*loop.Loop, error) {
	return s.transition(ctx, loopID, OpPause, s.repo.Pause)
}

// Resume transitions a paused loop back to running.
func (s *Store) Resume(ctx context.Context, loopID string) (*loop.Loop, error) {
	return s.transition(ctx, loopID, OpResume, s.repo.Resume)
}

// Stop transitions an active loop to stopped.
func (s *Store) Stop(ctx context.Context, loopID string) (*loop.Loop, error) {
	return s.transition(ctx, loopID, OpStop, s.repo.Stop)
}

// Reset clears the transcript of a non-running loop. Callers are expected to
// confirm with the user first; the store only enforces the status rule.
func (s *Store) Reset(ctx context.Context, loopID string) (*loop.Loop, error) {
	return s.transition(ctx, loopID, OpReset, s.repo.Reset)
}

func (s *Store) transition(ctx context.Context, loopID string, op LifecycleOp, call func(context.Context, string) (*loop.Loop, error)) (*loop.Loop, error) {
	current, err := s.Loop(loopID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(current.Status, op); err != nil {
		return nil, err
	}

	return s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
		return call(ctx, loopID)
	})
}

// SavedPrompt returns the locally persisted initial prompt for the loop, or
// empty when none was saved.
func (s *Store) SavedPrompt(loopID string) string {
	if s.prompts == nil {
		return ""
	}
	prompt, err := s.prompts.Prompt(loopID)
	if err != nil {
		if !tanderr.IsNotFound(err) {
			s.log.Warn("reading saved prompt failed", "loop_id", loopID, "error", err)
		}
		return ""
	}
	return prompt
}

// mutate serializes one backend mutation per loop and adopts the returned
// aggregate as the new authoritative copy.
func (s *Store) mutate(ctx context.Context, loopID string, call func(context.Context) (*loop.Loop, error)) (*loop.Loop, error) {
	lk := s.lockFor(loopID)
	lk.Lock()
	defer lk.Unlock()

	updated, err := call(ctx)
	if err != nil {
		return nil, err
	}

	s.adopt(updated)
	s.emit(Event{Kind: EventLoopChanged, LoopID: updated.ID, Loop: updated.Clone()})
	return updated, nil
}

func (s *Store) lockFor(loopID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lk, ok := s.loopMu[loopID]
	if !ok {
		lk = &sync.Mutex{}
		s.loopMu[loopID] = lk
	}
	return lk
}

// adopt installs the aggregate as the authoritative copy and reconciles the
// loop's poller against its status.
func (s *Store) adopt(l *loop.Loop) {
	s.mu.Lock()
	s.loops[l.ID] = l.Clone()
	s.mu.Unlock()

	s.reconcilePolling(l.ID, l.Status)
}

// applyPolled installs a polled aggregate as the new local copy. It runs
// under the loop's mutation mutex, so a fetch that was in flight while a
// mutation committed lands strictly after the mutation's aggregate was
// adopted; the generation check then drops it, because a response read before
// the mutation describes a state the mutation superseded. Entities holding an
// active edit guard keep their local fields. Returns whether polling should
// continue.
func (s *Store) applyPolled(gen uint64, next *loop.Loop) bool {
	if next == nil {
		return false
	}

	lk := s.lockFor(next.ID)
	lk.Lock()
	defer lk.Unlock()

	if !s.pollerCurrent(next.ID, gen) {
		return false
	}

	s.mu.Lock()
	prev := s.loops[next.ID]
	s.mu.Unlock()

	merged := next.Clone()
	s.preserveGuardedEntities(prev, merged)

	s.mu.Lock()
	changed := loop.Changed(prev, merged)
	s.loops[merged.ID] = merged
	s.mu.Unlock()

	if changed {
		s.emit(Event{Kind: EventLoopChanged, LoopID: merged.ID, Loop: merged.Clone()})
	}
	return true
}

// preserveGuardedEntities copies the local state of every guarded entity over
// the fetched aggregate, pending patch on top, so a poll refreshes transcript
// and status without clobbering an edit that is uncommitted or still inside
// its grace window. The rest of the aggregate applies untouched.
func (s *Store) preserveGuardedEntities(prev, next *loop.Loop) {
	if prev == nil {
		return
	}

	pbuf := s.participantBuffer(next.ID)
	for _, p := range next.Participants {
		if !s.guards.Active(next.ID, p.ID) {
			continue
		}
		if local := prev.Participant(p.ID); local != nil {
			*p = *local
		}
		if patch, ok := pbuf.Pending(p.ID); ok {
			patch.ApplyTo(p)
		}
	}

	sbuf := s.stopBuffer(next.ID)
	for _, seq := range next.StopSequences {
		if !s.guards.Active(next.ID, seq.ID) {
			continue
		}
		if local := prev.StopSequence(seq.ID); local != nil {
			*seq = *local
		}
		if patch, ok := sbuf.Pending(seq.ID); ok {
			patch.ApplyTo(seq)
		}
	}
}

// pollerCurrent reports whether gen still owns the loop's poller.
func (s *Store) pollerCurrent(loopID string, gen uint64) bool {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	h, ok := s.pollers[loopID]
	return ok && h.gen == gen
}

// reconcilePolling arms or disarms the loop's poller to match its status.
func (s *Store) reconcilePolling(loopID string, status loop.Status) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	handle, polling := s.pollers[loopID]
	active := status == loop.StatusRunning || status == loop.StatusPaused

	switch {
	case active && !polling:
		s.startPollerLocked(loopID, status)
	case !active && polling:
		handle.cancel()
		delete(s.pollers, loopID)
	}
}

func (s *Store) startPollerLocked(loopID string, status loop.Status) {
	s.pollGen++
	gen := s.pollGen

	ctx, cancel := context.WithCancel(s.ctx)
	s.pollers[loopID] = &pollHandle{gen: gen, cancel: cancel}

	p := NewPoller(loopID,
		PollerConfig{FastPoll: s.cfg.FastPoll, SlowPoll: s.cfg.SlowPoll, Backstop: s.cfg.Backstop},
		func(ctx context.Context) (*loop.Loop, error) { return s.repo.GetLoop(ctx, loopID) },
		func(next *loop.Loop) bool { return s.applyPolled(gen, next) },
		func(loopID string, err error) {
			s.emit(Event{Kind: EventPollTimeout, LoopID: loopID, Err: err})
		},
		s.log,
	)

	go func() {
		p.Run(ctx, status)
		cancel()

		s.pollMu.Lock()
		if h, ok := s.pollers[loopID]; ok && h.gen == gen {
			delete(s.pollers, loopID)
		}
		s.pollMu.Unlock()
	}()
}

func (s *Store) stopPolling(loopID string) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	if handle, ok := s.pollers[loopID]; ok {
		handle.cancel()
		delete(s.pollers, loopID)
	}
}

// stopOrphanedPollers disarms pollers for loops no longer present locally.
func (s *Store) stopOrphanedPollers(known map[string]*loop.Loop) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	for loopID, handle := range s.pollers {
		if _, ok := known[loopID]; !ok {
			handle.cancel()
			delete(s.pollers, loopID)
		}
	}
}

// Polling reports whether a poller is currently armed for the loop.
func (s *Store) Polling(loopID string) bool {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	_, ok := s.pollers[loopID]
	return ok
}

func (s *Store) participantBuffer(loopID string) *Buffer[loop.ParticipantUpdate] {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	b, ok := s.participantEdits[loopID]
	if !ok {
		b = NewBuffer(loopID, s.cfg.Debounce, s.cfg.CommitGrace, s.guards,
			func(ctx context.Context, entityID string, patch loop.ParticipantUpdate) error {
				_, err := s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
					return s.repo.UpdateParticipant(ctx, loopID, entityID, patch)
				})
				return err
			},
			func(entityID string, state EditState, err error) {
				s.emit(Event{Kind: EventEditState, LoopID: loopID, EntityID: entityID, State: state, Err: err})
			},
			s.log,
		)
		s.participantEdits[loopID] = b
	}
	return b
}

func (s *Store) stopBuffer(loopID string) *Buffer[loop.StopSequenceUpdate] {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	b, ok := s.stopEdits[loopID]
	if !ok {
		b = NewBuffer(loopID, s.cfg.Debounce, s.cfg.CommitGrace, s.guards,
			func(ctx context.Context, entityID string, patch loop.StopSequenceUpdate) error {
				_, err := s.mutate(ctx, loopID, func(ctx context.Context) (*loop.Loop, error) {
					return s.repo.UpdateStopSequence(ctx, loopID, entityID, patch)
				})
				return err
			},
			func(entityID string, state EditState, err error) {
				s.emit(Event{Kind: EventEditState, LoopID: loopID, EntityID: entityID, State: state, Err: err})
			},
			s.log,
		)
		s.stopEdits[loopID] = b
	}
	return b
}
