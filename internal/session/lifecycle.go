// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package session

import (
	"strings"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// LifecycleOp is a requested loop status transition.
type LifecycleOp string

const (
	OpStart  LifecycleOp = "start"
	OpPause  LifecycleOp = "pause"
	OpResume LifecycleOp = "resume"
	OpStop   LifecycleOp = "stop"
	OpReset  LifecycleOp = "reset"
)

// ValidateTransition rejects lifecycle requests the backend would refuse
// anyway, so obviously invalid ones never leave the client.
func ValidateTransition(current loop.Status, op LifecycleOp) error {
	allowed := false
	switch op {
	case OpStart:
		allowed = current == loop.StatusStopped
	case OpPause:
		allowed = current == loop.StatusRunning
	case OpResume:
		allowed = current == loop.StatusPaused
	case OpStop:
		allowed = current == loop.StatusRunning || current == loop.StatusPaused
	case OpReset:
		// A running loop must be stopped before its transcript is wiped.
		allowed = current != loop.StatusRunning
	}

	if !allowed {
		return tanderr.New(tanderr.CodeSessionInvalidTransition,
			"cannot "+string(op)+" a "+string(current)+" loop",
			tanderr.FieldStatus(string(current)),
			tanderr.Field("operation", string(op)),
		)
	}
	return nil
}

// ValidateStart checks the start preconditions: a non-empty initial prompt,
// at least one participant, and a stopped loop.
func ValidateStart(l *loop.Loop, initialPrompt string) error {
	if strings.TrimSpace(initialPrompt) == "" {
		return tanderr.New(tanderr.CodeSessionStartInvalidInput,
			"initial prompt must not be empty", tanderr.FieldLoopID(l.ID))
	}
	if len(l.Participants) == 0 {
		return tanderr.New(tanderr.CodeSessionStartInvalidInput,
			"loop needs at least one participant to start", tanderr.FieldLoopID(l.ID))
	}
	return ValidateTransition(l.Status, OpStart)
}
