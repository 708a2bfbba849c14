// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package loop

// Ptr returns a pointer to v. Convenience for building partial updates.
func Ptr[T any](v T) *T { return &v }

// ParticipantUpdate is a partial participant edit. Nil fields are left
// unchanged by the server.
type ParticipantUpdate struct {
	DisplayName  *string  `json:"display_name,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
	UserPrompt   *string  `json:"user_prompt,omitempty"`
}

// Merge overlays next onto u field by field; fields set in next win.
func (u ParticipantUpdate) Merge(next ParticipantUpdate) ParticipantUpdate {
	if next.DisplayName != nil {
		u.DisplayName = next.DisplayName
	}
	if next.Model != nil {
		u.Model = next.Model
	}
	if next.Temperature != nil {
		u.Temperature = next.Temperature
	}
	if next.MaxTokens != nil {
		u.MaxTokens = next.MaxTokens
	}
	if next.SystemPrompt != nil {
		u.SystemPrompt = next.SystemPrompt
	}
	if next.UserPrompt != nil {
		u.UserPrompt = next.UserPrompt
	}
	return u
}

// Clamped returns a copy with numeric fields forced into their valid ranges.
// Out-of-range values never reach the wire.
func (u ParticipantUpdate) Clamped() ParticipantUpdate {
	if u.Temperature != nil {
		u.Temperature = Ptr(ClampTemperature(*u.Temperature))
	}
	if u.MaxTokens != nil {
		u.MaxTokens = Ptr(ClampMaxTokens(*u.MaxTokens))
	}
	return u
}

// IsEmpty reports whether no field is set.
func (u ParticipantUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Model == nil && u.Temperature == nil &&
		u.MaxTokens == nil && u.SystemPrompt == nil && u.UserPrompt == nil
}

// Equal reports field-by-field equality of set values.
func (u ParticipantUpdate) Equal(other ParticipantUpdate) bool {
	return eqPtr(u.DisplayName, other.DisplayName) &&
		eqPtr(u.Model, other.Model) &&
		eqPtr(u.Temperature, other.Temperature) &&
		eqPtr(u.MaxTokens, other.MaxTokens) &&
		eqPtr(u.SystemPrompt, other.SystemPrompt) &&
		eqPtr(u.UserPrompt, other.UserPrompt)
}

// ApplyTo writes the set fields onto a participant in place.
func (u ParticipantUpdate) ApplyTo(p *Participant) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Model != nil {
		p.Model = *u.Model
	}
	if u.Temperature != nil {
		p.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		p.MaxTokens = *u.MaxTokens
	}
	if u.SystemPrompt != nil {
		p.SystemPrompt = *u.SystemPrompt
	}
	if u.UserPrompt != nil {
		p.UserPrompt = *u.UserPrompt
	}
}

// StopSequenceUpdate is a partial stop-sequence edit. Nil fields are left
// unchanged by the server.
type StopSequenceUpdate struct {
	DisplayName   *string  `json:"display_name,omitempty"`
	Model         *string  `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	SystemPrompt  *string  `json:"system_prompt,omitempty"`
	StopCondition *string  `json:"stop_condition,omitempty"`
}

// Merge overlays next onto u field by field; fields set in next win.
func (u StopSequenceUpdate) Merge(next StopSequenceUpdate) StopSequenceUpdate {
	if next.DisplayName != nil {
		u.DisplayName = next.DisplayName
	}
	if next.Model != nil {
		u.Model = next.Model
	}
	if next.Temperature != nil {
		u.Temperature = next.Temperature
	}
	if next.MaxTokens != nil {
		u.MaxTokens = next.MaxTokens
	}
	if next.SystemPrompt != nil {
		u.SystemPrompt = next.SystemPrompt
	}
	if next.StopCondition != nil {
		u.StopCondition = next.StopCondition
	}
	return u
}

// Clamped returns a copy with numeric fields forced into their valid ranges.
func (u StopSequenceUpdate) Clamped() StopSequenceUpdate {
	if u.Temperature != nil {
		u.Temperature = Ptr(ClampTemperature(*u.Temperature))
	}
	if u.MaxTokens != nil {
		u.MaxTokens = Ptr(ClampMaxTokens(*u.MaxTokens))
	}
	return u
}

// IsEmpty reports whether no field is set.
func (u StopSequenceUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Model == nil && u.Temperature == nil &&
		u.MaxTokens == nil && u.SystemPrompt == nil && u.StopCondition == nil
}

// Equal reports field-by-field equality of set values.
func (u StopSequenceUpdate) Equal(other StopSequenceUpdate) bool {
	return eqPtr(u.DisplayName, other.DisplayName) &&
		eqPtr(u.Model, other.Model) &&
		eqPtr(u.Temperature, other.Temperature) &&
		eqPtr(u.MaxTokens, other.MaxTokens) &&
		eqPtr(u.SystemPrompt, other.SystemPrompt) &&
		eqPtr(u.StopCondition, other.StopCondition)
}

// ApplyTo writes the set fields onto a stop sequence in place.
func (u StopSequenceUpdate) ApplyTo(s *StopSequence) {
	if u.DisplayName != nil {
		s.DisplayName = *u.DisplayName
	}
	if u.Model != nil {
		s.Model = *u.Model
	}
	if u.Temperature != nil {
		s.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		s.MaxTokens = *u.MaxTokens
	}
	if u.SystemPrompt != nil {
		s.SystemPrompt = *u.SystemPrompt
	}
	if u.StopCondition != nil {
		s.StopCondition = *u.StopCondition
	}
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
