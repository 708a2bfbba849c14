// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package loop

import (
	"gopkg.in/yaml.v3"

	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// Template is the shareable YAML form of a loop definition: the configuration
// without ids, transcript, or lifecycle state. Importing a template creates
// fresh server-assigned entities.
type Template struct {
	Title         string                 `yaml:"title"`
	MaxTurns      *int                   `yaml:"max_turns,omitempty"`
	Participants  []TemplateParticipant  `yaml:"participants"`
	StopSequences []TemplateStopSequence `yaml:"stop_sequences,omitempty"`
}

// TemplateParticipant mirrors Participant minus id and order; order is the
// slice position.
type TemplateParticipant struct {
	DisplayName  string  `yaml:"display_name,omitempty"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature,omitempty"`
	MaxTokens    int     `yaml:"max_tokens,omitempty"`
	SystemPrompt string  `yaml:"system_prompt,omitempty"`
	UserPrompt   string  `yaml:"user_prompt,omitempty"`
}

// TemplateStopSequence mirrors StopSequence minus id and order.
type TemplateStopSequence struct {
	DisplayName   string  `yaml:"display_name,omitempty"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature,omitempty"`
	MaxTokens     int     `yaml:"max_tokens,omitempty"`
	SystemPrompt  string  `yaml:"system_prompt,omitempty"`
	StopCondition string  `yaml:"stop_condition"`
}

// ToTemplate extracts the shareable definition from an aggregate, preserving
// participant and stop-sequence order.
func (l *Loop) ToTemplate() *Template {
	t := &Template{Title: l.Title}
	if l.MaxTurns != nil {
		mt := *l.MaxTurns
		t.MaxTurns = &mt
	}
	for _, p := range l.SortedParticipants() {
		t.Participants = append(t.Participants, TemplateParticipant{
			DisplayName:  p.DisplayName,
			Model:        p.Model,
			Temperature:  p.Temperature,
			MaxTokens:    p.MaxTokens,
			SystemPrompt: p.SystemPrompt,
			UserPrompt:   p.UserPrompt,
		})
	}
	for _, s := range l.SortedStopSequences() {
		t.StopSequences = append(t.StopSequences, TemplateStopSequence{
			DisplayName:   s.DisplayName,
			Model:         s.Model,
			Temperature:   s.Temperature,
			MaxTokens:     s.MaxTokens,
			SystemPrompt:  s.SystemPrompt,
			StopCondition: s.StopCondition,
		})
	}
	return t
}

// MarshalTemplate renders a template as YAML.
func MarshalTemplate(t *Template) ([]byte, error) {
	out, err := yaml.Marshal(t)
	if err != nil {
		return nil, tanderr.Wrapf(err, tanderr.CodeTemplateInvalid, "marshalling loop template")
	}
	return out, nil
}

// ParseTemplate parses and validates a YAML template.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, tanderr.Wrapf(err, tanderr.CodeTemplateInvalid, "parsing loop template")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks structural requirements: at least one participant, every
// participant and stop sequence names a model, and every stop sequence has a
// condition.
func (t *Template) Validate() error {
	if len(t.Participants) == 0 {
		return tanderr.New(tanderr.CodeTemplateInvalid, "template has no participants")
	}
	for i, p := range t.Participants {
		if p.Model == "" {
			return tanderr.Errorf(tanderr.CodeTemplateInvalid, "participant %d: model is required", i)
		}
	}
	for i, s := range t.StopSequences {
		if s.Model == "" {
			return tanderr.Errorf(tanderr.CodeTemplateInvalid, "stop sequence %d: model is required", i)
		}
		if s.StopCondition == "" {
			return tanderr.Errorf(tanderr.CodeTemplateInvalid, "stop sequence %d: stop_condition is required", i)
		}
	}
	return nil
}
