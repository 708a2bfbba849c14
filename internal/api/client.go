// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

// Package api is the network boundary to the loop backend. It is a thin but
// disciplined repository: every mutating call returns the entire updated
// aggregate, never a partial patch, so callers replace their authoritative
// copy instead of computing diffs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// defaultTimeout bounds a single request when no client is supplied.
const defaultTimeout = 5 * time.Second

// Client provides HTTP access to a loop backend.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests and by
// callers that need custom transport settings.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client targeting the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewParticipant is the payload for adding a participant.
type NewParticipant struct {
	Model        string  `json:"model"`
	DisplayName  string  `json:"display_name,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	UserPrompt   string  `json:"user_prompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// NewStopSequence is the payload for adding a stop sequence.
type NewStopSequence struct {
	Model         string  `json:"model"`
	DisplayName   string  `json:"display_name,omitempty"`
	SystemPrompt  string  `json:"system_prompt,omitempty"`
	StopCondition string  `json:"stop_condition"`
	Temperature   float64 `json:"temperature,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
}

// aggregateEnvelope is the {loop: ...} wrapper several mutations respond with.
type aggregateEnvelope struct {
	Loop *loop.Loop `json:"loop"`
}

// CreateLoop creates a new loop with the given title.
func (c *Client) CreateLoop(ctx context.Context, title string) (*loop.Loop, error) {
	var out loop.Loop
	err := c.do(ctx, http.MethodPost, "/loop/new", map[string]string{"title": title}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLoops fetches every loop aggregate.
func (c *Client) ListLoops(ctx context.Context) ([]*loop.Loop, error) {
	var out []*loop.Loop
	if err := c.do(ctx, http.MethodGet, "/loop/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLoop fetches one loop aggregate.
func (c *Client) GetLoop(ctx context.Context, id string) (*loop.Loop, error) {
	var out loop.Loop
	if err := c.do(ctx, http.MethodGet, "/loop/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTitle renames a loop.
func (c *Client) UpdateTitle(ctx context.Context, id, title string) (*loop.Loop, error) {
	var out loop.Loop
	err := c.do(ctx, http.MethodPost, "/loop/"+id+"/title", map[string]string{"title": title}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetMaxTurns sets or clears the loop's turn cap. A nil value means
// unlimited.
func (c *Client) SetMaxTurns(ctx context.Context, id string, maxTurns *int) (*loop.Loop, error) {
	var out loop.Loop
	body := map[string]*int{"max_turns": maxTurns}
	err := c.do(ctx, http.MethodPost, "/loop/"+id+"/max_turns", body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteLoop removes a loop entirely.
func (c *Client) DeleteLoop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/loop/"+id, nil, nil)
}

// AddParticipant appends a participant; the server assigns the id and the
// next order index. Numeric fields are clamped before transmission.
func (c *Client) AddParticipant(ctx context.Context, loopID string, p NewParticipant) (*loop.Loop, *loop.Participant, error) {
	if p.Temperature != 0 {
		p.Temperature = loop.ClampTemperature(p.Temperature)
	}
	if p.MaxTokens != 0 {
		p.MaxTokens = loop.ClampMaxTokens(p.MaxTokens)
	}

	var out struct {
		Loop        *loop.Loop        `json:"loop"`
		Participant *loop.Participant `json:"participant"`
	}
	err := c.do(ctx, http.MethodPost, "/loop/"+loopID+"/participant", p, &out)
	if err != nil {
		return nil, nil, err
	}
	return out.Loop, out.Participant, nil
}

// UpdateParticipant applies a partial edit and returns the full aggregate.
func (c *Client) UpdateParticipant(ctx context.Context, loopID, participantID string, u loop.ParticipantUpdate) (*loop.Loop, error) {
	var out loop.Loop
	err := c.do(ctx, http.MethodPut, "/loop/"+loopID+"/participant/"+participantID, u.Clamped(), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveParticipant deletes a participant and returns the full aggregate.
func (c *Client) RemoveParticipant(ctx context.Context, loopID, participantID string) (*loop.Loop, error) {
	var out aggregateEnvelope
	err := c.do(ctx, http.MethodDelete, "/loop/"+loopID+"/participant/"+participantID, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Loop, nil
}

// ReorderParticipants replaces the participant ordering with the given id
// permutation; the server restores contiguous order indices.
func (c *Client) ReorderParticipants(ctx context.Context, loopID string, participantIDs []string) (*loop.Loop, error) {
	var out aggregateEnvelope
	body := map[string][]string{"participant_ids": participantIDs}
	err := c.do(ctx, http.MethodPost, "/loop/"+loopID+"/reorder", body, &out)
	if err != nil {
		return nil, err
	}
	return out.Loop, nil
}

// AddStopSequence appends a stop sequence.
func (c *Client) AddStopSequence(ctx context.Context, loopID string, s NewStopSequence) (*loop.Loop, *loop.StopSequence, error) {
	if s.Temperature != 0 {
		s.Temperature = loop.ClampTemperature(s.Temperature)
	}
	if s.MaxTokens != 0 {
		s.MaxTokens = loop.ClampMaxTokens(s.MaxTokens)
	}

	var out struct {
		Loop         *loop.Loop         `json:"loop"`
		StopSequence *loop.StopSequence `json:"stop_sequence"`
	}
	err := c.do(ctx, http.MethodPost, "/loop/"+loopID+"/stop_sequence", s, &out)
	if err != nil {
		return nil, nil, err
	}
	return out.Loop, out.StopSequence, nil
}

// UpdateStopSequence applies a partial edit and returns the full aggregate.
func (c *Client) UpdateStopSequence(ctx context.Context, loopID, stopID string, u loop.StopSequenceUpdate) (*loop.Loop, error) {
	var out loop.Loop
	err := c.do(ctx, http.MethodPut, "/loop/"+loopID+"/stop_sequence/"+stopID, u.Clamped(), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveStopSequence deletes a stop sequence and returns the full aggregate.
func (c *Client) RemoveStopSequence(ctx context.Context, loopID, stopID string) (*loop.Loop, error) {
	var out aggregateEnvelope
	err := c.do(ctx, http.MethodDelete, "/loop/"+loopID+"/stop_sequence/"+stopID, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Loop, nil
}

// ReorderStopSequences replaces the stop-sequence ordering.
func (c *Client) ReorderStopSequences(ctx context.Context, loopID string, stopIDs []string) (*loop.Loop, error) {
	var out aggregateEnvelope
	body := map[string][]string{"stop_sequence_ids": stopIDs}
	err := c.do(ctx, http.MethodPost, "/loop/"+loopID+"/reorder_stop_sequences", body, &out)
	if err != nil {
		return nil, err
	}
	return out.Loop, nil
}

// Start requests the stopped→running transition with the initial prompt.
func (c *Client) Start(ctx context.Context, loopID, initialPrompt string) (*loop.Loop, error) {
	var out aggregateEnvelope
	body := map[string]string{"initial_prompt": initialPrompt}
	err := c.do(ctx, http.MethodPost, "/loop/"+loopID+"/start", body, &out)
	if err != nil {
		return nil, err
	}
	return out.Loop, nil
}

// Pause requests the running→paused transition.
func (c *Client) Pause(ctx context.Context, loopID string) (*loop.Loop, error) {
	return c.lifecycle(ctx, loopID, "pause")
}

// Resume requests the paused→running transition.
func (c *Client) Resume(ctx context.Context, loopID string) (*loop.Loop, error) {
	return c.lifecycle(ctx, loopID, "resume")
}

// Stop requests the transition to stopped.
func (c *Client) Stop(ctx context.Context, loopID string) (*loop.Loop, error) {
	return c.lifecycle(ctx, loopID, "stop")
}

// Reset clears the transcript while preserving the configuration.
func (c *Client) Reset(ctx context.Context, loopID string) (*loop.Loop, error) {
	return c.lifecycle(ctx, loopID, "reset")
}

func (c *Client) lifecycle(ctx context.Context, loopID, op string) (*loop.Loop, error) {
	var out aggregateEnvelope
	if err := c.do(ctx, http.MethodPost, "/loop/"+loopID+"/"+op, nil, &out); err != nil {
		return nil, err
	}
	return out.Loop, nil
}

// do issues one JSON request and decodes the response into dest (which may be
// nil for ack-only endpoints).
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return tanderr.Wrapf(err, tanderr.CodeAPIResponseInvalid, "encoding %s %s", method, path)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return tanderr.Wrapf(err, tanderr.CodeAPINetworkFailure, "building %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err, method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rejectionError(resp, method, path)
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return tanderr.Wrapf(err, tanderr.CodeAPIResponseInvalid, "decoding %s %s response", method, path)
	}
	return nil
}

// classifyTransportError separates timeouts and refused connections from
// generic transport failures so callers can report them distinctly.
func classifyTransportError(err error, method, path string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return tanderr.Wrapf(err, tanderr.CodeAPITimeout, "%s %s timed out", method, path)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return tanderr.Wrapf(err, tanderr.CodeAPITimeout, "%s %s timed out", method, path)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return tanderr.Wrapf(err, tanderr.CodeAPIServerNotRunning, "loop backend is not reachable")
	}

	return tanderr.Wrapf(err, tanderr.CodeAPINetworkFailure, "%s %s failed", method, path)
}

// rejectionError extracts the server's message from a non-2xx response.
// The backend answers errors as {"error": "..."}.
func rejectionError(resp *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		msg = payload.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("server returned status %d", resp.StatusCode)
	}

	return tanderr.New(tanderr.CodeAPIRejected, msg,
		tanderr.Field("status_code", resp.StatusCode),
		tanderr.Field("endpoint", method+" "+path),
	)
}
