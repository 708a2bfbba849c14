// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// httpError converts a registry error into the wire envelope with the status
// its code maps to.
func httpError(err error) error {
	return huma.NewError(tanderr.HTTPStatus(err), err.Error())
}

type loopResponse struct {
	Body *loop.Loop
}

type loopListResponse struct {
	Body []*loop.Loop
}

type loopEnvelope struct {
	Loop *loop.Loop `json:"loop"`
}

type loopEnvelopeResponse struct {
	Body loopEnvelope
}

type titleBody struct {
	Title string `json:"title"`
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "create-loop",
		Method:      http.MethodPost,
		Path:        "/loop/new",
		Summary:     "Create a loop",
		Tags:        []string{"loops"},
	}, s.handleCreateLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-loops",
		Method:      http.MethodGet,
		Path:        "/loop/list",
		Summary:     "List loops",
		Tags:        []string{"loops"},
	}, s.handleListLoops)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-loop",
		Method:      http.MethodGet,
		Path:        "/loop/{id}",
		Summary:     "Get a loop",
		Tags:        []string{"loops"},
	}, s.handleGetLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "rename-loop",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/title",
		Summary:     "Rename a loop",
		Tags:        []string{"loops"},
	}, s.handleRenameLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "set-max-turns",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/max_turns",
		Summary:     "Set or clear the loop's turn cap",
		Tags:        []string{"loops"},
	}, s.handleSetMaxTurns)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-loop",
		Method:      http.MethodDelete,
		Path:        "/loop/{id}",
		Summary:     "Delete a loop",
		Tags:        []string{"loops"},
	}, s.handleDeleteLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "add-participant",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/participant",
		Summary:     "Add a participant",
		Tags:        []string{"participants"},
	}, s.handleAddParticipant)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-participant",
		Method:      http.MethodPut,
		Path:        "/loop/{id}/participant/{pid}",
		Summary:     "Update a participant",
		Tags:        []string{"participants"},
	}, s.handleUpdateParticipant)

	huma.Register(s.api, huma.Operation{
		OperationID: "remove-participant",
		Method:      http.MethodDelete,
		Path:        "/loop/{id}/participant/{pid}",
		Summary:     "Remove a participant",
		Tags:        []string{"participants"},
	}, s.handleRemoveParticipant)

	huma.Register(s.api, huma.Operation{
		OperationID: "reorder-participants",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/reorder",
		Summary:     "Reorder participants",
		Tags:        []string{"participants"},
	}, s.handleReorderParticipants)

	huma.Register(s.api, huma.Operation{
		OperationID: "add-stop-sequence",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/stop_sequence",
		Summary:     "Add a stop sequence",
		Tags:        []string{"stop-sequences"},
	}, s.handleAddStopSequence)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-stop-sequence",
		Method:      http.MethodPut,
		Path:        "/loop/{id}/stop_sequence/{sid}",
		Summary:     "Update a stop sequence",
		Tags:        []string{"stop-sequences"},
	}, s.handleUpdateStopSequence)

	huma.Register(s.api, huma.Operation{
		OperationID: "remove-stop-sequence",
		Method:      http.MethodDelete,
		Path:        "/loop/{id}/stop_sequence/{sid}",
		Summary:     "Remove a stop sequence",
		Tags:        []string{"stop-sequences"},
	}, s.handleRemoveStopSequence)

	huma.Register(s.api, huma.Operation{
		OperationID: "reorder-stop-sequences",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/reorder_stop_sequences",
		Summary:     "Reorder stop sequences",
		Tags:        []string{"stop-sequences"},
	}, s.handleReorderStopSequences)

	huma.Register(s.api, huma.Operation{
		OperationID: "start-loop",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/start",
		Summary:     "Start a loop",
		Tags:        []string{"lifecycle"},
	}, s.handleStartLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "pause-loop",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/pause",
		Summary:     "Pause a loop",
		Tags:        []string{"lifecycle"},
	}, s.handlePauseLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "resume-loop",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/resume",
		Summary:     "Resume a loop",
		Tags:        []string{"lifecycle"},
	}, s.handleResumeLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-loop",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/stop",
		Summary:     "Stop a loop",
		Tags:        []string{"lifecycle"},
	}, s.handleStopLoop)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-loop",
		Method:      http.MethodPost,
		Path:        "/loop/{id}/reset",
		Summary:     "Reset a loop transcript",
		Tags:        []string{"lifecycle"},
	}, s.handleResetLoop)
}

func (s *Server) handleCreateLoop(_ context.Context, in *struct {
	Body titleBody
}) (*loopResponse, error) {
	return &loopResponse{Body: s.reg.Create(in.Body.Title)}, nil
}

func (s *Server) handleListLoops(_ context.Context, _ *struct{}) (*loopListResponse, error) {
	return &loopListResponse{Body: s.reg.List()}, nil
}

func (s *Server) handleGetLoop(_ context.Context, in *struct {
	ID string `path:"id"`
}) (*loopResponse, error) {
	l, err := s.reg.Get(in.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopResponse{Body: l}, nil
}

func (s *Server) handleRenameLoop(_ context.Context, in *struct {
	ID   string `path:"id"`
	Body titleBody
}) (*loopResponse, error) {
	l, err := s.reg.SetTitle(in.ID, in.Body.Title)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopResponse{Body: l}, nil
}

func (s *Server) handleSetMaxTurns(_ context.Context, in *struct {
	ID   string `path:"id"`
	Body struct {
		MaxTurns *int `json:"max_turns"`
	}
}) (*loopResponse, error) {
	l, err := s.reg.SetMaxTurns(in.ID, in.Body.MaxTurns)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopResponse{Body: l}, nil
}

func (s *Server) handleDeleteLoop(_ context.Context, in *struct {
	ID string `path:"id"`
}) (*struct {
	Body struct {
		Status string `json:"status"`
	}
}, error) {
	if err := s.reg.Delete(in.ID); err != nil {
		return nil, httpError(err)
	}
	out := &struct {
		Body struct {
			Status string `json:"status"`
		}
	}{}
	out.Body.Status = "deleted"
	return out, nil
}

func (s *Server) handleAddParticipant(_ context.Context, in *struct {
	ID   string `path:"id"`
	Body ParticipantPayload
}) (*struct {
	Body struct {
		Loop        *loop.Loop        `json:"loop"`
		Participant *loop.Participant `json:"participant"`
	}
}, error) {
	l, p, err := s.reg.AddParticipant(in.ID, in.Body)
	if err != nil {
		return nil, httpError(err)
	}
	out := &struct {
		Body struct {
			Loop        *loop.Loop        `json:"loop"`
			Participant *loop.Participant `json:"participant"`
		}
	}{}
	out.Body.Loop = l
	out.Body.Participant = p
	return out, nil
}

func (s *Server) handleUpdateParticipant(_ context.Context, in *struct {
	ID   string `path:"id"`
	PID  string `path:"pid"`
	Body loop.ParticipantUpdate
}) (*loopResponse, error) {
	l, err := s.reg.UpdateParticipant(in.ID, in.PID, in.Body)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopResponse{Body: l}, nil
}

func (s *Server) handleRemoveParticipant(_ context.Context, in *struct {
	ID  string `path:"id"`
	PID string `path:"pid"`
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.RemoveParticipant(in.ID, in.PID)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handleReorderParticipants(_ context.Context, in *struct {
	ID   string `path:"id"`
	Body struct {
		ParticipantIDs []string `json:"participant_ids"`
	}
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.ReorderParticipants(in.ID, in.Body.ParticipantIDs)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handleAddStopSequence(_ context.Context, in *struct {
	ID   string `path:"id"`
	Body ParticipantPayload
}) (*struct {
	Body struct {
		Loop         *loop.Loop         `json:"loop"`
		StopSequence *loop.StopSequence `json:"stop_sequence"`
	}
}, error) {
	l, seq, err := s.reg.AddStopSequence(in.ID, in.Body)
	if err != nil {
		return nil, httpError(err)
	}
	out := &struct {
		Body struct {
			Loop         *loop.Loop         `json:"loop"`
			StopSequence *loop.StopSequence `json:"stop_sequence"`
		}
	}{}
	out.Body.Loop = l
	out.Body.StopSequence = seq
	return out, nil
}

func (s *Server) handleUpdateStopSequence(_ context.Context, in *struct {
	ID   string `path:"id"`
	SID  string `path:"sid"`
	Body loop.StopSequenceUpdate
}) (*loopResponse, error) {
	l, err := s.reg.UpdateStopSequence(in.ID, in.SID, in.Body)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopResponse{Body: l}, nil
}

func (s *Server) handleRemoveStopSequence(_ context.Context, in *struct {
	ID  string `path:"id"`
	SID string `path:"sid"`
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.RemoveStopSequence(in.ID, in.SID)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handleReorderStopSequences(_ context.Context, in *struct {
	ID   string `path:"id"`
	Body struct {
		StopSequenceIDs []string `json:"stop_sequence_ids"`
	}
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.ReorderStopSequences(in.ID, in.Body.StopSequenceIDs)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handleStartLoop(_ context.Context, in *struct {
	ID   string `path:"id"`
	Body struct {
		InitialPrompt string `json:"initial_prompt"`
	}
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.Start(in.ID, in.Body.InitialPrompt)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handlePauseLoop(_ context.Context, in *struct {
	ID string `path:"id"`
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.Pause(in.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handleResumeLoop(_ context.Context, in *struct {
	ID string `path:"id"`
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.Resume(in.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handleStopLoop(_ context.Context, in *struct {
	ID string `path:"id"`
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.Stop(in.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}

func (s *Server) handleResetLoop(_ context.Context, in *struct {
	ID string `path:"id"`
}) (*loopEnvelopeResponse, error) {
	l, err := s.reg.Reset(in.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &loopEnvelopeResponse{Body: loopEnvelope{Loop: l}}, nil
}
