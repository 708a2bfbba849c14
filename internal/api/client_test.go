// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tandem-dev/tandem/internal/api"
	"github.com/tandem-dev/tandem/internal/loop"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoop(id string) *loop.Loop {
	return &loop.Loop{ID: id, Title: "t", Status: loop.StatusStopped}
}

func TestCreateLoopPostsTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/loop/new", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "my loop", body["title"])

		_ = json.NewEncoder(w).Encode(testLoop("loop-1"))
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	l, err := c.CreateLoop(context.Background(), "my loop")
	require.NoError(t, err)
	assert.Equal(t, "loop-1", l.ID)
}

func TestGetLoopAndList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/loop/list":
			_ = json.NewEncoder(w).Encode([]*loop.Loop{testLoop("a"), testLoop("b")})
		case "/loop/a":
			_ = json.NewEncoder(w).Encode(testLoop("a"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := api.New(srv.URL)

	loops, err := c.ListLoops(context.Background())
	require.NoError(t, err)
	require.Len(t, loops, 2)

	l, err := c.GetLoop(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", l.ID)
}

func TestAddParticipantClampsAndUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loop/loop-1/participant", r.URL.Path)

		var body api.NewParticipant
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 2.0, body.Temperature)
		assert.Equal(t, 8000, body.MaxTokens)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"loop":        testLoop("loop-1"),
			"participant": &loop.Participant{ID: "p-1", Model: body.Model},
		})
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	l, p, err := c.AddParticipant(context.Background(), "loop-1", api.NewParticipant{
		Model:       "model-a",
		Temperature: 7.5,
		MaxTokens:   50000,
	})
	require.NoError(t, err)
	assert.Equal(t, "loop-1", l.ID)
	assert.Equal(t, "p-1", p.ID)
}

func TestUpdateParticipantSendsOnlySetFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/loop/loop-1/participant/p-1", r.URL.Path)

		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Contains(t, raw, "temperature")
		assert.NotContains(t, raw, "model", "unset fields must be omitted")

		_ = json.NewEncoder(w).Encode(testLoop("loop-1"))
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	_, err := c.UpdateParticipant(context.Background(), "loop-1", "p-1",
		loop.ParticipantUpdate{Temperature: loop.Ptr(0.9)})
	require.NoError(t, err)
}

func TestReorderParticipants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loop/loop-1/reorder", r.URL.Path)

		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"b", "a"}, body["participant_ids"])

		_ = json.NewEncoder(w).Encode(map[string]any{"loop": testLoop("loop-1")})
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	l, err := c.ReorderParticipants(context.Background(), "loop-1", []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, "loop-1", l.ID)
}

func TestStartSendsInitialPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loop/loop-1/start", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "begin the debate", body["initial_prompt"])

		running := testLoop("loop-1")
		running.Status = loop.StatusRunning
		_ = json.NewEncoder(w).Encode(map[string]any{"loop": running})
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	l, err := c.Start(context.Background(), "loop-1", "begin the debate")
	require.NoError(t, err)
	assert.Equal(t, loop.StatusRunning, l.Status)
}

func TestRejectionCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "loop is not running"})
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	_, err := c.Pause(context.Background(), "loop-1")
	require.Error(t, err)
	assert.True(t, tanderr.IsRejection(err))
	assert.Contains(t, err.Error(), "loop is not running")
	assert.Equal(t, 409, tanderr.FieldsOf(err)["status_code"])
}

func TestRejectionWithoutEnvelopeFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	_, err := c.GetLoop(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, tanderr.IsRejection(err))
	assert.Contains(t, err.Error(), "502")
}

func TestServerNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := api.New(srv.URL)
	_, err := c.ListLoops(context.Background())
	require.Error(t, err)
	assert.True(t, tanderr.HasCode(err, tanderr.CodeAPIServerNotRunning))
}

func TestTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetLoop(ctx, "x")
	require.Error(t, err)
	assert.True(t, tanderr.HasCode(err, tanderr.CodeAPITimeout))
}

func TestMalformedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	_, err := c.GetLoop(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, tanderr.HasCode(err, tanderr.CodeAPIResponseInvalid))
}

func TestAuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]*loop.Loop{})
	}))
	defer srv.Close()

	c := api.New(srv.URL, api.WithToken("s3cret"))
	_, err := c.ListLoops(context.Background())
	require.NoError(t, err)
}

func TestDeleteLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/loop/loop-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	require.NoError(t, c.DeleteLoop(context.Background(), "loop-1"))
}

func TestStopSequenceEndpointsMirrorParticipants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/loop/loop-1/stop_sequence":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"loop":          testLoop("loop-1"),
				"stop_sequence": &loop.StopSequence{ID: "s-1", StopCondition: "DONE"},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/loop/loop-1/stop_sequence/s-1":
			_ = json.NewEncoder(w).Encode(testLoop("loop-1"))
		case r.Method == http.MethodDelete && r.URL.Path == "/loop/loop-1/stop_sequence/s-1":
			_ = json.NewEncoder(w).Encode(map[string]any{"loop": testLoop("loop-1")})
		case r.Method == http.MethodPost && r.URL.Path == "/loop/loop-1/reorder_stop_sequences":
			var body map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"s-2", "s-1"}, body["stop_sequence_ids"])
			_ = json.NewEncoder(w).Encode(map[string]any{"loop": testLoop("loop-1")})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := api.New(srv.URL)
	ctx := context.Background()

	_, s, err := c.AddStopSequence(ctx, "loop-1", api.NewStopSequence{Model: "m", StopCondition: "DONE"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.ID)

	_, err = c.UpdateStopSequence(ctx, "loop-1", "s-1", loop.StopSequenceUpdate{StopCondition: loop.Ptr("HALT")})
	require.NoError(t, err)

	_, err = c.RemoveStopSequence(ctx, "loop-1", "s-1")
	require.NoError(t, err)

	_, err = c.ReorderStopSequences(ctx, "loop-1", []string{"s-2", "s-1"})
	require.NoError(t, err)
}
