package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"avatarstream/native/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	status []string
	alerts []string
}

func (r *recordingReporter) Status(msg string) { r.status = append(r.status, msg) }
func (r *recordingReporter) Alert(msg string)  { r.alerts = append(r.alerts, msg) }

type capturedRequest struct {
	path   string
	apiKey string
	ctype  string
	body   map[string]any
}

func newServer(t *testing.T, status int, body string, got *[]capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		*got = append(*got, capturedRequest{
			path:   r.URL.Path,
			apiKey: r.Header.Get("X-Api-Key"),
			ctype:  r.Header.Get("Content-Type"),
			body:   m,
		})
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// operations runs each of the five signaling calls and returns the payload
// as raw JSON so the same assertions apply to all of them.
var operations = []struct {
	name string
	path string
	call func(ctx context.Context, c *Client) (json.RawMessage, error)
}{
	{"new", pathNew, func(ctx context.Context, c *Client) (json.RawMessage, error) {
		s, err := c.NewSession(ctx, domain.NewSessionRequest{Quality: "high", AvatarName: "anna", Voice: domain.Voice{VoiceID: "v1"}})
		if s == nil {
			return nil, err
		}
		raw, _ := json.Marshal(s)
		return raw, err
	}},
	{"start", pathStart, func(ctx context.Context, c *Client) (json.RawMessage, error) {
		return c.StartSession(ctx, "abc", domain.SDPPayload{Type: "answer", SDP: "v=0"})
	}},
	{"ice", pathICE, func(ctx context.Context, c *Client) (json.RawMessage, error) {
		return c.SubmitICECandidate(ctx, "abc", domain.ICECandidate{Candidate: "candidate:1"})
	}},
	{"task", pathTask, func(ctx context.Context, c *Client) (json.RawMessage, error) {
		return c.SendTask(ctx, "abc", "hello", domain.TaskTalk)
	}},
	{"stop", pathStop, func(ctx context.Context, c *Client) (json.RawMessage, error) {
		return c.StopSession(ctx, "abc")
	}},
}

func TestClient_ServerErrorOnHTTP500(t *testing.T) {
	for _, op := range operations {
		t.Run(op.name, func(t *testing.T) {
			var reqs []capturedRequest
			srv := newServer(t, http.StatusInternalServerError, `{"data":"boom"}`, &reqs)
			rep := &recordingReporter{}
			c := NewClient(srv.URL, "key", rep)

			payload, err := op.call(context.Background(), c)

			require.Error(t, err)
			var serr *domain.ServerError
			require.True(t, errors.As(err, &serr), "expected ServerError, got %T", err)
			assert.Nil(t, payload)
			require.Len(t, rep.status, 1)
			assert.Contains(t, rep.status[0], "Server Error")
			require.Len(t, reqs, 1)
			assert.Equal(t, op.path, reqs[0].path)
		})
	}
}

func TestClient_UnwrapsDataEnvelope(t *testing.T) {
	for _, op := range operations {
		if op.name == "new" || op.name == "ice" {
			continue
		}
		t.Run(op.name, func(t *testing.T) {
			var reqs []capturedRequest
			srv := newServer(t, http.StatusOK, `{"code":100,"data":{"status":"ok","n":[1,2]}}`, &reqs)
			c := NewClient(srv.URL, "key", nil)

			payload, err := op.call(context.Background(), c)

			require.NoError(t, err)
			assert.JSONEq(t, `{"status":"ok","n":[1,2]}`, string(payload))
		})
	}
}

func TestClient_SubmitICECandidateReturnsWholeBody(t *testing.T) {
	var reqs []capturedRequest
	srv := newServer(t, http.StatusOK, `{"code":100,"data":"ok"}`, &reqs)
	c := NewClient(srv.URL, "key", nil)

	mid := "0"
	idx := uint16(0)
	payload, err := c.SubmitICECandidate(context.Background(), "abc", domain.ICECandidate{
		Candidate:     "candidate:1 1 udp 2122260223 10.0.0.2 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"code":100,"data":"ok"}`, string(payload))
	require.Len(t, reqs, 1)
	assert.Equal(t, "abc", reqs[0].body["session_id"])
	cand := reqs[0].body["candidate"].(map[string]any)
	assert.Equal(t, "0", cand["sdpMid"])
	assert.Nil(t, cand["usernameFragment"])
}

func TestClient_NewSessionDecodesSession(t *testing.T) {
	var reqs []capturedRequest
	srv := newServer(t, http.StatusOK, `{"data":{
		"session_id":"abc",
		"sdp":{"type":"offer","sdp":"v=0\r\n"},
		"ice_servers2":[{"urls":"stun:stun.example.com"},{"urls":["turn:t.example.com"],"username":"u","credential":"p"}]
	}}`, &reqs)
	c := NewClient(srv.URL+"/", "secret", nil)

	s, err := c.NewSession(context.Background(), domain.NewSessionRequest{
		Quality:    "high",
		AvatarName: "anna",
		Voice:      domain.Voice{VoiceID: "v1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, "offer", s.SDP.Type)
	require.Len(t, s.ICEServers, 2)
	assert.Equal(t, domain.URLList{"stun:stun.example.com"}, s.ICEServers[0].URLs)
	assert.Equal(t, "u", s.ICEServers[1].Username)

	require.Len(t, reqs, 1)
	assert.Equal(t, pathNew, reqs[0].path)
	assert.Equal(t, "secret", reqs[0].apiKey)
	assert.Equal(t, "application/json", reqs[0].ctype)
	assert.Equal(t, "high", reqs[0].body["quality"])
	assert.Equal(t, "anna", reqs[0].body["avatar_name"])
	assert.Equal(t, map[string]any{"voice_id": "v1"}, reqs[0].body["voice"])
}

func TestClient_SendTaskBody(t *testing.T) {
	var reqs []capturedRequest
	srv := newServer(t, http.StatusOK, `{"data":"ok"}`, &reqs)
	c := NewClient(srv.URL, "key", nil)

	_, err := c.SendTask(context.Background(), "abc", "say this", domain.TaskRepeat)

	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{"session_id": "abc", "text": "say this", "task_type": "repeat"}, reqs[0].body)
}

func TestClient_NonJSONResponseFails(t *testing.T) {
	var reqs []capturedRequest
	srv := newServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, &reqs)
	rep := &recordingReporter{}
	c := NewClient(srv.URL, "key", rep)

	_, err := c.StopSession(context.Background(), "abc")

	require.Error(t, err)
	var serr *domain.ServerError
	assert.False(t, errors.As(err, &serr))
	assert.Empty(t, rep.status)
}
