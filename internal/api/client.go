package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"avatarstream/native/internal/domain"

	"github.com/rs/zerolog/log"
)

const (
	pathNew   = "/v1/realtime.new"
	pathStart = "/v1/realtime.start"
	pathICE   = "/v1/realtime.ice"
	pathTask  = "/v1/realtime.task"
	pathStop  = "/v1/realtime.stop"

	msgServerDown = "Server Error. Please ask the staff if the service has been turned on"
	msgStopFailed = "Server Error. Please ask the staff for help"
)

type startRequest struct {
	SessionID string            `json:"session_id"`
	SDP       domain.SDPPayload `json:"sdp"`
}

type iceRequest struct {
	SessionID string              `json:"session_id"`
	Candidate domain.ICECandidate `json:"candidate"`
}

type taskRequest struct {
	SessionID string          `json:"session_id"`
	Text      string          `json:"text"`
	TaskType  domain.TaskType `json:"task_type"`
}

type stopRequest struct {
	SessionID string `json:"session_id"`
}

// envelope is the response wrapper used by every realtime endpoint.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Client talks to the streaming-avatar signaling API.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	reporter domain.Reporter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates an API client. reporter receives the user-facing
// message when the service fails; it may be nil.
func NewClient(baseURL, apiKey string, reporter domain.Reporter, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     http.DefaultClient,
		reporter: reporter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSession asks the service for a new avatar session, its SDP offer and ICE servers.
func (c *Client) NewSession(ctx context.Context, req domain.NewSessionRequest) (*domain.Session, error) {
	data, err := c.call(ctx, "new session", pathNew, req, msgServerDown, true)
	if err != nil {
		return nil, err
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("new session: unmarshal session: %w", err)
	}
	log.Debug().Str("module", "api").Str("session_id", s.ID).Int("ice_servers", len(s.ICEServers)).Msg("session created")
	return &s, nil
}

// StartSession sends the local SDP answer.
func (c *Client) StartSession(ctx context.Context, sessionID string, sdp domain.SDPPayload) (json.RawMessage, error) {
	return c.call(ctx, "start session", pathStart, startRequest{SessionID: sessionID, SDP: sdp}, msgServerDown, true)
}

// SubmitICECandidate relays a local ICE candidate. Unlike the other calls it
// returns the whole response body.
func (c *Client) SubmitICECandidate(ctx context.Context, sessionID string, candidate domain.ICECandidate) (json.RawMessage, error) {
	return c.call(ctx, "submit ice candidate", pathICE, iceRequest{SessionID: sessionID, Candidate: candidate}, msgServerDown, false)
}

// SendTask asks the avatar to talk about or repeat text.
func (c *Client) SendTask(ctx context.Context, sessionID, text string, kind domain.TaskType) (json.RawMessage, error) {
	return c.call(ctx, "send task", pathTask, taskRequest{SessionID: sessionID, Text: text, TaskType: kind}, msgServerDown, true)
}

// StopSession ends the session on the service side.
func (c *Client) StopSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	return c.call(ctx, "stop session", pathStop, stopRequest{SessionID: sessionID}, msgStopFailed, true)
}

func (c *Client) call(ctx context.Context, op, path string, reqBody any, failMsg string, unwrap bool) (json.RawMessage, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create http request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode == http.StatusInternalServerError {
		log.Error().Str("module", "api").Str("op", op).Str("body", string(respBody)).Msg("server error")
		if c.reporter != nil {
			c.reporter.Status(failMsg)
		}
		return nil, &domain.ServerError{Op: op, Body: string(respBody)}
	}

	if !unwrap {
		if !json.Valid(respBody) {
			return nil, fmt.Errorf("%s: invalid json response (http %d)", op, resp.StatusCode)
		}
		return json.RawMessage(respBody), nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%s: unmarshal response (http %d): %w", op, resp.StatusCode, err)
	}
	return env.Data, nil
}
