package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"avatarstream/native/internal/domain"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle stage of the current avatar session.
type State int

const (
	StateNoSession State = iota
	StateCreated
	StateStarted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no-session"
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	msgCreateFirst    = "Please create a connection first"
	msgAlreadyStarted = "Session already started"
	msgEnterTask      = "Please enter a task"

	LabelStartAudio = "Start Audio Input"
	LabelStopAudio  = "Stop Audio Input"
)

// SessionContext is everything that belongs to the one live session.
type SessionContext struct {
	State       State
	Session     *domain.Session
	Peer        domain.Peer
	Audio       domain.AudioCapture
	AudioActive bool

	// Answer is the local answer once created; a failed start reuses it.
	Answer *domain.SDPPayload

	// cancel stops background work bound to the session, e.g. ICE submissions.
	cancel context.CancelFunc
}

func (sc *SessionContext) live() bool {
	return sc.State == StateCreated || sc.State == StateStarted
}

// Controller drives the session workflow behind the user's controls.
// Actions are serialized; peer callbacks never take the lock.
type Controller struct {
	signal  domain.Signaler
	peers   domain.PeerFactory
	devices domain.MediaDevices
	report  domain.Reporter
	quality string

	mu sync.Mutex
	sc SessionContext

	// pending tracks in-flight ICE submissions. iceMu orders pending.Add
	// against the session cancel so no Add happens once Wait may run.
	iceMu   sync.Mutex
	pending sync.WaitGroup
}

// NewController wires the workflow. quality is sent with every new session.
func NewController(signal domain.Signaler, peers domain.PeerFactory, devices domain.MediaDevices, report domain.Reporter, quality string) *Controller {
	return &Controller{
		signal:  signal,
		peers:   peers,
		devices: devices,
		report:  report,
		quality: quality,
	}
}

// State returns the current lifecycle stage.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sc.State
}

// SessionID returns the id of the live session, or "" without one.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sc.live() {
		return ""
	}
	return c.sc.Session.ID
}

// AudioLabel is the text of the microphone control.
func (c *Controller) AudioLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return audioLabel(c.sc.AudioActive)
}

func audioLabel(active bool) string {
	if active {
		return LabelStopAudio
	}
	return LabelStartAudio
}

func (c *Controller) reject(action, msg string) error {
	c.report.Status(msg)
	return &domain.PreconditionError{Action: action, Message: msg}
}

// NewSession creates a session on the service and prepares the peer
// connection with its offer. A live session is closed first.
func (c *Controller) NewSession(ctx context.Context, avatar, voice string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report.Status("Creating new session... please wait")

	if c.sc.live() {
		c.report.Status("Closing the previous session first")
		c.closeLocked(ctx)
	}

	s, err := c.signal.NewSession(ctx, domain.NewSessionRequest{
		Quality:    c.quality,
		AvatarName: avatar,
		Voice:      domain.Voice{VoiceID: voice},
	})
	if err != nil {
		return wrapCall("new session", err)
	}

	peer, err := c.peers.NewPeer(s.ICEServers)
	if err != nil {
		c.report.Status("Failed to create the peer connection")
		return fmt.Errorf("new session: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.registerHandlers(sessCtx, s.ID, peer)

	audio := c.captureAudio(ctx, peer)

	if err := peer.SetRemoteDescription(s.SDP); err != nil {
		c.cancelSession(cancel)
		if audio != nil {
			_ = audio.Close()
		}
		_ = peer.Close()
		c.report.Status("Failed to apply the server offer")
		return fmt.Errorf("new session: %w", err)
	}

	c.sc = SessionContext{
		State:   StateCreated,
		Session: s,
		Peer:    peer,
		Audio:   audio,
		cancel:  cancel,
	}

	log.Info().Str("module", "session").Str("session_id", s.ID).Msg("session created")
	c.report.Status("Session creation completed")
	c.report.Status("Now.You can click the start button to start the stream")
	return nil
}

func (c *Controller) registerHandlers(ctx context.Context, sessionID string, peer domain.Peer) {
	l := log.With().Str("module", "session").Str("session_id", sessionID).Logger()

	peer.OnICECandidate(func(candidate *domain.ICECandidate) {
		if candidate == nil {
			return
		}
		cand := *candidate
		c.iceMu.Lock()
		if ctx.Err() != nil {
			c.iceMu.Unlock()
			return
		}
		c.pending.Add(1)
		c.iceMu.Unlock()
		go func() {
			defer c.pending.Done()
			if _, err := c.signal.SubmitICECandidate(ctx, sessionID, cand); err != nil {
				l.Error().Err(err).Msg("submit ICE candidate")
			}
		}()
	})

	peer.OnICEConnectionStateChange(func(state string) {
		c.report.Status("ICE connection state changed to: " + state)
	})

	peer.OnTrack(func(kind, mimeType string) {
		l.Info().Str("kind", kind).Str("codec", mimeType).Msg("Received the track")
	})

	peer.OnDataChannelMessage(func(label string, data []byte) {
		l.Info().Str("label", label).Str("message", string(data)).Msg("Received message")
	})
}

// captureAudio acquires the microphone and adds it, muted, to peer. A
// failure is reported and the session continues without local audio.
func (c *Controller) captureAudio(ctx context.Context, peer domain.Peer) domain.AudioCapture {
	if c.devices == nil {
		return nil
	}

	audio, err := c.devices.CaptureAudio(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "session").Msg("Error accessing microphone")
		c.report.Status("Error accessing microphone: " + err.Error())
		return nil
	}

	audio.SetEnabled(false)
	if err := peer.AddLocalTrack(audio.Track()); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("add microphone track")
		c.report.Status("Error adding the microphone track")
		_ = audio.Close()
		return nil
	}
	return audio
}

// Start answers the service's offer and starts streaming.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.sc.State {
	case StateCreated:
	case StateStarted:
		return c.reject("start session", msgAlreadyStarted)
	default:
		return c.reject("start session", msgCreateFirst)
	}

	c.report.Status("Starting session... please wait")

	if c.sc.Answer == nil {
		answer, err := c.sc.Peer.CreateAnswer()
		if err != nil {
			c.report.Status("Failed to create the local answer")
			return fmt.Errorf("start session: %w", err)
		}
		c.sc.Answer = &answer
	}

	if _, err := c.signal.StartSession(ctx, c.sc.Session.ID, *c.sc.Answer); err != nil {
		return wrapCall("start session", err)
	}

	c.sc.State = StateStarted
	c.report.Status("Session started successfully")
	return nil
}

// SendTask sends text for the avatar to talk about or repeat.
func (c *Controller) SendTask(ctx context.Context, text string, kind domain.TaskType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sc.live() {
		return c.reject("send task", msgCreateFirst)
	}
	if strings.TrimSpace(text) == "" {
		c.report.Alert(msgEnterTask)
		return &domain.PreconditionError{Action: "send task", Message: msgEnterTask}
	}
	if _, err := domain.ParseTaskType(string(kind)); err != nil {
		return fmt.Errorf("send task: %w", err)
	}

	c.report.Status("Sending task... please wait")

	if _, err := c.signal.SendTask(ctx, c.sc.Session.ID, text, kind); err != nil {
		return wrapCall("send task", err)
	}

	c.report.Status("Task sent successfully")
	return nil
}

// ToggleAudio switches the microphone on or off and returns the new label
// of the microphone control.
func (c *Controller) ToggleAudio() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sc.AudioActive = !c.sc.AudioActive
	if c.sc.Audio != nil {
		c.sc.Audio.SetEnabled(c.sc.AudioActive)
	}
	return audioLabel(c.sc.AudioActive)
}

// Close tears down the peer connection and stops the session on the service.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sc.live() {
		return c.reject("close session", msgCreateFirst)
	}

	c.report.Status("Closing connection... please wait")
	c.closeLocked(ctx)
	c.report.Status("Connection closed successfully")
	return nil
}

// Shutdown closes a live session, if any, when the program exits.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sc.live() {
		c.closeLocked(ctx)
	}
	c.pending.Wait()
}

// closeLocked releases local resources first; the remote stop is best effort.
func (c *Controller) closeLocked(ctx context.Context) {
	sc := &c.sc
	l := log.With().Str("module", "session").Str("session_id", sc.Session.ID).Logger()

	if err := sc.Peer.Close(); err != nil {
		l.Error().Err(err).Msg("close peer connection")
	}
	c.cancelSession(sc.cancel)
	if sc.Audio != nil {
		if err := sc.Audio.Close(); err != nil {
			l.Warn().Err(err).Msg("release microphone")
		}
	}

	resp, err := c.signal.StopSession(ctx, sc.Session.ID)
	if err != nil {
		l.Error().Err(err).Msg("Failed to close the connection")
	} else {
		l.Info().RawJSON("response", nonEmptyJSON(resp)).Msg("session stopped")
	}

	sc.State = StateClosed
	sc.Peer = nil
	sc.Audio = nil
	sc.AudioActive = false
	sc.Answer = nil
	sc.cancel = nil
}

// cancelSession stops session-bound work. Taking iceMu means no ICE
// submission is added after this returns.
func (c *Controller) cancelSession(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	c.iceMu.Lock()
	defer c.iceMu.Unlock()
	cancel()
}

// wrapCall prefixes op unless err is a ServerError, which already names it.
func wrapCall(op string, err error) error {
	var serr *domain.ServerError
	if errors.As(err, &serr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nonEmptyJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
