package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"avatarstream/native/internal/domain"
	"avatarstream/native/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// mockActions records calls for verification.
type mockActions struct {
	calls  []call
	active bool
	err    error
}

func (m *mockActions) NewSession(ctx context.Context, avatar, voice string) error {
	m.calls = append(m.calls, call{"new", []string{avatar, voice}})
	return m.err
}

func (m *mockActions) Start(ctx context.Context) error {
	m.calls = append(m.calls, call{"start", nil})
	return m.err
}

func (m *mockActions) SendTask(ctx context.Context, text string, kind domain.TaskType) error {
	m.calls = append(m.calls, call{string(kind), []string{text}})
	return m.err
}

func (m *mockActions) ToggleAudio() string {
	m.calls = append(m.calls, call{"mic", nil})
	m.active = !m.active
	if m.active {
		return "Stop Audio Input"
	}
	return "Start Audio Input"
}

func (m *mockActions) Close(ctx context.Context) error {
	m.calls = append(m.calls, call{"close", nil})
	return m.err
}

func run(t *testing.T, actions Actions, input string) (string, *status.Log) {
	t.Helper()
	log := status.New()
	c := New(actions, log, "default-avatar", "default-voice")
	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), strings.NewReader(input), &out))
	return out.String(), log
}

func TestConsole_DispatchesCommands(t *testing.T) {
	actions := &mockActions{}

	out, _ := run(t, actions, "new\nstart\ntalk hello there\nrepeat  say this \nmic\nmic\nclose\nquit\ntalk ignored\n")

	assert.Equal(t, []call{
		{"new", []string{"default-avatar", "default-voice"}},
		{"start", nil},
		{"talk", []string{"hello there"}},
		{"repeat", []string{"say this"}},
		{"mic", nil},
		{"mic", nil},
		{"close", nil},
	}, actions.calls)
	assert.Contains(t, out, "[Stop Audio Input]")
	assert.Contains(t, out, "[Start Audio Input]")
}

func TestConsole_NewWithArguments(t *testing.T) {
	actions := &mockActions{}

	run(t, actions, "new anna voice-7\n")

	require.Len(t, actions.calls, 1)
	assert.Equal(t, []string{"anna", "voice-7"}, actions.calls[0].args)
}

func TestConsole_PrintsGreetingAndStatus(t *testing.T) {
	out, log := run(t, &mockActions{}, "status\n")

	assert.Contains(t, out, greeting)
	assert.Equal(t, []string{greeting}, log.Lines())
}

func TestConsole_UnknownCommandPrintsHelp(t *testing.T) {
	actions := &mockActions{}

	out, _ := run(t, actions, "dance\n")

	assert.Empty(t, actions.calls)
	assert.Contains(t, out, "Commands:")
}

func TestConsole_ReportsUnexpectedErrors(t *testing.T) {
	out, _ := run(t, &mockActions{err: errors.New("dial tcp: connection refused")}, "start\n")
	assert.Contains(t, out, "Error: dial tcp: connection refused")

	out, _ = run(t, &mockActions{err: &domain.PreconditionError{Action: "start", Message: "x"}}, "start\n")
	assert.NotContains(t, out, "Error:")
}
