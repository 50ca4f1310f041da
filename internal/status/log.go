package status

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind distinguishes plain status lines from alerts.
type Kind string

const (
	KindStatus Kind = "status"
	KindAlert  Kind = "alert"
)

// Event is one entry of the status transcript.
type Event struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

const subscriberBuffer = 64

// Log is the append-only status transcript shown to the user.
// It implements domain.Reporter.
type Log struct {
	mu     sync.Mutex
	lines  []string
	nextID int
	subs   map[int]chan Event
}

// New creates an empty Log.
func New() *Log {
	return &Log{subs: make(map[int]chan Event)}
}

// Status appends a status line.
func (l *Log) Status(msg string) {
	log.Debug().Str("module", "status").Msg(msg)
	l.append(Event{Kind: KindStatus, Text: msg})
}

// Alert appends an alert. Alerts need the user's attention, e.g. a rejected action.
func (l *Log) Alert(msg string) {
	log.Debug().Str("module", "status").Str("kind", string(KindAlert)).Msg(msg)
	l.append(Event{Kind: KindAlert, Text: msg})
}

func (l *Log) append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Kind == KindAlert {
		l.lines = append(l.lines, "Alert: "+ev.Text)
	} else {
		l.lines = append(l.lines, ev.Text)
	}
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop
		}
	}
}

// Lines returns a snapshot of the transcript.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Subscribe returns a channel receiving every event appended from now on.
// The returned func unsubscribes and closes the channel.
func (l *Log) Subscribe() (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.subscribeLocked()
}

// Follow is Subscribe plus the transcript so far, taken atomically so no
// line is both in the history and on the channel.
func (l *Log) Follow() ([]string, <-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := make([]string, len(l.lines))
	copy(history, l.lines)
	ch, cancel := l.subscribeLocked()
	return history, ch, cancel
}

func (l *Log) subscribeLocked() (<-chan Event, func()) {
	id := l.nextID
	l.nextID++
	ch := make(chan Event, subscriberBuffer)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}
