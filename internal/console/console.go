package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"avatarstream/native/internal/domain"
	"avatarstream/native/internal/status"

	"github.com/rs/zerolog/log"
)

const greeting = "Please click the new button to create the stream first."

const helpText = `Commands:
  new [avatar] [voice]  create a new session
  start                 start streaming
  talk <text>           let the avatar respond to text
  repeat <text>         let the avatar repeat text
  mic                   toggle the microphone
  close                 close the session
  status                print the status transcript
  help                  show this help
  quit                  exit
`

// Actions is the session workflow driven by the console.
type Actions interface {
	NewSession(ctx context.Context, avatar, voice string) error
	Start(ctx context.Context) error
	SendTask(ctx context.Context, text string, kind domain.TaskType) error
	ToggleAudio() string
	Close(ctx context.Context) error
}

// Console reads one command per line and prints the status transcript.
type Console struct {
	actions Actions
	log     *status.Log
	avatar  string
	voice   string
}

// New creates a Console. avatar and voice are used when "new" has no arguments.
func New(actions Actions, log *status.Log, avatar, voice string) *Console {
	return &Console{actions: actions, log: log, avatar: avatar, voice: voice}
}

// Run executes commands from in until EOF, "quit" or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := c.log.Subscribe()
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			mu.Lock()
			printEvent(out, ev)
			mu.Unlock()
		}
	}()
	defer func() {
		unsubscribe()
		wg.Wait()
	}()

	c.log.Status(greeting)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := c.exec(ctx, line, func(s string) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprint(out, s)
			}); quit {
				return nil
			}
		}
	}
}

func printEvent(out io.Writer, ev status.Event) {
	if ev.Kind == status.KindAlert {
		fmt.Fprintf(out, "! %s\n", ev.Text)
		return
	}
	fmt.Fprintf(out, "%s\n", ev.Text)
}

// exec runs one command line and reports whether the console should exit.
func (c *Console) exec(ctx context.Context, line string, write func(string)) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch strings.ToLower(cmd) {
	case "":
		return false
	case "new":
		avatar, voice := c.avatar, c.voice
		if fields := strings.Fields(rest); len(fields) > 0 {
			avatar = fields[0]
			if len(fields) > 1 {
				voice = fields[1]
			}
		}
		err = c.actions.NewSession(ctx, avatar, voice)
	case "start":
		err = c.actions.Start(ctx)
	case "talk":
		err = c.actions.SendTask(ctx, rest, domain.TaskTalk)
	case "repeat":
		err = c.actions.SendTask(ctx, rest, domain.TaskRepeat)
	case "mic":
		label := c.actions.ToggleAudio()
		write(fmt.Sprintf("[%s]\n", label))
	case "close":
		err = c.actions.Close(ctx)
	case "status":
		for _, l := range c.log.Lines() {
			write(l + "\n")
		}
	case "quit", "exit":
		return true
	default:
		write(helpText)
	}

	if err != nil {
		log.Debug().Err(err).Str("module", "console").Str("command", cmd).Msg("command failed")
		if !alreadyReported(err) {
			write(fmt.Sprintf("Error: %v\n", err))
		}
	}
	return false
}

// alreadyReported is true for failures the workflow put on the status log itself.
func alreadyReported(err error) bool {
	var perr *domain.PreconditionError
	var serr *domain.ServerError
	return errors.As(err, &perr) || errors.As(err, &serr)
}
