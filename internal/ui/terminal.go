package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"

	"govorilka/internal/controller"
	"govorilka/internal/wire"
)

// ErrQuit signals a user-initiated exit.
var ErrQuit = errors.New("quit")

// Dispatcher is the controller surface the terminal talks to: raw user
// input goes in as intents, state comes back as snapshots.
type Dispatcher interface {
	Dispatch(controller.Intent)
	Snapshot() controller.Snapshot
}

// MetadataLister backs the /who command.
type MetadataLister func(ctx context.Context) ([]wire.UUIDMetadata, error)

// Terminal renders controller snapshots and translates input lines into
// intents. It keeps no chat state of its own beyond render bookkeeping.
type Terminal struct {
	ctrl     Dispatcher
	metadata MetadataLister
	in       io.Reader
	out      io.Writer

	mu        sync.Mutex
	rendered  int
	users     string
	connected bool
}

func New(ctrl Dispatcher, metadata MetadataLister, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{ctrl: ctrl, metadata: metadata, in: in, out: out}
}

// Run reads input lines until EOF, /quit, or ctx cancellation.
func (t *Terminal) Run(ctx context.Context) error {
	fmt.Fprintln(t.out, "commands: /name <alias>, /connect, /users, /who, /quit; anything else is sent as a message")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return ErrQuit
			}
			if err := t.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (t *Terminal) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
	case strings.HasPrefix(line, "/name "):
		t.ctrl.Dispatch(controller.SetIdentity{Name: strings.TrimSpace(strings.TrimPrefix(line, "/name "))})
	case line == "/connect":
		t.ctrl.Dispatch(controller.Connect{})
	case line == "/users":
		snap := t.ctrl.Snapshot()
		fmt.Fprintln(t.out, color.Yellow.Sprintf("online: %s", strings.Join(snap.OnlineUsers, ", ")))
	case line == "/who":
		t.printMetadata(ctx)
	case line == "/quit":
		return ErrQuit
	case strings.HasPrefix(line, "/"):
		fmt.Fprintln(t.out, color.Red.Sprintf("unknown command %s", line))
	default:
		t.ctrl.Dispatch(controller.UpdateDraft{Text: line})
		t.ctrl.Dispatch(controller.Send{})
	}
	return nil
}

func (t *Terminal) printMetadata(ctx context.Context) {
	if t.metadata == nil {
		return
	}
	uuids, err := t.metadata(ctx)
	if err != nil {
		fmt.Fprintln(t.out, color.Red.Sprintf("who: %v", err))
		return
	}
	for _, m := range uuids {
		fmt.Fprintln(t.out, color.Yellow.Sprintf("  %s", m.UUID))
	}
}

// Render prints what changed since the previous snapshot. Called from
// the controller loop after every applied intent.
func (t *Terminal) Render(s controller.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.Connected && !t.connected {
		fmt.Fprintln(t.out, color.Green.Sprintf("connected as %s", s.Identity))
	}
	if !s.Connected && t.connected {
		fmt.Fprintln(t.out, color.Red.Sprint("disconnected"))
	}
	t.connected = s.Connected

	for _, m := range s.Messages[min(t.rendered, len(s.Messages)):] {
		if m.Sender == s.Identity {
			fmt.Fprintf(t.out, "%s %s\n", color.Green.Sprintf("%s:", m.Sender), m.Text)
		} else {
			fmt.Fprintf(t.out, "%s %s\n", color.Cyan.Sprintf("%s:", m.Sender), m.Text)
		}
	}
	t.rendered = len(s.Messages)

	users := strings.Join(s.OnlineUsers, ", ")
	if users != t.users {
		fmt.Fprintln(t.out, color.Yellow.Sprintf("online: %s", users))
		t.users = users
	}
}
