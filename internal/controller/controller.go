package controller

import (
	"context"
	"log/slog"

	"govorilka/internal/chat"
	"govorilka/internal/occupancy"
	"govorilka/internal/wire"
)

const defaultQueueSize = 256

// SessionManager is the slice of the session layer the controller
// drives.
type SessionManager interface {
	Connect(channel, identity string, onMessage func(chat.Message), onUserOffline, onUserOnline func(uuid string)) error
	Send(text string) error
	Disconnect()
}

// OccupancyFetcher issues the one-shot occupancy query. Wired to
// occupancy.Fetch in production; tests substitute their own.
type OccupancyFetcher func(ctx context.Context, channels []string) (wire.HereNowResponse, error)

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	Messages    []chat.Message
	OnlineUsers []string
	PendingText string
	Identity    string
	Connected   bool
}

type Config struct {
	// Channel is the single topic this controller binds a session to.
	Channel   string
	Session   SessionManager
	Occupancy OccupancyFetcher
	// OnRender is called after every applied intent with a fresh
	// snapshot, from the loop goroutine.
	OnRender  func(Snapshot)
	QueueSize int
}

// Controller is the single owner of UI-visible state. All mutation
// happens on the Run goroutine, one intent at a time; mutual exclusion
// is structural, not locked.
type Controller struct {
	conf    Config
	intents chan Intent

	// Owned by the Run goroutine.
	alias             string
	identity          string
	pendingText       string
	messages          []chat.Message
	users             chat.UserSet
	connected         bool
	occupancyInFlight bool
}

func New(conf Config) *Controller {
	if conf.QueueSize <= 0 {
		conf.QueueSize = defaultQueueSize
	}
	return &Controller{
		conf:    conf,
		intents: make(chan Intent, conf.QueueSize),
		users:   chat.NewUserSet(),
	}
}

// Dispatch queues an intent. Callable from any goroutine; blocks if the
// queue is full rather than dropping, so arrival order is preserved.
func (c *Controller) Dispatch(in Intent) {
	c.intents <- in
}

// Snapshot returns a consistent copy of the state. It round-trips
// through the intent queue, so it observes everything dispatched before
// it. Only valid while Run is active.
func (c *Controller) Snapshot() Snapshot {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	c.intents <- req
	return <-req.reply
}

// Run processes intents until ctx is done, then applies Teardown as the
// best-effort shutdown path before returning.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.apply(Teardown{})
			return ctx.Err()
		case in := <-c.intents:
			c.apply(in)
			if c.conf.OnRender != nil {
				if _, ok := in.(snapshotRequest); !ok {
					c.conf.OnRender(c.snapshot())
				}
			}
		}
	}
}

func (c *Controller) apply(in Intent) {
	switch in := in.(type) {
	case SetIdentity:
		if c.connected {
			return
		}
		c.alias = in.Name

	case Connect:
		if c.connected || c.alias == "" {
			return
		}
		err := c.conf.Session.Connect(c.conf.Channel, c.alias,
			func(m chat.Message) { c.Dispatch(MessageReceived{Message: m}) },
			func(uuid string) { c.Dispatch(UserOffline{UUID: uuid}) },
			func(uuid string) { c.Dispatch(UserOnline{UUID: uuid}) },
		)
		if err != nil {
			slog.Error("connect failed", "channel", c.conf.Channel, "error", err)
			return
		}
		c.identity = c.alias
		c.connected = true
		c.fetchOccupancy()

	case UpdateDraft:
		c.pendingText = in.Text

	case Send:
		if c.pendingText == "" {
			return
		}
		// The draft clears once the publish is issued, not once it is
		// confirmed; a failed send looks like a successful one.
		if err := c.conf.Session.Send(c.pendingText); err != nil {
			slog.Error("send failed", "error", err)
		}
		c.pendingText = ""

	case MessageReceived:
		c.messages = append(c.messages, in.Message)

	case UserOnline:
		c.users.Add(in.UUID)

	case UserOffline:
		c.users.Remove(in.UUID)

	case OccupancyFetched:
		c.occupancyInFlight = false
		if in.Err != nil {
			slog.Error("occupancy fetch failed", "channel", c.conf.Channel, "error", in.Err)
			return
		}
		for _, uuid := range occupancy.Occupants(in.Result, []string{c.conf.Channel}) {
			c.apply(UserOnline{UUID: uuid})
		}

	case Teardown:
		c.conf.Session.Disconnect()
		c.connected = false
		c.identity = ""

	case snapshotRequest:
		in.reply <- c.snapshot()
	}
}

// fetchOccupancy schedules the reconciliation query off-loop; its
// completion re-enters as an OccupancyFetched intent. At most one is in
// flight per session, and there is deliberately no timeout: a slow
// transport just delays the intent.
func (c *Controller) fetchOccupancy() {
	if c.conf.Occupancy == nil || c.occupancyInFlight {
		return
	}
	c.occupancyInFlight = true
	go func() {
		resp, err := c.conf.Occupancy(context.Background(), []string{c.conf.Channel})
		c.Dispatch(OccupancyFetched{Result: resp, Err: err})
	}()
}

func (c *Controller) snapshot() Snapshot {
	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	return Snapshot{
		Messages:    messages,
		OnlineUsers: c.users.List(),
		PendingText: c.pendingText,
		Identity:    c.identity,
		Connected:   c.connected,
	}
}
