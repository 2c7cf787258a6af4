package session

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"govorilka/internal/chat"
	"govorilka/internal/transport"
	"govorilka/internal/wire"
)

// Manager owns at most one live channel subscription. It assigns the
// identity, subscribes with presence, registers the event listeners and
// translates raw transport events into typed callbacks. It holds no UI
// state; all methods are driven from the controller's intent loop.
type Manager struct {
	binding transport.Binding
	codec   wire.Codec

	channel  string
	identity string
}

func NewManager(binding transport.Binding, codec wire.Codec) *Manager {
	if codec == nil {
		codec = wire.JSON
	}
	return &Manager{binding: binding, codec: codec}
}

// Connect binds identity to channel and registers the listener pair.
// Calling it again for an already-subscribed channel is a no-op, which
// guards against duplicate listener registration and the double
// delivery that would follow. An empty identity is a safe no-op; the
// presentation layer is expected to reject it before dispatching.
//
// The subscribed-channels check leaves a race window if two connects
// land back to back before the first subscribe settles. The provider
// SDK has the same window; it is not locked away here.
func (m *Manager) Connect(
	channel, identity string,
	onMessage func(chat.Message),
	onUserOffline func(uuid string),
	onUserOnline func(uuid string),
) error {
	if identity == "" {
		return nil
	}

	if err := m.binding.SetIdentity(identity); err != nil {
		return fmt.Errorf("set identity: %w", err)
	}
	m.identity = identity

	if lo.Contains(m.binding.SubscribedChannels(), channel) {
		return nil
	}

	if err := m.binding.Subscribe([]string{channel}, true); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	m.channel = channel

	m.binding.AddListener(transport.Listener{
		OnMessage: func(payload []byte) {
			var ev wire.MessageEvent
			if err := m.codec.Unmarshal(payload, &ev); err != nil {
				slog.Warn("dropping undecodable message event", "error", err)
				return
			}
			if ev.Message == "" {
				slog.Warn("dropping message event without message body", "channel", ev.Channel, "publisher", ev.Publisher)
				return
			}
			onMessage(chat.Message{Text: ev.Message, Sender: ev.Publisher})
		},
		OnPresence: func(payload []byte) {
			var ev wire.PresenceEvent
			if err := m.codec.Unmarshal(payload, &ev); err != nil {
				slog.Warn("dropping undecodable presence event", "error", err)
				return
			}
			if ev.UUID == "" {
				slog.Warn("dropping presence event without uuid", "channel", ev.Channel)
				return
			}
			switch ev.Action {
			case wire.PresenceJoin:
				onUserOnline(ev.UUID)
			case wire.PresenceLeave, wire.PresenceTimeout:
				onUserOffline(ev.UUID)
			default:
				slog.Warn("dropping presence event with unknown action", "action", ev.Action, "uuid", ev.UUID)
			}
		},
	})

	return nil
}

// Send publishes text on the bound channel. Empty text and send-before-
// connect are safe no-ops; the controller filters both before calling.
// There is no retry: a failed publish is the caller's to log.
func (m *Manager) Send(text string) error {
	if m.channel == "" || text == "" {
		return nil
	}
	if err := m.binding.Publish(wire.PublishRequest{Channel: m.channel, Message: text}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Disconnect unsubscribes from everything and clears local state. Safe
// to call with no live subscription. The unsubscribe is fire-and-forget:
// on the teardown path the socket may already be gone.
func (m *Manager) Disconnect() {
	m.identity = ""
	m.channel = ""
	if err := m.binding.UnsubscribeAll(); err != nil {
		slog.Warn("unsubscribe on disconnect failed", "error", err)
	}
}

// Channel reports the currently bound channel, empty when disconnected.
func (m *Manager) Channel() string {
	return m.channel
}

// Identity reports the identity locked in by Connect.
func (m *Manager) Identity() string {
	return m.identity
}
