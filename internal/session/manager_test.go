package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"govorilka/internal/chat"
	"govorilka/internal/transport"
	"govorilka/internal/wire"
)

type fakeBinding struct {
	identity     string
	subscribed   []string
	subscribeErr error
	subscribes   int
	unsubscribes int
	listeners    []transport.Listener
	published    []wire.PublishRequest
	publishErr   error
}

func (f *fakeBinding) SetIdentity(uuid string) error {
	f.identity = uuid
	return nil
}

func (f *fakeBinding) Subscribe(channels []string, withPresence bool) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribes++
	f.subscribed = append(f.subscribed, channels...)
	return nil
}

func (f *fakeBinding) Unsubscribe(channels []string) error { return nil }

func (f *fakeBinding) UnsubscribeAll() error {
	f.unsubscribes++
	f.subscribed = nil
	return nil
}

func (f *fakeBinding) Publish(req wire.PublishRequest) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, req)
	return nil
}

func (f *fakeBinding) AddListener(l transport.Listener) {
	f.listeners = append(f.listeners, l)
}

func (f *fakeBinding) SubscribedChannels() []string { return f.subscribed }

func (f *fakeBinding) HereNow(ctx context.Context, params wire.HereNowParams) (wire.HereNowResponse, error) {
	return wire.HereNowResponse{}, nil
}

func (f *fakeBinding) UUIDMetadata(ctx context.Context) ([]wire.UUIDMetadata, error) {
	return nil, nil
}

// emit pushes an event through every registered listener, the way the
// transport read pump would.
func (f *fakeBinding) emitMessage(t *testing.T, payload []byte) {
	t.Helper()
	for _, l := range f.listeners {
		l.OnMessage(payload)
	}
}

func (f *fakeBinding) emitPresence(t *testing.T, payload []byte) {
	t.Helper()
	for _, l := range f.listeners {
		l.OnPresence(payload)
	}
}

type recorder struct {
	messages []chat.Message
	online   []string
	offline  []string
}

func (r *recorder) callbacks() (func(chat.Message), func(string), func(string)) {
	return func(m chat.Message) { r.messages = append(r.messages, m) },
		func(uuid string) { r.offline = append(r.offline, uuid) },
		func(uuid string) { r.online = append(r.online, uuid) }
}

func connect(t *testing.T, m *Manager, rec *recorder) {
	t.Helper()
	onMessage, onOffline, onOnline := rec.callbacks()
	require.NoError(t, m.Connect("room1", "alice", onMessage, onOffline, onOnline))
}

func TestConnect_SubscribesWithPresence(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)

	connect(t, m, &recorder{})

	require.Equal(t, "alice", binding.identity)
	require.Equal(t, []string{"room1"}, binding.subscribed)
	require.Len(t, binding.listeners, 1)
	require.Equal(t, "room1", m.Channel())
	require.Equal(t, "alice", m.Identity())
}

func TestConnect_Idempotent(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	rec := &recorder{}

	connect(t, m, rec)
	connect(t, m, rec)

	require.Equal(t, 1, binding.subscribes, "second connect must not resubscribe")
	require.Len(t, binding.listeners, 1, "second connect must not register another listener pair")

	// One inbound event still produces exactly one callback.
	payload, err := wire.JSON.Marshal(wire.MessageEvent{Channel: "room1", Publisher: "bob", Message: "hi"})
	require.NoError(t, err)
	binding.emitMessage(t, payload)
	require.Len(t, rec.messages, 1)
}

func TestConnect_EmptyIdentityNoOp(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	rec := &recorder{}

	onMessage, onOffline, onOnline := rec.callbacks()
	require.NoError(t, m.Connect("room1", "", onMessage, onOffline, onOnline))
	require.Zero(t, binding.subscribes)
	require.Empty(t, binding.identity)
}

func TestConnect_SubscribeError(t *testing.T) {
	binding := &fakeBinding{subscribeErr: errors.New("boom")}
	m := NewManager(binding, wire.JSON)
	rec := &recorder{}

	onMessage, onOffline, onOnline := rec.callbacks()
	err := m.Connect("room1", "alice", onMessage, onOffline, onOnline)
	require.Error(t, err)
	require.Empty(t, binding.listeners, "no listener may be registered after a failed subscribe")
	require.Empty(t, m.Channel(), "a failed subscribe must leave the manager unbound")

	// With no subscription the manager must not publish anywhere.
	require.NoError(t, m.Send("hi"))
	require.Empty(t, binding.published)
}

func TestTranslation_MessageEvent(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	rec := &recorder{}
	connect(t, m, rec)

	payload, err := wire.JSON.Marshal(wire.MessageEvent{Channel: "room1", Publisher: "bob", Message: "hello"})
	require.NoError(t, err)
	binding.emitMessage(t, payload)

	require.Equal(t, []chat.Message{{Text: "hello", Sender: "bob"}}, rec.messages)
}

func TestTranslation_PresenceActions(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	rec := &recorder{}
	connect(t, m, rec)

	for _, tc := range []struct {
		action wire.PresenceAction
		uuid   string
	}{
		{wire.PresenceJoin, "bob"},
		{wire.PresenceLeave, "carol"},
		{wire.PresenceTimeout, "dave"},
	} {
		payload, err := wire.JSON.Marshal(wire.PresenceEvent{Channel: "room1", UUID: tc.uuid, Action: tc.action})
		require.NoError(t, err)
		binding.emitPresence(t, payload)
	}

	require.Equal(t, []string{"bob"}, rec.online)
	require.Equal(t, []string{"carol", "dave"}, rec.offline)
}

func TestTranslation_MalformedEventsDropped(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	rec := &recorder{}
	connect(t, m, rec)

	// Garbage, missing message body, unknown action, missing uuid.
	binding.emitMessage(t, []byte("{not json"))
	binding.emitMessage(t, []byte(`{"channel":"room1","publisher":"bob"}`))
	binding.emitPresence(t, []byte(`{"uuid":"bob","action":"interval"}`))
	binding.emitPresence(t, []byte(`{"action":"join"}`))

	require.Empty(t, rec.messages)
	require.Empty(t, rec.online)
	require.Empty(t, rec.offline)

	// The listener keeps working after malformed events.
	payload, err := wire.JSON.Marshal(wire.MessageEvent{Channel: "room1", Publisher: "bob", Message: "still here"})
	require.NoError(t, err)
	binding.emitMessage(t, payload)
	require.Len(t, rec.messages, 1)
}

func TestSend(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	connect(t, m, &recorder{})

	require.NoError(t, m.Send("hi"))
	require.Equal(t, []wire.PublishRequest{{Channel: "room1", Message: "hi"}}, binding.published)
}

func TestSend_NoSubscriptionNoOp(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)

	require.NoError(t, m.Send("hi"))
	require.Empty(t, binding.published)
}

func TestSend_EmptyTextNoOp(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	connect(t, m, &recorder{})

	require.NoError(t, m.Send(""))
	require.Empty(t, binding.published)
}

func TestDisconnect(t *testing.T) {
	binding := &fakeBinding{}
	m := NewManager(binding, wire.JSON)
	connect(t, m, &recorder{})

	m.Disconnect()
	require.Equal(t, 1, binding.unsubscribes)
	require.Empty(t, m.Channel())
	require.Empty(t, m.Identity())

	// Safe to call again with nothing live.
	m.Disconnect()
	require.Equal(t, 2, binding.unsubscribes)
}
