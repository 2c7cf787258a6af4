package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"govorilka/internal/wire"
)

const DefaultHeartbeatInterval = 6 * time.Second

var ErrClosed = errors.New("transport closed")

// Config carries the credentials and tuning for a relay connection.
type Config struct {
	URL               string
	PublishKey        string
	SubscribeKey      string
	Codec             wire.Codec
	HeartbeatInterval time.Duration
}

type pendingResult struct {
	payload wire.RawPayload
	err     error
}

// Client is the websocket implementation of Binding. A single Run loop
// owns the read side; writes are serialized by a mutex as required by
// the underlying connection.
type Client struct {
	conf  Config
	codec wire.Codec
	conn  *websocket.Conn

	writeMu sync.Mutex

	mu         sync.Mutex
	identity   string
	subscribed map[string]bool
	listeners  []Listener
	pending    map[string]chan pendingResult
}

// Dial connects to the relay. The codec and a provisional identity are
// negotiated via query parameters; Run must be started afterwards for
// events and request/response calls to flow.
func Dial(ctx context.Context, conf Config) (*Client, error) {
	if conf.Codec == nil {
		conf.Codec = wire.JSON
	}
	if conf.HeartbeatInterval <= 0 {
		conf.HeartbeatInterval = DefaultHeartbeatInterval
	}

	u, err := url.Parse(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("codec", conf.Codec.Name())
	q.Set("uuid", "guest-"+uuid.NewString())
	if conf.PublishKey != "" {
		q.Set("pub", conf.PublishKey)
	}
	if conf.SubscribeKey != "" {
		q.Set("sub", conf.SubscribeKey)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	return &Client{
		conf:       conf,
		codec:      conf.Codec,
		conn:       conn,
		subscribed: make(map[string]bool),
		pending:    make(map[string]chan pendingResult),
	}, nil
}

// Run drives the read pump and the heartbeat loop until ctx is done or
// the connection fails. It must be called exactly once.
func (c *Client) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	errCh := make(chan error, 2)

	var wg sync.WaitGroup
	wg.Go(func() {
		errCh <- c.readPump()
		cancel()
	})
	wg.Go(func() {
		errCh <- c.heartbeatLoop(ctx)
		cancel()
	})

	<-ctx.Done()
	_ = c.conn.Close()
	wg.Wait()
	c.failPending(ErrClosed)

	// Shutdown requested from outside: read errors caused by closing
	// our own socket are not failures.
	if parent.Err() != nil {
		return parent.Err()
	}

	for range 2 {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return err
		}
	}
	return nil
}

// Close tears the socket down. Pending request/response calls fail with
// ErrClosed once the read pump notices.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) SetIdentity(id string) error {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
	return c.sendFrame(wire.FrameIdentity, "", wire.IdentityRequest{UUID: id})
}

// Subscribe records the channels only after the frame is on the wire:
// local state must not claim a subscription the relay never saw, or the
// session layer's idempotence check would turn every retry into a no-op.
func (c *Client) Subscribe(channels []string, withPresence bool) error {
	if err := c.sendFrame(wire.FrameSubscribe, "", wire.SubscribeRequest{Channels: channels, WithPresence: withPresence}); err != nil {
		return err
	}
	c.mu.Lock()
	for _, ch := range channels {
		c.subscribed[ch] = true
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) Unsubscribe(channels []string) error {
	if err := c.sendFrame(wire.FrameUnsubscribe, "", wire.UnsubscribeRequest{Channels: channels}); err != nil {
		return err
	}
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscribed, ch)
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) UnsubscribeAll() error {
	c.mu.Lock()
	empty := len(c.subscribed) == 0
	c.mu.Unlock()
	if empty {
		return nil
	}
	if err := c.sendFrame(wire.FrameUnsubscribeAll, "", nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.subscribed = make(map[string]bool)
	c.mu.Unlock()
	return nil
}

func (c *Client) Publish(req wire.PublishRequest) error {
	return c.sendFrame(wire.FramePublish, "", req)
}

func (c *Client) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// SubscribedChannels reports the channels this client has asked for.
// Like the provider SDK it mirrors local state, not a server round trip.
func (c *Client) SubscribedChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	channels := make([]string, 0, len(c.subscribed))
	for ch := range c.subscribed {
		channels = append(channels, ch)
	}
	return channels
}

func (c *Client) HereNow(ctx context.Context, params wire.HereNowParams) (wire.HereNowResponse, error) {
	var resp wire.HereNowResponse
	payload, err := c.request(ctx, wire.FrameHereNow, params)
	if err != nil {
		return resp, err
	}
	if err := c.codec.Unmarshal(payload, &resp); err != nil {
		return resp, fmt.Errorf("decode here_now result: %w", err)
	}
	return resp, nil
}

func (c *Client) UUIDMetadata(ctx context.Context) ([]wire.UUIDMetadata, error) {
	payload, err := c.request(ctx, wire.FrameMetadata, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.MetadataResponse
	if err := c.codec.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode uuid_metadata result: %w", err)
	}
	return resp.UUIDs, nil
}

// request sends a correlated frame and blocks until the matching
// *_result frame arrives, ctx is done, or the connection closes.
func (c *Client) request(ctx context.Context, typ wire.FrameType, payload any) (wire.RawPayload, error) {
	id := uuid.NewString()
	ch := make(chan pendingResult, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.sendFrame(typ, id, payload); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) sendFrame(typ wire.FrameType, id string, payload any) error {
	frame, err := wire.EncodeFrame(c.codec, typ, id, payload)
	if err != nil {
		return err
	}
	data, err := c.codec.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", typ, err)
	}

	messageType := websocket.TextMessage
	if c.codec.Name() == "msgpack" {
		messageType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("write %s frame: %w", typ, err)
	}
	return nil
}

func (c *Client) readPump() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame wire.Frame
		if err := c.codec.Unmarshal(data, &frame); err != nil {
			slog.Warn("dropping undecodable frame", "error", err)
			continue
		}

		switch frame.Type {
		case wire.FrameMessage:
			c.fanOut(frame, func(l Listener) func(payload []byte) { return l.OnMessage })
		case wire.FramePresence:
			c.fanOut(frame, func(l Listener) func(payload []byte) { return l.OnPresence })
		case wire.FrameHereNowResult, wire.FrameMetadataResult:
			c.resolve(frame)
		default:
			slog.Warn("dropping frame of unexpected type", "type", frame.Type)
		}
	}
}

func (c *Client) fanOut(frame wire.Frame, pick func(Listener) func(payload []byte)) {
	c.mu.Lock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		if fn := pick(l); fn != nil {
			fn(frame.Payload)
		}
	}
}

func (c *Client) resolve(frame wire.Frame) {
	c.mu.Lock()
	ch, ok := c.pending[frame.ID]
	delete(c.pending, frame.ID)
	c.mu.Unlock()

	if !ok {
		slog.Warn("dropping result frame without matching request", "type", frame.Type, "id", frame.ID)
		return
	}

	res := pendingResult{payload: frame.Payload}
	if frame.Error != "" {
		res = pendingResult{err: fmt.Errorf("%s: %s", frame.Type, frame.Error)}
	}
	ch <- res
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- pendingResult{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.conf.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.sendFrame(wire.FrameHeartbeat, "", nil); err != nil {
				return err
			}
		}
	}
}
