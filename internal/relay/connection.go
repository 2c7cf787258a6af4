package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"govorilka/internal/wire"
)

type wsConn interface {
	Close() error
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
}

// Connection pumps frames between one websocket and the hub. Inbound
// frames are decoded with the connection's negotiated codec; outbound
// hub events are encoded with it on the way out.
type Connection struct {
	ws    wsConn
	hub   *Hub
	codec wire.Codec
	id    string
	send  chan outbound
	errCh chan error
}

func NewConnection(hub *Hub, ws wsConn, codec wire.Codec, id, uuid string) *Connection {
	return &Connection{
		ws:    ws,
		hub:   hub,
		codec: codec,
		id:    id,
		send:  hub.Join(id, uuid),
		errCh: make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.errCh)
		c.hub.Leave(c.id)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errCh <- c.readPump()
		cancel()
	})
	wg.Go(func() {
		c.errCh <- c.writePump(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Connection) readPump() error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		var frame wire.Frame
		if err := c.codec.Unmarshal(data, &frame); err != nil {
			slog.Warn("dropping undecodable frame", "conn", c.id, "error", err)
			continue
		}
		c.processFrame(frame)
	}
}

func (c *Connection) writePump(ctx context.Context) error {
	for {
		select {
		case o, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := c.writeOutbound(o); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processFrame(frame wire.Frame) {
	switch frame.Type {
	case wire.FrameIdentity:
		var req wire.IdentityRequest
		if !c.decodePayload(frame, &req) {
			return
		}
		c.hub.SetIdentity(c.id, req.UUID)

	case wire.FrameSubscribe:
		var req wire.SubscribeRequest
		if !c.decodePayload(frame, &req) {
			return
		}
		c.hub.Subscribe(c.id, req.Channels, req.WithPresence)

	case wire.FrameUnsubscribe:
		var req wire.UnsubscribeRequest
		if !c.decodePayload(frame, &req) {
			return
		}
		c.hub.Unsubscribe(c.id, req.Channels)

	case wire.FrameUnsubscribeAll:
		c.hub.UnsubscribeAll(c.id)

	case wire.FramePublish:
		var req wire.PublishRequest
		if !c.decodePayload(frame, &req) {
			return
		}
		if req.Channel == "" || req.Message == "" {
			slog.Warn("dropping publish with empty channel or message", "conn", c.id)
			return
		}
		c.hub.Publish(c.id, req)

	case wire.FrameHeartbeat:
		c.hub.Heartbeat(c.id)

	case wire.FrameHereNow:
		var params wire.HereNowParams
		if !c.decodePayload(frame, &params) {
			c.reply(outbound{typ: wire.FrameHereNowResult, id: frame.ID, err: "malformed here_now params"})
			return
		}
		c.reply(outbound{typ: wire.FrameHereNowResult, id: frame.ID, payload: c.hub.HereNow(params)})

	case wire.FrameMetadata:
		resp := wire.MetadataResponse{UUIDs: c.hub.UUIDMetadata()}
		c.reply(outbound{typ: wire.FrameMetadataResult, id: frame.ID, payload: resp})

	default:
		slog.Warn("dropping frame of unexpected type", "conn", c.id, "type", frame.Type)
	}
}

func (c *Connection) decodePayload(frame wire.Frame, v any) bool {
	if err := c.codec.Unmarshal(frame.Payload, v); err != nil {
		slog.Warn("dropping frame with malformed payload", "conn", c.id, "type", frame.Type, "error", err)
		return false
	}
	return true
}

// reply queues a result frame for this connection through the hub. The
// read pump keeps running for a moment after the sweeper evicts a
// timed-out connection, so the send must not touch the queue directly.
func (c *Connection) reply(o outbound) {
	if !c.hub.reply(c.id, o) {
		slog.Warn("dropping reply", "conn", c.id, "type", o.typ)
	}
}

func (c *Connection) writeOutbound(o outbound) error {
	frame, err := wire.EncodeFrame(c.codec, o.typ, o.id, o.payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", o.typ, err)
	}
	frame.Error = o.err

	data, err := c.codec.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", o.typ, err)
	}

	messageType := websocket.TextMessage
	if c.codec.Name() == "msgpack" {
		messageType = websocket.BinaryMessage
	}
	return c.ws.WriteMessage(messageType, data)
}
