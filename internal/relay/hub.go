package relay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/c-pro/geche"

	"govorilka/internal/wire"
)

// DefaultHeartbeatTTL is three missed client heartbeats at the default
// interval.
const DefaultHeartbeatTTL = 18 * time.Second

// outbound is a frame queued for one connection. The payload stays
// structured so each connection can encode it with its own codec.
type outbound struct {
	typ     wire.FrameType
	id      string
	err     string
	payload any
}

type client struct {
	id   string
	uuid string
	send chan outbound
	// channel -> withPresence flag
	channels map[string]bool
}

// Hub is the relay's channel registry: who is connected, who subscribes
// to what, and who is still alive. Liveness rides on a TTL cache
// refreshed by heartbeats; entries that expire turn into presence
// timeout events on the next sweep.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	channels map[string]map[string]bool
	liveness geche.Geche[string, string]
	now      func() time.Time
}

func NewHub(ctx context.Context, heartbeatTTL time.Duration) *Hub {
	if heartbeatTTL <= 0 {
		heartbeatTTL = DefaultHeartbeatTTL
	}
	return &Hub{
		clients:  make(map[string]*client),
		channels: make(map[string]map[string]bool),
		liveness: geche.NewMapTTLCache[string, string](ctx, heartbeatTTL, heartbeatTTL/3),
		now:      time.Now,
	}
}

// Join registers a connection and returns its outbound queue.
func (h *Hub) Join(id, uuid string) chan outbound {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan outbound, 100)
	h.clients[id] = &client{
		id:       id,
		uuid:     uuid,
		send:     ch,
		channels: make(map[string]bool),
	}
	h.liveness.Set(id, uuid)
	return ch
}

// Leave drops the connection and announces its departure to every
// channel it subscribed to.
func (h *Hub) Leave(id string) {
	h.evict(id, wire.PresenceLeave)
}

func (h *Hub) evict(id string, action wire.PresenceAction) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, id)
	_ = h.liveness.Del(id)

	channels := make([]string, 0, len(cl.channels))
	for name := range cl.channels {
		channels = append(channels, name)
		delete(h.channels[name], id)
		if len(h.channels[name]) == 0 {
			delete(h.channels, name)
		}
	}
	close(cl.send)
	h.mu.Unlock()

	for _, name := range channels {
		h.broadcastPresence(name, cl.uuid, action, "")
	}
}

// SetIdentity rebinds the user-visible identity of a connection.
func (h *Hub) SetIdentity(id, uuid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cl, ok := h.clients[id]; ok {
		cl.uuid = uuid
		h.liveness.Set(id, uuid)
	}
}

// Heartbeat refreshes the liveness entry for a connection.
func (h *Hub) Heartbeat(id string) {
	h.mu.RLock()
	cl, ok := h.clients[id]
	h.mu.RUnlock()
	if ok {
		h.liveness.Set(id, cl.uuid)
	}
}

// Subscribe adds the connection to the named channels and announces a
// join to the channels' existing subscribers. The joiner itself gets no
// event; its view comes from the occupancy snapshot.
func (h *Hub) Subscribe(id string, channels []string, withPresence bool) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	var added []string
	for _, name := range channels {
		if _, exists := cl.channels[name]; exists {
			continue
		}
		cl.channels[name] = withPresence
		if h.channels[name] == nil {
			h.channels[name] = make(map[string]bool)
		}
		h.channels[name][id] = true
		added = append(added, name)
	}
	uuid := cl.uuid
	h.mu.Unlock()

	for _, name := range added {
		h.broadcastPresence(name, uuid, wire.PresenceJoin, id)
	}
}

func (h *Hub) Unsubscribe(id string, channels []string) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	var removed []string
	for _, name := range channels {
		if _, exists := cl.channels[name]; !exists {
			continue
		}
		delete(cl.channels, name)
		delete(h.channels[name], id)
		if len(h.channels[name]) == 0 {
			delete(h.channels, name)
		}
		removed = append(removed, name)
	}
	uuid := cl.uuid
	h.mu.Unlock()

	for _, name := range removed {
		h.broadcastPresence(name, uuid, wire.PresenceLeave, id)
	}
}

func (h *Hub) UnsubscribeAll(id string) {
	h.mu.RLock()
	cl, ok := h.clients[id]
	var channels []string
	if ok {
		for name := range cl.channels {
			channels = append(channels, name)
		}
	}
	h.mu.RUnlock()
	if len(channels) > 0 {
		h.Unsubscribe(id, channels)
	}
}

// Publish fans a message out to every subscriber of its channel, the
// publisher included.
func (h *Hub) Publish(id string, req wire.PublishRequest) {
	h.mu.RLock()
	cl, ok := h.clients[id]
	if !ok {
		h.mu.RUnlock()
		return
	}
	ev := wire.MessageEvent{
		Channel:   req.Channel,
		Publisher: cl.uuid,
		Message:   req.Message,
	}
	h.mu.RUnlock()

	h.broadcast(req.Channel, outbound{typ: wire.FrameMessage, payload: ev}, "", false)
}

// HereNow answers the occupancy snapshot for the requested channels.
// Channels with no subscribers are absent from the response.
func (h *Hub) HereNow(params wire.HereNowParams) wire.HereNowResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := wire.HereNowResponse{Channels: make(map[string]wire.ChannelOccupancy)}
	totalChannels := 0
	totalOccupancy := 0

	for _, name := range params.Channels {
		ids := h.channels[name]
		if len(ids) == 0 {
			continue
		}
		occupancy := len(ids)
		occ := wire.ChannelOccupancy{Name: name, Occupancy: &occupancy}
		if params.IncludeUUIDs {
			for id := range ids {
				if cl, ok := h.clients[id]; ok {
					occ.Occupants = append(occ.Occupants, wire.Occupant{UUID: cl.uuid})
				}
			}
			sort.Slice(occ.Occupants, func(i, j int) bool {
				return occ.Occupants[i].UUID < occ.Occupants[j].UUID
			})
		}
		resp.Channels[name] = occ
		totalChannels++
		totalOccupancy += occupancy
	}

	resp.TotalChannels = &totalChannels
	resp.TotalOccupancy = &totalOccupancy
	return resp
}

// UUIDMetadata lists the identities currently connected.
func (h *Hub) UUIDMetadata() []wire.UUIDMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now().Unix()
	metadata := make([]wire.UUIDMetadata, 0, len(h.clients))
	for _, cl := range h.clients {
		metadata = append(metadata, wire.UUIDMetadata{UUID: cl.uuid, Name: cl.uuid, Updated: now})
	}
	sort.Slice(metadata, func(i, j int) bool {
		return metadata[i].UUID < metadata[j].UUID
	})
	return metadata
}

// Sweep evicts connections whose liveness entries have expired,
// announcing them as presence timeouts.
func (h *Hub) Sweep() {
	h.mu.RLock()
	var stale []string
	for id := range h.clients {
		if _, err := h.liveness.Get(id); err != nil {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.evict(id, wire.PresenceTimeout)
	}
}

// Run sweeps for expired connections until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultHeartbeatTTL / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// broadcastPresence sends a presence event to the presence-enabled
// subscribers of a channel, excluding the connection the event is
// about when excludeID is set.
func (h *Hub) broadcastPresence(channel, uuid string, action wire.PresenceAction, excludeID string) {
	h.mu.RLock()
	occupancy := len(h.channels[channel])
	h.mu.RUnlock()

	ev := wire.PresenceEvent{
		Channel:   channel,
		UUID:      uuid,
		Action:    action,
		Occupancy: occupancy,
		Timestamp: h.now().Unix(),
	}
	h.broadcast(channel, outbound{typ: wire.FramePresence, payload: ev}, excludeID, true)
}

// reply queues a frame for a single connection. All sends to a queue
// happen under the hub lock and only while the connection is still
// registered, so an evicted connection's closed queue is never written
// to. Returns false when the connection is gone or its queue is full.
func (h *Hub) reply(id string, o outbound) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cl, ok := h.clients[id]
	if !ok {
		return false
	}
	select {
	case cl.send <- o:
		return true
	default:
		return false
	}
}

// broadcast queues a frame for every subscriber of a channel. A full
// queue drops the frame for that subscriber rather than blocking the
// hub.
func (h *Hub) broadcast(channel string, o outbound, excludeID string, presenceOnly bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.channels[channel] {
		if id == excludeID {
			continue
		}
		cl, ok := h.clients[id]
		if !ok {
			continue
		}
		if presenceOnly && !cl.channels[channel] {
			continue
		}
		select {
		case cl.send <- o:
		default:
		}
	}
}
