package wire

// Payload shapes exchanged with the relay. Field names are part of the
// protocol; json and msgpack tags are kept in sync.

type FrameType string

const (
	FrameSubscribe      FrameType = "subscribe"
	FrameUnsubscribe    FrameType = "unsubscribe"
	FrameUnsubscribeAll FrameType = "unsubscribe_all"
	FramePublish        FrameType = "publish"
	FrameHereNow        FrameType = "here_now"
	FrameHereNowResult  FrameType = "here_now_result"
	FrameMetadata       FrameType = "uuid_metadata"
	FrameMetadataResult FrameType = "uuid_metadata_result"
	FrameHeartbeat      FrameType = "heartbeat"
	FrameIdentity       FrameType = "identity"
	FrameMessage        FrameType = "message"
	FramePresence       FrameType = "presence"
)

// Frame is the envelope for every document on the socket. ID correlates
// a request frame with its *_result counterpart. Payload holds a nested
// document encoded with the same codec as the frame itself.
type Frame struct {
	Type    FrameType  `json:"type" msgpack:"type"`
	ID      string     `json:"id,omitempty" msgpack:"id,omitempty"`
	Error   string     `json:"error,omitempty" msgpack:"error,omitempty"`
	Payload RawPayload `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// SubscribeRequest opts a connection into one or more channels.
type SubscribeRequest struct {
	Channels     []string `json:"channels" msgpack:"channels"`
	WithPresence bool     `json:"withPresence" msgpack:"withPresence"`
}

type UnsubscribeRequest struct {
	Channels []string `json:"channels" msgpack:"channels"`
}

// IdentityRequest binds a user-visible identity to the connection.
type IdentityRequest struct {
	UUID string `json:"uuid" msgpack:"uuid"`
}

// PublishRequest is the outbound message payload.
type PublishRequest struct {
	Channel string `json:"channel" msgpack:"channel"`
	Message string `json:"message" msgpack:"message"`
}

// MessageEvent is an inbound message delivered to a subscriber.
type MessageEvent struct {
	Channel   string `json:"channel" msgpack:"channel"`
	Publisher string `json:"publisher" msgpack:"publisher"`
	Message   string `json:"message" msgpack:"message"`
}

type PresenceAction string

const (
	PresenceJoin    PresenceAction = "join"
	PresenceLeave   PresenceAction = "leave"
	PresenceTimeout PresenceAction = "timeout"
)

// PresenceEvent is delivered to presence-enabled subscribers when an
// occupant joins, leaves, or times out of a channel.
type PresenceEvent struct {
	Channel   string         `json:"channel" msgpack:"channel"`
	UUID      string         `json:"uuid" msgpack:"uuid"`
	Action    PresenceAction `json:"action" msgpack:"action"`
	Occupancy int            `json:"occupancy,omitempty" msgpack:"occupancy,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// HereNowParams is the one-shot occupancy query.
type HereNowParams struct {
	Channels     []string `json:"channels" msgpack:"channels"`
	IncludeUUIDs bool     `json:"includeUUIDs" msgpack:"includeUUIDs"`
	IncludeState bool     `json:"includeState" msgpack:"includeState"`
}

type HereNowResponse struct {
	TotalChannels  *int                        `json:"totalChannels,omitempty" msgpack:"totalChannels,omitempty"`
	TotalOccupancy *int                        `json:"totalOccupancy,omitempty" msgpack:"totalOccupancy,omitempty"`
	Channels       map[string]ChannelOccupancy `json:"channels,omitempty" msgpack:"channels,omitempty"`
}

type ChannelOccupancy struct {
	Name      string     `json:"name" msgpack:"name"`
	Occupancy *int       `json:"occupancy,omitempty" msgpack:"occupancy,omitempty"`
	Occupants []Occupant `json:"occupants,omitempty" msgpack:"occupants,omitempty"`
}

type Occupant struct {
	UUID  string `json:"uuid" msgpack:"uuid"`
	State string `json:"state,omitempty" msgpack:"state,omitempty"`
}

// UUIDMetadata describes one identity known to the relay.
type UUIDMetadata struct {
	UUID    string `json:"uuid" msgpack:"uuid"`
	Name    string `json:"name,omitempty" msgpack:"name,omitempty"`
	Updated int64  `json:"updated,omitempty" msgpack:"updated,omitempty"`
}

type MetadataResponse struct {
	UUIDs []UUIDMetadata `json:"uuids,omitempty" msgpack:"uuids,omitempty"`
}
