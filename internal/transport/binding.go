package transport

import (
	"context"

	"govorilka/internal/wire"
)

// Listener receives asynchronous transport events. Payloads are raw
// codec documents; the consumer owns decoding and may drop what it
// cannot decode.
type Listener struct {
	OnMessage  func(payload []byte)
	OnPresence func(payload []byte)
}

// Binding is the narrow surface the session layer consumes: identity
// assignment, channel subscription, publish, listener registration, and
// the two request/response queries. Implementations deliver events to
// every registered listener in registration order.
type Binding interface {
	SetIdentity(uuid string) error
	Subscribe(channels []string, withPresence bool) error
	Unsubscribe(channels []string) error
	UnsubscribeAll() error
	Publish(req wire.PublishRequest) error
	AddListener(l Listener)
	SubscribedChannels() []string
	HereNow(ctx context.Context, params wire.HereNowParams) (wire.HereNowResponse, error)
	UUIDMetadata(ctx context.Context) ([]wire.UUIDMetadata, error)
}
