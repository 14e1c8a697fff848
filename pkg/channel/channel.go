package channel

import (
	"context"

	"chatrelay/pkg/bus"
)

// Handler turns one inbound chat message into the rendered bot reply.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter connects one chat transport (for example Telegram) to the relay.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
