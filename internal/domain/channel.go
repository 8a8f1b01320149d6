package domain

import "context"

// FrameSender writes one encoded frame to the peer on the other end of a
// channel. Implementations must be safe for concurrent use.
type FrameSender interface {
	Send(ctx context.Context, frame string) error
}

// FrameSenderFunc adapts a function to FrameSender.
type FrameSenderFunc func(ctx context.Context, frame string) error

func (f FrameSenderFunc) Send(ctx context.Context, frame string) error { return f(ctx, frame) }

// FrameReceiver consumes inbound frames read from a channel.
type FrameReceiver interface {
	Deliver(ctx context.Context, frame string)
}
