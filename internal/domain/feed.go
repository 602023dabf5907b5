package domain

import "context"

// Subscription is one live feed stream for a single (instrument, feed type)
// pair. Next blocks until the next message arrives, the context is done, or
// the connection fails. Implementations must return an error wrapping
// ErrMalformedMessage for a message that cannot be decoded, so callers can
// skip it without tearing the connection down.
type Subscription interface {
	Next(ctx context.Context) (FeedMessage, error)
	Close() error
}

// FeedDialer opens subscriptions against the upstream exchange. Each Dial
// call establishes an independent connection owned exclusively by the caller.
type FeedDialer interface {
	Dial(ctx context.Context, instrument string, feed FeedType) (Subscription, error)
}
