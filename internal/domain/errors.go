package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrMalformedMessage = errors.New("malformed feed message")
	ErrFeedDisconnect   = errors.New("feed disconnected")
	ErrFeedIdle         = errors.New("feed idle timeout")
	ErrClosed           = errors.New("subscription closed")
)
