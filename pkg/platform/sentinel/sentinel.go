package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Session stores return these (optionally
// wrapped) so the session service can decide between "absent" and "broken":
// - ErrNotFound: key is not present in the store
// - ErrUnavailable: backing store cannot be reached
// - ErrClosed: store was closed by its owner
// - ErrAlreadyExists: a unique key is taken
// - ErrExpired: the record exists but its lifetime has ended
//
// Caller-facing failures use pkg/domain-errors instead.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("unavailable")
	ErrClosed        = errors.New("closed")
	ErrAlreadyExists = errors.New("already exists")
	ErrExpired       = errors.New("expired")
)
