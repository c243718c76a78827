package domain

import "errors"

var (
	// ErrUnknownSession event from a connection that never sent user_join, or already closed
	ErrUnknownSession = errors.New("unknown session")
	// ErrDuplicateSession user_join sent twice on one connection
	ErrDuplicateSession = errors.New("session already registered")
	// ErrInvalidUsername empty or oversized username
	ErrInvalidUsername = errors.New("invalid username")
	// ErrMessageTooLong message body over the configured limit
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	// ErrFileTooLarge attachment payload over the configured limit
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	// ErrUnknownEvent inbound event name not handled
	ErrUnknownEvent = errors.New("unknown event")
	// ErrBadPayload payload does not decode for the event
	ErrBadPayload = errors.New("bad payload")
	// ErrRateLimited connection sent faster than allowed
	ErrRateLimited = errors.New("rate limit exceeded")
)
