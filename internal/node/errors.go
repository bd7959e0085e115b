package node

import "errors"

// Option errors
var (
	ErrInvalidOptions = errors.New("invalid node options")
)

// Transport errors
var (
	ErrNotConnected        = errors.New("node is not connected")
	ErrSerialization       = errors.New("payload is not a JSON object")
	ErrDestroyed           = errors.New("node was destroyed")
	ErrConnectionExhausted = errors.New("cannot establish websocket connection")
)

// Protocol errors, reported through NodeError events.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownOp      = errors.New("unknown op")
	ErrRequestFailed  = errors.New("node request failed")
)
