package connect

import "errors"

// error type checking:
//   an error can be checked if it is any of these using errors.Is(err, ErrType)

// used for channels
var (
	ErrChannelClosed = errors.New("channel closed")
	ErrEmitTimeout   = errors.New("emit timeout")
)

// used for the shared secret gate
var (
	ErrAuthRequired = errors.New("auth token required")
	ErrAuthInvalid  = errors.New("auth token invalid")
)

// used for servers
var (
	ErrServerNotReady = errors.New("server is not listening")
)
