package serverloop

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrDecode   = errors.New("serverloop: decode")
	ErrShutdown = errors.New("serverloop: shutdown")
)
