package peer

import (
	"errors"
)

var (
	ErrBoardNotFound   = errors.New("board not found")
	ErrVersionConflict = errors.New("board changed concurrently")
	ErrRemoteBoard     = errors.New("board is owned by another peer")
	ErrEmptyBoard      = errors.New("board has no paths")
)

var (
	ErrNotConnected = errors.New("not connected")
	// the local peer server is not bound yet
	ErrNoAddress = errors.New("local address not known")
)
