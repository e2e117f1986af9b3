package board

import "errors"

var (
	ErrMalformedAddress  = errors.New("malformed peer address")
	ErrMalformedName     = errors.New("malformed board name")
	ErrMalformedSnapshot = errors.New("malformed board data")
	ErrInvalidPath       = errors.New("invalid path")
)
