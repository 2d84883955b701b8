package history

import "errors"

var (
	ErrEmpty           = errors.New("clipboard history is empty")
	ErrIndexOutOfRange = errors.New("history index out of range")
	ErrInvalidCapacity = errors.New("history capacity must be positive")
	ErrStoreClosed     = errors.New("history store is closed")
)
