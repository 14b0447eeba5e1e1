package bp

import "fmt"

var (
	ErrUnknownProtocol  = fmt.Errorf("bp: unknown protocol id")
	ErrPayloadTooLarge  = fmt.Errorf("bp: payload exceeds registered max payload size")
	ErrNotOwner         = fmt.Errorf("bp: registration token does not match")
	ErrInactive         = fmt.Errorf("bp: daemon is not active")
	ErrShuttingDown     = fmt.Errorf("bp: daemon is shutting down")
)
