package store

import "errors"

// Error taxonomy shared by the task store and the conversation log. Tool
// dispatch maps these onto per-call outcomes; anything else from the
// database is treated as the store being unavailable.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
