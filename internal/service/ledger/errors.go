package ledger

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAreaNotFound    = errors.New("parking area not found")
)
