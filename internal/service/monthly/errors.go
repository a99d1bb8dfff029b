package monthly

import "errors"

var (
	ErrInvalidPlate    = errors.New("invalid license plate")
	ErrTicketNotFound  = errors.New("monthly ticket not found")
	ErrTicketOverlap   = errors.New("vehicle already has a ticket covering this window")
	ErrNoMonthlyPrice  = errors.New("no monthly price configured for this class and area")
	ErrInvalidDuration = errors.New("months must be positive")
)
