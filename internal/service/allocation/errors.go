package allocation

import "errors"

var (
	ErrInvalidPlate           = errors.New("invalid license plate")
	ErrAreaNotFound           = errors.New("parking area not found")
	ErrAreaInactive           = errors.New("parking area is inactive")
	ErrNoCapacity             = errors.New("no free slot for this vehicle class")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrSlotTaken              = errors.New("slot is not empty")
	ErrSlotClassMismatch      = errors.New("slot does not accept this vehicle class")
	ErrDuplicateActiveSession = errors.New("vehicle already has an open session")
	ErrSessionNotFound        = errors.New("open session not found")
	ErrAlreadyClosed          = errors.New("session already closed")
	ErrSameSlot               = errors.New("cannot swap a slot with itself")
	ErrDifferentArea          = errors.New("slots belong to different areas")
	ErrNotBothOccupied        = errors.New("both slots must be occupied")
	ErrMissingActiveSession   = errors.New("occupied slot has no open session")
	ErrSessionInvalid         = errors.New("session is closed or not a parking session")
	ErrAlreadyAssigned        = errors.New("session is already bound to a slot")
	ErrRateLimited            = errors.New("too many entry requests")
)
