package admin

import "errors"

var (
	ErrAreaConflict  = errors.New("area name already exists")
	ErrAreaNotFound  = errors.New("parking area not found")
	ErrSlotNotFound  = errors.New("slot not found")
	ErrRuleNotFound  = errors.New("pricing rule not found")
	ErrRuleConflict  = errors.New("active rule already exists for this class and area")
	ErrInvalidLayout = errors.New("invalid map layout")
	ErrAreaOccupied  = errors.New("area has occupied slots")
)
