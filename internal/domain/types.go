package domain

import (
	"time"

	"github.com/google/uuid"
)

type VehicleClass string

const (
	ClassCar       VehicleClass = "car"
	ClassMotorbike VehicleClass = "motorbike"
)

type SlotStatus string

const (
	SlotEmpty    SlotStatus = "EMPTY"
	SlotReserved SlotStatus = "RESERVED"
	SlotOccupied SlotStatus = "OCCUPIED"
	SlotLocked   SlotStatus = "LOCKED"
	SlotMaint    SlotStatus = "MAINT"
)

type PricingRegime string

const (
	RegimeHourly PricingRegime = "hourly"
	RegimeBlock  PricingRegime = "block"
)

type SlotEventType string

const (
	EventAssign  SlotEventType = "ASSIGN"
	EventRelease SlotEventType = "RELEASE"
	EventSwap    SlotEventType = "SWAP"
)

type Vehicle struct {
	ID    int64
	Plate string
	Class VehicleClass
}

type ParkingArea struct {
	ID           int64
	Name         string
	SlotCount    int
	CurrentCount int
	MapRows      int
	MapCols      int
	CellSize     int
	MapData      []byte // jsonb raw, consumed by the map editor only
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ParkingSlot struct {
	ID           int64
	AreaID       int64
	Code         string
	Row          int
	Col          int
	AllowedClass VehicleClass
	Status       SlotStatus
	Note         *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is one parking visit. It is open while ExitAt is nil; a vehicle
// may have at most one open session at any time.
type Session struct {
	ID            int64
	VehicleID     int64
	AreaID        int64
	SlotID        *int64
	EntryStaffID  int64
	ExitStaffID   *int64
	EntryAt       time.Time
	ExitAt        *time.Time
	BilledHours   *int
	Amount        *int64 // nil = no pricing rule configured, 0 = priced free visit
	MonthlyTicket bool
	PricingRuleID *int64
	EntryImage    *string
	ExitImage     *string
	CreatedAt     time.Time
}

func (s Session) Open() bool { return s.ExitAt == nil }

// SessionWithRefs carries the denormalized fields the read endpoints need.
type SessionWithRefs struct {
	Session
	Plate    string
	Class    VehicleClass
	AreaName string
	SlotCode *string
}

type PricingRule struct {
	ID           int64
	Class        VehicleClass
	AreaID       *int64
	Regime       PricingRegime
	MorningPrice *int64
	NightPrice   *int64
	MonthlyPrice *int64
	HourlyDay    *int64
	HourlyNight  *int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type MonthlyTicket struct {
	ID           int64
	VehicleID    int64
	Plate        string
	Class        VehicleClass
	CustomerName string
	Phone        string
	IDNumber     string
	Email        string
	AreaID       *int64
	StartAt      time.Time
	EndAt        time.Time
	Price        int64
	IsActive     bool
	Note         *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActiveAt reports whether the ticket covers the given instant.
func (t MonthlyTicket) ActiveAt(at time.Time) bool {
	return t.IsActive && !at.Before(t.StartAt) && !at.After(t.EndAt)
}

// PaymentRecord is a monthly-ticket purchase or renewal transaction.
// The original system folded these into the parking log table; they are
// a separate variant here.
type PaymentRecord struct {
	ID          uuid.UUID
	VehicleID   int64
	AreaID      *int64
	TicketID    int64
	StaffID     *int64
	Amount      int64
	Months      int
	Description string
	CreatedAt   time.Time
}

// SlotEvent is an append-only audit row for slot-assignment mutations.
type SlotEvent struct {
	ID         int64
	SessionID  int64
	VehicleID  *int64
	AreaID     *int64
	Type       SlotEventType
	FromSlotID *int64
	ToSlotID   *int64
	StaffID    *int64
	Note       *string
	CreatedAt  time.Time
}

// SlotEventWithRefs is the reporting view of a slot event.
type SlotEventWithRefs struct {
	SlotEvent
	Plate        *string
	AreaName     *string
	FromSlotCode *string
	ToSlotCode   *string
}

// FeeResult is what the billing engine hands to closeSession. The engine
// never writes session fields itself.
type FeeResult struct {
	Hours         int
	Amount        *int64
	MonthlyTicket bool
	TicketID      *int64
	PricingRuleID *int64
	Regime        PricingRegime // empty when no rule applied
	MorningShifts int           // day hours under the hourly regime
	NightShifts   int           // night hours under the hourly regime
}

type AreaCounts struct {
	ID           int64
	Name         string
	IsActive     bool
	CurrentCount int
	SlotCount    int
	UpdatedAt    time.Time
}

type SlotWithPlate struct {
	ParkingSlot
	CurrentPlate     *string
	CurrentVehicleID *int64
	ActiveSessionID  *int64
}

type UnassignedVehicle struct {
	SessionID int64
	VehicleID int64
	Plate     string
	Class     VehicleClass
	EntryAt   time.Time
	AreaID    int64
}
