package httpgin

import (
	"encoding/json"
	"time"

	"github.com/parkd/parkd/internal/domain"
)

type EntryRequest struct {
	Plate           string              `json:"plate" binding:"required"`
	Class           domain.VehicleClass `json:"class" binding:"required,oneof=car motorbike"`
	AreaID          int64               `json:"area_id" binding:"required"`
	PreferredSlotID *int64              `json:"preferred_slot_id"`
	NoSlot          bool                `json:"no_slot"`
	EntryImage      *string             `json:"entry_image"`
}

type EntryResponse struct {
	SessionID int64     `json:"session_id"`
	Plate     string    `json:"plate"`
	SlotID    *int64    `json:"slot_id,omitempty"`
	SlotCode  *string   `json:"slot_code,omitempty"`
	EntryAt   time.Time `json:"entry_at"`
}

type ExitRequest struct {
	Plate     string  `json:"plate" binding:"required"`
	ExitImage *string `json:"exit_image"`
}

type FeeResponse struct {
	SessionID     int64     `json:"session_id"`
	Plate         string    `json:"plate"`
	ExitAt        time.Time `json:"exit_at"`
	BilledHours   int       `json:"billed_hours"`
	Amount        *int64    `json:"amount"`
	MonthlyTicket bool      `json:"is_monthly_ticket"`
	Regime        string    `json:"regime,omitempty"`
	MorningShifts int       `json:"morning_shifts"`
	NightShifts   int       `json:"night_shifts"`
}

type SwapRequest struct {
	SlotAID int64 `json:"slot_a_id" binding:"required"`
	SlotBID int64 `json:"slot_b_id" binding:"required"`
}

type AssignRequest struct {
	SessionID int64 `json:"session_id" binding:"required"`
}

type CreateAreaRequest struct {
	Name     string `json:"name" binding:"required"`
	MapRows  int    `json:"map_rows"`
	MapCols  int    `json:"map_cols"`
	CellSize int    `json:"cell_size"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type MapCellInput struct {
	Code         string              `json:"code" binding:"required"`
	Row          int                 `json:"row"`
	Col          int                 `json:"col"`
	AllowedClass domain.VehicleClass `json:"allowed_class" binding:"required,oneof=car motorbike"`
}

type SetMapRequest struct {
	Rows     int             `json:"rows" binding:"required,gt=0"`
	Cols     int             `json:"cols" binding:"required,gt=0"`
	CellSize int             `json:"cell_size"`
	MapData  json.RawMessage `json:"map_data"`
	Slots    []MapCellInput  `json:"slots" binding:"required,dive"`
}

type SetMapResponse struct {
	StaleSlots int64 `json:"stale_slots"`
}

type UpdateSlotRequest struct {
	Status       *domain.SlotStatus   `json:"status" binding:"omitempty,oneof=EMPTY RESERVED OCCUPIED LOCKED MAINT"`
	AllowedClass *domain.VehicleClass `json:"allowed_class" binding:"omitempty,oneof=car motorbike"`
	Code         *string              `json:"code"`
	Note         *string              `json:"note"`
}

type CreateRuleRequest struct {
	Class        domain.VehicleClass  `json:"class" binding:"required,oneof=car motorbike"`
	AreaID       *int64               `json:"area_id"`
	Regime       domain.PricingRegime `json:"regime" binding:"required,oneof=hourly block"`
	MorningPrice *int64               `json:"morning_price"`
	NightPrice   *int64               `json:"night_price"`
	MonthlyPrice *int64               `json:"monthly_price"`
	HourlyDay    *int64               `json:"hourly_day"`
	HourlyNight  *int64               `json:"hourly_night"`
}

type UpdateRuleRequest struct {
	MorningPrice *int64 `json:"morning_price"`
	NightPrice   *int64 `json:"night_price"`
	MonthlyPrice *int64 `json:"monthly_price"`
	HourlyDay    *int64 `json:"hourly_day"`
	HourlyNight  *int64 `json:"hourly_night"`
	IsActive     *bool  `json:"is_active"`
}

type IssueTicketRequest struct {
	Plate         string              `json:"plate" binding:"required"`
	Class         domain.VehicleClass `json:"class" binding:"required,oneof=car motorbike"`
	CustomerName  string              `json:"customer_name" binding:"required"`
	Phone         string              `json:"phone"`
	IDNumber      string              `json:"id_number"`
	Email         string              `json:"email"`
	AreaID        *int64              `json:"area_id"`
	StartAt       string              `json:"start_at" binding:"required"`
	Months        int                 `json:"months" binding:"required,gt=0"`
	PricePerMonth int64               `json:"price_per_month"`
	Note          *string             `json:"note"`
}

type RenewTicketRequest struct {
	Months        int   `json:"months" binding:"required,gt=0"`
	PricePerMonth int64 `json:"price_per_month"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
