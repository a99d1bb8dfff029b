package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/parkd/parkd/internal/domain"
	redisx "github.com/parkd/parkd/internal/redis"
	"github.com/parkd/parkd/internal/repository"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
	redisrepo "github.com/parkd/parkd/internal/repository/redis"
	"github.com/parkd/parkd/internal/service"
	"github.com/parkd/parkd/internal/service/admin"
	"github.com/parkd/parkd/internal/service/allocation"
	"github.com/parkd/parkd/internal/service/ledger"
	"github.com/parkd/parkd/internal/service/monthly"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Gate operations
	r.POST("/inout/entry", handleEntry(svcs, idem))
	r.POST("/inout/exit", handleExit(svcs))
	r.GET("/inout/quote", handleQuote(svcs))

	// Session ledger reads
	r.GET("/sessions/open", handleListOpen(svcs))
	r.GET("/sessions", handleListHistory(svcs))
	r.GET("/sessions/find", handleFindOpen(svcs))

	// Areas and slots
	parking := r.Group("/parking")
	{
		parking.GET("/areas", handleListAreas(svcs))
		parking.POST("/areas", handleCreateArea(svcs))
		parking.GET("/areas/:id", handleGetArea(svcs))
		parking.PATCH("/areas/:id/active", handleSetAreaActive(svcs))
		parking.GET("/areas/:id/availability", handleAvailability(svcs))
		parking.GET("/areas/:id/slots", handleListSlots(svcs))
		parking.GET("/areas/:id/map", handleSlotMap(svcs))
		parking.PUT("/areas/:id/map", handleSetMap(svcs))

		parking.PATCH("/slots/:id", handleUpdateSlot(svcs))
		parking.POST("/slots/swap", handleSwap(svcs))
		parking.POST("/slots/:id/release", handleRelease(svcs))
		parking.POST("/slots/:id/assign", handleAssign(svcs))
		parking.GET("/unassigned", handleListUnassigned(svcs))
	}

	// Pricing rules
	r.GET("/pricing/rules", handleListRules(svcs))
	r.POST("/pricing/rules", handleCreateRule(svcs))
	r.PATCH("/pricing/rules/:id", handleUpdateRule(svcs))

	// Monthly tickets
	r.GET("/monthly-tickets", handleListTickets(svcs))
	r.POST("/monthly-tickets", handleIssueTicket(svcs))
	r.POST("/monthly-tickets/:id/renew", handleRenewTicket(svcs))
	r.DELETE("/monthly-tickets/:id", handleDeactivateTicket(svcs))
	r.GET("/payments", handleListPayments(svcs))

	// Slot event trail (reporting)
	r.GET("/slot-events", handleListEvents(svcs))
	r.GET("/slot-events/summary", handleEventSummary(svcs))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Vehicle entry (idempotent)
// @Param    req body  EntryRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} EntryResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "duplicate session / slot taken / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /inout/entry [post]
func handleEntry(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisx.KeyIdemEntry(req.AreaID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		res, err := svcs.Allocation.Entry(c.Request.Context(), allocation.EntryParams{
			Plate:           req.Plate,
			Class:           req.Class,
			AreaID:          req.AreaID,
			PreferredSlotID: req.PreferredSlotID,
			NoSlot:          req.NoSlot,
			StaffID:         staffID(c),
			EntryImage:      req.EntryImage,
			RLKey:           "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, allocation.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: err.Error()})
				return
			}
			respondErr(c, err)
			return
		}

		resp := EntryResponse{
			SessionID: res.SessionID,
			Plate:     res.Vehicle.Plate,
			EntryAt:   res.EntryAt,
		}
		if res.Slot != nil {
			resp.SlotID = &res.Slot.ID
			resp.SlotCode = &res.Slot.Code
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Vehicle exit
// @Param    req body  ExitRequest true "payload"
// @Success  200 {object} FeeResponse
// @Failure  404 {object} ErrorResponse
// @Router   /inout/exit [post]
func handleExit(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Allocation.Exit(c.Request.Context(), req.Plate, staffID(c), req.ExitImage)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, feeResponse(res))
	}
}

// @Summary  Quote the fee for an open session as of now
// @Param    plate query string true "license plate"
// @Success  200 {object} FeeResponse
// @Failure  404 {object} ErrorResponse
// @Router   /inout/quote [get]
func handleQuote(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		plate := c.Query("plate")
		if plate == "" {
			badRequest(c, "plate is required")
			return
		}

		res, err := svcs.Allocation.Quote(c.Request.Context(), plate)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, feeResponse(res))
	}
}

func feeResponse(res *allocation.ExitResult) FeeResponse {
	return FeeResponse{
		SessionID:     res.SessionID,
		Plate:         res.Vehicle.Plate,
		ExitAt:        res.ExitAt,
		BilledHours:   res.Fee.Hours,
		Amount:        res.Fee.Amount,
		MonthlyTicket: res.Fee.MonthlyTicket,
		Regime:        string(res.Fee.Regime),
		MorningShifts: res.Fee.MorningShifts,
		NightShifts:   res.Fee.NightShifts,
	}
}

// @Summary  List vehicles currently inside
// @Success  200 {array} domain.SessionWithRefs
// @Router   /sessions/open [get]
func handleListOpen(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Ledger.ListOpen(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  List recent sessions
// @Param    limit query int false "page size"
// @Success  200 {array} domain.SessionWithRefs
// @Router   /sessions [get]
func handleListHistory(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 100)
		out, err := svcs.Ledger.ListHistory(c.Request.Context(), limit)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Find the open session for a plate
// @Param    plate query string true "license plate"
// @Success  200 {object} domain.Session
// @Failure  404 {object} ErrorResponse
// @Router   /sessions/find [get]
func handleFindOpen(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		plate := c.Query("plate")
		if plate == "" {
			badRequest(c, "plate is required")
			return
		}
		sess, err := svcs.Ledger.FindOpen(c.Request.Context(), plate)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

// @Summary  List areas with occupancy tallies
// @Success  200 {array} domain.AreaCounts
// @Router   /parking/areas [get]
func handleListAreas(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Admin.ListAreas(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Create area
// @Param    req body CreateAreaRequest true "payload"
// @Success  201 {object} domain.ParkingArea
// @Failure  409 {object} ErrorResponse
// @Router   /parking/areas [post]
func handleCreateArea(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAreaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		area, err := svcs.Admin.CreateArea(c.Request.Context(), req.Name, req.MapRows, req.MapCols, req.CellSize)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, area)
	}
}

// @Summary  Get area
// @Param    id path int true "Area ID"
// @Success  200 {object} domain.ParkingArea
// @Router   /parking/areas/{id} [get]
func handleGetArea(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		area, err := svcs.Admin.GetArea(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, area)
	}
}

// @Summary  Open or close an area for entries
// @Param    id path int true "Area ID"
// @Param    req body SetActiveRequest true "payload"
// @Success  204
// @Router   /parking/areas/{id}/active [patch]
func handleSetAreaActive(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req SetActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Admin.SetAreaActive(c.Request.Context(), id, *req.IsActive); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Area occupancy counters
// @Param    id path int true "Area ID"
// @Success  200 {object} domain.AreaCounts
// @Router   /parking/areas/{id}/availability [get]
func handleAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		cnt, err := svcs.Ledger.Availability(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, cnt, "public, max-age=15", true)
	}
}

// @Summary  List slots of an area
// @Param    id     path  int    true  "Area ID"
// @Param    status query string false "slot status"
// @Param    class  query string false "vehicle class"
// @Success  200 {array} domain.SlotWithPlate
// @Router   /parking/areas/{id}/slots [get]
func handleListSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var status *domain.SlotStatus
		if s := c.Query("status"); s != "" {
			v := domain.SlotStatus(s)
			status = &v
		}
		var class *domain.VehicleClass
		if s := c.Query("class"); s != "" {
			v := domain.VehicleClass(s)
			class = &v
		}

		out, err := svcs.Ledger.ListSlots(c.Request.Context(), id, status, class)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Cached per-slot occupancy map of an area
// @Param    id path int true "Area ID"
// @Success  200 {array} domain.SlotWithPlate
// @Router   /parking/areas/{id}/map [get]
func handleSlotMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		out, err := svcs.Ledger.SlotMap(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Replace an area's map layout
// @Param    id  path int true "Area ID"
// @Param    req body SetMapRequest true "payload"
// @Success  200 {object} SetMapResponse
// @Failure  400 {object} ErrorResponse
// @Router   /parking/areas/{id}/map [put]
func handleSetMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req SetMapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		specs := make([]postgresrepo.SlotSpec, 0, len(req.Slots))
		for _, cell := range req.Slots {
			specs = append(specs, postgresrepo.SlotSpec{
				Code:         cell.Code,
				Row:          cell.Row,
				Col:          cell.Col,
				AllowedClass: cell.AllowedClass,
			})
		}

		stale, err := svcs.Admin.SetAreaMap(c.Request.Context(), id, admin.MapLayout{
			Rows:     req.Rows,
			Cols:     req.Cols,
			CellSize: req.CellSize,
			Raw:      req.MapData,
			Slots:    specs,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, SetMapResponse{StaleSlots: stale})
	}
}

// @Summary  Update slot (status, class, code, note)
// @Param    id  path int true "Slot ID"
// @Param    req body UpdateSlotRequest true "payload"
// @Success  200 {object} domain.ParkingSlot
// @Router   /parking/slots/{id} [patch]
func handleUpdateSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateSlotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		slot, err := svcs.Admin.UpdateSlot(c.Request.Context(), id, req.Status, req.AllowedClass, req.Code, req.Note)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, slot)
	}
}

// @Summary  Swap the vehicles of two occupied slots
// @Param    req body SwapRequest true "payload"
// @Success  204
// @Failure  409 {object} ErrorResponse
// @Router   /parking/slots/swap [post]
func handleSwap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SwapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Allocation.SwapOccupiedSlots(c.Request.Context(), req.SlotAID, req.SlotBID, staffID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Force-free a slot
// @Param    id path int true "Slot ID"
// @Success  204
// @Router   /parking/slots/{id}/release [post]
func handleRelease(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Allocation.ReleaseSlot(c.Request.Context(), id, staffID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Bind a slot-less session to an empty slot
// @Param    id  path int true "Slot ID"
// @Param    req body AssignRequest true "payload"
// @Success  204
// @Failure  409 {object} ErrorResponse
// @Router   /parking/slots/{id}/assign [post]
func handleAssign(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req AssignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Allocation.AssignSession(c.Request.Context(), id, req.SessionID, staffID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List open sessions awaiting a slot
// @Param    area_id query int false "Area ID"
// @Success  200 {array} domain.UnassignedVehicle
// @Router   /parking/unassigned [get]
func handleListUnassigned(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var areaID *int64
		if s := c.Query("area_id"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				badRequest(c, "invalid area_id")
				return
			}
			areaID = &v
		}
		out, err := svcs.Allocation.ListUnassigned(c.Request.Context(), areaID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  List pricing rules
// @Success  200 {array} domain.PricingRule
// @Router   /pricing/rules [get]
func handleListRules(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Admin.ListRules(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Create pricing rule
// @Param    req body CreateRuleRequest true "payload"
// @Success  201 {object} domain.PricingRule
// @Failure  409 {object} ErrorResponse
// @Router   /pricing/rules [post]
func handleCreateRule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		rule, err := svcs.Admin.CreateRule(c.Request.Context(), &domain.PricingRule{
			Class:        req.Class,
			AreaID:       req.AreaID,
			Regime:       req.Regime,
			MorningPrice: req.MorningPrice,
			NightPrice:   req.NightPrice,
			MonthlyPrice: req.MonthlyPrice,
			HourlyDay:    req.HourlyDay,
			HourlyNight:  req.HourlyNight,
			IsActive:     true,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, rule)
	}
}

// @Summary  Update pricing rule
// @Param    id  path int true "Rule ID"
// @Param    req body UpdateRuleRequest true "payload"
// @Success  200 {object} domain.PricingRule
// @Router   /pricing/rules/{id} [patch]
func handleUpdateRule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateRuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		rule, err := svcs.Admin.UpdateRule(c.Request.Context(), id,
			req.MorningPrice, req.NightPrice, req.MonthlyPrice,
			req.HourlyDay, req.HourlyNight, req.IsActive)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// @Summary  List monthly tickets
// @Param    q    query string false "plate/name/phone search"
// @Param    from query string false "RFC3339 window start"
// @Param    to   query string false "RFC3339 window end"
// @Success  200 {array} domain.MonthlyTicket
// @Router   /monthly-tickets [get]
func handleListTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var from, to *time.Time
		if s := c.Query("from"); s != "" {
			t, err := parseRFC3339(s)
			if err != nil {
				badRequest(c, "invalid from (RFC3339)")
				return
			}
			from = &t
		}
		if s := c.Query("to"); s != "" {
			t, err := parseRFC3339(s)
			if err != nil {
				badRequest(c, "invalid to (RFC3339)")
				return
			}
			to = &t
		}

		out, err := svcs.Monthly.List(c.Request.Context(), c.Query("q"), from, to)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Issue monthly ticket
// @Param    req body IssueTicketRequest true "payload"
// @Success  201 {object} domain.MonthlyTicket
// @Failure  409 {object} ErrorResponse
// @Router   /monthly-tickets [post]
func handleIssueTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IssueTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		startAt, err := parseRFC3339(req.StartAt)
		if err != nil {
			badRequest(c, "invalid start_at (RFC3339)")
			return
		}

		ticket, err := svcs.Monthly.Issue(c.Request.Context(), monthly.IssueParams{
			Plate:         req.Plate,
			Class:         req.Class,
			CustomerName:  req.CustomerName,
			Phone:         req.Phone,
			IDNumber:      req.IDNumber,
			Email:         req.Email,
			AreaID:        req.AreaID,
			StartAt:       startAt,
			Months:        req.Months,
			PricePerMonth: req.PricePerMonth,
			StaffID:       staffID(c),
			Note:          req.Note,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, ticket)
	}
}

// @Summary  Renew monthly ticket
// @Param    id  path int true "Ticket ID"
// @Param    req body RenewTicketRequest true "payload"
// @Success  200 {object} domain.MonthlyTicket
// @Router   /monthly-tickets/{id}/renew [post]
func handleRenewTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req RenewTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ticket, err := svcs.Monthly.Renew(c.Request.Context(), id, req.Months, req.PricePerMonth, staffID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ticket)
	}
}

// @Summary  Deactivate monthly ticket
// @Param    id path int true "Ticket ID"
// @Success  204
// @Router   /monthly-tickets/{id} [delete]
func handleDeactivateTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Monthly.Deactivate(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List ticket payments
// @Param    q     query string false "plate search"
// @Param    limit query int    false "page size"
// @Success  200 {array} domain.PaymentRecord
// @Router   /payments [get]
func handleListPayments(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 100)
		out, err := svcs.Ledger.ListPayments(c.Request.Context(), c.Query("q"), limit)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  List slot events
// @Param    plate     query string false "plate search"
// @Param    area_id   query int    false "Area ID"
// @Param    slot_code query string false "slot code"
// @Param    type      query string false "ASSIGN|RELEASE|SWAP"
// @Param    from      query string false "RFC3339 window start"
// @Param    to        query string false "RFC3339 window end"
// @Param    limit     query int    false "page size"
// @Param    offset    query int    false "offset"
// @Success  200 {array} domain.SlotEventWithRefs
// @Router   /slot-events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := postgresrepo.EventFilter{
			Plate:    c.Query("plate"),
			SlotCode: c.Query("slot_code"),
			Limit:    parseIntDefault(c.Query("limit"), 100),
			Offset:   parseIntDefault(c.Query("offset"), 0),
		}

		if s := c.Query("area_id"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				badRequest(c, "invalid area_id")
				return
			}
			f.AreaID = &v
		}
		if s := c.Query("type"); s != "" {
			v := domain.SlotEventType(s)
			f.Type = &v
		}
		if s := c.Query("from"); s != "" {
			t, err := parseRFC3339(s)
			if err != nil {
				badRequest(c, "invalid from (RFC3339)")
				return
			}
			f.From = &t
		}
		if s := c.Query("to"); s != "" {
			t, err := parseRFC3339(s)
			if err != nil {
				badRequest(c, "invalid to (RFC3339)")
				return
			}
			f.To = &t
		}

		out, err := svcs.Ledger.ListEvents(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Slot event counts per type over a window
// @Param    from query string true "RFC3339 window start"
// @Param    to   query string true "RFC3339 window end"
// @Success  200 {object} map[string]int64
// @Router   /slot-events/summary [get]
func handleEventSummary(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := parseRFC3339(c.Query("from"))
		if err != nil {
			badRequest(c, "invalid from (RFC3339)")
			return
		}
		to, err := parseRFC3339(c.Query("to"))
		if err != nil {
			badRequest(c, "invalid to (RFC3339)")
			return
		}

		out, err := svcs.Ledger.EventSummary(c.Request.Context(), from, to)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// validation
	case errors.Is(err, allocation.ErrInvalidPlate),
		errors.Is(err, monthly.ErrInvalidPlate),
		errors.Is(err, monthly.ErrInvalidDuration),
		errors.Is(err, admin.ErrInvalidLayout):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return

	// not found
	case errors.Is(err, allocation.ErrAreaNotFound),
		errors.Is(err, allocation.ErrSlotNotFound),
		errors.Is(err, allocation.ErrSessionNotFound),
		errors.Is(err, ledger.ErrSessionNotFound),
		errors.Is(err, ledger.ErrAreaNotFound),
		errors.Is(err, admin.ErrAreaNotFound),
		errors.Is(err, admin.ErrSlotNotFound),
		errors.Is(err, admin.ErrRuleNotFound),
		errors.Is(err, monthly.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return

	// conflicts
	case errors.Is(err, allocation.ErrAreaInactive),
		errors.Is(err, allocation.ErrNoCapacity),
		errors.Is(err, allocation.ErrSlotTaken),
		errors.Is(err, allocation.ErrSlotClassMismatch),
		errors.Is(err, allocation.ErrDuplicateActiveSession),
		errors.Is(err, allocation.ErrAlreadyClosed),
		errors.Is(err, allocation.ErrSameSlot),
		errors.Is(err, allocation.ErrDifferentArea),
		errors.Is(err, allocation.ErrNotBothOccupied),
		errors.Is(err, allocation.ErrMissingActiveSession),
		errors.Is(err, allocation.ErrSessionInvalid),
		errors.Is(err, allocation.ErrAlreadyAssigned),
		errors.Is(err, admin.ErrAreaConflict),
		errors.Is(err, admin.ErrRuleConflict),
		errors.Is(err, admin.ErrAreaOccupied),
		errors.Is(err, monthly.ErrTicketOverlap):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return

	// configuration gaps
	case errors.Is(err, monthly.ErrNoMonthlyPrice):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return

	// integrity faults abort the request without touching the data
	case errors.Is(err, repository.ErrIntegrity):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "data integrity fault"})
		return

	// transient serialization failures are retryable by the client
	case postgresrepo.IsRetryable(err):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "transient conflict, retry"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
