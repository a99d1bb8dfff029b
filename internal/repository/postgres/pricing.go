package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parkd/parkd/internal/domain"
	"github.com/parkd/parkd/internal/repository"
)

type PricingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *PricingRepo) With(db DB) *PricingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PricingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const ruleCols = `id, class, parking_area_id, regime, morning_price, night_price,
	monthly_price, hourly_day, hourly_night, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*domain.PricingRule, error) {
	var p domain.PricingRule
	err := row.Scan(
		&p.ID,
		&p.Class,
		&p.AreaID,
		&p.Regime,
		&p.MorningPrice,
		&p.NightPrice,
		&p.MonthlyPrice,
		&p.HourlyDay,
		&p.HourlyNight,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ActiveRule resolves the pricing rule for a class in an area. A rule
// bound to the area wins over the class-wide rule (NULL area).
//
// Returns:
//   - error: repository.ErrNotFound when no active rule matches; the
//     caller bills the visit with a nil amount.
func (r *PricingRepo) ActiveRule(
	ctx context.Context,
	class domain.VehicleClass,
	areaID int64,
) (*domain.PricingRule, error) {
	const op = "postgres.PricingRepo.ActiveRule"

	db := r.handle()

	p, err := scanRule(db.QueryRow(ctx,
		`SELECT `+ruleCols+`
		 FROM pricing_rules
		 WHERE class = $1
		   AND is_active
		   AND (parking_area_id = $2 OR parking_area_id IS NULL)
		 ORDER BY parking_area_id NULLS LAST, updated_at DESC
		 LIMIT 1`,
		class, areaID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return p, nil
}

// InsertRule creates a pricing rule and returns it with generated fields.
func (r *PricingRepo) InsertRule(ctx context.Context, p *domain.PricingRule) (*domain.PricingRule, error) {
	const op = "postgres.PricingRepo.InsertRule"

	db := r.handle()

	out, err := scanRule(db.QueryRow(ctx,
		`INSERT INTO pricing_rules
		   (class, parking_area_id, regime, morning_price, night_price,
		    monthly_price, hourly_day, hourly_night, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+ruleCols,
		p.Class, p.AreaID, p.Regime, p.MorningPrice, p.NightPrice,
		p.MonthlyPrice, p.HourlyDay, p.HourlyNight, p.IsActive,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// UpdateRule patches a pricing rule; nil fields keep their value.
func (r *PricingRepo) UpdateRule(
	ctx context.Context,
	id int64,
	morning, night, monthly, hourlyDay, hourlyNight *int64,
	isActive *bool,
) (*domain.PricingRule, error) {
	const op = "postgres.PricingRepo.UpdateRule"

	db := r.handle()

	out, err := scanRule(db.QueryRow(ctx,
		`UPDATE pricing_rules
		 SET morning_price = COALESCE($2, morning_price),
		     night_price   = COALESCE($3, night_price),
		     monthly_price = COALESCE($4, monthly_price),
		     hourly_day    = COALESCE($5, hourly_day),
		     hourly_night  = COALESCE($6, hourly_night),
		     is_active     = COALESCE($7, is_active),
		     updated_at    = now()
		 WHERE id = $1
		 RETURNING `+ruleCols,
		id, morning, night, monthly, hourlyDay, hourlyNight, isActive,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListRules returns all pricing rules, newest first.
func (r *PricingRepo) ListRules(ctx context.Context) ([]domain.PricingRule, error) {
	const op = "postgres.PricingRepo.ListRules"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+ruleCols+` FROM pricing_rules ORDER BY id DESC`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.PricingRule
	for rows.Next() {
		p, err := scanRule(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

const ticketCols = `t.id, t.vehicle_id, v.license_plate, v.class, t.customer_name,
	t.phone, t.id_number, t.email, t.parking_area_id, t.start_at, t.end_at,
	t.price, t.is_active, t.note, t.created_at, t.updated_at`

func scanTicket(row pgx.Row) (*domain.MonthlyTicket, error) {
	var t domain.MonthlyTicket
	err := row.Scan(
		&t.ID,
		&t.VehicleID,
		&t.Plate,
		&t.Class,
		&t.CustomerName,
		&t.Phone,
		&t.IDNumber,
		&t.Email,
		&t.AreaID,
		&t.StartAt,
		&t.EndAt,
		&t.Price,
		&t.IsActive,
		&t.Note,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ActiveTicketFor finds the monthly ticket covering a vehicle at the given
// instant. Coverage is inclusive on both ends of the validity window.
//
// Returns:
//   - error: repository.ErrNotFound when no ticket covers the instant.
func (r *PricingRepo) ActiveTicketFor(
	ctx context.Context,
	vehicleID int64,
	at time.Time,
) (*domain.MonthlyTicket, error) {
	const op = "postgres.PricingRepo.ActiveTicketFor"

	db := r.handle()

	t, err := scanTicket(db.QueryRow(ctx,
		`SELECT `+ticketCols+`
		 FROM monthly_tickets t
		 JOIN vehicles v ON v.id = t.vehicle_id
		 WHERE t.vehicle_id = $1
		   AND t.is_active
		   AND t.start_at <= $2 AND t.end_at >= $2
		 ORDER BY t.end_at DESC
		 LIMIT 1`,
		vehicleID, at,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// GetTicket retrieves a monthly ticket by id.
func (r *PricingRepo) GetTicket(ctx context.Context, id int64) (*domain.MonthlyTicket, error) {
	const op = "postgres.PricingRepo.GetTicket"

	db := r.handle()

	t, err := scanTicket(db.QueryRow(ctx,
		`SELECT `+ticketCols+`
		 FROM monthly_tickets t
		 JOIN vehicles v ON v.id = t.vehicle_id
		 WHERE t.id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

// HasOverlappingTicket reports whether the vehicle already holds an active
// ticket whose validity window intersects [startAt, endAt].
func (r *PricingRepo) HasOverlappingTicket(
	ctx context.Context,
	vehicleID int64,
	startAt, endAt time.Time,
) (bool, error) {
	const op = "postgres.PricingRepo.HasOverlappingTicket"

	db := r.handle()

	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM monthly_tickets
		   WHERE vehicle_id = $1
		     AND is_active
		     AND start_at <= $3 AND end_at >= $2
		 )`,
		vehicleID, startAt, endAt,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

// InsertTicket creates a monthly ticket and returns its id.
func (r *PricingRepo) InsertTicket(ctx context.Context, t *domain.MonthlyTicket) (int64, error) {
	const op = "postgres.PricingRepo.InsertTicket"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO monthly_tickets
		   (vehicle_id, customer_name, phone, id_number, email,
		    parking_area_id, start_at, end_at, price, is_active, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10)
		 RETURNING id`,
		t.VehicleID, t.CustomerName, t.Phone, t.IDNumber, t.Email,
		t.AreaID, t.StartAt, t.EndAt, t.Price, t.Note,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// ExtendTicket pushes the ticket's end of validity to a new instant and
// reactivates it. Used by renewal.
func (r *PricingRepo) ExtendTicket(
	ctx context.Context,
	id int64,
	newEnd time.Time,
	price int64,
) error {
	const op = "postgres.PricingRepo.ExtendTicket"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE monthly_tickets
		 SET end_at = $2, price = $3, is_active = true, updated_at = now()
		 WHERE id = $1`,
		id, newEnd, price,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SetTicketActive toggles a ticket on or off without touching its window.
func (r *PricingRepo) SetTicketActive(ctx context.Context, id int64, active bool) error {
	const op = "postgres.PricingRepo.SetTicketActive"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE monthly_tickets SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ListTickets returns monthly tickets matching an optional plate/name/phone
// substring and an optional validity window overlap.
func (r *PricingRepo) ListTickets(
	ctx context.Context,
	q string,
	from, to *time.Time,
) ([]domain.MonthlyTicket, error) {
	const op = "postgres.PricingRepo.ListTickets"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+ticketCols+`
		 FROM monthly_tickets t
		 JOIN vehicles v ON v.id = t.vehicle_id
		 WHERE ($1 = '' OR v.license_plate ILIKE '%' || $1 || '%'
		        OR t.customer_name ILIKE '%' || $1 || '%'
		        OR t.phone ILIKE '%' || $1 || '%')
		   AND ($2::timestamptz IS NULL OR t.end_at >= $2)
		   AND ($3::timestamptz IS NULL OR t.start_at <= $3)
		 ORDER BY t.end_at DESC`,
		q, from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.MonthlyTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ExpiringTickets returns active tickets whose end of validity falls within
// [now, now+window] and that have not been notified for that end date yet.
func (r *PricingRepo) ExpiringTickets(
	ctx context.Context,
	now time.Time,
	window time.Duration,
) ([]domain.MonthlyTicket, error) {
	const op = "postgres.PricingRepo.ExpiringTickets"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+ticketCols+`
		 FROM monthly_tickets t
		 JOIN vehicles v ON v.id = t.vehicle_id
		 WHERE t.is_active
		   AND t.end_at >= $1
		   AND t.end_at <= $2
		   AND NOT EXISTS (
		     SELECT 1 FROM ticket_notifications n
		     WHERE n.ticket_id = t.id AND n.end_at = t.end_at
		   )
		 ORDER BY t.end_at`,
		now, now.Add(window),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.MonthlyTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// MarkNotified records that an expiry notification went out for the
// ticket's current end date, so the scanner skips it next round.
func (r *PricingRepo) MarkNotified(ctx context.Context, ticketID int64, endAt time.Time) error {
	const op = "postgres.PricingRepo.MarkNotified"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO ticket_notifications (ticket_id, end_at)
		 VALUES ($1, $2)
		 ON CONFLICT (ticket_id, end_at) DO NOTHING`,
		ticketID, endAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// InsertPayment records a monthly-ticket purchase or renewal transaction.
func (r *PricingRepo) InsertPayment(ctx context.Context, p *domain.PaymentRecord) error {
	const op = "postgres.PricingRepo.InsertPayment"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO payment_records
		   (id, vehicle_id, parking_area_id, ticket_id, staff_id, amount,
		    months, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.VehicleID, p.AreaID, p.TicketID, p.StaffID, p.Amount,
		p.Months, p.Description,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListPayments returns payment records, newest first, optionally filtered
// by plate substring.
func (r *PricingRepo) ListPayments(ctx context.Context, q string, limit int) ([]domain.PaymentRecord, error) {
	const op = "postgres.PricingRepo.ListPayments"

	db := r.handle()

	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(ctx,
		`SELECT p.id, p.vehicle_id, p.parking_area_id, p.ticket_id, p.staff_id,
		        p.amount, p.months, p.description, p.created_at
		 FROM payment_records p
		 JOIN vehicles v ON v.id = p.vehicle_id
		 WHERE ($1 = '' OR v.license_plate ILIKE '%' || $1 || '%')
		 ORDER BY p.created_at DESC
		 LIMIT $2`,
		q, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.PaymentRecord
	for rows.Next() {
		var p domain.PaymentRecord
		if err := rows.Scan(
			&p.ID,
			&p.VehicleID,
			&p.AreaID,
			&p.TicketID,
			&p.StaffID,
			&p.Amount,
			&p.Months,
			&p.Description,
			&p.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
