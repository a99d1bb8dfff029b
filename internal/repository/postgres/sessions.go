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

type SessionRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SessionRepo) With(db DB) *SessionRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SessionRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const sessionCols = `id, vehicle_id, parking_area_id, parking_slot_id,
	entry_staff_id, exit_staff_id, entry_at, exit_at, billed_hours, amount,
	is_monthly_ticket, pricing_rule_id, entry_image, exit_image, created_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.VehicleID,
		&s.AreaID,
		&s.SlotID,
		&s.EntryStaffID,
		&s.ExitStaffID,
		&s.EntryAt,
		&s.ExitAt,
		&s.BilledHours,
		&s.Amount,
		&s.MonthlyTicket,
		&s.PricingRuleID,
		&s.EntryImage,
		&s.ExitImage,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertVehicle finds or creates the vehicle for a plate. When the vehicle
// exists with a different declared class the class is overwritten: last
// write wins, vehicles are never deleted.
func (r *SessionRepo) UpsertVehicle(
	ctx context.Context,
	plate string,
	class domain.VehicleClass,
) (*domain.Vehicle, error) {
	const op = "postgres.SessionRepo.UpsertVehicle"

	db := r.handle()

	var v domain.Vehicle
	err := db.QueryRow(ctx,
		`INSERT INTO vehicles (license_plate, class)
		 VALUES ($1, $2)
		 ON CONFLICT (license_plate) DO UPDATE SET class = EXCLUDED.class
		 RETURNING id, license_plate, class`,
		plate, class,
	).Scan(&v.ID, &v.Plate, &v.Class)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &v, nil
}

// GetVehicle retrieves a vehicle by id.
func (r *SessionRepo) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	const op = "postgres.SessionRepo.GetVehicle"

	db := r.handle()

	var v domain.Vehicle
	err := db.QueryRow(ctx,
		`SELECT id, license_plate, class FROM vehicles WHERE id = $1`, id,
	).Scan(&v.ID, &v.Plate, &v.Class)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &v, nil
}

// HasOpenByPlate reports whether the plate has any open parking session.
func (r *SessionRepo) HasOpenByPlate(ctx context.Context, plate string) (bool, error) {
	const op = "postgres.SessionRepo.HasOpenByPlate"

	db := r.handle()

	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM parking_sessions s
		   JOIN vehicles v ON v.id = s.vehicle_id
		   WHERE v.license_plate = $1 AND s.exit_at IS NULL
		 )`,
		plate,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

// OpenByPlate finds the open session for a plate. The invariant allows at
// most one; finding two is surfaced as repository.ErrIntegrity rather
// than silently resolved.
//
// Set forUpdate to lock the session row for the rest of the transaction.
func (r *SessionRepo) OpenByPlate(
	ctx context.Context,
	plate string,
	forUpdate bool,
) (*domain.Session, error) {
	const op = "postgres.SessionRepo.OpenByPlate"

	db := r.handle()

	q := `SELECT s.` + sessionColsAliased("s") + `
	      FROM parking_sessions s
	      JOIN vehicles v ON v.id = s.vehicle_id
	      WHERE v.license_plate = $1 AND s.exit_at IS NULL
	      ORDER BY s.entry_at DESC
	      LIMIT 2`
	if forUpdate {
		q += ` FOR UPDATE OF s`
	}

	rows, err := db.Query(ctx, q, plate)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	switch len(out) {
	case 0:
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	case 1:
		return out[0], nil
	default:
		return nil, fmt.Errorf("%s: plate %s has multiple open sessions:%w",
			op, plate, repository.ErrIntegrity)
	}
}

// OpenBySlotForUpdate finds and locks the open session bound to a slot.
// A slot holds at most one open session; finding two is surfaced as
// repository.ErrIntegrity rather than silently resolved.
func (r *SessionRepo) OpenBySlotForUpdate(ctx context.Context, slotID int64) (*domain.Session, error) {
	const op = "postgres.SessionRepo.OpenBySlotForUpdate"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+sessionCols+`
		 FROM parking_sessions
		 WHERE parking_slot_id = $1 AND exit_at IS NULL
		 LIMIT 2
		 FOR UPDATE`,
		slotID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	switch len(out) {
	case 0:
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	case 1:
		return out[0], nil
	default:
		return nil, fmt.Errorf("%s: slot %d has multiple open sessions:%w",
			op, slotID, repository.ErrIntegrity)
	}
}

// GetForUpdate retrieves and locks a session by id.
func (r *SessionRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "postgres.SessionRepo.GetForUpdate"

	db := r.handle()

	s, err := scanSession(db.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM parking_sessions WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// Open inserts a new open parking session and returns its id.
func (r *SessionRepo) Open(ctx context.Context, s *domain.Session) (int64, error) {
	const op = "postgres.SessionRepo.Open"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO parking_sessions
		   (vehicle_id, parking_area_id, parking_slot_id, entry_staff_id,
		    entry_at, entry_image)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		s.VehicleID, s.AreaID, s.SlotID, s.EntryStaffID, s.EntryAt, s.EntryImage,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// Close applies a billing result to an open session. The guard on
// exit_at makes a second close fail instead of double-billing.
//
// Returns:
//   - error: repository.ErrAlreadyClosed if the session is closed.
//   - error: repository.ErrNotFound if the session does not exist.
func (r *SessionRepo) Close(
	ctx context.Context,
	id int64,
	exitAt time.Time,
	staffID int64,
	exitImage *string,
	fee domain.FeeResult,
) error {
	const op = "postgres.SessionRepo.Close"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_sessions
		 SET exit_at = $2,
		     exit_staff_id = $3,
		     exit_image = $4,
		     billed_hours = $5,
		     amount = $6,
		     is_monthly_ticket = $7,
		     pricing_rule_id = $8
		 WHERE id = $1 AND exit_at IS NULL`,
		id, exitAt, staffID, exitImage,
		fee.Hours, fee.Amount, fee.MonthlyTicket, fee.PricingRuleID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM parking_sessions WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return wrapDBErr(op, err)
		}
		if exists {
			return fmt.Errorf("%s:%w", op, repository.ErrAlreadyClosed)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// SetSlot rebinds (or clears, with nil) the slot reference of a session.
func (r *SessionRepo) SetSlot(ctx context.Context, id int64, slotID *int64) error {
	const op = "postgres.SessionRepo.SetSlot"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_sessions SET parking_slot_id = $2 WHERE id = $1`,
		id, slotID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ListOpen returns all open sessions, newest entry first.
func (r *SessionRepo) ListOpen(ctx context.Context) ([]domain.SessionWithRefs, error) {
	const op = "postgres.SessionRepo.ListOpen"

	return r.list(ctx, op, `WHERE s.exit_at IS NULL`, 0)
}

// ListHistory returns the most recent sessions, open or closed.
func (r *SessionRepo) ListHistory(ctx context.Context, limit int) ([]domain.SessionWithRefs, error) {
	const op = "postgres.SessionRepo.ListHistory"

	return r.list(ctx, op, ``, limit)
}

func (r *SessionRepo) list(ctx context.Context, op, where string, limit int) ([]domain.SessionWithRefs, error) {
	db := r.handle()

	q := `SELECT s.` + sessionColsAliased("s") + `,
	             v.license_plate, v.class, a.name, sl.code
	      FROM parking_sessions s
	      JOIN vehicles v ON v.id = s.vehicle_id
	      JOIN parking_areas a ON a.id = s.parking_area_id
	      LEFT JOIN parking_slots sl ON sl.id = s.parking_slot_id
	      ` + where + `
	      ORDER BY s.entry_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.SessionWithRefs
	for rows.Next() {
		var sr domain.SessionWithRefs
		if err := rows.Scan(
			&sr.ID,
			&sr.VehicleID,
			&sr.AreaID,
			&sr.SlotID,
			&sr.EntryStaffID,
			&sr.ExitStaffID,
			&sr.EntryAt,
			&sr.ExitAt,
			&sr.BilledHours,
			&sr.Amount,
			&sr.MonthlyTicket,
			&sr.PricingRuleID,
			&sr.EntryImage,
			&sr.ExitImage,
			&sr.CreatedAt,
			&sr.Plate,
			&sr.Class,
			&sr.AreaName,
			&sr.SlotCode,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListUnassigned returns open sessions that have no slot bound, newest
// entry first, optionally filtered by area.
func (r *SessionRepo) ListUnassigned(ctx context.Context, areaID *int64) ([]domain.UnassignedVehicle, error) {
	const op = "postgres.SessionRepo.ListUnassigned"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT s.id, v.id, v.license_plate, v.class, s.entry_at, s.parking_area_id
		 FROM parking_sessions s
		 JOIN vehicles v ON v.id = s.vehicle_id
		 WHERE s.exit_at IS NULL
		   AND s.parking_slot_id IS NULL
		   AND ($1::bigint IS NULL OR s.parking_area_id = $1)
		 ORDER BY s.entry_at DESC`,
		areaID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.UnassignedVehicle
	for rows.Next() {
		var u domain.UnassignedVehicle
		if err := rows.Scan(&u.SessionID, &u.VehicleID, &u.Plate, &u.Class, &u.EntryAt, &u.AreaID); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// sessionColsAliased prefixes every session column with the given table
// alias for join queries.
func sessionColsAliased(alias string) string {
	return `id, ` + alias + `.vehicle_id, ` + alias + `.parking_area_id, ` +
		alias + `.parking_slot_id, ` + alias + `.entry_staff_id, ` +
		alias + `.exit_staff_id, ` + alias + `.entry_at, ` + alias + `.exit_at, ` +
		alias + `.billed_hours, ` + alias + `.amount, ` + alias + `.is_monthly_ticket, ` +
		alias + `.pricing_rule_id, ` + alias + `.entry_image, ` + alias + `.exit_image, ` +
		alias + `.created_at`
}
