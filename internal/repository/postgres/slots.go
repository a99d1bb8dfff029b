package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parkd/parkd/internal/domain"
	"github.com/parkd/parkd/internal/repository"
)

type SlotRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SlotRepo) With(db DB) *SlotRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SlotRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const slotCols = `id, parking_area_id, code, "row", col, allowed_class, status, note, created_at, updated_at`

func scanSlot(row pgx.Row) (*domain.ParkingSlot, error) {
	var s domain.ParkingSlot
	err := row.Scan(
		&s.ID,
		&s.AreaID,
		&s.Code,
		&s.Row,
		&s.Col,
		&s.AllowedClass,
		&s.Status,
		&s.Note,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves a slot by its ID.
//
// Returns:
//   - *domain.ParkingSlot: the slot when found.
//   - error: repository.ErrNotFound if the slot is not found.
func (r *SlotRepo) Get(ctx context.Context, id int64) (*domain.ParkingSlot, error) {
	const op = "postgres.SlotRepo.Get"

	db := r.handle()

	s, err := scanSlot(db.QueryRow(ctx,
		`SELECT `+slotCols+` FROM parking_slots WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// GetForUpdate retrieves a slot by its ID and takes a row lock that is
// held until the surrounding transaction commits.
func (r *SlotRepo) GetForUpdate(ctx context.Context, id int64) (*domain.ParkingSlot, error) {
	const op = "postgres.SlotRepo.GetForUpdate"

	db := r.handle()

	s, err := scanSlot(db.QueryRow(ctx,
		`SELECT `+slotCols+` FROM parking_slots WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// PickEmptyForUpdate selects and locks the EMPTY slot in the area that
// accepts the given vehicle class, using the lexicographically smallest
// (row, col) as a deterministic tie-break.
//
// Returns:
//   - error: repository.ErrNotFound when no matching slot is free.
func (r *SlotRepo) PickEmptyForUpdate(
	ctx context.Context,
	areaID int64,
	class domain.VehicleClass,
) (*domain.ParkingSlot, error) {
	const op = "postgres.SlotRepo.PickEmptyForUpdate"

	db := r.handle()

	s, err := scanSlot(db.QueryRow(ctx,
		`SELECT `+slotCols+`
		 FROM parking_slots
		 WHERE parking_area_id = $1
		   AND status = 'EMPTY'
		   AND allowed_class = $2
		 ORDER BY "row", col
		 LIMIT 1
		 FOR UPDATE`,
		areaID, class,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

// LockPair locks two slots in ascending-id order. Acquiring multi-row
// locks in a stable global order is the deadlock-avoidance invariant for
// concurrent swaps.
//
// Returns:
//   - error: repository.ErrNotFound unless exactly two rows were found.
func (r *SlotRepo) LockPair(ctx context.Context, idA, idB int64) (*domain.ParkingSlot, *domain.ParkingSlot, error) {
	const op = "postgres.SlotRepo.LockPair"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+slotCols+`
		 FROM parking_slots
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		[]int64{idA, idB},
	)
	if err != nil {
		return nil, nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []*domain.ParkingSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, wrapDBErr(op, err)
	}

	if len(out) != 2 {
		return nil, nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	a, b := out[0], out[1]
	if a.ID != idA {
		a, b = b, a
	}

	return a, b, nil
}

// MarkOccupied flips an EMPTY slot to OCCUPIED.
//
// Returns:
//   - error: repository.ErrSlotUnavailable if the slot was not EMPTY, which
//     is how a losing concurrent entry observes the race.
func (r *SlotRepo) MarkOccupied(ctx context.Context, id int64) error {
	const op = "postgres.SlotRepo.MarkOccupied"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_slots
		 SET status = 'OCCUPIED', updated_at = now()
		 WHERE id = $1 AND status = 'EMPTY'`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrSlotUnavailable)
	}

	return nil
}

// MarkEmpty sets the slot status to EMPTY unconditionally.
func (r *SlotRepo) MarkEmpty(ctx context.Context, id int64) error {
	const op = "postgres.SlotRepo.MarkEmpty"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_slots
		 SET status = 'EMPTY', updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// List returns the slots of an area ordered by (row, col), each joined
// with the plate of the vehicle currently occupying it, if any.
func (r *SlotRepo) List(
	ctx context.Context,
	areaID int64,
	status *domain.SlotStatus,
	class *domain.VehicleClass,
) ([]domain.SlotWithPlate, error) {
	const op = "postgres.SlotRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT s.id, s.parking_area_id, s.code, s."row", s.col, s.allowed_class,
		        s.status, s.note, s.created_at, s.updated_at,
		        v.license_plate, v.id, ps.id
		 FROM parking_slots s
		 LEFT JOIN parking_sessions ps
		   ON ps.parking_slot_id = s.id AND ps.exit_at IS NULL
		 LEFT JOIN vehicles v ON v.id = ps.vehicle_id
		 WHERE s.parking_area_id = $1
		   AND ($2::text IS NULL OR s.status = $2)
		   AND ($3::text IS NULL OR s.allowed_class = $3)
		 ORDER BY s."row", s.col`,
		areaID, status, class,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.SlotWithPlate
	for rows.Next() {
		var sp domain.SlotWithPlate
		if err := rows.Scan(
			&sp.ID,
			&sp.AreaID,
			&sp.Code,
			&sp.Row,
			&sp.Col,
			&sp.AllowedClass,
			&sp.Status,
			&sp.Note,
			&sp.CreatedAt,
			&sp.UpdatedAt,
			&sp.CurrentPlate,
			&sp.CurrentVehicleID,
			&sp.ActiveSessionID,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Update patches the administrative fields of a slot. Status changes here
// are the LOCKED/MAINT transitions; the engine never auto-assigns into a
// non-EMPTY slot.
func (r *SlotRepo) Update(
	ctx context.Context,
	id int64,
	status *domain.SlotStatus,
	allowedClass *domain.VehicleClass,
	code *string,
	note *string,
) (*domain.ParkingSlot, error) {
	const op = "postgres.SlotRepo.Update"

	db := r.handle()

	s, err := scanSlot(db.QueryRow(ctx,
		`UPDATE parking_slots
		 SET status        = COALESCE($2, status),
		     allowed_class = COALESCE($3, allowed_class),
		     code          = COALESCE($4, code),
		     note          = COALESCE($5, note),
		     updated_at    = now()
		 WHERE id = $1
		 RETURNING `+slotCols,
		id, status, allowedClass, code, note,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}
