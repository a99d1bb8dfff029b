package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parkd/parkd/internal/domain"
	"github.com/parkd/parkd/internal/repository"
)

type AreaRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AreaRepo) With(db DB) *AreaRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AreaRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const areaCols = `id, name, slot_count, current_count, map_rows, map_cols,
	cell_size, map_data, is_active, created_at, updated_at`

func scanArea(row pgx.Row) (*domain.ParkingArea, error) {
	var a domain.ParkingArea
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.SlotCount,
		&a.CurrentCount,
		&a.MapRows,
		&a.MapCols,
		&a.CellSize,
		&a.MapData,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts an area and returns it with generated fields.
//
// Returns:
//   - error: repository.ErrConflict when the name is taken.
func (r *AreaRepo) Create(ctx context.Context, name string, mapRows, mapCols, cellSize int) (*domain.ParkingArea, error) {
	const op = "postgres.AreaRepo.Create"

	db := r.handle()

	a, err := scanArea(db.QueryRow(ctx,
		`INSERT INTO parking_areas (name, map_rows, map_cols, cell_size)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+areaCols,
		name, mapRows, mapCols, cellSize,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

// Get retrieves an area by id.
func (r *AreaRepo) Get(ctx context.Context, id int64) (*domain.ParkingArea, error) {
	const op = "postgres.AreaRepo.Get"

	db := r.handle()

	a, err := scanArea(db.QueryRow(ctx,
		`SELECT `+areaCols+` FROM parking_areas WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

// GetForUpdate retrieves and locks an area row. Entry and exit both lock
// the area before touching its counter.
func (r *AreaRepo) GetForUpdate(ctx context.Context, id int64) (*domain.ParkingArea, error) {
	const op = "postgres.AreaRepo.GetForUpdate"

	db := r.handle()

	a, err := scanArea(db.QueryRow(ctx,
		`SELECT `+areaCols+` FROM parking_areas WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

// List returns all areas with live slot tallies, active first.
func (r *AreaRepo) List(ctx context.Context) ([]domain.AreaCounts, error) {
	const op = "postgres.AreaRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT a.id, a.name, a.is_active, a.current_count,
		        count(s.id), a.updated_at
		 FROM parking_areas a
		 LEFT JOIN parking_slots s ON s.parking_area_id = a.id
		 GROUP BY a.id
		 ORDER BY a.is_active DESC, a.name`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.AreaCounts
	for rows.Next() {
		var ac domain.AreaCounts
		if err := rows.Scan(&ac.ID, &ac.Name, &ac.IsActive, &ac.CurrentCount, &ac.SlotCount, &ac.UpdatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SetActive toggles whether the area accepts new entries.
func (r *AreaRepo) SetActive(ctx context.Context, id int64, active bool) error {
	const op = "postgres.AreaRepo.SetActive"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_areas SET is_active = $2, updated_at = now() WHERE id = $1`,
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

// IncrementCount bumps the area occupancy counter by one.
func (r *AreaRepo) IncrementCount(ctx context.Context, id int64) error {
	const op = "postgres.AreaRepo.IncrementCount"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_areas
		 SET current_count = current_count + 1, updated_at = now()
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

// DecrementCount drops the area occupancy counter by one, clamping at
// zero.
//
// Returns:
//   - bool: true when the counter was already zero and nothing changed,
//     which the caller reports as an integrity warning.
func (r *AreaRepo) DecrementCount(ctx context.Context, id int64) (bool, error) {
	const op = "postgres.AreaRepo.DecrementCount"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_areas
		 SET current_count = current_count - 1, updated_at = now()
		 WHERE id = $1 AND current_count > 0`,
		id,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM parking_areas WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return false, wrapDBErr(op, err)
		}
		if !exists {
			return false, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return true, nil
	}

	return false, nil
}

// CountOccupied counts slots of an area currently holding a vehicle.
// Used to cross-check the denormalized counter.
func (r *AreaRepo) CountOccupied(ctx context.Context, id int64) (int, error) {
	const op = "postgres.AreaRepo.CountOccupied"

	db := r.handle()

	var n int
	err := db.QueryRow(ctx,
		`SELECT count(*) FROM parking_slots
		 WHERE parking_area_id = $1 AND status = 'OCCUPIED'`,
		id,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

// SlotSpec is one cell of an area map layout.
type SlotSpec struct {
	Code         string
	Row          int
	Col          int
	AllowedClass domain.VehicleClass
}

// SetMap stores the raw map layout and its grid dimensions.
func (r *AreaRepo) SetMap(ctx context.Context, id int64, mapRows, mapCols, cellSize int, mapData []byte) error {
	const op = "postgres.AreaRepo.SetMap"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_areas
		 SET map_rows = $2, map_cols = $3, cell_size = $4, map_data = $5,
		     updated_at = now()
		 WHERE id = $1`,
		id, mapRows, mapCols, cellSize, mapData,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// UpsertSlotsFromMap reconciles the slot table with a map layout. Slots
// keyed by (area, row, col) are inserted or re-labeled; status is left
// alone so occupancy survives a map edit.
func (r *AreaRepo) UpsertSlotsFromMap(ctx context.Context, areaID int64, specs []SlotSpec) error {
	const op = "postgres.AreaRepo.UpsertSlotsFromMap"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, sp := range specs {
		batch.Queue(
			`INSERT INTO parking_slots (parking_area_id, code, "row", col, allowed_class)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (parking_area_id, "row", col) DO UPDATE
			 SET code = EXCLUDED.code,
			     allowed_class = EXCLUDED.allowed_class,
			     updated_at = now()`,
			areaID, sp.Code, sp.Row, sp.Col, sp.AllowedClass,
		)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	for range specs {
		if _, err := br.Exec(); err != nil {
			return wrapDBErr(op, err)
		}
	}

	return nil
}

// RecalcSlotCount refreshes the denormalized slot tally after a map
// edit changed the slot table.
func (r *AreaRepo) RecalcSlotCount(ctx context.Context, id int64) error {
	const op = "postgres.AreaRepo.RecalcSlotCount"

	_, err := r.handle().Exec(ctx,
		`UPDATE parking_areas
		 SET slot_count = (
		   SELECT count(*) FROM parking_slots WHERE parking_area_id = $1
		 ),
		 updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// DeleteEmptySlotsNotInMap removes slots the new layout no longer has.
// Only EMPTY slots go; a cell that is occupied, reserved, or blocked
// stays and the caller reports the leftover count.
func (r *AreaRepo) DeleteEmptySlotsNotInMap(ctx context.Context, areaID int64, keep []SlotSpec) (int64, error) {
	const op = "postgres.AreaRepo.DeleteEmptySlotsNotInMap"

	db := r.handle()

	rowsKeep := make([]int32, 0, len(keep))
	colsKeep := make([]int32, 0, len(keep))
	for _, sp := range keep {
		rowsKeep = append(rowsKeep, int32(sp.Row))
		colsKeep = append(colsKeep, int32(sp.Col))
	}

	tag, err := db.Exec(ctx,
		`DELETE FROM parking_slots s
		 WHERE s.parking_area_id = $1
		   AND s.status = 'EMPTY'
		   AND NOT EXISTS (
		     SELECT 1
		     FROM unnest($2::int[], $3::int[]) AS k("row", col)
		     WHERE k."row" = s."row" AND k.col = s.col
		   )`,
		areaID, rowsKeep, colsKeep,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}
