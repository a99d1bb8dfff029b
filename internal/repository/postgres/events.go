package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parkd/parkd/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const insertEventSQL = `INSERT INTO slot_events
	(session_id, vehicle_id, parking_area_id, event_type, from_slot_id,
	 to_slot_id, staff_id, note)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Insert appends one slot event. The trail is append-only; nothing
// updates or deletes rows here.
func (r *EventRepo) Insert(ctx context.Context, e *domain.SlotEvent) error {
	const op = "postgres.EventRepo.Insert"

	db := r.handle()

	_, err := db.Exec(ctx, insertEventSQL,
		e.SessionID, e.VehicleID, e.AreaID, e.Type,
		e.FromSlotID, e.ToSlotID, e.StaffID, e.Note,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// InsertPair appends two events in one round trip. A swap writes one
// event per affected session.
func (r *EventRepo) InsertPair(ctx context.Context, a, b *domain.SlotEvent) error {
	const op = "postgres.EventRepo.InsertPair"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, e := range []*domain.SlotEvent{a, b} {
		batch.Queue(insertEventSQL,
			e.SessionID, e.VehicleID, e.AreaID, e.Type,
			e.FromSlotID, e.ToSlotID, e.StaffID, e.Note,
		)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	for range 2 {
		if _, err := br.Exec(); err != nil {
			return wrapDBErr(op, err)
		}
	}

	return nil
}

// EventFilter narrows the slot-event listing. Zero values match all.
type EventFilter struct {
	Plate    string
	AreaID   *int64
	SlotCode string
	From     *time.Time
	To       *time.Time
	Type     *domain.SlotEventType
	Limit    int
	Offset   int
}

// List returns slot events newest first, joined with the plate and slot
// codes the reporting views show.
func (r *EventRepo) List(ctx context.Context, f EventFilter) ([]domain.SlotEventWithRefs, error) {
	const op = "postgres.EventRepo.List"

	db := r.handle()

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := db.Query(ctx,
		`SELECT e.id, e.session_id, e.vehicle_id, e.parking_area_id, e.event_type,
		        e.from_slot_id, e.to_slot_id, e.staff_id, e.note, e.created_at,
		        v.license_plate, a.name, fs.code, ts.code
		 FROM slot_events e
		 LEFT JOIN vehicles v ON v.id = e.vehicle_id
		 LEFT JOIN parking_areas a ON a.id = e.parking_area_id
		 LEFT JOIN parking_slots fs ON fs.id = e.from_slot_id
		 LEFT JOIN parking_slots ts ON ts.id = e.to_slot_id
		 WHERE ($1 = '' OR v.license_plate ILIKE '%' || $1 || '%')
		   AND ($2::bigint IS NULL OR e.parking_area_id = $2)
		   AND ($3 = '' OR fs.code = $3 OR ts.code = $3)
		   AND ($4::timestamptz IS NULL OR e.created_at >= $4)
		   AND ($5::timestamptz IS NULL OR e.created_at < $5)
		   AND ($6::text IS NULL OR e.event_type = $6)
		 ORDER BY e.created_at DESC, e.id DESC
		 LIMIT $7 OFFSET $8`,
		f.Plate, f.AreaID, f.SlotCode, f.From, f.To, f.Type, limit, f.Offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.SlotEventWithRefs
	for rows.Next() {
		var ev domain.SlotEventWithRefs
		if err := rows.Scan(
			&ev.ID,
			&ev.SessionID,
			&ev.VehicleID,
			&ev.AreaID,
			&ev.Type,
			&ev.FromSlotID,
			&ev.ToSlotID,
			&ev.StaffID,
			&ev.Note,
			&ev.CreatedAt,
			&ev.Plate,
			&ev.AreaName,
			&ev.FromSlotCode,
			&ev.ToSlotCode,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// CountByType aggregates event counts per type over a time window, for
// the reporting summary endpoint.
func (r *EventRepo) CountByType(ctx context.Context, from, to time.Time) (map[domain.SlotEventType]int64, error) {
	const op = "postgres.EventRepo.CountByType"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT event_type, count(*)
		 FROM slot_events
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY event_type`,
		from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make(map[domain.SlotEventType]int64)
	for rows.Next() {
		var (
			t domain.SlotEventType
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
