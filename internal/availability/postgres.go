package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores slots in availability_slots.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

const selectSlot = `
	SELECT id, provider_id, to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'),
		to_char(end_time, 'HH24:MI'), location_type, appointment_type, base_fee::float8, currency,
		notes, created_at, updated_at
	FROM availability_slots
`

// exclusionViolation is raised by availability_slots_no_overlap when a
// concurrent writer got past overlapGuard first.
const exclusionViolation = "23P01"

// overlapGuard is true when another slot of the provider intersects
// ($3 date, $4 start, $5 end). $1 is the slot's own ID and $2 the provider.
const overlapGuard = `
	NOT EXISTS (
		SELECT 1 FROM availability_slots o
		WHERE o.provider_id = $2 AND o.id <> $1 AND o.slot_date = $3::date
			AND o.start_time < $5::time AND $4::time < o.end_time
	)
`

func (r *PostgresRepository) List(ctx context.Context, providerID, from, to string) ([]Slot, error) {
	rows, err := r.db.Query(ctx, selectSlot+`
		WHERE provider_id = $1 AND slot_date BETWEEN $2::date AND $3::date
		ORDER BY slot_date, start_time
	`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: list slots: %w", err)
	}
	defer rows.Close()

	out := []Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: list slots: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, providerID, id string) (*Slot, error) {
	row := r.db.QueryRow(ctx, selectSlot+`WHERE id = $1 AND provider_id = $2`, id, providerID)
	return scanSlot(row)
}

func (r *PostgresRepository) Create(ctx context.Context, slot *Slot) error {
	query := `
		INSERT INTO availability_slots (id, provider_id, slot_date, start_time, end_time, location_type,
			appointment_type, base_fee, currency, notes, created_at, updated_at)
		SELECT $1, $2, $3::date, $4::time, $5::time, $6, $7, $8, $9, $10, $11, $11
		WHERE ` + overlapGuard
	tag, err := r.db.Exec(ctx, query,
		slot.ID, slot.ProviderID, slot.Date, slot.StartTime, slot.EndTime, slot.LocationType,
		slot.AppointmentType, slot.BaseFee, slot.Currency, slot.Notes, slot.CreatedAt,
	)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrOverlap
		}
		return fmt.Errorf("availability: insert slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverlap
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, slot *Slot) error {
	query := `
		UPDATE availability_slots
		SET slot_date = $3::date, start_time = $4::time, end_time = $5::time, location_type = $6,
			appointment_type = $7, base_fee = $8, currency = $9, notes = $10, updated_at = $11
		WHERE id = $1 AND provider_id = $2 AND ` + overlapGuard
	tag, err := r.db.Exec(ctx, query,
		slot.ID, slot.ProviderID, slot.Date, slot.StartTime, slot.EndTime, slot.LocationType,
		slot.AppointmentType, slot.BaseFee, slot.Currency, slot.Notes, slot.UpdatedAt,
	)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrOverlap
		}
		return fmt.Errorf("availability: update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the slot is gone or the guard refused the new window.
		if _, err := r.Get(ctx, slot.ProviderID, slot.ID); err != nil {
			return err
		}
		return ErrOverlap
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, providerID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1 AND provider_id = $2`, id, providerID)
	if err != nil {
		return fmt.Errorf("availability: delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == exclusionViolation
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.ProviderID, &s.Date, &s.StartTime, &s.EndTime, &s.LocationType,
		&s.AppointmentType, &s.BaseFee, &s.Currency, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("availability: scan slot: %w", err)
	}
	return &s, nil
}
