package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/salon-escrow/internal/db"
)

// PostgresStore persists slot bookings in slot_bookings. A partial unique
// index on confirmed rows enforces one booking per slot.
type PostgresStore struct {
	DB db.DBTX
}

const slotColumns = `id, salon_id, salon_name, customer_id, slot_date, slot_time, location, services, status, created_at, updated_at`

func (p *PostgresStore) Insert(ctx context.Context, s Slot) error {
	date, err := ParseDate(s.Date)
	if err != nil {
		return err
	}
	_, err = p.DB.Exec(ctx, `
INSERT INTO slot_bookings (`+slotColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.SalonID, s.SalonName, s.CustomerID, date, s.Time, string(s.Location), s.Services,
		string(s.Status), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("booking: insert: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Slot, error) {
	return scanSlot(p.DB.QueryRow(ctx, `SELECT `+slotColumns+` FROM slot_bookings WHERE id = $1`, id))
}

func (p *PostgresStore) ListConfirmed(ctx context.Context, salonID, date string) ([]Slot, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	return p.list(ctx, `
SELECT `+slotColumns+` FROM slot_bookings
WHERE salon_id = $1 AND slot_date = $2 AND status = 'confirmed'
ORDER BY slot_time`, salonID, day)
}

func (p *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]Slot, error) {
	return p.list(ctx, `SELECT `+slotColumns+` FROM slot_bookings WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
}

func (p *PostgresStore) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (Slot, error) {
	s, err := scanSlot(p.DB.QueryRow(ctx, `
UPDATE slot_bookings SET status = 'cancelled', updated_at = $2
WHERE id = $1 AND status = 'confirmed'
RETURNING `+slotColumns, id, at))
	if errors.Is(err, ErrNotFound) {
		return p.Get(ctx, id)
	}
	return s, err
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Slot, error) {
	rows, err := p.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("booking: list: %w", err)
	}
	defer rows.Close()
	out := make([]Slot, 0)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSlot(row pgx.Row) (Slot, error) {
	var (
		s        Slot
		date     time.Time
		location string
		status   string
	)
	err := row.Scan(&s.ID, &s.SalonID, &s.SalonName, &s.CustomerID, &date, &s.Time, &location, &s.Services,
		&status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Slot{}, ErrNotFound
		}
		return Slot{}, fmt.Errorf("booking: scan: %w", err)
	}
	s.Date = date.Format(DateLayout)
	s.Location = Location(location)
	s.Status = Status(status)
	if s.Services == nil {
		s.Services = []string{}
	}
	return s, nil
}
