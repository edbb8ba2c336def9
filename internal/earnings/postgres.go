package earnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/salon-escrow/internal/db"
)

// PostgresStore persists earnings in the earnings table.
type PostgresStore struct {
	DB db.DBTX
}

const earningColumns = `id, booking_id, party_id, role, amount, currency, status, created_at, updated_at`

func (p *PostgresStore) InsertIfAbsent(ctx context.Context, e Earning) (bool, error) {
	tag, err := p.DB.Exec(ctx, `
INSERT INTO earnings (`+earningColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (booking_id, role) DO NOTHING`,
		e.ID, e.BookingID, e.PartyID, string(e.Role), e.Amount, e.Currency, string(e.Status), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("earnings: insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Earning, error) {
	e, err := scanEarning(p.DB.QueryRow(ctx, `SELECT `+earningColumns+` FROM earnings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Earning{}, ErrNotFound
	}
	return e, err
}

func (p *PostgresStore) ListByParty(ctx context.Context, partyID string) ([]Earning, error) {
	return p.list(ctx, `SELECT `+earningColumns+` FROM earnings WHERE party_id = $1 ORDER BY created_at DESC, role`, partyID)
}

func (p *PostgresStore) ListByBooking(ctx context.Context, bookingID string) ([]Earning, error) {
	return p.list(ctx, `SELECT `+earningColumns+` FROM earnings WHERE booking_id = $1 ORDER BY created_at DESC, role`, bookingID)
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (Earning, error) {
	e, err := scanEarning(p.DB.QueryRow(ctx, `
UPDATE earnings SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
RETURNING `+earningColumns, id, string(from), string(to), at))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Earning{}, err
	}
	current, getErr := p.Get(ctx, id)
	if getErr != nil {
		return Earning{}, getErr
	}
	return current, ErrStaleStatus
}

func (p *PostgresStore) list(ctx context.Context, query string, arg string) ([]Earning, error) {
	rows, err := p.DB.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("earnings: list: %w", err)
	}
	defer rows.Close()
	out := make([]Earning, 0)
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEarning(row pgx.Row) (Earning, error) {
	var (
		e      Earning
		role   string
		status string
	)
	if err := row.Scan(&e.ID, &e.BookingID, &e.PartyID, &role, &e.Amount, &e.Currency, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Earning{}, err
		}
		return Earning{}, fmt.Errorf("earnings: scan: %w", err)
	}
	e.Role = Role(role)
	e.Status = Status(status)
	return e, nil
}
