package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/salon-escrow/internal/db"
)

const recordColumns = `id, booking_id, store_id, freelancer_id, service_id, gateway, mode, gateway_ref, payment_ref,
currency, amount, status, store_pct, freelancer_pct, platform_pct, store_share, freelancer_share, platform_share,
created_at, updated_at`

// PostgresStore persists records in the escrows table.
type PostgresStore struct {
	DB db.DBTX
}

func (p *PostgresStore) Insert(ctx context.Context, rec Record) error {
	_, err := p.DB.Exec(ctx, `
INSERT INTO escrows (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		rec.ID, rec.BookingID, rec.StoreID, rec.FreelancerID, rec.ServiceID, rec.Gateway, rec.Mode,
		rec.GatewayRef, rec.PaymentRef, rec.Currency, rec.Amount, string(rec.Status),
		rec.Split.Rule.StorePct, rec.Split.Rule.FreelancerPct, rec.Split.Rule.PlatformPct,
		rec.Split.Shares.Store, rec.Split.Shares.Freelancer, rec.Split.Shares.Platform,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("escrow: insert: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByBooking(ctx context.Context, bookingID string) (Record, error) {
	row := p.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM escrows WHERE booking_id = $1`, bookingID)
	return scanRecord(row)
}

// GetByRef prefers an exact gateway_ref match over a payment_ref match.
func (p *PostgresStore) GetByRef(ctx context.Context, gateway, ref string) (Record, error) {
	row := p.DB.QueryRow(ctx, `
SELECT `+recordColumns+` FROM escrows
WHERE gateway = $1 AND (gateway_ref = $2 OR (payment_ref <> '' AND payment_ref = $2))
ORDER BY (gateway_ref = $2) DESC
LIMIT 1`, gateway, ref)
	return scanRecord(row)
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, upd StatusUpdate) (Record, error) {
	row := p.DB.QueryRow(ctx, `
UPDATE escrows
SET status = $3,
    payment_ref = CASE WHEN payment_ref = '' THEN $4 ELSE payment_ref END,
    updated_at = $5
WHERE booking_id = $1 AND status = $2
RETURNING `+recordColumns,
		upd.BookingID, string(upd.From), string(upd.To), upd.PaymentRef, upd.At)
	rec, err := scanRecord(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := p.GetByBooking(ctx, upd.BookingID); getErr != nil {
			return Record{}, getErr
		}
		return Record{}, ErrStaleStatus
	}
	return rec, err
}

func (p *PostgresStore) CapturedRevenue(ctx context.Context, storeID string, from, to time.Time) (Revenue, error) {
	var rev Revenue
	err := p.DB.QueryRow(ctx, `
SELECT count(*), COALESCE(sum(amount), 0) FROM escrows
WHERE store_id = $1 AND status = 'captured' AND updated_at >= $2 AND updated_at < $3`,
		storeID, from, to).Scan(&rev.Count, &rev.Amount)
	if err != nil {
		return Revenue{}, fmt.Errorf("escrow: revenue: %w", err)
	}
	return rev, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.BookingID, &rec.StoreID, &rec.FreelancerID, &rec.ServiceID, &rec.Gateway, &rec.Mode,
		&rec.GatewayRef, &rec.PaymentRef, &rec.Currency, &rec.Amount, &status,
		&rec.Split.Rule.StorePct, &rec.Split.Rule.FreelancerPct, &rec.Split.Rule.PlatformPct,
		&rec.Split.Shares.Store, &rec.Split.Shares.Freelancer, &rec.Split.Shares.Platform,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("escrow: scan: %w", err)
	}
	rec.Status = Status(status)
	return rec, nil
}
