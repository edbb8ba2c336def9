package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/salon-escrow/internal/db"
)

// PostgresStore persists jobs in the jobs table.
type PostgresStore struct {
	DB db.DBTX
}

const jobColumns = `id, store_id, store_name, title, location, job_date, start_time, hours, rate, currency,
home_service, status, freelancer_id, earning_id, created_at, updated_at`

func (p *PostgresStore) Insert(ctx context.Context, j Job) error {
	date, err := time.Parse(dateLayout, j.Date)
	if err != nil {
		return fmt.Errorf("jobs: insert: %w", err)
	}
	_, err = p.DB.Exec(ctx, `
INSERT INTO jobs (`+jobColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		j.ID, j.StoreID, j.StoreName, j.Title, j.Location, date, j.StartTime, j.Hours, j.Rate, j.Currency,
		j.HomeService, string(j.Status), j.FreelancerID, j.EarningID, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("jobs: insert: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	return scanJob(p.DB.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (p *PostgresStore) ListOpen(ctx context.Context) ([]Job, error) {
	return p.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = 'open' ORDER BY job_date, start_time`)
}

func (p *PostgresStore) ListByStore(ctx context.Context, storeID string) ([]Job, error) {
	return p.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE store_id = $1 ORDER BY created_at DESC`, storeID)
}

func (p *PostgresStore) ListByFreelancer(ctx context.Context, freelancerID string) ([]Job, error) {
	return p.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE freelancer_id = $1 ORDER BY created_at DESC`, freelancerID)
}

func (p *PostgresStore) Update(ctx context.Context, upd Update) (Job, error) {
	j, err := scanJob(p.DB.QueryRow(ctx, `
UPDATE jobs
SET status = $3,
    freelancer_id = CASE WHEN $4 = '' THEN freelancer_id ELSE $4 END,
    earning_id = COALESCE($5, earning_id),
    updated_at = $6
WHERE id = $1 AND status = $2
RETURNING `+jobColumns,
		upd.ID, string(upd.From), string(upd.To), upd.FreelancerID, upd.EarningID, upd.At))
	if !errors.Is(err, ErrNotFound) {
		return j, err
	}
	current, getErr := p.Get(ctx, upd.ID)
	if getErr != nil {
		return Job{}, getErr
	}
	return current, ErrStaleStatus
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := p.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()
	out := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		j      Job
		date   time.Time
		status string
	)
	err := row.Scan(&j.ID, &j.StoreID, &j.StoreName, &j.Title, &j.Location, &date, &j.StartTime, &j.Hours, &j.Rate,
		&j.Currency, &j.HomeService, &status, &j.FreelancerID, &j.EarningID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("jobs: scan: %w", err)
	}
	j.Date = date.Format(dateLayout)
	j.Status = Status(status)
	return j, nil
}
