package split

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/salon-escrow/internal/db"
)

// defaultScope is the split_rules.service_id used for the global default.
const defaultScope = ""

// PostgresRuleStore stores rules in the split_rules table.
type PostgresRuleStore struct {
	DB db.DBTX
}

func (p *PostgresRuleStore) Default(ctx context.Context) (Rule, error) {
	return p.get(ctx, defaultScope)
}

func (p *PostgresRuleStore) Override(ctx context.Context, serviceID string) (Rule, error) {
	if serviceID == defaultScope {
		return Rule{}, ErrRuleNotFound
	}
	return p.get(ctx, serviceID)
}

func (p *PostgresRuleStore) get(ctx context.Context, scope string) (Rule, error) {
	var rule Rule
	err := p.DB.QueryRow(ctx,
		`SELECT store_pct, freelancer_pct, platform_pct FROM split_rules WHERE service_id = $1`, scope,
	).Scan(&rule.StorePct, &rule.FreelancerPct, &rule.PlatformPct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, fmt.Errorf("split: load rule: %w", err)
	}
	return rule, nil
}

func (p *PostgresRuleStore) Overrides(ctx context.Context) (map[string]Rule, error) {
	rows, err := p.DB.Query(ctx,
		`SELECT service_id, store_pct, freelancer_pct, platform_pct FROM split_rules WHERE service_id <> '' ORDER BY service_id`)
	if err != nil {
		return nil, fmt.Errorf("split: list overrides: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Rule)
	for rows.Next() {
		var (
			id   string
			rule Rule
		)
		if err := rows.Scan(&id, &rule.StorePct, &rule.FreelancerPct, &rule.PlatformPct); err != nil {
			return nil, fmt.Errorf("split: scan override: %w", err)
		}
		out[id] = rule
	}
	return out, rows.Err()
}

func (p *PostgresRuleStore) SaveDefault(ctx context.Context, rule Rule) error {
	return p.upsert(ctx, defaultScope, rule)
}

func (p *PostgresRuleStore) SaveOverride(ctx context.Context, serviceID string, rule Rule) error {
	return p.upsert(ctx, serviceID, rule)
}

func (p *PostgresRuleStore) upsert(ctx context.Context, scope string, rule Rule) error {
	_, err := p.DB.Exec(ctx, `
INSERT INTO split_rules (service_id, store_pct, freelancer_pct, platform_pct, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (service_id) DO UPDATE
SET store_pct = EXCLUDED.store_pct,
    freelancer_pct = EXCLUDED.freelancer_pct,
    platform_pct = EXCLUDED.platform_pct,
    updated_at = now()`,
		scope, rule.StorePct, rule.FreelancerPct, rule.PlatformPct)
	if err != nil {
		return fmt.Errorf("split: save rule: %w", err)
	}
	return nil
}

func (p *PostgresRuleStore) DeleteOverride(ctx context.Context, serviceID string) error {
	if serviceID == defaultScope {
		return ErrRuleNotFound
	}
	tag, err := p.DB.Exec(ctx, `DELETE FROM split_rules WHERE service_id = $1`, serviceID)
	if err != nil {
		return fmt.Errorf("split: delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
