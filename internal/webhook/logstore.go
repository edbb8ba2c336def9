package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/salon-escrow/internal/db"
)

// LogEntry is the append-only audit record of an inbound webhook. Entries
// are written for every delivery, valid or not, and never drive
// reconciliation.
type LogEntry struct {
	ID             uuid.UUID `json:"id"`
	Gateway        string    `json:"gateway"`
	EventType      string    `json:"eventType"`
	Signature      string    `json:"signature"`
	SignatureValid bool      `json:"signatureValid"`
	RawPayload     []byte    `json:"rawPayload"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// LogStore persists webhook log entries.
type LogStore interface {
	Append(ctx context.Context, entry LogEntry) error
	Recent(ctx context.Context, limit int) ([]LogEntry, error)
}

// MemoryLogStore keeps entries in process memory.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []LogEntry
}

func (m *MemoryLogStore) Append(_ context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.RawPayload = append([]byte(nil), entry.RawPayload...)
	m.entries = append(m.entries, entry)
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *MemoryLogStore) Recent(_ context.Context, limit int) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]LogEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// PostgresLogStore writes entries to the webhook_logs table.
type PostgresLogStore struct {
	DB db.DBTX
}

func (p *PostgresLogStore) Append(ctx context.Context, entry LogEntry) error {
	_, err := p.DB.Exec(ctx, `
INSERT INTO webhook_logs (id, gateway, event_type, signature, signature_valid, raw_payload, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Gateway, entry.EventType, entry.Signature, entry.SignatureValid, entry.RawPayload, entry.ReceivedAt)
	if err != nil {
		return fmt.Errorf("webhook: append log: %w", err)
	}
	return nil
}

func (p *PostgresLogStore) Recent(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := p.DB.Query(ctx, `
SELECT id, gateway, event_type, signature, signature_valid, raw_payload, received_at
FROM webhook_logs ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("webhook: list logs: %w", err)
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Gateway, &e.EventType, &e.Signature, &e.SignatureValid, &e.RawPayload, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("webhook: scan log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
