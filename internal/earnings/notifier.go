package earnings

import (
	"context"

	"github.com/noah-isme/salon-escrow/internal/events"
)

// Notifier applies events synchronously. It stands in for the asynq worker
// when the API runs without Redis.
type Notifier struct {
	Svc *Service
}

func (n Notifier) Name() string { return "earnings" }

func (n Notifier) Notify(ctx context.Context, event events.Event) error {
	return n.Svc.Apply(ctx, event)
}
