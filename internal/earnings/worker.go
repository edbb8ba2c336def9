package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/events"
)

// TaskHandler applies escrow status tasks to the earnings ledger.
type TaskHandler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler. Undecodable tasks are not retried.
func (h *TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ev, err := events.DecodeTask(task)
	if err != nil {
		h.Logger.Error().Err(err).Msg("earnings_task_decode_failed")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := h.Svc.Apply(ctx, ev); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			h.Logger.Error().Err(err).Str("event_id", ev.ID.String()).Msg("earnings_task_payload_invalid")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		h.Logger.Warn().Err(err).Str("event_id", ev.ID.String()).Str("topic", ev.Topic).Msg("earnings_task_failed")
		return err
	}
	h.Logger.Debug().Str("event_id", ev.ID.String()).Str("topic", ev.Topic).Str("booking_id", ev.AggregateID).Msg("earnings_task_applied")
	return nil
}

// Register mounts the handler on an asynq mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(events.TaskEscrowStatusChanged, h)
}
