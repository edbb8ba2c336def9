package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskEscrowStatusChanged is the asynq task type carrying an escrow Event.
const TaskEscrowStatusChanged = "escrow:status_changed"

// TaskEnqueuer is the subset of *asynq.Client used by AsynqNotifier.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqNotifier enqueues each event as a background task for cmd/worker.
type AsynqNotifier struct {
	Client    TaskEnqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

func (n AsynqNotifier) Name() string { return "asynq" }

// Notify enqueues the event. The event id doubles as the task id so a
// re-emitted event is rejected by asynq as a duplicate.
func (n AsynqNotifier) Notify(ctx context.Context, event Event) error {
	if n.Client == nil {
		return fmt.Errorf("events: asynq client not configured")
	}
	task, err := NewStatusChangedTask(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(event.ID.String())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Retention > 0 {
		opts = append(opts, asynq.Retention(n.Retention))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TaskEscrowStatusChanged, err)
	}
	return nil
}

// NewStatusChangedTask wraps event in an asynq task.
func NewStatusChangedTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("events: encode task: %w", err)
	}
	return asynq.NewTask(TaskEscrowStatusChanged, payload), nil
}

// DecodeTask extracts the Event from an escrow task.
func DecodeTask(task *asynq.Task) (Event, error) {
	var ev Event
	if task == nil {
		return ev, fmt.Errorf("events: nil task")
	}
	if task.Type() != TaskEscrowStatusChanged {
		return ev, fmt.Errorf("events: unexpected task type %q", task.Type())
	}
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("events: decode task: %w", err)
	}
	return ev, nil
}
