package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a gateway call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerSettings configures a Breaker. Zero values fall back to defaults.
type BreakerSettings struct {
	Gateway      string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	// Window clears the closed-state counters so old failures age out.
	Window time.Duration
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Breaker is a failure-ratio circuit breaker guarding one payment gateway.
// Each gateway client owns its breaker so a Stripe outage does not block
// Razorpay checkouts. While half-open a single probe is let through.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerSettings
	state    State
	failures int
	total    int
	since    time.Time
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a closed breaker from s.
func NewBreaker(s BreakerSettings) *Breaker {
	if s.MinRequests <= 0 {
		s.MinRequests = 1
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}
	if s.FailureRatio > 1 {
		s.FailureRatio = 1
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	if s.Window <= 0 {
		s.Window = time.Minute
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	s.Gateway = strings.ToLower(strings.TrimSpace(s.Gateway))
	if s.Gateway == "" {
		s.Gateway = "gateway"
	}
	b := &Breaker{cfg: s, state: Closed, since: s.Now()}
	b.publishState()
	return b
}

// Gateway returns the label the breaker reports under.
func (b *Breaker) Gateway() string { return b.cfg.Gateway }

// Allow reports whether a call may proceed. An open breaker turns half-open
// once OpenFor has elapsed and admits one probe.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen, now)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		if now.Sub(b.since) >= b.cfg.Window {
			b.failures, b.total, b.since = 0, 0, now
		}
		return true
	}
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed, now)
		} else {
			b.moveLocked(ctx, Open, now)
		}
		return
	}

	b.total++
	if !success {
		b.failures++
	}
	if b.total >= b.cfg.MinRequests && float64(b.failures)/float64(b.total) >= b.cfg.FailureRatio {
		b.moveLocked(ctx, Open, now)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) moveLocked(ctx context.Context, next State, now time.Time) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.failures, b.total, b.since = 0, 0, now
	if next == Open {
		b.openedAt = now
	}
	b.publishState()
	recordTransition(b.cfg.Gateway, prev, next)
	b.logTransition(ctx, prev, next)
}

func (b *Breaker) publishState() {
	BreakerState.WithLabelValues(b.cfg.Gateway).Set(float64(b.state))
}

func (b *Breaker) logTransition(ctx context.Context, from, to State) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled && b.cfg.Logger != nil {
		logger = b.cfg.Logger
	}
	evt := logger.Warn()
	if to == Closed {
		evt = logger.Info()
	}
	evt = evt.Str("gateway", b.cfg.Gateway).Str("from_state", from.String()).Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("gateway_breaker_transition")
}
