// Package executor performs automated actions through a cascade of
// strategies, each tried in order until one succeeds.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"Aide/pkg/calldetect"
	"Aide/pkg/uitree"
)

var (
	ErrNodeNotFound   = errors.New("target node not found")
	ErrNoCoordinates  = errors.New("no coordinates known")
	ErrNoNotification = errors.New("no notification action")
)

// Port is everything the executor may do to the device.
type Port interface {
	// Snapshot captures the current UI hierarchy.
	Snapshot(ctx context.Context) (*uitree.Snapshot, error)
	// Activate performs the node's native click.
	Activate(ctx context.Context, n *uitree.Node) error
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error
	// SetText replaces the text of an editable node.
	SetText(ctx context.Context, n *uitree.Node, text string) error
	InvokeNotificationAction(ctx context.Context, key string, action calldetect.NotificationAction) error
	// OpenNotification brings up the content of a posted notification.
	OpenNotification(ctx context.Context, key string) error
	ScreenSize(ctx context.Context) (width, height int, err error)
}

// Kind of attempt.
type Kind string

const (
	KindSendReply  Kind = "sendReply"
	KindAnswerCall Kind = "answerCall"
)

// Outcome of an attempt.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeExhausted Outcome = "allStrategiesExhausted"
)

// Strategy is one way of carrying out an attempt.
type Strategy interface {
	Name() string
	Run(ctx context.Context, p Port) error
}

// deferring strategies succeed by handing the work to a later gesture.
type deferring interface {
	Defers() bool
}

type funcStrategy struct {
	name string
	fn   func(ctx context.Context, p Port) error
}

func (s funcStrategy) Name() string { return s.name }
func (s funcStrategy) Run(ctx context.Context, p Port) error { return s.fn(ctx, p) }

// Func adapts a function to a Strategy.
func Func(name string, fn func(ctx context.Context, p Port) error) Strategy {
	return funcStrategy{name: name, fn: fn}
}

// StrategyResult records one tried strategy.
type StrategyResult struct {
	Strategy string
	Err      error
	Elapsed  time.Duration
}

// Attempt is one action carried out through a strategy cascade. It is owned
// by whoever runs Execute until the outcome is known.
type Attempt struct {
	ID         string
	Kind       Kind
	Strategies []Strategy
	Outcome    Outcome
	Tried      []StrategyResult
	Winner     string
	// Deferred is set when the winning strategy only requested a later gesture.
	Deferred   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

func NewAttempt(kind Kind, strategies ...Strategy) *Attempt {
	return &Attempt{
		ID:         uuid.NewString(),
		Kind:       kind,
		Strategies: strategies,
		Outcome:    OutcomePending,
	}
}

// TriedNames lists the strategies attempted, in order.
func (a *Attempt) TriedNames() []string {
	out := make([]string, len(a.Tried))
	for i, r := range a.Tried {
		out[i] = r.Strategy
	}
	return out
}

func (a *Attempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Executor runs attempts against a Port.
type Executor struct {
	port Port
	log  zerolog.Logger
	now  func() time.Time
}

type Option func(*Executor)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithClock overrides the time source used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func New(port Port, opts ...Option) *Executor {
	e := &Executor{port: port, log: zerolog.Nop(), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Port returns the port the executor acts through.
func (e *Executor) Port() Port { return e.port }

// Execute tries the attempt's strategies in order and stops at the first
// success. A failing or panicking strategy only advances the cascade.
func (e *Executor) Execute(ctx context.Context, a *Attempt) Outcome {
	a.StartedAt = e.now()
	a.Outcome = OutcomeExhausted
	defer func() { a.FinishedAt = e.now() }()

	for _, s := range a.Strategies {
		if ctx.Err() != nil {
			e.log.Debug().Str("attempt", a.ID).Msg("attempt cancelled")
			break
		}
		start := e.now()
		err := runStrategy(ctx, s, e.port)
		a.Tried = append(a.Tried, StrategyResult{Strategy: s.Name(), Err: err, Elapsed: e.now().Sub(start)})
		if err != nil {
			e.log.Debug().
				Str("attempt", a.ID).
				Str("kind", string(a.Kind)).
				Str("strategy", s.Name()).
				Err(err).
				Msg("strategy failed")
			continue
		}
		a.Outcome = OutcomeSucceeded
		a.Winner = s.Name()
		if d, ok := s.(deferring); ok && d.Defers() {
			a.Deferred = true
		}
		e.log.Info().
			Str("attempt", a.ID).
			Str("kind", string(a.Kind)).
			Str("strategy", s.Name()).
			Bool("deferred", a.Deferred).
			Msg("attempt succeeded")
		return a.Outcome
	}
	e.log.Warn().
		Str("attempt", a.ID).
		Str("kind", string(a.Kind)).
		Strs("tried", a.TriedNames()).
		Msg("all strategies exhausted")
	return a.Outcome
}

func runStrategy(ctx context.Context, s Strategy, p Port) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	if err := s.Run(ctx, p); err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	return nil
}
