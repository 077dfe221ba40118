// Package calldetect fuses weak incoming-call signals from window changes,
// screen text and notifications into a single detection.
package calldetect

import (
	"sync"
	"time"
)

// State of the detector.
type State int

const (
	Idle State = iota
	Suspected
	Confirmed
	Resolving
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Suspected:
		return "suspected"
	case Confirmed:
		return "confirmed"
	case Resolving:
		return "resolving"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

const (
	// DefaultCooldown is how long a resolved call blocks new answers.
	DefaultCooldown = 5 * time.Second
	// DefaultSuspectTTL drops a suspicion nothing confirmed.
	DefaultSuspectTTL = 30 * time.Second
	// DefaultConfirmTTL drops a confirmed call nobody began answering.
	DefaultConfirmTTL = 60 * time.Second
)

// Detection is the one active incoming call.
type Detection struct {
	Caller          string
	DetectedAt      time.Time
	Source          Source
	Media           Media
	Target          Target
	Confidence      float64
	HasAnswerAction bool
}

// Transition describes a state change reported to observers.
type Transition struct {
	From, To State
	At       time.Time
}

// Detector is the call state machine. Every method takes the current time
// so the caller owns the clock. Safe for concurrent use.
type Detector struct {
	mu sync.Mutex

	state State
	since time.Time

	suspect *Signal
	active  *Detection

	cooldown   time.Duration
	suspectTTL time.Duration
	confirmTTL time.Duration

	deferred     int
	lastDeferred *Signal

	onTransition func(Transition)
}

type Option func(*Detector)

func WithCooldown(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.cooldown = d
		}
	}
}

func WithSuspectTTL(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.suspectTTL = d
		}
	}
}

func WithConfirmTTL(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.confirmTTL = d
		}
	}
}

// WithTransitionHook is called, under the detector lock, on every change.
func WithTransitionHook(fn func(Transition)) Option {
	return func(det *Detector) { det.onTransition = fn }
}

func New(opts ...Option) *Detector {
	d := &Detector{
		cooldown:   DefaultCooldown,
		suspectTTL: DefaultSuspectTTL,
		confirmTTL: DefaultConfirmTTL,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Detector) set(to State, now time.Time) {
	if d.state == to {
		return
	}
	from := d.state
	d.state = to
	d.since = now
	if d.onTransition != nil {
		d.onTransition(Transition{From: from, To: to, At: now})
	}
}

func (d *Detector) recordDeferred(sig Signal) {
	d.deferred++
	s := sig
	d.lastDeferred = &s
}

// tick expires timed states. Caller holds the lock.
func (d *Detector) tick(now time.Time) {
	switch d.state {
	case Cooldown:
		if !now.Before(d.since.Add(d.cooldown)) {
			d.active = nil
			d.set(Idle, now)
		}
	case Suspected:
		if now.Sub(d.since) >= d.suspectTTL {
			d.suspect = nil
			d.set(Idle, now)
		}
	case Confirmed:
		if now.Sub(d.since) >= d.confirmTTL {
			d.active = nil
			d.set(Idle, now)
		}
	}
}

// Tick advances timers and returns the resulting state.
func (d *Detector) Tick(now time.Time) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tick(now)
	return d.state
}

// Observe feeds a call-ish signal. From Idle it moves to Suspected; in
// Suspected the strongest signal is kept. In any later state the signal is
// only recorded. Reports whether the state changed.
func (d *Detector) Observe(sig Signal, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tick(now)

	switch d.state {
	case Idle:
		s := sig
		d.suspect = &s
		d.set(Suspected, now)
		return true
	case Suspected:
		if sig.Confidence >= d.suspect.Confidence {
			s := sig
			d.suspect = &s
		}
		return false
	default:
		d.recordDeferred(sig)
		return false
	}
}

// Confirm promotes to Confirmed when sig carries an accept-capable target.
// Idle passes through Suspected. Outside Idle/Suspected the signal is
// recorded and nothing changes.
func (d *Detector) Confirm(sig Signal, now time.Time) (Detection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tick(now)

	if !sig.Target.Found() {
		return Detection{}, false
	}
	switch d.state {
	case Idle:
		s := sig
		d.suspect = &s
		d.set(Suspected, now)
	case Suspected:
	default:
		d.recordDeferred(sig)
		return Detection{}, false
	}

	det := Detection{
		Caller:          sig.Caller,
		DetectedAt:      now,
		Source:          sig.Source,
		Media:           sig.Media,
		Target:          sig.Target,
		Confidence:      sig.Confidence,
		HasAnswerAction: sig.HasAnswerAction,
	}
	// fill gaps from the earlier suspicion
	if s := d.suspect; s != nil {
		if det.Caller == "" {
			det.Caller = s.Caller
		}
		if det.Media == MediaUnknown {
			det.Media = s.Media
		}
		if s.Confidence > det.Confidence {
			det.Confidence = s.Confidence
		}
		if !det.Target.HasPoint && s.Target.HasPoint {
			det.Target.X, det.Target.Y, det.Target.HasPoint = s.Target.X, s.Target.Y, true
		}
		if det.Target.NotificationKey == "" && s.Target.NotificationKey != "" {
			det.Target.NotificationKey = s.Target.NotificationKey
			det.Target.ActionIndex = s.Target.ActionIndex
			det.Target.ActionLabel = s.Target.ActionLabel
			det.HasAnswerAction = det.HasAnswerAction || s.HasAnswerAction
		}
	}
	d.active = &det
	d.suspect = nil
	d.set(Confirmed, now)
	return det, true
}

// Enrich merges a later target into the confirmed detection, e.g. a
// notification action found after the screen confirmed the call.
func (d *Detector) Enrich(sig Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil || (d.state != Confirmed && d.state != Resolving) {
		return
	}
	t := &d.active.Target
	if !t.HasPoint && sig.Target.HasPoint {
		t.X, t.Y, t.HasPoint = sig.Target.X, sig.Target.Y, true
	}
	if t.NotificationKey == "" && sig.Target.NotificationKey != "" {
		t.NotificationKey = sig.Target.NotificationKey
		t.ActionIndex = sig.Target.ActionIndex
		t.ActionLabel = sig.Target.ActionLabel
		d.active.HasAnswerAction = d.active.HasAnswerAction || sig.HasAnswerAction
	}
}

// Begin moves Confirmed to Resolving. It fails when another attempt is
// resolving, during cooldown, or when nothing is confirmed.
func (d *Detector) Begin(now time.Time) (Detection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tick(now)
	if d.state != Confirmed || d.active == nil {
		return Detection{}, false
	}
	d.set(Resolving, now)
	return *d.active, true
}

// Resolve ends the running attempt and starts the cooldown.
func (d *Detector) Resolve(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Resolving {
		return false
	}
	d.set(Cooldown, now)
	return true
}

// Dismiss drops a confirmed call that will not be answered and starts the
// cooldown so repeated scans do not report it again.
func (d *Detector) Dismiss(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Confirmed {
		return false
	}
	d.set(Cooldown, now)
	return true
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Active returns the confirmed or resolving detection.
func (d *Detector) Active() (Detection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return Detection{}, false
	}
	return *d.active, true
}

// Deferred reports signals that arrived while a call was already being
// handled. They are never replayed.
func (d *Detector) Deferred() (int, *Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastDeferred == nil {
		return d.deferred, nil
	}
	s := *d.lastDeferred
	return d.deferred, &s
}

// CooldownUntil is the instant the current cooldown ends.
func (d *Detector) CooldownUntil() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Cooldown {
		return time.Time{}, false
	}
	return d.since.Add(d.cooldown), true
}

// CooldownWindow returns the configured cooldown.
func (d *Detector) CooldownWindow() time.Duration { return d.cooldown }
