// Package engine coordinates message replies and call answering. Two
// producers feed one consumer loop that owns every piece of mutable state.
package engine

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"Aide/pkg/autoreply"
	"Aide/pkg/calldetect"
	"Aide/pkg/executor"
	"Aide/pkg/history"
	"Aide/pkg/monitor"
	"Aide/pkg/types"
)

const (
	DefaultQueueSize      = 256
	DefaultAttemptTimeout = 20 * time.Second
)

// Deps are the engine's collaborators. Config and Port are required.
type Deps struct {
	Config    ConfigSource
	Port      executor.Port
	Clock     Clock
	Logger    zerolog.Logger
	Announcer Announcer
	Listener  Listener
	Recorder  Recorder

	Walker   *monitor.Walker
	Windows  *monitor.Table[string]
	History  *history.Store
	Detector *calldetect.Detector
	Gate     *autoreply.Gate

	QueueSize      int
	AttemptTimeout time.Duration
}

// pendingReply is the one reply being prepared or sent.
type pendingReply struct {
	id        string
	msg       monitor.Message
	rule      autoreply.Rule
	phase     purpose
	attemptID string
	scheduled time.Time
}

// Engine is the coordination layer.
type Engine struct {
	config    ConfigSource
	port      executor.Port
	exec      *executor.Executor
	clock     Clock
	log       zerolog.Logger
	announcer Announcer
	listener  Listener
	recorder  Recorder

	walker   *monitor.Walker
	windows  *monitor.Table[string]
	history  *history.Store
	detector *calldetect.Detector
	gate     *autoreply.Gate

	events         chan any
	attemptTimeout time.Duration
	// runAttempt starts off-loop work; tests run it inline.
	runAttempt func(func())

	// loop-owned state
	timers     timerQueue
	timerSeq   uint64
	reply      *pendingReply
	replySeq   uint64
	answerID   string
	answerDet  calldetect.Detection
	inflight   map[string]purpose
	lastWindow string
	lastChat   string
	lastCall   string
	lastCallAt time.Time

	dropped atomic.Int64
	running atomic.Bool

	statusMu sync.Mutex
	status   types.EngineStatus
}

func New(d Deps) *Engine {
	e := &Engine{
		config:         d.Config,
		port:           d.Port,
		clock:          d.Clock,
		log:            d.Logger,
		announcer:      d.Announcer,
		listener:       d.Listener,
		recorder:       d.Recorder,
		walker:         d.Walker,
		windows:        d.Windows,
		history:        d.History,
		detector:       d.Detector,
		gate:           d.Gate,
		attemptTimeout: d.AttemptTimeout,
		inflight:       make(map[string]purpose),
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.listener == nil {
		e.listener = NopListener{}
	}
	if e.walker == nil {
		e.walker = monitor.NewWalker()
	}
	if e.windows == nil {
		e.windows = monitor.DefaultWindowRecognizers()
	}
	if e.history == nil {
		e.history = history.New(history.DefaultCapacity)
	}
	if e.detector == nil {
		e.detector = calldetect.New()
	}
	if e.gate == nil {
		e.gate = autoreply.NewGate(autoreply.MinReplyInterval)
	}
	if e.attemptTimeout <= 0 {
		e.attemptTimeout = DefaultAttemptTimeout
	}
	size := d.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	e.events = make(chan any, size)
	e.exec = executor.New(d.Port, executor.WithLogger(e.log), executor.WithClock(e.clock.Now))
	e.runAttempt = func(fn func()) { go fn() }
	heap.Init(&e.timers)
	return e
}

// History exposes the message history.
func (e *Engine) History() *history.Store { return e.history }

// Detector exposes the call detector for status reads.
func (e *Engine) Detector() *calldetect.Detector { return e.detector }

// ========================================
// Producers
// ========================================

// HandleUI queues a UI change. It never blocks; a full queue drops the
// event and reports false.
func (e *Engine) HandleUI(ev UIEvent) bool {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	return e.post(ev)
}

// HandleNotification queues a posted notification. It never blocks.
func (e *Engine) HandleNotification(ev NotificationEvent) bool {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	return e.post(ev)
}

func (e *Engine) post(ev any) bool {
	select {
	case e.events <- ev:
		return true
	default:
		n := e.dropped.Add(1)
		e.log.Warn().Int64("dropped", n).Msgf("event queue full, dropping %T", ev)
		return false
	}
}

// ========================================
// Consumer loop
// ========================================

// Run processes events and timers until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}
	defer e.running.Store(false)
	e.log.Info().Msg("engine started")
	defer e.log.Info().Msg("engine stopped")

	for {
		var timer Timer
		var fire <-chan time.Time
		if next := e.timers.peek(); next != nil {
			d := next.Due.Sub(e.clock.Now())
			if d < 0 {
				d = 0
			}
			timer = e.clock.NewTimer(d)
			fire = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev := <-e.events:
			if timer != nil {
				timer.Stop()
			}
			e.handle(ctx, ev)
		case <-fire:
			e.fireDue(ctx)
		}
		e.publishStatus()
	}
}

func (e *Engine) handle(ctx context.Context, ev any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msgf("recovered while handling %T", ev)
		}
	}()
	switch ev := ev.(type) {
	case UIEvent:
		e.handleUI(ctx, ev)
	case NotificationEvent:
		e.handleNotification(ctx, ev)
	case attemptResolved:
		e.handleResolved(ctx, ev)
	default:
		e.log.Warn().Msgf("unknown event %T", ev)
	}
}

func (e *Engine) schedule(kind TimerKind, after time.Duration, t timerEvent) {
	e.timerSeq++
	t.Kind = kind
	t.Due = e.clock.Now().Add(after)
	t.seq = e.timerSeq
	heap.Push(&e.timers, &t)
	e.log.Debug().Str("timer", kind.String()).Dur("after", after).Str("ref", t.ref).Msg("timer scheduled")
}

func (e *Engine) fireDue(ctx context.Context) {
	for _, t := range e.timers.popDue(e.clock.Now()) {
		e.fire(ctx, t)
	}
}

func (e *Engine) fire(ctx context.Context, t *timerEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("timer", t.Kind.String()).Msg("recovered in timer")
		}
	}()
	switch t.Kind {
	case ReplyDelayElapsed:
		e.onReplyDelay(ctx, t)
	case ReplySendDue:
		e.onReplySend(ctx, t)
	case AnswerDelayElapsed:
		e.onAnswerDelay(ctx, t)
	case AttemptTimeoutElapsed:
		e.onAttemptTimeout(t)
	case SecondaryGestureRequested:
		e.onSecondaryGesture(ctx, t)
	case CooldownElapsed:
		if st := e.detector.Tick(e.clock.Now()); st == calldetect.Idle {
			e.listener.OnStatus("call detector idle")
		}
	}
}

// start runs an attempt off the loop and posts its result back.
func (e *Engine) start(ctx context.Context, a *executor.Attempt, p purpose) {
	e.inflight[a.ID] = p
	e.schedule(AttemptTimeoutElapsed, e.attemptTimeout, timerEvent{ref: a.ID})
	timeout := e.attemptTimeout
	e.runAttempt(func() {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		e.exec.Execute(actx, a)
		res := attemptResolved{attempt: a, purpose: p}
		if a.Deferred {
			w, h, err := e.port.ScreenSize(actx)
			if err != nil {
				e.log.Debug().Err(err).Msg("screen size unknown, using 1080x2400")
				w, h = 1080, 2400
			}
			res.width, res.height = w, h
		}
		e.post(res)
	})
}

func (e *Engine) handleResolved(ctx context.Context, r attemptResolved) {
	p, ok := e.inflight[r.attempt.ID]
	if !ok {
		e.log.Debug().Str("attempt", r.attempt.ID).Msg("late attempt result ignored")
		return
	}
	delete(e.inflight, r.attempt.ID)

	switch p {
	case purposeAnswer:
		e.onAnswerResolved(r)
	case purposeReplyFill, purposeReplySend:
		e.onReplyResolved(r)
	}
}

func (e *Engine) onAttemptTimeout(t *timerEvent) {
	p, ok := e.inflight[t.ref]
	if !ok {
		return
	}
	delete(e.inflight, t.ref)
	e.log.Warn().Str("attempt", t.ref).Str("purpose", p.String()).Msg("attempt timed out")

	switch p {
	case purposeAnswer:
		if e.answerID == t.ref {
			e.finishAnswer(executor.OutcomeExhausted, false)
		}
	default:
		if e.reply != nil && e.reply.attemptID == t.ref {
			e.listener.OnReply(e.reply.msg, e.reply.rule, executor.OutcomeExhausted)
			e.reply = nil
		}
	}
}

func (e *Engine) record(a *executor.Attempt, meta AttemptMeta) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordAttempt(a, meta); err != nil {
		e.log.Warn().Err(err).Str("attempt", a.ID).Msg("failed to record attempt")
	}
}

func (e *Engine) announce(text string) {
	if e.announcer == nil || !e.config.Snapshot().TTSEnabled {
		return
	}
	e.announcer.Announce(text)
}

// ========================================
// Status
// ========================================

func (e *Engine) publishStatus() {
	st := types.EngineStatus{
		PendingTimers:   e.timers.Len(),
		ReplyInFlight:   e.reply != nil,
		AnswerInFlight:  e.answerID != "",
		LastWindowClass: e.lastWindow,
	}
	e.statusMu.Lock()
	e.status = st
	e.statusMu.Unlock()
}

// Status returns a point-in-time view of the engine. Safe from any goroutine.
func (e *Engine) Status() types.EngineStatus {
	e.statusMu.Lock()
	st := e.status
	e.statusMu.Unlock()

	cfg := e.config.Snapshot()
	st.Running = e.running.Load()
	st.CallState = e.detector.State().String()
	if det, ok := e.detector.Active(); ok {
		st.ActiveCaller = det.Caller
	}
	st.DeferredSignals, _ = e.detector.Deferred()
	st.MessagesSeen = e.history.SeenLen()
	st.HistoryLen = e.history.Len()
	st.DroppedEvents = e.dropped.Load()
	st.AutoReplyEnabled = cfg.AutoReplyEnabled
	st.AutoAnswer = cfg.AutoAnswer
	return st
}
