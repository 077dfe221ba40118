package engine

import (
	"context"
	"time"

	"Aide/pkg/calldetect"
	"Aide/pkg/executor"
	"Aide/pkg/monitor"
	"Aide/pkg/settings"
	"Aide/pkg/types"
)

// ========================================
// Call detection
// ========================================

// scanForCall feeds window and content signals of a UI event to the
// detector. Chat screens are never scanned for accept labels: a message
// saying "接听" is not a call.
func (e *Engine) scanForCall(ev UIEvent, class string, tag monitor.Tag) {
	now := ev.At
	if ev.Kind == WindowStateChanged {
		if sig, ok := calldetect.FromWindow(class, e.windows, now); ok {
			if e.detector.Observe(sig, now) {
				e.log.Info().Str("class", class).Msg("call suspected from window")
			}
		}
	}
	if ev.Snapshot == nil || tag == monitor.TagChatScreen {
		return
	}

	switch e.detector.Tick(now) {
	case calldetect.Idle, calldetect.Suspected:
	default:
		return
	}
	if sig, ok := calldetect.FromContent(ev.Snapshot, now); ok {
		e.detector.Observe(sig, now)
	}
	if tag != monitor.TagCallScreen && e.detector.State() != calldetect.Suspected {
		return
	}
	if sig, ok := calldetect.AcceptSignal(ev.Snapshot, now); ok {
		e.confirm(sig)
	}
}

func (e *Engine) handleNotification(ctx context.Context, ev NotificationEvent) {
	sig, ok := calldetect.FromNotification(ev.Notification, ev.At)
	if !ok {
		return
	}
	e.log.Debug().
		Str("key", ev.Key).
		Bool("accept", sig.HasAnswerAction).
		Float64("confidence", sig.Confidence).
		Msg("call notification")

	if sig.HasAnswerAction {
		e.confirm(sig)
		return
	}
	e.detector.Observe(sig, ev.At)
}

// confirm promotes the detector and schedules the answer.
func (e *Engine) confirm(sig calldetect.Signal) {
	now := e.clock.Now()
	det, ok := e.detector.Confirm(sig, now)
	if !ok {
		// the same call seen from another source may add a target
		e.detector.Enrich(sig)
		return
	}
	cfg := e.config.Snapshot()

	e.log.Info().
		Str("source", string(det.Source)).
		Str("media", string(det.Media)).
		Bool("notificationAction", det.HasAnswerAction).
		Float64("confidence", det.Confidence).
		Bool("autoAnswer", cfg.AutoAnswer).
		Msg("incoming call confirmed")
	e.listener.OnCall(det)
	if e.firstRing(det, now) {
		e.announce(callAnnouncement(det))
	}

	if !cfg.AutoAnswer {
		e.detector.Dismiss(now)
		e.scheduleCooldown()
		e.listener.OnStatus("incoming call, auto-answer off")
		return
	}
	e.schedule(AnswerDelayElapsed, cfg.AutoAnswerDelay, timerEvent{})
	e.listener.OnStatus("incoming call, answering")
}

// callRingWindow is how long a call may keep ringing. A confirmation of the
// same call within it is not announced again.
const callRingWindow = time.Minute

func callKey(det calldetect.Detection) string {
	if det.Target.NotificationKey != "" {
		return "n:" + det.Target.NotificationKey
	}
	return "c:" + det.Caller + "|" + string(det.Media)
}

// firstRing reports whether det is a new call rather than the same one
// confirmed again after a cooldown.
func (e *Engine) firstRing(det calldetect.Detection, now time.Time) bool {
	key := callKey(det)
	repeat := key == e.lastCall && now.Sub(e.lastCallAt) < callRingWindow
	e.lastCall = key
	e.lastCallAt = now
	return !repeat
}

func callAnnouncement(det calldetect.Detection) string {
	who := det.Caller
	if who == "" {
		who = "微信"
	}
	if det.Media == calldetect.MediaVideo {
		return who + "视频来电"
	}
	return who + "来电"
}

func (e *Engine) scheduleCooldown() {
	if until, ok := e.detector.CooldownUntil(); ok {
		e.schedule(CooldownElapsed, until.Sub(e.clock.Now()), timerEvent{})
	}
}

// ========================================
// Answering
// ========================================

func (e *Engine) onAnswerDelay(ctx context.Context, _ *timerEvent) {
	now := e.clock.Now()
	cfg := e.config.Snapshot()
	if !cfg.AutoAnswer {
		if e.detector.Dismiss(now) {
			e.scheduleCooldown()
		}
		return
	}
	if e.answerID != "" {
		return
	}
	det, ok := e.detector.Begin(now)
	if !ok {
		e.log.Debug().Str("state", e.detector.State().String()).Msg("answer no longer applies")
		return
	}

	a := executor.NewAttempt(executor.KindAnswerCall,
		executor.AnswerStrategies(det, cfg.Coordinate(settings.CoordAnswerButton))...)
	e.answerID = a.ID
	e.answerDet = det
	e.log.Info().Str("attempt", a.ID).Msg("answering call")
	e.start(ctx, a, purposeAnswer)
}

func (e *Engine) onAnswerResolved(r attemptResolved) {
	a := r.attempt
	if a.ID != e.answerID {
		return
	}
	e.record(a, AttemptMeta{Source: string(e.answerDet.Source)})

	deferred := a.Outcome == executor.OutcomeSucceeded && a.Deferred
	if deferred {
		pts := executor.FallbackPoints(r.width, r.height)
		e.schedule(SecondaryGestureRequested, executor.BroadcastDelay, timerEvent{ref: a.ID, points: pts})
	} else if a.Outcome == executor.OutcomeSucceeded {
		e.announce("已自动接听")
	}
	e.finishAnswer(a.Outcome, deferred)
}

// finishAnswer resolves the detector and starts the cooldown. A deferred
// answer still has unverified fallback taps ahead of it.
func (e *Engine) finishAnswer(outcome executor.Outcome, deferred bool) {
	now := e.clock.Now()
	det := e.answerDet
	e.answerID = ""
	e.answerDet = calldetect.Detection{}

	e.detector.Resolve(now)
	e.scheduleCooldown()
	e.listener.OnAnswer(det, outcome)
	switch {
	case outcome == executor.OutcomeExhausted:
		e.listener.OnStatus("auto-answer failed")
	case deferred:
		e.listener.OnStatus("answer attempted")
	default:
		e.listener.OnStatus("call answered")
	}
}

// onSecondaryGesture taps one fallback position and schedules the next.
// Each tap first checks that the foreground still looks like a call.
func (e *Engine) onSecondaryGesture(ctx context.Context, t *timerEvent) {
	if t.index >= len(t.points) {
		return
	}
	if !e.callScreenPlausible() {
		e.log.Info().Int("tap", t.index).Str("window", e.lastWindow).Msg("call screen gone, stopping fallback taps")
		return
	}
	p := t.points[t.index]
	e.runAttempt(func() { e.tap(ctx, p) })

	if t.index+1 < len(t.points) {
		next := *t
		next.index++
		e.schedule(SecondaryGestureRequested, executor.FallbackTapSpacing, next)
		return
	}
	e.announce("已尝试自动接听")
}

func (e *Engine) tap(ctx context.Context, p types.Point) {
	actx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()
	if err := e.port.Tap(actx, p.X, p.Y); err != nil {
		e.log.Debug().Err(err).Int("x", p.X).Int("y", p.Y).Msg("fallback tap failed")
	}
}

// callScreenPlausible is false once the foreground is known to be
// something other than the call screen.
func (e *Engine) callScreenPlausible() bool {
	if e.lastWindow == "" {
		return true
	}
	tag, ok := e.windows.Recognize(e.lastWindow)
	if !ok {
		// unknown classes include the system dialer and lock screen overlays
		return true
	}
	return tag == monitor.TagCallScreen
}
