package executor

import (
	"context"
	"fmt"
	"time"

	"Aide/pkg/calldetect"
	"Aide/pkg/monitor"
	"Aide/pkg/types"
)

// Answer strategy names.
const (
	StrategyDirectNode         = "direct-node"
	StrategyGesture            = "gesture"
	StrategyNotificationAction = "notification-action"
	StrategyDeferredBroadcast  = "deferred-broadcast"
)

const (
	// BroadcastDelay is how long the deferred gesture waits for the call
	// screen to render.
	BroadcastDelay = 300 * time.Millisecond
	// FallbackTapSpacing separates taps at the fallback positions.
	FallbackTapSpacing = 200 * time.Millisecond
)

// FallbackPositions are where the accept button usually sits on the
// incoming call screen, bottom right first.
var FallbackPositions = []types.Fraction{
	{X: 0.75, Y: 0.92},
	{X: 0.75, Y: 0.95},
	{X: 0.80, Y: 0.90},
	{X: 0.70, Y: 0.92},
	{X: 0.75, Y: 0.85},
	{X: 0.75, Y: 0.80},
	{X: 0.80, Y: 0.88},
	{X: 0.72, Y: 0.90},
}

// DirectNode finds the accept control afresh and activates it. Labels are
// tried in order.
func DirectNode(labels []string) Strategy {
	if len(labels) == 0 {
		labels = monitor.AcceptLabels
	}
	return Func(StrategyDirectNode, func(ctx context.Context, p Port) error {
		snap, err := p.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		for _, label := range labels {
			target, _ := snap.FindClickableByLabel(label)
			if target == nil {
				continue
			}
			return p.Activate(ctx, target)
		}
		return ErrNodeNotFound
	})
}

// Gesture taps the candidate's last known position, or the calibrated
// accept button when the candidate has none.
func Gesture(target calldetect.Target, calibrated types.Point) Strategy {
	return Func(StrategyGesture, func(ctx context.Context, p Port) error {
		switch {
		case target.HasPoint:
			return p.Tap(ctx, target.X, target.Y)
		case calibrated.Valid():
			return p.Tap(ctx, calibrated.X, calibrated.Y)
		default:
			return ErrNoCoordinates
		}
	})
}

// NotificationAction invokes the accept action of the notification that
// announced the call.
func NotificationAction(target calldetect.Target) Strategy {
	return Func(StrategyNotificationAction, func(ctx context.Context, p Port) error {
		if target.NotificationKey == "" || target.ActionLabel == "" {
			return ErrNoNotification
		}
		return p.InvokeNotificationAction(ctx, target.NotificationKey, calldetect.NotificationAction{
			Index: target.ActionIndex,
			Label: target.ActionLabel,
		})
	})
}

type broadcastStrategy struct {
	target calldetect.Target
}

func (broadcastStrategy) Name() string { return StrategyDeferredBroadcast }
func (broadcastStrategy) Defers() bool { return true }

// Run opens the call notification if one is known. The gesture itself is
// requested from the caller once the attempt resolves.
func (s broadcastStrategy) Run(ctx context.Context, p Port) error {
	if s.target.NotificationKey != "" {
		// a failed open still leaves the gesture a chance on a visible call screen
		_ = p.OpenNotification(ctx, s.target.NotificationKey)
	}
	return nil
}

// DeferredBroadcast is the last resort: it always succeeds by asking for a
// later series of gestures at FallbackPositions.
func DeferredBroadcast(target calldetect.Target) Strategy {
	return broadcastStrategy{target: target}
}

// AnswerStrategies builds the full answer cascade for a detection.
func AnswerStrategies(det calldetect.Detection, calibrated types.Point) []Strategy {
	return []Strategy{
		DirectNode(monitor.AcceptLabels),
		Gesture(det.Target, calibrated),
		NotificationAction(det.Target),
		DeferredBroadcast(det.Target),
	}
}

// FallbackPoints resolves FallbackPositions on a w x h screen.
func FallbackPoints(w, h int) []types.Point {
	out := make([]types.Point, len(FallbackPositions))
	for i, f := range FallbackPositions {
		out[i] = f.At(w, h)
	}
	return out
}
