package executor

import (
	"context"
	"fmt"
	"time"

	"Aide/pkg/monitor"
	"Aide/pkg/uitree"
)

// Reply strategy names.
const (
	StrategyInputByID    = "input-by-id"
	StrategyInputByClass = "input-by-class"
	StrategySendByID     = "send-by-id"
	StrategySendByLabel  = "send-by-label"
)

// SendSettle is the pause between filling the input and pressing send.
const SendSettle = 500 * time.Millisecond

func fillInput(text string, find func(*uitree.Snapshot) *uitree.Node) func(context.Context, Port) error {
	return func(ctx context.Context, p Port) error {
		snap, err := p.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		n := find(snap)
		if n == nil {
			return ErrNodeNotFound
		}
		return p.SetText(ctx, n, text)
	}
}

// InputStrategies put text into the chat input: the known input id first,
// then any editable field.
func InputStrategies(text string) []Strategy {
	return []Strategy{
		Func(StrategyInputByID, fillInput(text, func(s *uitree.Snapshot) *uitree.Node {
			return s.Find(uitree.ByID(monitor.IDInput))
		})),
		Func(StrategyInputByClass, fillInput(text, func(s *uitree.Snapshot) *uitree.Node {
			return s.Find(func(n *uitree.Node) bool { return n.Editable })
		})),
	}
}

// SendStrategies press the send control: by id, then by its label or the
// label's clickable ancestor.
func SendStrategies() []Strategy {
	return []Strategy{
		Func(StrategySendByID, func(ctx context.Context, p Port) error {
			snap, err := p.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			n := snap.Find(uitree.ByID(monitor.IDSendButton))
			if n == nil {
				return ErrNodeNotFound
			}
			return p.Activate(ctx, n)
		}),
		Func(StrategySendByLabel, func(ctx context.Context, p Port) error {
			snap, err := p.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			target, anchor := snap.FindClickableByLabel(monitor.SendLabel)
			switch {
			case target != nil:
				return p.Activate(ctx, target)
			case anchor != nil:
				x, y := anchor.Bounds.Center()
				return p.Tap(ctx, x, y)
			default:
				return ErrNodeNotFound
			}
		}),
	}
}
