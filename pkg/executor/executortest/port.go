// Package executortest provides a recording executor.Port for tests.
package executortest

import (
	"context"
	"errors"
	"sync"
	"time"

	"Aide/pkg/calldetect"
	"Aide/pkg/uitree"
)

// Call records a method call for verification
type Call struct {
	Method string
	X, Y   int
	Text   string
	Key    string
	Label  string
}

// Port is a mock implementation of executor.Port
type Port struct {
	mu    sync.Mutex
	calls []Call

	snapshot *uitree.Snapshot

	SnapshotError     error
	ActivateError     error
	TapError          error
	SetTextError      error
	NotificationError error
	OpenError         error

	Width, Height int

	// OnTap runs after a tap is recorded, outside the lock.
	OnTap func(x, y int)
}

func New(s *uitree.Snapshot) *Port {
	return &Port{snapshot: s, Width: 1080, Height: 2400}
}

func (p *Port) record(c Call) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

// SetSnapshot replaces what Snapshot returns.
func (p *Port) SetSnapshot(s *uitree.Snapshot) {
	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()
}

// Calls returns a copy of all recorded calls.
func (p *Port) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Methods returns the recorded method names in order.
func (p *Port) Methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Method
	}
	return out
}

// Count returns how many times method was called.
func (p *Port) Count(method string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (p *Port) Reset() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

func (p *Port) Snapshot(ctx context.Context) (*uitree.Snapshot, error) {
	p.record(Call{Method: "Snapshot"})
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SnapshotError != nil {
		return nil, p.SnapshotError
	}
	if p.snapshot == nil {
		return nil, uitree.ErrEmptyHierarchy
	}
	return p.snapshot, nil
}

func (p *Port) Activate(ctx context.Context, n *uitree.Node) error {
	if n == nil {
		return errors.New("nil node")
	}
	x, y := n.Bounds.Center()
	p.record(Call{Method: "Activate", X: x, Y: y, Label: n.Label()})
	return p.ActivateError
}

func (p *Port) Tap(ctx context.Context, x, y int) error {
	p.record(Call{Method: "Tap", X: x, Y: y})
	if p.OnTap != nil {
		p.OnTap(x, y)
	}
	return p.TapError
}

func (p *Port) Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	p.record(Call{Method: "Swipe", X: x1, Y: y1})
	return nil
}

func (p *Port) SetText(ctx context.Context, n *uitree.Node, text string) error {
	p.record(Call{Method: "SetText", Text: text, Label: n.ResourceID})
	return p.SetTextError
}

func (p *Port) InvokeNotificationAction(ctx context.Context, key string, action calldetect.NotificationAction) error {
	p.record(Call{Method: "InvokeNotificationAction", Key: key, Label: action.Label})
	return p.NotificationError
}

func (p *Port) OpenNotification(ctx context.Context, key string) error {
	p.record(Call{Method: "OpenNotification", Key: key})
	return p.OpenError
}

func (p *Port) ScreenSize(ctx context.Context) (int, int, error) {
	return p.Width, p.Height, nil
}
