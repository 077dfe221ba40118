package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Aide/pkg/calldetect"
	"Aide/pkg/executor"
	"Aide/pkg/uitree"
)

// ========================================
// DevicePort - executor.Port over adb shell
// ========================================

// shadeSettle 通知栏展开/收起后等待界面稳定
const shadeSettle = 600 * time.Millisecond

// DevicePort drives the phone with adb shell commands
type DevicePort struct {
	sh    shellRunner
	kb    *ADBKeyboard
	notes *NotificationCache
	wait  func(ctx context.Context, d time.Duration) error

	sizeMu sync.Mutex
	width  int
	height int
}

// NewDevicePort creates a port; notes may be nil
func NewDevicePort(sh shellRunner, notes *NotificationCache) *DevicePort {
	return &DevicePort{
		sh:    sh,
		kb:    NewADBKeyboard(sh),
		notes: notes,
		wait:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *DevicePort) Snapshot(ctx context.Context) (*uitree.Snapshot, error) {
	pkg, class, err := currentFocus(ctx, p.sh)
	if err != nil {
		return nil, err
	}
	s, err := dumpHierarchy(ctx, p.sh, class)
	if err != nil {
		return nil, err
	}
	if s.Package == "" {
		s.Package = pkg
	}
	return s, nil
}

// Activate taps the node center; uiautomator exposes no native click over adb
func (p *DevicePort) Activate(ctx context.Context, n *uitree.Node) error {
	if n == nil {
		return executor.ErrNodeNotFound
	}
	if n.Bounds.Empty() {
		return fmt.Errorf("node %s has empty bounds", n)
	}
	x, y := n.Bounds.Center()
	return p.Tap(ctx, x, y)
}

func (p *DevicePort) Tap(ctx context.Context, x, y int) error {
	_, err := p.sh.Shell(ctx, fmt.Sprintf("input tap %d %d", x, y))
	return err
}

func (p *DevicePort) Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	_, err := p.sh.Shell(ctx, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, d.Milliseconds()))
	return err
}

// SetText focuses the field, clears it and types text
func (p *DevicePort) SetText(ctx context.Context, n *uitree.Node, text string) error {
	if n != nil && !n.Focused {
		if err := p.Activate(ctx, n); err != nil {
			return fmt.Errorf("focus field: %w", err)
		}
		if err := p.wait(ctx, 200*time.Millisecond); err != nil {
			return err
		}
	}
	if err := p.kb.Clear(ctx); err != nil {
		LogDebug("port").Err(err).Msg("Clear field failed")
	}
	return p.kb.Input(ctx, text)
}

func (p *DevicePort) expandShade(ctx context.Context) error {
	if _, err := p.sh.Shell(ctx, "cmd statusbar expand-notifications"); err != nil {
		return err
	}
	return p.wait(ctx, shadeSettle)
}

func (p *DevicePort) collapseShade(ctx context.Context) {
	p.sh.Shell(ctx, "cmd statusbar collapse")
}

// InvokeNotificationAction opens the shade and taps the action button by label
func (p *DevicePort) InvokeNotificationAction(ctx context.Context, key string, action calldetect.NotificationAction) error {
	if action.Label == "" {
		return executor.ErrNoNotification
	}
	if err := p.expandShade(ctx); err != nil {
		return fmt.Errorf("expand notifications: %w", err)
	}

	s, err := p.Snapshot(ctx)
	if err != nil {
		p.collapseShade(ctx)
		return fmt.Errorf("read notification shade: %w", err)
	}
	target, _ := s.FindClickableByLabel(action.Label)
	if target == nil {
		p.collapseShade(ctx)
		return fmt.Errorf("action %q of %s: %w", action.Label, key, executor.ErrNoNotification)
	}
	// the shade closes by itself once the action fires
	return p.Activate(ctx, target)
}

// OpenNotification taps the notification whose title was last seen under key
func (p *DevicePort) OpenNotification(ctx context.Context, key string) error {
	if p.notes == nil {
		return executor.ErrNoNotification
	}
	note, ok := p.notes.Lookup(key)
	if !ok || note.Title == "" {
		return fmt.Errorf("notification %s: %w", key, executor.ErrNoNotification)
	}
	if err := p.expandShade(ctx); err != nil {
		return fmt.Errorf("expand notifications: %w", err)
	}

	s, err := p.Snapshot(ctx)
	if err != nil {
		p.collapseShade(ctx)
		return fmt.Errorf("read notification shade: %w", err)
	}
	target, _ := s.FindClickableByLabel(note.Title)
	if target == nil {
		p.collapseShade(ctx)
		return fmt.Errorf("notification %q: %w", note.Title, executor.ErrNoNotification)
	}
	return p.Activate(ctx, target)
}

// ScreenSize is read once and cached
func (p *DevicePort) ScreenSize(ctx context.Context) (int, int, error) {
	p.sizeMu.Lock()
	defer p.sizeMu.Unlock()
	if p.width > 0 {
		return p.width, p.height, nil
	}

	out, err := p.sh.Shell(ctx, "wm size")
	if err != nil {
		return 0, 0, err
	}
	w, h, ok := parseScreenSize(out)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected wm size output: %q", out)
	}
	p.width, p.height = w, h
	return w, h, nil
}

// LaunchApp starts an activity, used by the dialer to open WeChat
func (p *DevicePort) LaunchApp(ctx context.Context, pkg, activity string) error {
	out, err := p.sh.Shell(ctx, fmt.Sprintf("am start -n %s/%s", pkg, activity))
	if err != nil {
		return err
	}
	if containsAny(out, "Error:", "does not exist") {
		return fmt.Errorf("launch %s/%s: %s", pkg, activity, out)
	}
	return nil
}
