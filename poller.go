package main

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"Aide/pkg/engine"
	"Aide/pkg/monitor"
	"Aide/pkg/uitree"
)

// notificationEvery 每隔几次轮询读取一次通知
const notificationEvery = 2

// eventSink 接收轮询产生的事件, 由 engine.Engine 实现
type eventSink interface {
	HandleUI(ev engine.UIEvent) bool
	HandleNotification(ev engine.NotificationEvent) bool
}

// Poller turns periodic adb reads into engine events: a window event when
// the focused class changes, a content event when the dump changes, and
// notification events for new or updated WeChat notifications.
type Poller struct {
	sh       shellRunner
	sink     eventSink
	notes    *NotificationCache
	interval func() time.Duration
	now      func() time.Time

	tick       int
	lastClass  string
	lastDigest uint64
}

func NewPoller(sh shellRunner, sink eventSink, notes *NotificationCache, interval func() time.Duration) *Poller {
	return &Poller{
		sh:       sh,
		sink:     sink,
		notes:    notes,
		interval: interval,
		now:      time.Now,
	}
}

// Run polls until ctx is done
func (p *Poller) Run(ctx context.Context) error {
	LogInfo("poller").Dur("interval", p.interval()).Msg("Poller started")
	defer LogInfo("poller").Msg("Poller stopped")

	for {
		p.Poll(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval()):
		}
	}
}

// Poll performs one round. Read failures are logged and retried next round.
func (p *Poller) Poll(ctx context.Context) {
	defer func() { p.tick++ }()

	p.pollUI(ctx)
	if p.tick%notificationEvery == 0 {
		p.pollNotifications(ctx)
	}
}

func snapshotDigest(s *uitree.Snapshot) uint64 {
	h := fnv.New64a()
	for n := range s.All() {
		h.Write([]byte(n.Text))
		h.Write([]byte{0})
		h.Write([]byte(n.ContentDesc))
		h.Write([]byte{0})
		h.Write([]byte(n.Bounds.String()))
	}
	return h.Sum64()
}

func (p *Poller) pollUI(ctx context.Context) {
	pkg, class, err := currentFocus(ctx, p.sh)
	if err != nil {
		LogWarn("poller").Err(err).Msg("Read focused window failed")
		return
	}
	if class == "" {
		// lock screen or transition, nothing to compare
		return
	}

	kind := engine.ContentChanged
	if class != p.lastClass {
		kind = engine.WindowStateChanged
	}
	p.lastClass = class

	ev := engine.UIEvent{Kind: kind, Package: pkg, WindowClass: class, At: p.now()}
	if pkg == monitor.PackageWeChat {
		timer := StartOperation("poller", "uiautomator dump")
		s, err := dumpHierarchy(ctx, p.sh, class)
		if err != nil {
			timer.EndWithError(err)
		} else {
			timer.AddDetail("nodes", s.Len()).End()
			ev.Snapshot = s
			if s.Package == "" {
				s.Package = pkg
			}
		}
	}

	var digest uint64
	if ev.Snapshot != nil {
		digest = snapshotDigest(ev.Snapshot)
	}
	if kind == engine.ContentChanged && (ev.Snapshot == nil || digest == p.lastDigest) {
		return
	}
	p.lastDigest = digest

	if !p.sink.HandleUI(ev) {
		LogWarn("poller").Str("kind", kind.String()).Msg("Engine queue full, UI event dropped")
	}
}

func (p *Poller) pollNotifications(ctx context.Context) {
	notes, err := readNotifications(ctx, p.sh)
	if err != nil {
		LogWarn("poller").Err(err).Msg("Read notifications failed")
		return
	}
	for _, n := range p.notes.Update(notes) {
		PollerLog().Str("key", n.Key).Str("actions", strconv.Itoa(len(n.Actions))).Msg("Notification changed")
		p.sink.HandleNotification(engine.NotificationEvent{Notification: n, At: p.now()})
	}
}
