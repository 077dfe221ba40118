// Package dialer places an outgoing WeChat video or voice call by walking
// the app's UI: open, search, pick the contact, open the plus panel, pick
// the call option and confirm it.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"Aide/pkg/executor"
	"Aide/pkg/monitor"
	"Aide/pkg/settings"
	"Aide/pkg/types"
	"Aide/pkg/uitree"
)

// KindDial marks the attempts of one dial step.
const KindDial executor.Kind = "dial"

var (
	ErrBusy         = errors.New("a call is already being placed")
	ErrEmptyContact = errors.New("contact name is empty")
)

// Resource ids and labels of the WeChat screens the dialer walks.
const (
	IDSearchButton = "com.tencent.mm:id/jha"
	LauncherClass  = "com.tencent.mm.ui.LauncherUI"
	SearchLabel    = "搜索"
	PlusLabel      = "更多功能按钮"
	VideoCallLabel = "视频通话"
	VoiceCallLabel = "语音通话"
	// CallMenuLabel is the plus panel entry of newer WeChat versions.
	CallMenuLabel = "音视频通话"
)

// Device is a Port that can also bring an app to the foreground.
type Device interface {
	executor.Port
	LaunchApp(ctx context.Context, pkg, activity string) error
}

// Step names
const (
	StepOpen        = "open-app"
	StepSearch      = "search"
	StepInput       = "input-contact"
	StepFirstResult = "first-result"
	StepPlus        = "plus-panel"
	StepCallOption  = "call-option"
	StepConfirm     = "confirm"
)

// Pauses after each step, letting WeChat render the next screen.
var stepPause = map[string]time.Duration{
	StepOpen:        2000 * time.Millisecond,
	StepSearch:      1500 * time.Millisecond,
	StepInput:       2000 * time.Millisecond,
	StepFirstResult: 2000 * time.Millisecond,
	StepPlus:        1500 * time.Millisecond,
	StepCallOption:  1500 * time.Millisecond,
}

// Default positions used when neither a node nor a calibrated point exists.
var (
	searchFraction      = types.Fraction{X: 0.82, Y: 0.045}
	firstResultFraction = types.Fraction{X: 0.5, Y: 0.18}
	plusFraction        = types.Fraction{X: 0.92, Y: 0.94}
	callOptionFraction  = types.Fraction{X: 0.83, Y: 0.78}
)

// searchYOffset is added below the search fraction to clear the status bar.
const searchYOffset = 50

// Request describes one call to place.
type Request struct {
	Contact string
	Video   bool
}

func (r Request) media() string {
	if r.Video {
		return "视频"
	}
	return "语音"
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step    string           `json:"step"`
	Outcome executor.Outcome `json:"outcome"`
	Winner  string           `json:"winner,omitempty"`
	Tried   []string         `json:"tried,omitempty"`
}

// Result of a dial.
type Result struct {
	Contact string       `json:"contact"`
	Video   bool         `json:"video"`
	Steps   []StepResult `json:"steps"`
	Placed  bool         `json:"placed"`
}

// Dialer places calls one at a time.
type Dialer struct {
	dev      Device
	exec     *executor.Executor
	coord    func(name string) types.Point
	announce func(text string)
	wait     func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger
	busy     atomic.Bool
}

type Option func(*Dialer)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dialer) { d.log = l }
}

// WithAnnouncer speaks progress, e.g. through the announce relay.
func WithAnnouncer(fn func(text string)) Option {
	return func(d *Dialer) { d.announce = fn }
}

// WithWait replaces the pause between steps.
func WithWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dialer) { d.wait = fn }
}

// New creates a dialer. coord returns the calibrated point for a
// coordinate name, or an invalid point when none is set.
func New(dev Device, coord func(name string) types.Point, opts ...Option) *Dialer {
	d := &Dialer{
		dev:      dev,
		coord:    coord,
		announce: func(string) {},
		wait:     sleep,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.coord == nil {
		d.coord = func(string) types.Point { return settings.Unset }
	}
	d.exec = executor.New(dev, executor.WithLogger(d.log))
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Busy reports whether a dial is running.
func (d *Dialer) Busy() bool { return d.busy.Load() }

type step struct {
	name       string
	strategies []executor.Strategy
	// optional steps do not abort the dial when exhausted
	optional bool
}

// Dial walks every step in order. The first required step that exhausts
// its strategies ends the dial with an error; cancelling ctx stops it
// between steps.
func (d *Dialer) Dial(ctx context.Context, req Request) (*Result, error) {
	req.Contact = strings.TrimSpace(req.Contact)
	if req.Contact == "" {
		return nil, ErrEmptyContact
	}
	if !d.busy.CompareAndSwap(false, true) {
		d.announce("正在执行中，请稍候")
		return nil, ErrBusy
	}
	defer d.busy.Store(false)

	res := &Result{Contact: req.Contact, Video: req.Video}
	d.log.Info().Str("contact", req.Contact).Bool("video", req.Video).Msg("placing call")
	d.announce("正在给" + req.Contact + "拨打" + req.media() + "电话")

	for _, s := range d.steps(req) {
		if err := ctx.Err(); err != nil {
			d.announce("已取消")
			return res, err
		}
		a := executor.NewAttempt(KindDial, s.strategies...)
		d.exec.Execute(ctx, a)
		res.Steps = append(res.Steps, StepResult{
			Step:    s.name,
			Outcome: a.Outcome,
			Winner:  a.Winner,
			Tried:   a.TriedNames(),
		})
		if a.Outcome != executor.OutcomeSucceeded {
			if s.optional {
				d.log.Debug().Str("step", s.name).Msg("optional step skipped")
			} else {
				d.log.Warn().Str("step", s.name).Strs("tried", a.TriedNames()).Msg("dial step failed")
				return res, fmt.Errorf("dial step %s: %w", s.name, lastErr(a))
			}
		}
		if p, ok := stepPause[s.name]; ok {
			if err := d.wait(ctx, p); err != nil {
				return res, err
			}
		}
	}

	res.Placed = true
	d.log.Info().Str("contact", req.Contact).Msg("call placed")
	d.announce("已发起" + req.media() + "通话")
	return res, nil
}

func lastErr(a *executor.Attempt) error {
	if len(a.Tried) == 0 {
		return context.Canceled
	}
	return a.Tried[len(a.Tried)-1].Err
}

func (d *Dialer) steps(req Request) []step {
	confirmLabel, confirmCoord := VoiceCallLabel, settings.CoordConfirmVoice
	if req.Video {
		confirmLabel, confirmCoord = VideoCallLabel, settings.CoordConfirmVideo
	}
	return []step{
		{name: StepOpen, strategies: []executor.Strategy{
			executor.Func("launch", func(ctx context.Context, p executor.Port) error {
				return d.dev.LaunchApp(ctx, monitor.PackageWeChat, LauncherClass)
			}),
		}},
		{name: StepSearch, strategies: []executor.Strategy{
			activateNode("search-node", func(s *uitree.Snapshot) *uitree.Node {
				if n := s.Find(uitree.ByID(IDSearchButton)); n != nil {
					return n
				}
				return s.Find(uitree.ByDesc(SearchLabel))
			}),
			d.tapCalibrated(settings.CoordSearchButton),
			d.tapFraction(searchFraction, searchYOffset),
		}},
		{name: StepInput, strategies: []executor.Strategy{
			typeInto("search-field", req.Contact, nil),
			typeInto("calibrated-field", req.Contact, d.calibratedPoint(settings.CoordSearchInput)),
		}},
		{name: StepFirstResult, strategies: []executor.Strategy{
			activateNode("result-node", func(s *uitree.Snapshot) *uitree.Node {
				return s.Find(func(n *uitree.Node) bool {
					return !n.Editable && strings.TrimSpace(n.Text) == req.Contact
				})
			}),
			d.tapCalibrated(settings.CoordFirstResult),
			d.tapFraction(firstResultFraction, 0),
		}},
		{name: StepPlus, strategies: []executor.Strategy{
			activateNode("plus-node", func(s *uitree.Snapshot) *uitree.Node {
				return s.Find(uitree.ByDesc(PlusLabel))
			}),
			d.tapCalibrated(settings.CoordPlusButton),
			d.tapFraction(plusFraction, 0),
		}},
		{name: StepCallOption, strategies: []executor.Strategy{
			activateNode("option-node", func(s *uitree.Snapshot) *uitree.Node {
				if n := s.Find(uitree.ByText(CallMenuLabel)); n != nil {
					return n
				}
				return s.Find(uitree.ByText(VideoCallLabel))
			}),
			d.tapCalibrated(settings.CoordVideoCall),
			d.tapFraction(callOptionFraction, 0),
		}},
		{name: StepConfirm, optional: true, strategies: []executor.Strategy{
			activateNode("confirm-node", func(s *uitree.Snapshot) *uitree.Node {
				return s.Find(uitree.ByText(confirmLabel))
			}),
			d.tapCalibrated(confirmCoord),
		}},
	}
}

// ========================================
// Strategies
// ========================================

// activateNode taps the clickable ancestor of the node find returns, or
// the node's own center when nothing above it is clickable.
func activateNode(name string, find func(*uitree.Snapshot) *uitree.Node) executor.Strategy {
	return executor.Func(name, func(ctx context.Context, p executor.Port) error {
		snap, err := p.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		n := find(snap)
		if n == nil {
			return executor.ErrNodeNotFound
		}
		if c := n.ClickableParent(5); c != nil {
			return p.Activate(ctx, c)
		}
		x, y := n.Bounds.Center()
		return p.Tap(ctx, x, y)
	})
}

func (d *Dialer) calibratedPoint(name string) func() (types.Point, bool) {
	return func() (types.Point, bool) {
		pt := d.coord(name)
		return pt, pt.Valid()
	}
}

func (d *Dialer) tapCalibrated(name string) executor.Strategy {
	return executor.Func("calibrated-"+name, func(ctx context.Context, p executor.Port) error {
		pt := d.coord(name)
		if !pt.Valid() {
			return executor.ErrNoCoordinates
		}
		return p.Tap(ctx, pt.X, pt.Y)
	})
}

func (d *Dialer) tapFraction(f types.Fraction, yOffset int) executor.Strategy {
	return executor.Func("default-position", func(ctx context.Context, p executor.Port) error {
		w, h, err := p.ScreenSize(ctx)
		if err != nil {
			return fmt.Errorf("screen size: %w", err)
		}
		pt := f.At(w, h)
		return p.Tap(ctx, pt.X, pt.Y+yOffset)
	})
}

// typeInto fills the first editable field. With at set, that point is
// tapped first to focus the field.
func typeInto(name, text string, at func() (types.Point, bool)) executor.Strategy {
	return executor.Func(name, func(ctx context.Context, p executor.Port) error {
		if at != nil {
			pt, ok := at()
			if !ok {
				return executor.ErrNoCoordinates
			}
			if err := p.Tap(ctx, pt.X, pt.Y); err != nil {
				return err
			}
		}
		snap, err := p.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		n := snap.Find(func(n *uitree.Node) bool { return n.Editable && n.Focused })
		if n == nil {
			n = snap.Find(func(n *uitree.Node) bool { return n.Editable })
		}
		if n == nil {
			return executor.ErrNodeNotFound
		}
		return p.SetText(ctx, n, text)
	})
}
