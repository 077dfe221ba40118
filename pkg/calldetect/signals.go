package calldetect

import (
	"strings"
	"time"

	"Aide/pkg/monitor"
	"Aide/pkg/uitree"
)

// Source names where a signal came from.
type Source string

const (
	SourceWindow       Source = "uiWindowState"
	SourceContent      Source = "uiContentScan"
	SourceNotification Source = "notification"
)

// Media is the kind of call, when it can be told.
type Media string

const (
	MediaUnknown Media = ""
	MediaVideo   Media = "video"
	MediaVoice   Media = "voice"
)

// Signal confidences. Any single signal is enough to move the detector;
// confidence only decides which suspicion is kept and is reported.
const (
	ConfidenceWindow             = 0.9
	ConfidenceNotificationAction = 0.95
	ConfidenceNotification       = 0.6
	ConfidenceContent            = 0.5
	ConfidenceContentAccept      = 0.8
)

// Target is whatever is known about how to answer: a screen point, a
// notification action, or both.
type Target struct {
	Label    string
	X, Y     int
	HasPoint bool
	// Clickable is false when only a non-clickable label was seen.
	Clickable bool

	NotificationKey string
	ActionIndex     int
	ActionLabel     string
}

// Found reports whether the target gives any way to answer.
func (t Target) Found() bool {
	return t.HasPoint || t.ActionLabel != ""
}

// Signal is one piece of evidence about an incoming call.
type Signal struct {
	Source          Source
	RawText         string
	HasAnswerAction bool
	Confidence      float64
	Caller          string
	Media           Media
	Target          Target
	At              time.Time
}

// NotificationAction is one button on a posted notification.
type NotificationAction struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Notification is a posted system notification.
type Notification struct {
	Key      string               `json:"key"`
	Package  string               `json:"package"`
	Title    string               `json:"title"`
	Text     string               `json:"text"`
	SubText  string               `json:"subText,omitempty"`
	BigText  string               `json:"bigText,omitempty"`
	Category string               `json:"category,omitempty"`
	Actions  []NotificationAction `json:"actions,omitempty"`
}

// AllText joins every text field of the notification.
func (n Notification) AllText() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{n.Title, n.Text, n.SubText, n.BigText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// AcceptAction returns the first action whose label is an accept label.
func (n Notification) AcceptAction() (NotificationAction, bool) {
	for _, a := range n.Actions {
		if monitor.IsAcceptLabel(a.Label) {
			return a, true
		}
	}
	return NotificationAction{}, false
}

// MediaOf guesses the call media from free text.
func MediaOf(text string) Media {
	switch {
	case strings.Contains(text, "视频"), strings.Contains(strings.ToLower(text), "video"):
		return MediaVideo
	case strings.Contains(text, "语音"), strings.Contains(strings.ToLower(text), "voice"):
		return MediaVoice
	default:
		return MediaUnknown
	}
}

// ========================================
// Signal sources
// ========================================

// FromWindow reports a window transition into a call screen.
func FromWindow(class string, windows *monitor.Table[string], at time.Time) (Signal, bool) {
	if class == "" || !windows.Is(class, monitor.TagCallScreen) {
		return Signal{}, false
	}
	return Signal{
		Source:     SourceWindow,
		RawText:    class,
		Confidence: ConfidenceWindow,
		At:         at,
	}, true
}

// FromContent scans the visible text of a snapshot for the call lexicon.
func FromContent(s *uitree.Snapshot, at time.Time) (Signal, bool) {
	if s == nil {
		return Signal{}, false
	}
	text := s.CollectText()
	if !monitor.MatchesCallLexicon(text) {
		return Signal{}, false
	}
	return Signal{
		Source:     SourceContent,
		RawText:    firstLine(text),
		Confidence: ConfidenceContent,
		Media:      MediaOf(text),
		At:         at,
	}, true
}

// FromNotification reports a call-like notification of the chat app. The
// accept action, when present, becomes the target.
func FromNotification(n Notification, at time.Time) (Signal, bool) {
	if n.Package != "" && n.Package != monitor.PackageWeChat {
		return Signal{}, false
	}
	text := n.AllText()
	sig := Signal{
		Source:  SourceNotification,
		RawText: text,
		Caller:  strings.TrimSpace(n.Title),
		Media:   MediaOf(text),
		At:      at,
	}
	if a, ok := n.AcceptAction(); ok {
		sig.HasAnswerAction = true
		sig.Confidence = ConfidenceNotificationAction
		sig.Target = Target{
			Label:           a.Label,
			NotificationKey: n.Key,
			ActionIndex:     a.Index,
			ActionLabel:     a.Label,
		}
		return sig, true
	}
	if n.Category == "call" || monitor.MatchesCallLexicon(text) {
		sig.Confidence = ConfidenceNotification
		sig.Target.NotificationKey = n.Key
		return sig, true
	}
	return Signal{}, false
}

// FindAccept looks for an accept control in the snapshot, trying each accept
// label in order. A label that is visible but not clickable still yields a
// point for a gesture.
func FindAccept(s *uitree.Snapshot) (Target, bool) {
	if s == nil {
		return Target{}, false
	}
	var fallback *Target
	for _, label := range monitor.AcceptLabels {
		target, anchor := s.FindClickableByLabel(label)
		if target != nil {
			// prefer the label's own position; container bounds can be huge
			at := target
			if anchor != nil && !anchor.Bounds.Empty() {
				at = anchor
			}
			x, y := at.Bounds.Center()
			return Target{Label: label, X: x, Y: y, HasPoint: true, Clickable: true}, true
		}
		if anchor != nil && fallback == nil && !anchor.Bounds.Empty() {
			x, y := anchor.Bounds.Center()
			fallback = &Target{Label: label, X: x, Y: y, HasPoint: true}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Target{}, false
}

// AcceptSignal wraps FindAccept into a confirming signal.
func AcceptSignal(s *uitree.Snapshot, at time.Time) (Signal, bool) {
	t, ok := FindAccept(s)
	if !ok {
		return Signal{}, false
	}
	text := s.CollectText()
	return Signal{
		Source:     SourceContent,
		RawText:    t.Label,
		Confidence: ConfidenceContentAccept,
		Media:      MediaOf(text),
		Target:     t,
		At:         at,
	}, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
