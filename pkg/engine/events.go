package engine

import (
	"time"

	"Aide/pkg/autoreply"
	"Aide/pkg/calldetect"
	"Aide/pkg/executor"
	"Aide/pkg/monitor"
	"Aide/pkg/settings"
	"Aide/pkg/uitree"
)

// UIEventKind distinguishes window switches from content updates.
type UIEventKind int

const (
	WindowStateChanged UIEventKind = iota
	ContentChanged
)

func (k UIEventKind) String() string {
	if k == WindowStateChanged {
		return "window-state"
	}
	return "content"
}

// UIEvent is a change of the UI hierarchy. Snapshot may be nil when only
// the window class is known.
type UIEvent struct {
	Kind        UIEventKind
	Package     string
	WindowClass string
	Snapshot    *uitree.Snapshot
	At          time.Time
}

// NotificationEvent is a notification posted or updated.
type NotificationEvent struct {
	calldetect.Notification
	At time.Time
}

// ConfigSource hands out a fresh settings snapshot on every read.
type ConfigSource interface {
	Snapshot() settings.Snapshot
}

// Announcer speaks text. Implementations must not block and must swallow
// their own errors.
type Announcer interface {
	Announce(text string)
}

// AttemptMeta describes what an attempt was for, without message content.
type AttemptMeta struct {
	RuleID string
	Source string
}

// Recorder keeps an audit trail of finished attempts.
type Recorder interface {
	RecordAttempt(a *executor.Attempt, meta AttemptMeta) error
}

// Listener observes what the engine does. Embed NopListener to implement
// only some of the callbacks. Callbacks run on the engine loop and must
// return quickly.
type Listener interface {
	OnMessage(m monitor.Message)
	OnReply(m monitor.Message, rule autoreply.Rule, outcome executor.Outcome)
	OnCall(det calldetect.Detection)
	OnAnswer(det calldetect.Detection, outcome executor.Outcome)
	OnStatus(status string)
}

// NopListener ignores everything.
type NopListener struct{}

func (NopListener) OnMessage(monitor.Message) {}
func (NopListener) OnReply(monitor.Message, autoreply.Rule, executor.Outcome) {}
func (NopListener) OnCall(calldetect.Detection) {}
func (NopListener) OnAnswer(calldetect.Detection, executor.Outcome) {}
func (NopListener) OnStatus(string) {}

type purpose int

const (
	purposeAnswer purpose = iota
	purposeReplyFill
	purposeReplySend
)

func (p purpose) String() string {
	switch p {
	case purposeAnswer:
		return "answer"
	case purposeReplyFill:
		return "reply-fill"
	default:
		return "reply-send"
	}
}

// attemptResolved is posted back to the loop when an executor cascade ends.
type attemptResolved struct {
	attempt *executor.Attempt
	purpose purpose
	width   int
	height  int
}
