package engine

import (
	"container/heap"
	"time"

	"Aide/pkg/types"
)

// TimerKind names a delayed step of the engine.
type TimerKind int

const (
	ReplyDelayElapsed TimerKind = iota
	ReplySendDue
	AnswerDelayElapsed
	AttemptTimeoutElapsed
	SecondaryGestureRequested
	CooldownElapsed
)

func (k TimerKind) String() string {
	switch k {
	case ReplyDelayElapsed:
		return "ReplyDelayElapsed"
	case ReplySendDue:
		return "ReplySendDue"
	case AnswerDelayElapsed:
		return "AnswerDelayElapsed"
	case AttemptTimeoutElapsed:
		return "AttemptTimeoutElapsed"
	case SecondaryGestureRequested:
		return "SecondaryGestureRequested"
	case CooldownElapsed:
		return "CooldownElapsed"
	default:
		return "unknown"
	}
}

// timerEvent fires once at Due. Timers are never cancelled; the handler
// checks whether the step still applies.
type timerEvent struct {
	Kind TimerKind
	Due  time.Time

	// ref is the reply id or attempt id the timer belongs to
	ref    string
	index  int
	points []types.Point

	seq uint64
}

// timerQueue is a min-heap on Due, FIFO among equal times.
type timerQueue []*timerEvent

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].Due.Equal(q[j].Due) {
		return q[i].seq < q[j].seq
	}
	return q[i].Due.Before(q[j].Due)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*timerEvent)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

func (q timerQueue) peek() *timerEvent {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// popDue removes and returns every timer due at or before now.
func (q *timerQueue) popDue(now time.Time) []*timerEvent {
	var out []*timerEvent
	for q.Len() > 0 && !(*q)[0].Due.After(now) {
		out = append(out, heap.Pop(q).(*timerEvent))
	}
	return out
}
