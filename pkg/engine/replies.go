package engine

import (
	"context"
	"strconv"

	"Aide/pkg/autoreply"
	"Aide/pkg/executor"
	"Aide/pkg/monitor"
	"Aide/pkg/settings"
)

func (e *Engine) handleUI(ctx context.Context, ev UIEvent) {
	class := ev.WindowClass
	if class == "" && ev.Snapshot != nil {
		class = ev.Snapshot.WindowClass
	}
	if class != "" {
		e.lastWindow = class
	} else {
		class = e.lastWindow
	}
	tag, _ := e.windows.Recognize(class)

	e.scanForCall(ev, class, tag)

	cfg := e.config.Snapshot()
	if !cfg.MonitorEnabled || ev.Snapshot == nil || tag == monitor.TagCallScreen {
		return
	}
	pkg := ev.Package
	if pkg == "" {
		pkg = ev.Snapshot.Package
	}
	if pkg != "" && pkg != monitor.PackageWeChat {
		return
	}
	e.scanMessages(ev, cfg)
}

// scanMessages admits new messages of a snapshot and considers the newest
// received one for a reply.
func (e *Engine) scanMessages(ev UIEvent, cfg settings.Snapshot) {
	e.lastChat = e.walker.ChatName(ev.Snapshot)

	var newest *monitor.Message
	for m := range e.walker.Extract(ev.Snapshot) {
		if !e.history.Admit(m) {
			continue
		}
		e.history.Record(m)
		e.listener.OnMessage(m)

		l := e.log.Info().Str("id", m.ID).Str("type", string(m.Type)).Bool("group", m.IsGroupChat).Bool("self", m.IsSelf)
		if cfg.LogMessages {
			l = l.Str("chat", m.ChatName).Str("sender", m.Sender).Str("content", m.Content)
		}
		l.Msg("new message")

		if !m.IsSelf {
			msg := m
			newest = &msg
		}
	}
	if newest == nil {
		return
	}
	e.announce("收到" + newest.Contact() + "的消息")
	e.considerReply(*newest, cfg)
}

func (e *Engine) considerReply(m monitor.Message, cfg settings.Snapshot) {
	if e.reply != nil {
		e.log.Debug().Str("id", m.ID).Msg("reply skipped: another reply in flight")
		return
	}
	now := e.clock.Now()
	if reason, ok := e.gate.Check(m, cfg.GateConfig(), now); !ok {
		e.log.Debug().Str("id", m.ID).Str("reason", reason).Msg("reply skipped")
		return
	}
	rule, ok := autoreply.FindReply(cfg.Rules, m, cfg.AutoReplyEnabled, &cfg.Policy)
	if !ok {
		return
	}
	e.gate.MarkProcessed(m)

	e.replySeq++
	e.reply = &pendingReply{
		id:        strconv.FormatUint(e.replySeq, 10),
		msg:       m,
		rule:      rule,
		phase:     purposeReplyFill,
		scheduled: now,
	}
	e.log.Info().Str("id", m.ID).Str("rule", rule.ID).Dur("delay", cfg.AutoReplyDelay).Msg("reply scheduled")
	e.schedule(ReplyDelayElapsed, cfg.AutoReplyDelay, timerEvent{ref: e.reply.id})
}

// onReplyDelay fills the input once the delay passed and the reply still
// applies: auto-reply on, same chat in front, rate budget available.
func (e *Engine) onReplyDelay(ctx context.Context, t *timerEvent) {
	r := e.reply
	if r == nil || r.id != t.ref || r.attemptID != "" {
		return
	}
	cfg := e.config.Snapshot()
	reason := ""
	switch {
	case !cfg.AutoReplyEnabled:
		reason = autoreply.SkipDisabled
	case e.lastChat != "" && r.msg.ChatName != "" && e.lastChat != r.msg.ChatName:
		reason = "chat-changed"
	case !e.gate.Ready(e.clock.Now()):
		reason = autoreply.SkipRateLimited
	}
	if reason != "" {
		e.log.Info().Str("id", r.msg.ID).Str("reason", reason).Msg("scheduled reply dropped")
		e.reply = nil
		return
	}

	a := executor.NewAttempt(executor.KindSendReply, executor.InputStrategies(r.rule.Reply)...)
	r.attemptID = a.ID
	r.phase = purposeReplyFill
	e.start(ctx, a, purposeReplyFill)
}

// onReplySend presses send after the input settled.
func (e *Engine) onReplySend(ctx context.Context, t *timerEvent) {
	r := e.reply
	if r == nil || r.id != t.ref || r.phase != purposeReplySend || r.attemptID != "" {
		return
	}
	if !e.gate.Take(e.clock.Now()) {
		e.log.Info().Str("id", r.msg.ID).Msg("reply dropped: rate limited at send time")
		e.reply = nil
		return
	}
	a := executor.NewAttempt(executor.KindSendReply, executor.SendStrategies()...)
	r.attemptID = a.ID
	e.start(ctx, a, purposeReplySend)
}

func (e *Engine) onReplyResolved(r attemptResolved) {
	p := e.reply
	if p == nil || p.attemptID != r.attempt.ID {
		return
	}
	a := r.attempt
	p.attemptID = ""

	if r.purpose == purposeReplyFill && a.Outcome == executor.OutcomeSucceeded {
		p.phase = purposeReplySend
		e.schedule(ReplySendDue, executor.SendSettle, timerEvent{ref: p.id})
		return
	}

	e.record(a, AttemptMeta{RuleID: p.rule.ID})
	e.reply = nil
	e.listener.OnReply(p.msg, p.rule, a.Outcome)
	if a.Outcome == executor.OutcomeSucceeded {
		e.log.Info().Str("id", p.msg.ID).Str("rule", p.rule.ID).Msg("reply sent")
		e.listener.OnStatus("auto-reply sent")
	} else {
		e.listener.OnStatus("auto-reply failed")
	}
}
