package autoreply

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"Aide/pkg/monitor"
)

// MinReplyInterval is the shortest gap between two automated replies.
const MinReplyInterval = 3 * time.Second

// ContactPolicy is the allow/block list. The blacklist always wins; the
// whitelist only applies when UseWhitelist is set.
type ContactPolicy struct {
	UseWhitelist bool
	Whitelist    []string
	Blacklist    []string
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if strings.TrimSpace(v) == name {
			return true
		}
	}
	return false
}

func (p *ContactPolicy) Allows(contact string) bool {
	contact = strings.TrimSpace(contact)
	if contains(p.Blacklist, contact) {
		return false
	}
	if p.UseWhitelist {
		return contains(p.Whitelist, contact)
	}
	return true
}

// Skip reasons reported by Gate.Check.
const (
	SkipDisabled      = "disabled"
	SkipSelf          = "self"
	SkipGroupDisabled = "group-disabled"
	SkipNoContact     = "no-contact"
	SkipBlocked       = "contact-not-allowed"
	SkipRateLimited   = "rate-limited"
	SkipDuplicate     = "duplicate"
)

// GateConfig is the slice of settings the gate consults.
type GateConfig struct {
	Enabled      bool
	ReplyInGroup bool
	Policy       ContactPolicy
}

// Gate enforces everything around the matcher: self messages, group
// opt-in, contact policy, the minimum reply interval and the last processed
// message. Safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastKey  string
	interval time.Duration
}

func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		interval = MinReplyInterval
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1), interval: interval}
}

func processedKey(m monitor.Message) string {
	return m.Content + "_" + m.ChatName
}

// Check reports whether a reply to m may be scheduled at now. It does not
// consume the rate budget.
func (g *Gate) Check(m monitor.Message, cfg GateConfig, now time.Time) (string, bool) {
	if !cfg.Enabled {
		return SkipDisabled, false
	}
	if m.IsSelf {
		return SkipSelf, false
	}
	if m.IsGroupChat && !cfg.ReplyInGroup {
		return SkipGroupDisabled, false
	}
	contact := m.Contact()
	if contact == "" {
		return SkipNoContact, false
	}
	if !cfg.Policy.Allows(contact) {
		return SkipBlocked, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.limiter.TokensAt(now) < 1 {
		return SkipRateLimited, false
	}
	if processedKey(m) == g.lastKey {
		return SkipDuplicate, false
	}
	return "", true
}

// MarkProcessed remembers m as the last message a reply was scheduled for.
func (g *Gate) MarkProcessed(m monitor.Message) {
	g.mu.Lock()
	g.lastKey = processedKey(m)
	g.mu.Unlock()
}

// Ready reports whether a reply could be sent at now without consuming
// anything.
func (g *Gate) Ready(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limiter.TokensAt(now) >= 1
}

// Take consumes the rate budget for a reply sent at now.
func (g *Gate) Take(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limiter.AllowN(now, 1)
}
