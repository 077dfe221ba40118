package autoreply

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"Aide/pkg/monitor"
)

// Rank filters rules by scope and enabled flag, then orders them by
// priority descending. Equal priorities keep their configured order.
func Rank(rules []Rule, isGroupChat bool) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		switch r.Scope {
		case ScopePrivate:
			if isGroupChat {
				continue
			}
		case ScopeGroup:
			if !isGroupChat {
				continue
			}
		}
		if !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

var regexCache sync.Map // pattern -> *regexp.Regexp, nil when invalid

func compileCached(pattern string) *regexp.Regexp {
	if v, ok := regexCache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	regexCache.Store(pattern, re)
	return re
}

// Matches applies the rule's match policy to already normalized content.
// A malformed regex never matches.
func (r Rule) Matches(content string) bool {
	for _, k := range r.Keywords {
		switch r.MatchType {
		case MatchExact:
			if strings.ToLower(k) == content {
				return true
			}
		case MatchRegex:
			if re := compileCached(k); re != nil && re.MatchString(content) {
				return true
			}
		default:
			if strings.Contains(content, strings.ToLower(k)) {
				return true
			}
		}
	}
	return false
}

// Normalize trims and case-folds message content for matching.
func Normalize(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}

// Match returns the first ranked rule matching content. Pure.
func Match(rules []Rule, content string, isGroupChat bool) (Rule, bool) {
	content = Normalize(content)
	if content == "" {
		return Rule{}, false
	}
	for _, r := range Rank(rules, isGroupChat) {
		if r.Matches(content) {
			return r, true
		}
	}
	return Rule{}, false
}

// FindReply returns the rule that answers msg, if auto-reply is enabled and
// the contact passes policy. A nil policy allows everyone.
func FindReply(rules []Rule, msg monitor.Message, enabled bool, policy *ContactPolicy) (Rule, bool) {
	if !enabled {
		return Rule{}, false
	}
	if policy != nil && !policy.Allows(msg.Contact()) {
		return Rule{}, false
	}
	return Match(rules, msg.Content, msg.IsGroupChat)
}
