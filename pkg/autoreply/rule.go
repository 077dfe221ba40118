// Package autoreply matches incoming chat messages against user-authored
// reply rules and decides whether a reply may be sent.
package autoreply

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// MatchType selects how keywords are compared with a message.
type MatchType string

const (
	MatchExact    MatchType = "EXACT"
	MatchContains MatchType = "CONTAINS"
	MatchRegex    MatchType = "REGEX"
)

// Scope restricts a rule to private chats, group chats or both.
type Scope string

const (
	ScopeAll     Scope = "ALL"
	ScopePrivate Scope = "PRIVATE"
	ScopeGroup   Scope = "GROUP"
)

// ParseMatchType is lenient; unknown values fall back to CONTAINS.
func ParseMatchType(s string) MatchType {
	switch MatchType(strings.ToUpper(strings.TrimSpace(s))) {
	case MatchExact:
		return MatchExact
	case MatchRegex:
		return MatchRegex
	default:
		return MatchContains
	}
}

// ParseScope is lenient; unknown values fall back to ALL.
func ParseScope(s string) Scope {
	switch Scope(strings.ToUpper(strings.TrimSpace(s))) {
	case ScopePrivate:
		return ScopePrivate
	case ScopeGroup:
		return ScopeGroup
	default:
		return ScopeAll
	}
}

// Rule is one reply rule. Higher Priority is tried first.
type Rule struct {
	ID        string    `json:"id" yaml:"id"`
	Keywords  []string  `json:"keywords" yaml:"keywords"`
	Reply     string    `json:"reply" yaml:"reply"`
	MatchType MatchType `json:"matchType" yaml:"matchType"`
	Enabled   bool      `json:"isEnabled" yaml:"enabled"`
	Priority  int       `json:"priority" yaml:"priority"`
	Scope     Scope     `json:"scope" yaml:"scope"`
}

// Validate reports rules that can never fire.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if len(r.Keywords) == 0 {
		return fmt.Errorf("rule %s: at least one keyword is required", r.ID)
	}
	if r.Reply == "" {
		return fmt.Errorf("rule %s: reply is required", r.ID)
	}
	return nil
}

// DefaultRules are installed when no rules have been configured.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "default_1", Keywords: []string{"你好", "您好", "hi", "hello", "嗨"}, Reply: "你好！有什么可以帮助你的吗？", MatchType: MatchContains, Enabled: true, Priority: 1, Scope: ScopeAll},
		{ID: "default_2", Keywords: []string{"在吗", "在不在", "有人吗"}, Reply: "在的，请问有什么事？", MatchType: MatchContains, Enabled: true, Priority: 2, Scope: ScopeAll},
		{ID: "default_3", Keywords: []string{"谢谢", "感谢", "多谢", "thanks"}, Reply: "不客气！", MatchType: MatchContains, Enabled: true, Priority: 1, Scope: ScopeAll},
		{ID: "default_4", Keywords: []string{"再见", "拜拜", "bye", "晚安"}, Reply: "再见，祝你生活愉快！", MatchType: MatchContains, Enabled: true, Priority: 1, Scope: ScopeAll},
		{ID: "default_5", Keywords: []string{"忙吗", "方便吗", "有空吗"}, Reply: "我现在有空，请说。", MatchType: MatchContains, Enabled: true, Priority: 2, Scope: ScopeAll},
	}
}

// ========================================
// Persistence
// ========================================

// ParseRules reads a JSON array of rules. Records missing an id, keywords
// or reply are skipped; other fields default. A document that is not an
// array yields no rules.
func ParseRules(data []byte) []Rule {
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil
	}
	var rules []Rule
	doc.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		r := Rule{
			ID:        v.Get("id").String(),
			Reply:     v.Get("reply").String(),
			MatchType: ParseMatchType(v.Get("matchType").String()),
			Enabled:   true,
			Priority:  int(v.Get("priority").Int()),
			Scope:     ParseScope(v.Get("scope").String()),
		}
		if e := v.Get("isEnabled"); e.Exists() {
			r.Enabled = e.Bool()
		}
		for _, k := range v.Get("keywords").Array() {
			if s := k.String(); s != "" {
				r.Keywords = append(r.Keywords, s)
			}
		}
		if r.Validate() != nil {
			return true
		}
		rules = append(rules, r)
		return true
	})
	return rules
}

// MarshalRules encodes rules in the persisted JSON layout.
func MarshalRules(rules []Rule) ([]byte, error) {
	if rules == nil {
		rules = []Rule{}
	}
	return json.Marshal(rules)
}

type yamlRuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRulesYAML reads a rules file as written by MarshalRulesYAML.
func ParseRulesYAML(data []byte) ([]Rule, error) {
	var f yamlRuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules yaml: %w", err)
	}
	out := make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		r.MatchType = ParseMatchType(string(r.MatchType))
		r.Scope = ParseScope(string(r.Scope))
		if err := r.Validate(); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func MarshalRulesYAML(rules []Rule) ([]byte, error) {
	return yaml.Marshal(yamlRuleFile{Rules: rules})
}

// ========================================
// Editing
// ========================================

// Upsert replaces the rule with the same id, or appends it.
func Upsert(rules []Rule, r Rule) []Rule {
	out := make([]Rule, 0, len(rules)+1)
	for _, existing := range rules {
		if existing.ID != r.ID {
			out = append(out, existing)
		}
	}
	return append(out, r)
}

// Remove drops the rule with id and reports whether it existed.
func Remove(rules []Rule, id string) ([]Rule, bool) {
	out := make([]Rule, 0, len(rules))
	found := false
	for _, r := range rules {
		if r.ID == id {
			found = true
			continue
		}
		out = append(out, r)
	}
	return out, found
}
