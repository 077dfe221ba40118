package autoreply

import (
	"strings"
	"testing"
	"time"

	"Aide/pkg/monitor"
)

func privateMsg(content, chat string) monitor.Message {
	return monitor.NewMessage(content, "", chat, false, false, time.Unix(1700000000, 0))
}

func groupMsg(content, sender, chat string) monitor.Message {
	return monitor.NewMessage(content, sender, chat, true, false, time.Unix(1700000000, 0))
}

func TestRankStable(t *testing.T) {
	rules := []Rule{
		{ID: "a", Priority: 3, Enabled: true, Scope: ScopeAll},
		{ID: "b", Priority: 1, Enabled: true, Scope: ScopeAll},
		{ID: "c", Priority: 3, Enabled: true, Scope: ScopeAll},
		{ID: "d", Priority: 2, Enabled: true, Scope: ScopeAll},
	}
	got := Rank(rules, false)
	want := []string{"a", "c", "d", "b"}
	if len(got) != len(want) {
		t.Fatalf("Rank returned %d rules", len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Rank[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestRankFilters(t *testing.T) {
	rules := []Rule{
		{ID: "private", Enabled: true, Scope: ScopePrivate},
		{ID: "group", Enabled: true, Scope: ScopeGroup},
		{ID: "all", Enabled: true, Scope: ScopeAll},
		{ID: "off", Enabled: false, Scope: ScopeAll},
	}
	ids := func(rs []Rule) string {
		var s []string
		for _, r := range rs {
			s = append(s, r.ID)
		}
		return strings.Join(s, ",")
	}
	if got := ids(Rank(rules, false)); got != "private,all" {
		t.Errorf("private ranking = %s", got)
	}
	if got := ids(Rank(rules, true)); got != "group,all" {
		t.Errorf("group ranking = %s", got)
	}
}

func TestMatchTypes(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		content string
		want    bool
	}{
		{"exact hit", Rule{Keywords: []string{"Hello"}, MatchType: MatchExact}, "  hello ", true},
		{"exact miss", Rule{Keywords: []string{"hello"}, MatchType: MatchExact}, "hello there", false},
		{"contains", Rule{Keywords: []string{"在吗"}, MatchType: MatchContains}, "老王在吗？", true},
		{"contains case", Rule{Keywords: []string{"THANKS"}, MatchType: MatchContains}, "thanks a lot", true},
		{"regex", Rule{Keywords: []string{`^\d{3}$`}, MatchType: MatchRegex}, "123", true},
		{"regex ignore case", Rule{Keywords: []string{"^HI"}, MatchType: MatchRegex}, "Hi there", true},
		{"regex invalid", Rule{Keywords: []string{"([a-z"}, MatchType: MatchRegex}, "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rule.ID, tt.rule.Reply, tt.rule.Enabled = "r", "ok", true
			_, got := Match([]Rule{tt.rule}, tt.content, false)
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestInvalidRegexOnlyDisablesThatRule(t *testing.T) {
	rules := []Rule{
		{ID: "broken", Keywords: []string{"(unclosed"}, Reply: "x", MatchType: MatchRegex, Enabled: true, Priority: 9},
		{ID: "ok", Keywords: []string{"unclosed"}, Reply: "y", MatchType: MatchContains, Enabled: true, Priority: 1},
	}
	r, ok := Match(rules, "(unclosed", false)
	if !ok || r.ID != "ok" {
		t.Errorf("Match = %v, %v; want rule ok", r.ID, ok)
	}
}

func TestFindReplyScenario(t *testing.T) {
	rules := []Rule{{
		ID: "greet", Keywords: []string{"你好"}, Reply: "你好呀", MatchType: MatchContains,
		Scope: ScopePrivate, Priority: 1, Enabled: true,
	}}
	policy := &ContactPolicy{UseWhitelist: true, Whitelist: []string{"张三"}}

	r, ok := FindReply(rules, privateMsg("你好", "张三"), true, policy)
	if !ok || r.Reply != "你好呀" {
		t.Fatalf("FindReply = %+v, %v", r, ok)
	}

	if _, ok := FindReply(rules, privateMsg("你好", "张三"), false, policy); ok {
		t.Error("disabled auto-reply must not match")
	}
	if _, ok := FindReply(rules, privateMsg("你好", "李四"), true, policy); ok {
		t.Error("contact outside whitelist must not match")
	}
	if _, ok := FindReply(rules, groupMsg("你好", "张三", "群(3)"), true, nil); ok {
		t.Error("private-scoped rule must not answer a group")
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	if len(rules) != 5 {
		t.Fatalf("got %d default rules", len(rules))
	}
	tests := []struct {
		content string
		want    string
	}{
		{"Hello!", "default_1"},
		{"你好，在吗", "default_2"}, // priority 2 beats priority 1
		{"多谢了", "default_3"},
		{"晚安", "default_4"},
		{"现在有空吗", "default_5"},
	}
	for _, tt := range tests {
		r, ok := Match(rules, tt.content, false)
		if !ok || r.ID != tt.want {
			t.Errorf("Match(%q) = %s, want %s", tt.content, r.ID, tt.want)
		}
	}
}

func TestParseRules(t *testing.T) {
	data := []byte(`[
		{"id":"r1","keywords":["a","b"],"reply":"A","matchType":"EXACT","isEnabled":false,"priority":5,"scope":"GROUP"},
		{"id":"r2","keywords":["c"],"reply":"C","matchType":"weird","scope":"nope"},
		{"id":"","keywords":["x"],"reply":"X"},
		{"id":"r4","keywords":[],"reply":"X"},
		"garbage"
	]`)
	rules := ParseRules(data)
	if len(rules) != 2 {
		t.Fatalf("ParseRules kept %d rules, want 2: %+v", len(rules), rules)
	}
	r1 := rules[0]
	if r1.MatchType != MatchExact || r1.Enabled || r1.Priority != 5 || r1.Scope != ScopeGroup || len(r1.Keywords) != 2 {
		t.Errorf("r1 = %+v", r1)
	}
	r2 := rules[1]
	if r2.MatchType != MatchContains || !r2.Enabled || r2.Scope != ScopeAll {
		t.Errorf("r2 defaults = %+v", r2)
	}

	if ParseRules([]byte(`{"not":"array"}`)) != nil {
		t.Error("non-array document should yield nil")
	}

	out, err := MarshalRules(rules)
	if err != nil {
		t.Fatal(err)
	}
	if again := ParseRules(out); len(again) != 2 || again[0].Enabled {
		t.Errorf("persisted layout should parse back, got %+v", again)
	}
}

func TestRulesYAML(t *testing.T) {
	data, err := MarshalRulesYAML(DefaultRules()[:2])
	if err != nil {
		t.Fatal(err)
	}
	rules, err := ParseRulesYAML(data)
	if err != nil {
		t.Fatalf("ParseRulesYAML: %v", err)
	}
	if len(rules) != 2 || rules[1].ID != "default_2" || rules[1].Priority != 2 {
		t.Errorf("yaml rules = %+v", rules)
	}

	if _, err := ParseRulesYAML([]byte("rules:\n  - id: x\n    reply: y\n")); err == nil {
		t.Error("rule without keywords should be rejected")
	}
}

func TestUpsertRemove(t *testing.T) {
	rules := DefaultRules()
	rules = Upsert(rules, Rule{ID: "default_1", Keywords: []string{"yo"}, Reply: "yo"})
	if len(rules) != 5 || rules[4].Reply != "yo" {
		t.Errorf("Upsert should replace the rule with the same id, got %d rules", len(rules))
	}
	rules, ok := Remove(rules, "default_3")
	if !ok || len(rules) != 4 {
		t.Error("Remove should drop default_3")
	}
	if _, ok := Remove(rules, "missing"); ok {
		t.Error("Remove of unknown id should report false")
	}
}

func TestContactPolicy(t *testing.T) {
	p := &ContactPolicy{Blacklist: []string{"骚扰"}}
	if p.Allows("骚扰") || !p.Allows("朋友") {
		t.Error("blacklist only")
	}
	p = &ContactPolicy{UseWhitelist: true, Whitelist: []string{"朋友", "骚扰"}, Blacklist: []string{"骚扰"}}
	if p.Allows("骚扰") {
		t.Error("blacklist wins over whitelist")
	}
	if !p.Allows("朋友") || p.Allows("路人") {
		t.Error("whitelist mismatch")
	}
}

func TestGate(t *testing.T) {
	g := NewGate(0)
	cfg := GateConfig{Enabled: true}
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name string
		msg  monitor.Message
		cfg  GateConfig
		want string
	}{
		{"disabled", privateMsg("hi", "a"), GateConfig{}, SkipDisabled},
		{"self", monitor.NewMessage("hi", "", "a", false, true, now), cfg, SkipSelf},
		{"group off", groupMsg("hi", "b", "g(3)"), cfg, SkipGroupDisabled},
		{"no contact", privateMsg("hi", ""), cfg, SkipNoContact},
		{"blocked", privateMsg("hi", "a"), GateConfig{Enabled: true, Policy: ContactPolicy{Blacklist: []string{"a"}}}, SkipBlocked},
		{"ok", privateMsg("hi", "a"), cfg, ""},
		{"group on", groupMsg("hi", "b", "g(3)"), GateConfig{Enabled: true, ReplyInGroup: true}, ""},
	}
	for _, tt := range tests {
		reason, ok := g.Check(tt.msg, tt.cfg, now)
		if reason != tt.want || ok != (tt.want == "") {
			t.Errorf("%s: Check = %q, %v; want %q", tt.name, reason, ok, tt.want)
		}
	}

	m := privateMsg("hi", "a")
	g.MarkProcessed(m)
	if reason, _ := g.Check(m, cfg, now); reason != SkipDuplicate {
		t.Errorf("same message again = %q, want duplicate", reason)
	}

	if !g.Take(now) {
		t.Fatal("first reply should have budget")
	}
	other := privateMsg("again", "a")
	if reason, _ := g.Check(other, cfg, now.Add(time.Second)); reason != SkipRateLimited {
		t.Errorf("within interval = %q, want rate-limited", reason)
	}
	if _, ok := g.Check(other, cfg, now.Add(MinReplyInterval)); !ok {
		t.Error("after the interval a reply should be allowed")
	}

	g2 := NewGate(time.Minute)
	if !g2.Take(now) || g2.Take(now.Add(time.Second)) {
		t.Error("second reply inside the interval must be refused")
	}
}
