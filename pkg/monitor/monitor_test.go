package monitor

import (
	"testing"
	"time"

	"Aide/pkg/uitree"
)

func textView(text string, b uitree.Bounds) *uitree.Node {
	return &uitree.Node{Text: text, Class: "android.widget.TextView", Bounds: b}
}

// chatSnapshot builds a chat screen 1080 wide with the given title and rows.
func chatSnapshot(title string, rows ...*uitree.Node) *uitree.Snapshot {
	root := &uitree.Node{
		Class:  "android.widget.FrameLayout",
		Bounds: uitree.Bounds{X1: 0, Y1: 0, X2: 1080, Y2: 2400},
		Children: []*uitree.Node{
			{Text: title, ResourceID: IDChatName, Class: "android.widget.TextView", Bounds: uitree.Bounds{X1: 300, Y1: 80, X2: 780, Y2: 160}},
			{Text: "返回", Class: "android.widget.TextView", Bounds: uitree.Bounds{X1: 0, Y1: 80, X2: 100, Y2: 160}},
		},
	}
	root.Children = append(root.Children, rows...)
	return uitree.New(root, PackageWeChat, "com.tencent.mm.ui.chatting.ChattingUI", time.Unix(1700000000, 0))
}

func row(children ...*uitree.Node) *uitree.Node {
	return &uitree.Node{Class: "android.widget.LinearLayout", Children: children}
}

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		content string
		want    MessageType
	}{
		{"你好", TypeText},
		{"[图片]", TypeImage},
		{"图片", TypeImage},
		{"[语音]", TypeVoice},
		{"12\"", TypeVoice},
		{"7", TypeVoice},
		{"[视频]", TypeVideo},
		{"邀请你进行视频通话", TypeVideoCall},
		{"接听", TypeVideoCall},
		{"语音通话", TypeVoiceCall},
		{"[红包]恭喜发财", TypeRedPacket},
		{"微信红包", TypeRedPacket},
		{"[转账]", TypeTransfer},
		{"[位置]", TypeLocation},
		{"[文件]a.pdf", TypeFile},
		{"https://example.com", TypeLink},
		{"分享了一个链接", TypeLink},
		{"   ", TypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyContent(tt.content); got != tt.want {
			t.Errorf("ClassifyContent(%q) = %s, want %s", tt.content, got, tt.want)
		}
	}
}

func TestTableFirstMatchWins(t *testing.T) {
	tbl := NewTable(
		Rule[string]{Name: "a", Tag: "first", Match: func(s string) bool { return s == "x" }},
		Rule[string]{Name: "b", Tag: "second", Match: func(s string) bool { return true }},
	)
	if tag, _ := tbl.Recognize("x"); tag != "first" {
		t.Errorf("Recognize(x) = %s, want first", tag)
	}
	if tag, _ := tbl.Recognize("y"); tag != "second" {
		t.Errorf("Recognize(y) = %s, want second", tag)
	}
	if !tbl.Is("x", "second") {
		t.Error("Is should consider every rule carrying the tag")
	}

	patched := tbl.With(Rule[string]{Name: "p", Tag: "patched", Match: func(s string) bool { return s == "y" }})
	if tag, _ := patched.Recognize("y"); tag != "patched" {
		t.Errorf("prepended rule should win, got %s", tag)
	}
	if len(tbl.Rules()) != 2 {
		t.Error("With must not modify the original table")
	}
}

func TestWindowRecognizers(t *testing.T) {
	w := DefaultWindowRecognizers()
	tests := []struct {
		class string
		want  Tag
	}{
		{"com.tencent.mm.plugin.voip.ui.VideoActivity", TagCallScreen},
		{"com.tencent.mm.plugin.voip.ui.VoipUIActivity", TagCallScreen},
		{"com.tencent.mm.plugin.multitalk.ui.VOIPSomething", TagCallScreen},
		{"com.tencent.mm.ui.LauncherUI", TagChatScreen},
		{"com.tencent.mm.ui.chatting.ChattingUI", TagChatScreen},
		{"com.tencent.mm.plugin.sns.ui.SnsTimeLineUI", ""},
	}
	for _, tt := range tests {
		tag, _ := w.Recognize(tt.class)
		if tag != tt.want {
			t.Errorf("Recognize(%s) = %q, want %q", tt.class, tag, tt.want)
		}
	}
}

func TestLexicons(t *testing.T) {
	if !IsAcceptLabel(" 接听 ") || !IsAcceptLabel("Answer") || IsAcceptLabel("挂断") || IsAcceptLabel("") {
		t.Error("accept lexicon mismatch")
	}
	if !MatchesCallLexicon("张三邀请你视频通话") || !MatchesCallLexicon("Incoming VOIP") || MatchesCallLexicon("晚上吃什么") {
		t.Error("call lexicon mismatch")
	}
}

func TestExtractPrivateChat(t *testing.T) {
	s := chatSnapshot("张三",
		row(textView("你好", uitree.Bounds{X1: 150, Y1: 400, X2: 400, Y2: 480})),
		row(textView("在吗", uitree.Bounds{X1: 700, Y1: 600, X2: 950, Y2: 680})),
	)
	msgs := NewWalker().Collect(s)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(msgs), msgs)
	}

	m := msgs[0]
	if m.Content != "你好" || m.ChatName != "张三" || m.IsGroupChat || m.IsSelf || m.Sender != "" {
		t.Errorf("first message = %+v", m)
	}
	if m.Type != TypeText || m.ID == "" || !m.Timestamp.Equal(s.CapturedAt) {
		t.Errorf("first message metadata = %+v", m)
	}
	if !msgs[1].IsSelf {
		t.Error("right aligned bubble should be self")
	}
}

func TestExtractSkipsChromeAndTitle(t *testing.T) {
	s := chatSnapshot("张三",
		row(textView("更多", uitree.Bounds{X1: 0, Y1: 2300, X2: 100, Y2: 2400})),
		row(&uitree.Node{Text: "draft", Class: "android.widget.EditText", ResourceID: IDInput}),
	)
	if msgs := NewWalker().Collect(s); len(msgs) != 0 {
		t.Errorf("expected no messages, got %+v", msgs)
	}
}

// titleOnlySnapshot has a title without the dedicated title id.
func titleOnlySnapshot(title *uitree.Node, rows ...*uitree.Node) *uitree.Snapshot {
	root := &uitree.Node{
		Class:  "android.widget.FrameLayout",
		Bounds: uitree.Bounds{X1: 0, Y1: 0, X2: 1080, Y2: 2400},
		Children: []*uitree.Node{
			{Text: "返回", Class: "android.widget.TextView", Bounds: uitree.Bounds{X1: 0, Y1: 80, X2: 100, Y2: 160}},
			title,
		},
	}
	root.Children = append(root.Children, rows...)
	return uitree.New(root, PackageWeChat, "com.tencent.mm.ui.chatting.ChattingUI", time.Unix(1700000000, 0))
}

func TestFallbackTitleIsNotAMessage(t *testing.T) {
	title := &uitree.Node{Text: "Hi Lily", ResourceID: "com.tencent.mm:id/obn", Class: "android.widget.TextView",
		Bounds: uitree.Bounds{X1: 300, Y1: 80, X2: 780, Y2: 160}}
	s := titleOnlySnapshot(title,
		row(textView("收到", uitree.Bounds{X1: 700, Y1: 600, X2: 950, Y2: 680})),
	)

	w := NewWalker()
	if got := w.ChatName(s); got != "Hi Lily" {
		t.Errorf("ChatName = %q, want Hi Lily", got)
	}
	msgs := w.Collect(s)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "收到" || msgs[0].ChatName != "Hi Lily" || !msgs[0].IsSelf {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestFallbackTitleTopBand(t *testing.T) {
	tests := []struct {
		name   string
		bounds uitree.Bounds
		want   string
	}{
		{"inside band", uitree.Bounds{X1: 300, Y1: 200, X2: 780, Y2: 280}, "李四"},
		// band ends at 360 on a 2400 high screen
		{"below band", uitree.Bounds{X1: 150, Y1: 400, X2: 400, Y2: 480}, ""},
		{"no bounds", uitree.Bounds{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := titleOnlySnapshot(textView("李四", tt.bounds))
			if got := NewWalker().ChatName(s); got != tt.want {
				t.Errorf("ChatName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractGroupChatSender(t *testing.T) {
	s := chatSnapshot("项目群(12)",
		row(
			textView("李四", uitree.Bounds{X1: 150, Y1: 380, X2: 300, Y2: 400}),
			textView("今晚开会吗", uitree.Bounds{X1: 150, Y1: 400, X2: 500, Y2: 480}),
		),
	)
	msgs := NewWalker().Collect(s)

	var found bool
	for _, m := range msgs {
		if m.Content == "今晚开会吗" {
			found = true
			if !m.IsGroupChat || m.Sender != "李四" {
				t.Errorf("group message = %+v", m)
			}
		}
	}
	if !found {
		t.Fatalf("message not extracted: %+v", msgs)
	}
}

func TestSenderRules(t *testing.T) {
	long := "这是一个非常非常非常非常非常非常长的名字啊"
	parent := &uitree.Node{Children: []*uitree.Node{
		{Text: "时间：12:00"},
		{Text: long},
		{Text: "消息"},
		{Text: "王五"},
	}}
	s := uitree.New(parent, "", "", time.Now())
	var msg *uitree.Node
	for n := range s.All() {
		if n.Text == "消息" {
			msg = n
		}
	}
	if got := senderOf(msg); got != "王五" {
		t.Errorf("senderOf = %q, want 王五", got)
	}
}

func TestGroupByAvatars(t *testing.T) {
	avatar := func() *uitree.Node { return &uitree.Node{ResourceID: IDAvatar, Class: "android.widget.ImageView"} }
	s := chatSnapshot("同事", row(avatar()), row(avatar()), row(avatar()))
	w := NewWalker()
	if !w.IsGroupChat(s, "同事") {
		t.Error("three avatars should mean group chat")
	}
	s = chatSnapshot("同事", row(avatar()), row(avatar()))
	if w.IsGroupChat(s, "同事") {
		t.Error("two avatars should not mean group chat")
	}
}

func TestExtractIntraScanDedup(t *testing.T) {
	b := uitree.Bounds{X1: 150, Y1: 400, X2: 400, Y2: 480}
	s := chatSnapshot("张三",
		row(textView("好的", b)),
		row(textView("好的", b)),
		row(textView("好的", b)),
	)
	seen := map[Fingerprint]int{}
	for m := range NewWalker().Extract(s) {
		seen[m.Fingerprint()]++
	}
	for fp, c := range seen {
		if c != 1 {
			t.Errorf("fingerprint %v yielded %d times", fp, c)
		}
	}
}

func TestExtractRestartableAndEarlyStop(t *testing.T) {
	s := chatSnapshot("张三",
		row(textView("一", uitree.Bounds{X1: 150, Y1: 400, X2: 400, Y2: 480})),
		row(textView("二", uitree.Bounds{X1: 150, Y1: 500, X2: 400, Y2: 580})),
	)
	seq := NewWalker().Extract(s)

	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("early stop yielded %d", n)
	}

	var again []string
	for m := range seq {
		again = append(again, m.Content)
	}
	if len(again) != 2 {
		t.Errorf("second pass = %v, want both messages", again)
	}
}

func TestSwappableHeuristics(t *testing.T) {
	s := chatSnapshot("张三", row(textView("hi", uitree.Bounds{X1: 150, Y1: 400, X2: 400, Y2: 480})))
	w := NewWalker(
		WithSelfHeuristic(func(*uitree.Node, uitree.Bounds) bool { return true }),
		WithGroupHeuristic(func(string, *uitree.Snapshot, *Table[*uitree.Node]) bool { return true }),
	)
	msgs := w.Collect(s)
	if len(msgs) != 1 || !msgs[0].IsSelf || !msgs[0].IsGroupChat {
		t.Errorf("custom heuristics not applied: %+v", msgs)
	}
}

func TestScriptRecognizer(t *testing.T) {
	src := `
function recognize(node) {
  if (node.text === "广告") return "chrome";
  if (matchRegex("^custom_", node.id)) return "chat-title";
  return "";
}`
	r, err := CompileScript("test.js", src)
	if err != nil {
		t.Fatalf("CompileScript: %v", err)
	}

	tbl := DefaultNodeRecognizers().With(r.Rules()...)
	ad := &uitree.Node{Text: "广告", Class: "android.widget.TextView"}
	if !tbl.Is(ad, TagChrome) {
		t.Error("script should mark 广告 as chrome")
	}
	title := &uitree.Node{Text: "x", ResourceID: "custom_title"}
	if !tbl.Is(title, TagChatTitle) {
		t.Error("script should mark custom_title as chat title")
	}

	s := chatSnapshot("张三", row(textView("广告", uitree.Bounds{X1: 150, Y1: 400, X2: 400, Y2: 480})))
	if msgs := NewWalker(WithNodeRecognizers(tbl)).Collect(s); len(msgs) != 0 {
		t.Errorf("script chrome should suppress message, got %+v", msgs)
	}
}

func TestScriptRecognizerErrors(t *testing.T) {
	if _, err := CompileScript("bad.js", "function ("); err == nil {
		t.Error("syntax error should fail")
	}
	if _, err := CompileScript("none.js", "var x = 1;"); err == nil {
		t.Error("missing recognize should fail")
	}

	r, err := CompileScript("loop.js", "function recognize(n) { while (true) {} }")
	if err != nil {
		t.Fatal(err)
	}
	if tag := r.Recognize(&uitree.Node{Text: "x"}); tag != "" {
		t.Errorf("runaway script should yield no tag, got %q", tag)
	}
}

func TestScriptSlotSwap(t *testing.T) {
	var slot ScriptSlot
	tbl := DefaultNodeRecognizers().With(slot.Rules()...)
	ad := &uitree.Node{Text: "广告", Class: "android.widget.TextView"}

	if tbl.Is(ad, TagChrome) {
		t.Fatal("empty slot should have no opinion")
	}

	r, err := CompileScript("a.js", `function recognize(n) { return n.text === "广告" ? "chrome" : ""; }`)
	if err != nil {
		t.Fatal(err)
	}
	slot.Set(r)
	if !slot.Loaded() || !tbl.Is(ad, TagChrome) {
		t.Error("table should follow the loaded script")
	}

	slot.Set(nil)
	if slot.Loaded() || tbl.Is(ad, TagChrome) {
		t.Error("cleared slot should drop the script rules")
	}
}
