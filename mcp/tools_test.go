package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"Aide/pkg/autoreply"
)

// Helper to create a CallToolRequest with arguments
func makeToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// Helper to get text content from result
func getTextContent(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ==================== device_list ====================

func TestHandleDeviceList_Success(t *testing.T) {
	mock := newFakeApp()
	mock.devices = []Device{sampleDevice("device1"), sampleDevice("192.168.1.5:5555")}
	mock.devices[1].Type = "wireless"
	server := NewMCPServer(mock)

	result, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	text := getTextContent(result)
	for _, want := range []string{"device1", "2 device", "[wireless]", "Pixel 7"} {
		if !strings.Contains(text, want) {
			t.Errorf("Result should contain %q, got: %s", want, text)
		}
	}
}

func TestHandleDeviceList_NoDevices(t *testing.T) {
	server := NewMCPServer(newFakeApp())

	result, err := server.handleDeviceList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text := getTextContent(result); !strings.Contains(strings.ToLower(text), "no device") {
		t.Errorf("Result should indicate no devices, got: %s", text)
	}
}

func TestHandleDeviceList_Error(t *testing.T) {
	mock := newFakeApp()
	mock.errs["GetDevices"] = errNoDevice
	server := NewMCPServer(mock)

	if _, err := server.handleDeviceList(context.Background(), makeToolRequest(nil)); err == nil {
		t.Error("Expected error when GetDevices fails")
	}
}

// ==================== screen_dump ====================

func TestHandleScreenDump_DefaultDepth(t *testing.T) {
	mock := newFakeApp()
	mock.dump = "FrameLayout [0,0][1080,2400]"
	server := NewMCPServer(mock)

	result, err := server.handleScreenDump(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if getTextContent(result) != mock.dump {
		t.Errorf("Unexpected dump: %s", getTextContent(result))
	}
	call := mock.lastArgs("DumpHierarchy")
	if call == nil || call[0] != 15 {
		t.Errorf("Expected default depth 15, got %+v", call)
	}
}

func TestHandleScreenDump_Error(t *testing.T) {
	mock := newFakeApp()
	mock.errs["DumpHierarchy"] = errNoDevice
	server := NewMCPServer(mock)

	if _, err := server.handleScreenDump(context.Background(), makeToolRequest(map[string]interface{}{"max_depth": float64(3)})); err == nil {
		t.Error("Expected error when dump fails")
	}
}

// ==================== settings ====================

func TestHandleSettingsGet(t *testing.T) {
	mock := newFakeApp()
	mock.settings["auto_reply_delay"] = "1500"
	server := NewMCPServer(mock)

	tests := []struct {
		name    string
		args    map[string]interface{}
		want    string
		wantErr bool
	}{
		{"set", map[string]interface{}{"key": "auto_reply_delay"}, "auto_reply_delay = 1500", false},
		{"unset", map[string]interface{}{"key": "auto_answer_video"}, "not set", false},
		{"missing key", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleSettingsGet(context.Background(), makeToolRequest(tt.args))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(getTextContent(result), tt.want) {
				t.Errorf("got %q, want it to contain %q", getTextContent(result), tt.want)
			}
		})
	}
}

func TestHandleSettingsSet(t *testing.T) {
	mock := newFakeApp()
	server := NewMCPServer(mock)

	_, err := server.handleSettingsSet(context.Background(), makeToolRequest(map[string]interface{}{
		"key":   "auto_answer_video",
		"value": "true",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mock.settings["auto_answer_video"] != "true" {
		t.Errorf("setting not stored: %v", mock.settings)
	}

	if _, err := server.handleSettingsSet(context.Background(), makeToolRequest(map[string]interface{}{"key": "x"})); err == nil {
		t.Error("Expected error for missing value")
	}

	mock.errs["SetSetting"] = errBadValue
	if _, err := server.handleSettingsSet(context.Background(), makeToolRequest(map[string]interface{}{"key": "x", "value": "y"})); err == nil {
		t.Error("Expected error when SetSetting fails")
	}
}

func TestHandleCoordinatesList(t *testing.T) {
	mock := newFakeApp()
	mock.coords = map[string]Point{
		"plus_button":   {X: 1000, Y: 2300},
		"answer_button": {X: -1, Y: -1},
	}
	server := NewMCPServer(mock)

	result, err := server.handleCoordinatesList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	text := getTextContent(result)
	if !strings.Contains(text, "plus_button: (1000, 2300)") || !strings.Contains(text, "answer_button: not set") {
		t.Errorf("Unexpected listing: %s", text)
	}
	if strings.Index(text, "answer_button") > strings.Index(text, "plus_button") {
		t.Error("coordinates should be sorted by name")
	}
}

// ==================== call_dial ====================

// Without an active MCP session the confirmation request fails, so the
// phone must never be driven.
func TestHandleCallDial_RequiresConfirmation(t *testing.T) {
	mock := newFakeApp()
	mock.dialResult = placedCall("张三", true)
	server := NewMCPServer(mock)

	_, err := server.handleCallDial(context.Background(), makeToolRequest(map[string]interface{}{"contact": "张三"}))
	if err == nil {
		t.Error("Expected confirmation error without a session")
	}
	if mock.called("Dial") {
		t.Error("Dial must not run without confirmation")
	}
}

func TestHandleCallDial_MissingContact(t *testing.T) {
	mock := newFakeApp()
	server := NewMCPServer(mock)

	for _, args := range []map[string]interface{}{nil, {"contact": "   "}} {
		if _, err := server.handleCallDial(context.Background(), makeToolRequest(args)); err == nil {
			t.Errorf("Expected error for args %v", args)
		}
	}
	if mock.called("Dial") {
		t.Error("Dial should not be called")
	}
}

// ==================== engine ====================

func TestHandleEngineStatus(t *testing.T) {
	mock := newFakeApp()
	mock.status = EngineStatus{
		Running:          true,
		CallState:        "INCOMING",
		ActiveCaller:     "李四",
		AutoReplyEnabled: true,
		HistoryLen:       12,
		DroppedEvents:    3,
		LastWindowClass:  "com.tencent.mm.ui.LauncherUI",
	}
	server := NewMCPServer(mock)

	result, err := server.handleEngineStatus(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	text := getTextContent(result)
	for _, want := range []string{"running", "INCOMING", "李四", "12 messages", "Dropped events: 3", "LauncherUI"} {
		if !strings.Contains(text, want) {
			t.Errorf("status should contain %q, got: %s", want, text)
		}
	}
}

func TestHandleMessagesRecent(t *testing.T) {
	mock := newFakeApp()
	self := sampleMessage("张三", "好的")
	self.IsSelf = true
	group := sampleMessage("家人群", "晚饭吃什么")
	group.IsGroupChat = true
	group.Sender = "妈妈"
	mock.messages = []MessageView{sampleMessage("张三", "在吗"), self, group}
	server := NewMCPServer(mock)

	result, err := server.handleMessagesRecent(context.Background(), makeToolRequest(map[string]interface{}{"limit": float64(500)}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	call := mock.lastArgs("RecentMessages")
	if call == nil || call[0] != 100 {
		t.Errorf("limit should be capped at 100, got %+v", call)
	}
	text := getTextContent(result)
	for _, want := range []string{"3 message", "张三 in 张三", "me in 张三", "妈妈 in 家人群 [group]", "09:30:00"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing should contain %q, got: %s", want, text)
		}
	}
}

func TestHandleMessagesRecent_Empty(t *testing.T) {
	server := NewMCPServer(newFakeApp())

	result, _ := server.handleMessagesRecent(context.Background(), makeToolRequest(nil))
	if !strings.Contains(getTextContent(result), "No messages") {
		t.Errorf("got %q", getTextContent(result))
	}
}

func TestHandleAttemptsQuery(t *testing.T) {
	mock := newFakeApp()
	mock.attempts = &AttemptQueryResult{
		Attempts: []AttemptRecord{{ID: "a1", Kind: "answerCall", Outcome: "succeeded", Winner: "direct-node"}},
		Total:    1,
	}
	server := NewMCPServer(mock)

	result, err := server.handleAttemptsQuery(context.Background(), makeToolRequest(map[string]interface{}{
		"kinds":         "answerCall, sendReply",
		"since_minutes": float64(30),
		"limit":         float64(5),
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(getTextContent(result), "direct-node") {
		t.Errorf("Unexpected result: %s", getTextContent(result))
	}

	q := mock.lastArgs("QueryAttempts")[0].(AttemptQuery)
	if len(q.Kinds) != 2 || q.Kinds[1] != "sendReply" || q.Limit != 5 || q.StartTime == 0 {
		t.Errorf("Unexpected query: %+v", q)
	}
}

func TestHandleAttemptsQuery_Error(t *testing.T) {
	mock := newFakeApp()
	mock.errs["QueryAttempts"] = errStoreClosed
	server := NewMCPServer(mock)

	if _, err := server.handleAttemptsQuery(context.Background(), makeToolRequest(nil)); err == nil {
		t.Error("Expected error when the store fails")
	}
}

// ==================== rules ====================

func TestHandleRulesList(t *testing.T) {
	mock := newFakeApp()
	disabled := sampleRule("away", "在吗")
	disabled.Enabled = false
	mock.rules = []Rule{sampleRule("greet", "你好", "hello"), disabled}
	server := NewMCPServer(mock)

	result, err := server.handleRulesList(context.Background(), makeToolRequest(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	text := getTextContent(result)
	for _, want := range []string{"2 rule", "greet", "你好, hello", "disabled"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing should contain %q, got: %s", want, text)
		}
	}
}

func TestHandleRuleSave(t *testing.T) {
	mock := newFakeApp()
	server := NewMCPServer(mock)

	_, err := server.handleRuleSave(context.Background(), makeToolRequest(map[string]interface{}{
		"id":         "meeting",
		"keywords":   "开会, 会议 ,",
		"reply":      "我在开会，稍后回复",
		"match_type": "regex",
		"scope":      "private",
		"priority":   float64(5),
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(mock.rules) != 1 {
		t.Fatalf("rules = %+v", mock.rules)
	}
	r := mock.rules[0]
	if r.MatchType != autoreply.MatchRegex || r.Scope != autoreply.ScopePrivate || r.Priority != 5 || !r.Enabled {
		t.Errorf("Unexpected rule: %+v", r)
	}
	if len(r.Keywords) != 2 || r.Keywords[1] != "会议" {
		t.Errorf("keywords = %q", r.Keywords)
	}
}

func TestHandleRuleSave_Invalid(t *testing.T) {
	mock := newFakeApp()
	server := NewMCPServer(mock)

	tests := []map[string]interface{}{
		nil,
		{"id": "x", "keywords": "", "reply": "r"},
		{"id": "x", "keywords": "k", "reply": ""},
	}
	for _, args := range tests {
		if _, err := server.handleRuleSave(context.Background(), makeToolRequest(args)); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
	if mock.called("SaveRule") {
		t.Error("invalid rules must not be saved")
	}
}

func TestHandleRuleRemove(t *testing.T) {
	mock := newFakeApp()
	mock.rules = []Rule{sampleRule("greet", "你好")}
	server := NewMCPServer(mock)

	result, err := server.handleRuleRemove(context.Background(), makeToolRequest(map[string]interface{}{"id": "greet"}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(getTextContent(result), "Removed") || len(mock.rules) != 0 {
		t.Errorf("rule not removed: %s", getTextContent(result))
	}

	result, _ = server.handleRuleRemove(context.Background(), makeToolRequest(map[string]interface{}{"id": "greet"}))
	if !strings.Contains(getTextContent(result), "not found") {
		t.Errorf("second remove should report not found, got %s", getTextContent(result))
	}
}

func TestHandleRulesReset_RequiresConfirmation(t *testing.T) {
	mock := newFakeApp()
	mock.rules = []Rule{sampleRule("mine", "x")}
	server := NewMCPServer(mock)

	if _, err := server.handleRulesReset(context.Background(), makeToolRequest(nil)); err == nil {
		t.Error("Expected confirmation error without a session")
	}
	if mock.called("ResetRules") {
		t.Error("ResetRules must not run without confirmation")
	}
}

func TestHandleReplyPreview(t *testing.T) {
	tests := []struct {
		name    string
		preview ReplyPreview
		want    string
	}{
		{"match", ReplyPreview{Matched: true, RuleID: "greet", Reply: "你好！"}, "Rule greet would reply"},
		{"no match", ReplyPreview{}, "No rule matches"},
		{"skipped", ReplyPreview{Skip: autoreply.SkipBlocked}, "No reply: " + autoreply.SkipBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newFakeApp()
			mock.preview = tt.preview
			server := NewMCPServer(mock)

			result, err := server.handleReplyPreview(context.Background(), makeToolRequest(map[string]interface{}{
				"content":   "你好",
				"chat_name": "张三",
				"group":     true,
			}))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !strings.Contains(getTextContent(result), tt.want) {
				t.Errorf("got %q, want %q", getTextContent(result), tt.want)
			}
			call := mock.lastArgs("PreviewReply")
			if call[1] != "张三" || call[2] != true {
				t.Errorf("unexpected args %v", call)
			}
		})
	}
}
