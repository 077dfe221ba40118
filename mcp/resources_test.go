package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// Helper to create a ReadResourceRequest
func makeResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// Helper to get text from resource contents
func getResourceText(contents []mcp.ResourceContents) string {
	if len(contents) == 0 {
		return ""
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); ok {
		return tc.Text
	}
	return ""
}

// ==================== aide://status ====================

func TestHandleStatusResource(t *testing.T) {
	mock := newFakeApp()
	mock.status = EngineStatus{Running: true, CallState: "IDLE", PendingTimers: 2}
	server := NewMCPServer(mock)

	contents, err := server.handleStatusResource(context.Background(), makeResourceRequest("aide://status"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var st EngineStatus
	if err := json.Unmarshal([]byte(getResourceText(contents)), &st); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}
	if !st.Running || st.CallState != "IDLE" || st.PendingTimers != 2 {
		t.Errorf("Unexpected status: %+v", st)
	}
	if tc := contents[0].(mcp.TextResourceContents); tc.MIMEType != "application/json" || tc.URI != "aide://status" {
		t.Errorf("Unexpected resource metadata: %+v", tc)
	}
}

// ==================== aide://rules ====================

func TestHandleRulesResource(t *testing.T) {
	mock := newFakeApp()
	mock.rules = []Rule{sampleRule("greet", "你好")}
	server := NewMCPServer(mock)

	contents, err := server.handleRulesResource(context.Background(), makeResourceRequest("aide://rules"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var rules []map[string]any
	if err := json.Unmarshal([]byte(getResourceText(contents)), &rules); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}
	if len(rules) != 1 || rules[0]["id"] != "greet" || rules[0]["isEnabled"] != true {
		t.Errorf("Unexpected rules: %v", rules)
	}
}

func TestHandleRulesResource_Empty(t *testing.T) {
	server := NewMCPServer(newFakeApp())

	contents, err := server.handleRulesResource(context.Background(), makeResourceRequest("aide://rules"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text := getResourceText(contents); text != "[]" {
		t.Errorf("Expected empty array, got %s", text)
	}
}

// ==================== aide://settings/{key} ====================

func TestHandleSettingResource(t *testing.T) {
	mock := newFakeApp()
	mock.settings["auto_reply_delay"] = "2000"
	server := NewMCPServer(mock)

	contents, err := server.handleSettingResource(context.Background(), makeResourceRequest("aide://settings/auto_reply_delay"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(getResourceText(contents)), &got); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}
	if got["key"] != "auto_reply_delay" || got["value"] != "2000" || got["set"] != true {
		t.Errorf("Unexpected setting: %v", got)
	}
}

func TestHandleSettingResource_InvalidURI(t *testing.T) {
	server := NewMCPServer(newFakeApp())

	for _, uri := range []string{"aide://settings/", "aide://other/x", "aide://settings/a/b"} {
		if _, err := server.handleSettingResource(context.Background(), makeResourceRequest(uri)); err == nil {
			t.Errorf("Expected error for %s", uri)
		}
	}
}
