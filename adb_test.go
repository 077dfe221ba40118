package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeShell answers shell commands by prefix and records every call
type fakeShell struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func newFakeShell() *fakeShell {
	return &fakeShell{responses: make(map[string]string), errs: make(map[string]error)}
}

func (f *fakeShell) on(prefix, output string) *fakeShell {
	f.responses[prefix] = output
	return f
}

func (f *fakeShell) fail(prefix string, err error) *fakeShell {
	f.errs[prefix] = err
	return f
}

// Shell picks the longest matching prefix
func (f *fakeShell) Shell(ctx context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	best := ""
	for p := range f.errs {
		if strings.HasPrefix(cmd, p) && len(p) > len(best) {
			best = p
		}
	}
	if best != "" {
		return "", f.errs[best]
	}
	for p := range f.responses {
		if strings.HasPrefix(cmd, p) && len(p) > len(best) {
			best = p
		}
	}
	return f.responses[best], nil
}

func (f *fakeShell) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeShell) called(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

var errShell = errors.New("device offline")

func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"emulator-5554", false},
		{"1234567890ABCDEF", false},
		{"192.168.1.100:5555", false},
		{"adb-R5CT1234._adb-tls-connect._tcp.", false},
		{"", true},
		{"abc; rm -rf /", true},
		{"id with space", true},
		{strings.Repeat("a", 300), true},
	}
	for _, tt := range tests {
		err := ValidateDeviceID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateDeviceID(%q) = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}

func TestNewADBRejectsBadID(t *testing.T) {
	if _, err := NewADB("/usr/bin/adb", "bad id"); err == nil {
		t.Error("NewADB should validate the device id")
	}
	a, err := NewADB("/usr/bin/adb", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Shell(context.Background(), "echo"); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Shell without device = %v, want ErrNoDevice", err)
	}
}

func TestParseDevices(t *testing.T) {
	output := `* daemon not running; starting now at tcp:5037
* daemon started successfully
List of devices attached
R5CT1234ABC            device usb:1-1 product:a53xnaxx model:SM_A536B device:a53x transport_id:1
192.168.1.20:5555      device product:panther model:Pixel_7 device:panther transport_id:2
emulator-5554          offline
adb-XYZ._adb-tls-connect._tcp.  unauthorized

`
	devices := parseDevices(output)
	if len(devices) != 4 {
		t.Fatalf("got %d devices, want 4: %+v", len(devices), devices)
	}

	tests := []struct {
		i        int
		id       string
		state    string
		model    string
		product  string
		connType string
	}{
		{0, "R5CT1234ABC", "device", "SM_A536B", "a53xnaxx", "wired"},
		{1, "192.168.1.20:5555", "device", "Pixel_7", "panther", "wireless"},
		{2, "emulator-5554", "offline", "", "", "wired"},
		{3, "adb-XYZ._adb-tls-connect._tcp.", "unauthorized", "", "", "wireless"},
	}
	for _, tt := range tests {
		d := devices[tt.i]
		if d.ID != tt.id || d.State != tt.state || d.Model != tt.model || d.Product != tt.product || d.Type != tt.connType {
			t.Errorf("device %d = %+v", tt.i, d)
		}
	}
}

func TestEscapeForAdbInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"hello world", "hello%sworld"},
		{"a&b", `a\&b`},
		{`say "hi"`, `say%s\"hi\"`},
		{`c:\path`, `c:\\path`},
		{"$(id)", `\$\(id\)`},
	}
	for _, tt := range tests {
		if got := escapeForAdbInput(tt.in); got != tt.want {
			t.Errorf("escapeForAdbInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
