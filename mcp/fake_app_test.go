package mcp

import (
	"errors"
	"sync"
	"time"

	"Aide/pkg/autoreply"
	"Aide/pkg/dialer"
	"Aide/pkg/executor"
)

var (
	errNoDevice    = errors.New("device not found")
	errStoreClosed = errors.New("store closed")
	errBadValue    = errors.New("invalid value")
)

// fakeApp is an in-memory AideApp. Every call is recorded with its
// arguments; errs makes a method fail by name.
type fakeApp struct {
	mu    sync.Mutex
	calls map[string][][]any
	errs  map[string]error

	devices    []Device
	dump       string
	status     EngineStatus
	messages   []MessageView
	attempts   *AttemptQueryResult
	rules      []Rule
	preview    ReplyPreview
	settings   map[string]string
	coords     map[string]Point
	dialResult *DialResult
	version    string
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		calls:    make(map[string][][]any),
		errs:     make(map[string]error),
		attempts: &AttemptQueryResult{Attempts: []AttemptRecord{}},
		settings: map[string]string{},
		coords:   map[string]Point{},
		version:  "1.0.0-test",
	}
}

func (f *fakeApp) record(method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method] = append(f.calls[method], args)
	return f.errs[method]
}

func (f *fakeApp) called(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method]) > 0
}

// lastArgs returns the arguments of the latest call to method, or nil.
func (f *fakeApp) lastArgs(method string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.calls[method]
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

func (f *fakeApp) GetDevices() ([]Device, error) {
	return f.devices, f.record("GetDevices")
}

func (f *fakeApp) DumpHierarchy(maxDepth int) (string, error) {
	return f.dump, f.record("DumpHierarchy", maxDepth)
}

func (f *fakeApp) GetEngineStatus() EngineStatus {
	f.record("GetEngineStatus")
	return f.status
}

func (f *fakeApp) RecentMessages(limit int) []MessageView {
	f.record("RecentMessages", limit)
	if limit < len(f.messages) {
		return f.messages[:limit]
	}
	return f.messages
}

func (f *fakeApp) QueryAttempts(query AttemptQuery) (*AttemptQueryResult, error) {
	return f.attempts, f.record("QueryAttempts", query)
}

func (f *fakeApp) ListRules() []Rule {
	f.record("ListRules")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Rule(nil), f.rules...)
}

func (f *fakeApp) SaveRule(rule Rule) error {
	if err := f.record("SaveRule", rule); err != nil {
		return err
	}
	f.mu.Lock()
	f.rules = autoreply.Upsert(f.rules, rule)
	f.mu.Unlock()
	return nil
}

func (f *fakeApp) RemoveRule(id string) (bool, error) {
	if err := f.record("RemoveRule", id); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var found bool
	f.rules, found = autoreply.Remove(f.rules, id)
	return found, nil
}

func (f *fakeApp) ResetRules() error {
	if err := f.record("ResetRules"); err != nil {
		return err
	}
	f.mu.Lock()
	f.rules = autoreply.DefaultRules()
	f.mu.Unlock()
	return nil
}

func (f *fakeApp) PreviewReply(content, chatName string, group bool) ReplyPreview {
	f.record("PreviewReply", content, chatName, group)
	return f.preview
}

func (f *fakeApp) GetSetting(key string) (string, bool) {
	f.record("GetSetting", key)
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.settings[key]
	return v, ok
}

func (f *fakeApp) SetSetting(key, value string) error {
	if err := f.record("SetSetting", key, value); err != nil {
		return err
	}
	f.mu.Lock()
	f.settings[key] = value
	f.mu.Unlock()
	return nil
}

func (f *fakeApp) GetCoordinates() map[string]Point {
	f.record("GetCoordinates")
	return f.coords
}

func (f *fakeApp) Dial(contact string, video bool) (*DialResult, error) {
	return f.dialResult, f.record("Dial", contact, video)
}

func (f *fakeApp) GetAppVersion() string {
	f.record("GetAppVersion")
	return f.version
}

func sampleDevice(id string) Device {
	return Device{ID: id, Serial: id, State: "device", Model: "Pixel 7", Type: "wired"}
}

func sampleRule(id string, keywords ...string) Rule {
	return Rule{
		ID:        id,
		Keywords:  keywords,
		Reply:     "auto reply for " + id,
		MatchType: autoreply.MatchContains,
		Scope:     autoreply.ScopeAll,
		Priority:  1,
		Enabled:   true,
	}
}

func sampleMessage(chat, content string) MessageView {
	return MessageView{
		ID:        chat + ":" + content,
		Content:   content,
		ChatName:  chat,
		Type:      "TEXT",
		Timestamp: time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local).UnixMilli(),
	}
}

func placedCall(contact string, video bool) *DialResult {
	var steps []dialer.StepResult
	for _, s := range []string{dialer.StepOpen, dialer.StepSearch, dialer.StepInput} {
		steps = append(steps, dialer.StepResult{Step: s, Outcome: executor.OutcomeSucceeded, Winner: "test"})
	}
	return &DialResult{Contact: contact, Video: video, Steps: steps, Placed: true}
}
