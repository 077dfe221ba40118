package monitor

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"Aide/pkg/uitree"
)

// ========================================
// Script recognizers
// ========================================

// scriptTimeout caps one recognize() call.
const scriptTimeout = 50 * time.Millisecond

// ScriptRecognizer evaluates a user script that defines
//
//	function recognize(node) { return "chrome" | "text-widget" | ... | "" }
//
// so that UI heuristics can be patched for a new app version without a
// rebuild. goja.Runtime is not goroutine safe; calls are serialized.
type ScriptRecognizer struct {
	mu   sync.Mutex
	name string
	vm   *goja.Runtime
	fn   goja.Callable

	// memo of the last node, tables ask about several tags in a row
	lastNode *uitree.Node
	lastTag  Tag
}

// LoadScript compiles the script at path.
func LoadScript(path string) (*ScriptRecognizer, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CompileScript(path, string(src))
}

// CompileScript compiles src; name is used in error messages.
func CompileScript(name, src string) (*ScriptRecognizer, error) {
	vm := goja.New()
	vm.Set("matchRegex", func(pattern, text string) bool {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	})

	if _, err := vm.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("script %s failed: %w", name, err)
	}
	val := vm.Get("recognize")
	if val == nil || goja.IsUndefined(val) {
		return nil, fmt.Errorf("script %s: recognize function not found", name)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("script %s: recognize is not a function", name)
	}
	return &ScriptRecognizer{name: name, vm: vm, fn: fn}, nil
}

func nodeObject(n *uitree.Node) map[string]interface{} {
	obj := map[string]interface{}{
		"text":      n.Text,
		"desc":      n.ContentDesc,
		"id":        n.ResourceID,
		"class":     n.Class,
		"package":   n.Package,
		"clickable": n.Clickable,
		"editable":  n.Editable,
		"depth":     n.Depth(),
		"bounds": map[string]int{
			"x1": n.Bounds.X1, "y1": n.Bounds.Y1, "x2": n.Bounds.X2, "y2": n.Bounds.Y2,
		},
	}
	if p := n.Parent(); p != nil {
		obj["parentClass"] = p.Class
	}
	return obj
}

// Recognize returns the tag the script assigns to n, "" for none. Script
// errors and timeouts count as no opinion.
func (r *ScriptRecognizer) Recognize(n *uitree.Node) (tag Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n == r.lastNode {
		return r.lastTag
	}
	defer func() {
		if rec := recover(); rec != nil {
			tag = ""
		}
		r.lastNode, r.lastTag = n, tag
	}()

	r.vm.ClearInterrupt()
	timer := time.AfterFunc(scriptTimeout, func() { r.vm.Interrupt("timeout") })
	defer timer.Stop()

	res, err := r.fn(goja.Undefined(), r.vm.ToValue(nodeObject(n)))
	if err != nil || res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return ""
	}
	return Tag(res.String())
}

// Rules wraps the script as table rules, one per node tag it may return.
func (r *ScriptRecognizer) Rules() []Rule[*uitree.Node] {
	tags := []Tag{TagChrome, TagChatTitle, TagAvatar, TagInputField, TagSendButton, TagAcceptLabel, TagTextWidget}
	rules := make([]Rule[*uitree.Node], 0, len(tags))
	for _, t := range tags {
		t := t
		rules = append(rules, Rule[*uitree.Node]{
			Name:  "script:" + r.name,
			Tag:   t,
			Match: func(n *uitree.Node) bool { return r.Recognize(n) == t },
		})
	}
	return rules
}

// ScriptSlot holds the currently loaded script so it can be swapped when
// the file changes. An empty slot has no opinion on any node.
type ScriptSlot struct {
	cur atomic.Pointer[ScriptRecognizer]
}

// Set replaces the script; nil empties the slot.
func (s *ScriptSlot) Set(r *ScriptRecognizer) { s.cur.Store(r) }

// Loaded reports whether a script is in the slot.
func (s *ScriptSlot) Loaded() bool { return s.cur.Load() != nil }

// Rules are bound to the slot rather than to one script, so a walker built
// once follows every later Set.
func (s *ScriptSlot) Rules() []Rule[*uitree.Node] {
	tags := []Tag{TagChrome, TagChatTitle, TagAvatar, TagInputField, TagSendButton, TagAcceptLabel, TagTextWidget}
	rules := make([]Rule[*uitree.Node], 0, len(tags))
	for _, t := range tags {
		t := t
		rules = append(rules, Rule[*uitree.Node]{
			Name: "script",
			Tag:  t,
			Match: func(n *uitree.Node) bool {
				r := s.cur.Load()
				return r != nil && r.Recognize(n) == t
			},
		})
	}
	return rules
}
