package uitree

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// xmlNode mirrors one <node> element of a uiautomator dump.
type xmlNode struct {
	Text        string    `xml:"text,attr"`
	ResourceID  string    `xml:"resource-id,attr"`
	Class       string    `xml:"class,attr"`
	Package     string    `xml:"package,attr"`
	ContentDesc string    `xml:"content-desc,attr"`
	Clickable   string    `xml:"clickable,attr"`
	Focused     string    `xml:"focused,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Nodes       []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

// CleanDump trims adb noise around the XML document and repairs bare
// ampersands that uiautomator leaves unescaped.
func CleanDump(raw string) string {
	if i := strings.Index(raw, "<?xml"); i != -1 {
		raw = raw[i:]
	} else if i := strings.Index(raw, "<hierarchy"); i != -1 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, ">"); i != -1 && i < len(raw)-1 {
		raw = raw[:i+1]
	}

	// Go's regexp has no lookahead, so escape everything then undo the
	// double escapes.
	raw = strings.ReplaceAll(raw, "&", "&amp;")
	raw = strings.ReplaceAll(raw, "&amp;amp;", "&amp;")
	raw = strings.ReplaceAll(raw, "&amp;lt;", "&lt;")
	raw = strings.ReplaceAll(raw, "&amp;gt;", "&gt;")
	raw = strings.ReplaceAll(raw, "&amp;quot;", "&quot;")
	raw = strings.ReplaceAll(raw, "&amp;apos;", "&apos;")
	raw = strings.ReplaceAll(raw, "&amp;#", "&#")
	return raw
}

// FromXML converts a uiautomator dump into a Snapshot. Multiple top-level
// windows are wrapped in a synthetic container spanning their union.
func FromXML(raw string, windowClass string, at time.Time) (*Snapshot, error) {
	cleaned := CleanDump(raw)
	if cleaned == "" {
		return nil, ErrEmptyHierarchy
	}

	var h xmlHierarchy
	if err := xml.Unmarshal([]byte(cleaned), &h); err != nil {
		return nil, fmt.Errorf("failed to parse UI XML (length: %d): %w", len(cleaned), err)
	}
	if len(h.Nodes) == 0 {
		return nil, ErrEmptyHierarchy
	}

	var root *Node
	if len(h.Nodes) == 1 {
		root = convert(&h.Nodes[0], 0)
	} else {
		root = &Node{Class: "android.view.View", Package: h.Nodes[0].Package}
		for i := range h.Nodes {
			c := convert(&h.Nodes[i], 1)
			root.Children = append(root.Children, c)
			root.Bounds = union(root.Bounds, c.Bounds)
		}
	}
	return New(root, "", windowClass, at), nil
}

func convert(x *xmlNode, depth int) *Node {
	b, _ := ParseBounds(x.Bounds)
	n := &Node{
		Text:        x.Text,
		ContentDesc: x.ContentDesc,
		ResourceID:  x.ResourceID,
		Class:       x.Class,
		Package:     x.Package,
		Clickable:   x.Clickable == "true",
		Focused:     x.Focused == "true",
		Bounds:      b,
	}
	if depth >= MaxDepth {
		return n
	}
	for i := range x.Nodes {
		n.Children = append(n.Children, convert(&x.Nodes[i], depth+1))
	}
	return n
}

func union(a, b Bounds) Bounds {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	return Bounds{X1: min(a.X1, b.X1), Y1: min(a.Y1, b.Y1), X2: max(a.X2, b.X2), Y2: max(a.Y2, b.Y2)}
}
