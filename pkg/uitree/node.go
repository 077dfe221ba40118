package uitree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ========================================
// Bounds
// ========================================

var boundsPattern = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// Bounds is a node's on-screen rectangle in pixels.
type Bounds struct {
	X1, Y1, X2, Y2 int
}

// ParseBounds parses Android bounds string "[x1,y1][x2,y2]"
func ParseBounds(s string) (Bounds, error) {
	m := boundsPattern.FindStringSubmatch(s)
	if len(m) != 5 {
		return Bounds{}, fmt.Errorf("invalid bounds format: %s", s)
	}
	x1, _ := strconv.Atoi(m[1])
	y1, _ := strconv.Atoi(m[2])
	x2, _ := strconv.Atoi(m[3])
	y2, _ := strconv.Atoi(m[4])
	return Bounds{X1: x1, Y1: y1, X2: x2, Y2: y2}, nil
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X1 + (b.X2-b.X1)/2, b.Y1 + (b.Y2-b.Y1)/2
}

// Contains checks if point (x, y) is inside the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X1 && x <= b.X2 && y >= b.Y1 && y <= b.Y2
}

func (b Bounds) Width() int  { return b.X2 - b.X1 }
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// Area returns the area of the bounds rectangle
func (b Bounds) Area() int {
	return b.Width() * b.Height()
}

// Empty reports whether the rectangle has no area.
func (b Bounds) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b.X1, b.Y1, b.X2, b.Y2)
}

// ========================================
// Node
// ========================================

// Node is one element of a Snapshot. Nodes are owned by their snapshot and
// must not be modified once the snapshot is built.
type Node struct {
	Text        string
	ContentDesc string
	ResourceID  string
	Class       string
	Package     string
	Clickable   bool
	Editable    bool
	Focused     bool
	Bounds      Bounds
	Children    []*Node

	// ClickableAncestor is set when any ancestor is clickable.
	ClickableAncestor bool

	parent *Node
	depth  int
}

// Parent returns the enclosing node, nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Depth is the distance from the snapshot root.
func (n *Node) Depth() int { return n.depth }

// Label returns the text, falling back to the content description.
func (n *Node) Label() string {
	if t := strings.TrimSpace(n.Text); t != "" {
		return t
	}
	return strings.TrimSpace(n.ContentDesc)
}

// HasID matches a full resource id or its short ":id/<name>" suffix.
func (n *Node) HasID(id string) bool {
	if id == "" || n.ResourceID == "" {
		return false
	}
	return n.ResourceID == id || strings.HasSuffix(n.ResourceID, ":id/"+id)
}

// ClickableParent walks up at most maxLevels ancestors looking for a
// clickable node. The node itself is returned when it is clickable.
func (n *Node) ClickableParent(maxLevels int) *Node {
	cur := n
	for level := 0; cur != nil && level <= maxLevels; level++ {
		if cur.Clickable {
			return cur
		}
		cur = cur.parent
	}
	return nil
}

// Siblings returns the other children of this node's parent.
func (n *Node) Siblings() []*Node {
	if n.parent == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.parent.Children))
	for _, c := range n.parent.Children {
		if c != n {
			out = append(out, c)
		}
	}
	return out
}

func (n *Node) String() string {
	return fmt.Sprintf("%s text=%q desc=%q id=%q clickable=%v %s",
		n.Class, n.Text, n.ContentDesc, n.ResourceID, n.Clickable, n.Bounds)
}
