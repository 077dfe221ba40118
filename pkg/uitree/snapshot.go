// Package uitree holds immutable UI hierarchy snapshots captured from the
// device and the search helpers the automation engine runs over them.
package uitree

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
)

const (
	// MaxDepth bounds both snapshot construction and traversal.
	MaxDepth = 64
	// PrintDepth bounds Dump output.
	PrintDepth = 15
)

var ErrEmptyHierarchy = errors.New("empty ui hierarchy")

// Snapshot is a point-in-time copy of the visible hierarchy. It is built
// once per scan and only read afterwards.
type Snapshot struct {
	root        *Node
	size        int
	Package     string
	WindowClass string
	CapturedAt  time.Time
}

// New deep-copies root into a snapshot, links parents, and drops anything
// deeper than MaxDepth.
func New(root *Node, pkg, windowClass string, at time.Time) *Snapshot {
	s := &Snapshot{Package: pkg, WindowClass: windowClass, CapturedAt: at}
	if root != nil {
		s.root = s.copyNode(root, nil, 0, false)
		if s.Package == "" {
			s.Package = s.root.Package
		}
	}
	return s
}

func (s *Snapshot) copyNode(src, parent *Node, depth int, ancestorClickable bool) *Node {
	n := &Node{
		Text:              src.Text,
		ContentDesc:       src.ContentDesc,
		ResourceID:        src.ResourceID,
		Class:             src.Class,
		Package:           src.Package,
		Clickable:         src.Clickable,
		Editable:          src.Editable || strings.HasSuffix(src.Class, "EditText"),
		Focused:           src.Focused,
		Bounds:            src.Bounds,
		ClickableAncestor: ancestorClickable,
		parent:            parent,
		depth:             depth,
	}
	s.size++
	if depth >= MaxDepth {
		return n
	}
	if len(src.Children) > 0 {
		n.Children = make([]*Node, 0, len(src.Children))
		for _, c := range src.Children {
			if c == nil {
				continue
			}
			n.Children = append(n.Children, s.copyNode(c, n, depth+1, ancestorClickable || src.Clickable))
		}
	}
	return n
}

// Root returns the top node, nil for an empty snapshot.
func (s *Snapshot) Root() *Node {
	if s == nil {
		return nil
	}
	return s.root
}

// Len is the number of nodes held.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// Screen returns the root bounds, which uiautomator reports as the display.
func (s *Snapshot) Screen() Bounds {
	if s == nil || s.root == nil {
		return Bounds{}
	}
	return s.root.Bounds
}

// All yields every node depth-first, parents before children.
func (s *Snapshot) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if s == nil || s.root == nil {
			return
		}
		walk(s.root, yield)
	}
}

func walk(n *Node, yield func(*Node) bool) bool {
	if !yield(n) {
		return false
	}
	if n.depth >= MaxDepth {
		return true
	}
	for _, c := range n.Children {
		if !walk(c, yield) {
			return false
		}
	}
	return true
}

// Dump prints an indented outline of the tree, stopping at maxDepth.
func (s *Snapshot) Dump(w io.Writer, maxDepth int) {
	if s == nil || s.root == nil {
		return
	}
	if maxDepth <= 0 {
		maxDepth = PrintDepth
	}
	var dump func(n *Node)
	dump = func(n *Node) {
		if n.depth > maxDepth {
			return
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", n.depth), n)
		for _, c := range n.Children {
			dump(c)
		}
	}
	dump(s.root)
}
