package uitree

import "strings"

// ========================================
// Element finding
// ========================================

// Predicate reports whether a node matches.
type Predicate func(n *Node) bool

// Find returns the first node in depth-first order matching pred.
func (s *Snapshot) Find(pred Predicate) *Node {
	for n := range s.All() {
		if pred(n) {
			return n
		}
	}
	return nil
}

// FindAll collects every node matching pred.
func (s *Snapshot) FindAll(pred Predicate) []*Node {
	var out []*Node
	for n := range s.All() {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

// Count returns the number of matching nodes.
func (s *Snapshot) Count(pred Predicate) int {
	c := 0
	for n := range s.All() {
		if pred(n) {
			c++
		}
	}
	return c
}

// FindAtPoint returns the deepest node containing (x, y).
func (s *Snapshot) FindAtPoint(x, y int) *Node {
	var found *Node
	for n := range s.All() {
		if !n.Bounds.Empty() && n.Bounds.Contains(x, y) {
			if found == nil || n.depth >= found.depth {
				found = n
			}
		}
	}
	return found
}

func ByID(id string) Predicate {
	return func(n *Node) bool { return n.HasID(id) }
}

func ByText(text string) Predicate {
	return func(n *Node) bool { return strings.TrimSpace(n.Text) == text }
}

func ByDesc(desc string) Predicate {
	return func(n *Node) bool { return strings.TrimSpace(n.ContentDesc) == desc }
}

// ByClass matches the full class name or its simple name.
func ByClass(class string) Predicate {
	return func(n *Node) bool {
		return n.Class == class || strings.HasSuffix(n.Class, "."+class)
	}
}

// TextContains matches text or description containing sub.
func TextContains(sub string) Predicate {
	return func(n *Node) bool {
		return strings.Contains(n.Text, sub) || strings.Contains(n.ContentDesc, sub)
	}
}

func And(preds ...Predicate) Predicate {
	return func(n *Node) bool {
		for _, p := range preds {
			if !p(n) {
				return false
			}
		}
		return true
	}
}

func Clickable(n *Node) bool { return n.Clickable }

// ========================================
// Label targeting
// ========================================

// MaxParentLevels bounds the clickable-ancestor search.
const MaxParentLevels = 10

// FindClickableByLabel locates something tappable for label, trying in order
// a clickable node with that text, a text node's clickable ancestor, and a
// clickable node with that description. The second result is the node whose
// bounds best describe the target on screen.
func (s *Snapshot) FindClickableByLabel(label string) (target *Node, anchor *Node) {
	if n := s.Find(And(Clickable, ByText(label))); n != nil {
		return n, n
	}
	if t := s.Find(ByText(label)); t != nil {
		if p := t.ClickableParent(MaxParentLevels); p != nil {
			return p, t
		}
		// not clickable, but its position is still worth a gesture
		anchor = t
	}
	if n := s.Find(And(Clickable, ByDesc(label))); n != nil {
		return n, n
	}
	return nil, anchor
}

// CollectText concatenates every visible label, used for lexicon scans.
func (s *Snapshot) CollectText() string {
	var b strings.Builder
	for n := range s.All() {
		if l := n.Label(); l != "" {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
