package monitor

import (
	"iter"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"Aide/pkg/uitree"
)

// defaultScreenWidth is assumed when the snapshot carries no usable bounds.
const defaultScreenWidth = 1080

var groupNameSuffix = regexp.MustCompile(`\(\d+\)$`)

// GroupHeuristic decides whether the open chat is a group chat.
type GroupHeuristic func(chatName string, s *uitree.Snapshot, nodes *Table[*uitree.Node]) bool

// SelfHeuristic decides whether a message node was sent by the device owner.
type SelfHeuristic func(n *uitree.Node, screen uitree.Bounds) bool

// GroupByNameOrAvatars treats "name(12)" titles, or more than two avatars on
// screen, as a group chat. A UI-version-dependent guess.
func GroupByNameOrAvatars(chatName string, s *uitree.Snapshot, nodes *Table[*uitree.Node]) bool {
	if groupNameSuffix.MatchString(strings.TrimSpace(chatName)) {
		return true
	}
	avatars := s.Count(func(n *uitree.Node) bool { return nodes.Is(n, TagAvatar) })
	return avatars > 2
}

// SelfByRightAlignment treats bubbles centered right of the screen midpoint
// as sent by the owner. A UI-version-dependent guess.
func SelfByRightAlignment(n *uitree.Node, screen uitree.Bounds) bool {
	width := screen.Width()
	if width <= 0 {
		width = defaultScreenWidth
	}
	cx, _ := n.Bounds.Center()
	return cx > screen.X1+width/2
}

// Walker extracts messages from chat-screen snapshots. It keeps no state
// between calls.
type Walker struct {
	nodes   *Table[*uitree.Node]
	isGroup GroupHeuristic
	isSelf  SelfHeuristic
}

// WalkerOption customizes a Walker.
type WalkerOption func(*Walker)

func WithNodeRecognizers(t *Table[*uitree.Node]) WalkerOption {
	return func(w *Walker) { w.nodes = t }
}

func WithGroupHeuristic(h GroupHeuristic) WalkerOption {
	return func(w *Walker) { w.isGroup = h }
}

func WithSelfHeuristic(h SelfHeuristic) WalkerOption {
	return func(w *Walker) { w.isSelf = h }
}

func NewWalker(opts ...WalkerOption) *Walker {
	w := &Walker{
		nodes:   DefaultNodeRecognizers(),
		isGroup: GroupByNameOrAvatars,
		isSelf:  SelfByRightAlignment,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Recognizers exposes the node table the walker uses.
func (w *Walker) Recognizers() *Table[*uitree.Node] { return w.nodes }

// titleBand is the share of the screen height searched for a fallback title.
const titleBand = 0.15

// ChatName resolves the open chat's title: the dedicated title node first,
// then the first plain TextView in the top 15% of the screen.
func (w *Walker) ChatName(s *uitree.Snapshot) string {
	if n := w.titleNode(s); n != nil {
		return strings.TrimSpace(n.Text)
	}
	return ""
}

func (w *Walker) titleNode(s *uitree.Snapshot) *uitree.Node {
	if n := s.Find(func(n *uitree.Node) bool {
		return w.nodes.Is(n, TagChatTitle) && strings.TrimSpace(n.Text) != ""
	}); n != nil {
		return n
	}
	screen := s.Screen()
	if screen.Empty() {
		return nil
	}
	limit := screen.Y1 + int(float64(screen.Height())*titleBand)
	return s.Find(func(n *uitree.Node) bool {
		if !strings.HasSuffix(n.Class, "TextView") || strings.TrimSpace(n.Text) == "" || w.nodes.Is(n, TagChrome) {
			return false
		}
		_, cy := n.Bounds.Center()
		return !n.Bounds.Empty() && cy <= limit
	})
}

// IsGroupChat applies the group heuristic to the snapshot.
func (w *Walker) IsGroupChat(s *uitree.Snapshot, chatName string) bool {
	return w.isGroup(chatName, s, w.nodes)
}

func (w *Walker) isCandidate(n *uitree.Node) bool {
	if strings.TrimSpace(n.Text) == "" || n.Editable {
		return false
	}
	if w.nodes.Is(n, TagChrome) || w.nodes.Is(n, TagChatTitle) {
		return false
	}
	return w.nodes.Is(n, TagTextWidget)
}

// senderOf scans the node's siblings for a short, colon-free label that
// differs from the message itself.
func senderOf(n *uitree.Node) string {
	own := strings.TrimSpace(n.Text)
	for _, sib := range n.Siblings() {
		t := strings.TrimSpace(sib.Text)
		if t == "" || t == own {
			continue
		}
		if l := utf8.RuneCountInString(t); l < 1 || l > 20 {
			continue
		}
		if strings.ContainsAny(t, ":：") {
			continue
		}
		return t
	}
	return ""
}

// Extract yields the messages visible in s. Each call is an independent
// depth-first pass and never yields the same fingerprint twice.
func (w *Walker) Extract(s *uitree.Snapshot) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		if s.Root() == nil {
			return
		}
		title := w.titleNode(s)
		var chatName string
		if title != nil {
			chatName = strings.TrimSpace(title.Text)
		}
		group := w.IsGroupChat(s, chatName)
		screen := s.Screen()
		at := s.CapturedAt
		if at.IsZero() {
			at = time.Now()
		}

		seen := make(map[Fingerprint]struct{})
		for n := range s.All() {
			if n == title || !w.isCandidate(n) {
				continue
			}
			var sender string
			if group {
				sender = senderOf(n)
			}
			m := NewMessage(n.Text, sender, chatName, group, w.isSelf(n, screen), at)
			fp := m.Fingerprint()
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			if !yield(m) {
				return
			}
		}
	}
}

// Collect drains Extract into a slice.
func (w *Walker) Collect(s *uitree.Snapshot) []Message {
	var out []Message
	for m := range w.Extract(s) {
		out = append(out, m)
	}
	return out
}
