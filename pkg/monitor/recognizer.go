package monitor

import (
	"regexp"
	"strings"

	"Aide/pkg/uitree"
)

// ========================================
// Recognizer tables
// ========================================

// Tag is what a recognizer says about its subject.
type Tag string

const (
	// node tags
	TagTextWidget  Tag = "text-widget"
	TagChrome      Tag = "chrome"
	TagChatTitle   Tag = "chat-title"
	TagAvatar      Tag = "avatar"
	TagInputField  Tag = "input-field"
	TagSendButton  Tag = "send-button"
	TagAcceptLabel Tag = "accept-label"

	// window tags
	TagChatScreen Tag = "chat-screen"
	TagCallScreen Tag = "call-screen"
)

// Rule pairs a predicate with the tag it assigns.
type Rule[T any] struct {
	Name  string
	Match func(T) bool
	Tag   Tag
}

// Table is an ordered list of rules; the first matching rule wins.
type Table[T any] struct {
	rules []Rule[T]
}

func NewTable[T any](rules ...Rule[T]) *Table[T] {
	return &Table[T]{rules: append([]Rule[T](nil), rules...)}
}

// With returns a copy with extra rules placed ahead of the existing ones.
func (t *Table[T]) With(rules ...Rule[T]) *Table[T] {
	out := make([]Rule[T], 0, len(rules)+len(t.rules))
	out = append(out, rules...)
	out = append(out, t.rules...)
	return &Table[T]{rules: out}
}

// Recognize returns the tag of the first matching rule.
func (t *Table[T]) Recognize(v T) (Tag, bool) {
	for _, r := range t.rules {
		if r.Match(v) {
			return r.Tag, true
		}
	}
	return "", false
}

// Is reports whether any rule carrying tag matches v.
func (t *Table[T]) Is(v T, tag Tag) bool {
	for _, r := range t.rules {
		if r.Tag == tag && r.Match(v) {
			return true
		}
	}
	return false
}

func (t *Table[T]) Rules() []Rule[T] {
	return append([]Rule[T](nil), t.rules...)
}

// ========================================
// WeChat identifiers
// ========================================

const (
	PackageWeChat = "com.tencent.mm"

	IDChatName    = "com.tencent.mm:id/kfs"
	IDInput       = "com.tencent.mm:id/bkk"
	IDSendButton  = "com.tencent.mm:id/b8k"
	IDAvatar      = "com.tencent.mm:id/b47"
	IDMessageText = "com.tencent.mm:id/b4c"

	SendLabel = "发送"
)

// ChromeLabels are fixed UI labels that never count as message text.
var ChromeLabels = []string{"微信", "返回", "更多", "发送", "语音", "表情", "相册"}

// CallActivities are window classes of the incoming call screen.
var CallActivities = []string{
	"com.tencent.mm.plugin.voip.ui.VideoActivity",
	"com.tencent.mm.plugin.voip.ui.VoipInputActivity",
	"com.tencent.mm.plugin.voip.ui.VoipUIActivity",
	"com.tencent.mm.plugin.voip.ui.VoiceInputActivity",
}

// AcceptLabels in the order they are tried when locating an answer control.
var AcceptLabels = []string{"接听", "接受", "视频接听", "语音接听", "接听视频", "接听语音", "answer", "accept"}

// CallLexicon are substrings that suggest an incoming call.
var CallLexicon = []string{"通话", "视频", "语音", "邀请", "来电", "call", "voip"}

func isChrome(text string) bool {
	text = strings.TrimSpace(text)
	for _, l := range ChromeLabels {
		if text == l {
			return true
		}
	}
	return false
}

// IsAcceptLabel matches the accept lexicon, ignoring case for latin labels.
func IsAcceptLabel(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return false
	}
	for _, a := range AcceptLabels {
		if label == a {
			return true
		}
	}
	return false
}

// MatchesCallLexicon reports whether text contains any call keyword.
func MatchesCallLexicon(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range CallLexicon {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// DefaultNodeRecognizers tag nodes of the chat screen.
func DefaultNodeRecognizers() *Table[*uitree.Node] {
	return NewTable(
		Rule[*uitree.Node]{Name: "chrome-label", Tag: TagChrome, Match: func(n *uitree.Node) bool {
			return isChrome(n.Text)
		}},
		Rule[*uitree.Node]{Name: "chat-title-id", Tag: TagChatTitle, Match: func(n *uitree.Node) bool {
			return n.HasID(IDChatName)
		}},
		Rule[*uitree.Node]{Name: "avatar-id", Tag: TagAvatar, Match: func(n *uitree.Node) bool {
			return n.HasID(IDAvatar)
		}},
		Rule[*uitree.Node]{Name: "input-id", Tag: TagInputField, Match: func(n *uitree.Node) bool {
			return n.HasID(IDInput)
		}},
		Rule[*uitree.Node]{Name: "input-edit-text", Tag: TagInputField, Match: func(n *uitree.Node) bool {
			return n.Editable
		}},
		Rule[*uitree.Node]{Name: "send-id", Tag: TagSendButton, Match: func(n *uitree.Node) bool {
			return n.HasID(IDSendButton)
		}},
		Rule[*uitree.Node]{Name: "accept-label", Tag: TagAcceptLabel, Match: func(n *uitree.Node) bool {
			return IsAcceptLabel(n.Text) || IsAcceptLabel(n.ContentDesc)
		}},
		Rule[*uitree.Node]{Name: "message-text-id", Tag: TagTextWidget, Match: func(n *uitree.Node) bool {
			return n.HasID(IDMessageText)
		}},
		Rule[*uitree.Node]{Name: "text-view", Tag: TagTextWidget, Match: func(n *uitree.Node) bool {
			return strings.HasSuffix(n.Class, "TextView")
		}},
	)
}

// DefaultWindowRecognizers tag foreground window class names.
func DefaultWindowRecognizers() *Table[string] {
	return NewTable(
		Rule[string]{Name: "voip-activity", Tag: TagCallScreen, Match: func(class string) bool {
			for _, a := range CallActivities {
				if strings.EqualFold(class, a) {
					return true
				}
			}
			return false
		}},
		Rule[string]{Name: "voip-substring", Tag: TagCallScreen, Match: func(class string) bool {
			return strings.Contains(strings.ToLower(class), "voip")
		}},
		Rule[string]{Name: "chatting-ui", Tag: TagChatScreen, Match: func(class string) bool {
			return strings.Contains(class, "ChattingUI") || strings.Contains(class, "LauncherUI")
		}},
	)
}

// ========================================
// Content types
// ========================================

var voiceDuration = regexp.MustCompile(`^\d+["'″]?$`)

func contentRule(t MessageType, match func(string) bool) Rule[string] {
	return Rule[string]{Name: string(t), Tag: Tag(t), Match: match}
}

func containsAny(vals ...string) func(string) bool {
	return func(s string) bool {
		for _, v := range vals {
			if strings.Contains(s, v) {
				return true
			}
		}
		return false
	}
}

var contentTypes = NewTable(
	contentRule(TypeImage, func(s string) bool { return strings.Contains(s, "[图片]") || s == "图片" }),
	contentRule(TypeVoice, func(s string) bool { return strings.Contains(s, "[语音]") || voiceDuration.MatchString(s) }),
	contentRule(TypeVideo, containsAny("[视频]")),
	contentRule(TypeVideoCall, containsAny("视频通话", "接听")),
	contentRule(TypeVoiceCall, containsAny("语音通话")),
	contentRule(TypeRedPacket, containsAny("[红包]", "微信红包")),
	contentRule(TypeTransfer, containsAny("[转账]")),
	contentRule(TypeLocation, containsAny("[位置]")),
	contentRule(TypeFile, containsAny("[文件]")),
	contentRule(TypeLink, func(s string) bool { return strings.HasPrefix(s, "http") || strings.Contains(s, "链接") }),
)

// ClassifyContent maps message text to a MessageType.
func ClassifyContent(content string) MessageType {
	content = strings.TrimSpace(content)
	if content == "" {
		return TypeUnknown
	}
	if tag, ok := contentTypes.Recognize(content); ok {
		return MessageType(tag)
	}
	return TypeText
}
