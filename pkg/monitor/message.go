// Package monitor turns UI snapshots of the chat app into typed message
// events. Every heuristic lives in a recognizer table so it can be revised
// without touching the engine.
package monitor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// MessageType classifies message content.
type MessageType string

const (
	TypeText      MessageType = "text"
	TypeImage     MessageType = "image"
	TypeVoice     MessageType = "voice"
	TypeVideo     MessageType = "video"
	TypeVideoCall MessageType = "videoCall"
	TypeVoiceCall MessageType = "voiceCall"
	TypeRedPacket MessageType = "redPacket"
	TypeTransfer  MessageType = "transfer"
	TypeLocation  MessageType = "location"
	TypeFile      MessageType = "file"
	TypeLink      MessageType = "link"
	TypeUnknown   MessageType = "unknown"
)

// IsCall reports whether the content reads like a call invitation.
func (t MessageType) IsCall() bool {
	return t == TypeVideoCall || t == TypeVoiceCall
}

// Fingerprint identifies "the same message" across repeated scans. It is
// only unique within the history retention window.
type Fingerprint struct {
	Content  string
	Sender   string
	ChatName string
}

func (f Fingerprint) String() string {
	return f.Content + "|" + f.Sender + "|" + f.ChatName
}

// ID is a short stable digest of the fingerprint.
func (f Fingerprint) ID() string {
	sum := sha1.Sum([]byte(f.String()))
	return hex.EncodeToString(sum[:8])
}

// Message is one extracted chat message. Immutable once created.
type Message struct {
	ID          string      `json:"id"`
	Content     string      `json:"content"`
	Sender      string      `json:"sender,omitempty"`
	ChatName    string      `json:"chatName,omitempty"`
	IsGroupChat bool        `json:"isGroupChat"`
	IsSelf      bool        `json:"isSelf"`
	Timestamp   time.Time   `json:"timestamp"`
	Type        MessageType `json:"type"`
}

func (m Message) Fingerprint() Fingerprint {
	return Fingerprint{Content: m.Content, Sender: m.Sender, ChatName: m.ChatName}
}

// Contact is who the message is attributed to: the sender, else the chat.
func (m Message) Contact() string {
	if m.Sender != "" {
		return m.Sender
	}
	return m.ChatName
}

// NewMessage fills ID and Type from the content and context.
func NewMessage(content, sender, chatName string, group, self bool, at time.Time) Message {
	content = strings.TrimSpace(content)
	m := Message{
		Content:     content,
		Sender:      sender,
		ChatName:    chatName,
		IsGroupChat: group,
		IsSelf:      self,
		Timestamp:   at,
		Type:        ClassifyContent(content),
	}
	m.ID = m.Fingerprint().ID()
	return m
}
