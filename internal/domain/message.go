package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// MessageKind classifies a chat message. The set is closed.
type MessageKind int

const (
	KindText MessageKind = iota + 1
	KindImage
	KindFile
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Message is a single entry read from or written to the chat surface.
// Content is literal text for KindText, and a filesystem path for
// KindImage and KindFile.
//
// Ref optionally identifies the chat entry a message was read from. Images
// are re-downloaded under a new file name, so the surface sets Ref to keep
// their fingerprint stable.
type Message struct {
	Kind    MessageKind
	Content string
	Ref     string
}

func TextMessage(text string) Message  { return Message{Kind: KindText, Content: text} }
func ImageMessage(path string) Message { return Message{Kind: KindImage, Content: path} }
func FileMessage(path string) Message  { return Message{Kind: KindFile, Content: path} }

// Answerable reports whether the message kind can be turned into a question.
func (m Message) Answerable() bool {
	return m.Kind == KindText || m.Kind == KindImage
}

// Fingerprint returns the duplicate-suppression key over (kind, content),
// or over (kind, ref) when the message carries an entry ref.
func (m Message) Fingerprint() string {
	key, tag := m.Content, byte(0)
	if m.Ref != "" {
		key, tag = m.Ref, 1
	}
	h := sha256.New()
	h.Write([]byte(m.Kind.String()))
	h.Write([]byte{tag})
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
