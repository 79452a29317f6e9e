package core

import (
	"fmt"
	"strings"
	"time"
)

type ContentKind string

const (
	KindText    ContentKind = "text"
	KindUnicode ContentKind = "unicode"
	KindBinary  ContentKind = "binary"
)

func ParseContentKind(value string) (ContentKind, error) {
	kind := ContentKind(strings.TrimSpace(strings.ToLower(value)))
	if !kind.Valid() {
		return "", fmt.Errorf("core: unsupported message type %q", value)
	}
	return kind, nil
}

func (k ContentKind) Valid() bool {
	switch k {
	case KindText, KindUnicode, KindBinary:
		return true
	default:
		return false
	}
}

func (k ContentKind) Textual() bool {
	return k == KindText || k == KindUnicode
}

// Content is the payload of a message. It is either TextContent or
// BinaryContent, selected by the message ContentKind.
type Content interface {
	contentKind() string
}

type TextContent struct {
	Text string
}

func (TextContent) contentKind() string { return "text" }

type BinaryContent struct {
	data []byte
	udh  []byte
}

func NewBinaryContent(data []byte, udh []byte) BinaryContent {
	return BinaryContent{data: cloneBytes(data), udh: cloneBytes(udh)}
}

func (BinaryContent) contentKind() string { return "binary" }

func (c BinaryContent) Data() []byte { return cloneBytes(c.data) }

func (c BinaryContent) UDH() []byte { return cloneBytes(c.udh) }

// Fragment identifies one part of a concatenated SMS.
type Fragment struct {
	Ref   string
	Index int
	Total int
}

func (f Fragment) Validate() error {
	if strings.TrimSpace(f.Ref) == "" {
		return fmt.Errorf("core: fragment ref is required")
	}
	if f.Total < 1 {
		return fmt.Errorf("core: fragment total must be >= 1, got %d", f.Total)
	}
	if f.Index < 1 || f.Index > f.Total {
		return fmt.Errorf("core: fragment index %d out of range 1..%d", f.Index, f.Total)
	}
	return nil
}

// Reassembly describes the fragments a merged message was built from.
// It is informational and never persisted.
type Reassembly struct {
	Ref        string
	Parts      int
	MessageIDs []string
}

type InboundMessage struct {
	MessageID         string
	Sender            string
	Recipient         string
	Kind              ContentKind
	ProviderTimestamp time.Time
	ReceivedTimestamp time.Time
	Keyword           string
	Content           Content
	Fragment          *Fragment
	Reassembly        *Reassembly
}

func (m InboundMessage) IsFragment() bool {
	return m.Fragment != nil
}

// Text returns the textual content, or "" for binary messages.
func (m InboundMessage) Text() string {
	if content, ok := m.Content.(TextContent); ok {
		return content.Text
	}
	return ""
}

func (m InboundMessage) Binary() (BinaryContent, bool) {
	content, ok := m.Content.(BinaryContent)
	return content, ok
}

func (m InboundMessage) Clone() InboundMessage {
	cloned := m
	if m.Fragment != nil {
		fragment := *m.Fragment
		cloned.Fragment = &fragment
	}
	if m.Reassembly != nil {
		reassembly := *m.Reassembly
		reassembly.MessageIDs = append([]string(nil), m.Reassembly.MessageIDs...)
		cloned.Reassembly = &reassembly
	}
	if binary, ok := m.Content.(BinaryContent); ok {
		cloned.Content = NewBinaryContent(binary.data, binary.udh)
	}
	return cloned
}

func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("core: message id is required")
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("core: unsupported message type %q", m.Kind)
	}
	if m.Fragment != nil {
		if err := m.Fragment.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func cloneBytes(input []byte) []byte {
	if input == nil {
		return nil
	}
	return append([]byte(nil), input...)
}
