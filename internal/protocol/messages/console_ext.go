package messages

import (
	"fmt"
	"strings"

	"github.com/danmuck/conswire/internal/protocol"
)

// ReadReply is a console message that expects an operator reply of at most
// MaxReplyLength characters, correlated by MessageID.
type ReadReply struct {
	messageID      uint32
	source         string
	lines          []string
	maxReplyLength uint32
}

func NewReadReply(messageID uint32, source string, maxReplyLength uint32, lines ...string) ReadReply {
	return ReadReply{
		messageID:      messageID,
		source:         source,
		lines:          cloneLines(lines),
		maxReplyLength: maxReplyLength,
	}
}

func (m ReadReply) Category() protocol.Category { return protocol.CategoryConsole }
func (m ReadReply) Type() protocol.Type         { return protocol.TypeReadReply }

func (m ReadReply) MessageID() uint32      { return m.messageID }
func (m ReadReply) Source() string         { return m.source }
func (m ReadReply) Lines() []string        { return cloneLines(m.lines) }
func (m ReadReply) MaxReplyLength() uint32 { return m.maxReplyLength }

func (m ReadReply) Encode() ([]byte, error) {
	e := beginConsole(protocol.TypeReadReply)
	e.PutUint32(m.messageID)
	e.PutString(m.source)
	e.PutStringArray(m.lines)
	e.PutUint32(m.maxReplyLength)
	return e.Finish()
}

func (m ReadReply) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d-", m.messageID)
	if m.source != "" {
		b.WriteString(m.source)
		b.WriteString("*")
	}
	if len(m.lines) > 0 {
		b.WriteString(m.lines[0])
	}
	return b.String()
}

func decodeReadReply(d *protocol.Decoder) (protocol.Message, error) {
	id, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	source, err := d.String()
	if err != nil {
		return nil, err
	}
	lines, err := d.StringArray()
	if err != nil {
		return nil, err
	}
	maxLen, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return ReadReply{messageID: id, source: source, lines: cloneLines(lines), maxReplyLength: maxLen}, nil
}

// Status carries the two console status lines.
type Status struct {
	line1 string
	line2 string
}

func NewStatus(line1, line2 string) Status {
	return Status{line1: line1, line2: line2}
}

func (m Status) Category() protocol.Category { return protocol.CategoryConsole }
func (m Status) Type() protocol.Type         { return protocol.TypeStatus }

func (m Status) Line1() string { return m.line1 }
func (m Status) Line2() string { return m.line2 }

func (m Status) Encode() ([]byte, error) {
	e := beginConsole(protocol.TypeStatus)
	e.PutString(m.line1)
	e.PutString(m.line2)
	return e.Finish()
}

func (m Status) String() string {
	return m.line1 + " | " + m.line2
}

func decodeStatus(d *protocol.Decoder) (protocol.Message, error) {
	line1, err := d.String()
	if err != nil {
		return nil, err
	}
	line2, err := d.String()
	if err != nil {
		return nil, err
	}
	return Status{line1: line1, line2: line2}, nil
}
