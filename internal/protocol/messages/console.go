package messages

import (
	"slices"
	"strings"

	"github.com/danmuck/conswire/internal/protocol"
)

func beginConsole(typ protocol.Type) *protocol.Encoder {
	return protocol.Begin(protocol.CategoryConsole, typ)
}

// ReadOnly is a console notice. Exec-sourced notices carry an empty source.
type ReadOnly struct {
	source string
	lines  []string
}

func NewReadOnly(source string, lines ...string) ReadOnly {
	return ReadOnly{source: source, lines: cloneLines(lines)}
}

func (m ReadOnly) Category() protocol.Category { return protocol.CategoryConsole }
func (m ReadOnly) Type() protocol.Type         { return protocol.TypeReadOnly }

func (m ReadOnly) Source() string {
	return m.source
}

func (m ReadOnly) Lines() []string {
	return cloneLines(m.lines)
}

func (m ReadOnly) Encode() ([]byte, error) {
	e := beginConsole(protocol.TypeReadOnly)
	e.PutString(m.source)
	e.PutStringArray(m.lines)
	return e.Finish()
}

// String renders the first line for display: ">>" [source "*"] line.
func (m ReadOnly) String() string {
	var b strings.Builder
	b.WriteString(">>")
	if m.source != "" {
		b.WriteString(m.source)
		b.WriteString("*")
	}
	if len(m.lines) > 0 {
		b.WriteString(m.lines[0])
	}
	return b.String()
}

func decodeReadOnly(d *protocol.Decoder) (protocol.Message, error) {
	source, err := d.String()
	if err != nil {
		return nil, err
	}
	lines, err := d.StringArray()
	if err != nil {
		return nil, err
	}
	return ReadOnly{source: source, lines: cloneLines(lines)}, nil
}

// cloneLines copies lines, collapsing empty to nil so decoded and constructed
// values compare equal.
func cloneLines(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	return slices.Clone(lines)
}
