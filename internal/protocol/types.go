package protocol

import "fmt"

const (
	// Magic is the first word of every frame.
	Magic uint32 = 2200
	// HeaderLen is the fixed header size in bytes.
	HeaderLen = 16
	// lengthOffset is where total_length starts inside the header.
	lengthOffset = 4
)

// Category partitions the type code space.
type Category uint32

const (
	CategorySystem  Category = 0
	CategoryConsole Category = 1
)

func (c Category) String() string {
	switch c {
	case CategorySystem:
		return "system"
	case CategoryConsole:
		return "console"
	default:
		return fmt.Sprintf("category(%d)", uint32(c))
	}
}

// Type identifies a message variant inside its category.
type Type uint32

// System types.
const (
	TypeHeartbeat Type = 1
)

// Console types. Only read-only has a built-in variant; the rest are reserved.
const (
	TypeReadOnly    Type = 101
	TypeReadReply   Type = 102
	TypeReset       Type = 103
	TypeStatus      Type = 104
	TypeSolicited   Type = 105
	TypeUnsolicited Type = 106
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	TotalLength uint32
	Category    Category
	Type        Type
}

// PayloadLen returns the number of bytes following the header.
func (h Header) PayloadLen() int {
	if h.TotalLength < HeaderLen {
		return 0
	}
	return int(h.TotalLength) - HeaderLen
}

// Message is one decoded (or to be encoded) wire message.
// Implementations are immutable once constructed.
type Message interface {
	Category() Category
	Type() Type
	Encode() ([]byte, error)
}
