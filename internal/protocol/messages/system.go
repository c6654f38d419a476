package messages

import "github.com/danmuck/conswire/internal/protocol"

func beginSystem(typ protocol.Type) *protocol.Encoder {
	return protocol.Begin(protocol.CategorySystem, typ)
}

// Heartbeat is the liveness message. It has no payload.
type Heartbeat struct{}

func NewHeartbeat() Heartbeat {
	return Heartbeat{}
}

func (Heartbeat) Category() protocol.Category { return protocol.CategorySystem }
func (Heartbeat) Type() protocol.Type         { return protocol.TypeHeartbeat }

func (Heartbeat) Encode() ([]byte, error) {
	return beginSystem(protocol.TypeHeartbeat).Finish()
}

func (Heartbeat) String() string {
	return "heartbeat"
}

// Trailing bytes are ignored.
func decodeHeartbeat(*protocol.Decoder) (protocol.Message, error) {
	return Heartbeat{}, nil
}
