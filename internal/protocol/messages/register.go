package messages

import (
	"github.com/danmuck/conswire/internal/protocol"
	"github.com/danmuck/conswire/internal/protocol/registry"
)

// SystemTable is the built-in system category dispatch.
func SystemTable() *registry.Table {
	return registry.NewTable(map[protocol.Type]registry.DecodeFunc{
		protocol.TypeHeartbeat: decodeHeartbeat,
	})
}

// ConsoleTable is the built-in console category dispatch. Read-reply, reset,
// status, solicited and unsolicited are reserved and decode as unknown types.
func ConsoleTable() *registry.Table {
	return registry.NewTable(map[protocol.Type]registry.DecodeFunc{
		protocol.TypeReadOnly: decodeReadOnly,
	})
}

// RegisterBuiltins installs the system and console tables into r.
func RegisterBuiltins(r *registry.Registry) error {
	if err := r.Register(protocol.CategorySystem, SystemTable()); err != nil {
		return err
	}
	return r.Register(protocol.CategoryConsole, ConsoleTable())
}

// RegisterConsoleExtensions adds the read-reply and status variants.
func RegisterConsoleExtensions(r *registry.Registry) error {
	if err := r.RegisterType(protocol.CategoryConsole, protocol.TypeReadReply, decodeReadReply); err != nil {
		return err
	}
	return r.RegisterType(protocol.CategoryConsole, protocol.TypeStatus, decodeStatus)
}

// NewRegistry returns a registry holding the built-in variants.
func NewRegistry() *registry.Registry {
	r := registry.New()
	// tables are non-nil, Register cannot fail
	_ = RegisterBuiltins(r)
	return r
}
