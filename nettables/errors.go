package nettables

import (
	"errors"
	"fmt"
)

// errors.go collects the error values of the nettables package
//
// error type checking:
//   an error can be checked if it is any of these using errors.Is(err, ErrType)

// used for wire content
var (
	ErrBadMessage = errors.New("bad message")
	ErrIOFailure  = errors.New("io failure")
)

// used for the handshake
var (
	ErrProtocolVersionMismatch = errors.New("protocol version mismatch")
)

// used for the type registry and values
var (
	ErrUnknownType      = errors.New("unknown type")
	ErrUnsupportedValue = errors.New("unsupported value")
	ErrValueTooLarge    = errors.New("value too large for the wire")
)

// used for entry stores
var (
	ErrUnknownKey   = errors.New("unknown key")
	ErrTypeMismatch = errors.New("key exists with a different type")
	ErrIdsExhausted = errors.New("entry ids exhausted")
)

// used for clients and servers
var (
	ErrClosed = errors.New("closed")
)

// ProtocolVersionError is returned by a client when the server does not
// support the client revision. It matches ErrProtocolVersionMismatch.
type ProtocolVersionError struct {
	// the revision the server supports
	ServerRevision uint16
}

func (self *ProtocolVersionError) Error() string {
	return fmt.Sprintf("%s: server supports revision 0x%04x", ErrProtocolVersionMismatch, self.ServerRevision)
}

func (self *ProtocolVersionError) Is(target error) bool {
	return target == ErrProtocolVersionMismatch
}

func badMessage(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrBadMessage, fmt.Sprintf(format, a...))
}

func ioFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrIOFailure, err)
}
