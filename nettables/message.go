package nettables

import (
	"fmt"
)

// the protocol revision exchanged in the hello
const ProtocolRevision uint16 = 0x0200

type MessageType byte

const (
	MessageKeepAlive                  MessageType = 0x00
	MessageClientHello                MessageType = 0x01
	MessageProtocolVersionUnsupported MessageType = 0x02
	MessageServerHelloComplete        MessageType = 0x03
	MessageEntryAssignment            MessageType = 0x10
	MessageFieldUpdate                MessageType = 0x11
)

func (self MessageType) String() string {
	switch self {
	case MessageKeepAlive:
		return "KEEP_ALIVE"
	case MessageClientHello:
		return "CLIENT_HELLO"
	case MessageProtocolVersionUnsupported:
		return "PROTOCOL_VERSION_UNSUPPORTED"
	case MessageServerHelloComplete:
		return "SERVER_HELLO_COMPLETE"
	case MessageEntryAssignment:
		return "ENTRY_ASSIGNMENT"
	case MessageFieldUpdate:
		return "FIELD_UPDATE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(self))
	}
}

type Message struct {
	Type MessageType
	// CLIENT_HELLO and PROTOCOL_VERSION_UNSUPPORTED
	Revision uint16
	// ENTRY_ASSIGNMENT and FIELD_UPDATE
	Entry Entry
}

func KeepAliveMessage() *Message {
	return &Message{Type: MessageKeepAlive}
}

func ClientHelloMessage(revision uint16) *Message {
	return &Message{
		Type:     MessageClientHello,
		Revision: revision,
	}
}

func ProtocolVersionUnsupportedMessage(revision uint16) *Message {
	return &Message{
		Type:     MessageProtocolVersionUnsupported,
		Revision: revision,
	}
}

func ServerHelloCompleteMessage() *Message {
	return &Message{Type: MessageServerHelloComplete}
}

func EntryAssignmentMessage(entry Entry) *Message {
	return &Message{
		Type:  MessageEntryAssignment,
		Entry: entry,
	}
}

func FieldUpdateMessage(entry Entry) *Message {
	return &Message{
		Type:  MessageFieldUpdate,
		Entry: entry,
	}
}

func (self *Message) IsEntryMessage() bool {
	return self.Type == MessageEntryAssignment || self.Type == MessageFieldUpdate
}

func (self *Message) String() string {
	switch self.Type {
	case MessageClientHello, MessageProtocolVersionUnsupported:
		return fmt.Sprintf("%s(0x%04x)", self.Type, self.Revision)
	case MessageEntryAssignment, MessageFieldUpdate:
		return fmt.Sprintf("%s(%s)", self.Type, self.Entry)
	default:
		return self.Type.String()
	}
}

// the whole message is encoded or an error is returned
func (self *Message) Encode(w *WireWriter) error {
	w.PutUint8(byte(self.Type))
	switch self.Type {
	case MessageKeepAlive, MessageServerHelloComplete:
	case MessageClientHello, MessageProtocolVersionUnsupported:
		w.PutUint16(self.Revision)
	case MessageEntryAssignment:
		entry := self.Entry
		if entry.Type == nil {
			return fmt.Errorf("%w: entry %s has no type", ErrUnknownType, entry.Name)
		}
		if err := w.PutString(entry.Name); err != nil {
			return err
		}
		w.PutUint8(byte(entry.Type.Tag))
		w.PutUint16(uint16(entry.Id))
		w.PutUint16(uint16(entry.SequenceNumber))
		return entry.Type.Codec.Encode(w, entry.Value)
	case MessageFieldUpdate:
		entry := self.Entry
		if entry.Type == nil {
			return fmt.Errorf("%w: entry %s has no type", ErrUnknownType, entry.Name)
		}
		w.PutUint16(uint16(entry.Id))
		w.PutUint16(uint16(entry.SequenceNumber))
		return entry.Type.Codec.Encode(w, entry.Value)
	default:
		return fmt.Errorf("Cannot encode message type %s.", self.Type)
	}
	return nil
}

// MessageHandler receives the decoded messages of a connection
type MessageHandler interface {
	KeepAlive() error
	ClientHello(revision uint16) error
	ProtocolVersionUnsupported(revision uint16) error
	ServerHelloComplete() error
	OfferIncomingAssignment(entry Entry) error
	OfferIncomingUpdate(id EntryId, sequenceNumber SequenceNumber, value any) error
	// resolves the value type of a FIELD_UPDATE, which carries only the id
	EntryType(id EntryId) (*EntryType, bool)
}
