package nettables

import (
	"context"
	"fmt"
)

// ServerAdapter runs the server side of one connection.
// It waits for CLIENT_HELLO, replays the store, then relays changes both ways.
type ServerAdapter struct {
	*adapter

	store    *ServerStore
	revision uint16

	onEstablished func(adapter *ServerAdapter)
}

func NewServerAdapter(
	ctx context.Context,
	connection *Connection,
	store *ServerStore,
	settings *ServerSettings,
	onEstablished func(adapter *ServerAdapter),
	onClose func(adapter *ServerAdapter, err error),
) *ServerAdapter {
	serverAdapter := &ServerAdapter{
		store:         store,
		revision:      settings.ProtocolRevision,
		onEstablished: onEstablished,
	}
	serverAdapter.adapter = newAdapter(
		ctx,
		connection,
		&settings.ConnectionSettings,
		ConnectionStateAwaitingHello,
		"sa",
		func(err error) {
			if onClose != nil {
				onClose(serverAdapter, err)
			}
		},
	)
	go serverAdapter.watch()
	go serverAdapter.readLoop(serverAdapter)
	go serverAdapter.writeLoop()
	return serverAdapter
}

func (self *ServerAdapter) KeepAlive() error {
	self.traceLog("<- KEEP_ALIVE")
	return nil
}

func (self *ServerAdapter) ClientHello(revision uint16) error {
	self.traceLog("<- CLIENT_HELLO(0x%04x)", revision)
	if self.State() != ConnectionStateAwaitingHello {
		return badMessage("unexpected CLIENT_HELLO in state %s", self.State())
	}
	if revision != self.revision {
		if err := self.connection.SendNow(ProtocolVersionUnsupportedMessage(self.revision)); err != nil {
			return err
		}
		return fmt.Errorf("%w: client revision 0x%04x", ErrProtocolVersionMismatch, revision)
	}
	if err := self.store.register(self); err != nil {
		return err
	}
	self.lifecycleLog("established %s", self.Remote())
	if self.onEstablished != nil {
		self.onEstablished(self)
	}
	self.RequestFlush()
	return nil
}

func (self *ServerAdapter) ProtocolVersionUnsupported(revision uint16) error {
	return badMessage("unexpected PROTOCOL_VERSION_UNSUPPORTED from a client")
}

func (self *ServerAdapter) ServerHelloComplete() error {
	return badMessage("unexpected SERVER_HELLO_COMPLETE from a client")
}

func (self *ServerAdapter) OfferIncomingAssignment(entry Entry) error {
	self.traceLog("<- %s", EntryAssignmentMessage(entry))
	if self.State() != ConnectionStateEstablished {
		return badMessage("ENTRY_ASSIGNMENT before CLIENT_HELLO")
	}
	return self.store.offerIncomingAssignment(self, entry)
}

func (self *ServerAdapter) OfferIncomingUpdate(id EntryId, sequenceNumber SequenceNumber, value any) error {
	self.traceLog("<- FIELD_UPDATE(id=%d, seq=%d)=%v", id, sequenceNumber, value)
	if self.State() != ConnectionStateEstablished {
		return badMessage("FIELD_UPDATE before CLIENT_HELLO")
	}
	return self.store.offerIncomingUpdate(self, id, sequenceNumber, value)
}

func (self *ServerAdapter) EntryType(id EntryId) (*EntryType, bool) {
	if self.State() != ConnectionStateEstablished {
		return nil, false
	}
	return self.store.entryType(id)
}
