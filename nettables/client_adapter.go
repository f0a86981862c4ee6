package nettables

import (
	"context"
	"sync/atomic"
)

// ClientAdapter runs the client side of one connection.
// It sends CLIENT_HELLO, buffers the server replay until SERVER_HELLO_COMPLETE,
// then merges the replay into the store.
type ClientAdapter struct {
	*adapter

	store    *ClientStore
	revision uint16

	// the replay received before SERVER_HELLO_COMPLETE. Only the read goroutine uses it
	pendingAssignments []Entry
	established        atomic.Bool

	onEstablished func(adapter *ClientAdapter)
}

func NewClientAdapter(
	ctx context.Context,
	connection *Connection,
	store *ClientStore,
	settings *ClientSettings,
	onEstablished func(adapter *ClientAdapter),
	onClose func(adapter *ClientAdapter, err error),
) *ClientAdapter {
	clientAdapter := &ClientAdapter{
		store:              store,
		revision:           settings.ProtocolRevision,
		pendingAssignments: []Entry{},
		onEstablished:      onEstablished,
	}
	clientAdapter.adapter = newAdapter(
		ctx,
		connection,
		&settings.ConnectionSettings,
		ConnectionStateUnconnected,
		"ca",
		func(err error) {
			store.disconnect(clientAdapter)
			if onClose != nil {
				onClose(clientAdapter, err)
			}
		},
	)
	go clientAdapter.run()
	return clientAdapter
}

func (self *ClientAdapter) run() {
	go self.watch()

	if err := self.connection.SendNow(ClientHelloMessage(self.revision)); err != nil {
		self.closeWithError(err)
		return
	}
	if !self.setState(ConnectionStateHelloSent) {
		return
	}
	go self.writeLoop()
	self.readLoop(self)
}

// reports whether the handshake completed on this connection
func (self *ClientAdapter) WasEstablished() bool {
	return self.established.Load()
}

func (self *ClientAdapter) KeepAlive() error {
	self.traceLog("<- KEEP_ALIVE")
	return nil
}

func (self *ClientAdapter) ClientHello(revision uint16) error {
	return badMessage("unexpected CLIENT_HELLO from a server")
}

func (self *ClientAdapter) ProtocolVersionUnsupported(revision uint16) error {
	self.traceLog("<- PROTOCOL_VERSION_UNSUPPORTED(0x%04x)", revision)
	return &ProtocolVersionError{
		ServerRevision: revision,
	}
}

func (self *ClientAdapter) ServerHelloComplete() error {
	self.traceLog("<- SERVER_HELLO_COMPLETE")
	if self.State() != ConnectionStateHelloSent {
		return badMessage("unexpected SERVER_HELLO_COMPLETE in state %s", self.State())
	}
	assignments := self.pendingAssignments
	self.pendingAssignments = nil
	if err := self.store.handshakeComplete(self, assignments); err != nil {
		return err
	}
	self.established.Store(true)
	self.lifecycleLog("established %s (%d entries)", self.Remote(), len(assignments))
	if self.onEstablished != nil {
		self.onEstablished(self)
	}
	self.RequestFlush()
	return nil
}

func (self *ClientAdapter) OfferIncomingAssignment(entry Entry) error {
	self.traceLog("<- %s", EntryAssignmentMessage(entry))
	switch self.State() {
	case ConnectionStateHelloSent:
		self.pendingAssignments = append(self.pendingAssignments, entry)
		return nil
	case ConnectionStateEstablished:
		return self.store.offerIncomingAssignment(self, entry)
	default:
		return badMessage("unexpected ENTRY_ASSIGNMENT in state %s", self.State())
	}
}

func (self *ClientAdapter) OfferIncomingUpdate(id EntryId, sequenceNumber SequenceNumber, value any) error {
	self.traceLog("<- FIELD_UPDATE(id=%d, seq=%d)=%v", id, sequenceNumber, value)
	if self.State() != ConnectionStateEstablished {
		return badMessage("FIELD_UPDATE before SERVER_HELLO_COMPLETE")
	}
	return self.store.offerIncomingUpdate(self, id, sequenceNumber, value)
}

func (self *ClientAdapter) EntryType(id EntryId) (*EntryType, bool) {
	if self.State() != ConnectionStateEstablished {
		return nil, false
	}
	return self.store.entryType(id)
}
