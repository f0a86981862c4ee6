package nettables

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type remoteAddresser interface {
	RemoteAddr() net.Addr
}

// Connection frames protocol messages over one duplex byte stream.
// Reads happen on a single goroutine. Sends may come from any goroutine and
// are serialized by the write lock so a message is never torn.
type Connection struct {
	id       Id
	stream   io.ReadWriteCloser
	registry *TypeRegistry
	settings *ConnectionSettings

	reader     *bufio.Reader
	wireReader *WireReader

	writeLock     sync.Mutex
	writer        *bufio.Writer
	wireWriter    WireWriter
	lastWriteTime time.Time

	valid     atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewConnection(stream io.ReadWriteCloser, registry *TypeRegistry, settings *ConnectionSettings) *Connection {
	reader := bufio.NewReaderSize(stream, settings.ReadBufferSize)
	connection := &Connection{
		id:            NewId(),
		stream:        stream,
		registry:      registry,
		settings:      settings,
		reader:        reader,
		wireReader:    NewWireReader(reader),
		writer:        bufio.NewWriterSize(stream, settings.WriteBufferSize),
		lastWriteTime: time.Now(),
	}
	connection.valid.Store(true)
	return connection
}

func (self *Connection) Id() Id {
	return self.id
}

// the remote address when the stream has one
func (self *Connection) Remote() string {
	if v, ok := self.stream.(remoteAddresser); ok {
		if addr := v.RemoteAddr(); addr != nil {
			return addr.String()
		}
	}
	return ""
}

func (self *Connection) IsValid() bool {
	return self.valid.Load()
}

// Read consumes exactly one message and dispatches it to the handler.
// The message is decoded whole before the handler is called.
func (self *Connection) Read(handler MessageHandler) error {
	if !self.IsValid() {
		return ErrClosed
	}
	if v, ok := self.stream.(readDeadliner); ok && 0 < self.settings.ReadTimeout {
		v.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
	}

	b, err := self.reader.ReadByte()
	if err != nil {
		return ioFailure(err)
	}

	switch messageType := MessageType(b); messageType {
	case MessageKeepAlive:
		return handler.KeepAlive()

	case MessageClientHello:
		revision, err := self.wireReader.ReadUint16()
		if err != nil {
			return err
		}
		return handler.ClientHello(revision)

	case MessageProtocolVersionUnsupported:
		revision, err := self.wireReader.ReadUint16()
		if err != nil {
			return err
		}
		return handler.ProtocolVersionUnsupported(revision)

	case MessageServerHelloComplete:
		return handler.ServerHelloComplete()

	case MessageEntryAssignment:
		name, err := self.wireReader.ReadString()
		if err != nil {
			return err
		}
		tag, err := self.wireReader.ReadUint8()
		if err != nil {
			return err
		}
		id, err := self.wireReader.ReadUint16()
		if err != nil {
			return err
		}
		sequenceNumber, err := self.wireReader.ReadUint16()
		if err != nil {
			return err
		}
		entryType, err := self.registry.Lookup(TypeTag(tag))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadMessage, err)
		}
		value, err := entryType.Codec.Decode(self.wireReader)
		if err != nil {
			return err
		}
		return handler.OfferIncomingAssignment(Entry{
			Id:             EntryId(id),
			Name:           name,
			SequenceNumber: SequenceNumber(sequenceNumber),
			Type:           entryType,
			Value:          value,
		})

	case MessageFieldUpdate:
		id, err := self.wireReader.ReadUint16()
		if err != nil {
			return err
		}
		sequenceNumber, err := self.wireReader.ReadUint16()
		if err != nil {
			return err
		}
		entryType, ok := handler.EntryType(EntryId(id))
		if !ok {
			return badMessage("field update for unknown id %d", id)
		}
		value, err := entryType.Codec.Decode(self.wireReader)
		if err != nil {
			return err
		}
		return handler.OfferIncomingUpdate(EntryId(id), SequenceNumber(sequenceNumber), value)

	default:
		return badMessage("unknown message type 0x%02x", b)
	}
}

// Send buffers one message. An encode error leaves nothing on the stream and
// the connection stays usable. A write error is an io failure.
func (self *Connection) Send(message *Message) error {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	if !self.IsValid() {
		return ErrClosed
	}

	self.wireWriter.Reset()
	if err := message.Encode(&self.wireWriter); err != nil {
		return err
	}
	self.setWriteDeadline()
	if _, err := self.writer.Write(self.wireWriter.Bytes()); err != nil {
		return ioFailure(err)
	}
	self.lastWriteTime = time.Now()
	return nil
}

func (self *Connection) Flush() error {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	if !self.IsValid() {
		return ErrClosed
	}
	if self.writer.Buffered() == 0 {
		return nil
	}
	self.setWriteDeadline()
	if err := self.writer.Flush(); err != nil {
		return ioFailure(err)
	}
	return nil
}

// sends and flushes one message
func (self *Connection) SendNow(message *Message) error {
	if err := self.Send(message); err != nil {
		return err
	}
	return self.Flush()
}

func (self *Connection) LastWriteTime() time.Time {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	return self.lastWriteTime
}

func (self *Connection) setWriteDeadline() {
	if v, ok := self.stream.(writeDeadliner); ok && 0 < self.settings.WriteTimeout {
		v.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	}
}

// Close closes the stream exactly once.
// It does not take the write lock, so it unblocks a blocked write.
func (self *Connection) Close() error {
	self.closeOnce.Do(func() {
		self.valid.Store(false)
		self.closeErr = self.stream.Close()
	})
	return self.closeErr
}
