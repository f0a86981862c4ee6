package nettables

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type ConnectionState int

const (
	ConnectionStateUnconnected ConnectionState = iota
	// client, CLIENT_HELLO sent and the server replay is in progress
	ConnectionStateHelloSent
	// server, waiting for CLIENT_HELLO
	ConnectionStateAwaitingHello
	ConnectionStateEstablished
	ConnectionStateClosed
)

func (self ConnectionState) String() string {
	switch self {
	case ConnectionStateUnconnected:
		return "unconnected"
	case ConnectionStateHelloSent:
		return "hello_sent"
	case ConnectionStateAwaitingHello:
		return "awaiting_hello"
	case ConnectionStateEstablished:
		return "established"
	case ConnectionStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(self))
	}
}

// ConnectionEvent is emitted when a connection is established and when it closes.
type ConnectionEvent struct {
	Id     Id
	Remote string
	State  ConnectionState
	// the reason a connection closed, nil for a local stop
	Err error
}

type ConnectionListener func(event ConnectionEvent)

// adapter is the part of the client and server adapters that owns the
// connection, the outgoing queue and the read and write goroutines.
type adapter struct {
	ctx    context.Context
	cancel context.CancelFunc

	connection *Connection
	settings   *ConnectionSettings
	queue      *WriteQueue

	flushLock   sync.Mutex
	flushNotify chan struct{}

	stateLock sync.Mutex
	state     ConnectionState

	closeOnce sync.Once
	// closed after `closeErr` is set
	closed   chan struct{}
	closeErr error
	onClose  func(err error)

	log          LogFunction
	lifecycleLog LogFunction
	traceLog     LogFunction
}

func newAdapter(
	ctx context.Context,
	connection *Connection,
	settings *ConnectionSettings,
	state ConnectionState,
	tag string,
	onClose func(err error),
) *adapter {
	cancelCtx, cancel := context.WithCancel(ctx)
	log := LogFn(LogLevelInfo, tag)
	connectionTag := connection.Id().String()
	return &adapter{
		ctx:          cancelCtx,
		cancel:       cancel,
		connection:   connection,
		settings:     settings,
		queue:        NewWriteQueue(),
		flushNotify:  make(chan struct{}, 1),
		state:        state,
		closed:       make(chan struct{}),
		onClose:      onClose,
		log:          SubLogFn(LogLevelInfo, log, connectionTag),
		lifecycleLog: SubLogFn(LogLevelLifecycle, log, connectionTag),
		traceLog:     SubLogFn(LogLevelTrace, log, connectionTag),
	}
}

func (self *adapter) Id() Id {
	return self.connection.Id()
}

func (self *adapter) Remote() string {
	return self.connection.Remote()
}

func (self *adapter) State() ConnectionState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.state
}

// returns false when the adapter is already closed
func (self *adapter) setState(state ConnectionState) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.state == ConnectionStateClosed {
		return false
	}
	self.state = state
	return true
}

// closed once the adapter is closed and `Err` is final
func (self *adapter) Done() <-chan struct{} {
	return self.closed
}

func (self *adapter) Err() error {
	select {
	case <-self.closed:
		return self.closeErr
	default:
		return nil
	}
}

func (self *adapter) event() ConnectionEvent {
	return ConnectionEvent{
		Id:     self.Id(),
		Remote: self.Remote(),
		State:  self.State(),
		Err:    self.Err(),
	}
}

// queues a message for the next flush
func (self *adapter) offer(message *Message) {
	select {
	case <-self.ctx.Done():
		return
	default:
	}
	self.queue.Offer(message)
}

// asks the write goroutine to flush. Never blocks.
func (self *adapter) RequestFlush() {
	select {
	case self.flushNotify <- struct{}{}:
	default:
	}
}

// Flush writes the queued messages in queue order.
// When nothing was written for the keep alive interval, a KEEP_ALIVE is sent instead.
func (self *adapter) Flush() error {
	self.flushLock.Lock()
	defer self.flushLock.Unlock()

	messages := self.queue.Drain()
	for _, message := range messages {
		if err := self.connection.Send(message); err != nil {
			if errors.Is(err, ErrIOFailure) || errors.Is(err, ErrClosed) {
				return err
			}
			// the message cannot be encoded. It is dropped and the connection stays up
			self.log("drop %s = %s", message, err)
			continue
		}
		self.traceLog("-> %s", message)
	}
	if len(messages) == 0 && self.settings.KeepAliveInterval <= time.Since(self.connection.LastWriteTime()) {
		if err := self.connection.Send(KeepAliveMessage()); err != nil {
			return err
		}
	}
	return self.connection.Flush()
}

// closes the connection when the parent context is done
func (self *adapter) watch() {
	<-self.ctx.Done()
	self.close(nil)
}

func (self *adapter) writeLoop() {
	defer self.close(nil)

	for {
		select {
		case <-self.ctx.Done():
			return
		case <-self.flushNotify:
		}
		if err := self.Flush(); err != nil {
			self.closeWithError(err)
			return
		}
	}
}

func (self *adapter) readLoop(handler MessageHandler) {
	defer self.close(nil)

	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}
		if err := self.connection.Read(handler); err != nil {
			self.closeWithError(err)
			return
		}
	}
}

func (self *adapter) closeWithError(err error) {
	select {
	case <-self.ctx.Done():
		// a local close causes the read and write errors that follow it
		return
	default:
	}
	self.log("close = %s", err)
	self.close(err)
}

// Close closes the connection. The owner is told once.
func (self *adapter) Close() {
	self.close(nil)
}

func (self *adapter) close(err error) {
	first := false
	self.closeOnce.Do(func() {
		first = true
		self.stateLock.Lock()
		self.state = ConnectionStateClosed
		self.stateLock.Unlock()
		self.closeErr = err
		close(self.closed)
		self.cancel()
		self.connection.Close()
	})
	if first && self.onClose != nil {
		self.onClose(err)
	}
}
