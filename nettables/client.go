package nettables

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Reconnect is a bounded exponential backoff.
type Reconnect struct {
	minTimeout time.Duration
	maxTimeout time.Duration
	timeout    time.Duration
}

func NewReconnect(minTimeout time.Duration, maxTimeout time.Duration) *Reconnect {
	return &Reconnect{
		minTimeout: minTimeout,
		maxTimeout: maxTimeout,
		timeout:    minTimeout,
	}
}

// each call waits twice as long as the last, up to the max timeout
func (self *Reconnect) After() <-chan time.Time {
	timeout := self.timeout
	self.timeout = min(2*self.timeout, self.maxTimeout)
	return time.After(timeout)
}

func (self *Reconnect) Reset() {
	self.timeout = self.minTimeout
}

// Client keeps one connection to a server and reconnects when it is lost.
// Reads and writes are served from the local store at all times.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings *ClientSettings
	store    *ClientStore

	stateLock     sync.Mutex
	streamFactory StreamFactory
	adapter       *ClientAdapter
	running       bool
	// set on a protocol version mismatch, cleared by Reconnect
	holdReconnect bool

	// counts Connect and Reconnect calls
	reconnectGeneration uint64

	reconnectNotify chan struct{}

	connectionListeners *CallbackList[*connectionListener]

	closeOnce sync.Once
}

func NewClientWithDefaults(ctx context.Context) *Client {
	return NewClient(ctx, DefaultClientSettings())
}

func NewClient(ctx context.Context, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Client{
		ctx:                 cancelCtx,
		cancel:              cancel,
		settings:            settings,
		store:               NewClientStore(settings.TypeRegistry),
		reconnectNotify:     make(chan struct{}, 1),
		connectionListeners: NewCallbackList[*connectionListener](),
	}
}

// Connect starts the connection loop against the factory.
// Calling Connect again switches to the new factory and reconnects.
func (self *Client) Connect(streamFactory StreamFactory) error {
	select {
	case <-self.ctx.Done():
		return ErrClosed
	default:
	}

	self.stateLock.Lock()
	self.streamFactory = streamFactory
	self.holdReconnect = false
	self.reconnectGeneration += 1
	start := !self.running
	self.running = true
	adapter := self.adapter
	self.stateLock.Unlock()

	if start {
		go self.run()
	} else {
		self.signalReconnect()
		if adapter != nil {
			adapter.Close()
		}
	}
	return nil
}

// Reconnect drops the current connection and connects again immediately.
// This also resumes after a protocol version mismatch.
func (self *Client) Reconnect() {
	self.stateLock.Lock()
	self.holdReconnect = false
	self.reconnectGeneration += 1
	adapter := self.adapter
	self.stateLock.Unlock()

	self.signalReconnect()
	if adapter != nil {
		adapter.Close()
	}
}

func (self *Client) signalReconnect() {
	select {
	case self.reconnectNotify <- struct{}{}:
	default:
	}
}

func (self *Client) run() {
	reconnect := NewReconnect(self.settings.MinReconnectTimeout, self.settings.MaxReconnectTimeout)
	for {
		self.stateLock.Lock()
		hold := self.holdReconnect
		streamFactory := self.streamFactory
		generation := self.reconnectGeneration
		self.stateLock.Unlock()

		if hold {
			select {
			case <-self.ctx.Done():
				return
			case <-self.reconnectNotify:
				reconnect.Reset()
				continue
			}
		}

		adapter, err := self.connect(streamFactory, generation)
		if err != nil {
			glog.Infof("[c]connect error = %s\n", err)
		} else {
			self.supervise(adapter)
			if adapter.WasEstablished() {
				reconnect.Reset()
			}
			self.holdOnMismatch(generation, adapter.Err())
		}

		select {
		case <-self.ctx.Done():
			return
		case <-self.reconnectNotify:
			reconnect.Reset()
		case <-reconnect.After():
		}
	}
}

// holds reconnecting after a protocol version mismatch,
// unless Connect or Reconnect was called since `generation`
func (self *Client) holdOnMismatch(generation uint64, err error) {
	if !errors.Is(err, ErrProtocolVersionMismatch) {
		return
	}
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.reconnectGeneration == generation && !self.holdReconnect {
		glog.Infof("[c]hold reconnect = %s\n", err)
		self.holdReconnect = true
	}
}

func (self *Client) connect(streamFactory StreamFactory, generation uint64) (*ClientAdapter, error) {
	connectCtx, connectCancel := context.WithTimeout(self.ctx, self.settings.ConnectTimeout)
	defer connectCancel()

	var stream io.ReadWriteCloser
	var err error
	if glog.V(2) {
		stream, err = TraceWithReturnError("[c]connect", func() (io.ReadWriteCloser, error) {
			return streamFactory.Connect(connectCtx)
		})
	} else {
		stream, err = streamFactory.Connect(connectCtx)
	}
	if err != nil {
		return nil, err
	}

	connection := NewConnection(stream, self.store.Registry(), &self.settings.ConnectionSettings)
	adapter := NewClientAdapter(
		self.ctx,
		connection,
		self.store,
		self.settings,
		func(adapter *ClientAdapter) {
			self.notifyConnectionListeners(adapter.event())
		},
		func(adapter *ClientAdapter, err error) {
			// the hold is in place before listeners see the event
			self.holdOnMismatch(generation, err)
			if adapter.WasEstablished() || errors.Is(err, ErrProtocolVersionMismatch) {
				self.notifyConnectionListeners(adapter.event())
			}
		},
	)

	self.stateLock.Lock()
	self.adapter = adapter
	self.stateLock.Unlock()
	return adapter, nil
}

// requests flushes until the connection closes
func (self *Client) supervise(adapter *ClientAdapter) {
	defer func() {
		self.stateLock.Lock()
		if self.adapter == adapter {
			self.adapter = nil
		}
		self.stateLock.Unlock()
	}()

	for {
		select {
		case <-self.ctx.Done():
			adapter.Close()
			return
		case <-adapter.Done():
			return
		case <-time.After(self.settings.WriteFlushInterval):
			adapter.RequestFlush()
		}
	}
}

// reports whether the handshake with the server completed
func (self *Client) IsConnected() bool {
	return self.store.IsEstablished()
}

// Flush writes the queued messages now. Returns ErrClosed when not connected.
func (self *Client) Flush() error {
	adapter := self.store.establishedAdapter()
	if adapter == nil {
		return ErrClosed
	}
	return adapter.Flush()
}

// Close stops reconnecting and closes the connection. Close is idempotent.
func (self *Client) Close() {
	self.closeOnce.Do(func() {
		self.cancel()

		self.stateLock.Lock()
		adapter := self.adapter
		self.stateLock.Unlock()
		if adapter != nil {
			adapter.Close()
		}
	})
}

// same as Close
func (self *Client) Stop() {
	self.Close()
}

func (self *Client) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *Client) AddConnectionListener(listener ConnectionListener) func() {
	return addConnectionListener(self.connectionListeners, listener)
}

func (self *Client) notifyConnectionListeners(event ConnectionEvent) {
	notifyConnectionListeners(self.connectionListeners, event)
}

func (self *Client) Store() *ClientStore {
	return self.store
}

func (self *Client) GetValue(name string) (any, error) {
	return self.store.GetValue(name)
}

func (self *Client) GetValueWithDefault(name string, defaultValue any) any {
	return self.store.GetValueWithDefault(name, defaultValue)
}

func (self *Client) PutValue(name string, value any) error {
	return self.store.PutValue(name, value)
}

func (self *Client) ContainsKey(name string) bool {
	return self.store.ContainsKey(name)
}

func (self *Client) Keys() []string {
	return self.store.Keys()
}

func (self *Client) Entries() []Entry {
	return self.store.Entries()
}

func (self *Client) AddEntryListener(predicate func(name string) bool, callback EntryListener, immediate bool) func() {
	return self.store.AddEntryListener(predicate, callback, immediate)
}

// the root table
func (self *Client) Table() *Table {
	return NewTable(self, "")
}

func (self *Client) String() string {
	return fmt.Sprintf("client (connected=%t, %d entries)", self.IsConnected(), len(self.store.Keys()))
}
