package nettables

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"
)

// Server holds the authoritative store and relays changes between every
// connected client. One goroutine accepts streams, one requests flushes,
// and each connection reads and writes on its own goroutines.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings *ServerSettings
	store    *ServerStore

	stateLock sync.Mutex
	provider  StreamProvider
	// all open adapters, including those in the handshake
	adapters []*ServerAdapter

	connectionListeners *CallbackList[*connectionListener]

	closeOnce sync.Once
}

func NewServerWithDefaults(ctx context.Context) *Server {
	return NewServer(ctx, DefaultServerSettings())
}

func NewServer(ctx context.Context, settings *ServerSettings) *Server {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Server{
		ctx:                 cancelCtx,
		cancel:              cancel,
		settings:            settings,
		store:               NewServerStore(settings.TypeRegistry),
		adapters:            []*ServerAdapter{},
		connectionListeners: NewCallbackList[*connectionListener](),
	}
}

// Start accepts connections from the provider until Close.
// A server is started once.
func (self *Server) Start(provider StreamProvider) error {
	select {
	case <-self.ctx.Done():
		return ErrClosed
	default:
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.provider != nil {
		return errors.New("Server already started.")
	}
	self.provider = provider
	go self.acceptLoop(provider)
	go self.flushLoop()
	glog.Infof("[s]start\n")
	return nil
}

func (self *Server) acceptLoop(provider StreamProvider) {
	defer provider.Close()

	for {
		stream, err := provider.Accept(self.ctx)
		if err != nil {
			select {
			case <-self.ctx.Done():
				return
			default:
			}
			if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
				glog.Infof("[s]provider closed\n")
				return
			}
			glog.Infof("[s]accept error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.AcceptRetryTimeout):
				continue
			}
		}
		self.handle(stream)
	}
}

func (self *Server) handle(stream io.ReadWriteCloser) {
	connection := NewConnection(stream, self.store.Registry(), &self.settings.ConnectionSettings)
	glog.V(LogLevelLifecycle).Infof("[s]accept %s %s\n", connection.Id(), connection.Remote())
	adapter := NewServerAdapter(
		self.ctx,
		connection,
		self.store,
		self.settings,
		func(adapter *ServerAdapter) {
			self.notifyConnectionListeners(adapter.event())
		},
		func(adapter *ServerAdapter, err error) {
			self.removeAdapter(adapter)
			if self.store.unregister(adapter) {
				self.notifyConnectionListeners(adapter.event())
			}
		},
	)
	self.addAdapter(adapter)
	select {
	case <-adapter.Done():
		// closed before it was added
		self.removeAdapter(adapter)
	default:
	}
}

func (self *Server) addAdapter(adapter *ServerAdapter) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.adapters = append(self.adapters, adapter)
}

func (self *Server) removeAdapter(adapter *ServerAdapter) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if i := slices.Index(self.adapters, adapter); 0 <= i {
		self.adapters = slices.Delete(slices.Clone(self.adapters), i, i+1)
	}
}

func (self *Server) openAdapters() []*ServerAdapter {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.adapters
}

func (self *Server) flushLoop() {
	for {
		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.WriteFlushInterval):
		}
		self.Flush()
	}
}

// requests an immediate flush of every connection
func (self *Server) Flush() {
	for _, adapter := range self.openAdapters() {
		adapter.RequestFlush()
	}
}

// reports whether at least one client is established
func (self *Server) IsConnected() bool {
	return 0 < self.store.ConnectionCount()
}

func (self *Server) ConnectionCount() int {
	return self.store.ConnectionCount()
}

// Close stops accepting, then closes every connection once.
func (self *Server) Close() {
	self.closeOnce.Do(func() {
		self.cancel()

		self.stateLock.Lock()
		provider := self.provider
		self.stateLock.Unlock()
		if provider != nil {
			provider.Close()
		}

		for _, adapter := range self.openAdapters() {
			adapter.Close()
		}
		glog.Infof("[s]close\n")
	})
}

func (self *Server) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *Server) AddConnectionListener(listener ConnectionListener) func() {
	return addConnectionListener(self.connectionListeners, listener)
}

func (self *Server) notifyConnectionListeners(event ConnectionEvent) {
	notifyConnectionListeners(self.connectionListeners, event)
}

func (self *Server) Store() *ServerStore {
	return self.store
}

func (self *Server) GetValue(name string) (any, error) {
	return self.store.GetValue(name)
}

func (self *Server) GetValueWithDefault(name string, defaultValue any) any {
	return self.store.GetValueWithDefault(name, defaultValue)
}

func (self *Server) PutValue(name string, value any) error {
	return self.store.PutValue(name, value)
}

func (self *Server) ContainsKey(name string) bool {
	return self.store.ContainsKey(name)
}

func (self *Server) Keys() []string {
	return self.store.Keys()
}

func (self *Server) Entries() []Entry {
	return self.store.Entries()
}

func (self *Server) AddEntryListener(predicate func(name string) bool, callback EntryListener, immediate bool) func() {
	return self.store.AddEntryListener(predicate, callback, immediate)
}

// the root table
func (self *Server) Table() *Table {
	return NewTable(self, "")
}

type connectionListener struct {
	callback ConnectionListener
}

func addConnectionListener(listeners *CallbackList[*connectionListener], callback ConnectionListener) func() {
	listener := &connectionListener{
		callback: callback,
	}
	listeners.Add(listener)
	return func() {
		listeners.Remove(listener)
	}
}

func notifyConnectionListeners(listeners *CallbackList[*connectionListener], event ConnectionEvent) {
	for _, listener := range listeners.Get() {
		HandleError(func() {
			listener.callback(event)
		})
	}
}
