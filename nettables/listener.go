package nettables

import (
	"sync"

	"golang.org/x/exp/slices"
)

// CallbackList is a copy-on-write list.
// Readers iterate a snapshot, so callbacks can be added and removed while a
// notification is in progress.
type CallbackList[T comparable] struct {
	mutex     sync.Mutex
	callbacks []T
}

func NewCallbackList[T comparable]() *CallbackList[T] {
	return &CallbackList[T]{
		callbacks: []T{},
	}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.callbacks
}

func (self *CallbackList[T]) Add(callback T) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbacks, callback)
	if 0 <= i {
		// already present
		return
	}
	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = append(nextCallbacks, callback)
	self.callbacks = nextCallbacks
}

func (self *CallbackList[T]) Remove(callback T) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbacks, callback)
	if i < 0 {
		// not present
		return
	}
	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = slices.Delete(nextCallbacks, i, i+1)
	self.callbacks = nextCallbacks
}

// EntryListener is called after an accepted change to an entry.
// `isNew` is set the first time the name is seen by the store.
type EntryListener func(entry Entry, isNew bool)

type EntryNotification struct {
	Entry Entry
	IsNew bool
}

type entryListener struct {
	predicate func(name string) bool
	callback  EntryListener

	stateLock sync.Mutex
	// live notifications are held back until the immediate notifications are delivered
	ready   bool
	backlog []EntryNotification
}

func (self *entryListener) deliver(notification EntryNotification) {
	if !self.predicate(notification.Entry.Name) {
		return
	}
	self.stateLock.Lock()
	if !self.ready {
		self.backlog = append(self.backlog, notification)
		self.stateLock.Unlock()
		return
	}
	self.stateLock.Unlock()
	self.call(notification)
}

// delivers the immediate notifications, then anything that arrived meanwhile
func (self *entryListener) start(immediate []EntryNotification) {
	for _, notification := range immediate {
		if self.predicate(notification.Entry.Name) {
			self.call(notification)
		}
	}
	for {
		self.stateLock.Lock()
		backlog := self.backlog
		self.backlog = nil
		if len(backlog) == 0 {
			self.ready = true
			self.stateLock.Unlock()
			return
		}
		self.stateLock.Unlock()
		for _, notification := range backlog {
			self.call(notification)
		}
	}
}

func (self *entryListener) call(notification EntryNotification) {
	HandleError(func() {
		self.callback(notification.Entry, notification.IsNew)
	})
}

// listener dispatch for one entry store
type listenerManager struct {
	listeners *CallbackList[*entryListener]
}

func newListenerManager() *listenerManager {
	return &listenerManager{
		listeners: NewCallbackList[*entryListener](),
	}
}

// the caller must call `start` on the returned listener
func (self *listenerManager) add(predicate func(name string) bool, callback EntryListener, ready bool) *entryListener {
	listener := &entryListener{
		predicate: predicate,
		callback:  callback,
		ready:     ready,
	}
	self.listeners.Add(listener)
	return listener
}

func (self *listenerManager) remove(listener *entryListener) {
	self.listeners.Remove(listener)
}

// the listeners that receive a mutation. Take it under the store lock,
// so a listener added after the mutation sees the change only in its immediate replay
func (self *listenerManager) snapshotWithLock() *pendingNotifications {
	return &pendingNotifications{
		listeners: self.listeners.Get(),
	}
}

// notifications collected under the store lock
type pendingNotifications struct {
	listeners     []*entryListener
	notifications []EntryNotification
}

func (self *pendingNotifications) add(notification EntryNotification) {
	self.notifications = append(self.notifications, notification)
}

// called after the store lock is released, on the goroutine that applied the change
func (self *pendingNotifications) deliver() {
	if len(self.notifications) == 0 {
		return
	}
	for _, listener := range self.listeners {
		for _, notification := range self.notifications {
			listener.deliver(notification)
		}
	}
}
