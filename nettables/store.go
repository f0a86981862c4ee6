package nettables

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// entryStore is the part of the client and server stores that maps names and
// ids to entries. All fields are guarded by `stateLock`, which the role
// specific stores hold across a whole mutation.
type entryStore struct {
	stateLock sync.Mutex

	registry *TypeRegistry

	// insertion order
	names       []string
	nameEntries map[string]*Entry
	idEntries   map[EntryId]*Entry

	listeners *listenerManager
}

func newEntryStore(registry *TypeRegistry) *entryStore {
	return &entryStore{
		registry:    registry,
		names:       []string{},
		nameEntries: map[string]*Entry{},
		idEntries:   map[EntryId]*Entry{},
		listeners:   newListenerManager(),
	}
}

func (self *entryStore) GetValue(name string) (any, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	entry, ok := self.nameEntries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, name)
	}
	return cloneValue(entry.Value), nil
}

func (self *entryStore) GetValueWithDefault(name string, defaultValue any) any {
	value, err := self.GetValue(name)
	if err != nil {
		return defaultValue
	}
	return value
}

func (self *entryStore) GetEntry(name string) (Entry, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	entry, ok := self.nameEntries[name]
	if !ok {
		return Entry{}, false
	}
	return entry.copy(), true
}

func (self *entryStore) ContainsKey(name string) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	_, ok := self.nameEntries[name]
	return ok
}

// names in insertion order
func (self *entryStore) Keys() []string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return slices.Clone(self.names)
}

// a snapshot of all entries in insertion order
func (self *entryStore) Entries() []Entry {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.entriesWithLock()
}

func (self *entryStore) entriesWithLock() []Entry {
	entries := make([]Entry, 0, len(self.names))
	for _, name := range self.names {
		entries = append(entries, self.nameEntries[name].copy())
	}
	return entries
}

func (self *entryStore) Registry() *TypeRegistry {
	return self.registry
}

// AddEntryListener registers a callback for entries whose name matches the predicate.
// With `immediate`, the callback is first called once for each matching entry in
// insertion order, before any later change is delivered to it.
func (self *entryStore) AddEntryListener(predicate func(name string) bool, callback EntryListener, immediate bool) func() {
	var listener *entryListener
	var notifications []EntryNotification
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		listener = self.listeners.add(predicate, callback, !immediate)
		if immediate {
			for _, entry := range self.entriesWithLock() {
				notifications = append(notifications, EntryNotification{
					Entry: entry,
					IsNew: true,
				})
			}
		}
	}()
	if immediate {
		listener.start(notifications)
	}
	return func() {
		self.listeners.remove(listener)
	}
}

func (self *entryStore) entryType(id EntryId) (*EntryType, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	entry, ok := self.idEntries[id]
	if !ok {
		return nil, false
	}
	return entry.Type, true
}

// resolves the type of a local put and checks the value fits on the wire
func (self *entryStore) localTypeWithLock(name string, value any) (*EntryType, error) {
	entryType, err := self.registry.TypeOf(value)
	if err != nil {
		return nil, err
	}
	if entry, ok := self.nameEntries[name]; ok && entry.Type != entryType {
		return nil, fmt.Errorf("%w: %s is %s", ErrTypeMismatch, name, entry.Type.Name)
	}
	if MaxStringByteCount < len(name) {
		return nil, fmt.Errorf("%w: name %d bytes", ErrValueTooLarge, len(name))
	}
	var w WireWriter
	if err := entryType.Codec.Encode(&w, value); err != nil {
		return nil, err
	}
	return entryType, nil
}

func (self *entryStore) insertWithLock(entry *Entry) {
	self.names = append(self.names, entry.Name)
	self.nameEntries[entry.Name] = entry
	if entry.HasId() {
		self.idEntries[entry.Id] = entry
	}
}

func (self *entryStore) setIdWithLock(entry *Entry, id EntryId) {
	if entry.Id == id {
		return
	}
	if entry.HasId() {
		delete(self.idEntries, entry.Id)
	}
	entry.Id = id
	if entry.HasId() {
		self.idEntries[id] = entry
	}
}

// ids are valid for one session only
func (self *entryStore) clearIdsWithLock() {
	for _, entry := range self.nameEntries {
		entry.Id = UnknownEntryId
	}
	clear(self.idEntries)
}

func (self *Entry) copy() Entry {
	entry := *self
	entry.Value = cloneValue(self.Value)
	return entry
}
