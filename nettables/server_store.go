package nettables

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// ServerStore is the authoritative store. It allocates entry ids and relays
// accepted changes to the established connections.
type ServerStore struct {
	*entryStore

	// the next id to allocate. Ids are never reused
	nextId EntryId
	// established adapters in the order they were established
	adapters []*ServerAdapter

	log      LogFunction
	traceLog LogFunction
}

func NewServerStore(registry *TypeRegistry) *ServerStore {
	return &ServerStore{
		entryStore: newEntryStore(registry),
		nextId:     0,
		adapters:   []*ServerAdapter{},
		log:        LogFn(LogLevelInfo, "store"),
		traceLog:   LogFn(LogLevelTrace, "store"),
	}
}

// PutValue writes a local value.
// A new name is assigned the next id and announced to every established connection.
// An existing name is updated with the next sequence number.
func (self *ServerStore) PutValue(name string, value any) error {
	var notifications *pendingNotifications
	err := func() error {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		notifications = self.listeners.snapshotWithLock()

		entryType, err := self.localTypeWithLock(name, value)
		if err != nil {
			return err
		}

		if entry, ok := self.nameEntries[name]; ok {
			entry.SequenceNumber = entry.SequenceNumber.Next()
			entry.Value = cloneValue(value)
			self.broadcastWithLock(FieldUpdateMessage(entry.copy()), nil)
			notifications.add(EntryNotification{
				Entry: entry.copy(),
				IsNew: false,
			})
			return nil
		}

		id, err := self.allocateIdWithLock()
		if err != nil {
			return err
		}
		entry := &Entry{
			Id:             id,
			Name:           name,
			SequenceNumber: 0,
			Type:           entryType,
			Value:          cloneValue(value),
		}
		self.insertWithLock(entry)
		self.broadcastWithLock(EntryAssignmentMessage(entry.copy()), nil)
		notifications.add(EntryNotification{
			Entry: entry.copy(),
			IsNew: true,
		})
		return nil
	}()
	notifications.deliver()
	return err
}

func (self *ServerStore) allocateIdWithLock() (EntryId, error) {
	if self.nextId == UnknownEntryId {
		return UnknownEntryId, ErrIdsExhausted
	}
	id := self.nextId
	self.nextId += 1
	return id, nil
}

// sends to every established adapter except `except`
func (self *ServerStore) broadcastWithLock(message *Message, except *ServerAdapter) {
	for _, adapter := range self.adapters {
		if adapter != except {
			adapter.offer(message)
		}
	}
}

// an assignment from an established peer
func (self *ServerStore) offerIncomingAssignment(origin *ServerAdapter, incoming Entry) error {
	var notifications *pendingNotifications
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		notifications = self.listeners.snapshotWithLock()

		entry, ok := self.nameEntries[incoming.Name]
		if !ok {
			id, err := self.allocateIdWithLock()
			if err != nil {
				self.log("drop assignment %s = %s", incoming.Name, err)
				return
			}
			entry = &Entry{
				Id:             id,
				Name:           incoming.Name,
				SequenceNumber: incoming.SequenceNumber,
				Type:           incoming.Type,
				Value:          incoming.Value,
			}
			self.insertWithLock(entry)
			// the originator learns the id from its copy
			self.broadcastWithLock(EntryAssignmentMessage(entry.copy()), nil)
			notifications.add(EntryNotification{
				Entry: entry.copy(),
				IsNew: true,
			})
			return
		}

		if entry.Type != incoming.Type {
			self.log("drop assignment %s type %s = entry is %s", incoming.Name, incoming.Type.Name, entry.Type.Name)
		} else if incoming.SequenceNumber.IsNewerThan(entry.SequenceNumber) {
			entry.SequenceNumber = incoming.SequenceNumber
			entry.Value = incoming.Value
			self.broadcastWithLock(FieldUpdateMessage(entry.copy()), origin)
			notifications.add(EntryNotification{
				Entry: entry.copy(),
				IsNew: false,
			})
		} else {
			self.traceLog("drop stale assignment %s seq=%d, have seq=%d", incoming.Name, incoming.SequenceNumber, entry.SequenceNumber)
		}
		origin.offer(EntryAssignmentMessage(entry.copy()))
	}()
	notifications.deliver()
	return nil
}

// an update from an established peer
func (self *ServerStore) offerIncomingUpdate(origin *ServerAdapter, id EntryId, sequenceNumber SequenceNumber, value any) error {
	var notifications *pendingNotifications
	err := func() error {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		notifications = self.listeners.snapshotWithLock()

		entry, ok := self.idEntries[id]
		if !ok {
			return badMessage("field update for unknown id %d", id)
		}
		if !sequenceNumber.IsNewerThan(entry.SequenceNumber) {
			self.traceLog("drop stale update %s seq=%d, have seq=%d", entry.Name, sequenceNumber, entry.SequenceNumber)
			return nil
		}
		entry.SequenceNumber = sequenceNumber
		entry.Value = value
		self.broadcastWithLock(FieldUpdateMessage(entry.copy()), origin)
		notifications.add(EntryNotification{
			Entry: entry.copy(),
			IsNew: false,
		})
		return nil
	}()
	notifications.deliver()
	return err
}

// register queues the full store followed by SERVER_HELLO_COMPLETE and marks the
// adapter established, in one step, so no change is missed or sent twice.
func (self *ServerStore) register(adapter *ServerAdapter) error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if !adapter.setState(ConnectionStateEstablished) {
		return ErrClosed
	}
	for _, entry := range self.entriesWithLock() {
		adapter.offer(EntryAssignmentMessage(entry))
	}
	adapter.offer(ServerHelloCompleteMessage())
	self.adapters = append(self.adapters, adapter)
	return nil
}

// returns true if the adapter was registered
func (self *ServerStore) unregister(adapter *ServerAdapter) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	i := slices.Index(self.adapters, adapter)
	if i < 0 {
		return false
	}
	self.adapters = slices.Delete(slices.Clone(self.adapters), i, i+1)
	return true
}

func (self *ServerStore) ConnectionCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.adapters)
}

func (self *ServerStore) String() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return fmt.Sprintf("server store (%d entries, %d connections)", len(self.names), len(self.adapters))
}
