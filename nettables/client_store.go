package nettables

// ClientStore is the local view of a client. It serves values while
// disconnected and merges with the server replay on every connect.
// Ids are only meaningful for the established connection.
type ClientStore struct {
	*entryStore

	// the established adapter, nil while disconnected or during the handshake
	adapter *ClientAdapter

	log      LogFunction
	traceLog LogFunction
}

func NewClientStore(registry *TypeRegistry) *ClientStore {
	return &ClientStore{
		entryStore: newEntryStore(registry),
		log:        LogFn(LogLevelInfo, "client store"),
		traceLog:   LogFn(LogLevelTrace, "client store"),
	}
}

// PutValue writes a local value. While established the change is queued for
// the server. Otherwise only the local view changes and the latest value is
// announced on the next handshake.
func (self *ClientStore) PutValue(name string, value any) error {
	var notifications *pendingNotifications
	err := func() error {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		notifications = self.listeners.snapshotWithLock()

		entryType, err := self.localTypeWithLock(name, value)
		if err != nil {
			return err
		}

		entry, ok := self.nameEntries[name]
		if ok {
			entry.SequenceNumber = entry.SequenceNumber.Next()
			entry.Value = cloneValue(value)
		} else {
			entry = &Entry{
				Id:             UnknownEntryId,
				Name:           name,
				SequenceNumber: 0,
				Type:           entryType,
				Value:          cloneValue(value),
			}
			self.insertWithLock(entry)
		}
		notifications.add(EntryNotification{
			Entry: entry.copy(),
			IsNew: !ok,
		})

		if self.adapter != nil {
			if entry.HasId() {
				self.adapter.offer(FieldUpdateMessage(entry.copy()))
			} else {
				self.adapter.offer(EntryAssignmentMessage(entry.copy()))
			}
		}
		return nil
	}()
	notifications.deliver()
	return err
}

func (self *ClientStore) IsEstablished() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.adapter != nil
}

// the adapter of the established connection, or nil
func (self *ClientStore) establishedAdapter() *ClientAdapter {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.adapter
}

// handshakeComplete merges the server replay into the local view and marks
// the adapter established, in one locked step.
func (self *ClientStore) handshakeComplete(adapter *ClientAdapter, assignments []Entry) error {
	var notifications *pendingNotifications
	err := func() error {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		notifications = self.listeners.snapshotWithLock()

		if !adapter.setState(ConnectionStateEstablished) {
			return ErrClosed
		}

		self.clearIdsWithLock()
		replayed := map[string]bool{}
		for _, incoming := range assignments {
			replayed[incoming.Name] = true
			if notification, ok := self.applyAssignmentWithLock(adapter, incoming); ok {
				notifications.add(notification)
			}
		}
		// local names the server does not know yet
		for _, name := range self.names {
			if !replayed[name] {
				entry := self.nameEntries[name]
				adapter.offer(EntryAssignmentMessage(entry.copy()))
			}
		}
		self.adapter = adapter
		return nil
	}()
	notifications.deliver()
	return err
}

// applyAssignmentWithLock adopts the server id for the name.
// A newer local value is kept and sent back as an update,
// otherwise the server value wins.
func (self *ClientStore) applyAssignmentWithLock(adapter *ClientAdapter, incoming Entry) (EntryNotification, bool) {
	if other, ok := self.idEntries[incoming.Id]; ok && other.Name != incoming.Name {
		// a stale id from an earlier assignment
		self.setIdWithLock(other, UnknownEntryId)
	}

	entry, ok := self.nameEntries[incoming.Name]
	if !ok {
		entry = &Entry{
			Id:             incoming.Id,
			Name:           incoming.Name,
			SequenceNumber: incoming.SequenceNumber,
			Type:           incoming.Type,
			Value:          incoming.Value,
		}
		self.insertWithLock(entry)
		return EntryNotification{
			Entry: entry.copy(),
			IsNew: true,
		}, true
	}

	self.setIdWithLock(entry, incoming.Id)

	if entry.Type != incoming.Type {
		self.log("assignment %s type %s replaces local type %s", incoming.Name, incoming.Type.Name, entry.Type.Name)
	} else if entry.SequenceNumber.IsNewerThan(incoming.SequenceNumber) {
		adapter.offer(FieldUpdateMessage(entry.copy()))
		return EntryNotification{}, false
	}

	changed := entry.Type != incoming.Type ||
		incoming.SequenceNumber.IsNewerThan(entry.SequenceNumber) ||
		!ValuesEqual(entry.Value, incoming.Value)
	entry.Type = incoming.Type
	entry.SequenceNumber = incoming.SequenceNumber
	entry.Value = incoming.Value
	if !changed {
		// an acknowledgement of a local assignment
		return EntryNotification{}, false
	}
	return EntryNotification{
		Entry: entry.copy(),
		IsNew: false,
	}, true
}

// an assignment on the established connection
func (self *ClientStore) offerIncomingAssignment(adapter *ClientAdapter, incoming Entry) error {
	var notifications *pendingNotifications
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		notifications = self.listeners.snapshotWithLock()

		if self.adapter != adapter {
			return
		}
		if notification, ok := self.applyAssignmentWithLock(adapter, incoming); ok {
			notifications.add(notification)
		}
	}()
	notifications.deliver()
	return nil
}

// an update on the established connection
func (self *ClientStore) offerIncomingUpdate(adapter *ClientAdapter, id EntryId, sequenceNumber SequenceNumber, value any) error {
	var notifications *pendingNotifications
	err := func() error {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		notifications = self.listeners.snapshotWithLock()

		if self.adapter != adapter {
			return nil
		}
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
		notifications.add(EntryNotification{
			Entry: entry.copy(),
			IsNew: false,
		})
		return nil
	}()
	notifications.deliver()
	return err
}

// disconnect invalidates all ids. Values and sequence numbers are kept.
func (self *ClientStore) disconnect(adapter *ClientAdapter) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.adapter != nil && self.adapter != adapter {
		return
	}
	self.adapter = nil
	self.clearIdsWithLock()
}
