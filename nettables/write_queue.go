package nettables

import (
	"sync"
)

// WriteQueue is the ordered outgoing queue of one adapter.
// At most one entry message is queued per entry name. A newer message for a
// queued entry replaces the queued message in place, so a burst of puts before
// a flush sends only the last value with the last sequence number.
// An assignment is never downgraded to an update.
type WriteQueue struct {
	stateLock sync.Mutex
	messages  []*Message
	// name -> the queued entry message for the name
	entryMessages map[string]*Message
}

func NewWriteQueue() *WriteQueue {
	return &WriteQueue{
		messages:      []*Message{},
		entryMessages: map[string]*Message{},
	}
}

func (self *WriteQueue) Offer(message *Message) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if !message.IsEntryMessage() {
		self.messages = append(self.messages, message)
		return
	}

	name := message.Entry.Name
	if queued, ok := self.entryMessages[name]; ok {
		if message.Type == MessageEntryAssignment {
			queued.Type = MessageEntryAssignment
		}
		queued.Entry = message.Entry
		return
	}
	// the queue owns its messages
	queued := &Message{
		Type:  message.Type,
		Entry: message.Entry,
	}
	self.entryMessages[name] = queued
	self.messages = append(self.messages, queued)
}

// removes and returns all queued messages in queue order
func (self *WriteQueue) Drain() []*Message {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	messages := self.messages
	self.messages = []*Message{}
	clear(self.entryMessages)
	return messages
}

func (self *WriteQueue) Len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.messages)
}
