package nettables

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestServerStorePut(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())

	assert.Equal(t, store.PutValue("/a", 1.0), nil)
	assert.Equal(t, store.PutValue("/b", "x"), nil)
	assert.Equal(t, store.PutValue("/a", 2.0), nil)

	a, ok := store.GetEntry("/a")
	assert.Equal(t, ok, true)
	assert.Equal(t, a.Id, EntryId(0))
	assert.Equal(t, a.SequenceNumber, SequenceNumber(1))
	assert.Equal(t, a.Value, 2.0)

	b, ok := store.GetEntry("/b")
	assert.Equal(t, ok, true)
	assert.Equal(t, b.Id, EntryId(1))
	assert.Equal(t, b.SequenceNumber, SequenceNumber(0))

	assert.Equal(t, store.Keys(), []string{"/a", "/b"})
	assert.Equal(t, store.ContainsKey("/a"), true)
	assert.Equal(t, store.ContainsKey("/c"), false)

	// a different type for an existing name changes nothing
	err := store.PutValue("/a", "y")
	assert.Equal(t, errors.Is(err, ErrTypeMismatch), true)
	a, _ = store.GetEntry("/a")
	assert.Equal(t, a.SequenceNumber, SequenceNumber(1))
	assert.Equal(t, a.Value, 2.0)

	err = store.PutValue("/c", 1)
	assert.Equal(t, errors.Is(err, ErrUnsupportedValue), true)

	err = store.PutValue("/c", strings.Repeat("c", MaxStringByteCount+1))
	assert.Equal(t, errors.Is(err, ErrValueTooLarge), true)
	assert.Equal(t, store.ContainsKey("/c"), false)

	_, err = store.GetValue("/c")
	assert.Equal(t, errors.Is(err, ErrUnknownKey), true)
	assert.Equal(t, store.GetValueWithDefault("/c", "default"), "default")
	assert.Equal(t, store.GetValueWithDefault("/b", "default"), "x")
}

func TestStoreValuesAreCopies(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())

	value := []float64{1, 2}
	assert.Equal(t, store.PutValue("/a", value), nil)
	value[0] = 10

	storeValue, err := store.GetValue("/a")
	assert.Equal(t, err, nil)
	assert.Equal(t, storeValue, []float64{1, 2})

	storeValue.([]float64)[1] = 20
	storeValue, _ = store.GetValue("/a")
	assert.Equal(t, storeValue, []float64{1, 2})
}

func TestClientStoreDisconnectedPut(t *testing.T) {
	store := NewClientStore(DefaultTypeRegistry())
	assert.Equal(t, store.IsEstablished(), false)

	assert.Equal(t, store.PutValue("/a", true), nil)
	assert.Equal(t, store.PutValue("/a", false), nil)

	a, ok := store.GetEntry("/a")
	assert.Equal(t, ok, true)
	assert.Equal(t, a.Id, UnknownEntryId)
	assert.Equal(t, a.SequenceNumber, SequenceNumber(1))
	assert.Equal(t, a.Value, false)

	// disconnect keeps values and sequence numbers
	store.disconnect(nil)
	a, _ = store.GetEntry("/a")
	assert.Equal(t, a.SequenceNumber, SequenceNumber(1))
	assert.Equal(t, a.Value, false)
}

func TestListenerImmediateOrder(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())
	assert.Equal(t, store.PutValue("a", 1.0), nil)
	assert.Equal(t, store.PutValue("b", 2.0), nil)

	type notification struct {
		name  string
		value any
		isNew bool
	}
	notifications := []notification{}

	remove := store.AddEntryListener(
		func(name string) bool {
			return true
		},
		func(entry Entry, isNew bool) {
			notifications = append(notifications, notification{entry.Name, entry.Value, isNew})
			if entry.Name == "a" && len(notifications) == 1 {
				// a live update during the immediate notifications is delivered after them
				assert.Equal(t, store.PutValue("c", 3.0), nil)
			}
		},
		true,
	)

	assert.Equal(t, notifications, []notification{
		{"a", 1.0, true},
		{"b", 2.0, true},
		{"c", 3.0, true},
	})

	assert.Equal(t, store.PutValue("a", 4.0), nil)
	assert.Equal(t, notifications[3], notification{"a", 4.0, false})

	remove()
	assert.Equal(t, store.PutValue("a", 5.0), nil)
	assert.Equal(t, len(notifications), 4)
}

func TestListenerAddedDuringPuts(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())
	assert.Equal(t, store.PutValue("/k", 0.0), nil)

	type observer struct {
		stateLock       sync.Mutex
		sequenceNumbers []SequenceNumber
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i < 10000; i += 1 {
			select {
			case <-stop:
				return
			default:
			}
			store.PutValue("/k", float64(i))
		}
	}()

	observers := []*observer{}
	for i := 0; i < 200; i += 1 {
		o := &observer{}
		store.AddEntryListener(
			func(name string) bool {
				return true
			},
			func(entry Entry, isNew bool) {
				o.stateLock.Lock()
				defer o.stateLock.Unlock()
				o.sequenceNumbers = append(o.sequenceNumbers, entry.SequenceNumber)
			},
			true,
		)
		observers = append(observers, o)
	}
	close(stop)
	<-done

	// every change reaches a listener once, either in the replay or live
	for _, o := range observers {
		o.stateLock.Lock()
		assert.NotEqual(t, len(o.sequenceNumbers), 0)
		for i := 1; i < len(o.sequenceNumbers); i += 1 {
			assert.Equal(t, o.sequenceNumbers[i].IsNewerThan(o.sequenceNumbers[i-1]), true)
		}
		o.stateLock.Unlock()
	}
}

func TestListenerPredicateAndPanic(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())

	names := []string{}
	store.AddEntryListener(
		func(name string) bool {
			return true
		},
		func(entry Entry, isNew bool) {
			panic(errors.New("listener failure"))
		},
		false,
	)
	store.AddEntryListener(
		func(name string) bool {
			return strings.HasPrefix(name, "/x/")
		},
		func(entry Entry, isNew bool) {
			names = append(names, entry.Name)
		},
		false,
	)

	assert.Equal(t, store.PutValue("/x/a", true), nil)
	assert.Equal(t, store.PutValue("/y/a", true), nil)
	assert.Equal(t, store.PutValue("/x/b", true), nil)
	assert.Equal(t, names, []string{"/x/a", "/x/b"})
}

func TestCallbackList(t *testing.T) {
	a := &connectionListener{}
	b := &connectionListener{}

	callbacks := NewCallbackList[*connectionListener]()
	callbacks.Add(a)
	callbacks.Add(b)
	callbacks.Add(a)
	snapshot := callbacks.Get()
	assert.Equal(t, len(snapshot), 2)

	callbacks.Remove(a)
	assert.Equal(t, len(callbacks.Get()), 1)
	assert.Equal(t, callbacks.Get()[0] == b, true)
	// earlier snapshots are not modified
	assert.Equal(t, len(snapshot), 2)
	assert.Equal(t, snapshot[0] == a, true)
}
