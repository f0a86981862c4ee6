package nettables

import (
	"errors"
	"flag"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func TestIdOrder(t *testing.T) {
	// ulids are ordered by create time
	// connection ids from one process sort in create order

	a := NewId()
	for i := 0; i < 1024; i += 1 {
		b := NewId()
		assert.Equal(t, a.LessThan(b), true)
		assert.Equal(t, b.LessThan(a), false)
		assert.Equal(t, b.LessThan(b), false)
		assert.Equal(t, b == a, false)
		a = b
	}
}

func TestSequenceNumberOrder(t *testing.T) {
	assert.Equal(t, SequenceNumber(1).IsNewerThan(0), true)
	assert.Equal(t, SequenceNumber(0).IsNewerThan(0), false)
	assert.Equal(t, SequenceNumber(0).IsNewerThan(1), false)
	assert.Equal(t, SequenceNumber(0x7FFF).IsNewerThan(0), true)
	assert.Equal(t, SequenceNumber(0x8000).IsNewerThan(0), false)

	// wrap around
	assert.Equal(t, SequenceNumber(0).IsNewerThan(0xFFFF), true)
	assert.Equal(t, SequenceNumber(0xFFFF).IsNewerThan(0), false)
	assert.Equal(t, SequenceNumber(0xFFFF).Next(), SequenceNumber(0))

	// every step forward is newer
	s := SequenceNumber(0xFFF0)
	for i := 0; i < 64; i += 1 {
		next := s.Next()
		assert.Equal(t, next.IsNewerThan(s), true)
		assert.Equal(t, s.IsNewerThan(next), false)
		s = next
	}
}

func TestReconnectBackoff(t *testing.T) {
	reconnect := NewReconnect(10*time.Millisecond, 40*time.Millisecond)
	assert.Equal(t, reconnect.timeout, 10*time.Millisecond)
	reconnect.After()
	assert.Equal(t, reconnect.timeout, 20*time.Millisecond)
	reconnect.After()
	assert.Equal(t, reconnect.timeout, 40*time.Millisecond)
	reconnect.After()
	assert.Equal(t, reconnect.timeout, 40*time.Millisecond)
	reconnect.Reset()
	assert.Equal(t, reconnect.timeout, 10*time.Millisecond)
}

// polls the condition until it holds or the timeout passes
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	endTime := time.Now().Add(timeout)
	for !condition() {
		if endTime.Before(time.Now()) {
			t.Fatalf("Condition not met after %s.", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleError(t *testing.T) {
	assert.Equal(t, HandleError(func() {}), nil)

	err := errors.New("callback failure")
	assert.Equal(t, HandleError(func() {
		panic(err)
	}), err)
}

func TestSubLogFn(t *testing.T) {
	lines := []string{}
	log := func(format string, a ...any) {
		lines = append(lines, fmt.Sprintf(format, a...))
	}

	SubLogFn(LogLevelInfo, log, "sub")("x=%d", 1)
	// above the configured verbosity
	SubLogFn(LogLevelTrace, log, "sub")("y=%d", 2)

	assert.Equal(t, lines, []string{"[sub]x=1"})
}
