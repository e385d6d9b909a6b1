package word

import (
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordSize(t *testing.T) {
	require.Equal(t, uintptr(Size), unsafe.Sizeof(Word{}))
	// val must be the first field: the futex operates on its address.
	var w Word
	require.Equal(t, unsafe.Pointer(&w), unsafe.Pointer(&w.val))
}

func TestLoadStore(t *testing.T) {
	var w Word
	assert.Equal(t, uint32(0), w.Load())
	w.Store(42)
	assert.Equal(t, uint32(42), w.Load())
}

func TestAddReturnsOld(t *testing.T) {
	var w Word
	w.Store(3)
	assert.Equal(t, uint32(3), w.Add(-1))
	assert.Equal(t, uint32(2), w.Load())
	assert.Equal(t, uint32(2), w.Add(-1))
	assert.Equal(t, uint32(1), w.Add(-1))
	assert.Equal(t, uint32(0), w.Load())
}

func TestWaitUntilImmediate(t *testing.T) {
	var w Word
	w.Store(7)
	done := make(chan struct{})
	go func() {
		w.WaitUntil(7)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitUntil did not return for an already-equal value")
	}
}

func TestWaitUntilWakesOnStore(t *testing.T) {
	var w Word
	var wg sync.WaitGroup
	const waiters = 4

	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			w.WaitUntil(1)
		}()
	}

	// Let some waiters reach the parked path before publishing.
	time.Sleep(50 * time.Millisecond)
	w.Store(1)
	w.Notify()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("waiters did not observe the published value")
	}
}

func TestNotifyWithoutWaiters(t *testing.T) {
	var w Word
	// Must be a no-op, not a crash or a stray syscall failure.
	w.Notify()
	assert.Equal(t, uint32(0), w.Waiters())
}

func TestHandshakeOrdering(t *testing.T) {
	// A consumer that observes the generation word must also observe
	// every write published before it.
	var gen Word
	payload := 0

	done := make(chan int)
	go func() {
		gen.WaitUntil(1)
		done <- payload
	}()

	payload = 1234
	gen.Store(1)
	gen.Notify()

	select {
	case got := <-done:
		assert.Equal(t, 1234, got)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer never woke")
	}
}
