package outbuf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	b := New(16)
	n, ok := b.Put([]byte("hello"))
	require.True(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, b.GetFill())

	out := make([]byte, 5)
	n, ok = b.Get(out)
	require.True(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(out))
	assert.Equal(t, 0, b.GetFill())
}

func TestPutBlocksWhenFullThenUnblocks(t *testing.T) {
	b := New(4)
	_, ok := b.Put([]byte("abcd"))
	require.True(t, ok)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, ok := b.Put([]byte("ef"))
		assert.True(t, ok)
		assert.Equal(t, 2, n)
		close(done)
	}()

	// Give the goroutine time to block, then drain two bytes to free space.
	time.Sleep(20 * time.Millisecond)
	out := make([]byte, 2)
	b.Get(out)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Get freed space")
	}
	wg.Wait()
}

func TestStopUnblocksPutAndGet(t *testing.T) {
	b := New(4)
	_, _ = b.Put([]byte("ab"))

	putDone := make(chan bool, 1)
	go func() {
		_, ok := b.Put([]byte("cdef")) // cdef needs more room than remains (2 bytes)
		putDone <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	b.Stop()

	select {
	case ok := <-putDone:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Stop")
	}

	_, ok := b.Get(make([]byte, 4))
	assert.False(t, ok)
}

func TestResetClearsStopFlag(t *testing.T) {
	b := New(4)
	b.Stop()
	assert.True(t, b.Stopped())
	b.Reset()
	assert.False(t, b.Stopped())

	n, ok := b.Put([]byte("xy"))
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestFreeCallbackInvokedOnDrain(t *testing.T) {
	b := New(8)
	var drained int
	var mu sync.Mutex
	b.SetFreeCallback(func(n int) {
		mu.Lock()
		drained += n
		mu.Unlock()
	})

	b.Put([]byte("abcdef"))
	b.Get(make([]byte, 3))
	b.Get(make([]byte, 3))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 6, drained)
}

func TestTimeGetSubtractsDriverFill(t *testing.T) {
	b := New(1 << 20)
	b.SetParams(Params{BytesPerSecond: 1000})
	b.SetBuffFillGetter(func() int { return 200 })

	b.Put(make([]byte, 1000))
	b.Get(make([]byte, 1000))

	// 1000 bytes drained at 1000 B/s = 1.0s, minus 200 bytes (0.2s) of
	// driver-held audio not yet audible = 0.8s.
	assert.InDelta(t, 0.8, b.TimeGet(), 0.001)
}

func TestWaitReturnsWhenEmpty(t *testing.T) {
	b := New(4)
	b.Put([]byte("ab"))

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Get(make([]byte, 2))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return once buffer drained")
	}
}
