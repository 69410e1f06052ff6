package meter

import (
	"sync"
	"testing"
	"time"

	"github.com/itohio/wmr/pkg/geometry"
	"github.com/itohio/wmr/pkg/magneto"
	"github.com/stretchr/testify/assert"
)

// TestMeter_GracefulShutdown_NoCallbacksAfterClose tests that the meter stops
// sending callbacks after the input channel is closed.
func TestMeter_GracefulShutdown_NoCallbacksAfterClose(t *testing.T) {
	m := New(testConfig())

	var mu sync.Mutex
	callbackCount := 0
	m.OnUpdate(func(Snapshot) {
		mu.Lock()
		callbackCount++
		mu.Unlock()
	})

	input := make(chan magneto.RawSample, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.ProcessSamples(input)
	}()

	for k := 0; k < 3; k++ {
		input <- circleSample(k)
	}
	close(input)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessSamples did not finish within timeout")
	}

	mu.Lock()
	initialCount := callbackCount
	mu.Unlock()
	assert.Equal(t, 3, initialCount)

	// samples arriving after shutdown are still processed but not reported
	m.processSample(circleSample(3))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, initialCount, callbackCount, "No callbacks should be sent after channel closes")
	assert.Equal(t, 4, m.Totals().Samples)
}

// TestMeter_ResetShutdown tests that ResetShutdown allows callbacks again.
func TestMeter_ResetShutdown(t *testing.T) {
	m := New(testConfig())

	var mu sync.Mutex
	callbackCount := 0
	m.OnUpdate(func(Snapshot) {
		mu.Lock()
		callbackCount++
		mu.Unlock()
	})

	run := func(from, to int) {
		input := make(chan magneto.RawSample, 10)
		done := make(chan struct{})
		go func() {
			defer close(done)
			m.ProcessSamples(input)
		}()
		for k := from; k < to; k++ {
			input <- circleSample(k)
		}
		close(input)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("ProcessSamples did not finish within timeout")
		}
	}

	run(0, 2)
	mu.Lock()
	count1 := callbackCount
	mu.Unlock()

	m.ResetShutdown()
	run(2, 4)

	mu.Lock()
	count2 := callbackCount
	mu.Unlock()

	assert.Equal(t, 2, count1)
	assert.Greater(t, count2, count1, "Callbacks should resume after ResetShutdown")
}

// TestMeter_SnapshotIsACopy tests that callbacks receive data detached from
// the meter buffers.
func TestMeter_SnapshotIsACopy(t *testing.T) {
	m := New(testConfig())

	var got Snapshot
	m.OnUpdate(func(s Snapshot) { got = s })

	feed(m, 0, 10)
	first := got
	trace := append([]geometry.Coordinate(nil), first.Trace...)

	feed(m, 10, 20)
	assert.Equal(t, trace, first.Trace)
	assert.Greater(t, len(got.Trace), len(first.Trace))
}
