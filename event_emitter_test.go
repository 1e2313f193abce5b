package guestws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleListener(t *testing.T) {
	emitter := NewEventEmitter[string, int]()
	var mu sync.Mutex
	var results []int

	emitter.On("event", func(data int) {
		mu.Lock()
		results = append(results, data)
		mu.Unlock()
	})

	emitter.Emit("event", 42)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{42}, results)
}

func TestMultipleListenersRunInOrder(t *testing.T) {
	emitter := NewEventEmitter[EventType, Status]()
	var results []State

	emitter.On(EventStateChange, func(s Status) {
		results = append(results, s.State)
	})
	emitter.On(EventStateChange, func(s Status) {
		results = append(results, s.State+1)
	})

	emitter.Emit(EventStateChange, Status{State: StateConnecting})

	assert.Equal(t, []State{StateConnecting, StateOpen}, results)
	assert.Equal(t, 2, emitter.Len(EventStateChange))
}

func TestNoListeners(t *testing.T) {
	emitter := NewEventEmitter[string, int]()

	assert.NotPanics(t, func() {
		emitter.Emit("nonexistentEvent", 100)
	})
}

func TestMultipleEvents(t *testing.T) {
	emitter := NewEventEmitter[EventType, Status]()
	var opened, closed Status

	emitter.On(EventOpen, func(s Status) { opened = s })
	emitter.On(EventClose, func(s Status) { closed = s })

	emitter.Emit(EventOpen, Status{State: StateOpen})
	emitter.Emit(EventClose, Status{State: StateClosed, Reason: ReasonNormal})

	assert.Equal(t, StateOpen, opened.State)
	assert.Equal(t, ReasonNormal, closed.Reason)
}

func TestListenerCanRegisterDuringEmit(t *testing.T) {
	emitter := NewEventEmitter[string, int]()
	late := 0

	emitter.On("event", func(int) {
		emitter.On("event", func(int) { late++ })
	})

	emitter.Emit("event", 1)
	assert.Zero(t, late)

	emitter.Emit("event", 2)
	assert.Equal(t, 1, late)
}

func TestCloseRemovesListeners(t *testing.T) {
	emitter := NewEventEmitter[string, int]()
	calls := 0
	emitter.On("event", func(int) { calls++ })

	emitter.Close()
	emitter.Emit("event", 1)

	assert.Zero(t, calls)
	assert.Zero(t, emitter.Len("event"))
}

func TestConcurrent(t *testing.T) {
	emitter := NewEventEmitter[string, int]()
	var mu sync.Mutex
	var results []int
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emitter.On("event", func(data int) {
				mu.Lock()
				results = append(results, data+i)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()

	for j := 0; j < 10; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			emitter.Emit("event", j)
		}(j)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// 10 listeners * 10 emissions
	assert.Len(t, results, 100)
}
