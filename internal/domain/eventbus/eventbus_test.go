package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformtesting "matrix-server-go/internal/platform/testing"
)

type memoryStore struct {
	mu     sync.Mutex
	events []TransmissionEvent
	err    error
}

func (s *memoryStore) Store(_ context.Context, event TransmissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memoryStore) all() []TransmissionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TransmissionEvent(nil), s.events...)
}

func newBus(t *testing.T) *AsyncEventBus {
	bus := NewAsyncEventBus(2, 16, platformtesting.SetupTestLogger(t))
	bus.Start()
	t.Cleanup(bus.Stop)
	return bus
}

func TestAsyncEventBus_DeliversToSubscribers(t *testing.T) {
	bus := newBus(t)
	store := &memoryStore{}
	require.NoError(t, SetupEventHandlers(bus, store, platformtesting.SetupTestLogger(t)))

	bus.PublishAsync(EventTransmissionCompleted, TransmissionEvent{ID: "a", Mode: ModeURL, Success: true})
	bus.PublishAsync(EventTransmissionCompleted, TransmissionEvent{ID: "b", Mode: ModeStored, Error: "Image not found"})
	bus.WaitAsync()

	events := store.all()
	require.Len(t, events, 2)
	ids := []string{events[0].ID, events[1].ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestAsyncEventBus_StoreFailureIsLogged(t *testing.T) {
	bus := newBus(t)
	store := &memoryStore{err: errors.New("disk full")}
	require.NoError(t, SetupEventHandlers(bus, store, platformtesting.SetupTestLogger(t)))

	bus.PublishAsync(EventTransmissionCompleted, TransmissionEvent{ID: "x"})
	bus.WaitAsync()

	assert.Empty(t, store.all())
}

func TestAsyncEventBus_RecoversFromPanickingSubscriber(t *testing.T) {
	bus := newBus(t)
	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.Subscribe("topic", func(s string) {
		if s == "boom" {
			panic("subscriber failure")
		}
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}))

	bus.PublishAsync("topic", "boom")
	bus.PublishAsync("topic", "ok")
	bus.WaitAsync()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ok"}, got)
}

func TestAsyncEventBus_DropsWhenStopped(t *testing.T) {
	bus := NewAsyncEventBus(1, 1, platformtesting.SetupTestLogger(t))
	bus.Start()

	delivered := make(chan string, 4)
	require.NoError(t, bus.Subscribe("topic", func(s string) { delivered <- s }))

	bus.PublishAsync("topic", "before")
	bus.Stop()
	bus.Stop()
	bus.PublishAsync("topic", "after")

	select {
	case s := <-delivered:
		assert.Equal(t, "before", s)
	case <-time.After(time.Second):
		t.Fatal("queued event was not drained on stop")
	}
	assert.Equal(t, int64(1), bus.Dropped())
	assert.True(t, bus.HasCallback("topic"))
}

func TestAsyncEventBus_PublishRacingStopNeverStrandsEvents(t *testing.T) {
	for round := 0; round < 50; round++ {
		bus := NewAsyncEventBus(2, 64, platformtesting.SetupTestLogger(t))
		require.NoError(t, bus.Subscribe("topic", func(int) {}))
		bus.Start()

		var publishers sync.WaitGroup
		for p := 0; p < 4; p++ {
			publishers.Add(1)
			go func() {
				defer publishers.Done()
				for i := 0; i < 20; i++ {
					bus.PublishAsync("topic", i)
				}
			}()
		}
		bus.Stop()
		publishers.Wait()

		done := make(chan struct{})
		go func() {
			bus.WaitAsync()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: WaitAsync blocked after Stop", round)
		}
	}
}

func TestAsyncEventBus_SynchronousPublish(t *testing.T) {
	bus := newBus(t)
	var got TransmissionEvent
	handler := func(ev TransmissionEvent) { got = ev }
	require.NoError(t, bus.Subscribe(EventTransmissionCompleted, handler))

	bus.Publish(EventTransmissionCompleted, TransmissionEvent{ID: "sync"})
	assert.Equal(t, "sync", got.ID)

	require.NoError(t, bus.Unsubscribe(EventTransmissionCompleted, handler))
	assert.False(t, bus.HasCallback(EventTransmissionCompleted))
}
