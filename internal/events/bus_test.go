package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_DeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 2)

	bus.Subscribe(EventPlayerJoin, "a", func(ctx context.Context, e Event) error {
		got <- e
		return nil
	})
	bus.Subscribe(EventPlayerJoin, "b", func(ctx context.Context, e Event) error {
		got <- e
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventPlayerJoin, Source: "test", Payload: PlayerPayload{Username: "Steve"}})

	for i := 0; i < 2; i++ {
		select {
		case e := <-got:
			assert.Equal(t, "Steve", e.Payload.(PlayerPayload).Username)
			assert.False(t, e.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	bus.Stop()
}

func TestEmitSync_FirstErrorAndPanicRecovery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	boom := errors.New("boom")
	var calls atomic.Int32
	bus.Subscribe(EventPlayerChat, "fails", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return boom
	})
	bus.Subscribe(EventPlayerChat, "panics", func(ctx context.Context, e Event) error {
		calls.Add(1)
		panic("handler bug")
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventPlayerChat})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnsubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.SubscribeAll("stream", func(ctx context.Context, e Event) error { return nil })
	for _, et := range AllEventTypes {
		require.Equal(t, 1, bus.HandlerCount(et))
	}

	bus.UnsubscribeAll("stream")
	for _, et := range AllEventTypes {
		assert.Zero(t, bus.HandlerCount(et))
	}
}

func TestStop_DropsLaterEvents(t *testing.T) {
	bus := NewEventBus()
	var calls atomic.Int32
	bus.Subscribe(EventShutdown, "count", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	bus.Stop()
	bus.Stop()
	bus.Emit(context.Background(), Event{Type: EventShutdown})
	assert.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventShutdown}))
	assert.Zero(t, calls.Load())

	select {
	case <-bus.StopCh():
	default:
		t.Fatal("stop channel not closed")
	}
}
