package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber should only receive the events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("question.resolved"),
						eventWithName("round.finished"),
					},
					subscribers: []subscriber{
						{name: "metrics", subscribeTo: []string{"question.resolved"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("question.resolved")}, out.received["metrics"])
			},
		},

		"an event should be dispatched to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("member.xp_adjusted"),
					},
					subscribers: []subscriber{
						{name: "leaderboard", subscribeTo: []string{"member.xp_adjusted"}},
						{name: "metrics", subscribeTo: []string{"member.xp_adjusted"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["leaderboard"], 1)
				assert.Len(t, out.received["metrics"], 1)
			},
		},

		"events without subscribers should be ignored": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("question.added"),
						eventWithName("round.finished"),
						eventWithName("question.added"),
					},
					subscribers: []subscriber{
						{name: "rounds", subscribeTo: []string{"round.finished"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("round.finished")}, out.received["rounds"])
				assert.Len(t, out.received, 1)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus(event.WithPoolSize(2))
			for _, s := range in.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	b := event.NewBus()

	var calls atomic.Int32
	b.Subscribe("e1", func(context.Context, event.Event) error {
		panic("boom")
	})
	b.Subscribe("e1", func(context.Context, event.Event) error {
		calls.Add(1)
		return errors.New("handler failed")
	})
	b.Subscribe("e1", func(context.Context, event.Event) error {
		calls.Add(1)
		return nil
	})

	b.Publish(context.Background(), eventWithName("e1"))
	b.Stop()

	assert.EqualValues(t, 2, calls.Load())
}

func TestBus_SlowEventDoesNotBlockOthers(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(1))

	release := make(chan struct{})
	b.Subscribe("slow", func(context.Context, event.Event) error {
		<-release
		return nil
	})

	fast := make(chan struct{})
	b.Subscribe("fast", func(context.Context, event.Event) error {
		close(fast)
		return nil
	})

	b.Publish(context.Background(), eventWithName("slow"))
	b.Publish(context.Background(), eventWithName("fast"))

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast handler should not wait for the slow one")
	}

	close(release)
	b.Stop()
}

func TestBus_PublishAfterStop(t *testing.T) {
	b := event.NewBus()

	var calls atomic.Int32
	b.Subscribe("e1", func(context.Context, event.Event) error {
		calls.Add(1)
		return nil
	})

	b.Stop()
	b.Publish(context.Background(), eventWithName("e1"))

	require.Zero(t, calls.Load())
}

func TestBus_StopWaitsForEventsPublishedByHandlers(t *testing.T) {
	b := event.NewBus()

	started := make(chan struct{})
	release := make(chan struct{})
	b.Subscribe("member.xp_adjusted", func(ctx context.Context, _ event.Event) error {
		close(started)
		<-release
		b.Publish(ctx, eventWithName("leaderboard.updated"))
		return nil
	})

	var calls atomic.Int32
	b.Subscribe("leaderboard.updated", func(context.Context, event.Event) error {
		calls.Add(1)
		return nil
	})

	b.Publish(context.Background(), eventWithName("member.xp_adjusted"))
	<-started

	stopped := make(chan struct{})
	go func() {
		b.Stop()
		close(stopped)
	}()

	// Give Stop the time to mark the bus as stopped.
	time.Sleep(50 * time.Millisecond)
	b.Publish(context.Background(), eventWithName("leaderboard.updated"))

	close(release)
	<-stopped

	assert.EqualValues(t, 1, calls.Load())
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
