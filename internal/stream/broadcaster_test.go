package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type gaugeMock struct {
	mu  sync.Mutex
	val float64
}

func (g *gaugeMock) Set(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.val = v
}

func (g *gaugeMock) get() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.val
}

func TestBroadcaster_PublishToAll(t *testing.T) {
	g := &gaugeMock{}
	b := NewBroadcaster[int]("test", g)
	s1, err := b.Subscribe(4, Block)
	require.NoError(t, err)
	s2, err := b.Subscribe(4, Drop)
	require.NoError(t, err)
	require.NotEqual(t, s1.ID, s2.ID)
	require.Equal(t, 2, b.Count())
	require.EqualValues(t, 2, g.get())

	require.NoError(t, b.Publish(context.Background(), 7))
	require.Equal(t, 7, <-s1.C())
	require.Equal(t, 7, <-s2.C())

	b.Unsubscribe(s1.ID)
	require.Equal(t, 1, b.Count())
	require.ErrorIs(t, s1.Err(), ErrUnsubscribed)
	require.NoError(t, s2.Err())
	require.NoError(t, b.Publish(context.Background(), 8))
	require.Equal(t, 8, <-s2.C())
	require.Len(t, s1.C(), 0)
}

func TestBroadcaster_DropEvictsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster[int]("test", nil)
	slow, err := b.Subscribe(1, Drop)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), 1))
	require.NoError(t, b.Publish(context.Background(), 2))
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber not evicted")
	}
	require.Error(t, slow.Err())
	require.Equal(t, 0, b.Count())
	require.Equal(t, 1, <-slow.C())
}

func TestBroadcaster_BlockWaitsForReader(t *testing.T) {
	b := NewBroadcaster[int]("test", nil)
	sub, err := b.Subscribe(0, Block)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- b.Publish(context.Background(), 2) }()
	require.Equal(t, 2, <-sub.C())
	require.NoError(t, <-done)
}

func TestBroadcaster_TimeoutRemovesSubscribersWhichMissedEvent(t *testing.T) {
	b := NewBroadcaster[int]("test", nil)
	roomy, err := b.Subscribe(1, Block)
	require.NoError(t, err)
	full, err := b.Subscribe(0, Block)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, 1)
	require.ErrorIs(t, err, ErrMissedEvent)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the subscriber which got the event stays, the other one does not go on without it
	require.Equal(t, 1, <-roomy.C())
	require.NoError(t, roomy.Err())
	require.ErrorIs(t, full.Err(), ErrMissedEvent)
	require.Equal(t, 1, b.Count())

	require.NoError(t, b.Publish(context.Background(), 2))
	require.Equal(t, 2, <-roomy.C())
}

func TestBroadcaster_CancelledBeforeTurnDeliversNothing(t *testing.T) {
	b := NewBroadcaster[int]("test", nil)
	blocking, err := b.Subscribe(0, Block)
	require.NoError(t, err)
	other, err := b.Subscribe(4, Block)
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() { first <- b.Publish(context.Background(), 1) }()
	// the first publish holds the turn until the blocking subscriber reads
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, b.Publish(ctx, 2), context.DeadlineExceeded)

	require.Equal(t, 1, <-blocking.C())
	require.NoError(t, <-first)
	require.Equal(t, 1, <-other.C())
	require.Len(t, other.C(), 0)
	require.Equal(t, 2, b.Count())
}

func TestBroadcaster_ConcurrentPublishersKeepOrder(t *testing.T) {
	b := NewBroadcaster[int]("test", nil)
	const publishers, events = 4, 50
	subs := make([]*Subscription[int], 3)
	for i := range subs {
		var err error
		subs[i], err = b.Subscribe(i, Block)
		require.NoError(t, err)
	}

	received := make([][]int, len(subs))
	var readers sync.WaitGroup
	for i, s := range subs {
		readers.Add(1)
		go func(i int, s *Subscription[int]) {
			defer readers.Done()
			for n := 0; n < publishers*events; n++ {
				received[i] = append(received[i], <-s.C())
			}
		}(i, s)
	}

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for e := 0; e < events; e++ {
				require.NoError(t, b.Publish(context.Background(), p*events+e))
			}
		}(p)
	}
	wg.Wait()
	readers.Wait()

	require.Len(t, received[0], publishers*events)
	for i := 1; i < len(received); i++ {
		require.Equal(t, received[0], received[i])
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster[string]("test", nil)
	sub, err := b.Subscribe(1, Block)
	require.NoError(t, err)
	b.Close()
	b.Close()
	<-sub.Done()
	require.ErrorIs(t, sub.Err(), ErrClosed)
	require.ErrorIs(t, b.Publish(context.Background(), "x"), ErrClosed)
	_, err = b.Subscribe(1, Block)
	require.ErrorIs(t, err, ErrClosed)
}

func TestBroadcaster_UnsubscribeUnblocksPublisher(t *testing.T) {
	b := NewBroadcaster[int]("test", nil)
	sub, err := b.Subscribe(0, Block)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- b.Publish(context.Background(), 1) }()
	time.Sleep(10 * time.Millisecond)
	b.Unsubscribe(sub.ID)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked")
	}
}
