package mediator

import (
	"context"
	"testing"
	"time"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/service"
	"github.com/blocknode-org/blocknode/internal/stream"
	test "github.com/blocknode-org/blocknode/internal/testutils"
	"github.com/stretchr/testify/require"
)

type addCounter struct{ total float64 }

func (c *addCounter) Add(v float64) { c.total += v }

func items(n int) []*block.BlockItem {
	res := make([]*block.BlockItem, n)
	for i := range res {
		res[i] = &block.BlockItem{Kind: block.KindEventTransaction, Data: []byte{byte(i)}}
	}
	return res
}

func TestNew_NilStatus(t *testing.T) {
	m, err := New(nil)
	require.Error(t, err)
	require.Nil(t, m)
}

func TestPublishSubscribe(t *testing.T) {
	cnt := &addCounter{}
	m, err := New(service.NewStatus(), WithPublishedCounter(cnt))
	require.NoError(t, err)
	sub1, err := m.Subscribe(2, stream.Block)
	require.NoError(t, err)
	sub2, err := m.Subscribe(2, stream.Drop)
	require.NoError(t, err)
	require.Equal(t, 2, m.SubscriberCount())

	require.NoError(t, m.Publish(context.Background(), items(3)))
	require.NoError(t, m.Publish(context.Background(), nil))
	require.Len(t, (<-sub1.C()).Items, 3)
	require.Len(t, (<-sub2.C()).Items, 3)
	require.EqualValues(t, 3, cnt.total)

	m.Unsubscribe(sub2.ID)
	require.Equal(t, 1, m.SubscriberCount())
	m.Close()
	require.ErrorIs(t, m.Publish(context.Background(), items(1)), ErrStopped)
}

func TestNotifyUnrecoverableError(t *testing.T) {
	status := service.NewStatus()
	m, err := New(status)
	require.NoError(t, err)
	sub, err := m.Subscribe(1, stream.Block)
	require.NoError(t, err)

	m.NotifyUnrecoverableError()
	require.False(t, status.IsRunning())
	ev := <-sub.C()
	require.NotNil(t, ev.EndOfStream)
	require.Equal(t, block.StreamItemsUnknown, ev.EndOfStream.Status)
	test.WaitClosed(t, sub.Done(), time.Second)
	require.ErrorIs(t, m.Publish(context.Background(), items(1)), ErrStopped)
	require.Equal(t, 0, m.SubscriberCount())
}
