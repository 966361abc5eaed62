package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_PublishSequencesEvents(t *testing.T) {
	feed := NewFeed()
	fixed := time.Unix(1700000000, 0)
	feed.now = func() time.Time { return fixed }

	ch := make(chan Event, 4)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	pairID := common.HexToHash("0x01")
	pool := common.HexToAddress("0x02")

	first := feed.Publish(EventPoolCreated, pairID, pool, &PoolCreated{Label: "Apples/Oranges"})
	second := feed.Publish(EventSwap, pairID, pool, &Swap{})

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	got := <-ch
	assert.Equal(t, first, got)
	assert.Equal(t, fixed.UnixNano(), got.Timestamp)
	created, ok := got.Data.(*PoolCreated)
	require.True(t, ok)
	assert.Equal(t, "Apples/Oranges", created.Label)

	got = <-ch
	assert.Equal(t, EventSwap, got.Kind)
}

func TestFeed_PublishWithoutSubscribers(t *testing.T) {
	feed := NewFeed()
	ev := feed.Publish(EventDeposit, common.Hash{}, common.Address{}, &Deposit{})
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestFeed_ConcurrentPublishersDeliverInOrder(t *testing.T) {
	const (
		publishers = 8
		perWorker  = 500
		total      = publishers * perWorker
	)
	feed := NewFeed()
	ch := make(chan Event, 16)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for w := 0; w < publishers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			pool := common.BigToAddress(common.Big1)
			for i := 0; i < perWorker; i++ {
				feed.Publish(EventSwap, common.BytesToHash([]byte{byte(w)}), pool, &Swap{})
			}
		}(w)
	}

	var last uint64
	for i := 0; i < total; i++ {
		select {
		case ev := <-ch:
			require.Equal(t, last+1, ev.Seq, "event %d arrived out of order", i)
			last = ev.Seq
		case <-time.After(5 * time.Second):
			require.FailNow(t, "timed out waiting for events", "received %d of %d", i, total)
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(total), last)
}
