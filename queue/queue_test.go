package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sact-io/sact/address"
	"github.com/sact-io/sact/envelope"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func payload(tag string) envelope.TransportEnvelope {
	return envelope.NewUserEnvelope([]byte(tag), address.Address{}, nil)
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New()
	q.Enqueue(payload("a"))
	q.Enqueue(payload("b"))
	q.Enqueue(payload("c"))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), first.Payload)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), second.Payload)
}

func TestDequeueEmptyReturnsFalse(t *testing.T) {
	q := New()
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestDequeueAllDrainsInOrder(t *testing.T) {
	q := New()
	q.Enqueue(payload("a"))
	q.Enqueue(payload("b"))
	q.Enqueue(payload("c"))

	all := q.DequeueAll()
	require.Len(t, all, 3)
	assert.Equal(t, []byte("a"), all[0].Payload)
	assert.Equal(t, []byte("b"), all[1].Payload)
	assert.Equal(t, []byte("c"), all[2].Payload)
	assert.True(t, q.IsEmpty())
}

func TestIsEmptyAndLen(t *testing.T) {
	q := New()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, int64(0), q.Len())

	q.Enqueue(payload("a"))
	assert.False(t, q.IsEmpty())
	assert.Equal(t, int64(1), q.Len())
}

func TestConcurrentEnqueuePreservesAllItems(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Enqueue(payload("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(producers*perProducer), q.Len())
}
