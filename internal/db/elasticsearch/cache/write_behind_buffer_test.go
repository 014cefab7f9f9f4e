package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/ristretto"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePulseClient struct {
	client.PulseClient
	bulkCalls     int
	bulkDocuments []client.DocumentMap
	failuresLeft  int
}

func (f *fakePulseClient) BulkIndex(
	_ context.Context,
	_ []client.MetaMap,
	documentInfo []client.DocumentMap,
	_ string,
) error {
	f.bulkCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("bulk rejected")
	}
	f.bulkDocuments = append(f.bulkDocuments, documentInfo...)
	return nil
}

type testDocument struct {
	Id       string `json:"_id"`
	Endpoint string `json:"endpoint"`
}

func newTestBuffer(t *testing.T, pc client.PulseClient, threshold int) *WriteBehindBufferImpl[testDocument] {
	t.Helper()
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	require.NoError(t, err)
	return NewWriteBehindBuffer[testDocument](rc, pc, "api_log_index", threshold, 10, zap.NewNop())
}

func TestWriteBehindBufferGet(t *testing.T) {
	buffer := newTestBuffer(t, &fakePulseClient{}, 5)

	t.Run("Returns error if key is not found", func(t *testing.T) {
		_, err := buffer.Get("missing")
		assert.Equal(t, ErrKeyNotFound, err)
	})

	t.Run("Returns cached values after Put", func(t *testing.T) {
		err := buffer.Put("recent", []testDocument{{Id: "a", Endpoint: "/api/a"}})
		require.NoError(t, err)
		buffer.cache.Wait()

		values, err := buffer.Get("recent")
		require.NoError(t, err)
		assert.Equal(t, "/api/a", values[0].Endpoint)
	})
}

func TestWriteBehindBufferPutDoesNotMutateReadSlices(t *testing.T) {
	buffer := newTestBuffer(t, &fakePulseClient{}, 100)

	require.NoError(t, buffer.Put("recent", []testDocument{{Id: "a", Endpoint: "/api/a"}}))
	buffer.cache.Wait()

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			values, err := buffer.Get("recent")
			if err != nil {
				continue
			}
			for _, value := range values {
				_ = value.Endpoint
			}
		}
	}()

	for i := 0; i < 50; i++ {
		require.NoError(t, buffer.Put("recent", []testDocument{{Id: "b", Endpoint: "/api/b"}}))
	}
	close(stop)
	<-readerDone

	buffer.cache.Wait()
	values, err := buffer.Get("recent")
	require.NoError(t, err)
	assert.Len(t, values, 10)
}

func TestWriteBehindBufferFlush(t *testing.T) {
	t.Run("Flushes once the threshold is reached", func(t *testing.T) {
		pc := &fakePulseClient{}
		buffer := newTestBuffer(t, pc, 2)

		require.NoError(t, buffer.Put("recent", []testDocument{{Id: "a"}}))
		assert.Zero(t, pc.bulkCalls)
		require.NoError(t, buffer.Put("recent", []testDocument{{Id: "b"}}))
		assert.Equal(t, 1, pc.bulkCalls)
		assert.Len(t, pc.bulkDocuments, 2)
	})

	t.Run("Retries a failed bulk once", func(t *testing.T) {
		pc := &fakePulseClient{failuresLeft: 1}
		buffer := newTestBuffer(t, pc, 5)

		require.NoError(t, buffer.Put("recent", []testDocument{{Id: "a"}}))
		require.NoError(t, buffer.Flush(context.Background()))
		assert.Equal(t, 2, pc.bulkCalls)
		assert.Len(t, pc.bulkDocuments, 1)
	})

	t.Run("Surfaces an error when the retry also fails", func(t *testing.T) {
		pc := &fakePulseClient{failuresLeft: 2}
		buffer := newTestBuffer(t, pc, 5)

		require.NoError(t, buffer.Put("recent", []testDocument{{Id: "a"}}))
		assert.Error(t, buffer.Flush(context.Background()))
	})

	t.Run("Flush with an empty queue is a no-op", func(t *testing.T) {
		pc := &fakePulseClient{}
		buffer := newTestBuffer(t, pc, 5)
		require.NoError(t, buffer.Flush(context.Background()))
		assert.Zero(t, pc.bulkCalls)
	})
}

func TestWriteBehindBufferCacheCap(t *testing.T) {
	buffer := newTestBuffer(t, &fakePulseClient{}, 100)

	for i := 0; i < 15; i++ {
		require.NoError(t, buffer.Put("recent", []testDocument{{Id: string(rune('a' + i))}}))
		buffer.cache.Wait()
	}

	values, err := buffer.Get("recent")
	require.NoError(t, err)
	assert.Len(t, values, 10)
}
