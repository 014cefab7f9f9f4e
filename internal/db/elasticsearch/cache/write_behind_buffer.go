package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/client"
	"go.uber.org/zap"
)

var (
	ErrKeyNotFound = errors.New("key not found within the cache")
	ErrSetFailed   = errors.New("failed to set value in cache")
)

const flushTimeout = 10 * time.Second

// WriteBehindBuffer batches document writes to an Elasticsearch index and
// keeps the most recent values readable from an in-process cache. Writes
// are durable only after a flush; callers treat persistence as
// best-effort relative to their own response path.
type WriteBehindBuffer[ValueType any] interface {
	Get(key string) ([]ValueType, error)
	Put(key string, values []ValueType) error
	Flush(ctx context.Context) error
}

type WriteBehindBufferImpl[ValueType any] struct {
	mu             sync.Mutex
	cache          *ristretto.Cache
	writeQueue     []ValueType
	pc             client.PulseClient
	indexName      string
	flushThreshold int
	cacheCap       int
	logger         *zap.Logger
}

func NewWriteBehindBuffer[ValueType any](
	cache *ristretto.Cache,
	pc client.PulseClient,
	indexName string,
	flushThreshold int,
	cacheCap int,
	logger *zap.Logger,
) *WriteBehindBufferImpl[ValueType] {
	if flushThreshold <= 0 {
		flushThreshold = 50
	}
	if cacheCap <= 0 {
		cacheCap = 100
	}
	return &WriteBehindBufferImpl[ValueType]{
		cache:          cache,
		writeQueue:     make([]ValueType, 0, flushThreshold),
		pc:             pc,
		indexName:      indexName,
		flushThreshold: flushThreshold,
		cacheCap:       cacheCap,
		logger:         logger,
	}
}

func (wb *WriteBehindBufferImpl[ValueType]) Get(key string) ([]ValueType, error) {
	value, found := wb.cache.Get(key)
	if !found {
		return nil, ErrKeyNotFound
	}
	typedValue, ok := value.([]ValueType)
	if !ok {
		return nil, fmt.Errorf("value not of expected type %T returned from cache when getting", value)
	}
	return typedValue, nil
}

func (wb *WriteBehindBufferImpl[ValueType]) Put(key string, values []ValueType) error {
	wb.mu.Lock()
	wb.writeQueue = append(wb.writeQueue, values...)
	mustFlush := len(wb.writeQueue) >= wb.flushThreshold
	wb.mu.Unlock()

	if mustFlush {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := wb.Flush(ctx); err != nil {
			return fmt.Errorf("error flushing to Elasticsearch: %w", err)
		}
	}

	cached := values
	if oldValue, found := wb.cache.Get(key); found {
		typedOldValue, ok := oldValue.([]ValueType)
		if !ok {
			return fmt.Errorf("value not of expected type %T returned from cache when putting", oldValue)
		}
		// copy rather than append in place: the cached slice may still
		// be read concurrently through Get
		cached = make([]ValueType, 0, len(typedOldValue)+len(values))
		cached = append(cached, typedOldValue...)
		cached = append(cached, values...)
		if len(cached) > wb.cacheCap {
			cached = cached[len(cached)-wb.cacheCap:]
		}
	}
	if set := wb.cache.Set(key, cached, int64(len(cached))); !set {
		return ErrSetFailed
	}
	return nil
}

// Flush bulk-indexes the queued documents, retrying the bulk call once
// before giving the batch up.
func (wb *WriteBehindBufferImpl[ValueType]) Flush(ctx context.Context) error {
	wb.mu.Lock()
	if len(wb.writeQueue) == 0 {
		wb.mu.Unlock()
		return nil
	}
	pending := wb.writeQueue
	wb.writeQueue = make([]ValueType, 0, wb.flushThreshold)
	wb.mu.Unlock()

	metaMap, documentMap, err := client.ToMetaAndDocumentMap(pending)
	if err != nil {
		return fmt.Errorf("error converting queued values for flush: %w", err)
	}

	err = wb.pc.BulkIndex(ctx, metaMap, documentMap, wb.indexName)
	if err != nil {
		wb.logger.Warn("Bulk flush failed, retrying once",
			zap.String("index_name", wb.indexName),
			zap.Error(err),
		)
		err = wb.pc.BulkIndex(ctx, metaMap, documentMap, wb.indexName)
	}
	if err != nil {
		return fmt.Errorf("error bulk indexing %d queued documents: %w", len(pending), err)
	}
	wb.logger.Debug("Flushed write-behind queue",
		zap.String("index_name", wb.indexName),
		zap.Int("document_count", len(pending)),
	)
	return nil
}

// StartPeriodicFlush flushes the queue on a fixed interval until the
// context is cancelled, then flushes one final time.
func (wb *WriteBehindBufferImpl[ValueType]) StartPeriodicFlush(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := wb.Flush(flushCtx); err != nil {
				wb.logger.Error("Final flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := wb.Flush(flushCtx); err != nil {
				wb.logger.Error("Periodic flush failed", zap.Error(err))
			}
			cancel()
		}
	}
}
