package service

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pulselog/pulselog/internal/kpi/model"
	"go.uber.org/zap"
)

// GlobalKey aggregates across every endpoint and method.
const GlobalKey = "*"

const (
	minuteSpan      = time.Minute
	hourSpan        = time.Hour
	minuteHorizon   = 24 * time.Hour
	hourHorizon     = 30 * 24 * time.Hour
	minuteBucketCap = 32
	hourBucketCap   = 128
	snapshotRange   = model.Range1h
)

// Aggregator maintains rolling per-key request statistics. Update is the
// single mutation path and serializes per key; Query and Snapshot read a
// consistent copy without blocking writers on unrelated keys.
type Aggregator interface {
	Update(key string, latency float64, isError bool) model.WindowSnapshot
	Query(timeRange model.TimeRange, key string) model.KPIMetrics
	Breakdown(timeRange model.TimeRange) map[string]model.KPIMetrics
}

type AggregatorImpl struct {
	mu      sync.RWMutex
	windows map[string]*keyWindow
	now     func() time.Time
	logger  *zap.Logger
}

// keyWindow holds the time-bucketed statistics for one key. Two bucket
// tiers bound memory under sustained load: minute buckets back the short
// ranges and hour buckets back 7d/30d.
type keyWindow struct {
	mu      sync.Mutex
	minutes map[int64]*bucket
	hours   map[int64]*bucket
	random  *rand.Rand
}

// bucket keeps sufficient statistics plus a reservoir of latency samples
// for percentile estimation.
type bucket struct {
	count      int64
	errorCount int64
	sum        float64
	sumSquares float64
	max        float64
	samples    []float64
	seen       int64
}

func NewAggregator(logger *zap.Logger) *AggregatorImpl {
	return &AggregatorImpl{
		windows: make(map[string]*keyWindow),
		now:     time.Now,
		logger:  logger,
	}
}

// NewAggregatorWithClock is used by tests that need a deterministic clock.
func NewAggregatorWithClock(now func() time.Time, logger *zap.Logger) *AggregatorImpl {
	agg := NewAggregator(logger)
	agg.now = now
	return agg
}

func (a *AggregatorImpl) Update(key string, latency float64, isError bool) model.WindowSnapshot {
	now := a.now().UTC()
	window := a.window(key)
	global := a.window(GlobalKey)

	window.mu.Lock()
	window.add(now, latency, isError)
	snapshot := window.snapshot(key, now, snapshotRange.Duration())
	window.mu.Unlock()

	if key != GlobalKey {
		global.mu.Lock()
		global.add(now, latency, isError)
		global.mu.Unlock()
	}
	return snapshot
}

func (a *AggregatorImpl) Query(timeRange model.TimeRange, key string) model.KPIMetrics {
	now := a.now().UTC()
	lookupKey := key
	if lookupKey == "" {
		lookupKey = GlobalKey
	}

	a.mu.RLock()
	window, found := a.windows[lookupKey]
	a.mu.RUnlock()

	metrics := model.KPIMetrics{
		TimeRange: timeRange,
		StartTime: now.Add(-timeRange.Duration()),
		EndTime:   now,
	}
	if key != "" && key != GlobalKey {
		metrics.Endpoint = key
	}
	if !found {
		return metrics
	}

	window.mu.Lock()
	merged := window.merge(now, timeRange.Duration())
	window.mu.Unlock()

	return merged.toMetrics(metrics)
}

func (a *AggregatorImpl) Breakdown(timeRange model.TimeRange) map[string]model.KPIMetrics {
	a.mu.RLock()
	keys := make([]string, 0, len(a.windows))
	for key := range a.windows {
		if key == GlobalKey {
			continue
		}
		keys = append(keys, key)
	}
	a.mu.RUnlock()

	breakdown := make(map[string]model.KPIMetrics, len(keys))
	for _, key := range keys {
		metrics := a.Query(timeRange, key)
		if metrics.TotalRequests > 0 {
			breakdown[key] = metrics
		}
	}
	return breakdown
}

func (a *AggregatorImpl) window(key string) *keyWindow {
	a.mu.RLock()
	window, found := a.windows[key]
	a.mu.RUnlock()
	if found {
		return window
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if window, found = a.windows[key]; found {
		return window
	}
	window = &keyWindow{
		minutes: make(map[int64]*bucket),
		hours:   make(map[int64]*bucket),
		random:  rand.New(rand.NewSource(a.now().UnixNano())),
	}
	a.windows[key] = window
	return window
}

func (w *keyWindow) add(now time.Time, latency float64, isError bool) {
	w.evict(now)
	w.tierBucket(w.minutes, now.Truncate(minuteSpan).Unix()).
		observe(latency, isError, minuteBucketCap, w.random)
	w.tierBucket(w.hours, now.Truncate(hourSpan).Unix()).
		observe(latency, isError, hourBucketCap, w.random)
}

func (w *keyWindow) tierBucket(tier map[int64]*bucket, start int64) *bucket {
	b := tier[start]
	if b == nil {
		b = &bucket{}
		tier[start] = b
	}
	return b
}

// evict drops buckets older than each tier's retention horizon. It runs
// lazily inside the per-key lock so no background sweeper is needed.
func (w *keyWindow) evict(now time.Time) {
	minuteCutoff := now.Add(-minuteHorizon).Unix()
	for start := range w.minutes {
		if start < minuteCutoff {
			delete(w.minutes, start)
		}
	}
	hourCutoff := now.Add(-hourHorizon).Unix()
	for start := range w.hours {
		if start < hourCutoff {
			delete(w.hours, start)
		}
	}
}

func (b *bucket) observe(latency float64, isError bool, sampleCap int, random *rand.Rand) {
	b.count++
	if isError {
		b.errorCount++
	}
	b.sum += latency
	b.sumSquares += latency * latency
	if latency > b.max {
		b.max = latency
	}
	b.seen++
	if len(b.samples) < sampleCap {
		b.samples = append(b.samples, latency)
	} else if idx := random.Int63n(b.seen); idx < int64(sampleCap) {
		b.samples[idx] = latency
	}
}

// mergedWindow is a plain copy of the selected range's statistics; it is
// computed under the key lock and consumed outside it.
type mergedWindow struct {
	count      int64
	errorCount int64
	sum        float64
	sumSquares float64
	max        float64
	samples    []float64
}

func (w *keyWindow) merge(now time.Time, span time.Duration) mergedWindow {
	w.evict(now)
	tier, tierSpan := w.minutes, minuteSpan
	if span > minuteHorizon {
		tier, tierSpan = w.hours, hourSpan
	}
	cutoff := now.Add(-span).Truncate(tierSpan).Unix()

	var merged mergedWindow
	for start, b := range tier {
		if start < cutoff {
			continue
		}
		merged.count += b.count
		merged.errorCount += b.errorCount
		merged.sum += b.sum
		merged.sumSquares += b.sumSquares
		if b.max > merged.max {
			merged.max = b.max
		}
		merged.samples = append(merged.samples, b.samples...)
	}
	sort.Float64s(merged.samples)
	return merged
}

func (w *keyWindow) snapshot(key string, now time.Time, span time.Duration) model.WindowSnapshot {
	merged := w.merge(now, span)
	return model.WindowSnapshot{
		Key:         key,
		SampleCount: merged.count,
		Mean:        merged.mean(),
		StdDev:      merged.stdDev(),
		P95:         percentile(merged.samples, 0.95),
		P99:         percentile(merged.samples, 0.99),
		Max:         merged.max,
	}
}

func (m mergedWindow) mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m mergedWindow) stdDev() float64 {
	if m.count == 0 {
		return 0
	}
	mean := m.mean()
	variance := m.sumSquares/float64(m.count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (m mergedWindow) toMetrics(metrics model.KPIMetrics) model.KPIMetrics {
	metrics.TotalRequests = m.count
	metrics.ErrorCount = m.errorCount
	metrics.SuccessCount = m.count - m.errorCount
	if m.count > 0 {
		metrics.SuccessRate = float64(metrics.SuccessCount) / float64(m.count) * 100
		metrics.ErrorRate = float64(m.errorCount) / float64(m.count) * 100
	}
	metrics.AvgLatency = m.mean()
	metrics.P50Latency = percentile(m.samples, 0.50)
	metrics.P95Latency = percentile(m.samples, 0.95)
	metrics.P99Latency = percentile(m.samples, 0.99)
	metrics.MaxLatency = m.max
	return metrics
}

// percentile interpolates over a sorted sample slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := p * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
