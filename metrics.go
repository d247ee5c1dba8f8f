package cmsync

import (
	"sync/atomic"
	"time"
)

// MetricID names one client counter.
type MetricID uint16

const (
	MetricRequestSuccess MetricID = iota
	MetricRequestFailure
	MetricRequestTimeout
	MetricRequestNetwork
	MetricRequestUnauthorized
	MetricCacheHit
	MetricCacheMiss
	MetricCacheShared
	// MetricCacheDiscarded counts responses dropped because a newer
	// generation or a session change superseded them.
	MetricCacheDiscarded
	MetricCacheInvalidated
	MetricCacheEvicted
	MetricMutationSuccess
	MetricMutationFailure
	MetricMutationRejected
	MetricSessionLogin
	MetricSessionLogout
	MetricSessionRestored
	MetricSessionRejected
	MetricRequestLatency
	MetricMutationLatency
	metricIDCount
)

// histogramIDs are the metrics that record latency. A histogram's slot is
// its index here.
var histogramIDs = [...]MetricID{MetricRequestLatency, MetricMutationLatency}

// latencyBounds are the inclusive upper bounds of every bucket but the
// last, sized for round trips to the dashboard backend. Anything slower
// than the last bound lands in the overflow bucket.
var latencyBounds = [...]time.Duration{
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
}

const (
	histBucketCount = len(latencyBounds) + 1
	cacheLineSize   = 64
)

// LatencyBounds returns the bucket upper bounds used by every latency
// histogram. Snapshots carry one more bucket for slower samples.
func LatencyBounds() []time.Duration {
	return append([]time.Duration(nil), latencyBounds[:]...)
}

type latencyHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and latency histograms. A nil or
// disabled Metrics ignores writes.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [len(histogramIDs)]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of [Metrics]. Histograms and
// LatencySums are filled only when latency recording is on.
type MetricsSnapshot struct {
	Counters    map[MetricID]uint64
	Histograms  map[MetricID][]uint64
	LatencySums map[MetricID]time.Duration
}

// CacheReads returns how many cache reads the snapshot saw.
func (s MetricsSnapshot) CacheReads() uint64 {
	return s.Counters[MetricCacheHit] + s.Counters[MetricCacheShared] + s.Counters[MetricCacheMiss]
}

// CacheHitRatio is the share of cache reads answered without starting a
// fetch, counting reads that joined one already in flight. It is 0 before
// the first read.
func (s MetricsSnapshot) CacheHitRatio() float64 {
	reads := s.CacheReads()
	if reads == 0 {
		return 0
	}
	return float64(s.Counters[MetricCacheHit]+s.Counters[MetricCacheShared]) / float64(reads)
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d for a histogram metric. Other IDs are ignored, and so
// are negative durations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || d < 0 {
		return
	}
	slot, ok := histogramSlot(id)
	if !ok {
		return
	}
	h := &m.histograms[slot]
	atomic.AddUint64(&h.buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&h.sumNanos, uint64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histograms when latency
// recording is on. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:    map[MetricID]uint64{},
			Histograms:  map[MetricID][]uint64{},
			LatencySums: map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:    make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:  make(map[MetricID][]uint64, len(histogramIDs)),
		LatencySums: make(map[MetricID]time.Duration, len(histogramIDs)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if !m.enableLatency {
		return s
	}
	for slot, id := range histogramIDs {
		h := &m.histograms[slot]
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&h.buckets[i])
		}
		s.Histograms[id] = buckets
		s.LatencySums[id] = time.Duration(atomic.LoadUint64(&h.sumNanos))
	}
	return s
}

func histogramSlot(id MetricID) (int, bool) {
	for slot, h := range histogramIDs {
		if h == id {
			return slot, true
		}
	}
	return 0, false
}

// bucketIndex returns the first bucket whose bound is at least d.
func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
