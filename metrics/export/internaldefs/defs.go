package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/cmsync"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   cmsync.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   cmsync.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: cmsync.MetricRequestSuccess, Name: "cmsync_request_success_total", Help: "Backend requests answered with a 2xx status."},
	{ID: cmsync.MetricRequestFailure, Name: "cmsync_request_failure_total", Help: "Backend requests answered with an error status or an unreadable body."},
	{ID: cmsync.MetricRequestTimeout, Name: "cmsync_request_timeout_total", Help: "Backend requests aborted by the gateway timeout."},
	{ID: cmsync.MetricRequestNetwork, Name: "cmsync_request_network_error_total", Help: "Backend requests that failed before a response arrived."},
	{ID: cmsync.MetricRequestUnauthorized, Name: "cmsync_request_unauthorized_total", Help: "Backend requests answered with 401."},
	{ID: cmsync.MetricCacheHit, Name: "cmsync_cache_hit_total", Help: "Reads served from fresh cached data."},
	{ID: cmsync.MetricCacheMiss, Name: "cmsync_cache_miss_total", Help: "Reads that started a fetch."},
	{ID: cmsync.MetricCacheShared, Name: "cmsync_cache_shared_total", Help: "Reads that joined a fetch already in flight."},
	{ID: cmsync.MetricCacheDiscarded, Name: "cmsync_cache_discarded_total", Help: "Fetch results dropped because a newer request or session superseded them."},
	{ID: cmsync.MetricCacheInvalidated, Name: "cmsync_cache_invalidated_total", Help: "Cache entries marked stale by invalidation."},
	{ID: cmsync.MetricCacheEvicted, Name: "cmsync_cache_evicted_total", Help: "Idle cache entries evicted."},
	{ID: cmsync.MetricMutationSuccess, Name: "cmsync_mutation_success_total", Help: "Successful mutations."},
	{ID: cmsync.MetricMutationFailure, Name: "cmsync_mutation_failure_total", Help: "Failed mutations."},
	{ID: cmsync.MetricMutationRejected, Name: "cmsync_mutation_rejected_total", Help: "Mutations rejected by input validation."},
	{ID: cmsync.MetricSessionLogin, Name: "cmsync_session_login_total", Help: "Logins."},
	{ID: cmsync.MetricSessionLogout, Name: "cmsync_session_logout_total", Help: "Logouts."},
	{ID: cmsync.MetricSessionRestored, Name: "cmsync_session_restored_total", Help: "Sessions restored from storage."},
	{ID: cmsync.MetricSessionRejected, Name: "cmsync_session_rejected_total", Help: "Stored sessions discarded as invalid or expired."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: cmsync.MetricRequestLatency, Name: "cmsync_request_latency_seconds", Help: "Backend request latency."},
	{ID: cmsync.MetricMutationLatency, Name: "cmsync_mutation_latency_seconds", Help: "Mutation latency including validation."},
}

// Navigation counters are read from sources that also implement
// [NavigationSource].
const (
	NavigationsSupersededName = "cmsync_navigations_superseded_total"
	NavigationsSupersededHelp = "Navigations replaced by a newer one before delivery."
	CacheHitRatioName         = "cmsync_cache_hit_ratio"
	CacheHitRatioHelp         = "Share of cache reads answered without starting a fetch."
)

// NavigationSource is implemented by sources that route navigations.
type NavigationSource interface {
	NavigationsSuperseded() uint64
}

// Superseded reads the navigation counter from source when it has one.
func Superseded(source any) (uint64, bool) {
	nav, ok := source.(NavigationSource)
	if !ok {
		return 0, false
	}
	return nav.NavigationsSuperseded(), true
}

// HistogramUpperBounds are the latency bucket bounds in seconds, without
// the overflow bucket.
var HistogramUpperBounds = upperBounds()

// HistogramBounds are the bucket labels, ending in "+Inf".
var HistogramBounds = boundLabels()

// HistogramBoundSuffix are HistogramBounds in a form usable in metric names.
var HistogramBoundSuffix = boundSuffixes()

// BucketCount is the number of buckets in a snapshot histogram.
var BucketCount = len(HistogramUpperBounds) + 1

func upperBounds() []float64 {
	bounds := cmsync.LatencyBounds()
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Seconds()
	}
	return out
}

func boundLabels() []string {
	out := make([]string, 0, len(HistogramUpperBounds)+1)
	for _, b := range HistogramUpperBounds {
		out = append(out, strconv.FormatFloat(b, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

func boundSuffixes() []string {
	out := make([]string, 0, len(HistogramBounds))
	for _, label := range HistogramBounds[:len(HistogramBounds)-1] {
		out = append(out, strings.ReplaceAll(label, ".", "_"))
	}
	return append(out, "inf")
}

// CumulativeBuckets turns per-bucket counts into running totals over
// exactly BucketCount buckets. Missing buckets count as zero and extra
// ones are ignored.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, BucketCount)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
