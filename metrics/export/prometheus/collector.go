package prometheus

import (
	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/cmsync/metrics/export/internaldefs"
)

// Collector exposes client metrics to a client_golang registry. It reads a
// fresh snapshot on every scrape.
type Collector struct {
	source     MetricsSource
	counters   []*promclient.Desc
	histograms []*promclient.Desc
	dropped    *promclient.Desc
	hitRatio   *promclient.Desc
	// superseded is nil when the source does not route navigations.
	superseded *promclient.Desc
}

var _ promclient.Collector = (*Collector)(nil)

// NewCollector returns a Collector for source. Register it with
// promclient.Registerer.Register.
func NewCollector(source MetricsSource) *Collector {
	c := &Collector{
		source:   source,
		dropped:  promclient.NewDesc(eventsDroppedName, eventsDroppedHelp, nil, nil),
		hitRatio: promclient.NewDesc(internaldefs.CacheHitRatioName, internaldefs.CacheHitRatioHelp, nil, nil),
	}
	if _, ok := internaldefs.Superseded(source); ok {
		c.superseded = promclient.NewDesc(internaldefs.NavigationsSupersededName, internaldefs.NavigationsSupersededHelp, nil, nil)
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, promclient.NewDesc(def.Name, def.Help, nil, nil))
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, promclient.NewDesc(def.Name, def.Help, nil, nil))
	}
	return c
}

func (c *Collector) Describe(ch chan<- *promclient.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.dropped
	ch <- c.hitRatio
	if c.superseded != nil {
		ch <- c.superseded
	}
}

func (c *Collector) Collect(ch chan<- promclient.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()
	ch <- promclient.MustNewConstMetric(c.dropped, promclient.CounterValue, float64(c.source.EventsDropped()))
	if c.superseded != nil {
		superseded, _ := internaldefs.Superseded(c.source)
		ch <- promclient.MustNewConstMetric(c.superseded, promclient.CounterValue, float64(superseded))
	}
	if len(snapshot.Counters) == 0 {
		return
	}

	for i, def := range internaldefs.CounterDefs {
		ch <- promclient.MustNewConstMetric(c.counters[i], promclient.CounterValue, float64(snapshot.Counters[def.ID]))
	}
	if snapshot.CacheReads() > 0 {
		ch <- promclient.MustNewConstMetric(c.hitRatio, promclient.GaugeValue, snapshot.CacheHitRatio())
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(raw)
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[j]
		}
		count := cumulative[len(cumulative)-1]
		ch <- promclient.MustNewConstHistogram(c.histograms[i], count, snapshot.LatencySums[def.ID].Seconds(), buckets)
	}
}
