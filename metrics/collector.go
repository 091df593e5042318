// Package metrics exposes box controller and store state to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	boxcontroller "MDEventDB/box_controller"
	diskbuffer "MDEventDB/disk_buffer"
)

const namespace = "mdbox"

// ControllerCollector reports a controller's box statistics on every scrape.
type ControllerCollector struct {
	bc *boxcontroller.BoxController

	boxes          *prometheus.Desc
	averageDepth   *prometheus.Desc
	maxBoxID       *prometheus.Desc
	eventsAtMax    *prometheus.Desc
	maxDepth       *prometheus.Desc
	splitThreshold *prometheus.Desc
}

var _ prometheus.Collector = (*ControllerCollector)(nil)

// NewControllerCollector labels every series with workspace=name.
func NewControllerCollector(name string, bc *boxcontroller.BoxController) *ControllerCollector {
	labels := prometheus.Labels{"workspace": name}
	return &ControllerCollector{
		bc: bc,
		boxes: prometheus.NewDesc(namespace+"_boxes",
			"Boxes per depth, kind is leaf or grid.",
			[]string{"depth", "kind"}, labels),
		averageDepth: prometheus.NewDesc(namespace+"_average_depth",
			"Volume-weighted average depth of the leaves.", nil, labels),
		maxBoxID: prometheus.NewDesc(namespace+"_max_box_id",
			"Exclusive upper bound of the box ids handed out.", nil, labels),
		eventsAtMax: prometheus.NewDesc(namespace+"_events_at_max_depth",
			"Events in leaves that exceed the split threshold at the maximum depth.", nil, labels),
		maxDepth: prometheus.NewDesc(namespace+"_max_depth",
			"Configured maximum depth.", nil, labels),
		splitThreshold: prometheus.NewDesc(namespace+"_split_threshold",
			"Configured split threshold in events.", nil, labels),
	}
}

func (c *ControllerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.boxes
	ch <- c.averageDepth
	ch <- c.maxBoxID
	ch <- c.eventsAtMax
	ch <- c.maxDepth
	ch <- c.splitThreshold
}

func (c *ControllerCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.bc.Statistics()

	for depth, n := range stats.NumMDBoxes {
		ch <- prometheus.MustNewConstMetric(c.boxes, prometheus.GaugeValue, float64(n), strconv.Itoa(depth), "leaf")
	}
	for depth, n := range stats.NumMDGridBoxes {
		ch <- prometheus.MustNewConstMetric(c.boxes, prometheus.GaugeValue, float64(n), strconv.Itoa(depth), "grid")
	}
	ch <- prometheus.MustNewConstMetric(c.averageDepth, prometheus.GaugeValue, stats.AverageDepth)
	ch <- prometheus.MustNewConstMetric(c.maxBoxID, prometheus.GaugeValue, float64(stats.MaxID))
	ch <- prometheus.MustNewConstMetric(c.eventsAtMax, prometheus.GaugeValue, float64(stats.NumEventsAtMax))
	ch <- prometheus.MustNewConstMetric(c.maxDepth, prometheus.GaugeValue, float64(c.bc.MaxDepth()))
	ch <- prometheus.MustNewConstMetric(c.splitThreshold, prometheus.GaugeValue, float64(c.bc.SplitThreshold()))
}

// StoreCollector reports the occupancy of a store's write buffer.
type StoreCollector struct {
	store *diskbuffer.Store

	events      *prometheus.Desc
	capacity    *prometheus.Desc
	blocks      *prometheus.Desc
	dirtyBlocks *prometheus.Desc
	pinned      *prometheus.Desc
}

var _ prometheus.Collector = (*StoreCollector)(nil)

func NewStoreCollector(name string, store *diskbuffer.Store) *StoreCollector {
	labels := prometheus.Labels{"workspace": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(namespace+"_write_buffer_"+metric, help, nil, labels)
	}
	return &StoreCollector{
		store:       store,
		events:      desc("events", "Events resident in the write buffer."),
		capacity:    desc("capacity_events", "Write buffer capacity in events."),
		blocks:      desc("blocks", "Blocks resident in the write buffer."),
		dirtyBlocks: desc("dirty_blocks", "Resident blocks not yet written to the pager."),
		pinned:      desc("pinned_blocks", "Resident blocks pinned against eviction."),
	}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.capacity
	ch <- c.blocks
	ch <- c.dirtyBlocks
	ch <- c.pinned
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.GaugeValue, float64(stats.Events))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(stats.Capacity))
	ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(stats.Blocks))
	ch <- prometheus.MustNewConstMetric(c.dirtyBlocks, prometheus.GaugeValue, float64(stats.DirtyBlocks))
	ch <- prometheus.MustNewConstMetric(c.pinned, prometheus.GaugeValue, float64(stats.Pinned))
}
