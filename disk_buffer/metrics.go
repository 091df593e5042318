package diskbuffer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeReads counts block reads by where they were served from.
	// Labels: "buffer", "cache", "disk"
	storeReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdbox_store_reads_total",
		Help: "Event block reads by source",
	}, []string{"source"})

	storeWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdbox_store_writes_total",
		Help: "Event blocks handed to the disk-backed store",
	})

	storeEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdbox_store_evictions_total",
		Help: "Event blocks evicted from the write buffer",
	})

	storeBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdbox_store_bytes_written_total",
		Help: "Encoded bytes written to the backing pager",
	})
)
