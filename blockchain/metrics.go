package blockchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	peakHeightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_blockchain_peak_height",
		Help: "Height of the current canonical peak.",
	})

	receiveBlockLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beacon_blockchain_receive_block_seconds",
		Help:    "Wall-clock latency of ReceiveBlock calls.",
		Buckets: prometheus.DefBuckets,
	})

	preValidationBatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beacon_blockchain_prevalidation_batch_seconds",
		Help:    "Wall-clock latency of a Pre-Validation Pipeline batch call.",
		Buckets: prometheus.DefBuckets,
	})
)
