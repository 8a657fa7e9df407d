package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	poolWorkersLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dream_pool_workers_live",
			Help: "Number of live workers in the pool.",
		},
		[]string{"pool"},
	)

	poolWorkersIdle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dream_pool_workers_idle",
			Help: "Number of idle workers in the pool.",
		},
		[]string{"pool"},
	)

	poolQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dream_pool_queue_depth",
			Help: "Number of queued units of work not yet started.",
		},
		[]string{"pool"},
	)

	poolTasksDone = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dream_pool_tasks_completed_total",
			Help: "Total units of work completed without panicking.",
		},
		[]string{"pool"},
	)

	poolPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dream_pool_task_panics_total",
			Help: "Total units of work that panicked during execution.",
		},
		[]string{"pool"},
	)

	poolRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dream_pool_tasks_rejected_total",
			Help: "Total units of work rejected because the pool was shut down.",
		},
		[]string{"pool"},
	)

	poolEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dream_pool_evictions_total",
			Help: "Total times a worker announced a long blocking wait.",
		},
		[]string{"pool"},
	)

	poolTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dream_pool_task_duration_seconds",
			Help:    "Unit of work execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)
)

func init() {
	prometheus.MustRegister(poolWorkersLive)
	prometheus.MustRegister(poolWorkersIdle)
	prometheus.MustRegister(poolQueueDepth)
	prometheus.MustRegister(poolTasksDone)
	prometheus.MustRegister(poolPanics)
	prometheus.MustRegister(poolRejected)
	prometheus.MustRegister(poolEvictions)
	prometheus.MustRegister(poolTaskDuration)
}
