package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlaylistGenerations counts playlist compiler runs by outcome
	PlaylistGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "playlist_generations_total", Help: "Playlist generations by outcome."},
		[]string{"outcome"},
	)
	// SchedulerRuns counts scheduler task firings by task and outcome
	SchedulerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_task_runs_total", Help: "Scheduler task runs by task and outcome."},
		[]string{"task", "outcome"},
	)
	// SlotConflicts counts reservations refused because a route was full
	SlotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "slot_conflicts_total", Help: "Campaign reservations refused for lack of slots."},
	)
)

// RegisterDefault registers collectors to the registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlaylistGenerations)
		Registry.MustRegister(SchedulerRuns)
		Registry.MustRegister(SlotConflicts)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
