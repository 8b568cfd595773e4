// Package metrics exposes Prometheus instrumentation for supervised
// children on a private registry.
package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	childrenRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "subproc",
		Name:      "children_running",
		Help:      "Number of spawned children that have not been reaped.",
	})

	spawnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subproc",
		Name:      "spawns_total",
		Help:      "Total number of successful spawns per process name.",
	}, []string{"process"})

	exitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subproc",
		Name:      "exits_total",
		Help:      "Total number of reaped children by outcome (exit or signal).",
	}, []string{"process", "outcome"})

	signalFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subproc",
		Name:      "signal_failures_total",
		Help:      "Total number of signal deliveries that were refused or failed.",
	}, []string{"process"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "subproc",
		Name:      "build_info",
		Help:      "Build metadata for the running subproc binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(childrenRunning, spawnsTotal, exitsTotal, signalFailures, buildInfo)
}

// Registry returns the Prometheus registry containing all subproc metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ChildSpawned records a successful spawn.
func ChildSpawned(process string) {
	if process == "" {
		process = "unknown"
	}
	spawnsTotal.WithLabelValues(process).Inc()
	childrenRunning.Inc()
}

// ChildReaped records a collected exit status.
func ChildReaped(process string, signaled bool) {
	if process == "" {
		process = "unknown"
	}
	outcome := "exit"
	if signaled {
		outcome = "signal"
	}
	exitsTotal.WithLabelValues(process, outcome).Inc()
	childrenRunning.Dec()
}

// SignalFailed records a refused or failed signal delivery.
func SignalFailed(process string) {
	if process == "" {
		process = "unknown"
	}
	signalFailures.WithLabelValues(process).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
