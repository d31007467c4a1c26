// Package metrics records sync engine activity as Prometheus metrics.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitesync"

// Recorder groups the engine's collectors.
type Recorder struct {
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	mutations     *prometheus.CounterVec
	events        *prometheus.CounterVec
	fanouts       *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Domain store fetches by store and result.",
		}, []string{"store", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of domain store fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_total",
			Help:      "Remote mutation attempts by store, operation and result.",
		}, []string{"store", "op", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime events dispatched by kind.",
		}, []string{"kind"}),
		fanouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_total",
			Help:      "Sync fan-outs by result (ok when every store settled without error).",
		}, []string{"result"}),
	}
	reg.MustRegister(r.fetches, r.fetchDuration, r.mutations, r.events, r.fanouts)
	return r
}

// ObserveFetch records one fetch.
func (r *Recorder) ObserveFetch(store string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(store, result(err)).Inc()
	r.fetchDuration.WithLabelValues(store).Observe(d.Seconds())
}

// ObserveMutation records one remote create/update/delete attempt.
func (r *Recorder) ObserveMutation(store, op string, err error) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(store, op, result(err)).Inc()
}

// ObserveEvent records one dispatched realtime event.
func (r *Recorder) ObserveEvent(kind string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(kind).Inc()
}

// ObserveFanout records one orchestrator run.
func (r *Recorder) ObserveFanout(failed int) {
	if r == nil {
		return
	}
	if failed > 0 {
		r.fanouts.WithLabelValues("partial").Inc()
		return
	}
	r.fanouts.WithLabelValues("ok").Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
