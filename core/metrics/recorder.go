package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the engine metrics.
type Recorder struct {
	flushes            prometheus.Counter
	itemsFetched       prometheus.Counter
	backendQueries     prometheus.Counter
	keysPassivated     prometheus.Counter
	keysReleased       prometheus.Counter
	contractViolations prometheus.Counter
	asyncDiscarded     prometheus.Counter
	assumedSize        prometheus.Gauge
}

// New creates a recorder and registers its collectors with reg. A nil
// registerer falls back to the default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	r := &Recorder{
		flushes:            counter("flushes_total", "Reconciliation passes applied"),
		itemsFetched:       counter("items_fetched_total", "Items materialized from data sources"),
		backendQueries:     counter("backend_queries_total", "Queries issued to data sources"),
		keysPassivated:     counter("keys_passivated_total", "Keys recorded in the passivation ledger"),
		keysReleased:       counter("keys_released_total", "Passivated keys released after acknowledgement"),
		contractViolations: counter("contract_violations_total", "Data source contract violations"),
		asyncDiscarded:     counter("async_discarded_total", "Asynchronous fetch results discarded as stale"),
		assumedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assumed_size",
			Help:      "Last size advertised to a client",
		}),
	}

	collectors := []prometheus.Collector{
		r.flushes, r.itemsFetched, r.backendQueries, r.keysPassivated,
		r.keysReleased, r.contractViolations, r.asyncDiscarded, r.assumedSize,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveQuery implements pager.Observer.
func (r *Recorder) ObserveQuery(_, _, returned int) {
	if r == nil {
		return
	}
	r.backendQueries.Inc()
	r.itemsFetched.Add(float64(returned))
}

// Flush counts an applied reconciliation pass.
func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.flushes.Inc()
}

// Passivated counts keys moved to the passivation ledger.
func (r *Recorder) Passivated(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.keysPassivated.Add(float64(n))
}

// Released counts passivated keys removed after acknowledgement.
func (r *Recorder) Released(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.keysReleased.Add(float64(n))
}

// ContractViolation counts a data source that broke the query contract.
func (r *Recorder) ContractViolation() {
	if r == nil {
		return
	}
	r.contractViolations.Inc()
}

// Discarded counts an asynchronous result dropped before it was applied.
func (r *Recorder) Discarded() {
	if r == nil {
		return
	}
	r.asyncDiscarded.Inc()
}

// AssumedSize records the size last sent to a client.
func (r *Recorder) AssumedSize(n int) {
	if r == nil {
		return
	}
	r.assumedSize.Set(float64(n))
}
