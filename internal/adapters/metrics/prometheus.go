// Package metrics expõe o analisador e o contador via Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

// Metrics contém os coletores do rate limiter.
type Metrics struct {
	// Desfechos das travessias
	decisions *prometheus.CounterVec
	exceeded  *prometheus.CounterVec

	// Contagem manual
	manual *prometheus.CounterVec

	// Contador
	storeDuration *prometheus.HistogramVec
	storeErrors   *prometheus.CounterVec
}

var _ ports.Observer = (*Metrics)(nil)

// New registra os coletores em reg. Com reg nil usa o registry padrão.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphql_rate_limit_decisions_total",
				Help: "Total number of finished query analyses by outcome",
			},
			[]string{"outcome"},
		),

		exceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphql_rate_limit_exceeded_total",
				Help: "Total number of rejections per exceeded operation",
			},
			[]string{"operation"},
		),

		manual: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphql_rate_limit_manual_increments_total",
				Help: "Total number of manual increments by operation and status",
			},
			[]string{"operation", "status"},
		),

		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graphql_rate_limit_store_duration_seconds",
				Help:    "Duration of counter store calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15), // 50µs a ~800ms
			},
			[]string{"op"},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphql_rate_limit_store_errors_total",
				Help: "Total number of failed counter store calls",
			},
			[]string{"op"},
		),
	}
}

// TraversalFinished registra o desfecho de uma travessia.
func (m *Metrics) TraversalFinished(outcome domain.Outcome, exceeded []string) {
	m.decisions.WithLabelValues(string(outcome)).Inc()
	for _, name := range exceeded {
		m.exceeded.WithLabelValues(name).Inc()
	}
}

// ManualIncremented registra uma contagem manual.
func (m *Metrics) ManualIncremented(name string, status domain.Status) {
	m.manual.WithLabelValues(name, string(status)).Inc()
}

// InstrumentStore devolve um CounterStore que mede latência e falhas de store.
func (m *Metrics) InstrumentStore(store ports.CounterStore) ports.CounterStore {
	return &instrumentedStore{next: store, metrics: m}
}

type instrumentedStore struct {
	next    ports.CounterStore
	metrics *Metrics
}

func (s *instrumentedStore) Increment(ctx context.Context, key string, interval time.Duration) error {
	start := time.Now()
	err := s.next.Increment(ctx, key, interval)
	s.observe("increment", start, err)
	return err
}

func (s *instrumentedStore) Exceeded(ctx context.Context, key string, threshold int, interval time.Duration) (bool, error) {
	start := time.Now()
	over, err := s.next.Exceeded(ctx, key, threshold, interval)
	s.observe("exceeded", start, err)
	return over, err
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.storeErrors.WithLabelValues(op).Inc()
	}
}
