package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michael-harrison/graph-attack/internal/adapters/storage/memory"
	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/services"
)

type field struct{ category, name string }

func (f field) Category() string { return f.category }
func (f field) IsField() bool    { return true }
func (f field) Name() string     { return f.name }

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) error {
	return errors.New("redis down")
}

func (brokenStore) Exceeded(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestMetrics_TraversalOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())
	registry, err := services.NewRegistry(map[domain.OperationID]domain.RateLimitSpec{
		{Category: "Query", Name: "expensiveField"}: {Threshold: 1, Interval: time.Minute},
	})
	require.NoError(t, err)

	analyzer, err := services.NewAnalyzer(m.InstrumentStore(memory.New()), registry, services.WithObserver(m))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		traversal, err := analyzer.Start("10.0.0.1")
		require.NoError(t, err)
		require.NoError(t, traversal.Visit(ctx, domain.VisitEnter, field{"Query", "expensiveField"}))
		_ = traversal.Finalize(ctx)
	}

	_, err = analyzer.Start("")
	require.ErrorIs(t, err, domain.ErrMissingIdentity)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("reject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exceeded.WithLabelValues("expensiveField")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.storeDuration))
	assert.Equal(t, 0, testutil.CollectAndCount(m.storeErrors))
}

func TestMetrics_ManualIncrements(t *testing.T) {
	m := New(prometheus.NewRegistry())
	registry, err := services.NewRegistry(nil)
	require.NoError(t, err)
	analyzer, err := services.NewAnalyzer(memory.New(), registry, services.WithObserver(m))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := analyzer.ManualIncrement(ctx, "10.0.0.1", "loginFailure", 2, time.Minute)
		require.NoError(t, err)
	}

	expected := `
# HELP graphql_rate_limit_manual_increments_total Total number of manual increments by operation and status
# TYPE graphql_rate_limit_manual_increments_total counter
graphql_rate_limit_manual_increments_total{operation="loginFailure",status="exceeded"} 1
graphql_rate_limit_manual_increments_total{operation="loginFailure",status="ok"} 2
`
	assert.NoError(t, testutil.CollectAndCompare(m.manual, strings.NewReader(expected)))
}

func TestMetrics_StoreErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	store := m.InstrumentStore(brokenStore{})

	ctx := context.Background()
	assert.Error(t, store.Increment(ctx, "k", time.Second))
	_, err := store.Exceeded(ctx, "k", 1, time.Second)
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors.WithLabelValues("increment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors.WithLabelValues("exceeded")))
}

func TestMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.TraversalFinished(domain.OutcomePass, nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "graphql_rate_limit_decisions_total")
}
