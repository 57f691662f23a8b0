package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

// DefaultCategories são os tipos raiz cujos campos podem ser limitados.
var DefaultCategories = []string{"Query", "Mutation"}

// Option customiza o Analyzer.
type Option func(*Analyzer)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithCategories substitui os tipos raiz limitáveis.
func WithCategories(categories ...string) Option {
	return func(a *Analyzer) {
		a.categories = make(map[string]struct{}, len(categories))
		for _, c := range categories {
			if c = strings.TrimSpace(c); c != "" {
				a.categories[c] = struct{}{}
			}
		}
	}
}

func WithObserver(observer ports.Observer) Option {
	return func(a *Analyzer) {
		a.observer = observer
	}
}

// Analyzer é o analisador de rate limit compartilhado entre requisições.
// Cada requisição obtém a própria Traversal via Start.
type Analyzer struct {
	store      ports.CounterStore
	registry   ports.Registry
	categories map[string]struct{}
	observer   ports.Observer
	logger     *slog.Logger
}

var _ ports.Analyzer = (*Analyzer)(nil)

// NewAnalyzer cria um analisador sobre o store e o registry informados.
func NewAnalyzer(store ports.CounterStore, registry ports.Registry, opts ...Option) (*Analyzer, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	a := &Analyzer{
		store:    store,
		registry: registry,
		logger:   slog.Default(),
	}
	WithCategories(DefaultCategories...)(a)
	for _, opt := range opts {
		opt(a)
	}
	if len(a.categories) == 0 {
		return nil, fmt.Errorf("at least one limitable category is required")
	}
	a.logger = a.logger.With("component", "ratelimit-analyzer")

	return a, nil
}

// NewTraversal inicia a análise de uma requisição. Sem identidade do cliente
// nada é contado e ErrMissingIdentity é devolvido.
func (a *Analyzer) NewTraversal(clientIdentity string) (*Traversal, error) {
	if strings.TrimSpace(clientIdentity) == "" {
		a.observe(domain.OutcomeError, nil)
		return nil, domain.ErrMissingIdentity
	}
	return &Traversal{analyzer: a, clientIdentity: clientIdentity}, nil
}

func (a *Analyzer) Start(clientIdentity string) (ports.Traversal, error) {
	t, err := a.NewTraversal(clientIdentity)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ManualIncrement incrementa o contador de uma operação fora da travessia e
// verifica imediatamente o limite. Útil quando só algumas condições devem contar,
// por exemplo logins que falharam.
func (a *Analyzer) ManualIncrement(ctx context.Context, clientIdentity, name string, threshold int, interval time.Duration) (domain.Status, error) {
	if strings.TrimSpace(clientIdentity) == "" {
		return "", domain.ErrMissingIdentity
	}
	if err := (domain.RateLimitSpec{Threshold: threshold, Interval: interval}).Validate(); err != nil {
		return "", err
	}

	key := domain.CounterKey(clientIdentity, domain.OperationKey(name))
	if err := a.store.Increment(ctx, key, interval); err != nil {
		a.logger.Error("counter increment failed", "operation", name, "error", err)
		return "", err
	}

	exceeded, err := a.store.Exceeded(ctx, key, threshold, interval)
	if err != nil {
		a.logger.Error("counter check failed", "operation", name, "error", err)
		return "", err
	}

	status := domain.StatusOK
	if exceeded {
		status = domain.StatusExceeded
		a.logger.Info("manual rate limit exceeded", "operation", name, "client", clientIdentity)
	}
	if a.observer != nil {
		a.observer.ManualIncremented(name, status)
	}
	return status, nil
}

func (a *Analyzer) limitable(category string) bool {
	_, ok := a.categories[category]
	return ok
}

func (a *Analyzer) observe(outcome domain.Outcome, exceeded []string) {
	if a.observer != nil {
		a.observer.TraversalFinished(outcome, exceeded)
	}
}
