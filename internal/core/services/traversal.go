package services

import (
	"context"
	"fmt"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

// Traversal acumula os limites candidatos de uma única requisição.
// Não é segura para uso concorrente e não deve ser reutilizada.
type Traversal struct {
	analyzer       *Analyzer
	clientIdentity string
	candidates     []domain.CandidateLimit
	finalized      bool
}

var _ ports.Traversal = (*Traversal)(nil)

// Visit registra um candidato para cada campo limitado na entrada do nó e
// incrementa o contador imediatamente. Incrementos não são desfeitos se a
// requisição for abortada depois.
func (t *Traversal) Visit(ctx context.Context, kind domain.VisitKind, node ports.Node) error {
	if t.finalized {
		return fmt.Errorf("traversal already finalized")
	}
	if kind != domain.VisitEnter || node == nil || !node.IsField() {
		return nil
	}
	if !t.analyzer.limitable(node.Category()) {
		return nil
	}

	spec, ok := t.analyzer.registry.Resolve(domain.OperationID{Category: node.Category(), Name: node.Name()})
	if !ok {
		return nil
	}

	candidate := domain.CandidateLimit{
		OperationName: node.Name(),
		OperationKey:  domain.OperationKey(node.Name()),
		Threshold:     spec.Threshold,
		Interval:      spec.Interval,
	}

	if err := t.analyzer.store.Increment(ctx, domain.CounterKey(t.clientIdentity, candidate.OperationKey), candidate.Interval); err != nil {
		t.analyzer.logger.Error("counter increment failed", "operation", candidate.OperationName, "error", err)
		t.analyzer.observe(domain.OutcomeError, nil)
		return err
	}
	t.candidates = append(t.candidates, candidate)

	return nil
}

// Finalize verifica cada candidato, na ordem de visita, e devolve um
// RateLimitedError com as operações excedidas, cada nome uma única vez.
func (t *Traversal) Finalize(ctx context.Context) error {
	if t.finalized {
		return fmt.Errorf("traversal already finalized")
	}
	t.finalized = true

	var exceeded []string
	seen := make(map[string]struct{}, len(t.candidates))
	for _, c := range t.candidates {
		over, err := t.analyzer.store.Exceeded(ctx, domain.CounterKey(t.clientIdentity, c.OperationKey), c.Threshold, c.Interval)
		if err != nil {
			t.analyzer.logger.Error("counter check failed", "operation", c.OperationName, "error", err)
			t.analyzer.observe(domain.OutcomeError, nil)
			return err
		}
		if !over {
			continue
		}
		if _, dup := seen[c.OperationName]; dup {
			continue
		}
		seen[c.OperationName] = struct{}{}
		exceeded = append(exceeded, c.OperationName)
	}

	if len(exceeded) == 0 {
		t.analyzer.observe(domain.OutcomePass, nil)
		return nil
	}

	t.analyzer.logger.Info("query rate limit exceeded", "client", t.clientIdentity, "operations", exceeded)
	t.analyzer.observe(domain.OutcomeReject, exceeded)
	return &domain.RateLimitedError{Operations: exceeded}
}

// Candidates devolve uma cópia dos candidatos registrados até agora.
func (t *Traversal) Candidates() []domain.CandidateLimit {
	out := make([]domain.CandidateLimit, len(t.candidates))
	copy(out, t.candidates)
	return out
}
