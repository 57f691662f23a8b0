// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
)

type Registry interface {
	Resolve(id domain.OperationID) (domain.RateLimitSpec, bool)
}

// Node é a visão que o analisador precisa de um nó visitado pela travessia do host.
type Node interface {
	// Category é o tipo raiz dono do nó ("Query", "Mutation") ou o nome do tipo que o contém.
	Category() string
	// IsField distingue invocações de campo de nós estruturais (fragmentos, operação).
	IsField() bool
	Name() string
}

type Traversal interface {
	Visit(ctx context.Context, kind domain.VisitKind, node Node) error
	Finalize(ctx context.Context) error
}

type Analyzer interface {
	Start(clientIdentity string) (Traversal, error)
	ManualIncrement(ctx context.Context, clientIdentity, name string, threshold int, interval time.Duration) (domain.Status, error)
}

// Observer recebe os desfechos do analisador (métricas, auditoria).
type Observer interface {
	TraversalFinished(outcome domain.Outcome, exceeded []string)
	ManualIncremented(name string, status domain.Status)
}
