// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"
)

// CounterStore persiste os hits de cada chave (cliente:operação) numa janela deslizante.
// Implementações devem ser seguras para uso concorrente, inclusive entre processos.
type CounterStore interface {
	// Increment registra um hit no instante atual. interval é apenas uma dica de expiração.
	Increment(ctx context.Context, key string, interval time.Duration) error
	// Exceeded informa se há mais de threshold hits em [agora-interval, agora].
	Exceeded(ctx context.Context, key string, threshold int, interval time.Duration) (bool, error)
}
