package services

import (
	"fmt"
	"sync/atomic"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

// Registry associa operações aos seus limites. O mapa é trocado por inteiro em
// Replace, então leituras concorrentes sempre veem um conjunto consistente.
type Registry struct {
	specs atomic.Pointer[map[domain.OperationID]domain.RateLimitSpec]
}

var _ ports.Registry = (*Registry)(nil)

func NewRegistry(specs map[domain.OperationID]domain.RateLimitSpec) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(specs); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Resolve(id domain.OperationID) (domain.RateLimitSpec, bool) {
	specs := r.specs.Load()
	if specs == nil {
		return domain.RateLimitSpec{}, false
	}
	spec, ok := (*specs)[id]
	return spec, ok
}

// Replace valida e publica um novo conjunto de limites.
func (r *Registry) Replace(specs map[domain.OperationID]domain.RateLimitSpec) error {
	clone := make(map[domain.OperationID]domain.RateLimitSpec, len(specs))
	for id, spec := range specs {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("operation %s: %w", id, err)
		}
		clone[id] = spec
	}
	r.specs.Store(&clone)
	return nil
}

// Snapshot devolve uma cópia dos limites publicados.
func (r *Registry) Snapshot() map[domain.OperationID]domain.RateLimitSpec {
	specs := r.specs.Load()
	if specs == nil {
		return map[domain.OperationID]domain.RateLimitSpec{}
	}
	out := make(map[domain.OperationID]domain.RateLimitSpec, len(*specs))
	for id, spec := range *specs {
		out[id] = spec
	}
	return out
}

// Merge sobrepõe overrides aos limites base, sem alterar nenhum dos dois.
func Merge(base, overrides map[domain.OperationID]domain.RateLimitSpec) map[domain.OperationID]domain.RateLimitSpec {
	out := make(map[domain.OperationID]domain.RateLimitSpec, len(base)+len(overrides))
	for id, spec := range base {
		out[id] = spec
	}
	for id, spec := range overrides {
		out[id] = spec
	}
	return out
}
