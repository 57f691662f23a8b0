// Package graphql liga o analisador de rate limit a documentos GraphQL
// validados pelo gqlparser: extrai limites do schema, percorre a operação
// emitindo eventos de visita e executa resolvers simples.
package graphql

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
)

const (
	RateLimitDirective = "rateLimit"

	// RateLimitDirectiveSDL deve ser incluído no schema que usa @rateLimit.
	RateLimitDirectiveSDL = `directive @rateLimit(threshold: Int!, interval: Int!) on FIELD_DEFINITION`
)

func LoadSchema(name, sdl string) (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

// LimitsFromSchema lê os @rateLimit declarados nos campos de tipos objeto.
// A leitura acontece uma vez, na construção do registry.
func LimitsFromSchema(schema *ast.Schema) (map[domain.OperationID]domain.RateLimitSpec, error) {
	specs := make(map[domain.OperationID]domain.RateLimitSpec)
	for _, def := range schema.Types {
		if def.Kind != ast.Object || def.BuiltIn {
			continue
		}
		for _, field := range def.Fields {
			directive := field.Directives.ForName(RateLimitDirective)
			if directive == nil {
				continue
			}
			id := domain.OperationID{Category: Category(schema, def), Name: field.Name}

			threshold, err := intArgument(directive, "threshold")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}
			interval, err := intArgument(directive, "interval")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}

			spec := domain.RateLimitSpec{Threshold: threshold, Interval: time.Duration(interval) * time.Second}
			if err := spec.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}
			specs[id] = spec
		}
	}
	return specs, nil
}

// Category devolve "Query", "Mutation" ou "Subscription" para os tipos raiz e o
// próprio nome do tipo nos demais casos.
func Category(schema *ast.Schema, def *ast.Definition) string {
	switch {
	case def == nil:
		return ""
	case schema.Query != nil && def.Name == schema.Query.Name:
		return "Query"
	case schema.Mutation != nil && def.Name == schema.Mutation.Name:
		return "Mutation"
	case schema.Subscription != nil && def.Name == schema.Subscription.Name:
		return "Subscription"
	default:
		return def.Name
	}
}

func intArgument(directive *ast.Directive, name string) (int, error) {
	arg := directive.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return 0, fmt.Errorf("@%s: missing %s", RateLimitDirective, name)
	}
	n, err := strconv.Atoi(arg.Value.Raw)
	if err != nil {
		return 0, fmt.Errorf("@%s: invalid %s %q: %w", RateLimitDirective, name, arg.Value.Raw, err)
	}
	return n, nil
}
