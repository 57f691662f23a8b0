package graphql

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
)

// ResolverFunc resolve um campo raiz. O valor devolvido é projetado sobre a
// seleção do campo: mapas por nome de campo, slices elemento a elemento.
type ResolverFunc func(ctx context.Context, args map[string]any) (any, error)

// Executor executa apenas resolvers de campos raiz; campos aninhados são lidos
// do valor devolvido.
type Executor struct {
	schema    *ast.Schema
	resolvers map[domain.OperationID]ResolverFunc
}

func NewExecutor(schema *ast.Schema, resolvers map[domain.OperationID]ResolverFunc) (*Executor, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is required")
	}
	return &Executor{schema: schema, resolvers: resolvers}, nil
}

func (e *Executor) Execute(ctx context.Context, op *ast.OperationDefinition, vars map[string]any) (map[string]any, gqlerror.List) {
	category := operationCategory(op.Operation)
	data := make(map[string]any)
	var errs gqlerror.List
	nullData := false

	for _, field := range collectFields(op.SelectionSet, vars) {
		key := responseKey(field)
		if field.Name == "__typename" {
			data[key] = typeName(field.ObjectDefinition)
			continue
		}

		id := domain.OperationID{Category: category, Name: field.Name}
		resolve, ok := e.resolvers[id]
		if !ok {
			data[key] = nil
			errs = append(errs, fieldError(key, fmt.Sprintf("no resolver for %s", id)))
			continue
		}

		value, err := resolve(ctx, field.ArgumentMap(vars))
		if err != nil {
			data[key] = nil
			errs = append(errs, fieldError(key, err.Error()))
			// um campo raiz não nulo que falha anula todo o data
			if field.Definition != nil && field.Definition.Type != nil && field.Definition.Type.NonNull {
				nullData = true
			}
			continue
		}
		data[key] = project(value, field.SelectionSet, vars)
	}
	if nullData {
		return nil, errs
	}
	return data, errs
}

func project(value any, set ast.SelectionSet, vars map[string]any) any {
	if len(set) == 0 || value == nil {
		return value
	}
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any)
		for _, field := range collectFields(set, vars) {
			if field.Name == "__typename" {
				out[responseKey(field)] = typeName(field.ObjectDefinition)
				continue
			}
			out[responseKey(field)] = project(v[field.Name], field.SelectionSet, vars)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = project(item, set, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = project(item, set, vars)
		}
		return out
	default:
		return value
	}
}

// collectFields achata fragmentos, respeitando @skip/@include.
func collectFields(set ast.SelectionSet, vars map[string]any) []*ast.Field {
	var fields []*ast.Field
	seen := make(map[string]struct{})
	var collect func(ast.SelectionSet)
	collect = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if !included(s.Directives, vars) {
					continue
				}
				if _, dup := seen[responseKey(s)]; dup {
					continue
				}
				seen[responseKey(s)] = struct{}{}
				fields = append(fields, s)
			case *ast.InlineFragment:
				if included(s.Directives, vars) {
					collect(s.SelectionSet)
				}
			case *ast.FragmentSpread:
				if included(s.Directives, vars) && s.Definition != nil {
					collect(s.Definition.SelectionSet)
				}
			}
		}
	}
	collect(set)
	return fields
}

func responseKey(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

func typeName(def *ast.Definition) any {
	if def == nil {
		return nil
	}
	return def.Name
}

func fieldError(key, message string) *gqlerror.Error {
	return &gqlerror.Error{Message: message, Path: ast.Path{ast.PathName(key)}}
}
