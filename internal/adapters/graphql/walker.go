package graphql

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

// VisitFunc recebe cada nó na entrada e na saída. Traversal.Visit satisfaz o tipo.
type VisitFunc func(ctx context.Context, kind domain.VisitKind, node ports.Node) error

type fieldNode struct {
	category string
	field    *ast.Field
}

func (n fieldNode) Category() string { return n.category }
func (n fieldNode) IsField() bool    { return true }
func (n fieldNode) Name() string     { return n.field.Name }

type structuralNode struct {
	category string
	name     string
}

func (n structuralNode) Category() string { return n.category }
func (n structuralNode) IsField() bool    { return false }
func (n structuralNode) Name() string     { return n.name }

// Walk percorre a operação em profundidade, na ordem do documento. Fragmentos
// são expandidos no ponto de uso e campos com @skip/@include falsos não são visitados.
func Walk(ctx context.Context, schema *ast.Schema, op *ast.OperationDefinition, vars map[string]any, visit VisitFunc) error {
	w := &walker{schema: schema, vars: vars, visit: visit}
	root := structuralNode{category: operationCategory(op.Operation), name: op.Name}
	return w.node(ctx, root, func() error {
		return w.selectionSet(ctx, op.SelectionSet)
	})
}

type walker struct {
	schema *ast.Schema
	vars   map[string]any
	visit  VisitFunc
}

func (w *walker) node(ctx context.Context, n ports.Node, children func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.visit(ctx, domain.VisitEnter, n); err != nil {
		return err
	}
	if err := children(); err != nil {
		return err
	}
	return w.visit(ctx, domain.VisitLeave, n)
}

func (w *walker) selectionSet(ctx context.Context, set ast.SelectionSet) error {
	for _, sel := range set {
		var err error
		switch s := sel.(type) {
		case *ast.Field:
			if !included(s.Directives, w.vars) {
				continue
			}
			n := fieldNode{category: Category(w.schema, s.ObjectDefinition), field: s}
			err = w.node(ctx, n, func() error { return w.selectionSet(ctx, s.SelectionSet) })
		case *ast.InlineFragment:
			if !included(s.Directives, w.vars) {
				continue
			}
			n := structuralNode{category: Category(w.schema, s.ObjectDefinition), name: s.TypeCondition}
			err = w.node(ctx, n, func() error { return w.selectionSet(ctx, s.SelectionSet) })
		case *ast.FragmentSpread:
			if !included(s.Directives, w.vars) || s.Definition == nil {
				continue
			}
			n := structuralNode{category: Category(w.schema, s.ObjectDefinition), name: s.Name}
			err = w.node(ctx, n, func() error { return w.selectionSet(ctx, s.Definition.SelectionSet) })
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func operationCategory(op ast.Operation) string {
	switch op {
	case ast.Mutation:
		return "Mutation"
	case ast.Subscription:
		return "Subscription"
	default:
		return "Query"
	}
}

func included(directives ast.DirectiveList, vars map[string]any) bool {
	if d := directives.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(vars)["if"].(bool); skip {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if include, ok := d.ArgumentMap(vars)["if"].(bool); ok && !include {
			return false
		}
	}
	return true
}
