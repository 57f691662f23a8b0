// Package handlers agrupa os handlers HTTP da aplicação.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/michael-harrison/graph-attack/internal/adapters/graphql"
	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

const maxBodyBytes = 1 << 20

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors gqlerror.List  `json:"errors,omitempty"`
}

// GraphQLHandler valida o documento, passa a operação pelo analisador de rate
// limit e só então executa. Uma rejeição devolve apenas o erro agregado, sem data.
type GraphQLHandler struct {
	schema   *ast.Schema
	analyzer ports.Analyzer
	executor *graphql.Executor
	logger   *slog.Logger
}

func NewGraphQLHandler(schema *ast.Schema, analyzer ports.Analyzer, executor *graphql.Executor, logger *slog.Logger) *GraphQLHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphQLHandler{
		schema:   schema,
		analyzer: analyzer,
		executor: executor,
		logger:   logger.With("component", "graphql-handler"),
	}
}

func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, gqlerror.List{gqlerror.Errorf("invalid request: %s", err)})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeErrors(w, http.StatusBadRequest, gqlerror.List{gqlerror.Errorf("query is required")})
		return
	}

	doc, errs := gqlparser.LoadQuery(h.schema, req.Query)
	if len(errs) > 0 {
		writeErrors(w, http.StatusBadRequest, errs)
		return
	}
	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		writeErrors(w, http.StatusBadRequest, gqlerror.List{gqlerror.Errorf("operation %q not found", req.OperationName)})
		return
	}

	ctx := r.Context()
	traversal, err := h.analyzer.Start(domain.ClientIdentityFromContext(ctx))
	if err != nil {
		h.internalError(w, "rate limit analysis failed to start", err)
		return
	}
	if err := graphql.Walk(ctx, h.schema, op, req.Variables, traversal.Visit); err != nil {
		h.internalError(w, "rate limit analysis failed", err)
		return
	}
	if err := traversal.Finalize(ctx); err != nil {
		if domain.IsRateLimitedError(err) {
			writeErrors(w, http.StatusTooManyRequests, gqlerror.List{{Message: err.Error()}})
			return
		}
		h.internalError(w, "rate limit check failed", err)
		return
	}

	data, errs := h.executor.Execute(ctx, op, req.Variables)
	writeJSON(w, http.StatusOK, graphQLResponse{Data: data, Errors: errs})
}

func (h *GraphQLHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	writeErrors(w, http.StatusInternalServerError, gqlerror.List{{Message: http.StatusText(http.StatusInternalServerError)}})
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (graphQLRequest, error) {
	var req graphQLRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if raw := q.Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				return req, err
			}
		}
	default:
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			return req, err
		}
	}
	return req, nil
}

func writeErrors(w http.ResponseWriter, status int, errs gqlerror.List) {
	writeJSON(w, status, graphQLResponse{Errors: errs})
}

func writeJSON(w http.ResponseWriter, status int, body graphQLResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Health responde com uma mensagem simples para checagem de disponibilidade.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
