// Package domain concentra entidades e estruturas centrais do rate limiter de queries.
package domain

import (
	"strings"
	"time"
)

const (
	// OperationKeyPrefix prefixa a chave derivada do nome da operação.
	// Duas operações com o mesmo nome compartilham o contador.
	OperationKeyPrefix = "graphql-query-"

	DefaultNamespace = "ratelimit"
)

type RateLimitSpec struct {
	Threshold int
	Interval  time.Duration
}

// Validate garante threshold e interval positivos.
func (s RateLimitSpec) Validate() error {
	if s.Threshold <= 0 {
		return &InvalidSpecError{Field: "threshold", Message: "must be positive"}
	}
	if s.Interval <= 0 {
		return &InvalidSpecError{Field: "interval", Message: "must be positive"}
	}
	return nil
}

// OperationID identifica uma operação pelo tipo raiz que a possui e pelo nome do campo.
type OperationID struct {
	Category string
	Name     string
}

func (id OperationID) String() string {
	return id.Category + "." + id.Name
}

// ParseOperationID aceita o formato "Query.expensiveField".
func ParseOperationID(raw string) (OperationID, bool) {
	category, name, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || category == "" || name == "" {
		return OperationID{}, false
	}
	return OperationID{Category: category, Name: name}, true
}

type CandidateLimit struct {
	OperationName string
	OperationKey  string
	Threshold     int
	Interval      time.Duration
}

type VisitKind int

const (
	VisitEnter VisitKind = iota
	VisitLeave
)

func (k VisitKind) String() string {
	if k == VisitLeave {
		return "leave"
	}
	return "enter"
}

type Status string

const (
	StatusOK       Status = "ok"
	StatusExceeded Status = "exceeded"
)

// OperationKey deriva a chave do contador a partir do nome da operação.
// A travessia e o incremento manual usam a mesma derivação.
func OperationKey(name string) string {
	return OperationKeyPrefix + name
}

// CounterKey combina a identidade do cliente e a chave da operação.
func CounterKey(clientIdentity, operationKey string) string {
	return clientIdentity + ":" + operationKey
}

type Outcome string

const (
	OutcomePass   Outcome = "pass"
	OutcomeReject Outcome = "reject"
	OutcomeError  Outcome = "error"
)
