package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingIdentity = errors.New("missing client identity on the request context")
	ErrRateLimited     = errors.New("query rate limit exceeded")
)

// RateLimitedError agrega todas as operações que excederam o limite numa mesma requisição.
type RateLimitedError struct {
	Operations []string
}

func (e *RateLimitedError) Error() string {
	return "Query rate limit exceeded on " + strings.Join(e.Operations, ", ")
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

type InvalidSpecError struct {
	Field   string
	Message string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid rate limit: %s %s", e.Field, e.Message)
}

func IsMissingIdentityError(err error) bool {
	return errors.Is(err, ErrMissingIdentity)
}

func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// ExceededOperations devolve as operações de um RateLimitedError, ou nil.
func ExceededOperations(err error) []string {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle.Operations
	}
	return nil
}
