package service

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced loan, member or payment does not
// exist.
var ErrNotFound = errors.New("not found")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// GatewayError means the payment provider rejected or failed the request.
// No local state is mutated when it is returned.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway error [%d]: %s", e.StatusCode, e.Message)
	}
	return "payment gateway error: " + e.Message
}

// notFoundOr translates a missing-row error from a repository into the
// service-level ErrNotFound; anything else is a backend failure and passes
// through.
func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
