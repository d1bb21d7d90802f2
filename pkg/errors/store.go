package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes the engine reacts to.
const (
	pgCheckViolation      = "23514"
	pgSerializationFailed = "40001"
	pgDeadlockDetected    = "40P01"
	pgLockNotAvailable    = "55P03"
)

// pgError is the driver-neutral part of a Postgres error. pgx is the gorm
// driver; lib/pq still surfaces from goose's database/sql connection.
type pgError struct {
	Code, Constraint, Table, Column, Detail, Message string
}

func asPG(err error) (pgError, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgError{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgError{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgError{}, false
}

// FromStore classifies a persistence failure. A tripped CHECK constraint
// means the ledger arithmetic is wrong, lock and serialization failures are
// retryable conflicts, and anything else is the store being unavailable.
// Errors that already carry a code pass through.
func FromStore(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeDependency, err, msg+": "+err.Error())
	}
	pg, ok := asPG(err)
	if !ok {
		return Wrap(CodeDependency, err, msg)
	}
	switch pg.Code {
	case pgCheckViolation:
		return Wrap(CodeInvariantViolation, err, fmt.Sprintf("%s: constraint %s violated", msg, pg.Constraint))
	case pgSerializationFailed, pgDeadlockDetected, pgLockNotAvailable:
		return Wrap(CodeConflict, err, msg)
	}
	return Wrap(CodeDependency, err, msg)
}

// ErrorDump is the log-only view of an error: its wrap chain and, for
// Postgres failures, the constraint that fired.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Details    any      `json:"details,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Details = typed.Details()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := asPG(err); ok {
		d.PGCode = pg.Code
		d.PGConstraint = pg.Constraint
		d.PGTable = pg.Table
		d.PGColumn = pg.Column
		d.PGDetail = pg.Detail
		d.PGMessage = pg.Message
	}
	return d
}

// Fields flattens the dump into log fields, omitting empty Postgres parts.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_column":     d.PGColumn,
		"pg_detail":     d.PGDetail,
		"pg_message":    d.PGMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
