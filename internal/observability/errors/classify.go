// Package errors derives low-cardinality error class names for metric tags
// and failure notifications.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classed is implemented by errors that name their own class, e.g. a
// capability response with status 503 reporting "capability_5xx".
type Classed interface {
	ErrorClass() string
}

// Classify returns a class for err. The first match wins:
//
//	context deadline / cancel  -> "timeout" / "canceled"
//	Classed anywhere in chain  -> its ErrorClass()
//	*pgconn.PgError            -> "pg_<condition family>"
//	net.Error                  -> "net_timeout" / "net_error"
//	anything else              -> innermost concrete type, e.g. "json_syntaxerror"
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	var classed Classed
	if goerrors.As(err, &classed) {
		if c := strings.TrimSpace(classed.ErrorClass()); c != "" {
			return c
		}
	}
	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return pgClass(pgErr.Code)
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return "net_timeout"
		}
		return "net_error"
	}
	return typeName(innermost(err))
}

func pgClass(code string) string {
	switch {
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return "pg_integrity"
	case pgerrcode.IsConnectionException(code):
		return "pg_connection"
	case pgerrcode.IsTransactionRollback(code):
		return "pg_rollback"
	case pgerrcode.IsInsufficientResources(code), pgerrcode.IsOperatorIntervention(code):
		return "pg_unavailable"
	default:
		return "pg_error"
	}
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
}
