package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

type stepFailure struct{}

func (*stepFailure) Error() string { return "step failed" }

type selfClassed struct{ class string }

func (e selfClassed) Error() string      { return "classed" }
func (e selfClassed) ErrorClass() string { return e.class }

func TestClassify(t *testing.T) {
	tcs := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "self classed", err: fmt.Errorf("step: %w", selfClassed{class: "capability_5xx"}), want: "capability_5xx"},
		{name: "blank self class falls through", err: selfClassed{}, want: "errors_selfclassed"},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: "pg_integrity"},
		{name: "serialization failure", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure}), want: "pg_rollback"},
		{name: "admin shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}, want: "pg_unavailable"},
		{name: "other pg", err: &pgconn.PgError{Code: pgerrcode.UndefinedTable}, want: "pg_error"},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "x"}, want: "net_error"},
		{name: "dns timeout", err: &net.DNSError{Err: "i/o timeout", Name: "x", IsTimeout: true}, want: "net_timeout"},
		{name: "wrapped type", err: fmt.Errorf("wrap: %w", &stepFailure{}), want: "errors_stepfailure"},
		{name: "plain", err: goerrors.New("plain"), want: "errors_errorstring"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
