package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_memberships_email_org", TableName: "memberships", Message: "duplicate key value"}
	err := Wrap(CodeDuplicateMembership, fmt.Errorf("insert: %w", pgErr), "membership already exists")

	d := Dump(err)
	assert.Equal(t, CodeDuplicateMembership, d.Code)
	assert.Equal(t, "23505", d.DBCode)
	assert.Equal(t, "ux_memberships_email_org", d.DBConstraint)
	assert.GreaterOrEqual(t, len(d.Chain), 2)

	fields := d.Fields()
	assert.Equal(t, "memberships", fields["db_table"])
	assert.NotContains(t, fields, "db_detail")
}

func TestDumpExtractsLibPQDetails(t *testing.T) {
	err := fmt.Errorf("update: %w", &pq.Error{Code: "23514", Constraint: "ck_memberships_is_active"})
	d := Dump(err)
	assert.Equal(t, "23514", d.DBCode)
	assert.Equal(t, "ck_memberships_is_active", d.DBConstraint)
	assert.Empty(t, d.Code)
}

func TestDumpPlainError(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
	fields := Dump(errors.New("boom")).Fields()
	assert.Equal(t, map[string]any{"error_message": "boom"}, fields)
}
