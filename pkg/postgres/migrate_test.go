package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestSplitSQL(t *testing.T) {
	script := `
-- leading comment
CREATE TABLE a (id INT);

  -- indented comment
CREATE INDEX a_idx ON a (id);
;
`
	got := SplitSQL(script)
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX a_idx ON a (id)"}, got)
}

func TestSQLStateHelpers_NilSafe(t *testing.T) {
	assert.False(t, IsForeignKeyViolation(nil))
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsConnectionError(nil))
}

func TestSQLStateHelpers_MatchCodes(t *testing.T) {
	wrapped := fmt.Errorf("Repo.Update: %w", &pgconn.PgError{Code: "40001"})
	assert.True(t, IsSerializationFailure(wrapped))
	assert.False(t, IsCheckViolation(wrapped))

	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: "23514"}))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsConnectionError(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.False(t, IsConnectionError(errors.New("syntax error")))
}
