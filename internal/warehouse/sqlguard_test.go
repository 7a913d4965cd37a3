package warehouse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		wantErr   bool
	}{
		{"plain select", "SELECT * FROM orders", false},
		{"lowercase select", "select amount from orders", false},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", false},
		{"show", "SHOW TABLES", false},
		{"describe", "DESCRIBE orders", false},
		{"explain", "EXPLAIN SELECT 1", false},
		{"leading whitespace", "  \n SELECT 1", false},
		{"drop", "DROP TABLE orders", true},
		{"create", "CREATE TABLE t (id INT)", true},
		{"insert", "INSERT INTO t VALUES (1)", true},
		{"update", "UPDATE t SET a = 1", true},
		{"delete", "DELETE FROM t", true},
		{"truncate", "TRUNCATE TABLE t", true},
		{"grant", "GRANT SELECT ON t TO bob", true},
		{"merge", "MERGE INTO t USING s ON t.id = s.id", true},
		{"execute immediate", "EXECUTE  IMMEDIATE 'DROP TABLE t'", true},
		{"embedded drop", "SELECT 1; DROP TABLE orders", true},
		{"lowercase drop", "select 1; drop table orders", true},
		{"column named updated_at", "SELECT updated_at FROM orders", false},
		{"column named last_update", "SELECT last_update FROM orders", false},
		{"empty", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReadOnly(tt.statement)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateReadOnly_ErrorDetail(t *testing.T) {
	err := ValidateReadOnly("SELECT 1; DROP TABLE orders")
	require.Error(t, err)

	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "DROP", verr.Pattern)
	assert.Contains(t, verr.Statement, "DROP TABLE orders")
}
