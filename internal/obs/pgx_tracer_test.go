package obs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLOperation(t *testing.T) {
	require.Equal(t, "SELECT", sqlOperation("  select id from tax_rates"))
	require.Equal(t, "INSERT", sqlOperation("\n\tINSERT INTO pos_journal"))
	require.Equal(t, "UNKNOWN", sqlOperation("   "))
}

func TestShortStatementCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "SELECT id FROM fee_types WHERE tenant_id = $1",
		shortStatement("SELECT id\n   FROM fee_types\n  WHERE tenant_id = $1"))

	long := "SELECT " + strings.Repeat("x", 400)
	got := shortStatement(long)
	require.Len(t, got, maxStatementLen+3)
	require.True(t, strings.HasSuffix(got, "..."))
}
