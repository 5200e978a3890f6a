package repository

import (
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

func TestBuildConditionsAppliesAliases(t *testing.T) {
	q := NewQueryBuilder()
	q.AddCondition("trip_id", 4)
	q.AddAnyOf("status", []string{"open"})
	q.AddAnyOf("reference", nil)

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, goqu.Ex{"q.status": "open", "trip_id": 4}, q.BuildConditions(map[string]string{"status": "q.status"}))
}

func TestAnyOfRendersInClause(t *testing.T) {
	q := NewQueryBuilder()
	q.AddAnyOf("status", []string{"open", "submitted"})

	sql, _, err := goqu.Dialect("postgres").From("qc_records").Where(q.BuildConditions(nil)).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `"status" IN ('open', 'submitted')`)
}
