package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuplicateQueries(t *testing.T) {
	tables := make([]string, len(duplicateChecks))
	for i, check := range duplicateChecks {
		tables[i] = check.table
		q := check.query()
		assert.Contains(t, q, "FROM "+check.table)
		assert.Contains(t, q, "WHERE chain_id = ?")
		assert.NotContains(t, q, "FINAL")
	}
	assert.Equal(t, []string{"raw_blocks", "raw_txs", "raw_logs"}, tables)

	assert.Contains(t, duplicateChecks[2].query(), "GROUP BY chain_id, transaction_hash, log_index")
}
