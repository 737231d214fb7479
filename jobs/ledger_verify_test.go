package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// SKU is not schema-unique, so aggregating movement sums by anything looser
// than the record's identity triple would merge unrelated ledgers and report
// phantom drift.
func TestLedgerDriftQueryGroupsByStockIdentity(t *testing.T) {
	assert.Contains(t, ledgerDriftQuery, "GROUP BY s.tenant_id, s.product_id, s.variant_id")
	assert.NotContains(t, ledgerDriftQuery, "GROUP BY s.tenant_id, s.sku")
}
