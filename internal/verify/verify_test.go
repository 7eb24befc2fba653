package verify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantly/proposal-cli/internal/fault"
	"github.com/verdantly/proposal-cli/internal/model"
)

func testCatalog() model.CatalogIndex {
	return model.BuildIndex([]model.CatalogItem{
		{ID: "prod-001", Name: "Bamboo Cutlery Set", Category: "kitchen", UnitPrice: 699, PlasticSavedPerUnit: 120, CarbonAvoidedPerUnit: 0.8},
		{ID: "prod-002", Name: "Stainless Steel Bottle", Category: "drinkware", UnitPrice: 1250.50, PlasticSavedPerUnit: 500, CarbonAvoidedPerUnit: 2.1},
	})
}

func requireRejection(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	f, ok := fault.As(err)
	require.True(t, ok, "error must carry a fault kind: %v", err)
	assert.Equal(t, fault.KindRejection, f.Kind)
	assert.Contains(t, f.Reason, contains)
}

func TestVerify_AcceptsValidProposal(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 20, "unit_price": 699, "total_cost": 13980}
		],
		"allocated": 13980,
		"total_budget_limit": 50000,
		"summary": "Twenty cutlery sets.",
		"impact": "Replaces disposable plastic cutlery.",
		"confidence": 0.9
	}`

	got, err := Verify(raw, testCatalog(), 50000)
	require.NoError(t, err)

	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "prod-001", got.LineItems[0].ItemID)
	assert.Equal(t, 20, got.LineItems[0].Quantity)
	assert.Equal(t, 13980.0, got.LineItems[0].TotalCost)
	assert.Equal(t, 13980.0, got.Allocated)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestVerify_RecomputesAllocatedFromCanonicalPrices(t *testing.T) {
	// Allocated is off by 0.40 which is within the one-line tolerance, but
	// the accepted proposal must carry the recomputed sum, not the claim.
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 2, "unit_price": 699, "total_cost": 1398}
		],
		"allocated": 1398.40,
		"total_budget_limit": 5000,
		"summary": "s",
		"impact": "i",
		"confidence": 1
	}`

	got, err := Verify(raw, testCatalog(), 5000)
	require.NoError(t, err)
	assert.Equal(t, 1398.0, got.Allocated)
}

func TestVerify_RejectsLineCostMismatch(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 20, "unit_price": 699, "total_cost": 14000}
		],
		"allocated": 14000,
		"total_budget_limit": 50000,
		"summary": "s",
		"impact": "i",
		"confidence": 0.9
	}`

	_, err := Verify(raw, testCatalog(), 50000)
	requireRejection(t, err, "total cost 14000.00 does not equal quantity 20")
}

func TestVerify_RejectsOverBudget(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 20, "unit_price": 699, "total_cost": 13980}
		],
		"allocated": 13980,
		"total_budget_limit": 1000,
		"summary": "s",
		"impact": "i",
		"confidence": 0.9
	}`

	_, err := Verify(raw, testCatalog(), 1000)
	requireRejection(t, err, "exceeds the budget limit")
}

func TestVerify_BudgetCapBeatsClaimedAllocation(t *testing.T) {
	// The candidate claims an allocation of zero, but the selection truly
	// costs 13980. The budget-exceeded reason must win over the
	// allocated-mismatch reason: it is the feedback the next round needs.
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 20, "unit_price": 699, "total_cost": 13980}
		],
		"allocated": 0,
		"total_budget_limit": 1000,
		"summary": "s",
		"impact": "i",
		"confidence": 0.9
	}`

	_, err := Verify(raw, testCatalog(), 1000)
	requireRejection(t, err, "exceeds the budget limit")
}

func TestVerify_RejectsUnknownProduct(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-999", "name": "Ghost Item", "quantity": 1, "unit_price": 1, "total_cost": 1}
		],
		"allocated": 1,
		"total_budget_limit": 100,
		"summary": "s",
		"impact": "i",
		"confidence": 0.5
	}`

	_, err := Verify(raw, testCatalog(), 100)
	requireRejection(t, err, `product "prod-999" is not in the catalog`)
}

func TestVerify_RejectsNameMismatch(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery", "quantity": 1, "unit_price": 699, "total_cost": 699}
		],
		"allocated": 699,
		"total_budget_limit": 1000,
		"summary": "s",
		"impact": "i",
		"confidence": 0.5
	}`

	_, err := Verify(raw, testCatalog(), 1000)
	requireRejection(t, err, "does not match catalog name")
}

func TestVerify_RejectsPriceMismatch(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 1, "unit_price": 700, "total_cost": 700}
		],
		"allocated": 700,
		"total_budget_limit": 1000,
		"summary": "s",
		"impact": "i",
		"confidence": 0.5
	}`

	_, err := Verify(raw, testCatalog(), 1000)
	requireRejection(t, err, "does not match catalog price")
}

func TestVerify_RejectsAllocatedMismatchBeyondTolerance(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 1, "unit_price": 699, "total_cost": 699}
		],
		"allocated": 800,
		"total_budget_limit": 1000,
		"summary": "s",
		"impact": "i",
		"confidence": 0.5
	}`

	_, err := Verify(raw, testCatalog(), 1000)
	requireRejection(t, err, "does not match the sum of line totals")
}

func TestVerify_RejectsBudgetEchoMismatch(t *testing.T) {
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 1, "unit_price": 699, "total_cost": 699}
		],
		"allocated": 699,
		"total_budget_limit": 999,
		"summary": "s",
		"impact": "i",
		"confidence": 0.5
	}`

	_, err := Verify(raw, testCatalog(), 1000)
	requireRejection(t, err, "must echo the given budget limit")
}

func TestVerify_ParseStrictness(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"not json", "here is your proposal!", "not a single valid JSON document"},
		{"markdown fence", "```json\n{\"allocated\": 0}\n```", "not a single valid JSON document"},
		{"trailing content", `{"products": [], "allocated": 0, "total_budget_limit": 1, "summary": "s", "impact": "i", "confidence": 1} trailing`, "trailing content"},
		{"unknown field", `{"products": [], "allocated": 0, "total_budget_limit": 1, "summary": "s", "impact": "i", "confidence": 1, "extra": true}`, "not a single valid JSON document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.raw, testCatalog(), 1)
			requireRejection(t, err, tt.reason)
		})
	}
}

func TestVerify_SchemaViolations(t *testing.T) {
	line := `{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 1, "unit_price": 699, "total_cost": 699}`
	doc := func(products, allocated, limit, confidence string) string {
		return fmt.Sprintf(`{"products": %s, "allocated": %s, "total_budget_limit": %s, "summary": "s", "impact": "i", "confidence": %s}`,
			products, allocated, limit, confidence)
	}

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"missing allocated", `{"products": [], "total_budget_limit": 1, "summary": "s", "impact": "i", "confidence": 1}`, `"allocated" is missing`},
		{"missing confidence", `{"products": [], "allocated": 0, "total_budget_limit": 1, "summary": "s", "impact": "i"}`, `"confidence" is missing`},
		{"empty products", doc("[]", "0", "1000", "1"), "at least one product line"},
		{"confidence out of range", doc("["+line+"]", "699", "1000", "1.2"), "must be between 0 and 1"},
		{"zero quantity", doc(`[{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 0, "unit_price": 699, "total_cost": 0}]`, "0", "1000", "1"), "must be a positive integer"},
		{"fractional quantity", doc(`[{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 1.5, "unit_price": 699, "total_cost": 1048.5}]`, "1048.5", "2000", "1"), "must be a positive integer"},
		{"missing line name", doc(`[{"id": "prod-001", "quantity": 1, "unit_price": 699, "total_cost": 699}]`, "699", "1000", "1"), "missing a name"},
		{"missing line id", doc(`[{"name": "Bamboo Cutlery Set", "quantity": 1, "unit_price": 699, "total_cost": 699}]`, "699", "1000", "1"), "missing an id"},
		{"negative unit price", doc(`[{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 1, "unit_price": -1, "total_cost": 699}]`, "699", "1000", "1"), "unit price must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.raw, testCatalog(), 1000)
			requireRejection(t, err, tt.reason)
		})
	}
}

func TestVerify_StopsAtFirstViolation(t *testing.T) {
	// Both the name and the allocation are wrong; per-line checks run first
	// so the name mismatch must be the reported reason.
	raw := `{
		"products": [
			{"id": "prod-001", "name": "Wrong Name", "quantity": 1, "unit_price": 699, "total_cost": 699}
		],
		"allocated": 12345,
		"total_budget_limit": 1000,
		"summary": "s",
		"impact": "i",
		"confidence": 0.5
	}`

	_, err := Verify(raw, testCatalog(), 1000)
	requireRejection(t, err, "does not match catalog name")
}

func TestAllocatedTolerance(t *testing.T) {
	assert.Equal(t, 1.0, allocatedTolerance(1))
	assert.Equal(t, 1.0, allocatedTolerance(10))
	assert.Equal(t, 2.5, allocatedTolerance(50))
}
