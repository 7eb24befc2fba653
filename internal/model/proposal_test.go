package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProposalRequestValidate(t *testing.T) {
	assert.NoError(t, ProposalRequest{BudgetLimit: 100}.Validate())
	assert.Error(t, ProposalRequest{BudgetLimit: 0}.Validate())
	assert.Error(t, ProposalRequest{BudgetLimit: -10}.Validate())
	assert.Error(t, ProposalRequest{BudgetLimit: math.Inf(1)}.Validate())
	assert.Error(t, ProposalRequest{BudgetLimit: math.NaN()}.Validate())
}

func TestProposalRequestValidate_SubCentPrecision(t *testing.T) {
	assert.NoError(t, ProposalRequest{BudgetLimit: 1000.05}.Validate())
	// A budget like 1000.005 renders as 1000.00/1000.01 in prompts and could
	// never be echoed back exactly.
	assert.Error(t, ProposalRequest{BudgetLimit: 1000.005}.Validate())
}

func TestBuildIndex(t *testing.T) {
	index := BuildIndex([]CatalogItem{
		{ID: "a", Name: "First", UnitPrice: 1},
		{ID: "b", Name: "Second", UnitPrice: 2},
		{ID: "a", Name: "Replacement", UnitPrice: 3},
	})

	assert.Len(t, index, 2)
	assert.Equal(t, "Replacement", index["a"].Name, "later duplicates win")
	assert.Equal(t, 2.0, index["b"].UnitPrice)
}
