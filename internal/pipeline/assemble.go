package pipeline

import (
	"math"
	"time"

	"github.com/verdantly/proposal-cli/internal/model"
)

// assemble combines the verified proposal, computed impact, and budget
// arithmetic into the record handed to storage. The storage layer supplies
// the generated identifier.
func assemble(req model.ProposalRequest, verified model.VerifiedProposal, computed model.ComputedImpact, prov model.Provenance) model.PersistedProposal {
	return model.PersistedProposal{
		ClientName:      req.ClientName,
		BudgetLimit:     req.BudgetLimit,
		Proposal:        verified,
		Impact:          computed,
		RemainingBudget: round2(req.BudgetLimit - verified.Allocated),
		Provenance:      prov,
		CreatedAt:       time.Now().UTC(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
