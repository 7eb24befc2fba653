package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// ProposalRequest carries the caller's inputs for one generation run.
// Constructed once per invocation and never mutated.
type ProposalRequest struct {
	ClientName    string   `json:"client_name,omitempty" yaml:"client_name"`
	BudgetLimit   float64  `json:"budget_limit" yaml:"budget_limit"`
	CategoryFocus []string `json:"category_focus,omitempty" yaml:"category_focus"`
	Priority      string   `json:"priority,omitempty" yaml:"priority"`
}

// Validate checks the request invariants: a positive, finite budget with no
// sub-cent precision. Prompts render the budget at two decimals and the
// verifier demands an exact echo, so finer precision could never round-trip.
func (r ProposalRequest) Validate() error {
	if r.BudgetLimit <= 0 {
		return eris.New("model: budget limit must be positive")
	}
	if math.IsInf(r.BudgetLimit, 0) || math.IsNaN(r.BudgetLimit) {
		return eris.New("model: budget limit must be finite")
	}
	if math.Round(r.BudgetLimit*100)/100 != r.BudgetLimit {
		return eris.New("model: budget limit must not carry sub-cent precision")
	}
	return nil
}

// LineItem is one accepted product line. Quantity and unit price have been
// cross-checked against the catalog; TotalCost equals Quantity × UnitPrice.
type LineItem struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	TotalCost float64 `json:"total_cost"`
}

// VerifiedProposal is a model candidate that passed every verification
// check. Allocated is recomputed by the verifier, never taken from the model.
type VerifiedProposal struct {
	LineItems       []LineItem `json:"line_items"`
	Allocated       float64    `json:"allocated"`
	Summary         string     `json:"summary"`
	ImpactNarrative string     `json:"impact_narrative"`
	Confidence      float64    `json:"confidence"`
}

// ComputedImpact holds sustainability totals derived strictly from canonical
// per-unit metrics and accepted quantities.
type ComputedImpact struct {
	TotalPlasticSaved  float64 `json:"total_plastic_saved"`  // grams
	TotalCarbonAvoided float64 `json:"total_carbon_avoided"` // kg CO2e
}

// Provenance records the exact provider exchange that produced a proposal.
type Provenance struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	RawResponse  string `json:"raw_response"`
	Model        string `json:"model"`
}

// InteractionLogEntry is the immutable audit record of one provider round,
// written before any parsing of the response occurs.
type InteractionLogEntry struct {
	ID            string    `json:"id"`
	SystemPrompt  string    `json:"system_prompt"`
	UserPrompt    string    `json:"user_prompt"`
	RawResponse   string    `json:"raw_response"`
	Model         string    `json:"model"`
	ModuleVersion string    `json:"module_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// PersistedProposal is the final record written to storage: the verified
// proposal, computed impact, budget arithmetic, and provenance.
type PersistedProposal struct {
	ID              string           `json:"id"`
	ClientName      string           `json:"client_name,omitempty"`
	BudgetLimit     float64          `json:"budget_limit"`
	Proposal        VerifiedProposal `json:"proposal"`
	Impact          ComputedImpact   `json:"impact"`
	RemainingBudget float64          `json:"remaining_budget"`
	Provenance      Provenance       `json:"provenance"`
	CreatedAt       time.Time        `json:"created_at"`
}
