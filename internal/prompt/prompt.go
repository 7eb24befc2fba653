// Package prompt renders the system and user prompts for proposal
// generation. Builders are pure functions: same inputs, same strings.
package prompt

import (
	"fmt"
	"math"
	"strings"

	"github.com/verdantly/proposal-cli/internal/model"
)

const responseSchema = `Respond with a single JSON object and nothing else. No markdown fences, no commentary. Schema:
{
  "products": [
    {"id": "<catalog id>", "name": "<exact catalog name>", "quantity": <positive integer>, "unit_price": <exact catalog unit price>, "total_cost": <quantity * unit_price>}
  ],
  "allocated": <sum of all total_cost values>,
  "total_budget_limit": <the budget limit given above, echoed exactly>,
  "summary": "<one paragraph explaining the selection>",
  "impact": "<one paragraph on the sustainability impact>",
  "confidence": <number between 0 and 1>
}`

// BuildSystemPrompt renders the selection rules and the eligible catalog for
// the given budget. Items priced above the budget are omitted; when nothing
// qualifies the full catalog is listed so the model can still explain why no
// feasible selection exists.
func BuildSystemPrompt(items []model.CatalogItem, budget float64) string {
	eligible := make([]model.CatalogItem, 0, len(items))
	for _, item := range items {
		if item.UnitPrice <= budget {
			eligible = append(eligible, item)
		}
	}
	if len(eligible) == 0 {
		eligible = items
	}

	var b strings.Builder
	b.WriteString("You are a sustainable procurement assistant. Select products from the catalog below to build a purchase proposal that fits the budget.\n\n")
	fmt.Fprintf(&b, "Budget limit: %.2f\n\nCatalog (the only products you may select):\n", budget)

	for _, item := range eligible {
		fmt.Fprintf(&b, "- id=%s | name=%q | category=%s | unit_price=%.2f | max_affordable_alone=%s | plastic_saved_per_unit=%.2fg | carbon_avoided_per_unit=%.2fkg\n",
			item.ID, item.Name, item.Category, item.UnitPrice,
			maxAffordable(budget, item.UnitPrice),
			item.PlasticSavedPerUnit, item.CarbonAvoidedPerUnit,
		)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. Use only ids from the catalog above; copy name and unit_price verbatim.\n")
	b.WriteString("2. total_cost of every line must equal quantity * unit_price, computed exactly, no rounding heuristics.\n")
	b.WriteString("3. allocated must equal the sum of all total_cost values and must not exceed the budget limit.\n")
	fmt.Fprintf(&b, "4. total_budget_limit must echo the given budget limit exactly: %.2f\n\n", budget)
	b.WriteString(responseSchema)
	return b.String()
}

// maxAffordable renders floor(budget / price), the largest quantity of this
// item the budget could buy on its own.
func maxAffordable(budget, price float64) string {
	if price <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", int64(math.Floor(budget/price)))
}

// BuildUserPrompt renders the caller's request parameters.
func BuildUserPrompt(req model.ProposalRequest) string {
	var b strings.Builder
	b.WriteString("Build a purchase proposal.\n")
	fmt.Fprintf(&b, "Budget limit: %.2f\n", req.BudgetLimit)
	if len(req.CategoryFocus) > 0 {
		fmt.Fprintf(&b, "Category focus (in priority order): %s\n", strings.Join(req.CategoryFocus, ", "))
	}
	if req.Priority != "" {
		fmt.Fprintf(&b, "Sustainability priority: %s\n", req.Priority)
	}
	if req.ClientName != "" {
		fmt.Fprintf(&b, "Client: %s\n", req.ClientName)
	}
	return b.String()
}

// AppendFeedback extends a user prompt with the previous round's rejection
// reason and an explicit budget reminder for the next attempt.
func AppendFeedback(userPrompt, reason string, budget float64) string {
	var b strings.Builder
	b.WriteString(userPrompt)
	b.WriteString("\nYour previous response was rejected: ")
	b.WriteString(reason)
	fmt.Fprintf(&b, "\nFix this exact problem and respond again. Remember: the budget limit is %.2f and total_budget_limit must echo it exactly.\n", budget)
	return b.String()
}
