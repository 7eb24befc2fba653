// Package verify parses and cross-checks raw model output against the
// canonical catalog. It never corrects a candidate; it accepts or rejects
// with a precise reason, and every number it emits is re-derived from
// catalog data.
package verify

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/verdantly/proposal-cli/internal/fault"
	"github.com/verdantly/proposal-cli/internal/model"
)

// lineTotalTolerance is the absolute slack allowed between a claimed line
// total and quantity × canonical unit price.
const lineTotalTolerance = 0.01

// candidateDocument mirrors the JSON shape the model is instructed to
// produce. Pointers distinguish absent fields from zero values.
type candidateDocument struct {
	Products         []candidateLine `json:"products"`
	Allocated        *float64        `json:"allocated"`
	TotalBudgetLimit *float64        `json:"total_budget_limit"`
	Summary          *string         `json:"summary"`
	Impact           *string         `json:"impact"`
	Confidence       *float64        `json:"confidence"`
}

type candidateLine struct {
	ID        string   `json:"id"`
	Name      *string  `json:"name"`
	Quantity  *float64 `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
	TotalCost *float64 `json:"total_cost"`
}

// Verify runs the full check sequence on one provider round. Checks run in
// strict order and stop at the first violation. On success the returned
// proposal carries canonical names and prices and a recomputed allocation.
func Verify(raw string, catalog model.CatalogIndex, budgetLimit float64) (*model.VerifiedProposal, error) {
	doc, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	items := make([]model.LineItem, 0, len(doc.Products))
	var allocated float64
	for _, line := range doc.Products {
		item, ok := catalog[line.ID]
		if !ok {
			return nil, fault.Rejectionf("product %q is not in the catalog", line.ID)
		}
		if *line.Name != item.Name {
			return nil, fault.Rejectionf("product %q: name %q does not match catalog name %q", line.ID, *line.Name, item.Name)
		}
		if *line.UnitPrice != item.UnitPrice {
			return nil, fault.Rejectionf("product %q: unit price %.4f does not match catalog price %.4f", line.ID, *line.UnitPrice, item.UnitPrice)
		}

		quantity := int(*line.Quantity)
		computed := float64(quantity) * item.UnitPrice
		if math.Abs(*line.TotalCost-computed) > lineTotalTolerance {
			return nil, fault.Rejectionf("product %q: total cost %.2f does not equal quantity %d x unit price %.2f = %.2f", line.ID, *line.TotalCost, quantity, item.UnitPrice, computed)
		}

		allocated += computed
		items = append(items, model.LineItem{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  quantity,
			UnitPrice: item.UnitPrice,
			TotalCost: computed,
		})
	}

	// The budget cap is judged on the recomputed sum before the claimed
	// allocation is even compared: a selection that cannot be afforded gets
	// the budget-exceeded reason no matter what the candidate claims to
	// have allocated.
	if allocated > budgetLimit {
		return nil, fault.Rejectionf("selection costs %.2f which exceeds the budget limit %.2f", allocated, budgetLimit)
	}
	if tol := allocatedTolerance(len(items)); math.Abs(*doc.Allocated-allocated) > tol {
		return nil, fault.Rejectionf("allocated %.2f does not match the sum of line totals %.2f (tolerance %.2f)", *doc.Allocated, allocated, tol)
	}
	if *doc.TotalBudgetLimit != budgetLimit {
		return nil, fault.Rejectionf("total_budget_limit %.2f must echo the given budget limit %.2f exactly", *doc.TotalBudgetLimit, budgetLimit)
	}

	return &model.VerifiedProposal{
		LineItems:       items,
		Allocated:       allocated,
		Summary:         *doc.Summary,
		ImpactNarrative: *doc.Impact,
		Confidence:      *doc.Confidence,
	}, nil
}

// parse decodes the raw text as exactly one JSON document. No fence
// stripping, no partial-match recovery: anything else is a rejection.
func parse(raw string) (*candidateDocument, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var doc candidateDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fault.Rejectionf("response is not a single valid JSON document: %v", err)
	}
	if dec.More() {
		return nil, fault.Rejection("response contains trailing content after the JSON document")
	}
	return &doc, nil
}

// checkSchema validates shape before any catalog lookups happen.
func checkSchema(doc *candidateDocument) error {
	switch {
	case doc.Allocated == nil:
		return fault.Rejection("required field \"allocated\" is missing")
	case doc.TotalBudgetLimit == nil:
		return fault.Rejection("required field \"total_budget_limit\" is missing")
	case doc.Summary == nil:
		return fault.Rejection("required field \"summary\" is missing")
	case doc.Impact == nil:
		return fault.Rejection("required field \"impact\" is missing")
	case doc.Confidence == nil:
		return fault.Rejection("required field \"confidence\" is missing")
	case len(doc.Products) == 0:
		return fault.Rejection("proposal must contain at least one product line")
	case *doc.Confidence < 0 || *doc.Confidence > 1:
		return fault.Rejectionf("confidence %.4f must be between 0 and 1", *doc.Confidence)
	}

	for i, line := range doc.Products {
		switch {
		case line.ID == "":
			return fault.Rejectionf("product line %d is missing an id", i)
		case line.Name == nil:
			return fault.Rejectionf("product line %d is missing a name", i)
		case line.Quantity == nil:
			return fault.Rejectionf("product line %d is missing a quantity", i)
		case line.UnitPrice == nil:
			return fault.Rejectionf("product line %d is missing a unit price", i)
		case line.TotalCost == nil:
			return fault.Rejectionf("product line %d is missing a total cost", i)
		case *line.Quantity < 1 || *line.Quantity != math.Trunc(*line.Quantity):
			return fault.Rejectionf("product line %d: quantity %v must be a positive integer", i, *line.Quantity)
		case *line.UnitPrice < 0:
			return fault.Rejectionf("product line %d: unit price must not be negative", i)
		case *line.TotalCost < 0:
			return fault.Rejectionf("product line %d: total cost must not be negative", i)
		}
	}
	return nil
}

// allocatedTolerance absorbs compounding per-line rounding when comparing
// the claimed allocation to the recomputed sum: at least one currency unit,
// growing with the number of lines.
func allocatedTolerance(lines int) float64 {
	return math.Max(1.0, 0.05*float64(lines))
}
