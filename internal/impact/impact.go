// Package impact recomputes sustainability totals from canonical per-unit
// metrics. Whatever the model claimed about impact is discarded upstream.
package impact

import (
	"math"

	"github.com/verdantly/proposal-cli/internal/fault"
	"github.com/verdantly/proposal-cli/internal/model"
)

// Compute sums quantity × canonical per-unit metric over the accepted line
// items. An identifier that no longer resolves is a data-consistency fault:
// it already passed verification once, so this is a server-side problem,
// not a user error.
func Compute(items []model.LineItem, catalog model.CatalogIndex) (*model.ComputedImpact, error) {
	var plastic, carbon float64
	for _, line := range items {
		item, ok := catalog[line.ItemID]
		if !ok {
			return nil, fault.Newf(fault.KindPrecondition, "catalog item %q disappeared between verification and impact computation", line.ItemID)
		}
		plastic += float64(line.Quantity) * item.PlasticSavedPerUnit
		carbon += float64(line.Quantity) * item.CarbonAvoidedPerUnit
	}
	return &model.ComputedImpact{
		TotalPlasticSaved:  round2(plastic),
		TotalCarbonAvoided: round2(carbon),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
