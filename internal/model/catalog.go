package model

// CatalogItem is one eligible product read from canonical storage. The
// pipeline never mutates catalog rows; every price and impact figure it
// reports is re-derived from these values.
type CatalogItem struct {
	ID                   string  `json:"id" yaml:"id"`
	Name                 string  `json:"name" yaml:"name"`
	Category             string  `json:"category" yaml:"category"`
	UnitPrice            float64 `json:"unit_price" yaml:"unit_price"`
	PlasticSavedPerUnit  float64 `json:"plastic_saved_per_unit" yaml:"plastic_saved_per_unit"`   // grams per unit
	CarbonAvoidedPerUnit float64 `json:"carbon_avoided_per_unit" yaml:"carbon_avoided_per_unit"` // kg CO2e per unit
}

// CatalogIndex is an identifier → item lookup over a catalog snapshot.
type CatalogIndex map[string]CatalogItem

// BuildIndex builds a CatalogIndex from a catalog listing. Later duplicates
// of the same identifier win, matching store ordering.
func BuildIndex(items []CatalogItem) CatalogIndex {
	index := make(CatalogIndex, len(items))
	for _, item := range items {
		index[item.ID] = item
	}
	return index
}
