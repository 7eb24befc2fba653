// Package catalog loads catalog items from seed files for import into the
// store.
package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/verdantly/proposal-cli/internal/model"
)

// LoadFile reads catalog items from a .yaml/.yml or .xlsx file, dispatching
// on the extension.
func LoadFile(path string) ([]model.CatalogItem, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, eris.Errorf("catalog: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadYAML reads a YAML seed file: a list of catalog items.
func LoadYAML(path string) ([]model.CatalogItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read yaml file")
	}

	var doc struct {
		Items []model.CatalogItem `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}
	if err := validate(doc.Items); err != nil {
		return nil, err
	}
	return doc.Items, nil
}

// xlsxColumns maps the expected header row of a price sheet.
var xlsxColumns = []string{"id", "name", "category", "unit_price", "plastic_saved_per_unit", "carbon_avoided_per_unit"}

// LoadXLSX reads the first sheet of a price workbook. The first row must be
// the header; metric columns may be omitted and default to zero.
func LoadXLSX(path string) ([]model.CatalogItem, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("catalog: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("catalog: workbook has no data rows")
	}

	colIdx := make(map[string]int)
	for j, cell := range sheet.Rows[0].Cells {
		colIdx[strings.ToLower(strings.TrimSpace(cell.String()))] = j
	}
	for _, required := range xlsxColumns[:4] {
		if _, ok := colIdx[required]; !ok {
			return nil, eris.Errorf("catalog: workbook is missing column %q", required)
		}
	}

	var items []model.CatalogItem
	for i, row := range sheet.Rows[1:] {
		get := func(col string) string {
			j, ok := colIdx[col]
			if !ok || j >= len(row.Cells) {
				return ""
			}
			return strings.TrimSpace(row.Cells[j].String())
		}
		if get("id") == "" {
			continue // blank trailing rows
		}

		price, err := strconv.ParseFloat(get("unit_price"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: row %d: parse unit_price", i+2)
		}
		item := model.CatalogItem{
			ID:        get("id"),
			Name:      get("name"),
			Category:  get("category"),
			UnitPrice: price,
		}
		if v := get("plastic_saved_per_unit"); v != "" {
			if item.PlasticSavedPerUnit, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, eris.Wrapf(err, "catalog: row %d: parse plastic_saved_per_unit", i+2)
			}
		}
		if v := get("carbon_avoided_per_unit"); v != "" {
			if item.CarbonAvoidedPerUnit, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, eris.Wrapf(err, "catalog: row %d: parse carbon_avoided_per_unit", i+2)
			}
		}
		items = append(items, item)
	}

	if err := validate(items); err != nil {
		return nil, err
	}
	return items, nil
}

func validate(items []model.CatalogItem) error {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		switch {
		case item.ID == "":
			return eris.Errorf("catalog: item %d has no id", i)
		case item.Name == "":
			return eris.Errorf("catalog: item %q has no name", item.ID)
		case item.UnitPrice < 0:
			return eris.Errorf("catalog: item %q has a negative unit price", item.ID)
		case item.PlasticSavedPerUnit < 0 || item.CarbonAvoidedPerUnit < 0:
			return eris.Errorf("catalog: item %q has a negative impact metric", item.ID)
		case seen[item.ID]:
			return eris.Errorf("catalog: duplicate item id %q", item.ID)
		}
		seen[item.ID] = true
	}
	return nil
}
