package sheets

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/vitrine/catalog"
)

// HeaderMapper maps rows by the column names found in the first row.
// Header matching ignores case and surrounding space. Zero-valued column
// names fall back to the defaults below.
type HeaderMapper struct {
	IDColumn      string // default "id"
	NameColumn    string // default "name"
	ImageColumn   string // default "image"
	FeatureColumn string // default "feature"

	KeyColumn   string // features sheet; default "key"
	LabelColumn string // default "label"
	MediaColumn string // default "media"
}

var _ catalog.RowMapper = HeaderMapper{}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type header struct {
	names []string
	index map[string]int
}

func parseHeader(row []string) header {
	h := header{names: make([]string, len(row)), index: make(map[string]int, len(row))}
	for i, name := range row {
		name = strings.TrimSpace(name)
		h.names[i] = name
		key := strings.ToLower(name)
		if _, dup := h.index[key]; !dup && key != "" {
			h.index[key] = i
		}
	}
	return h
}

// cell returns the trimmed value of column in row, "" when absent.
func (h header) cell(row []string, column string) string {
	i, ok := h.index[strings.ToLower(column)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// MapProducts maps the product sheet. Rows with an empty ID are skipped;
// every named column is kept in Product.Fields.
func (m HeaderMapper) MapProducts(rows [][]string) ([]catalog.Product, error) {
	if len(rows) == 0 {
		return []catalog.Product{}, nil
	}
	h := parseHeader(rows[0])
	idCol := or(m.IDColumn, "id")
	if _, ok := h.index[strings.ToLower(idCol)]; !ok {
		return nil, fmt.Errorf("sheets: product header has no %q column", idCol)
	}

	out := make([]catalog.Product, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := h.cell(row, idCol)
		if id == "" {
			continue
		}
		fields := make(map[string]string, len(row))
		for i, v := range row {
			if i < len(h.names) && h.names[i] != "" {
				fields[h.names[i]] = strings.TrimSpace(v)
			}
		}
		out = append(out, catalog.Product{
			ID:            id,
			Name:          h.cell(row, or(m.NameColumn, "name")),
			ImageFilename: h.cell(row, or(m.ImageColumn, "image")),
			FeatureKey:    h.cell(row, or(m.FeatureColumn, "feature")),
			Fields:        fields,
		})
	}
	return out, nil
}

// MapFeatures maps the features sheet, keyed by the key column. Later rows
// win on duplicate keys.
func (m HeaderMapper) MapFeatures(rows [][]string) (map[string]catalog.Feature, error) {
	out := make(map[string]catalog.Feature)
	if len(rows) == 0 {
		return out, nil
	}
	h := parseHeader(rows[0])
	keyCol := or(m.KeyColumn, "key")
	if _, ok := h.index[strings.ToLower(keyCol)]; !ok {
		return nil, fmt.Errorf("sheets: feature header has no %q column", keyCol)
	}
	for _, row := range rows[1:] {
		key := h.cell(row, keyCol)
		if key == "" {
			continue
		}
		out[key] = catalog.Feature{
			Key:      key,
			Label:    h.cell(row, or(m.LabelColumn, "label")),
			MediaURL: h.cell(row, or(m.MediaColumn, "media")),
		}
	}
	return out, nil
}
