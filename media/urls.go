package media

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/hazyhaar/vitrine/catalog"
)

// ImageURL builds the primary image URL of a product. Absolute filenames
// (with a scheme) are returned unchanged.
func ImageURL(base, filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return ""
	}
	if u, err := url.Parse(filename); err == nil && u.Scheme != "" {
		return filename
	}
	if base == "" {
		return ""
	}
	joined, err := url.JoinPath(base, filename)
	if err != nil {
		return ""
	}
	return joined
}

// CaseVariant returns u with its file extension case flipped: a lower-case
// extension becomes upper case, anything else becomes lower case. It returns
// "" when u has no extension or the variant equals u.
func CaseVariant(u string) string {
	ext := path.Ext(u)
	if ext == "" || strings.ContainsAny(ext, "/?#") {
		return ""
	}
	var flipped string
	if ext == strings.ToLower(ext) {
		flipped = strings.ToUpper(ext)
	} else {
		flipped = strings.ToLower(ext)
	}
	if flipped == ext {
		return ""
	}
	return strings.TrimSuffix(u, ext) + flipped
}

// TargetURLs derives the de-duplicated set of media URLs referenced by the
// products and feature records, in first-seen order. Each product image also
// contributes its case variant.
func TargetURLs(base string, products []catalog.Product, features map[string]catalog.Feature) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, p := range products {
		primary := ImageURL(base, p.ImageFilename)
		add(primary)
		add(CaseVariant(primary))
	}

	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(strings.TrimSpace(features[k].MediaURL))
	}
	return out
}
