package nlu

import (
	"strconv"
	"strings"
)

// ParseCatalog reads a "name:weight, name:weight" weight table. A malformed
// catalog yields an empty map. Use CatalogNames when only the names matter.
func ParseCatalog(catalog string) map[string]float64 {
	out := make(map[string]float64)
	for _, item := range strings.Split(catalog, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, weight, ok := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return map[string]float64{}
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			return map[string]float64{}
		}
		out[name] = clamp01(w)
	}
	return out
}

// CatalogNames returns the names of a comma-separated catalog in order,
// with or without weights.
func CatalogNames(catalog string) []string {
	var names []string
	for _, item := range strings.Split(catalog, ",") {
		name, _, _ := strings.Cut(item, ":")
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// MergeCatalogs combines weight tables; later tables win on conflicts.
func MergeCatalogs(catalogs ...map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, c := range catalogs {
		for k, v := range c {
			out[k] = v
		}
	}
	return out
}
