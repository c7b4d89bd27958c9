package source

import (
	"strings"
)

// Filterer drops listed items matching a source's configured include and
// exclude rules. Listings only; detail fetches are never filtered.
type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

func (f *Filterer) Run(items []Item, config *Config) []Item {
	if config == nil || len(config.Filters) == 0 {
		return items
	}

	filtered := make([]Item, 0, len(items))
	for _, item := range items {
		if !f.excluded(item, config.Filters) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func (f *Filterer) excluded(item Item, filters []ConfigFilter) bool {
	for _, filter := range filters {
		value := f.fieldValue(item, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matches(value, exclude) {
				return true
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matches(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true
			}
		}
	}
	return false
}

func (f *Filterer) fieldValue(item Item, field string) string {
	switch field {
	case "title":
		return item.Title
	case "body":
		return item.Body
	default:
		return ""
	}
}

func (f *Filterer) matches(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}
