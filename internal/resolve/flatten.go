package resolve

import (
	"sort"

	"github.com/alfredjeanlab/envtree/internal/model"
)

// FlatValue is an effective property value annotated with its provenance.
// ParentName names the closest ancestor whose value was overridden; it is
// empty when Overrides is false.
type FlatValue struct {
	model.ConfigValue
	ParentName string `json:"parent_name,omitempty"`
	Overrides  bool   `json:"overrides"`
}

// FlatValues maps property names to their effective values.
type FlatValues map[string]FlatValue

// Flatten merges the values of e's chain from the root ancestor down to e.
// Later levels replace earlier ones, so e's own values always win.
func Flatten(e *ExpandedConfig) FlatValues {
	acc := make(FlatValues)
	origin := make(map[string]string)

	for _, level := range e.Chain() {
		for key, v := range level.Values {
			fv := FlatValue{ConfigValue: v}
			if _, ok := acc[key]; ok {
				fv.Overrides = true
				fv.ParentName = origin[key]
			}
			acc[key] = fv
			origin[key] = level.Name
		}
	}
	return acc
}

// Strip drops the display-only annotations, leaving storable values.
func Strip(flat FlatValues) model.ValueMap {
	out := make(model.ValueMap, len(flat))
	for k, v := range flat {
		out[k] = v.ConfigValue
	}
	return out.Clone()
}

// Keys returns the property names of flat in sorted order.
func Keys(flat FlatValues) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Groups returns the distinct non-empty groups used by flat, sorted.
func Groups(flat FlatValues) []string {
	seen := make(map[string]struct{})
	for _, v := range flat {
		if v.Group != nil && *v.Group != "" {
			seen[*v.Group] = struct{}{}
		}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
