// Package resolve expands chains of linked configs and flattens them into the
// effective set of values a config exposes.
package resolve

import (
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/envtree/internal/model"
)

// ExpandedConfig is a config together with its resolved parent chain.
//
// LinkedParent is nil both when the config is not linked and when its parent
// could not be found in the config set; Dangling distinguishes the two.
type ExpandedConfig struct {
	*model.Config
	LinkedParent *ExpandedConfig `json:"linked_parent"`
}

// Dangling reports whether the config is linked but its parent is absent.
func (e *ExpandedConfig) Dangling() bool {
	return e.IsLinked() && e.LinkedParent == nil
}

// Chain returns the configs from the root ancestor down to e.
func (e *ExpandedConfig) Chain() []*model.Config {
	var chain []*model.Config
	for cur := e; cur != nil; cur = cur.LinkedParent {
		chain = append(chain, cur.Config)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// MarshalJSON renders the config fields plus "linked_parent", which is
// omitted for standalone configs and null for dangling links.
func (e *ExpandedConfig) MarshalJSON() ([]byte, error) {
	type plain model.Config
	if !e.IsLinked() {
		return json.Marshal((*plain)(e.Config))
	}
	return json.Marshal(struct {
		*plain
		LinkedParent *ExpandedConfig `json:"linked_parent"`
	}{(*plain)(e.Config), e.LinkedParent})
}

// Expand resolves the linked_config_id chain of c against configs.
// A parent missing from configs terminates the chain without error.
// A chain that revisits a config fails with model.ErrCycleDetected.
func Expand(c *model.Config, configs []*model.Config) (*ExpandedConfig, error) {
	byID := make(map[string]*model.Config, len(configs))
	for _, cfg := range configs {
		byID[cfg.ID] = cfg
	}
	return expand(c, byID, map[string]bool{})
}

func expand(c *model.Config, byID map[string]*model.Config, visited map[string]bool) (*ExpandedConfig, error) {
	if visited[c.ID] {
		return nil, fmt.Errorf("%w: config %s", model.ErrCycleDetected, c.ID)
	}
	visited[c.ID] = true

	result := &ExpandedConfig{Config: c}
	if !c.IsLinked() {
		return result, nil
	}

	parent, ok := byID[c.LinkedConfigID]
	if !ok {
		return result, nil
	}
	expanded, err := expand(parent, byID, visited)
	if err != nil {
		return nil, err
	}
	result.LinkedParent = expanded
	return result, nil
}

// ExpandAll expands every config in configs against the same set.
func ExpandAll(configs []*model.Config) ([]*ExpandedConfig, error) {
	out := make([]*ExpandedConfig, 0, len(configs))
	for _, c := range configs {
		e, err := Expand(c, configs)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
