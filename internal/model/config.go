package model

import (
	"time"
)

// ConfigValue is a single property stored in a config.
// Value and Group are nullable; Hidden only affects masking in the UI and
// has no effect on exports.
type ConfigValue struct {
	Value  *string `json:"value"`
	Hidden bool    `json:"hidden,omitempty"`
	Group  *string `json:"group"`
}

// ValueMap maps property names to their values.
type ValueMap map[string]ConfigValue

// Clone returns a deep copy of the map. A nil map clones to an empty one.
func (m ValueMap) Clone() ValueMap {
	out := make(ValueMap, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

func (v ConfigValue) clone() ConfigValue {
	c := ConfigValue{Hidden: v.Hidden}
	if v.Value != nil {
		s := *v.Value
		c.Value = &s
	}
	if v.Group != nil {
		g := *v.Group
		c.Group = &g
	}
	return c
}

// Config is a named set of key-value secrets belonging to a project.
// When LinkedConfigID is set the config inherits the resolved values of the
// referenced config; its own Values act as overrides.
type Config struct {
	ID                    string    `json:"id"`
	ProjectID             string    `json:"project_id"`
	Name                  string    `json:"name"`
	Values                ValueMap  `json:"values"`
	Version               string    `json:"version"`
	LinkedConfigID        string    `json:"linked_config_id,omitempty"`
	LinkedProjectConfigID string    `json:"linked_project_config_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsLinked reports whether the config inherits from another config.
func (c *Config) IsLinked() bool {
	return c.LinkedConfigID != ""
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Values = c.Values.Clone()
	return &cp
}

// ConfigPatch describes a conditional update to a stored config.
// Nil fields are left unchanged. Version is the new token written on success.
type ConfigPatch struct {
	Name      *string
	Values    ValueMap // nil = unchanged
	ClearLink bool
	Version   string
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
