package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store"
)

// FormatVersion is written in the header of every export.
const FormatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	ProjectCount int       `json:"project_count"`
	ConfigCount  int       `json:"config_count"`
	Sealed       bool      `json:"sealed"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// configRecord is a config as written to a backup. With a box the values
// travel as an opaque secretbox blob; without one they are written in clear.
type configRecord struct {
	ID                    string         `json:"id"`
	ProjectID             string         `json:"project_id"`
	Name                  string         `json:"name"`
	Version               string         `json:"version"`
	LinkedConfigID        string         `json:"linked_config_id,omitempty"`
	LinkedProjectConfigID string         `json:"linked_project_config_id,omitempty"`
	Values                model.ValueMap `json:"values,omitempty"`
	SealedValues          []byte         `json:"sealed_values,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

func newConfigRecord(c *model.Config, box *crypt.Box) (*configRecord, error) {
	rec := &configRecord{
		ID:                    c.ID,
		ProjectID:             c.ProjectID,
		Name:                  c.Name,
		Version:               c.Version,
		LinkedConfigID:        c.LinkedConfigID,
		LinkedProjectConfigID: c.LinkedProjectConfigID,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
	if box == nil {
		rec.Values = c.Values
		return rec, nil
	}
	plain, err := json.Marshal(c.Values)
	if err != nil {
		return nil, fmt.Errorf("marshal values: %w", err)
	}
	if rec.SealedValues, err = box.Seal(plain); err != nil {
		return nil, fmt.Errorf("seal values: %w", err)
	}
	return rec, nil
}

// ExportJSONL writes every project (with its member IDs) and every config
// from the store as JSONL to w. Projects are sorted by ID; configs keep the
// store order. User accounts and auth tokens are never exported.
func ExportJSONL(ctx context.Context, s store.Store, box *crypt.Box, w io.Writer) error {
	projects, err := s.ListAllProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		members, err := s.ListProjectMembers(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list members of %s: %w", p.ID, err)
		}
		p.Members = members
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ID < projects[j].ID
	})

	configs, err := s.ListAllConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      FormatVersion,
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		ProjectCount: len(projects),
		ConfigCount:  len(configs),
		Sealed:       box != nil,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, p := range projects {
		if err := enc.Encode(record{Type: "project", Data: p}); err != nil {
			return fmt.Errorf("encode project %s: %w", p.ID, err)
		}
	}

	for _, c := range configs {
		rec, err := newConfigRecord(c, box)
		if err != nil {
			return fmt.Errorf("config %s: %w", c.ID, err)
		}
		if err := enc.Encode(record{Type: "config", Data: rec}); err != nil {
			return fmt.Errorf("encode config %s: %w", c.ID, err)
		}
	}

	return nil
}
