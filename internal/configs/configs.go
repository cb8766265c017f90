package configs

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/envtree/internal/events"
	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/idgen"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/resolve"
	"github.com/alfredjeanlab/envtree/internal/store"
)

// ResolvedConfig is a config with its expanded parent chain and the
// effective values the chain produces.
type ResolvedConfig struct {
	Config *resolve.ExpandedConfig `json:"config"`
	Values resolve.FlatValues      `json:"resolved_values"`
}

func resolveConfig(c *model.Config, all []*model.Config) (*ResolvedConfig, error) {
	expanded, err := resolve.Expand(c, all)
	if err != nil {
		return nil, err
	}
	return &ResolvedConfig{Config: expanded, Values: resolve.Flatten(expanded)}, nil
}

func findConfig(all []*model.Config, id string) (*model.Config, error) {
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("config %s: %w", id, model.ErrNotFound)
}

// newConfig allocates an ID and initial version for a config in projectID.
func newConfig(projectID, name string) (*model.Config, error) {
	id, err := idgen.Config()
	if err != nil {
		return nil, err
	}
	version, err := idgen.Version()
	if err != nil {
		return nil, err
	}
	return &model.Config{
		ID:        id,
		ProjectID: projectID,
		Name:      strings.TrimSpace(name),
		Values:    model.ValueMap{},
		Version:   version,
	}, nil
}

// List returns every config of the project, expanded and flattened.
func (s *Service) List(ctx context.Context, userID, projectID string) ([]*ResolvedConfig, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	all, err := s.store.ListConfigs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	out := make([]*ResolvedConfig, 0, len(all))
	for _, c := range all {
		rc, err := resolveConfig(c, all)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

// Get returns one config of the project, expanded and flattened.
func (s *Service) Get(ctx context.Context, userID, projectID, configID string) (*ResolvedConfig, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	all, err := s.store.ListConfigs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	c, err := findConfig(all, configID)
	if err != nil {
		return nil, err
	}
	return resolveConfig(c, all)
}

// Export renders the effective values of a config in the given format.
func (s *Service) Export(ctx context.Context, userID, projectID, configID string, format export.Format) ([]byte, error) {
	rc, err := s.Get(ctx, userID, projectID, configID)
	if err != nil {
		return nil, err
	}
	return export.Render(rc.Values, format)
}

// Create adds an empty standalone config to the project.
func (s *Service) Create(ctx context.Context, userID, projectID, name string) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := model.ValidateName("name", name); err != nil {
		return nil, err
	}
	c, err := newConfig(projectID, name)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateConfig(ctx, c); err != nil {
		return nil, fmt.Errorf("create config: %w", err)
	}

	s.recordAndPublish(ctx, events.TopicConfigCreated, projectID, c.ID, userID, events.NewConfigChanged(c, userID))
	return c, nil
}

// Duplicate copies the raw values and link fields of sourceID into a new
// config. A duplicate of a linked config is linked to the same parent.
func (s *Service) Duplicate(ctx context.Context, userID, projectID, sourceID, name string) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := model.ValidateName("name", name); err != nil {
		return nil, err
	}

	var created *model.Config
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		source, err := tx.GetConfig(ctx, projectID, sourceID)
		if err != nil {
			return err
		}
		c, err := newConfig(projectID, name)
		if err != nil {
			return err
		}
		c.Values = source.Values.Clone()
		c.LinkedConfigID = source.LinkedConfigID
		c.LinkedProjectConfigID = source.LinkedProjectConfigID
		if err := tx.CreateConfig(ctx, c); err != nil {
			return fmt.Errorf("create config: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := events.NewConfigChanged(created, userID)
	ev.SourceConfigID = sourceID
	s.recordAndPublish(ctx, events.TopicConfigDuplicated, projectID, created.ID, userID, ev)
	return created, nil
}

// Link creates an empty config that inherits the resolved values of targetID.
func (s *Service) Link(ctx context.Context, userID, projectID, targetID, name string) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := model.ValidateName("name", name); err != nil {
		return nil, err
	}

	var created *model.Config
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetConfig(ctx, projectID, targetID); err != nil {
			return err
		}
		c, err := newConfig(projectID, name)
		if err != nil {
			return err
		}
		c.LinkedConfigID = targetID
		c.LinkedProjectConfigID = projectID
		if err := tx.CreateConfig(ctx, c); err != nil {
			return fmt.Errorf("create config: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicConfigLinked, projectID, created.ID, userID, events.NewConfigChanged(created, userID))
	return created, nil
}

// Unlink materializes the effective values of configID into its own values
// and clears its link. Unlinking a standalone config rewrites its values
// unchanged and still issues a new version.
func (s *Service) Unlink(ctx context.Context, userID, projectID, configID, expectedVersion string) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	var updated *model.Config
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		all, err := tx.ListConfigs(ctx, projectID)
		if err != nil {
			return fmt.Errorf("list configs: %w", err)
		}
		target, err := findConfig(all, configID)
		if err != nil {
			return err
		}
		if target.Version != expectedVersion {
			return fmt.Errorf("config %s: %w", configID, model.ErrVersionConflict)
		}
		rc, err := resolveConfig(target, all)
		if err != nil {
			return err
		}
		updated, err = writeConfig(ctx, tx, projectID, configID, expectedVersion, model.ConfigPatch{
			Values:    resolve.Strip(rc.Values),
			ClearLink: true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicConfigUnlinked, projectID, configID, userID, events.NewConfigChanged(updated, userID))
	return updated, nil
}

// Update replaces the raw values of configID wholesale.
func (s *Service) Update(ctx context.Context, userID, projectID, configID, expectedVersion string, values model.ValueMap) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := model.ValidateValues(values); err != nil {
		return nil, err
	}
	if values == nil {
		values = model.ValueMap{}
	}

	updated, err := s.write(ctx, projectID, configID, expectedVersion, model.ConfigPatch{Values: values})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicConfigUpdated, projectID, configID, userID, events.NewConfigChanged(updated, userID))
	return updated, nil
}

// Rename changes the display name of configID.
func (s *Service) Rename(ctx context.Context, userID, projectID, configID, expectedVersion, name string) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := model.ValidateName("name", name); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)

	updated, err := s.write(ctx, projectID, configID, expectedVersion, model.ConfigPatch{Name: &name})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicConfigRenamed, projectID, configID, userID, events.NewConfigChanged(updated, userID))
	return updated, nil
}

// Delete removes configID. Configs linked to it are left dangling.
func (s *Service) Delete(ctx context.Context, userID, projectID, configID string) error {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return err
	}
	if err := s.store.DeleteConfig(ctx, projectID, configID); err != nil {
		return err
	}

	s.recordAndPublish(ctx, events.TopicConfigDeleted, projectID, configID, userID, events.ConfigDeleted{
		ProjectID: projectID,
		ConfigID:  configID,
		Actor:     userID,
	})
	return nil
}

// SetValue writes a single raw property. With create set, an existing
// property of the same name is rejected instead of overwritten.
func (s *Service) SetValue(ctx context.Context, userID, projectID, configID, expectedVersion, key string, value model.ConfigValue, create bool) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if err := model.ValidatePropertyName(key); err != nil {
		return nil, err
	}
	c, err := s.store.GetConfig(ctx, projectID, configID)
	if err != nil {
		return nil, err
	}
	if c.Version != expectedVersion {
		return nil, fmt.Errorf("config %s: %w", configID, model.ErrVersionConflict)
	}
	if _, exists := c.Values[key]; exists && create {
		return nil, model.Invalid("property", "property already exists in config")
	}
	if value.Group != nil && strings.TrimSpace(*value.Group) == "" {
		value.Group = nil
	}

	values := c.Values.Clone()
	values[key] = value
	updated, err := s.write(ctx, projectID, configID, expectedVersion, model.ConfigPatch{Values: values})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicValueSet, projectID, configID, userID, events.ValueChanged{
		ProjectID: projectID, ConfigID: configID, Key: key, Version: updated.Version, Actor: userID,
	})
	return updated, nil
}

// UnsetValue removes a single raw property.
func (s *Service) UnsetValue(ctx context.Context, userID, projectID, configID, expectedVersion, key string) (*model.Config, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if err := model.ValidatePropertyName(key); err != nil {
		return nil, err
	}
	c, err := s.store.GetConfig(ctx, projectID, configID)
	if err != nil {
		return nil, err
	}
	if c.Version != expectedVersion {
		return nil, fmt.Errorf("config %s: %w", configID, model.ErrVersionConflict)
	}
	if _, exists := c.Values[key]; !exists {
		return nil, model.Invalid("property", fmt.Sprintf("property %q is not set on this config", key))
	}

	values := c.Values.Clone()
	delete(values, key)
	updated, err := s.write(ctx, projectID, configID, expectedVersion, model.ConfigPatch{Values: values})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicValueUnset, projectID, configID, userID, events.ValueChanged{
		ProjectID: projectID, ConfigID: configID, Key: key, Version: updated.Version, Actor: userID,
	})
	return updated, nil
}

// write performs the conditional update with a fresh version token.
func (s *Service) write(ctx context.Context, projectID, configID, expectedVersion string, patch model.ConfigPatch) (*model.Config, error) {
	return writeConfig(ctx, s.store, projectID, configID, expectedVersion, patch)
}

func writeConfig(ctx context.Context, st store.Store, projectID, configID, expectedVersion string, patch model.ConfigPatch) (*model.Config, error) {
	version, err := idgen.Version()
	if err != nil {
		return nil, err
	}
	patch.Version = version
	return st.UpdateConfig(ctx, projectID, configID, expectedVersion, patch)
}
