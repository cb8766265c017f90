package events

import (
	"context"

	"github.com/alfredjeanlab/envtree/internal/model"
)

// Event topic constants. Subjects are hierarchical so subscribers can use
// NATS wildcards such as "envtree.config.>".
const (
	TopicConfigCreated    = "envtree.config.created"
	TopicConfigDuplicated = "envtree.config.duplicated"
	TopicConfigLinked     = "envtree.config.linked"
	TopicConfigUnlinked   = "envtree.config.unlinked"
	TopicConfigUpdated    = "envtree.config.updated"
	TopicConfigRenamed    = "envtree.config.renamed"
	TopicConfigDeleted    = "envtree.config.deleted"
	TopicValueSet         = "envtree.config.value_set"
	TopicValueUnset       = "envtree.config.value_unset"

	TopicProjectCreated = "envtree.project.created"
	TopicProjectDeleted = "envtree.project.deleted"
	TopicMemberAdded    = "envtree.project.member_added"

	// TopicAll matches every envtree event.
	TopicAll = "envtree.>"
)

// Event payloads. Config values are never included; subscribers re-read the
// config through the API when they need them.

// ConfigChanged is published for create, duplicate, link, unlink, update
// and rename.
type ConfigChanged struct {
	ProjectID      string `json:"project_id"`
	ConfigID       string `json:"config_id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	LinkedConfigID string `json:"linked_config_id,omitempty"`
	SourceConfigID string `json:"source_config_id,omitempty"`
	Keys           int    `json:"keys"`
	Actor          string `json:"actor,omitempty"`
}

type ConfigDeleted struct {
	ProjectID string `json:"project_id"`
	ConfigID  string `json:"config_id"`
	Actor     string `json:"actor,omitempty"`
}

type ValueChanged struct {
	ProjectID string `json:"project_id"`
	ConfigID  string `json:"config_id"`
	Key       string `json:"key"`
	Version   string `json:"version"`
	Actor     string `json:"actor,omitempty"`
}

type ProjectChanged struct {
	Project *model.Project `json:"project"`
	Actor   string         `json:"actor,omitempty"`
}

type MemberAdded struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Actor     string `json:"actor,omitempty"`
}

// ProjectOf returns the project an event payload belongs to, or "" for
// payloads that are not project scoped.
func ProjectOf(event any) string {
	if s, ok := event.(projectScoped); ok {
		return s.EventProjectID()
	}
	return ""
}

func (e ConfigChanged) EventProjectID() string { return e.ProjectID }
func (e ConfigDeleted) EventProjectID() string { return e.ProjectID }
func (e ValueChanged) EventProjectID() string  { return e.ProjectID }
func (e MemberAdded) EventProjectID() string   { return e.ProjectID }

func (e ProjectChanged) EventProjectID() string {
	if e.Project == nil {
		return ""
	}
	return e.Project.ID
}

// NewConfigChanged builds a ConfigChanged payload from a stored config.
func NewConfigChanged(c *model.Config, actor string) ConfigChanged {
	return ConfigChanged{
		ProjectID:      c.ProjectID,
		ConfigID:       c.ID,
		Name:           c.Name,
		Version:        c.Version,
		LinkedConfigID: c.LinkedConfigID,
		Keys:           len(c.Values),
		Actor:          actor,
	}
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
