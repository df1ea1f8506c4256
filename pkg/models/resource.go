/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package models pkg/models/resource.go
package models

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
)

// InventoryStatus tracks whether the server has accepted a resource.
type InventoryStatus string

const (
	InventoryStatusNew       InventoryStatus = "NEW"
	InventoryStatusCommitted InventoryStatus = "COMMITTED"
	InventoryStatusDeleted   InventoryStatus = "DELETED"
	InventoryStatusIgnored   InventoryStatus = "IGNORED"
)

// ResourceCategory is the level a resource type lives at in the inventory tree.
type ResourceCategory string

const (
	CategoryPlatform ResourceCategory = "PLATFORM"
	CategoryServer   ResourceCategory = "SERVER"
	CategoryService  ResourceCategory = "SERVICE"
)

// Configuration is a flat set of plugin connection properties.
type Configuration map[string]string

// Clone returns a copy that can be handed to plugin code.
func (c Configuration) Clone() Configuration {
	if c == nil {
		return Configuration{}
	}

	return maps.Clone(c)
}

// ResourceType describes a kind of resource a plugin knows how to discover and manage.
type ResourceType struct {
	Name     string           `json:"name"`
	Plugin   string           `json:"plugin"`
	Category ResourceCategory `json:"category"`
	// ParentTypes names the types this type can be discovered under. Empty
	// means the type hangs directly off the platform.
	ParentTypes []string `json:"parent_types,omitempty"`
	// ProcessQueries are declarative process-match queries evaluated before
	// discovery runs. See pkg/process for the syntax.
	ProcessQueries []string `json:"process_queries,omitempty"`
	// AvailabilityInterval of zero means the type has no availability
	// schedule and is checked on every pass.
	AvailabilityInterval Duration `json:"availability_interval,omitempty"`
	AvailabilityDisabled bool     `json:"availability_disabled,omitempty"`
	Ignored              bool     `json:"ignored,omitempty"`
	// Measurements are the default metric schedules of new resources.
	Measurements []MeasurementSchedule `json:"measurements,omitempty"`
}

// IsTopLevel reports whether the type is discovered directly under the platform.
func (t *ResourceType) IsTopLevel() bool {
	return t.Category != CategoryPlatform && len(t.ParentTypes) == 0
}

// HasParentType reports whether name is one of the type's parent types.
func (t *ResourceType) HasParentType(name string) bool {
	return slices.Contains(t.ParentTypes, name)
}

// AvailabilitySchedule returns the schedule a new container for this type
// starts with, or nil if the type is not scheduled. A disabled type always
// gets a disabled schedule so its resources defer to their parent.
func (t *ResourceType) AvailabilitySchedule() *AvailabilitySchedule {
	if t.AvailabilityInterval <= 0 && !t.AvailabilityDisabled {
		return nil
	}

	return &AvailabilitySchedule{
		Interval: t.AvailabilityInterval,
		Enabled:  !t.AvailabilityDisabled,
	}
}

// MeasurementSchedules returns a copy of the type's default schedules.
func (t *ResourceType) MeasurementSchedules() []MeasurementSchedule {
	return slices.Clone(t.Measurements)
}

// Resource is a node of the inventory tree. Parent and child links are
// UUIDs into the inventory arena rather than pointers.
type Resource struct {
	ID                  int             `json:"id"`
	UUID                string          `json:"uuid"`
	ResourceKey         string          `json:"resource_key"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	Version             string          `json:"version,omitempty"`
	ResourceType        string          `json:"resource_type"`
	PluginConfiguration Configuration   `json:"plugin_configuration,omitempty"`
	InventoryStatus     InventoryStatus `json:"inventory_status"`
	Connected           bool            `json:"connected"`
	MTime               int64           `json:"mtime"`
	ParentUUID          string          `json:"parent_uuid,omitempty"`
	Children            []string        `json:"children,omitempty"`
}

// NewResource builds a NEW resource with a fresh UUID.
func NewResource(resourceType, key, name string) *Resource {
	return &Resource{
		UUID:            uuid.NewString(),
		ResourceKey:     key,
		Name:            name,
		ResourceType:    resourceType,
		InventoryStatus: InventoryStatusNew,
	}
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}

	c := *r
	c.PluginConfiguration = r.PluginConfiguration.Clone()
	c.Children = slices.Clone(r.Children)

	return &c
}

// Matches reports whether other identifies the same resource. Server ids win
// when both sides have one, then UUIDs, then the type and key pair.
func (r *Resource) Matches(other *Resource) bool {
	if r == nil || other == nil {
		return false
	}

	if r.ID != 0 && other.ID != 0 {
		return r.ID == other.ID
	}

	if r.UUID != "" && r.UUID == other.UUID {
		return true
	}

	return r.ResourceType == other.ResourceType && r.ResourceKey == other.ResourceKey
}

// HasChild reports whether childUUID is linked under the resource.
func (r *Resource) HasChild(childUUID string) bool {
	return slices.Contains(r.Children, childUUID)
}

// AddChild links childUUID under the resource, keeping insertion order.
func (r *Resource) AddChild(childUUID string) {
	if !r.HasChild(childUUID) {
		r.Children = append(r.Children, childUUID)
	}
}

// RemoveChild unlinks childUUID.
func (r *Resource) RemoveChild(childUUID string) {
	r.Children = slices.DeleteFunc(r.Children, func(u string) bool { return u == childUUID })
}

func (r *Resource) String() string {
	return fmt.Sprintf("Resource[id=%d, uuid=%s, type=%s, key=%s, name=%s]",
		r.ID, r.UUID, r.ResourceType, r.ResourceKey, r.Name)
}

// DiscoveredResource is what a discovery component hands back for each resource it finds.
type DiscoveredResource struct {
	ResourceType        string        `json:"resource_type"`
	ResourceKey         string        `json:"resource_key"`
	Name                string        `json:"name"`
	Version             string        `json:"version,omitempty"`
	Description         string        `json:"description,omitempty"`
	PluginConfiguration Configuration `json:"plugin_configuration,omitempty"`
}

// Validate rejects descriptors that cannot be placed in the tree.
func (d *DiscoveredResource) Validate() error {
	if d.ResourceType == "" {
		return ErrMissingResourceType
	}

	if d.ResourceKey == "" {
		return fmt.Errorf("%w: type %s", ErrMissingResourceKey, d.ResourceType)
	}

	return nil
}

// ToResource converts the descriptor into a NEW resource.
func (d *DiscoveredResource) ToResource() *Resource {
	name := d.Name
	if name == "" {
		name = d.ResourceKey
	}

	r := NewResource(d.ResourceType, d.ResourceKey, name)
	r.Version = d.Version
	r.Description = d.Description
	r.PluginConfiguration = d.PluginConfiguration.Clone()

	return r
}
