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

package plugin

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// ComponentFactory builds a fresh, unstarted component.
type ComponentFactory func() ResourceComponent

// Definition binds a resource type to the plugin code that manages it.
type Definition struct {
	Type         *models.ResourceType
	NewComponent ComponentFactory
	// Discovery is nil for types that are only created by hand or by the server.
	Discovery DiscoveryComponent
}

// Registry holds the resource types known to the agent.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]*Definition
	disabled map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]*Definition),
		disabled: make(map[string]struct{}),
	}
}

// Register adds a definition. Type names must be unique.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Type == nil || def.Type.Name == "" || def.NewComponent == nil {
		return ErrInvalidDefinition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[def.Type.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, def.Type.Name)
	}

	r.defs[def.Type.Name] = def

	return nil
}

// Disable marks types as disabled. Disabled types are treated as unknown.
func (r *Registry) Disable(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range names {
		r.disabled[n] = struct{}{}
	}
}

// Definition returns the enabled definition for name.
func (r *Registry) Definition(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, name)
	}

	if _, off := r.disabled[name]; off {
		return nil, fmt.Errorf("%w: %s is disabled", ErrUnknownResourceType, name)
	}

	return def, nil
}

// Type returns the resource type for name, or nil if it is unknown or disabled.
func (r *Registry) Type(name string) *models.ResourceType {
	def, err := r.Definition(name)
	if err != nil {
		return nil
	}

	return def.Type
}

// Known reports whether name is registered and enabled.
func (r *Registry) Known(name string) bool {
	return r.Type(name) != nil
}

// PlatformType returns the first registered platform type.
func (r *Registry) PlatformType() *models.ResourceType {
	for _, t := range r.types() {
		if t.Category == models.CategoryPlatform {
			return t
		}
	}

	return nil
}

// TopLevelTypes returns the enabled types discovered directly under the platform, by name.
func (r *Registry) TopLevelTypes() []*models.ResourceType {
	var out []*models.ResourceType

	for _, t := range r.types() {
		if t.IsTopLevel() {
			out = append(out, t)
		}
	}

	return out
}

// ChildTypes returns the enabled types whose parent types include parentType, by name.
func (r *Registry) ChildTypes(parentType string) []*models.ResourceType {
	var out []*models.ResourceType

	for _, t := range r.types() {
		if t.HasParentType(parentType) {
			out = append(out, t)
		}
	}

	return out
}

func (r *Registry) types() []*models.ResourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))

	for name := range r.defs {
		if _, off := r.disabled[name]; !off {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	out := make([]*models.ResourceType, 0, len(names))
	for _, n := range names {
		out = append(out, r.defs[n].Type)
	}

	return out
}

// Names returns every enabled type name.
func (r *Registry) Names() []string {
	types := r.types()

	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.Name)
	}

	return slices.Clip(names)
}
