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

package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

// MergeResource places candidate under parentUUID. A resource already in the
// tree that matches candidate by server id, UUID or type and key is updated
// and returned instead of adding a duplicate. created reports whether a new
// node was added; new nodes get a container and, in standalone mode, are
// committed and activated right away.
func (m *Manager) MergeResource(
	ctx context.Context, parentUUID string, candidate *models.Resource,
) (r *models.Resource, created bool, err error) {
	m.mu.Lock()
	r, created, err = m.mergeResourceLocked(parentUUID, candidate)
	m.mu.Unlock()

	if err != nil || !created {
		return r, created, err
	}

	m.afterMerge(ctx, []*models.Resource{r})

	return r, true, nil
}

// afterMerge announces new resources and, in standalone mode, activates them
// in the order they were added.
func (m *Manager) afterMerge(ctx context.Context, created []*models.Resource) {
	if len(created) == 0 {
		return
	}

	m.fireAdded(ctx, created)

	if !m.standalone {
		return
	}

	for _, r := range created {
		c := m.Container(r.UUID)
		if c == nil {
			continue
		}

		if err := m.activate(ctx, c); err != nil {
			m.logger.Warn().Err(err).Str("resource_uuid", r.UUID).Msg("Failed to activate merged resource")
		}
	}
}

// mergeResourceLocked does the tree half of a merge. Callers hold mu for writing.
func (m *Manager) mergeResourceLocked(parentUUID string, candidate *models.Resource) (*models.Resource, bool, error) {
	parent := m.containers[parentUUID]
	if parent == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrParentNotFound, parentUUID)
	}

	if existing := m.findMatchLocked(parent.Resource(), candidate); existing != nil {
		return m.refreshLocked(existing, candidate), false, nil
	}

	t := m.registry.Type(candidate.ResourceType)
	if t == nil {
		return nil, false, fmt.Errorf("%w: %s", plugin.ErrUnknownResourceType, candidate.ResourceType)
	}

	r := candidate.Clone()
	if r.UUID == "" {
		r.UUID = uuid.NewString()
	}

	r.ParentUUID = parentUUID
	r.Children = nil

	switch {
	case m.standalone:
		if r.ID == 0 {
			r.ID = m.nextLocalIDLocked()
		}

		r.InventoryStatus = models.InventoryStatusCommitted
	case r.InventoryStatus == "":
		r.InventoryStatus = models.InventoryStatusNew
	}

	c := m.newContainer(r, t)
	if m.standalone {
		c.SetSyncState(container.SyncSynchronized)
	}

	m.insertLocked(c)

	return r, true, nil
}

// findMatchLocked looks candidate up by server id, then UUID, then by type
// and key among parent's children.
func (m *Manager) findMatchLocked(parent, candidate *models.Resource) *container.Container {
	if candidate.ID != 0 {
		if u, ok := m.byID[candidate.ID]; ok {
			return m.containers[u]
		}
	}

	if candidate.UUID != "" {
		if c := m.containers[candidate.UUID]; c != nil {
			return c
		}
	}

	for _, childUUID := range parent.Children {
		if c := m.containers[childUUID]; c != nil && c.Resource().Matches(candidate) {
			return c
		}
	}

	return nil
}

// refreshLocked copies the fields discovery may change onto an existing
// node. The node is only replaced when something actually changed.
func (m *Manager) refreshLocked(c *container.Container, candidate *models.Resource) *models.Resource {
	r := c.Resource()

	versionChanged := candidate.Version != "" && candidate.Version != r.Version
	descriptionChanged := candidate.Description != "" && candidate.Description != r.Description

	if !versionChanged && !descriptionChanged {
		return r
	}

	return m.mutateLocked(c, func(n *models.Resource) {
		if versionChanged {
			n.Version = candidate.Version
		}

		if descriptionChanged {
			n.Description = candidate.Description
		}
	})
}
