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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

const (
	snapshotVersion  = 1
	snapshotDirPerms = 0o755
	snapshotPerms    = 0o600
)

var (
	errSnapshotNoPlatform = errors.New("snapshot has no usable platform resource")
	errInventoryNotEmpty  = errors.New("inventory is not empty")
)

// Snapshot is the persisted form of the inventory.
type Snapshot struct {
	Version      int                `json:"version"`
	PlatformUUID string             `json:"platform_uuid"`
	Resources    []*models.Resource `json:"resources"`
	Containers   []ContainerState   `json:"containers"`
}

// ContainerState is the per-resource metadata kept next to the tree.
type ContainerState struct {
	UUID                 string                       `json:"uuid"`
	SyncState            container.SyncState          `json:"sync_state"`
	Availability         *models.Availability         `json:"availability,omitempty"`
	AvailabilitySchedule *models.AvailabilitySchedule `json:"availability_schedule,omitempty"`
	MeasurementSchedules []models.MeasurementSchedule `json:"measurement_schedules,omitempty"`
	DriftDefinitions     []string                     `json:"drift_definitions,omitempty"`
}

// EncodeSnapshot serializes s.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode inventory snapshot: %w", err)
	}

	return data, nil
}

// DecodeSnapshot parses data, rejecting versions it does not understand.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode inventory snapshot: %w", err)
	}

	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}

	return &s, nil
}

// SaveSnapshotFile writes s to path through a temporary file and a rename.
func SaveSnapshotFile(path string, s *Snapshot) error {
	payload, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), snapshotDirPerms); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, payload, snapshotPerms); err != nil {
		return fmt.Errorf("write temporary inventory snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist inventory snapshot: %w", err)
	}

	return nil
}

// LoadSnapshotFile reads the snapshot at path. A missing file yields an
// error matching os.ErrNotExist.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory snapshot: %w", err)
	}

	return DecodeSnapshot(data)
}

// Snapshot captures the tree and the container metadata, parents first.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Snapshot{
		Version:      snapshotVersion,
		PlatformUUID: m.platformUUID,
	}

	m.walkLocked(m.platformUUID, func(c *container.Container) {
		s.Resources = append(s.Resources, c.Resource().Clone())
		s.Containers = append(s.Containers, ContainerState{
			UUID:                 c.UUID(),
			SyncState:            c.SyncState(),
			Availability:         c.Availability(),
			AvailabilitySchedule: c.AvailabilitySchedule(),
			MeasurementSchedules: c.MeasurementSchedules(),
			DriftDefinitions:     c.DriftDefinitions(),
		})
	})

	return s
}

// restore rebuilds an empty inventory from s. Resources of unknown or
// disabled types are dropped with their subtree. A resource listed under
// more than one parent, or under its own subtree, is restored once at its
// first position. pruned counts every resource that was not restored.
func (m *Manager) restore(s *Snapshot) (pruned int, err error) {
	resources := make(map[string]*models.Resource, len(s.Resources))
	for _, r := range s.Resources {
		if r != nil && r.UUID != "" {
			resources[r.UUID] = r
		}
	}

	states := make(map[string]ContainerState, len(s.Containers))
	for _, st := range s.Containers {
		states[st.UUID] = st
	}

	root := resources[s.PlatformUUID]
	if root == nil || m.registry.Type(root.ResourceType) == nil {
		return len(s.Resources), errSnapshotNoPlatform
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.containers) > 0 {
		return 0, errInventoryNotEmpty
	}

	restored := m.restoreNodeLocked(root, "", resources, states, make(map[string]struct{}, len(resources)))
	m.platformUUID = root.UUID

	return len(s.Resources) - restored, nil
}

func (m *Manager) restoreNodeLocked(
	r *models.Resource,
	parentUUID string,
	resources map[string]*models.Resource,
	states map[string]ContainerState,
	seen map[string]struct{},
) int {
	if _, ok := seen[r.UUID]; ok {
		m.logger.Warn().Str("resource_uuid", r.UUID).Str("parent_uuid", parentUUID).
			Msg("Skipping repeated resource in the snapshot")

		return 0
	}

	seen[r.UUID] = struct{}{}

	t := m.registry.Type(r.ResourceType)
	if t == nil {
		m.logger.Info().Str("resource_uuid", r.UUID).Str("resource_type", r.ResourceType).
			Msg("Dropping resource of unknown or disabled type from the snapshot")

		return 0
	}

	node := r.Clone()
	node.ParentUUID = parentUUID
	node.Children = nil

	c := m.newContainer(node, t)

	if st, ok := states[node.UUID]; ok {
		if st.SyncState != "" {
			c.SetSyncState(st.SyncState)
		}

		c.SetAvailability(st.Availability)
		if st.MeasurementSchedules != nil {
			c.SetMeasurementSchedules(st.MeasurementSchedules)
		}

		c.SetDriftDefinitions(st.DriftDefinitions)

		if st.AvailabilitySchedule != nil {
			c.SetAvailabilitySchedule(st.AvailabilitySchedule)
		}
	}

	m.insertLocked(c)

	if node.ID < m.lastLocalID {
		m.lastLocalID = node.ID
	}

	restored := 1

	for _, childUUID := range r.Children {
		if child := resources[childUUID]; child != nil {
			restored += m.restoreNodeLocked(child, node.UUID, resources, states, seen)
		}
	}

	return restored
}
