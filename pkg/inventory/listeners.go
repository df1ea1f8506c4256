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
	"slices"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// AddListener registers l for inventory events. l must be comparable, which
// pointer receivers are.
func (m *Manager) AddListener(l InventoryEventListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters l.
func (m *Manager) RemoveListener(l InventoryEventListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listeners = slices.DeleteFunc(m.listeners, func(x InventoryEventListener) bool { return x == l })
}

func (m *Manager) snapshotListeners() []InventoryEventListener {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()

	return slices.Clone(m.listeners)
}

func (m *Manager) fireAdded(ctx context.Context, resources []*models.Resource) {
	if len(resources) == 0 {
		return
	}

	for _, l := range m.snapshotListeners() {
		l.ResourcesAdded(ctx, resources)
	}
}

func (m *Manager) fireRemoved(ctx context.Context, resources []*models.Resource) {
	if len(resources) == 0 {
		return
	}

	for _, l := range m.snapshotListeners() {
		l.ResourcesRemoved(ctx, resources)
	}
}

func (m *Manager) fireActivated(ctx context.Context, r *models.Resource) {
	for _, l := range m.snapshotListeners() {
		l.ResourceActivated(ctx, r)
	}
}

func (m *Manager) fireDeactivated(ctx context.Context, r *models.Resource) {
	for _, l := range m.snapshotListeners() {
		l.ResourceDeactivated(ctx, r)
	}
}

// configErrorClearer waits for one resource to activate, then clears its
// invalid plugin configuration error on the server and unregisters itself.
type configErrorClearer struct {
	BaseListener

	m    *Manager
	uuid string
}

func (l *configErrorClearer) ResourceActivated(ctx context.Context, r *models.Resource) {
	if r.UUID != l.uuid {
		return
	}

	l.m.listenersMu.Lock()
	l.m.listeners = slices.DeleteFunc(l.m.listeners, func(x InventoryEventListener) bool { return x == l })
	delete(l.m.configErrors, l.uuid)
	l.m.listenersMu.Unlock()

	if l.m.standalone {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, l.m.cfg.ServerCallTimeout)
	defer cancel()

	if err := l.m.server.ClearResourceConfigError(cctx, r.ID); err != nil {
		l.m.logger.Warn().Err(err).Int("resource_id", r.ID).Msg("Failed to clear plugin configuration error")
		return
	}

	l.m.logger.Info().Int("resource_id", r.ID).Msg("Cleared plugin configuration error")
}

func (l *configErrorClearer) String() string {
	return "configErrorClearer[" + l.uuid + "]"
}
