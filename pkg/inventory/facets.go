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

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

func (m *Manager) facetContainer(uuid string) (*container.Container, error) {
	c := m.Container(uuid)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uuid)
	}

	return c, nil
}

// InvokeOperation runs the named operation on a started resource. The
// component is locked for writing while the operation runs.
func (m *Manager) InvokeOperation(ctx context.Context, uuid, name string, params models.Configuration) (string, error) {
	c, err := m.facetContainer(uuid)
	if err != nil {
		return "", err
	}

	ops, err := c.OperationFacet(container.ProxyOptions{
		Lock:          container.LockWrite,
		Timeout:       m.cfg.OperationTimeout,
		OnlyIfStarted: true,
	})
	if err != nil {
		return "", err
	}

	m.logger.Info().Str("resource_uuid", uuid).Str("operation", name).Msg("Invoking resource operation")

	return ops.InvokeOperation(ctx, name, params)
}

// LoadResourceConfiguration reads the live configuration of a started resource.
func (m *Manager) LoadResourceConfiguration(ctx context.Context, uuid string) (models.Configuration, error) {
	c, err := m.facetContainer(uuid)
	if err != nil {
		return nil, err
	}

	facet, err := c.ConfigurationFacet(container.ProxyOptions{
		Lock:          container.LockRead,
		Timeout:       m.cfg.ConfigurationTimeout,
		OnlyIfStarted: true,
	})
	if err != nil {
		return nil, err
	}

	return facet.LoadResourceConfiguration(ctx)
}

// UpdateResourceConfiguration writes cfg to a started resource.
func (m *Manager) UpdateResourceConfiguration(ctx context.Context, uuid string, cfg models.Configuration) error {
	c, err := m.facetContainer(uuid)
	if err != nil {
		return err
	}

	facet, err := c.ConfigurationFacet(container.ProxyOptions{
		Lock:          container.LockWrite,
		Timeout:       m.cfg.ConfigurationTimeout,
		OnlyIfStarted: true,
	})
	if err != nil {
		return err
	}

	if err := facet.UpdateResourceConfiguration(ctx, cfg); err != nil {
		return fmt.Errorf("update configuration of %s: %w", uuid, err)
	}

	return nil
}
