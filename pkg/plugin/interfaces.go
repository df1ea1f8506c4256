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

// Package plugin defines the capability interfaces resource plugins implement
// and the registry of resource types the agent knows about.
package plugin

import (
	"context"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/process"
)

// ResourceComponent manages one live resource. Implementations are plugin
// code and may block, fail or panic; the agent only calls them through the
// container's invocation helpers.
type ResourceComponent interface {
	Start(ctx context.Context, rc *ResourceContext) error
	Stop(ctx context.Context) error
	GetAvailability(ctx context.Context) (models.AvailabilityType, error)
}

// DiscoveryComponent finds resources of a single type.
type DiscoveryComponent interface {
	DiscoverResources(ctx context.Context, dc *DiscoveryContext) ([]*models.DiscoveredResource, error)
}

// OperationFacet is implemented by components that expose named operations.
type OperationFacet interface {
	InvokeOperation(ctx context.Context, name string, params models.Configuration) (string, error)
}

// MeasurementFacet is implemented by components that collect numeric metrics.
type MeasurementFacet interface {
	GetValues(ctx context.Context, names []string) (map[string]float64, error)
}

// ConfigurationFacet is implemented by components whose resource configuration can be read and written.
type ConfigurationFacet interface {
	LoadResourceConfiguration(ctx context.Context) (models.Configuration, error)
	UpdateResourceConfiguration(ctx context.Context, cfg models.Configuration) error
}

// ResourceContext is handed to a component when it starts.
type ResourceContext struct {
	Resource            *models.Resource
	ResourceType        *models.ResourceType
	PluginConfiguration models.Configuration
	// ParentComponent is nil for the platform.
	ParentComponent ResourceComponent
	DataDir         string
	Logger          logger.Logger
}

// DiscoveryContext scopes a discovery invocation to one type and parent.
type DiscoveryContext struct {
	ResourceType    *models.ResourceType
	ParentResource  *models.Resource
	ParentComponent ResourceComponent
	// ProcessMatches holds the process table entries that matched the
	// type's process queries. Empty when process scanning is unsupported.
	ProcessMatches []process.Match
	Logger         logger.Logger
}
