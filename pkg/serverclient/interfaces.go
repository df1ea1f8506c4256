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

// Package serverclient talks to the management server the agent reports to.
package serverclient

//go:generate mockgen -destination=mock_serverclient.go -package=serverclient github.com/carverauto/serviceradar-inventory/pkg/serverclient ServerService

import (
	"context"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// ServerService is the set of calls the inventory makes to the server.
type ServerService interface {
	// SendInventoryReport uploads newly discovered resources and returns the
	// server's sync tree for the platform.
	SendInventoryReport(ctx context.Context, report *models.InventoryReport) (*models.SyncInfo, error)
	SendAvailabilityReport(ctx context.Context, report *models.AvailabilityReport) (*models.AvailabilityAck, error)
	// FetchResources returns the server's copy of the given resources,
	// with their whole subtrees when recursive is set. Parents precede children.
	FetchResources(ctx context.Context, ids []int, recursive bool) ([]*models.Resource, error)
	ReportResourceError(ctx context.Context, resErr *models.ResourceError) error
	ClearResourceConfigError(ctx context.Context, resourceID int) error
	NotifyNewlyCommitted(ctx context.Context, ids []int) error
}
