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

// Package inventory owns the resource tree: discovery, availability scans
// and reconciliation with the server's view of the inventory.
package inventory

import (
	"context"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// InventoryEventListener is told about changes to the tree. Callbacks run
// on the goroutine that made the change, after the tree lock is released.
type InventoryEventListener interface {
	ResourcesAdded(ctx context.Context, resources []*models.Resource)
	ResourcesRemoved(ctx context.Context, resources []*models.Resource)
	ResourceActivated(ctx context.Context, resource *models.Resource)
	ResourceDeactivated(ctx context.Context, resource *models.Resource)
}

// BaseListener ignores every event. Embed it to handle only some of them.
type BaseListener struct{}

func (BaseListener) ResourcesAdded(context.Context, []*models.Resource)    {}
func (BaseListener) ResourcesRemoved(context.Context, []*models.Resource)  {}
func (BaseListener) ResourceActivated(context.Context, *models.Resource)   {}
func (BaseListener) ResourceDeactivated(context.Context, *models.Resource) {}
