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

package models

import "time"

// SyncInfo is the compact server-side view of one resource and its subtree,
// used to reconcile the local inventory.
type SyncInfo struct {
	ID              int             `json:"id"`
	UUID            string          `json:"uuid"`
	InventoryStatus InventoryStatus `json:"inventory_status"`
	MTime           int64           `json:"mtime"`
	Children        []*SyncInfo     `json:"children,omitempty"`
}

// Walk visits the node and all descendants depth-first.
func (s *SyncInfo) Walk(fn func(*SyncInfo)) {
	if s == nil {
		return
	}

	fn(s)

	for _, child := range s.Children {
		child.Walk(fn)
	}
}

// InventoryReport carries resources the server has not accepted yet. Resources
// are ordered so that every parent precedes its children.
type InventoryReport struct {
	Agent     string      `json:"agent"`
	Resources []*Resource `json:"resources"`
	Started   time.Time   `json:"started"`
	Ended     time.Time   `json:"ended"`
}

// AddedCount is the number of resources carried by the report.
func (r *InventoryReport) AddedCount() int {
	if r == nil {
		return 0
	}

	return len(r.Resources)
}

// ResourceErrorType categorizes errors reported against a resource.
type ResourceErrorType string

const (
	ResourceErrorAvailabilityCheck          ResourceErrorType = "AVAILABILITY_CHECK"
	ResourceErrorInvalidPluginConfiguration ResourceErrorType = "INVALID_PLUGIN_CONFIGURATION"
)

// ResourceError is surfaced on the server next to the resource it concerns.
type ResourceError struct {
	ResourceID int               `json:"resource_id"`
	Type       ResourceErrorType `json:"type"`
	Summary    string            `json:"summary"`
	Detail     string            `json:"detail,omitempty"`
	Time       time.Time         `json:"time"`
}

// MeasurementSchedule asks for the metric Name to be read from a resource's
// component every Interval. New containers start with their type's schedules.
type MeasurementSchedule struct {
	ScheduleID int      `json:"schedule_id"`
	Name       string   `json:"name"`
	Interval   Duration `json:"interval"`
	Enabled    bool     `json:"enabled"`
}

// MeasurementValue is one metric read from a resource.
type MeasurementValue struct {
	ResourceID   int       `json:"resource_id"`
	ResourceUUID string    `json:"resource_uuid"`
	Name         string    `json:"name"`
	Value        float64   `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}
