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

// AvailabilityType is the reported state of a resource.
type AvailabilityType string

const (
	AvailabilityUp      AvailabilityType = "UP"
	AvailabilityDown    AvailabilityType = "DOWN"
	AvailabilityUnknown AvailabilityType = "UNKNOWN"
)

// IsKnown reports whether the type is a reportable steady-state value.
func (a AvailabilityType) IsKnown() bool {
	return a == AvailabilityUp || a == AvailabilityDown
}

// Availability is one availability observation for a resource.
type Availability struct {
	ResourceID   int              `json:"resource_id"`
	ResourceUUID string           `json:"resource_uuid"`
	Type         AvailabilityType `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
}

// AvailabilitySchedule controls how often a resource's availability is checked.
type AvailabilitySchedule struct {
	Interval Duration `json:"interval"`
	Enabled  bool     `json:"enabled"`
}

// AvailabilityReport is the batch of availability records sent to the server after a pass.
type AvailabilityReport struct {
	Agent       string         `json:"agent"`
	ChangesOnly bool           `json:"changes_only"`
	Entries     []Availability `json:"entries"`
}

// Add appends an entry to the report.
func (r *AvailabilityReport) Add(a Availability) {
	r.Entries = append(r.Entries, a)
}

// AvailabilityAck is the server's answer to an availability report.
type AvailabilityAck struct {
	// FullReportRequired asks the agent to send every resource next time.
	FullReportRequired bool `json:"full_report_required"`
}
