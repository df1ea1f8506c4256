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

package serverclient

import "encoding/json"

const (
	opInventoryReport      = "inventory.report"
	opAvailabilityReport   = "availability.report"
	opFetchResources       = "resources.fetch"
	opResourceError        = "resource.error"
	opClearConfigError     = "resource.error.clear"
	opNotifyNewlyCommitted = "resources.committed"
)

// reply wraps every response on the wire.
type reply struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type fetchRequest struct {
	IDs       []int `json:"ids"`
	Recursive bool  `json:"recursive"`
}

type clearErrorRequest struct {
	ResourceID int `json:"resource_id"`
}

type committedRequest struct {
	IDs []int `json:"ids"`
}

func subject(prefix, op string) string {
	if prefix == "" {
		return op
	}

	return prefix + "." + op
}
