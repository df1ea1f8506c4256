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

package container

// SyncState tracks whether the server has confirmed a resource.
type SyncState string

const (
	SyncNew             SyncState = "NEW"
	SyncSynchronized    SyncState = "SYNCHRONIZED"
	SyncDeletedOnAgent  SyncState = "DELETED_ON_AGENT"
	SyncDeletedOnServer SyncState = "DELETED_ON_SERVER"
)

// ComponentState is the lifecycle state of a container's component.
type ComponentState string

const (
	ComponentStopped  ComponentState = "STOPPED"
	ComponentStarting ComponentState = "STARTING"
	ComponentStarted  ComponentState = "STARTED"
)

// LockMode selects how a component call takes the container's facet lock.
type LockMode int

const (
	LockNone LockMode = iota
	LockRead
	LockWrite
)

func (m LockMode) String() string {
	switch m {
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	default:
		return "none"
	}
}
