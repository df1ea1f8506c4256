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

package plugin

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownResourceType = errors.New("unknown resource type")
	ErrDuplicateType       = errors.New("resource type already registered")
	ErrInvalidDefinition   = errors.New("invalid resource type definition")
	ErrNoDiscovery         = errors.New("resource type has no discovery component")
)

// InvalidPluginConfigurationError is returned by a component that rejects its
// connection properties. The resource stays stopped until the configuration is fixed.
type InvalidPluginConfigurationError struct {
	Err error
}

func (e *InvalidPluginConfigurationError) Error() string {
	return fmt.Sprintf("invalid plugin configuration: %v", e.Err)
}

func (e *InvalidPluginConfigurationError) Unwrap() error {
	return e.Err
}

// NewInvalidPluginConfigurationError wraps err.
func NewInvalidPluginConfigurationError(err error) error {
	return &InvalidPluginConfigurationError{Err: err}
}

// ContainerError is a generic failure to build or start a component.
type ContainerError struct {
	ResourceType string
	Err          error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("plugin container error for type %s: %v", e.ResourceType, e.Err)
}

func (e *ContainerError) Unwrap() error {
	return e.Err
}
