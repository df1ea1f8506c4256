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

import "errors"

var (
	ErrNotInitialized     = errors.New("inventory is not initialized")
	ErrNoPlatformType     = errors.New("no platform resource type registered")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrParentNotFound     = errors.New("parent resource not found")
	ErrParentNotStarted   = errors.New("parent component is not started")
	ErrCannotRemoveRoot   = errors.New("the platform cannot be removed")
	ErrWrongResourceType  = errors.New("discovered resource has an unexpected type")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrAlreadyRunning     = errors.New("task is already running")

	errComponentNotReady = errors.New("component is not started yet")
)
