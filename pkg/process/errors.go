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

package process

import "errors"

var (
	// ErrUnsupported is returned when the process table cannot be read on this platform.
	ErrUnsupported      = errors.New("process scanning is not supported on this platform")
	ErrEmptyQuery       = errors.New("empty process query")
	ErrInvalidCriterion = errors.New("invalid process query criterion")
)
