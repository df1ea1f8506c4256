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

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrComponentNotStarted is returned for facet calls on a component that is not STARTED.
	ErrComponentNotStarted = errors.New("resource component is not started")
	// ErrTimeout matches every *TimeoutError with errors.Is.
	ErrTimeout            = errors.New("component invocation timed out")
	ErrFacetNotSupported  = errors.New("component does not implement facet")
	ErrNoComponentFactory = errors.New("no component factory")
)

// TimeoutError reports a component call that did not finish in time. Stack
// holds the worker goroutine's stack at the moment the caller gave up, or is
// empty if the worker never got a pool slot.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Stack   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (*TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// PanicError is returned when component code panics.
type PanicError struct {
	Op    string
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Op, e.Value)
}
