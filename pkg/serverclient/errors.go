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

import (
	"errors"
	"fmt"
)

var (
	ErrNATSURLRequired = errors.New("nats url is required")
	ErrEmptyReply      = errors.New("empty reply from server")
	ErrCAParsingFailed = errors.New("failed to parse CA certificate")
)

// RemoteError is an error the server handler returned. It is never retried.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server rejected %s: %s", e.Op, e.Message)
}
