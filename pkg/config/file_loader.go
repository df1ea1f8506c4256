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

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
)

// DefaultConfigPath is where the agent looks for its config when no path is given.
const DefaultConfigPath = "/etc/serviceradar/inventory-agent.json"

const unknownFieldPrefix = "json: unknown field "

// FileConfigLoader loads the inventory agent configuration from a JSON file.
// Unknown keys are logged and ignored so configs written for newer agents
// still load.
type FileConfigLoader struct {
	logger logger.Logger
}

// NewFileConfigLoader returns a file loader logging through log.
func NewFileConfigLoader(log logger.Logger) *FileConfigLoader {
	return &FileConfigLoader{logger: log}
}

// Load implements ConfigLoader. An empty path means DefaultConfigPath.
func (f *FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read inventory config '%s': %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	err = dec.Decode(dst)
	if err != nil && strings.HasPrefix(err.Error(), unknownFieldPrefix) {
		f.logger.Warn().Str("path", path).Str("field", strings.TrimPrefix(err.Error(), unknownFieldPrefix)).
			Msg("Ignoring unknown keys in inventory config")

		err = json.Unmarshal(data, dst)
	}

	if err != nil {
		return fmt.Errorf("failed to parse inventory config '%s': %w", path, err)
	}

	f.logger.Debug().Str("path", path).Msg("Loaded inventory config")

	return nil
}
