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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

var errTestInvalid = errors.New("interval must be positive")

type testLogging struct {
	Level string `json:"level"`
	Debug bool   `json:"debug"`
}

type testConfig struct {
	AgentName string            `json:"agent_name"`
	Interval  models.Duration   `json:"interval"`
	Timeout   time.Duration     `json:"timeout"`
	Workers   int               `json:"workers"`
	Ratio     float64           `json:"ratio"`
	Tags      []string          `json:"tags"`
	Labels    map[string]string `json:"labels"`
	Logging   *testLogging      `json:"logging,omitempty"`
	Nested    testLogging       `json:"nested"`
}

func (c *testConfig) Validate() error {
	if c.Interval < 0 {
		return errTestInvalid
	}

	if c.Workers == 0 {
		c.Workers = 4
	}

	return nil
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := writeConfigFile(t, `{"agent_name":"edge-1","interval":"30s","tags":["a","b"]}`)

	var cfg testConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "edge-1", cfg.AgentName)
	assert.Equal(t, models.Duration(30*time.Second), cfg.Interval)
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	assert.Equal(t, 4, cfg.Workers, "Validate applies defaults")
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := writeConfigFile(t, `{"interval":-5}`)

	var cfg testConfig
	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)

	require.ErrorIs(t, err, errTestInvalid)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	var cfg testConfig
	err := NewConfig(nil).LoadAndValidate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), &cfg)

	require.Error(t, err)
}

func TestFileLoaderIgnoresUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `{"agent_name":"edge-3","plugins_dir":"/opt/plugins","workers":2}`)

	var cfg testConfig
	require.NoError(t, NewFileConfigLoader(logger.NewTestLogger()).Load(context.Background(), path, &cfg))

	assert.Equal(t, "edge-3", cfg.AgentName)
	assert.Equal(t, 2, cfg.Workers)
}

func TestFileLoaderRejectsMalformedConfig(t *testing.T) {
	path := writeConfigFile(t, `{"agent_name":`)

	var cfg testConfig
	err := NewFileConfigLoader(logger.NewTestLogger()).Load(context.Background(), path, &cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse inventory config")
	assert.Contains(t, err.Error(), path)
}

func TestFileLoaderDefaultsPath(t *testing.T) {
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		t.Skip("default config present on this host")
	}

	var cfg testConfig
	err := NewFileConfigLoader(logger.NewTestLogger()).Load(context.Background(), "", &cfg)

	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), DefaultConfigPath)
}

func TestLoadAndValidateBadSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	var cfg testConfig
	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg)

	require.ErrorIs(t, err, errInvalidConfigSource)
}

func TestEnvLoaderIndividualVariables(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "")
	t.Setenv("INVENTORY_AGENT_NAME", "edge-2")
	t.Setenv("INVENTORY_INTERVAL", "45s")
	t.Setenv("INVENTORY_TIMEOUT", "2s")
	t.Setenv("INVENTORY_WORKERS", "8")
	t.Setenv("INVENTORY_RATIO", "0.5")
	t.Setenv("INVENTORY_TAGS", "x, y")
	t.Setenv("INVENTORY_LABELS", `{"site":"lab"}`)
	t.Setenv("INVENTORY_LOGGING_LEVEL", "debug")
	t.Setenv("INVENTORY_NESTED_DEBUG", "true")

	var cfg testConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, "edge-2", cfg.AgentName)
	assert.Equal(t, models.Duration(45*time.Second), cfg.Interval)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.InDelta(t, 0.5, cfg.Ratio, 0.0001)
	assert.Equal(t, []string{"x", "y"}, cfg.Tags)
	assert.Equal(t, "lab", cfg.Labels["site"])
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Nested.Debug)
}

func TestEnvLoaderSkipsInvalidValues(t *testing.T) {
	t.Setenv("TEST_WORKERS", "many")
	t.Setenv("TEST_AGENT_NAME", "ok")

	var cfg testConfig
	require.NoError(t, NewEnvConfigLoader(logger.NewTestLogger(), "TEST_").Load(context.Background(), "", &cfg))

	assert.Equal(t, "ok", cfg.AgentName)
	assert.Zero(t, cfg.Workers)
	assert.Nil(t, cfg.Logging)
}

func TestEnvLoaderConfigJSON(t *testing.T) {
	t.Setenv("TEST_CONFIG_JSON", `{"agent_name":"from-json","workers":2}`)
	t.Setenv("TEST_AGENT_NAME", "ignored")

	var cfg testConfig
	require.NoError(t, NewEnvConfigLoader(logger.NewTestLogger(), "TEST_").Load(context.Background(), "", &cfg))

	assert.Equal(t, "from-json", cfg.AgentName)
	assert.Equal(t, 2, cfg.Workers)
}

func TestEnvLoaderRejectsNonStruct(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "TEST_")

	var s string
	require.ErrorIs(t, loader.Load(context.Background(), "", &s), ErrDstMustBePointerToStruct)
	require.ErrorIs(t, loader.Load(context.Background(), "", testConfig{}), ErrDstMustBeNonNilPointer)
}
