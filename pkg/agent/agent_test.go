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

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/serviceradar-inventory/pkg/builtin"
	"github.com/carverauto/serviceradar-inventory/pkg/config"
	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/serverclient"
)

func standaloneConfig(t *testing.T) *Config {
	t.Helper()

	return &Config{
		AgentName:  "test-agent",
		Standalone: true,
		DataDir:    t.TempDir(),
		Scheduling: SchedulingConfig{
			DiscoveryInitialDelay:    models.Duration(time.Hour),
			AvailabilityInitialDelay: models.Duration(time.Hour),
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "standalone", cfg: Config{Standalone: true}},
		{
			name: "server",
			cfg:  Config{Server: &serverclient.Config{URL: "nats://127.0.0.1:4222"}},
		},
		{name: "missing server", cfg: Config{}, wantErr: errServerRequired},
		{
			name:    "missing server url",
			cfg:     Config{Server: &serverclient.Config{}},
			wantErr: serverclient.ErrNATSURLRequired,
		},
		{
			name:    "negative period",
			cfg:     Config{Standalone: true, Scheduling: SchedulingConfig{DiscoveryPeriod: -1}},
			wantErr: errNegativeDuration,
		},
		{
			name:    "negative pool",
			cfg:     Config{Standalone: true, Pools: PoolConfig{Availability: -1}},
			wantErr: errNegativeSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, tt.cfg.AgentName)
			assert.Equal(t, models.Duration(defaultDiscoveryPeriod), tt.cfg.Scheduling.DiscoveryPeriod)
			assert.Equal(t, models.Duration(defaultAvailabilityPeriod), tt.cfg.Scheduling.AvailabilityPeriod)
			assert.Equal(t, models.Duration(defaultMeasurementPeriod), tt.cfg.Scheduling.MeasurementPeriod)
		})
	}
}

func TestConfigValidateRejectsInvalidBuiltin(t *testing.T) {
	cfg := Config{
		Standalone: true,
		Builtin:    builtin.Config{Processes: []builtin.ProcessConfig{{Name: "web"}}},
	}

	require.Error(t, cfg.Validate())
}

func TestConfigLoadFromFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"agent_name": "edge-01",
		"server": {"url": "nats://nats:4222", "request_timeout": "5s"},
		"scheduling": {"availability_period": "1m", "full_report_interval": "1h"},
		"availability": {"sync_timeout": "2s", "sync_timeout_threshold": 3},
		"pools": {"availability": 10},
		"disabled_types": ["port"],
		"builtin": {"processes": [{"name": "nginx", "query": "name=nginx", "ports": [80]}]}
	}`), 0o600))

	var cfg Config
	require.NoError(t, config.NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "edge-01", cfg.AgentName)
	assert.Equal(t, "inventory", cfg.Server.SubjectPrefix)
	assert.Equal(t, models.Duration(time.Minute), cfg.Scheduling.AvailabilityPeriod)
	assert.Equal(t, models.Duration(defaultDiscoveryInitialDelay), cfg.Scheduling.DiscoveryInitialDelay)

	inv := cfg.InventoryConfig()
	assert.Equal(t, 2*time.Second, inv.AvailabilityProxy.SyncTimeout)
	assert.Equal(t, 3, inv.AvailabilityProxy.SyncTimeoutThreshold)
	assert.Equal(t, 10, inv.AvailabilityPoolSize)
	assert.Equal(t, []string{"port"}, inv.DisabledTypes)
	assert.False(t, inv.Standalone)
}

func TestAgentStandaloneLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := standaloneConfig(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	a, err := NewAgent(ctx, cfg, logger.NewTestLogger(), WithMeterProvider(mp))
	require.NoError(t, err)
	assert.Equal(t, serviceName, a.Name())

	require.NoError(t, a.Start(ctx))

	platform := a.Manager().Platform()
	require.NotNil(t, platform)
	assert.Equal(t, builtin.TypePlatform, platform.ResourceType)
	assert.Equal(t, models.InventoryStatusCommitted, platform.InventoryStatus)

	values, err := a.Manager().CollectMeasurementsImmediately(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, values)
	assert.Equal(t, platform.UUID, values[0].ResourceUUID)

	require.NoError(t, a.Stop(ctx))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "inventory.json"))

	restarted, err := NewAgent(ctx, cfg, logger.NewTestLogger(), WithMeterProvider(mp))
	require.NoError(t, err)
	require.NoError(t, restarted.Start(ctx))

	t.Cleanup(func() { _ = restarted.Stop(context.Background()) })

	assert.Equal(t, platform.UUID, restarted.Manager().Platform().UUID)
}

func TestAgentFullReportTask(t *testing.T) {
	ctx := context.Background()
	cfg := standaloneConfig(t)
	cfg.Scheduling.FullReportInterval = models.Duration(10 * time.Millisecond)

	a, err := NewAgent(ctx, cfg, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	a.mu.Lock()
	task := a.fullReport
	a.mu.Unlock()

	require.NotNil(t, task)
	assert.Eventually(t, func() bool { return task.Runs() > 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Stop(ctx))

	a.mu.Lock()
	defer a.mu.Unlock()

	assert.Nil(t, a.fullReport)
}

func TestAgentUsesInjectedServer(t *testing.T) {
	ctrl := gomock.NewController(t)
	server := serverclient.NewMockServerService(ctrl)

	cfg := &Config{
		AgentName: "test-agent",
		Server:    &serverclient.Config{URL: "nats://127.0.0.1:1"},
		Scheduling: SchedulingConfig{
			DiscoveryInitialDelay:    models.Duration(time.Hour),
			AvailabilityInitialDelay: models.Duration(time.Hour),
		},
	}

	a, err := NewAgent(context.Background(), cfg, logger.NewTestLogger(), WithServerService(server))
	require.NoError(t, err)
	assert.Nil(t, a.closer)
	assert.False(t, a.Manager().Standalone())

	require.NoError(t, a.Start(context.Background()))

	platform := a.Manager().Platform()
	require.NotNil(t, platform)
	assert.Equal(t, models.InventoryStatusNew, platform.InventoryStatus)

	require.NoError(t, a.Stop(context.Background()))
}
