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

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

func TestInitializeCreatesPlatform(t *testing.T) {
	tests := []struct {
		name       string
		standalone bool
		wantStatus models.InventoryStatus
		wantSync   container.SyncState
	}{
		{name: "standalone", standalone: true, wantStatus: models.InventoryStatusCommitted, wantSync: container.SyncSynchronized},
		{name: "server", wantStatus: models.InventoryStatusNew, wantSync: container.SyncNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{standalone: tt.standalone, withServer: !tt.standalone})

			require.NoError(t, env.m.Initialize(context.Background()))

			platform := env.m.PlatformContainer()
			require.NotNil(t, platform)

			r := platform.Resource()
			assert.Equal(t, typeHost, r.ResourceType)
			assert.Equal(t, "host-1", r.ResourceKey)
			assert.Equal(t, tt.wantStatus, r.InventoryStatus)
			assert.Equal(t, tt.wantSync, platform.SyncState())
			assert.Equal(t, container.ComponentStarted, platform.ComponentState())
			assert.Equal(t, tt.standalone, env.m.Standalone())
		})
	}
}

func TestInitializeFallsBackToHostname(t *testing.T) {
	env := newTestEnv(t, envOptions{standalone: true})
	env.host.set(func(p *fakePlugin) { p.discoverErr = errors.New("no host info") })

	require.NoError(t, env.m.Initialize(context.Background()))
	assert.NotEmpty(t, env.m.Platform().ResourceKey)
}

func TestInitializeWithoutPlatformType(t *testing.T) {
	registry := plugin.NewRegistry()
	m := NewManager(Config{}, registry, nil, logger.NewTestLogger())

	require.ErrorIs(t, m.Initialize(context.Background()), ErrNoPlatformType)
	assert.Nil(t, m.Platform())
}

func TestRemoveResourceCascades(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{standalone: true})

	require.NoError(t, env.m.Initialize(ctx))

	platform := env.m.Platform()
	srv := env.addCommitted(t, platform.UUID, typeServer, "srv-1", 10)
	svc := env.addCommitted(t, srv.UUID, typeService, "svc-1", 11)

	env.m.Container(svc.UUID).SetMeasurementSchedules([]models.MeasurementSchedule{{ScheduleID: 1, Name: "cpu"}})
	removedSvc := env.m.Container(svc.UUID)

	listener := &recordingListener{}
	env.m.AddListener(listener)

	require.NoError(t, env.m.RemoveResource(ctx, srv.UUID))

	assert.Equal(t, 1, env.m.Size())
	assert.Empty(t, env.m.Children(platform.UUID))
	assert.Nil(t, env.m.ContainerByID(11))
	assert.Empty(t, removedSvc.MeasurementSchedules())
	assert.Equal(t, container.SyncDeletedOnAgent, removedSvc.SyncState())
	assert.Equal(t, 1, env.server.stopCount("srv-1"))
	assert.Equal(t, 1, env.service.stopCount("svc-1"))

	_, removed, _, deactivated := listener.snapshot()
	assert.Equal(t, []string{"svc-1", "srv-1"}, removed)
	assert.Equal(t, []string{"svc-1", "srv-1"}, deactivated)

	require.ErrorIs(t, env.m.RemoveResource(ctx, platform.UUID), ErrCannotRemoveRoot)
	require.ErrorIs(t, env.m.RemoveResource(ctx, srv.UUID), ErrResourceNotFound)
}

func TestActivateRequiresStartedParent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{withServer: true})

	require.NoError(t, env.m.Initialize(ctx))

	platform := env.commitPlatform(t, 1)
	srv := env.addCommitted(t, platform.UUID, typeServer, "srv-1", 2)
	svc := env.addCommitted(t, srv.UUID, typeService, "svc-1", 3)

	require.ErrorIs(t, env.m.ActivateResource(ctx, svc.UUID), ErrParentNotStarted)
	require.NoError(t, env.m.ActivateResource(ctx, srv.UUID))
	require.NoError(t, env.m.ActivateResource(ctx, svc.UUID))

	require.NoError(t, env.m.DeactivateResource(ctx, srv.UUID))
	assert.Equal(t, container.ComponentStopped, env.m.Container(srv.UUID).ComponentState())
	assert.Equal(t, container.ComponentStopped, env.m.Container(svc.UUID).ComponentState())

	require.ErrorIs(t, env.m.ActivateResource(ctx, "missing"), ErrResourceNotFound)
	require.ErrorIs(t, env.m.DeactivateResource(ctx, "missing"), ErrResourceNotFound)
}

func TestInvalidPluginConfigurationIsReportedAndCleared(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{withServer: true})

	require.NoError(t, env.m.Initialize(ctx))

	platform := env.commitPlatform(t, 1)
	srv := env.addCommitted(t, platform.UUID, typeServer, "srv-1", 2)

	env.server.set(func(p *fakePlugin) {
		p.startErr["srv-1"] = plugin.NewInvalidPluginConfigurationError(errors.New("port is required"))
	})

	env.mock.EXPECT().ReportResourceError(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, resErr *models.ResourceError) error {
			assert.Equal(t, 2, resErr.ResourceID)
			assert.Equal(t, models.ResourceErrorInvalidPluginConfiguration, resErr.Type)

			return nil
		}).Times(2)
	env.mock.EXPECT().ClearResourceConfigError(gomock.Any(), 2).Return(nil).Times(1)

	var invalid *plugin.InvalidPluginConfigurationError

	err := env.m.ActivateResource(ctx, srv.UUID)
	require.ErrorAs(t, err, &invalid)

	err = env.m.ActivateResource(ctx, srv.UUID)
	require.ErrorAs(t, err, &invalid)

	env.server.set(func(p *fakePlugin) { delete(p.startErr, "srv-1") })

	require.NoError(t, env.m.ActivateResource(ctx, srv.UUID))

	// the clearer unregistered itself: another restart clears nothing
	require.NoError(t, env.m.DeactivateResource(ctx, srv.UUID))
	require.NoError(t, env.m.ActivateResource(ctx, srv.UUID))
}

func TestListenersCanBeRemoved(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{standalone: true})

	listener := &recordingListener{}
	env.m.AddListener(listener)

	require.NoError(t, env.m.Initialize(ctx))

	env.m.RemoveListener(listener)
	env.addCommitted(t, env.m.Platform().UUID, typeServer, "srv-1", 10)

	added, _, activated, _ := listener.snapshot()
	assert.Equal(t, []string{"host-1"}, added)
	assert.Equal(t, []string{"host-1"}, activated)
}

func TestContainersByType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{standalone: true})

	require.NoError(t, env.m.Initialize(ctx))

	srv := env.addCommitted(t, env.m.Platform().UUID, typeServer, "srv-1", 10)
	env.addCommitted(t, srv.UUID, typeService, "svc-1", 11)
	env.addCommitted(t, srv.UUID, typeService, "svc-2", 12)

	assert.Len(t, env.m.ContainersByType(typeService), 2)
	assert.Len(t, env.m.ContainersByType(typeServer), 1)
	assert.Empty(t, env.m.ContainersByType("unknown"))
}
