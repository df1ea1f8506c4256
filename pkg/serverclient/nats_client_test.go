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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	t.Cleanup(srv.Shutdown)

	return srv
}

func connect(t *testing.T, srv *server.Server) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	t.Cleanup(nc.Close)

	return nc
}

// newPair wires a client and a responder backed by a mock server service.
func newPair(t *testing.T, cfg *Config) (*NATSClient, *MockServerService) {
	t.Helper()

	ctrl := gomock.NewController(t)
	svc := NewMockServerService(ctrl)

	srv := runNATSServer(t)
	log := logger.NewTestLogger()

	resp, err := Serve(connect(t, srv), cfg.SubjectPrefix, svc, log)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Close() })

	client, err := NewNATSClientWithConn(connect(t, srv), cfg, log)
	require.NoError(t, err)

	return client, svc
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := &Config{URL: "nats://localhost:4222"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "inventory", cfg.SubjectPrefix)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval.Std())

	cfg = &Config{URL: "nats://localhost:4222", MaxRetries: -1}
	require.NoError(t, cfg.Validate())
	assert.Zero(t, cfg.MaxRetries)

	require.ErrorIs(t, (&Config{}).Validate(), ErrNATSURLRequired)
}

func TestNewNATSClientRequiresURL(t *testing.T) {
	_, err := NewNATSClient(&Config{}, "agent", logger.NewTestLogger())
	require.ErrorIs(t, err, ErrNATSURLRequired)
}

func TestNewNATSClientOwnsConnection(t *testing.T) {
	srv := runNATSServer(t)

	client, err := NewNATSClient(&Config{URL: srv.ClientURL()}, "agent", logger.NewTestLogger())
	require.NoError(t, err)

	assert.True(t, client.nc.IsConnected())
	require.NoError(t, client.Close())
}

func TestRoundTrip(t *testing.T) {
	client, svc := newPair(t, &Config{SubjectPrefix: "test"})
	ctx := context.Background()

	t.Run("inventory report", func(t *testing.T) {
		svc.EXPECT().SendInventoryReport(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, report *models.InventoryReport) (*models.SyncInfo, error) {
				assert.Equal(t, "agent-1", report.Agent)
				require.Len(t, report.Resources, 1)
				assert.Equal(t, "nginx", report.Resources[0].ResourceKey)

				return &models.SyncInfo{ID: 1, UUID: "p", Children: []*models.SyncInfo{{ID: 2, UUID: "c"}}}, nil
			})

		report := &models.InventoryReport{
			Agent:     "agent-1",
			Resources: []*models.Resource{models.NewResource("process", "nginx", "nginx")},
		}

		info, err := client.SendInventoryReport(ctx, report)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, 1, info.ID)
		require.Len(t, info.Children, 1)
		assert.Equal(t, "c", info.Children[0].UUID)
	})

	t.Run("availability report", func(t *testing.T) {
		svc.EXPECT().SendAvailabilityReport(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, report *models.AvailabilityReport) (*models.AvailabilityAck, error) {
				assert.True(t, report.ChangesOnly)
				require.Len(t, report.Entries, 1)
				assert.Equal(t, models.AvailabilityDown, report.Entries[0].Type)

				return &models.AvailabilityAck{FullReportRequired: true}, nil
			})

		report := &models.AvailabilityReport{Agent: "agent-1", ChangesOnly: true}
		report.Add(models.Availability{ResourceID: 3, Type: models.AvailabilityDown, Timestamp: time.Now()})

		ack, err := client.SendAvailabilityReport(ctx, report)
		require.NoError(t, err)
		assert.True(t, ack.FullReportRequired)
	})

	t.Run("nil ack becomes empty ack", func(t *testing.T) {
		svc.EXPECT().SendAvailabilityReport(gomock.Any(), gomock.Any()).Return(nil, nil)

		ack, err := client.SendAvailabilityReport(ctx, &models.AvailabilityReport{})
		require.NoError(t, err)
		require.NotNil(t, ack)
		assert.False(t, ack.FullReportRequired)
	})

	t.Run("fetch resources", func(t *testing.T) {
		svc.EXPECT().FetchResources(gomock.Any(), []int{4, 5}, true).
			Return([]*models.Resource{{ID: 4, UUID: "u4"}, {ID: 5, UUID: "u5", ParentUUID: "u4"}}, nil)

		resources, err := client.FetchResources(ctx, []int{4, 5}, true)
		require.NoError(t, err)
		require.Len(t, resources, 2)
		assert.Equal(t, "u4", resources[1].ParentUUID)
	})

	t.Run("resource errors", func(t *testing.T) {
		svc.EXPECT().ReportResourceError(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, resErr *models.ResourceError) error {
				assert.Equal(t, 9, resErr.ResourceID)
				assert.Equal(t, models.ResourceErrorInvalidPluginConfiguration, resErr.Type)

				return nil
			})
		svc.EXPECT().ClearResourceConfigError(gomock.Any(), 9).Return(nil)

		require.NoError(t, client.ReportResourceError(ctx, &models.ResourceError{
			ResourceID: 9,
			Type:       models.ResourceErrorInvalidPluginConfiguration,
			Summary:    "bad config",
		}))
		require.NoError(t, client.ClearResourceConfigError(ctx, 9))
	})

	t.Run("newly committed", func(t *testing.T) {
		svc.EXPECT().NotifyNewlyCommitted(gomock.Any(), []int{7, 8}).Return(nil)

		require.NoError(t, client.NotifyNewlyCommitted(ctx, []int{7, 8}))
	})
}

func TestRemoteErrorIsNotRetried(t *testing.T) {
	client, svc := newPair(t, &Config{
		MaxRetries:    3,
		RetryInterval: models.Duration(time.Millisecond),
	})

	svc.EXPECT().NotifyNewlyCommitted(gomock.Any(), gomock.Any()).Return(errors.New("unknown resource")).Times(1)

	err := client.NotifyNewlyCommitted(context.Background(), []int{1})
	require.Error(t, err)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, opNotifyNewlyCommitted, remote.Op)
	assert.Equal(t, "unknown resource", remote.Message)
}

func TestNoRespondersIsRetriedThenFails(t *testing.T) {
	srv := runNATSServer(t)

	client, err := NewNATSClientWithConn(connect(t, srv), &Config{
		MaxRetries:     2,
		RetryInterval:  models.Duration(time.Millisecond),
		RequestTimeout: models.Duration(time.Second),
	}, logger.NewTestLogger())
	require.NoError(t, err)

	err = client.ClearResourceConfigError(context.Background(), 1)
	require.ErrorIs(t, err, nats.ErrNoResponders)
}

func TestCancelledContextStopsRetries(t *testing.T) {
	srv := runNATSServer(t)

	client, err := NewNATSClientWithConn(connect(t, srv), &Config{
		MaxRetries:    100,
		RetryInterval: models.Duration(time.Second),
	}, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = client.NotifyNewlyCommitted(ctx, []int{1})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "inventory.resources.fetch", subject("inventory", opFetchResources))
	assert.Equal(t, "resources.fetch", subject("", opFetchResources))
}
