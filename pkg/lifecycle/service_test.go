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

package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
)

type fakeService struct {
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	stopWait time.Duration
}

func (f *fakeService) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}

	f.started.Store(true)

	return nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	select {
	case <-time.After(f.stopWait):
	case <-ctx.Done():
		return ctx.Err()
	}

	f.stopped.Store(true)

	return nil
}

func (*fakeService) Name() string { return "fake" }

func TestRunServiceStopsOnCancel(t *testing.T) {
	svc := &fakeService{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- RunService(ctx, &ServiceOptions{Service: svc, Logger: logger.NewTestLogger()})
	}()

	require.Eventually(t, svc.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunService did not return")
	}

	assert.True(t, svc.stopped.Load())
}

func TestRunServiceStartFailure(t *testing.T) {
	boom := errors.New("boom")

	err := RunService(context.Background(), &ServiceOptions{Service: &fakeService{startErr: boom}})

	require.ErrorIs(t, err, boom)
}

func TestRunServiceShutdownTimeout(t *testing.T) {
	svc := &fakeService{stopWait: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunService(ctx, &ServiceOptions{Service: svc, ShutdownTimeout: 20 * time.Millisecond})

	require.Error(t, err)
	assert.False(t, svc.stopped.Load())
}
