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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

type fakeComponent struct {
	mu         sync.Mutex
	startErr   error
	startDelay time.Duration
	avail      models.AvailabilityType
	availErr   error
	availDelay time.Duration

	starts     atomic.Int32
	stops      atomic.Int32
	availCalls atomic.Int32
	availDone  atomic.Int32
}

func newFakeComponent() *fakeComponent {
	return &fakeComponent{avail: models.AvailabilityUp}
}

func (f *fakeComponent) Start(ctx context.Context, _ *plugin.ResourceContext) error {
	f.starts.Add(1)

	f.mu.Lock()
	delay, err := f.startDelay, f.startErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	return err
}

func (f *fakeComponent) Stop(context.Context) error {
	f.stops.Add(1)
	return nil
}

func (f *fakeComponent) GetAvailability(ctx context.Context) (models.AvailabilityType, error) {
	f.availCalls.Add(1)
	defer f.availDone.Add(1)

	f.mu.Lock()
	avail, err, delay := f.avail, f.availErr, f.availDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.AvailabilityUnknown, ctx.Err()
		}
	}

	return avail, err
}

func (f *fakeComponent) set(fn func(f *fakeComponent)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(f)
}

func (*fakeComponent) InvokeOperation(_ context.Context, name string, params models.Configuration) (string, error) {
	return name + ":" + params["arg"], nil
}

func newTestContainer(opts ...Option) *Container {
	r := models.NewResource("process", "nginx", "nginx")
	r.ID = 42

	return New(r, NewPools(8, 8), logger.NewTestLogger(), opts...)
}

func newStartedContainer(t *testing.T, comp plugin.ResourceComponent, opts ...Option) *Container {
	t.Helper()

	c := newTestContainer(opts...)
	err := c.Activate(context.Background(), func() plugin.ResourceComponent { return comp },
		&plugin.ResourceContext{Resource: c.Resource()}, time.Second)
	require.NoError(t, err)
	require.Equal(t, ComponentStarted, c.ComponentState())

	return c
}
