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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

func proxyConfig(syncTimeout, asyncTimeout time.Duration) Option {
	return WithAvailabilityProxyConfig(AvailabilityProxyConfig{
		SyncTimeout:          syncTimeout,
		AsyncTimeout:         asyncTimeout,
		SyncTimeoutThreshold: 5,
	})
}

func waitForChecks(t *testing.T, comp *fakeComponent, n int32) {
	t.Helper()

	require.Eventually(t, func() bool { return comp.availDone.Load() >= n }, 2*time.Second, 2*time.Millisecond)
}

func TestAvailabilityProxyFastCheck(t *testing.T) {
	comp := newFakeComponent()
	c := newStartedContainer(t, comp)

	got, err := c.AvailabilityProxy().GetAvailability(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUp, got)
	assert.Equal(t, int32(1), comp.availCalls.Load())
}

func TestAvailabilityProxySlowCheckServedOnNextCall(t *testing.T) {
	comp := newFakeComponent()
	comp.availDelay = 100 * time.Millisecond
	c := newStartedContainer(t, comp, proxyConfig(20*time.Millisecond, time.Minute))
	proxy := c.AvailabilityProxy()

	got, err := proxy.GetAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnknown, got, "nothing known yet")

	waitForChecks(t, comp, 1)

	got, err = proxy.GetAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUp, got)
	assert.Equal(t, int32(1), comp.availCalls.Load(), "the finished check is reused")
}

func TestAvailabilityProxyPendingCheckReturnsCachedValue(t *testing.T) {
	comp := newFakeComponent()
	c := newStartedContainer(t, comp, proxyConfig(20*time.Millisecond, time.Minute))
	proxy := c.AvailabilityProxy()

	got, err := proxy.GetAvailability(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.AvailabilityUp, got)

	comp.set(func(f *fakeComponent) {
		f.availDelay = 200 * time.Millisecond
		f.avail = models.AvailabilityDown
	})

	_, err = proxy.GetAvailability(context.Background())
	require.NoError(t, err)

	start := time.Now()
	got, err = proxy.GetAvailability(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUp, got)
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, int32(2), comp.availCalls.Load())
}

func TestAvailabilityProxyAsyncTimeoutResubmits(t *testing.T) {
	comp := newFakeComponent()
	comp.availDelay = time.Hour
	c := newStartedContainer(t, comp, proxyConfig(10*time.Millisecond, 50*time.Millisecond))
	proxy := c.AvailabilityProxy()

	got, err := proxy.GetAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnknown, got)

	time.Sleep(70 * time.Millisecond)

	got, err = proxy.GetAvailability(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, models.AvailabilityUnknown, got)

	// the overrun check was cancelled and a new one submitted
	waitForChecks(t, comp, 1)
	require.Eventually(t, func() bool { return comp.availCalls.Load() == 2 }, time.Second, 2*time.Millisecond)

	proxy.Cancel()
}

func TestAvailabilityProxyCoercesUnexpectedValues(t *testing.T) {
	for _, v := range []models.AvailabilityType{models.AvailabilityUnknown, "MISSING", ""} {
		comp := newFakeComponent()
		comp.avail = v
		c := newStartedContainer(t, comp)

		got, err := c.AvailabilityProxy().GetAvailability(context.Background())

		require.NoError(t, err)
		assert.Equal(t, models.AvailabilityDown, got, "value %q", v)
	}
}

func TestAvailabilityProxyReturnsPluginError(t *testing.T) {
	comp := newFakeComponent()
	boom := errors.New("probe failed")
	comp.availErr = boom
	c := newStartedContainer(t, comp)

	_, err := c.AvailabilityProxy().GetAvailability(context.Background())

	assert.Same(t, boom, err)
}

func TestAvailabilityProxyDisablesSyncWaitsAfterThreshold(t *testing.T) {
	comp := newFakeComponent()
	comp.avail = models.AvailabilityDown
	comp.availDelay = 80 * time.Millisecond
	c := newStartedContainer(t, comp, proxyConfig(20*time.Millisecond, time.Minute))
	proxy := c.AvailabilityProxy()
	ctx := context.Background()

	for i := range 5 {
		_, err := proxy.GetAvailability(ctx)
		require.NoError(t, err)

		waitForChecks(t, comp, int32(i+1))

		got, err := proxy.GetAvailability(ctx)
		require.NoError(t, err)
		require.Equal(t, models.AvailabilityDown, got)
	}

	assert.Equal(t, 5, proxy.SyncTimeouts())
	assert.True(t, proxy.SyncDisabled())

	// sixth call returns the cached value without waiting for the new check
	start := time.Now()
	got, err := proxy.GetAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityDown, got)
	assert.Less(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, int32(6), comp.availCalls.Load())

	waitForChecks(t, comp, 6)
	_, err = proxy.GetAvailability(ctx)
	require.NoError(t, err)

	// the resource comes back UP
	comp.set(func(f *fakeComponent) { f.avail = models.AvailabilityUp })

	_, err = proxy.GetAvailability(ctx)
	require.NoError(t, err)
	waitForChecks(t, comp, 7)

	got, err = proxy.GetAvailability(ctx)
	require.NoError(t, err)
	require.Equal(t, models.AvailabilityUp, got)
	assert.False(t, proxy.SyncDisabled())

	// the next sync timeout restarts the count
	got, err = proxy.GetAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUp, got)
	assert.Equal(t, 0, proxy.SyncTimeouts())

	proxy.Cancel()
}

func TestAvailabilityProxyOnTimeCheckResetsSyncTimeouts(t *testing.T) {
	comp := newFakeComponent()
	comp.avail = models.AvailabilityDown
	c := newStartedContainer(t, comp, proxyConfig(20*time.Millisecond, time.Minute))
	proxy := c.AvailabilityProxy()
	ctx := context.Background()

	for i := range 5 {
		comp.set(func(f *fakeComponent) { f.availDelay = 60 * time.Millisecond })

		_, err := proxy.GetAvailability(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, proxy.SyncTimeouts(), "round %d", i)

		waitForChecks(t, comp, int32(2*i+1))

		_, err = proxy.GetAvailability(ctx)
		require.NoError(t, err)

		comp.set(func(f *fakeComponent) { f.availDelay = 0 })

		got, err := proxy.GetAvailability(ctx)
		require.NoError(t, err)
		require.Equal(t, models.AvailabilityDown, got)
		require.Equal(t, 0, proxy.SyncTimeouts(), "round %d", i)
	}

	assert.False(t, proxy.SyncDisabled())
}
