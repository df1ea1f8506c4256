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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func sumOf(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)

			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}

			return total
		}
	}

	return 0
}

func TestScanMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	env := newTestEnv(t, envOptions{standalone: true, opts: []Option{WithMeterProvider(provider)}})
	require.NoError(t, env.m.Initialize(ctx))

	env.server.set(func(p *fakePlugin) { p.discovered = discovered(typeServer, "srv-1", "srv-2") })

	_, err := env.m.ExecuteServerScanImmediately(ctx)
	require.NoError(t, err)

	_, err = env.m.ExecuteAvailabilityScanImmediately(ctx, false)
	require.NoError(t, err)

	_, err = env.m.ExecuteAvailabilityScanImmediately(ctx, false)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), sumOf(t, &rm, metricDiscovered))
	assert.Equal(t, int64(2), sumOf(t, &rm, metricAvailScans))
	assert.Equal(t, int64(6), sumOf(t, &rm, metricAvailChecks))
	assert.Equal(t, int64(3), sumOf(t, &rm, metricAvailChanges))
}
