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

package builtin

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

const (
	metricCPUPercent    = "cpu.usage_percent"
	metricMemoryPercent = "memory.used_percent"
	metricUptime        = "host.uptime_seconds"
)

type platformDiscovery struct {
	hostInfo func(context.Context) (*host.InfoStat, error)
}

func newPlatformDiscovery() *platformDiscovery {
	return &platformDiscovery{hostInfo: host.InfoWithContext}
}

// DiscoverResources reports the machine the agent runs on.
func (d *platformDiscovery) DiscoverResources(
	ctx context.Context, _ *plugin.DiscoveryContext,
) ([]*models.DiscoveredResource, error) {
	info, err := d.hostInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	cfg := models.Configuration{
		"os":        info.OS,
		"platform":  info.Platform,
		"family":    info.PlatformFamily,
		"kernel":    info.KernelVersion,
		"arch":      info.KernelArch,
		"host_id":   info.HostID,
		"virtual":   info.VirtualizationSystem,
		"boot_time": fmt.Sprint(info.BootTime),
	}

	return []*models.DiscoveredResource{{
		ResourceType:        TypePlatform,
		ResourceKey:         info.Hostname,
		Name:                info.Hostname,
		Version:             info.PlatformVersion,
		Description:         fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch),
		PluginConfiguration: cfg,
	}}, nil
}

// platformComponent is always UP while the agent runs.
type platformComponent struct {
	cpuPercent func(ctx context.Context) (float64, error)
	memPercent func(ctx context.Context) (float64, error)
	uptime     func(ctx context.Context) (uint64, error)
}

func newPlatformComponent() *platformComponent {
	return &platformComponent{
		cpuPercent: cpuPercent,
		memPercent: memPercent,
		uptime:     host.UptimeWithContext,
	}
}

func (*platformComponent) Start(context.Context, *plugin.ResourceContext) error {
	return nil
}

func (*platformComponent) Stop(context.Context) error {
	return nil
}

func (*platformComponent) GetAvailability(context.Context) (models.AvailabilityType, error) {
	return models.AvailabilityUp, nil
}

// GetValues collects host-wide metrics. Unknown names are skipped.
func (p *platformComponent) GetValues(ctx context.Context, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))

	for _, name := range names {
		var (
			v   float64
			err error
		)

		switch name {
		case metricCPUPercent:
			v, err = p.cpuPercent(ctx)
		case metricMemoryPercent:
			v, err = p.memPercent(ctx)
		case metricUptime:
			var up uint64
			up, err = p.uptime(ctx)
			v = float64(up)
		default:
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("collecting %s: %w", name, err)
		}

		values[name] = v
	}

	return values, nil
}

func cpuPercent(ctx context.Context) (float64, error) {
	usage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}

	if len(usage) == 0 {
		return 0, nil
	}

	return usage[0], nil
}

func memPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return vm.UsedPercent, nil
}
