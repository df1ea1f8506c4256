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
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
	"github.com/carverauto/serviceradar-inventory/pkg/process"
)

const (
	configName  = "name"
	configQuery = "query"
	configPID   = "pid"
	configPorts = "ports"
	configHost  = "host"

	metricProcessCPU = "process.cpu_percent"
	metricProcessRSS = "process.memory_rss_bytes"
)

var (
	validProcessName     = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)
	errInvalidCharacters = errors.New("process name contains invalid characters")
	errInvalidPID        = errors.New("invalid pid")
)

func validateProcessName(name string) error {
	if !validProcessName.MatchString(name) {
		return fmt.Errorf("%w: %s", errInvalidCharacters, name)
	}

	return nil
}

type processDiscovery struct {
	processes []ProcessConfig
}

// DiscoverResources turns every configured process whose query matched into
// one resource keyed by the configured name. The first matching pid wins.
func (d *processDiscovery) DiscoverResources(
	_ context.Context, dc *plugin.DiscoveryContext,
) ([]*models.DiscoveredResource, error) {
	var out []*models.DiscoveredResource

	for _, p := range d.processes {
		q, err := process.ParseQuery(p.Query)
		if err != nil {
			dc.Logger.Warn().Err(err).Str("process", p.Name).Msg("Skipping process with invalid query")
			continue
		}

		for _, m := range dc.ProcessMatches {
			if m.Query != q.String() {
				continue
			}

			out = append(out, processResource(p, m.Process))

			break
		}
	}

	return out, nil
}

func processResource(p ProcessConfig, info process.Info) *models.DiscoveredResource {
	cfg := models.Configuration{
		configName:  p.Name,
		configQuery: p.Query,
		configPID:   strconv.Itoa(int(info.PID)),
	}

	if len(p.Ports) > 0 {
		ports := make([]string, 0, len(p.Ports))
		for _, port := range p.Ports {
			ports = append(ports, strconv.Itoa(port))
		}

		cfg[configPorts] = strings.Join(ports, ",")
		cfg[configHost] = p.Host
	}

	return &models.DiscoveredResource{
		ResourceType:        TypeProcess,
		ResourceKey:         p.Name,
		Name:                p.Name,
		Description:         strings.Join(info.Cmdline, " "),
		PluginConfiguration: cfg,
	}
}

// processComponent is UP while its process runs. When the pid it was
// started with is gone the query is evaluated again, so a restarted
// process is picked up under its new pid.
type processComponent struct {
	scanner *process.Scanner
	exists  func(ctx context.Context, pid int32) (bool, error)

	mu     sync.Mutex
	name   string
	query  *process.Query
	pid    int32
	logger logger.Logger
}

func newProcessComponent(scanner *process.Scanner) *processComponent {
	return &processComponent{scanner: scanner, exists: process.Exists}
}

func (c *processComponent) Start(_ context.Context, rc *plugin.ResourceContext) error {
	name := rc.PluginConfiguration[configName]
	if name == "" {
		return plugin.NewInvalidPluginConfigurationError(errProcessNameRequired)
	}

	if err := validateProcessName(name); err != nil {
		return plugin.NewInvalidPluginConfigurationError(err)
	}

	q, err := process.ParseQuery(rc.PluginConfiguration[configQuery])
	if err != nil {
		return plugin.NewInvalidPluginConfigurationError(err)
	}

	var pid int64

	if raw := rc.PluginConfiguration[configPID]; raw != "" {
		pid, err = strconv.ParseInt(raw, 10, 32)
		if err != nil || pid < 0 {
			return plugin.NewInvalidPluginConfigurationError(fmt.Errorf("%w: %s", errInvalidPID, raw))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.name = name
	c.query = q
	c.pid = int32(pid)
	c.logger = rc.Logger

	return nil
}

func (*processComponent) Stop(context.Context) error {
	return nil
}

func (c *processComponent) GetAvailability(ctx context.Context) (models.AvailabilityType, error) {
	c.mu.Lock()
	pid, q := c.pid, c.query
	c.mu.Unlock()

	if pid > 0 {
		ok, err := c.exists(ctx, pid)
		if err != nil {
			return models.AvailabilityUnknown, err
		}

		if ok {
			return models.AvailabilityUp, nil
		}
	}

	procs, err := c.scanner.Snapshot(ctx)
	if err != nil {
		return models.AvailabilityUnknown, err
	}

	matches := process.Filter(procs, []*process.Query{q})
	if len(matches) == 0 {
		return models.AvailabilityDown, nil
	}

	c.mu.Lock()
	c.pid = matches[0].Process.PID
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info().Str("process", c.name).Int32("pid", matches[0].Process.PID).Msg("Process found under a new pid")
	}

	return models.AvailabilityUp, nil
}

// PID is the process currently tracked.
func (c *processComponent) PID() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pid
}

// GetValues reads CPU and resident memory of the tracked process.
func (c *processComponent) GetValues(ctx context.Context, names []string) (map[string]float64, error) {
	p, err := gopsprocess.NewProcessWithContext(ctx, c.PID())
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", c.name, err)
	}

	values := make(map[string]float64, len(names))

	for _, name := range names {
		switch name {
		case metricProcessCPU:
			v, err := p.CPUPercentWithContext(ctx)
			if err != nil {
				return nil, fmt.Errorf("collecting %s: %w", name, err)
			}

			values[name] = v
		case metricProcessRSS:
			mi, err := p.MemoryInfoWithContext(ctx)
			if err != nil {
				return nil, fmt.Errorf("collecting %s: %w", name, err)
			}

			values[name] = float64(mi.RSS)
		}
	}

	return values, nil
}
