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

// Package builtin provides the resource types every agent ships with: the
// platform itself, processes matched by process queries and the TCP ports
// those processes listen on.
package builtin

import (
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
	"github.com/carverauto/serviceradar-inventory/pkg/process"
)

const (
	TypePlatform = "platform"
	TypeProcess  = "process"
	TypePort     = "port"

	pluginName = "builtin"

	defaultDialTimeout          = 5 * time.Second
	defaultProcessCheckInterval = time.Minute
	defaultMeasurementInterval  = time.Minute
	defaultPortHost             = "127.0.0.1"
)

var (
	errProcessNameRequired = errors.New("process name is required")
	errProcessQueryMissing = errors.New("process query is required")
)

// Config selects what the builtin types discover.
type Config struct {
	// Processes are turned into process resources when their query matches.
	Processes []ProcessConfig `json:"processes"`
	// ProcessCheckInterval is the availability interval of process resources.
	ProcessCheckInterval models.Duration `json:"process_check_interval"`
	// PortCheckInterval of zero checks ports on every availability pass.
	PortCheckInterval models.Duration `json:"port_check_interval"`
	DialTimeout       models.Duration `json:"dial_timeout"`
	// MeasurementInterval applies to the platform and process metrics.
	MeasurementInterval models.Duration `json:"measurement_interval"`
	// DisableMeasurements leaves the builtin types without metric schedules.
	DisableMeasurements bool `json:"disable_measurements"`
}

// ProcessConfig names one process to look for.
type ProcessConfig struct {
	Name  string `json:"name"`
	Query string `json:"query"`
	// Ports are reported as port resources under the process.
	Ports []int  `json:"ports,omitempty"`
	Host  string `json:"host,omitempty"`
}

// Validate checks names and queries before anything is registered.
func (c *Config) Validate() error {
	for i := range c.Processes {
		p := &c.Processes[i]

		if p.Name == "" {
			return fmt.Errorf("processes[%d]: %w", i, errProcessNameRequired)
		}

		if err := validateProcessName(p.Name); err != nil {
			return fmt.Errorf("processes[%d]: %w", i, err)
		}

		if p.Query == "" {
			return fmt.Errorf("processes[%d]: %w", i, errProcessQueryMissing)
		}

		if _, err := process.ParseQuery(p.Query); err != nil {
			return fmt.Errorf("processes[%d]: %w", i, err)
		}

		for _, port := range p.Ports {
			if err := validatePort(port); err != nil {
				return fmt.Errorf("processes[%d]: %w", i, err)
			}
		}
	}

	return nil
}

func (c *Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return defaultDialTimeout
	}

	return c.DialTimeout.Std()
}

func (c *Config) processCheckInterval() models.Duration {
	if c.ProcessCheckInterval <= 0 {
		return models.Duration(defaultProcessCheckInterval)
	}

	return c.ProcessCheckInterval
}

func (c *Config) measurements(names ...string) []models.MeasurementSchedule {
	if c.DisableMeasurements {
		return nil
	}

	interval := c.MeasurementInterval
	if interval <= 0 {
		interval = models.Duration(defaultMeasurementInterval)
	}

	out := make([]models.MeasurementSchedule, 0, len(names))
	for _, name := range names {
		out = append(out, models.MeasurementSchedule{Name: name, Interval: interval, Enabled: true})
	}

	return out
}

// Register adds the builtin types to reg.
func Register(reg *plugin.Registry, cfg Config, log logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	queries := make([]string, 0, len(cfg.Processes))
	for _, p := range cfg.Processes {
		queries = append(queries, p.Query)
	}

	defs := []*plugin.Definition{
		{
			Type: &models.ResourceType{
				Name:         TypePlatform,
				Plugin:       pluginName,
				Category:     models.CategoryPlatform,
				Measurements: cfg.measurements(metricCPUPercent, metricMemoryPercent, metricUptime),
			},
			NewComponent: func() plugin.ResourceComponent { return newPlatformComponent() },
			Discovery:    newPlatformDiscovery(),
		},
		{
			Type: &models.ResourceType{
				Name:                 TypeProcess,
				Plugin:               pluginName,
				Category:             models.CategoryServer,
				ProcessQueries:       queries,
				AvailabilityInterval: cfg.processCheckInterval(),
				Measurements:         cfg.measurements(metricProcessCPU, metricProcessRSS),
			},
			NewComponent: func() plugin.ResourceComponent { return newProcessComponent(process.NewScanner(log)) },
			Discovery:    &processDiscovery{processes: cfg.Processes},
		},
		{
			Type: &models.ResourceType{
				Name:                 TypePort,
				Plugin:               pluginName,
				Category:             models.CategoryService,
				ParentTypes:          []string{TypeProcess},
				AvailabilityInterval: cfg.PortCheckInterval,
			},
			NewComponent: func() plugin.ResourceComponent { return newPortComponent(cfg.dialTimeout()) },
			Discovery:    portDiscovery{},
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("registering %s: %w", def.Type.Name, err)
		}
	}

	return nil
}
