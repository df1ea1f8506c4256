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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/builtin"
	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/inventory"
	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/serverclient"
)

const (
	defaultDiscoveryInitialDelay    = 10 * time.Second
	defaultDiscoveryPeriod          = 15 * time.Minute
	defaultAvailabilityInitialDelay = 30 * time.Second
	defaultAvailabilityPeriod       = 30 * time.Second
	defaultMeasurementInitialDelay  = time.Minute
	defaultMeasurementPeriod        = 30 * time.Second
	defaultMetricsExportInterval    = 15 * time.Second
)

var (
	errServerRequired   = errors.New("server configuration is required unless standalone is set")
	errNegativeDuration = errors.New("duration must not be negative")
	errNegativeSize     = errors.New("size must not be negative")
)

// Config is the agent's JSON configuration.
type Config struct {
	AgentName  string `json:"agent_name"`
	Standalone bool   `json:"standalone"`
	// DataDir holds the persisted inventory. Empty keeps it in memory only.
	DataDir string               `json:"data_dir"`
	Server  *serverclient.Config `json:"server,omitempty"`

	Scheduling   SchedulingConfig   `json:"scheduling"`
	Availability AvailabilityConfig `json:"availability"`
	Timeouts     TimeoutConfig      `json:"timeouts"`
	Pools        PoolConfig         `json:"pools"`

	ScanHistorySize int      `json:"scan_history_size"`
	DisabledTypes   []string `json:"disabled_types,omitempty"`

	Builtin builtin.Config `json:"builtin"`
	Logging *logger.Config `json:"logging,omitempty"`
	Metrics *MetricsConfig `json:"metrics,omitempty"`
}

// SchedulingConfig sets when discovery and availability passes run.
type SchedulingConfig struct {
	DiscoveryInitialDelay    models.Duration `json:"discovery_initial_delay"`
	DiscoveryPeriod          models.Duration `json:"discovery_period"`
	AvailabilityInitialDelay models.Duration `json:"availability_initial_delay"`
	AvailabilityPeriod       models.Duration `json:"availability_period"`
	MeasurementInitialDelay  models.Duration `json:"measurement_initial_delay"`
	MeasurementPeriod        models.Duration `json:"measurement_period"`
	// FullReportInterval of zero sends full availability reports only when
	// the server asks for one or a send failed.
	FullReportInterval models.Duration `json:"full_report_interval"`
}

// AvailabilityConfig tunes the per-resource availability proxies.
type AvailabilityConfig struct {
	SyncTimeout          models.Duration `json:"sync_timeout"`
	AsyncTimeout         models.Duration `json:"async_timeout"`
	SyncTimeoutThreshold int             `json:"sync_timeout_threshold"`
}

// TimeoutConfig bounds calls into plugin components and the server.
type TimeoutConfig struct {
	ComponentStart models.Duration `json:"component_start"`
	ComponentStop  models.Duration `json:"component_stop"`
	Discovery      models.Duration `json:"discovery"`
	Measurement    models.Duration `json:"measurement"`
	Operation      models.Duration `json:"operation"`
	Configuration  models.Duration `json:"configuration"`
	ServerCall     models.Duration `json:"server_call"`
}

// PoolConfig sizes the goroutine pools.
type PoolConfig struct {
	Availability int `json:"availability"`
	Invocation   int `json:"invocation"`
}

// MetricsConfig enables OTLP export of scan metrics.
type MetricsConfig struct {
	OTel           *logger.OTelConfig `json:"otel,omitempty"`
	ExportInterval models.Duration    `json:"export_interval"`
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	if c.AgentName == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("agent_name is empty and the host name is unavailable: %w", err)
		}

		c.AgentName = host
	}

	if !c.Standalone {
		if c.Server == nil {
			return errServerRequired
		}

		if err := c.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	durations := map[string]models.Duration{
		"scheduling.discovery_initial_delay":    c.Scheduling.DiscoveryInitialDelay,
		"scheduling.discovery_period":           c.Scheduling.DiscoveryPeriod,
		"scheduling.availability_initial_delay": c.Scheduling.AvailabilityInitialDelay,
		"scheduling.availability_period":        c.Scheduling.AvailabilityPeriod,
		"scheduling.measurement_initial_delay":  c.Scheduling.MeasurementInitialDelay,
		"scheduling.measurement_period":         c.Scheduling.MeasurementPeriod,
		"scheduling.full_report_interval":       c.Scheduling.FullReportInterval,
		"availability.sync_timeout":             c.Availability.SyncTimeout,
		"availability.async_timeout":            c.Availability.AsyncTimeout,
		"timeouts.component_start":              c.Timeouts.ComponentStart,
		"timeouts.component_stop":               c.Timeouts.ComponentStop,
		"timeouts.discovery":                    c.Timeouts.Discovery,
		"timeouts.measurement":                  c.Timeouts.Measurement,
		"timeouts.operation":                    c.Timeouts.Operation,
		"timeouts.configuration":                c.Timeouts.Configuration,
		"timeouts.server_call":                  c.Timeouts.ServerCall,
	}

	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s: %w", name, errNegativeDuration)
		}
	}

	sizes := map[string]int{
		"pools.availability":                  c.Pools.Availability,
		"pools.invocation":                    c.Pools.Invocation,
		"scan_history_size":                   c.ScanHistorySize,
		"availability.sync_timeout_threshold": c.Availability.SyncTimeoutThreshold,
	}

	for name, n := range sizes {
		if n < 0 {
			return fmt.Errorf("%s: %w", name, errNegativeSize)
		}
	}

	if c.Scheduling.DiscoveryInitialDelay == 0 {
		c.Scheduling.DiscoveryInitialDelay = models.Duration(defaultDiscoveryInitialDelay)
	}

	if c.Scheduling.DiscoveryPeriod == 0 {
		c.Scheduling.DiscoveryPeriod = models.Duration(defaultDiscoveryPeriod)
	}

	if c.Scheduling.AvailabilityInitialDelay == 0 {
		c.Scheduling.AvailabilityInitialDelay = models.Duration(defaultAvailabilityInitialDelay)
	}

	if c.Scheduling.AvailabilityPeriod == 0 {
		c.Scheduling.AvailabilityPeriod = models.Duration(defaultAvailabilityPeriod)
	}

	if c.Scheduling.MeasurementInitialDelay == 0 {
		c.Scheduling.MeasurementInitialDelay = models.Duration(defaultMeasurementInitialDelay)
	}

	if c.Scheduling.MeasurementPeriod == 0 {
		c.Scheduling.MeasurementPeriod = models.Duration(defaultMeasurementPeriod)
	}

	if err := c.Builtin.Validate(); err != nil {
		return fmt.Errorf("builtin: %w", err)
	}

	return nil
}

// InventoryConfig maps the agent config onto the inventory's. Unset values
// take the inventory defaults.
func (c *Config) InventoryConfig() inventory.Config {
	proxy := container.AvailabilityProxyConfig{
		SyncTimeout:          c.Availability.SyncTimeout.Std(),
		AsyncTimeout:         c.Availability.AsyncTimeout.Std(),
		SyncTimeoutThreshold: c.Availability.SyncTimeoutThreshold,
	}

	return inventory.Config{
		AgentName:             c.AgentName,
		Standalone:            c.Standalone,
		DataDir:               c.DataDir,
		ComponentStartTimeout: c.Timeouts.ComponentStart.Std(),
		ComponentStopTimeout:  c.Timeouts.ComponentStop.Std(),
		DiscoveryTimeout:      c.Timeouts.Discovery.Std(),
		MeasurementTimeout:    c.Timeouts.Measurement.Std(),
		OperationTimeout:      c.Timeouts.Operation.Std(),
		ConfigurationTimeout:  c.Timeouts.Configuration.Std(),
		ServerCallTimeout:     c.Timeouts.ServerCall.Std(),
		AvailabilityProxy:     proxy,
		InvocationPoolSize:    c.Pools.Invocation,
		AvailabilityPoolSize:  c.Pools.Availability,
		ScanHistorySize:       c.ScanHistorySize,
		DisabledTypes:         c.DisabledTypes,
	}
}

func (c *Config) metricsExportInterval() time.Duration {
	if c.Metrics == nil || c.Metrics.ExportInterval <= 0 {
		return defaultMetricsExportInterval
	}

	return c.Metrics.ExportInterval.Std()
}
