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
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
)

const (
	defaultComponentStartTimeout    = 60 * time.Second
	defaultComponentStopTimeout     = 5 * time.Second
	defaultDiscoveryTimeout         = 5 * time.Minute
	defaultMeasurementTimeout       = 30 * time.Second
	defaultOperationTimeout         = 10 * time.Minute
	defaultConfigurationTimeout     = time.Minute
	defaultDiscoveryConcurrency     = 4
	defaultFetchChunkSize           = 200
	defaultFetchConcurrency         = 4
	defaultScanHistorySize          = 1
	defaultServiceScanRetries       = 5
	defaultServiceScanRetryInterval = 2 * time.Second
	defaultServerCallTimeout        = 30 * time.Second
	snapshotFileName                = "inventory.json"
)

// Config tunes the inventory. Zero values take the defaults.
type Config struct {
	// AgentName is stamped on every report.
	AgentName string
	// Standalone runs without a server: new resources are committed and
	// activated as soon as they are discovered.
	Standalone bool
	// DataDir holds the inventory snapshot and per-resource data directories.
	// Empty disables persistence.
	DataDir string

	ComponentStartTimeout time.Duration
	ComponentStopTimeout  time.Duration
	DiscoveryTimeout      time.Duration
	// MeasurementTimeout bounds each GetValues call of a measurement pass.
	MeasurementTimeout   time.Duration
	OperationTimeout     time.Duration
	ConfigurationTimeout time.Duration
	// ServerCallTimeout bounds each call to the server made from a scan.
	ServerCallTimeout time.Duration

	AvailabilityProxy    container.AvailabilityProxyConfig
	InvocationPoolSize   int
	AvailabilityPoolSize int

	// DiscoveryConcurrency bounds how many child types are discovered in parallel under one parent.
	DiscoveryConcurrency int
	// FetchChunkSize is the number of resource ids fetched per server call during a sync.
	FetchChunkSize   int
	FetchConcurrency int
	ScanHistorySize  int

	ServiceScanRetries       int
	ServiceScanRetryInterval time.Duration

	// DisabledTypes are pruned from the tree when the snapshot is loaded.
	DisabledTypes []string
}

func (c Config) withDefaults() Config {
	if c.ComponentStartTimeout <= 0 {
		c.ComponentStartTimeout = defaultComponentStartTimeout
	}

	if c.ComponentStopTimeout <= 0 {
		c.ComponentStopTimeout = defaultComponentStopTimeout
	}

	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = defaultDiscoveryTimeout
	}

	if c.MeasurementTimeout <= 0 {
		c.MeasurementTimeout = defaultMeasurementTimeout
	}

	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultOperationTimeout
	}

	if c.ConfigurationTimeout <= 0 {
		c.ConfigurationTimeout = defaultConfigurationTimeout
	}

	if c.ServerCallTimeout <= 0 {
		c.ServerCallTimeout = defaultServerCallTimeout
	}

	if c.DiscoveryConcurrency <= 0 {
		c.DiscoveryConcurrency = defaultDiscoveryConcurrency
	}

	if c.FetchChunkSize <= 0 {
		c.FetchChunkSize = defaultFetchChunkSize
	}

	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaultFetchConcurrency
	}

	if c.ScanHistorySize <= 0 {
		c.ScanHistorySize = defaultScanHistorySize
	}

	if c.ServiceScanRetries <= 0 {
		c.ServiceScanRetries = defaultServiceScanRetries
	}

	if c.ServiceScanRetryInterval <= 0 {
		c.ServiceScanRetryInterval = defaultServiceScanRetryInterval
	}

	return c
}
