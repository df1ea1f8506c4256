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

// Package agent assembles the inventory, its plugins and the server
// connection into a service the lifecycle package can run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/serviceradar-inventory/pkg/builtin"
	"github.com/carverauto/serviceradar-inventory/pkg/inventory"
	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
	"github.com/carverauto/serviceradar-inventory/pkg/serverclient"
	"github.com/carverauto/serviceradar-inventory/pkg/version"
)

const serviceName = "inventory-agent"

// Agent runs one inventory and its schedules.
type Agent struct {
	cfg      *Config
	logger   logger.Logger
	registry *plugin.Registry
	server   serverclient.ServerService
	closer   interface{ Close() error }
	manager  *inventory.Manager

	mu         sync.Mutex
	fullReport *inventory.PeriodicTask
}

// Option configures an Agent.
type Option func(*agentOptions)

type agentOptions struct {
	server    serverclient.ServerService
	registry  *plugin.Registry
	meter     metric.MeterProvider
	inventory []inventory.Option
}

// WithServerService talks to svc instead of dialing the configured NATS server.
func WithServerService(svc serverclient.ServerService) Option {
	return func(o *agentOptions) {
		o.server = svc
	}
}

// WithRegistry starts from reg instead of an empty registry. The builtin
// types are added to it.
func WithRegistry(reg *plugin.Registry) Option {
	return func(o *agentOptions) {
		o.registry = reg
	}
}

// WithMeterProvider records inventory metrics on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *agentOptions) {
		o.meter = mp
	}
}

// WithInventoryOptions passes opts through to the inventory manager.
func WithInventoryOptions(opts ...inventory.Option) Option {
	return func(o *agentOptions) {
		o.inventory = append(o.inventory, opts...)
	}
}

// NewAgent validates cfg, registers the builtin resource types and connects
// to the server unless the agent is standalone.
func NewAgent(ctx context.Context, cfg *Config, log logger.Logger, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}

	var o agentOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.registry == nil {
		o.registry = plugin.NewRegistry()
	}

	if err := builtin.Register(o.registry, cfg.Builtin, log); err != nil {
		return nil, fmt.Errorf("failed to register builtin types: %w", err)
	}

	a := &Agent{
		cfg:      cfg,
		logger:   log,
		registry: o.registry,
		server:   o.server,
	}

	if a.server == nil && !cfg.Standalone {
		client, err := serverclient.NewNATSClient(cfg.Server, cfg.AgentName, log)
		if err != nil {
			return nil, err
		}

		a.server = client
		a.closer = client
	}

	meter := o.meter
	if meter == nil {
		meter = a.initMetrics(ctx)
	}

	invOpts := o.inventory
	if meter != nil {
		invOpts = append(invOpts, inventory.WithMeterProvider(meter))
	}

	a.manager = inventory.NewManager(cfg.InventoryConfig(), a.registry, a.server, log, invOpts...)

	return a, nil
}

func (a *Agent) initMetrics(ctx context.Context) metric.MeterProvider {
	if a.cfg.Metrics == nil {
		return nil
	}

	mp, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		OTel:           a.cfg.Metrics.OTel,
		ExportInterval: a.cfg.metricsExportInterval(),
	})
	if err != nil {
		if !errors.Is(err, logger.ErrOTelMetricsDisabled) {
			a.logger.Warn().Err(err).Msg("Metrics export is unavailable")
		}

		return nil
	}

	return mp
}

// Name implements lifecycle.Service.
func (*Agent) Name() string {
	return serviceName
}

// Manager exposes the inventory.
func (a *Agent) Manager() *inventory.Manager {
	return a.manager
}

// Start loads the inventory and starts the discovery, availability and
// measurement schedules.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize inventory: %w", err)
	}

	sched := a.cfg.Scheduling

	if err := a.manager.ScheduleDiscovery(ctx, sched.DiscoveryInitialDelay.Std(), sched.DiscoveryPeriod.Std()); err != nil {
		return err
	}

	err := a.manager.ScheduleAvailability(ctx, sched.AvailabilityInitialDelay.Std(), sched.AvailabilityPeriod.Std())
	if err != nil {
		return err
	}

	err = a.manager.ScheduleMeasurements(ctx, sched.MeasurementInitialDelay.Std(), sched.MeasurementPeriod.Std())
	if err != nil {
		return err
	}

	if sched.FullReportInterval > 0 {
		task := inventory.NewPeriodicTask("full-report", sched.FullReportInterval.Std(), sched.FullReportInterval.Std(),
			inventory.RealClock(), a.logger, func(context.Context) error {
				a.manager.Availability().SendFullReportNextTime()
				return nil
			})
		task.Start(ctx)

		a.mu.Lock()
		a.fullReport = task
		a.mu.Unlock()
	}

	a.logger.Info().
		Str("agent", a.cfg.AgentName).
		Str("version", version.GetFullVersion()).
		Bool("standalone", a.manager.Standalone()).
		Strs("resource_types", a.registry.Names()).
		Msg("Inventory agent started")

	return nil
}

// Stop stops the schedules, shuts the inventory down and closes the server connection.
func (a *Agent) Stop(ctx context.Context) error {
	var errs []error

	a.mu.Lock()
	task := a.fullReport
	a.fullReport = nil
	a.mu.Unlock()

	if task != nil {
		if err := task.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("inventory shutdown: %w", err))
	}

	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing server connection: %w", err))
		}
	}

	a.logger.Info().Str("agent", a.cfg.AgentName).Msg("Inventory agent stopped")

	return errors.Join(errs...)
}
