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

// Package container holds the per-resource runtime record and the helpers
// used to call plugin components with locking and timeouts.
package container

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

// Container is the runtime record for one resource.
//
// mu guards the record's fields. facetLock serializes calls into the
// component and is held for writing whenever the component itself is
// replaced. availMu guards the cached availability so readers never wait
// behind a slow plugin call.
type Container struct {
	mu        sync.RWMutex
	facetLock sync.RWMutex
	availMu   sync.Mutex

	resource        *models.Resource
	syncState       SyncState
	componentState  ComponentState
	component       plugin.ResourceComponent
	resourceContext *plugin.ResourceContext

	availability   *models.Availability
	nextAvailCheck time.Time
	availSchedule  *models.AvailabilitySchedule
	availProxy     *AvailabilityProxy
	proxyConfig    AvailabilityProxyConfig

	measurementSchedules []models.MeasurementSchedule
	driftDefinitions     []string

	pools  *Pools
	logger logger.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithAvailabilityProxyConfig overrides the availability proxy timeouts.
func WithAvailabilityProxyConfig(cfg AvailabilityProxyConfig) Option {
	return func(c *Container) {
		c.proxyConfig = cfg
	}
}

// New creates a STOPPED container in sync state NEW.
func New(resource *models.Resource, pools *Pools, log logger.Logger, opts ...Option) *Container {
	if pools == nil {
		pools = NewPools(0, 0)
	}

	c := &Container{
		resource:       resource,
		syncState:      SyncNew,
		componentState: ComponentStopped,
		proxyConfig:    DefaultAvailabilityProxyConfig(),
		pools:          pools,
		logger:         log,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Resource returns the resource node. Mutations are the inventory's job and
// happen under its tree lock.
func (c *Container) Resource() *models.Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.resource
}

// UUID is the resource UUID.
func (c *Container) UUID() string {
	return c.Resource().UUID
}

// UpdateResource swaps in a refreshed resource node and points the cached
// component context at it.
func (c *Container) UpdateResource(r *models.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resource = r

	if c.resourceContext != nil {
		rc := *c.resourceContext
		rc.Resource = r
		rc.PluginConfiguration = r.PluginConfiguration.Clone()
		c.resourceContext = &rc
	}
}

func (c *Container) SyncState() SyncState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.syncState
}

func (c *Container) SetSyncState(s SyncState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncState = s
}

func (c *Container) ComponentState() ComponentState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.componentState
}

// Component returns the live component, or nil before activation.
func (c *Container) Component() plugin.ResourceComponent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.component
}

// ResourceContext returns the context the component was started with.
func (c *Container) ResourceContext() *plugin.ResourceContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.resourceContext
}

// Availability returns a copy of the last known availability, or nil.
func (c *Container) Availability() *models.Availability {
	c.availMu.Lock()
	defer c.availMu.Unlock()

	if c.availability == nil {
		return nil
	}

	a := *c.availability

	return &a
}

// AvailabilityType is the last known type, UNKNOWN if none.
func (c *Container) AvailabilityType() models.AvailabilityType {
	c.availMu.Lock()
	defer c.availMu.Unlock()

	if c.availability == nil {
		return models.AvailabilityUnknown
	}

	return c.availability.Type
}

// UpdateAvailability records a new availability. UNKNOWN is never stored;
// the previous value is kept and returned instead.
func (c *Container) UpdateAvailability(t models.AvailabilityType, at time.Time) *models.Availability {
	r := c.Resource()

	c.availMu.Lock()
	defer c.availMu.Unlock()

	if t.IsKnown() {
		c.availability = &models.Availability{
			ResourceID:   r.ID,
			ResourceUUID: r.UUID,
			Type:         t,
			Timestamp:    at,
		}
	}

	if c.availability == nil {
		return nil
	}

	a := *c.availability

	return &a
}

// SetAvailability restores a persisted availability. Unknown types clear it.
func (c *Container) SetAvailability(a *models.Availability) {
	c.availMu.Lock()
	defer c.availMu.Unlock()

	if a == nil || !a.Type.IsKnown() {
		c.availability = nil
		return
	}

	cp := *a
	c.availability = &cp
}

// NextAvailabilityCheck returns the next scheduled check; ok is false when
// nothing is scheduled.
func (c *Container) NextAvailabilityCheck() (next time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.nextAvailCheck, !c.nextAvailCheck.IsZero()
}

// SetNextAvailabilityCheck schedules the next check. The zero time unschedules.
func (c *Container) SetNextAvailabilityCheck(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextAvailCheck = t
}

// AvailabilitySchedule returns a copy of the schedule, nil if the resource has none.
func (c *Container) AvailabilitySchedule() *models.AvailabilitySchedule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.availSchedule == nil {
		return nil
	}

	s := *c.availSchedule

	return &s
}

// SetAvailabilitySchedule replaces the schedule and clears the next check
// time so the new interval is staggered again.
func (c *Container) SetAvailabilitySchedule(s *models.AvailabilitySchedule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s == nil {
		c.availSchedule = nil
	} else {
		cp := *s
		c.availSchedule = &cp
	}

	c.nextAvailCheck = time.Time{}
}

func (c *Container) MeasurementSchedules() []models.MeasurementSchedule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.measurementSchedules)
}

func (c *Container) SetMeasurementSchedules(s []models.MeasurementSchedule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.measurementSchedules = slices.Clone(s)
}

func (c *Container) DriftDefinitions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.driftDefinitions)
}

func (c *Container) SetDriftDefinitions(d []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.driftDefinitions = slices.Clone(d)
}

// AvailabilityProxy returns the proxy for the current component, or nil if
// the component was never started.
func (c *Container) AvailabilityProxy() *AvailabilityProxy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.availProxy
}

// Activate builds a component with factory and starts it under the write
// lock. A started container is left alone. InvalidPluginConfigurationError and
// TimeoutError are returned as is; other failures are wrapped in
// plugin.ContainerError. On failure the container stays STOPPED.
func (c *Container) Activate(
	ctx context.Context, factory plugin.ComponentFactory, rc *plugin.ResourceContext, timeout time.Duration,
) error {
	if factory == nil {
		return ErrNoComponentFactory
	}

	if c.ComponentState() == ComponentStarted {
		return nil
	}

	_, err := Invoke(ctx, c, InvokeOptions{Op: "start", Lock: LockWrite, Timeout: timeout},
		func(ctx context.Context, _ plugin.ResourceComponent) (struct{}, error) {
			return struct{}{}, c.start(ctx, factory(), rc)
		})
	if err == nil {
		return nil
	}

	var invalid *plugin.InvalidPluginConfigurationError
	if errors.As(err, &invalid) || errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) {
		return err
	}

	return &plugin.ContainerError{ResourceType: c.Resource().ResourceType, Err: err}
}

// start runs on the worker holding the facet write lock.
func (c *Container) start(ctx context.Context, comp plugin.ResourceComponent, rc *plugin.ResourceContext) error {
	c.mu.Lock()
	if c.componentState == ComponentStarted {
		c.mu.Unlock()
		return nil
	}

	c.componentState = ComponentStarting
	c.mu.Unlock()

	if comp == nil {
		c.setStopped()
		return ErrNoComponentFactory
	}

	err := comp.Start(ctx, rc)
	if err == nil && ctx.Err() != nil {
		// the caller already reported a timeout, so undo the late start
		_ = comp.Stop(context.Background())
		err = ctx.Err()
	}

	if err != nil {
		c.setStopped()
		return err
	}

	c.mu.Lock()
	c.component = comp
	c.resourceContext = rc
	c.componentState = ComponentStarted
	c.availProxy = newAvailabilityProxy(c, c.proxyConfig, c.logger)
	c.mu.Unlock()

	return nil
}

func (c *Container) setStopped() {
	c.mu.Lock()
	c.componentState = ComponentStopped
	c.mu.Unlock()
}

// Deactivate stops the component under the write lock. The container ends
// up STOPPED even when Stop fails.
func (c *Container) Deactivate(ctx context.Context, timeout time.Duration) error {
	if c.ComponentState() == ComponentStopped && c.Component() == nil {
		return nil
	}

	_, err := Invoke(ctx, c, InvokeOptions{Op: "stop", Lock: LockWrite, Timeout: timeout},
		func(ctx context.Context, comp plugin.ResourceComponent) (struct{}, error) {
			var stopErr error
			if comp != nil {
				stopErr = comp.Stop(ctx)
			}

			c.mu.Lock()
			c.component = nil
			c.componentState = ComponentStopped
			c.availProxy = nil
			c.mu.Unlock()

			return struct{}{}, stopErr
		})

	if err != nil {
		c.setStopped()
	}

	return err
}

func (c *Container) String() string {
	r := c.Resource()

	return fmt.Sprintf("ResourceContainer[uuid=%s, id=%d, type=%s, state=%s, sync=%s]",
		r.UUID, r.ID, r.ResourceType, c.ComponentState(), c.SyncState())
}
