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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
	"github.com/carverauto/serviceradar-inventory/pkg/process"
	"github.com/carverauto/serviceradar-inventory/pkg/serverclient"
)

// Manager owns the inventory tree and the container of every resource in it.
//
// mu guards the container registry and the tree structure. Resource nodes
// are copy-on-write: a change clones the node and swaps the clone into its
// container, so a node handed out to a reader never changes under it.
type Manager struct {
	cfg        Config
	registry   *plugin.Registry
	server     serverclient.ServerService
	standalone bool
	pools      *container.Pools
	procs      *process.Scanner
	clock      Clock
	meter      metric.MeterProvider
	metrics    *inventoryMetrics
	logger     logger.Logger

	mu           sync.RWMutex
	containers   map[string]*container.Container
	byID         map[int]string
	platformUUID string
	lastLocalID  int

	listenersMu  sync.RWMutex
	listeners    []InventoryEventListener
	configErrors map[string]struct{}

	syncMu sync.Mutex

	discovery *DiscoveryEngine
	avail     *AvailabilityExecutor
	measure   *MeasurementCollector

	tasksMu       sync.Mutex
	discoveryTask *PeriodicTask
	availTask     *PeriodicTask
	measureTask   *PeriodicTask

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for scans and schedules.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithProcessScanner replaces the gopsutil-backed process scanner.
func WithProcessScanner(s *process.Scanner) Option {
	return func(m *Manager) {
		m.procs = s
	}
}

// WithMeterProvider records scan metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) {
		m.meter = mp
	}
}

// NewManager creates an empty inventory. server may be nil, which implies
// standalone mode.
func NewManager(
	cfg Config, registry *plugin.Registry, server serverclient.ServerService, log logger.Logger, opts ...Option,
) *Manager {
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:          cfg,
		registry:     registry,
		server:       server,
		standalone:   cfg.Standalone || server == nil,
		pools:        container.NewPools(cfg.InvocationPoolSize, cfg.AvailabilityPoolSize),
		clock:        realClock{},
		logger:       log,
		containers:   make(map[string]*container.Container),
		byID:         make(map[int]string),
		configErrors: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.procs == nil {
		m.procs = process.NewScanner(log)
	}

	if len(cfg.DisabledTypes) > 0 {
		registry.Disable(cfg.DisabledTypes...)
	}

	m.metrics = newInventoryMetrics(m.meter)
	m.bgCtx, m.bgCancel = context.WithCancel(context.Background())
	m.discovery = &DiscoveryEngine{m: m}
	m.avail = newAvailabilityExecutor(m)
	m.measure = newMeasurementCollector(m)

	return m
}

// Standalone reports whether the inventory runs without a server.
func (m *Manager) Standalone() bool {
	return m.standalone
}

// Discovery returns the discovery engine.
func (m *Manager) Discovery() *DiscoveryEngine {
	return m.discovery
}

// Availability returns the availability executor.
func (m *Manager) Availability() *AvailabilityExecutor {
	return m.avail
}

// Measurements returns the measurement collector.
func (m *Manager) Measurements() *MeasurementCollector {
	return m.measure
}

// Initialize loads the persisted inventory, creates the platform if there is
// none and activates every resource the server has confirmed.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.cfg.DataDir != "" {
		if err := m.loadSnapshot(); err != nil {
			m.logger.Warn().Err(err).Str("data_dir", m.cfg.DataDir).Msg("Ignoring unreadable inventory snapshot")
		}
	}

	if m.PlatformContainer() == nil {
		if err := m.createPlatform(ctx); err != nil {
			return err
		}
	}

	platform := m.PlatformContainer()
	if err := m.activate(ctx, platform); err != nil {
		return fmt.Errorf("failed to activate platform: %w", err)
	}

	for _, c := range m.subtree(platform.UUID()) {
		r := c.Resource()
		if r.UUID == platform.UUID() || r.InventoryStatus != models.InventoryStatusCommitted ||
			c.SyncState() != container.SyncSynchronized {
			continue
		}

		if err := m.activate(ctx, c); err != nil {
			m.logger.Warn().Err(err).Str("resource_uuid", r.UUID).Msg("Failed to activate resource")
		}
	}

	m.logger.Info().
		Str("platform_uuid", platform.UUID()).
		Int("resources", m.Size()).
		Bool("standalone", m.standalone).
		Msg("Inventory initialized")

	return nil
}

func (m *Manager) createPlatform(ctx context.Context) error {
	platformType := m.registry.PlatformType()
	if platformType == nil {
		return ErrNoPlatformType
	}

	def, err := m.registry.Definition(platformType.Name)
	if err != nil {
		return err
	}

	var r *models.Resource

	if def.Discovery != nil {
		dctx, cancel := context.WithTimeout(ctx, m.cfg.DiscoveryTimeout)
		found, err := def.Discovery.DiscoverResources(dctx, &plugin.DiscoveryContext{
			ResourceType: platformType,
			Logger:       m.logger,
		})

		cancel()

		switch {
		case err != nil:
			m.logger.Warn().Err(err).Msg("Platform discovery failed, using the host name")
		case len(found) > 0 && found[0] != nil && found[0].Validate() == nil:
			r = found[0].ToResource()
			r.ResourceType = platformType.Name
		}
	}

	if r == nil {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}

		r = models.NewResource(platformType.Name, host, host)
	}

	m.mu.Lock()

	if m.standalone {
		r.ID = m.nextLocalIDLocked()
		r.InventoryStatus = models.InventoryStatusCommitted
	}

	c := m.newContainer(r, platformType)
	if m.standalone {
		c.SetSyncState(container.SyncSynchronized)
	}

	m.insertLocked(c)
	m.platformUUID = r.UUID
	m.mu.Unlock()

	m.logger.Info().Str("resource_uuid", r.UUID).Str("name", r.Name).Msg("Created platform resource")
	m.fireAdded(ctx, []*models.Resource{r})

	return nil
}

// Shutdown stops the schedulers and background scans, deactivates every
// component and persists the inventory.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if err := m.stopSchedulers(ctx); err != nil {
		errs = append(errs, err)
	}

	m.bgCancel()

	done := make(chan struct{})

	go func() {
		m.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for background scans: %w", ctx.Err()))
	}

	if m.cfg.DataDir != "" && m.PlatformContainer() != nil {
		if err := SaveSnapshotFile(m.snapshotPath(), m.Snapshot()); err != nil {
			errs = append(errs, err)
		}
	}

	if platform := m.PlatformContainer(); platform != nil {
		if err := m.deactivateSubtree(ctx, platform.UUID()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) snapshotPath() string {
	return filepath.Join(m.cfg.DataDir, snapshotFileName)
}

func (m *Manager) loadSnapshot() error {
	s, err := LoadSnapshotFile(m.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	pruned, err := m.restore(s)
	if err != nil {
		return err
	}

	m.logger.Info().Int("resources", m.Size()).Int("pruned", pruned).Msg("Loaded inventory snapshot")

	return nil
}

func (m *Manager) newContainer(r *models.Resource, t *models.ResourceType) *container.Container {
	c := container.New(r, m.pools, m.logger, container.WithAvailabilityProxyConfig(m.cfg.AvailabilityProxy))

	if t != nil {
		c.SetAvailabilitySchedule(t.AvailabilitySchedule())
		c.SetMeasurementSchedules(t.MeasurementSchedules())
	}

	return c
}

// insertLocked registers c and links it under its parent. Callers hold mu.
func (m *Manager) insertLocked(c *container.Container) {
	r := c.Resource()

	m.containers[r.UUID] = c

	if r.ID != 0 {
		m.byID[r.ID] = r.UUID
	}

	if parent := m.containers[r.ParentUUID]; parent != nil && !parent.Resource().HasChild(r.UUID) {
		m.mutateLocked(parent, func(p *models.Resource) { p.AddChild(r.UUID) })
	}
}

// mutateLocked applies fn to a copy of c's resource and publishes the copy.
// Callers hold mu for writing.
func (m *Manager) mutateLocked(c *container.Container, fn func(r *models.Resource)) *models.Resource {
	old := c.Resource()
	r := old.Clone()
	fn(r)

	if old.ID != r.ID {
		if old.ID != 0 && m.byID[old.ID] == r.UUID {
			delete(m.byID, old.ID)
		}

		if r.ID != 0 {
			m.byID[r.ID] = r.UUID
		}
	}

	c.UpdateResource(r)

	return r
}

// nextLocalIDLocked hands out the negative ids used in standalone mode.
func (m *Manager) nextLocalIDLocked() int {
	m.lastLocalID--
	return m.lastLocalID
}

// Platform returns the root resource, or nil before Initialize.
func (m *Manager) Platform() *models.Resource {
	if c := m.PlatformContainer(); c != nil {
		return c.Resource()
	}

	return nil
}

// PlatformContainer returns the root container, or nil before Initialize.
func (m *Manager) PlatformContainer() *container.Container {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.containers[m.platformUUID]
}

// Container returns the container for uuid, or nil.
func (m *Manager) Container(uuid string) *container.Container {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.containers[uuid]
}

// ContainerByID returns the container of the resource with server id id, or nil.
func (m *Manager) ContainerByID(id int) *container.Container {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uuid, ok := m.byID[id]
	if !ok {
		return nil
	}

	return m.containers[uuid]
}

// Resource returns the resource node for uuid, or nil.
func (m *Manager) Resource(uuid string) *models.Resource {
	if c := m.Container(uuid); c != nil {
		return c.Resource()
	}

	return nil
}

// Children returns the children of uuid in insertion order.
func (m *Manager) Children(uuid string) []*models.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.containers[uuid]
	if c == nil {
		return nil
	}

	var out []*models.Resource

	for _, childUUID := range c.Resource().Children {
		if child := m.containers[childUUID]; child != nil {
			out = append(out, child.Resource())
		}
	}

	return out
}

// ContainersByType returns the containers of every resource of the named type.
func (m *Manager) ContainersByType(name string) []*container.Container {
	var out []*container.Container

	for _, c := range m.subtree(m.rootUUID()) {
		if c.Resource().ResourceType == name {
			out = append(out, c)
		}
	}

	return out
}

func (m *Manager) rootUUID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.platformUUID
}

// Size is the number of resources in the inventory.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.containers)
}

// subtree returns the containers under uuid, parents before children.
func (m *Manager) subtree(uuid string) []*container.Container {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*container.Container

	m.walkLocked(uuid, func(c *container.Container) {
		out = append(out, c)
	})

	return out
}

// walkLocked visits uuid and its descendants depth-first, parents first.
// Callers hold mu.
func (m *Manager) walkLocked(uuid string, fn func(c *container.Container)) {
	c := m.containers[uuid]
	if c == nil {
		return
	}

	fn(c)

	for _, child := range c.Resource().Children {
		m.walkLocked(child, fn)
	}
}

// ActivateResource starts the component of uuid if it is not running.
func (m *Manager) ActivateResource(ctx context.Context, uuid string) error {
	c := m.Container(uuid)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, uuid)
	}

	return m.activate(ctx, c)
}

// DeactivateResource stops the components of uuid and its descendants.
func (m *Manager) DeactivateResource(ctx context.Context, uuid string) error {
	if m.Container(uuid) == nil {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, uuid)
	}

	return m.deactivateSubtree(ctx, uuid)
}

func (m *Manager) activate(ctx context.Context, c *container.Container) error {
	if c.ComponentState() == container.ComponentStarted {
		return nil
	}

	r := c.Resource()

	def, err := m.registry.Definition(r.ResourceType)
	if err != nil {
		return err
	}

	var parentComponent plugin.ResourceComponent

	if r.ParentUUID != "" {
		parent := m.Container(r.ParentUUID)
		if parent == nil {
			return fmt.Errorf("%w: %s", ErrParentNotFound, r.ParentUUID)
		}

		if parent.ComponentState() != container.ComponentStarted {
			return fmt.Errorf("%w: %s", ErrParentNotStarted, r.ParentUUID)
		}

		parentComponent = parent.Component()
	}

	resourceLog := logger.NewZerologLogger(m.logger.WithFields(map[string]interface{}{
		"resource_uuid": r.UUID,
		"resource_type": r.ResourceType,
	}))

	rc := &plugin.ResourceContext{
		Resource:            r.Clone(),
		ResourceType:        def.Type,
		PluginConfiguration: r.PluginConfiguration.Clone(),
		ParentComponent:     parentComponent,
		Logger:              resourceLog,
	}

	if m.cfg.DataDir != "" {
		rc.DataDir = filepath.Join(m.cfg.DataDir, "resources", r.UUID)
	}

	if err := c.Activate(ctx, def.NewComponent, rc, m.cfg.ComponentStartTimeout); err != nil {
		var invalid *plugin.InvalidPluginConfigurationError
		if errors.As(err, &invalid) {
			m.handleInvalidConfiguration(ctx, c, invalid)
		}

		return err
	}

	m.logger.Debug().Str("resource_uuid", r.UUID).Str("resource_type", r.ResourceType).Msg("Activated resource")
	m.fireActivated(ctx, c.Resource())

	return nil
}

func (m *Manager) deactivate(ctx context.Context, c *container.Container) error {
	wasStarted := c.ComponentState() == container.ComponentStarted

	if p := c.AvailabilityProxy(); p != nil {
		p.Cancel()
	}

	err := c.Deactivate(ctx, m.cfg.ComponentStopTimeout)

	if wasStarted {
		m.fireDeactivated(ctx, c.Resource())
	}

	return err
}

// deactivateSubtree stops uuid and its descendants, children first.
func (m *Manager) deactivateSubtree(ctx context.Context, uuid string) error {
	nodes := m.subtree(uuid)

	var errs []error

	for i := len(nodes) - 1; i >= 0; i-- {
		if err := m.deactivate(ctx, nodes[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nodes[i].UUID(), err))
		}
	}

	return errors.Join(errs...)
}

// RemoveResource removes uuid and its descendants from the inventory.
func (m *Manager) RemoveResource(ctx context.Context, uuid string) error {
	m.mu.Lock()

	if uuid == m.platformUUID {
		m.mu.Unlock()
		return ErrCannotRemoveRoot
	}

	if m.containers[uuid] == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrResourceNotFound, uuid)
	}

	removed := m.detachLocked(uuid)
	m.mu.Unlock()

	m.afterRemoval(ctx, removed, container.SyncDeletedOnAgent)

	return nil
}

// detachLocked unlinks uuid from its parent and drops its subtree from the
// registry. It returns the removed containers, children first. Callers hold mu.
func (m *Manager) detachLocked(uuid string) []*container.Container {
	c := m.containers[uuid]
	if c == nil {
		return nil
	}

	var removed []*container.Container

	m.walkLocked(uuid, func(n *container.Container) {
		removed = append(removed, n)
	})

	if parent := m.containers[c.Resource().ParentUUID]; parent != nil {
		m.mutateLocked(parent, func(p *models.Resource) { p.RemoveChild(uuid) })
	}

	for i, j := 0, len(removed)-1; i < j; i, j = i+1, j-1 {
		removed[i], removed[j] = removed[j], removed[i]
	}

	for _, n := range removed {
		r := n.Resource()
		delete(m.containers, r.UUID)

		if r.ID != 0 && m.byID[r.ID] == r.UUID {
			delete(m.byID, r.ID)
		}
	}

	return removed
}

// afterRemoval stops the components of detached containers and tells the listeners.
func (m *Manager) afterRemoval(ctx context.Context, removed []*container.Container, state container.SyncState) {
	if len(removed) == 0 {
		return
	}

	resources := make([]*models.Resource, 0, len(removed))

	for _, c := range removed {
		if err := m.deactivate(ctx, c); err != nil {
			m.logger.Warn().Err(err).Str("resource_uuid", c.UUID()).Msg("Failed to stop removed resource")
		}

		if n := len(c.MeasurementSchedules()); n > 0 {
			m.logger.Debug().Str("resource_uuid", c.UUID()).Int("schedules", n).Msg("Cancelled measurement schedules")
		}

		c.SetMeasurementSchedules(nil)
		c.SetSyncState(state)
		resources = append(resources, c.Resource())
	}

	m.logger.Info().Int("resources", len(resources)).Str("sync_state", string(state)).Msg("Removed resources from inventory")
	m.fireRemoved(ctx, resources)
}

// reportResourceError sends resErr to the server. Failures are only logged.
func (m *Manager) reportResourceError(ctx context.Context, resErr *models.ResourceError) {
	if m.standalone {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.ServerCallTimeout)
	defer cancel()

	if err := m.server.ReportResourceError(cctx, resErr); err != nil {
		m.logger.Warn().Err(err).Int("resource_id", resErr.ResourceID).Msg("Failed to report resource error")
	}
}

// handleInvalidConfiguration reports the error and clears it on the server
// once the resource activates.
func (m *Manager) handleInvalidConfiguration(
	ctx context.Context, c *container.Container, invalid *plugin.InvalidPluginConfigurationError,
) {
	r := c.Resource()

	m.logger.Warn().Err(invalid).Str("resource_uuid", r.UUID).Msg("Resource rejected its plugin configuration")

	if m.standalone || r.ID == 0 {
		return
	}

	m.reportResourceError(ctx, &models.ResourceError{
		ResourceID: r.ID,
		Type:       models.ResourceErrorInvalidPluginConfiguration,
		Summary:    invalid.Error(),
		Time:       m.clock.Now(),
	})

	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	if _, ok := m.configErrors[r.UUID]; ok {
		return
	}

	m.configErrors[r.UUID] = struct{}{}
	m.listeners = append(m.listeners, &configErrorClearer{m: m, uuid: r.UUID})
}
