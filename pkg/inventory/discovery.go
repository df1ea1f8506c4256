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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
	"github.com/carverauto/serviceradar-inventory/pkg/process"
)

const (
	scanKindServer  = "server"
	scanKindService = "service"
)

// DiscoveryEngine runs plugin discovery and merges what it finds into the
// inventory. Only one scan runs at a time.
type DiscoveryEngine struct {
	m  *Manager
	mu sync.Mutex
}

// ExecuteServerScan runs the discovery of every top-level type under the
// platform. New resources are reported to the server and the returned sync
// tree is reconciled before the scan returns.
func (d *DiscoveryEngine) ExecuteServerScan(ctx context.Context) (*models.InventoryReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.m

	platform := m.PlatformContainer()
	if platform == nil {
		return nil, ErrNotInitialized
	}

	if err := m.activate(ctx, platform); err != nil {
		return nil, fmt.Errorf("platform is not started: %w", err)
	}

	report := d.newReport()
	procs := newProcessSnapshot(m.procs, m.logger)

	var created []*models.Resource

	for _, t := range m.registry.TopLevelTypes() {
		if ctx.Err() != nil {
			break
		}

		created = append(created, d.discoverChildren(ctx, platform, t, procs, false)...)
	}

	m.logger.Info().Int("new_resources", len(created)).Msg("Server scan finished")

	return d.finish(ctx, report, scanKindServer, created)
}

// ExecuteServiceScan discovers child resources under rootUUID and, recursively,
// under every started and available descendant. An empty rootUUID means the
// platform.
func (d *DiscoveryEngine) ExecuteServiceScan(ctx context.Context, rootUUID string) (*models.InventoryReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.m

	if rootUUID == "" {
		rootUUID = m.rootUUID()
	}

	root := m.Container(rootUUID)
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, rootUUID)
	}

	report := d.newReport()
	acc := &createdSet{}

	d.serviceScan(ctx, root, newProcessSnapshot(m.procs, m.logger), acc)

	m.logger.Info().
		Str("root_uuid", rootUUID).
		Int("new_resources", len(acc.resources)).
		Msg("Service scan finished")

	return d.finish(ctx, report, scanKindService, acc.resources)
}

// ExecuteServiceScanDeferred runs a service scan under uuid in the
// background, retrying with backoff until the resource's component has
// started. It is used for resources the server has just committed.
func (d *DiscoveryEngine) ExecuteServiceScanDeferred(uuid string) {
	m := d.m

	m.bg.Add(1)

	go func() {
		defer m.bg.Done()

		if err := d.serviceScanWhenStarted(m.bgCtx, uuid); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn().Err(err).Str("resource_uuid", uuid).Msg("Deferred service scan failed")
		}
	}()
}

func (d *DiscoveryEngine) serviceScanWhenStarted(ctx context.Context, uuid string) error {
	m := d.m

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ServiceScanRetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		c := m.Container(uuid)
		if c == nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrResourceNotFound, uuid))
		}

		if c.ComponentState() != container.ComponentStarted {
			return struct{}{}, errComponentNotReady
		}

		_, err := d.ExecuteServiceScan(ctx, uuid)

		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(m.cfg.ServiceScanRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Debug().Err(err).Str("resource_uuid", uuid).Dur("retry_in", next).Msg("Service scan deferred")
		}),
	)

	return err
}

type createdSet struct {
	mu        sync.Mutex
	resources []*models.Resource
}

func (s *createdSet) add(rs []*models.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resources = append(s.resources, rs...)
}

func (d *DiscoveryEngine) serviceScan(ctx context.Context, c *container.Container, procs *processSnapshot, acc *createdSet) {
	if ctx.Err() != nil || c.ComponentState() != container.ComponentStarted {
		return
	}

	r := c.Resource()

	if !d.isUp(ctx, c, r) {
		d.m.logger.Debug().Str("resource_uuid", r.UUID).Msg("Skipping service scan of unavailable resource")
		return
	}

	var g errgroup.Group

	g.SetLimit(d.m.cfg.DiscoveryConcurrency)

	for _, t := range d.m.registry.ChildTypes(r.ResourceType) {
		g.Go(func() error {
			acc.add(d.discoverChildren(ctx, c, t, procs, true))
			return nil
		})
	}

	_ = g.Wait()

	for _, child := range d.m.Children(r.UUID) {
		if cc := d.m.Container(child.UUID); cc != nil {
			d.serviceScan(ctx, cc, procs, acc)
		}
	}
}

// isUp decides whether a resource may be scanned for children. Servers and
// resources without a cached value are checked live; otherwise the cached
// value is trusted.
func (d *DiscoveryEngine) isUp(ctx context.Context, c *container.Container, r *models.Resource) bool {
	cached := c.AvailabilityType()

	t := d.m.registry.Type(r.ResourceType)
	if cached.IsKnown() && (t == nil || t.Category != models.CategoryServer) {
		return cached == models.AvailabilityUp
	}

	proxy := c.AvailabilityProxy()
	if proxy == nil {
		return false
	}

	avail, err := proxy.GetAvailability(ctx)
	if err != nil {
		d.m.logger.Debug().Err(err).Str("resource_uuid", r.UUID).Msg("Availability check before service scan failed")
		return false
	}

	if avail == models.AvailabilityUnknown {
		return cached == models.AvailabilityUp
	}

	return avail == models.AvailabilityUp
}

// discoverChildren runs the discovery of type t under parent and merges the
// results. With prune set, never-committed children of t that were not
// found again are removed. Errors stay inside this type.
func (d *DiscoveryEngine) discoverChildren(
	ctx context.Context, parent *container.Container, t *models.ResourceType, procs *processSnapshot, prune bool,
) []*models.Resource {
	m := d.m

	if t.Ignored {
		return nil
	}

	def, err := m.registry.Definition(t.Name)
	if err != nil || def.Discovery == nil {
		return nil
	}

	dc := &plugin.DiscoveryContext{
		ResourceType:    t,
		ParentResource:  parent.Resource().Clone(),
		ParentComponent: parent.Component(),
		ProcessMatches:  procs.matches(ctx, t.ProcessQueries),
		Logger:          logger.NewZerologLogger(m.logger.WithComponent("discovery." + t.Name)),
	}

	found, err := container.Invoke(ctx, parent,
		container.InvokeOptions{Op: "discover " + t.Name, Lock: container.LockRead, Timeout: m.cfg.DiscoveryTimeout},
		func(ctx context.Context, _ plugin.ResourceComponent) ([]*models.DiscoveredResource, error) {
			return def.Discovery.DiscoverResources(ctx, dc)
		})
	if err != nil {
		m.logger.Warn().Err(err).
			Str("resource_type", t.Name).
			Str("parent_uuid", parent.UUID()).
			Msg("Discovery failed")

		return nil
	}

	merged, created := d.mergeAll(ctx, parent.UUID(), t, found)

	if prune {
		d.pruneStale(ctx, parent.UUID(), t.Name, merged)
	}

	return created
}

// mergeAll validates and merges discovered resources of type t under parentUUID.
func (d *DiscoveryEngine) mergeAll(
	ctx context.Context, parentUUID string, t *models.ResourceType, found []*models.DiscoveredResource,
) (merged map[string]struct{}, created []*models.Resource) {
	m := d.m
	merged = make(map[string]struct{}, len(found))

	m.mu.Lock()

	for _, dr := range found {
		if dr == nil {
			continue
		}

		if err := dr.Validate(); err != nil {
			m.logger.Warn().Err(err).Str("resource_type", t.Name).Msg("Dropping invalid discovered resource")
			continue
		}

		if dr.ResourceType != t.Name {
			m.logger.Warn().
				Err(ErrWrongResourceType).
				Str("resource_type", t.Name).
				Str("discovered_type", dr.ResourceType).
				Msg("Dropping discovered resource")

			continue
		}

		r, isNew, err := m.mergeResourceLocked(parentUUID, dr.ToResource())
		if err != nil {
			m.logger.Warn().Err(err).Str("resource_key", dr.ResourceKey).Msg("Failed to merge discovered resource")
			continue
		}

		merged[r.UUID] = struct{}{}

		if isNew {
			created = append(created, r)
		}
	}

	m.mu.Unlock()

	m.afterMerge(ctx, created)

	return merged, created
}

// pruneStale removes children of parentUUID with type typeName that the
// server has never seen and that discovery did not report this time.
func (d *DiscoveryEngine) pruneStale(ctx context.Context, parentUUID, typeName string, found map[string]struct{}) {
	m := d.m

	var removed []*container.Container

	m.mu.Lock()

	if parent := m.containers[parentUUID]; parent != nil {
		for _, childUUID := range parent.Resource().Children {
			c := m.containers[childUUID]
			if c == nil {
				continue
			}

			r := c.Resource()
			if r.ResourceType != typeName || !isAgentOnly(r) {
				continue
			}

			if _, ok := found[r.UUID]; ok {
				continue
			}

			removed = append(removed, m.detachLocked(r.UUID)...)
		}
	}

	m.mu.Unlock()

	m.afterRemoval(ctx, removed, container.SyncDeletedOnAgent)
}

// isAgentOnly reports whether the server has never assigned r an id.
// Standalone ids are negative.
func isAgentOnly(r *models.Resource) bool {
	return r.ID <= 0
}

func (d *DiscoveryEngine) newReport() *models.InventoryReport {
	return &models.InventoryReport{
		Agent:   d.m.cfg.AgentName,
		Started: d.m.clock.Now(),
	}
}

// finish records metrics and, when the server has not seen part of the
// tree yet, sends it and reconciles with the answer.
func (d *DiscoveryEngine) finish(
	ctx context.Context, report *models.InventoryReport, kind string, created []*models.Resource,
) (*models.InventoryReport, error) {
	m := d.m

	report.Ended = m.clock.Now()
	report.Resources = m.unreportedResources()
	m.metrics.recordDiscovered(ctx, kind, len(created))

	if m.standalone || len(report.Resources) == 0 {
		return report, nil
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.ServerCallTimeout)
	info, err := m.server.SendInventoryReport(cctx, report)

	cancel()

	if err != nil {
		return report, fmt.Errorf("failed to send inventory report: %w", err)
	}

	if info == nil {
		return report, nil
	}

	if _, err := m.SyncInventory(ctx, info); err != nil {
		return report, err
	}

	return report, nil
}

// unreportedResources lists every resource without a server id, parents first.
func (m *Manager) unreportedResources() []*models.Resource {
	var out []*models.Resource

	for _, c := range m.subtree(m.rootUUID()) {
		if r := c.Resource(); r.ID == 0 {
			out = append(out, r.Clone())
		}
	}

	return out
}

// processSnapshot reads the process table at most once per scan.
type processSnapshot struct {
	scanner *process.Scanner
	logger  logger.Logger

	mu    sync.Mutex
	taken bool
	procs []process.Info
}

func newProcessSnapshot(scanner *process.Scanner, log logger.Logger) *processSnapshot {
	return &processSnapshot{scanner: scanner, logger: log}
}

func (s *processSnapshot) matches(ctx context.Context, rawQueries []string) []process.Match {
	if len(rawQueries) == 0 || s.scanner == nil {
		return nil
	}

	queries := make([]*process.Query, 0, len(rawQueries))

	for _, raw := range rawQueries {
		q, err := process.ParseQuery(raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("query", raw).Msg("Skipping invalid process query")
			continue
		}

		queries = append(queries, q)
	}

	if len(queries) == 0 {
		return nil
	}

	s.mu.Lock()

	if !s.taken {
		s.taken = true

		procs, err := s.scanner.Snapshot(ctx)

		switch {
		case errors.Is(err, process.ErrUnsupported):
			s.logger.Debug().Msg("Process scanning is not supported on this platform")
		case err != nil:
			s.logger.Warn().Err(err).Msg("Failed to read the process table")
		default:
			s.procs = procs
		}
	}

	procs := s.procs
	s.mu.Unlock()

	return process.Filter(procs, queries)
}
