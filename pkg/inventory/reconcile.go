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
	"fmt"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// SyncResult summarizes one reconciliation with the server.
type SyncResult struct {
	// Deleted counts nodes the server reported as DELETED. They are left alone.
	Deleted int
	// Unknown and Modified are server ids fetched from the server and merged.
	Unknown  []int
	Modified []int
	// Purged holds the UUIDs removed because the server no longer has them.
	Purged         []string
	NewlyCommitted []int
}

type syncState struct {
	result     *SyncResult
	seen       map[string]struct{}
	toActivate map[string]struct{}
	restart    map[string]struct{}
	committed  []string
}

// SyncInventory reconciles the local tree with the server's sync tree. Nodes
// the agent has never round-tripped adopt the server's id, nodes the server
// knows better are fetched again, nodes the agent does not know are fetched
// and added. When info is rooted at the platform, local resources missing
// from it are removed. Resources that became COMMITTED are announced to the
// server, checked for availability right away and scanned for children.
func (m *Manager) SyncInventory(ctx context.Context, info *models.SyncInfo) (*SyncResult, error) {
	if info == nil {
		return &SyncResult{}, nil
	}

	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	st := &syncState{
		result:     &SyncResult{},
		seen:       make(map[string]struct{}),
		toActivate: make(map[string]struct{}),
		restart:    make(map[string]struct{}),
	}

	m.mu.Lock()
	info.Walk(func(n *models.SyncInfo) { m.syncNodeLocked(n, st) })
	purgeObsolete := info.UUID == m.platformUUID
	m.mu.Unlock()

	if ids := append(append([]int(nil), st.result.Unknown...), st.result.Modified...); len(ids) > 0 {
		fetched, err := m.fetchResources(ctx, ids)
		if err != nil {
			m.logger.Warn().Err(err).Int("resources", len(ids)).Msg("Failed to fetch resources from server")
		}

		m.mergeFetched(ctx, fetched, st)
	}

	if purgeObsolete {
		m.purgeObsolete(ctx, st)
	}

	m.restartChanged(ctx, st)
	m.activateSynced(ctx, st)
	m.postProcessNewlyCommitted(ctx, st)

	m.logger.Info().
		Int("deleted", st.result.Deleted).
		Int("unknown", len(st.result.Unknown)).
		Int("modified", len(st.result.Modified)).
		Int("purged", len(st.result.Purged)).
		Int("newly_committed", len(st.result.NewlyCommitted)).
		Msg("Inventory synchronized with server")

	return st.result, nil
}

func (m *Manager) syncNodeLocked(n *models.SyncInfo, st *syncState) {
	st.seen[n.UUID] = struct{}{}

	if n.InventoryStatus == models.InventoryStatusDeleted {
		st.result.Deleted++
		return
	}

	c := m.containers[n.UUID]
	if c == nil {
		st.result.Unknown = append(st.result.Unknown, n.ID)
		return
	}

	r := c.Resource()

	switch {
	case r.ID == 0:
		updated := m.mutateLocked(c, func(r *models.Resource) {
			r.ID = n.ID
			r.MTime = n.MTime
			r.InventoryStatus = n.InventoryStatus
		})

		c.SetSyncState(container.SyncSynchronized)
		m.noteStatusLocked(st, r, updated)
	case r.ID != n.ID || r.MTime < n.MTime:
		st.result.Modified = append(st.result.Modified, n.ID)
	default:
		updated := r
		if r.InventoryStatus != n.InventoryStatus {
			updated = m.mutateLocked(c, func(r *models.Resource) { r.InventoryStatus = n.InventoryStatus })
		}

		c.SetSyncState(container.SyncSynchronized)
		m.noteStatusLocked(st, r, updated)
	}
}

// noteStatusLocked records activation and commit bookkeeping for a node
// that went from old to updated.
func (m *Manager) noteStatusLocked(st *syncState, old, updated *models.Resource) {
	if updated.InventoryStatus != models.InventoryStatusCommitted {
		return
	}

	st.toActivate[updated.UUID] = struct{}{}

	if old.InventoryStatus != models.InventoryStatusCommitted || old.ID == 0 {
		st.result.NewlyCommitted = append(st.result.NewlyCommitted, updated.ID)
		st.committed = append(st.committed, updated.UUID)
	}
}

// fetchResources loads ids from the server in chunks, a few chunks at a time.
func (m *Manager) fetchResources(ctx context.Context, ids []int) ([]*models.Resource, error) {
	if m.standalone {
		return nil, nil
	}

	var chunks [][]int

	for start := 0; start < len(ids); start += m.cfg.FetchChunkSize {
		end := min(start+m.cfg.FetchChunkSize, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	results := make([][]*models.Resource, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.FetchConcurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, m.cfg.ServerCallTimeout)
			defer cancel()

			resources, err := m.server.FetchResources(cctx, chunk, false)
			if err != nil {
				return fmt.Errorf("fetching %d resources: %w", len(chunk), err)
			}

			results[i] = resources

			return nil
		})
	}

	err := g.Wait()

	var out []*models.Resource
	for _, rs := range results {
		out = append(out, rs...)
	}

	return out, err
}

// mergeFetched applies server copies to the tree. Known UUIDs are replaced
// in place, keeping their children; new ones are added once their parent is
// in the tree.
func (m *Manager) mergeFetched(ctx context.Context, fetched []*models.Resource, st *syncState) {
	var added []*models.Resource

	pending := fetched

	m.mu.Lock()

	for len(pending) > 0 {
		var next []*models.Resource

		for _, f := range pending {
			if f == nil {
				continue
			}

			if r, ok := m.applyFetchedLocked(f, st); ok {
				if r != nil {
					added = append(added, r)
				}

				continue
			}

			next = append(next, f)
		}

		if len(next) == len(pending) {
			for _, f := range next {
				m.logger.Warn().
					Str("resource_uuid", f.UUID).
					Str("parent_uuid", f.ParentUUID).
					Msg("Fetched resource has no parent in the inventory")
			}

			break
		}

		pending = next
	}

	m.mu.Unlock()

	m.fireAdded(ctx, added)
}

// applyFetchedLocked merges one server copy. ok is false when the resource
// has to wait for its parent; added is the node when it is new.
func (m *Manager) applyFetchedLocked(f *models.Resource, st *syncState) (added *models.Resource, ok bool) {
	st.seen[f.UUID] = struct{}{}

	if c := m.containers[f.UUID]; c != nil {
		old := c.Resource()

		updated := m.mutateLocked(c, func(r *models.Resource) {
			children, parent := r.Children, r.ParentUUID
			*r = *f.Clone()
			r.Children = children
			r.ParentUUID = parent
		})

		c.SetSyncState(container.SyncSynchronized)
		m.noteStatusLocked(st, old, updated)

		if c.ComponentState() == container.ComponentStarted &&
			!maps.Equal(old.PluginConfiguration, updated.PluginConfiguration) {
			st.restart[updated.UUID] = struct{}{}
		}

		return nil, true
	}

	if m.containers[f.ParentUUID] == nil {
		return nil, false
	}

	t := m.registry.Type(f.ResourceType)
	if t == nil {
		m.logger.Warn().Str("resource_uuid", f.UUID).Str("resource_type", f.ResourceType).
			Msg("Skipping fetched resource of unknown type")

		return nil, true
	}

	r := f.Clone()
	r.Children = nil

	c := m.newContainer(r, t)
	c.SetSyncState(container.SyncSynchronized)
	m.insertLocked(c)

	if r.InventoryStatus == models.InventoryStatusCommitted {
		st.toActivate[r.UUID] = struct{}{}
	}

	return r, true
}

// purgeObsolete removes every resource the server's tree does not contain.
// Resources that were never reported are kept.
func (m *Manager) purgeObsolete(ctx context.Context, st *syncState) {
	var removed []*container.Container

	m.mu.Lock()

	var obsolete []string

	m.walkLocked(m.platformUUID, func(c *container.Container) {
		r := c.Resource()
		if _, ok := st.seen[r.UUID]; !ok && r.ID != 0 {
			obsolete = append(obsolete, r.UUID)
		}
	})

	for _, u := range obsolete {
		// already gone with an obsolete ancestor
		if m.containers[u] == nil {
			continue
		}

		detached := m.detachLocked(u)
		removed = append(removed, detached...)
	}

	m.mu.Unlock()

	for _, c := range removed {
		st.result.Purged = append(st.result.Purged, c.UUID())
		delete(st.toActivate, c.UUID())
	}

	m.afterRemoval(ctx, removed, container.SyncDeletedOnServer)
}

// restartChanged restarts components whose plugin configuration the server changed.
func (m *Manager) restartChanged(ctx context.Context, st *syncState) {
	for u := range st.restart {
		c := m.Container(u)
		if c == nil {
			continue
		}

		if err := m.deactivate(ctx, c); err != nil {
			m.logger.Warn().Err(err).Str("resource_uuid", u).Msg("Failed to stop reconfigured resource")
		}

		st.toActivate[u] = struct{}{}
	}
}

// activateSynced starts the synchronized resources, parents first.
func (m *Manager) activateSynced(ctx context.Context, st *syncState) {
	if len(st.toActivate) == 0 {
		return
	}

	for _, c := range m.subtree(m.rootUUID()) {
		if _, ok := st.toActivate[c.UUID()]; !ok {
			continue
		}

		if err := m.activate(ctx, c); err != nil {
			m.logger.Warn().Err(err).Str("resource_uuid", c.UUID()).Msg("Failed to activate synchronized resource")
		}
	}
}

// postProcessNewlyCommitted announces newly committed resources and gets
// them an availability check and a service scan.
func (m *Manager) postProcessNewlyCommitted(ctx context.Context, st *syncState) {
	if len(st.result.NewlyCommitted) == 0 {
		return
	}

	if !m.standalone {
		cctx, cancel := context.WithTimeout(ctx, m.cfg.ServerCallTimeout)
		err := m.server.NotifyNewlyCommitted(cctx, st.result.NewlyCommitted)

		cancel()

		if err != nil {
			m.logger.Warn().Err(err).Ints("resource_ids", st.result.NewlyCommitted).
				Msg("Failed to notify server of newly committed resources")
		}
	}

	m.requestAvailabilityPass(ctx)

	for _, u := range st.committed {
		if m.Container(u) != nil {
			m.discovery.ExecuteServiceScanDeferred(u)
		}
	}
}
