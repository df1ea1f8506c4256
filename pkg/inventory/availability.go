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
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// AvailabilityScan is the record of one availability pass.
type AvailabilityScan struct {
	ID     string    `json:"id"`
	Root   string    `json:"root"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Full   bool      `json:"full"`
	Forced bool      `json:"forced"`
	// Resources counts the committed resources visited.
	Resources        int `json:"resources"`
	LiveChecks       int `json:"live_checks"`
	Randomized       int `json:"randomized"`
	Advanced         int `json:"advanced"`
	Changes          int `json:"changes"`
	DeferredToParent int `json:"deferred_to_parent"`
}

// AvailabilityExecutor walks the tree deciding, per resource, whether to
// check availability live, inherit the parent's value or keep the last one.
// Passes never overlap.
//
// The first pass sends a full report; later passes send only changes until
// SendFullReportNextTime is called, a report fails to send or the server
// asks for a full report.
type AvailabilityExecutor struct {
	m *Manager

	runMu sync.Mutex

	stateMu     sync.Mutex
	changesOnly bool
	history     []AvailabilityScan

	forceNext atomic.Bool

	randMu sync.Mutex
	rnd    *rand.Rand
}

func newAvailabilityExecutor(m *Manager) *AvailabilityExecutor {
	return &AvailabilityExecutor{
		m:   m,
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run performs a pass from the platform and sends the report.
func (e *AvailabilityExecutor) Run(ctx context.Context) (*models.AvailabilityReport, error) {
	return e.run(ctx, "", e.forceNext.Swap(false), false)
}

// RunForced performs a pass where every resource is checked live,
// regardless of its schedule.
func (e *AvailabilityExecutor) RunForced(ctx context.Context) (*models.AvailabilityReport, error) {
	e.forceNext.Store(false)
	return e.run(ctx, "", true, false)
}

// RunFrom performs a changes-only pass over the subtree at uuid. With
// ignoreOwnSchedule the root is checked live; its descendants keep their schedules.
func (e *AvailabilityExecutor) RunFrom(
	ctx context.Context, uuid string, ignoreOwnSchedule bool,
) (*models.AvailabilityReport, error) {
	if e.m.Container(uuid) == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uuid)
	}

	return e.run(ctx, uuid, false, ignoreOwnSchedule)
}

// SendFullReportNextTime makes the next platform pass report every resource.
func (e *AvailabilityExecutor) SendFullReportNextTime() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.changesOnly = false
}

// ForceNextScan makes the next Run a forced pass.
func (e *AvailabilityExecutor) ForceNextScan() {
	e.forceNext.Store(true)
}

// History returns the most recent passes, oldest first.
func (e *AvailabilityExecutor) History() []AvailabilityScan {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	return slices.Clone(e.history)
}

func (e *AvailabilityExecutor) isChangesOnly() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	return e.changesOnly
}

func (e *AvailabilityExecutor) record(scan *AvailabilityScan) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.history = append(e.history, *scan)
	if over := len(e.history) - e.m.cfg.ScanHistorySize; over > 0 {
		e.history = slices.Delete(e.history, 0, over)
	}
}

// scanNode is a read-only copy of one tree node taken at the start of a pass.
type scanNode struct {
	container *container.Container
	resource  *models.Resource
	children  []*scanNode
}

func (m *Manager) scanTree(uuid string) *scanNode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.scanTreeLocked(uuid)
}

func (m *Manager) scanTreeLocked(uuid string) *scanNode {
	c := m.containers[uuid]
	if c == nil {
		return nil
	}

	r := c.Resource()
	n := &scanNode{container: c, resource: r}

	for _, childUUID := range r.Children {
		if child := m.scanTreeLocked(childUUID); child != nil {
			n.children = append(n.children, child)
		}
	}

	return n
}

func (e *AvailabilityExecutor) run(
	ctx context.Context, rootUUID string, forced, ignoreOwnSchedule bool,
) (*models.AvailabilityReport, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	m := e.m

	partial := rootUUID != ""
	if !partial {
		rootUUID = m.rootUUID()
	}

	root := m.scanTree(rootUUID)
	if root == nil {
		return nil, ErrNotInitialized
	}

	full := !partial && !e.isChangesOnly()

	scan := &AvailabilityScan{
		ID:     uuid.NewString(),
		Root:   rootUUID,
		Start:  m.clock.Now(),
		Full:   full,
		Forced: forced,
	}

	report := &models.AvailabilityReport{Agent: m.cfg.AgentName, ChangesOnly: !full}

	e.check(ctx, scan, report, root, e.rootParentType(root.resource), forced, ignoreOwnSchedule)

	scan.End = m.clock.Now()
	e.record(scan)
	m.metrics.recordScan(ctx, scan)

	m.logger.Debug().
		Str("scan_id", scan.ID).
		Bool("full", scan.Full).
		Bool("forced", scan.Forced).
		Int("resources", scan.Resources).
		Int("live_checks", scan.LiveChecks).
		Int("randomized", scan.Randomized).
		Int("advanced", scan.Advanced).
		Int("deferred_to_parent", scan.DeferredToParent).
		Int("changes", scan.Changes).
		Dur("duration", scan.End.Sub(scan.Start)).
		Msg("Availability scan finished")

	if err := e.deliver(ctx, report, partial); err != nil {
		return report, err
	}

	return report, nil
}

// rootParentType is what the root of a pass inherits: DOWN when its parent
// is known to be down, UP otherwise.
func (e *AvailabilityExecutor) rootParentType(r *models.Resource) models.AvailabilityType {
	if r.ParentUUID == "" {
		return models.AvailabilityUp
	}

	if parent := e.m.Container(r.ParentUUID); parent != nil && parent.AvailabilityType() == models.AvailabilityDown {
		return models.AvailabilityDown
	}

	return models.AvailabilityUp
}

func (e *AvailabilityExecutor) deliver(ctx context.Context, report *models.AvailabilityReport, partial bool) error {
	m := e.m

	if m.standalone {
		if !partial && !report.ChangesOnly {
			e.setChangesOnly()
		}

		return nil
	}

	if len(report.Entries) == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.ServerCallTimeout)
	defer cancel()

	ack, err := m.server.SendAvailabilityReport(cctx, report)
	if err != nil {
		e.SendFullReportNextTime()
		return fmt.Errorf("failed to send availability report: %w", err)
	}

	if !partial && !report.ChangesOnly {
		e.setChangesOnly()
	}

	if ack != nil && ack.FullReportRequired {
		e.SendFullReportNextTime()
	}

	return nil
}

func (e *AvailabilityExecutor) setChangesOnly() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.changesOnly = true
}

// check handles one node and recurses into its children. forced is true for
// forced passes and for the descendants of a resource that just came UP.
func (e *AvailabilityExecutor) check(
	ctx context.Context,
	scan *AvailabilityScan,
	report *models.AvailabilityReport,
	n *scanNode,
	parentType models.AvailabilityType,
	forced, ignoreOwnSchedule bool,
) {
	if ctx.Err() != nil {
		return
	}

	c, r := n.container, n.resource

	if r.ID == 0 || r.InventoryStatus != models.InventoryStatusCommitted || c.SyncState() != container.SyncSynchronized {
		return
	}

	scan.Resources++

	previous := c.Availability()

	var due, deferToParent bool
	if ignoreOwnSchedule {
		due = true
	} else {
		due, deferToParent = e.isDue(scan, c, forced)
	}

	var current models.AvailabilityType

	if deferToParent || parentType == models.AvailabilityDown {
		current = parentType
		scan.DeferredToParent++
	} else {
		if !due && (forced || (scan.Full && previous == nil)) {
			due = true
		}

		if due {
			var ok bool
			if current, ok = e.liveCheck(ctx, scan, c, previous); !ok {
				return
			}
		} else {
			current = lastOrUp(previous)
		}
	}

	forceChildren := forced

	if current.IsKnown() {
		changed := previous == nil || previous.Type != current
		now := e.m.clock.Now()

		if changed || scan.Full {
			report.Add(models.Availability{
				ResourceID:   r.ID,
				ResourceUUID: r.UUID,
				Type:         current,
				Timestamp:    now,
			})
		}

		if changed {
			c.UpdateAvailability(current, now)
			scan.Changes++

			// a transition to UP re-checks the subtree
			if current == models.AvailabilityUp {
				forceChildren = true
			}
		}
	}

	for _, child := range n.children {
		e.check(ctx, scan, report, child, current, forceChildren, false)
	}
}

// isDue applies the resource's schedule. A resource seen for the first time
// (or on a forced pass) with an enabled schedule gets a random next check in
// [scan start, scan start + interval) and is not due on this pass.
func (e *AvailabilityExecutor) isDue(scan *AvailabilityScan, c *container.Container, forced bool) (due, deferToParent bool) {
	sched := c.AvailabilitySchedule()
	if sched != nil && !sched.Enabled {
		return false, true
	}

	next, scheduled := c.NextAvailabilityCheck()

	if !scheduled || forced {
		if sched == nil || sched.Interval <= 0 {
			return true, false
		}

		c.SetNextAvailabilityCheck(scan.Start.Add(e.jitter(sched.Interval.Std())))
		scan.Randomized++

		return false, false
	}

	if scan.Start.Before(next) {
		return false, false
	}

	if sched == nil || sched.Interval <= 0 {
		c.SetNextAvailabilityCheck(time.Time{})
		return true, false
	}

	interval := sched.Interval.Std()

	following := next.Add(interval)
	if !following.After(scan.Start) {
		following = scan.Start.Add(interval)
	}

	c.SetNextAvailabilityCheck(following)
	scan.Advanced++

	return true, false
}

func (e *AvailabilityExecutor) jitter(interval time.Duration) time.Duration {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	return time.Duration(e.rnd.Int64N(int64(interval)))
}

// liveCheck asks the component through its availability proxy, activating
// it first if needed. Failures are reported to the server and count as DOWN.
// ok is false when the pass was cancelled before an answer came back.
func (e *AvailabilityExecutor) liveCheck(
	ctx context.Context, scan *AvailabilityScan, c *container.Container, previous *models.Availability,
) (avail models.AvailabilityType, ok bool) {
	m := e.m

	if c.ComponentState() != container.ComponentStarted {
		if err := m.activate(ctx, c); err != nil {
			if ctx.Err() != nil {
				return models.AvailabilityUnknown, false
			}

			m.logger.Debug().Err(err).Str("resource_uuid", c.UUID()).Msg("Resource is not started, reporting DOWN")
		}

		if c.ComponentState() != container.ComponentStarted {
			return models.AvailabilityDown, true
		}
	}

	proxy := c.AvailabilityProxy()
	if proxy == nil {
		return models.AvailabilityDown, true
	}

	scan.LiveChecks++

	avail, err := proxy.GetAvailability(ctx)
	if ctx.Err() != nil {
		m.logger.Debug().Str("resource_uuid", c.UUID()).Msg("Availability scan cancelled during live check")
		return models.AvailabilityUnknown, false
	}

	if err != nil {
		r := c.Resource()

		m.logger.Warn().Err(err).Str("resource_uuid", r.UUID).Msg("Availability check failed")

		resErr := &models.ResourceError{
			ResourceID: r.ID,
			Type:       models.ResourceErrorAvailabilityCheck,
			Summary:    err.Error(),
			Time:       m.clock.Now(),
		}

		var timeout *container.TimeoutError
		if errors.As(err, &timeout) {
			resErr.Detail = timeout.Stack
		}

		m.reportResourceError(ctx, resErr)

		return models.AvailabilityDown, true
	}

	if avail == models.AvailabilityUnknown {
		return lastOrUp(previous), true
	}

	return avail, true
}

func lastOrUp(previous *models.Availability) models.AvailabilityType {
	if previous == nil {
		return models.AvailabilityUp
	}

	return previous.Type
}
