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
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// MeasurementCollector reads the due measurement schedules of started
// resources through their measurement facet and records the values.
type MeasurementCollector struct {
	m *Manager

	runMu sync.Mutex

	mu   sync.Mutex
	next map[string]time.Time
	last []models.MeasurementValue
}

func newMeasurementCollector(m *Manager) *MeasurementCollector {
	return &MeasurementCollector{m: m, next: make(map[string]time.Time)}
}

// Collect runs one pass over the tree. A schedule read on this pass is due
// again one interval later; a schedule seen for the first time is due now.
func (mc *MeasurementCollector) Collect(ctx context.Context) ([]models.MeasurementValue, error) {
	mc.runMu.Lock()
	defer mc.runMu.Unlock()

	m := mc.m

	rootUUID := m.rootUUID()
	if rootUUID == "" {
		return nil, ErrNotInitialized
	}

	now := m.clock.Now()
	seen := make(map[string]struct{})

	var values []models.MeasurementValue

	for _, c := range m.subtree(rootUUID) {
		if err := ctx.Err(); err != nil {
			return values, err
		}

		names := mc.due(c, now, seen)
		if len(names) == 0 {
			continue
		}

		values = append(values, mc.read(ctx, c, names, now)...)
	}

	mc.mu.Lock()
	for key := range mc.next {
		if _, ok := seen[key]; !ok {
			delete(mc.next, key)
		}
	}

	mc.last = values
	mc.mu.Unlock()

	m.metrics.recordMeasurements(ctx, values)

	m.logger.Debug().Int("values", len(values)).Msg("Measurement pass finished")

	return values, nil
}

// Last returns the values read by the latest pass.
func (mc *MeasurementCollector) Last() []models.MeasurementValue {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return slices.Clone(mc.last)
}

// due returns the names of c's enabled schedules whose time has come and
// moves them to their next slot.
func (mc *MeasurementCollector) due(c *container.Container, now time.Time, seen map[string]struct{}) []string {
	schedules := c.MeasurementSchedules()
	if len(schedules) == 0 {
		return nil
	}

	started := c.ComponentState() == container.ComponentStarted

	mc.mu.Lock()
	defer mc.mu.Unlock()

	var names []string

	for _, s := range schedules {
		if !s.Enabled || s.Interval <= 0 {
			continue
		}

		key := c.UUID() + "/" + s.Name
		seen[key] = struct{}{}

		if next, ok := mc.next[key]; ok && now.Before(next) {
			continue
		}

		if !started {
			continue
		}

		mc.next[key] = now.Add(s.Interval.Std())
		names = append(names, s.Name)
	}

	return names
}

func (mc *MeasurementCollector) read(
	ctx context.Context, c *container.Container, names []string, now time.Time,
) []models.MeasurementValue {
	m := mc.m
	r := c.Resource()

	facet, err := c.MeasurementFacet(container.ProxyOptions{
		Lock:          container.LockRead,
		Timeout:       m.cfg.MeasurementTimeout,
		OnlyIfStarted: true,
	})
	if err != nil {
		m.logger.Debug().Err(err).Str("resource_uuid", r.UUID).Msg("Skipping measurements of a stopped resource")
		return nil
	}

	got, err := facet.GetValues(ctx, names)

	switch {
	case errors.Is(err, container.ErrFacetNotSupported):
		m.logger.Debug().Str("resource_uuid", r.UUID).Str("resource_type", r.ResourceType).
			Msg("Resource has measurement schedules but no measurement facet")

		return nil
	case err != nil:
		m.logger.Warn().Err(err).Str("resource_uuid", r.UUID).Strs("names", names).Msg("Measurement collection failed")
		return nil
	}

	out := make([]models.MeasurementValue, 0, len(got))

	for _, name := range slices.Sorted(maps.Keys(got)) {
		out = append(out, models.MeasurementValue{
			ResourceID:   r.ID,
			ResourceUUID: r.UUID,
			Name:         name,
			Value:        got[name],
			Timestamp:    now,
		})
	}

	return out
}
