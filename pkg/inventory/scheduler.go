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
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// PeriodicTask runs fn after an initial delay and then every period. A run
// never overlaps another: ticks that arrive during a run are dropped and
// triggers are coalesced into a single pending run.
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	period       time.Duration
	clock        Clock
	logger       logger.Logger
	fn           func(ctx context.Context) error

	trigger   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	running   atomic.Bool
	runs      atomic.Int64
	cancel    context.CancelFunc
}

// NewPeriodicTask creates a stopped task. A period of zero or less runs the
// task only when triggered.
func NewPeriodicTask(
	name string, initialDelay, period time.Duration, clock Clock, log logger.Logger, fn func(ctx context.Context) error,
) *PeriodicTask {
	return &PeriodicTask{
		name:         name,
		initialDelay: initialDelay,
		period:       period,
		clock:        clock,
		logger:       log,
		fn:           fn,
		trigger:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start launches the task loop. It returns immediately.
func (t *PeriodicTask) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)

	go func() {
		defer t.wg.Done()

		t.loop(ctx)
	}()
}

// Trigger asks for a run as soon as the current one, if any, completes.
func (t *PeriodicTask) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// Running reports whether fn is executing right now.
func (t *PeriodicTask) Running() bool {
	return t.running.Load()
}

// Runs is the number of completed runs.
func (t *PeriodicTask) Runs() int64 {
	return t.runs.Load()
}

// Stop ends the loop and cancels a run in progress. It waits for the loop
// to exit or ctx to expire.
func (t *PeriodicTask) Stop(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.done)

		if t.cancel != nil {
			t.cancel()
		}
	})

	exited := make(chan struct{})

	go func() {
		t.wg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stopping %s task: %w", t.name, ctx.Err())
	}
}

func (t *PeriodicTask) loop(ctx context.Context) {
	if !t.waitInitialDelay(ctx) {
		return
	}

	var tick <-chan time.Time

	if t.period > 0 {
		ticker := t.clock.Ticker(t.period)
		defer ticker.Stop()

		tick = ticker.Chan()
	}

	t.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-tick:
			t.runOnce(ctx)
		case <-t.trigger:
			t.runOnce(ctx)
		}
	}
}

// waitInitialDelay blocks for the initial delay. A trigger cuts it short.
func (t *PeriodicTask) waitInitialDelay(ctx context.Context) bool {
	if t.initialDelay <= 0 {
		return true
	}

	delay := t.clock.Ticker(t.initialDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.done:
		return false
	case <-delay.Chan():
		return true
	case <-t.trigger:
		return true
	}
}

func (t *PeriodicTask) runOnce(ctx context.Context) {
	t.running.Store(true)

	defer func() {
		t.running.Store(false)
		t.runs.Add(1)

		if r := recover(); r != nil {
			t.logger.Error().Str("task", t.name).Interface("panic", r).Msg("Periodic task panicked")
		}
	}()

	start := t.clock.Now()

	if err := t.fn(ctx); err != nil {
		t.logger.Warn().Err(err).Str("task", t.name).Msg("Periodic task failed")
		return
	}

	t.logger.Debug().Str("task", t.name).Dur("elapsed", t.clock.Now().Sub(start)).Msg("Periodic task completed")
}

// ScheduleDiscovery starts periodic discovery: a server scan followed by a
// service scan of the whole tree.
func (m *Manager) ScheduleDiscovery(ctx context.Context, initialDelay, period time.Duration) error {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()

	if m.discoveryTask != nil {
		return fmt.Errorf("%w: discovery", ErrAlreadyRunning)
	}

	m.discoveryTask = NewPeriodicTask("discovery", initialDelay, period, m.clock, m.logger, m.runDiscovery)
	m.discoveryTask.Start(ctx)

	m.logger.Info().Dur("initial_delay", initialDelay).Dur("period", period).Msg("Scheduled discovery")

	return nil
}

// ScheduleAvailability starts periodic availability passes.
func (m *Manager) ScheduleAvailability(ctx context.Context, initialDelay, period time.Duration) error {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()

	if m.availTask != nil {
		return fmt.Errorf("%w: availability", ErrAlreadyRunning)
	}

	m.availTask = NewPeriodicTask("availability", initialDelay, period, m.clock, m.logger, func(ctx context.Context) error {
		_, err := m.avail.Run(ctx)
		return err
	})
	m.availTask.Start(ctx)

	m.logger.Info().Dur("initial_delay", initialDelay).Dur("period", period).Msg("Scheduled availability scans")

	return nil
}

// ScheduleMeasurements starts periodic measurement passes. Each pass reads
// only the schedules that are due, so period bounds their resolution.
func (m *Manager) ScheduleMeasurements(ctx context.Context, initialDelay, period time.Duration) error {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()

	if m.measureTask != nil {
		return fmt.Errorf("%w: measurements", ErrAlreadyRunning)
	}

	m.measureTask = NewPeriodicTask("measurements", initialDelay, period, m.clock, m.logger, func(ctx context.Context) error {
		_, err := m.measure.Collect(ctx)
		return err
	})
	m.measureTask.Start(ctx)

	m.logger.Info().Dur("initial_delay", initialDelay).Dur("period", period).Msg("Scheduled measurement collection")

	return nil
}

func (m *Manager) runDiscovery(ctx context.Context) error {
	if _, err := m.discovery.ExecuteServerScan(ctx); err != nil {
		return fmt.Errorf("server scan: %w", err)
	}

	if _, err := m.discovery.ExecuteServiceScan(ctx, m.rootUUID()); err != nil {
		return fmt.Errorf("service scan: %w", err)
	}

	return nil
}

func (m *Manager) stopSchedulers(ctx context.Context) error {
	m.tasksMu.Lock()
	tasks := []*PeriodicTask{m.discoveryTask, m.availTask, m.measureTask}
	m.discoveryTask, m.availTask, m.measureTask = nil, nil, nil
	m.tasksMu.Unlock()

	var firstErr error

	for _, t := range tasks {
		if t == nil {
			continue
		}

		if err := t.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// ExecuteServerScanImmediately runs a server scan on the caller's goroutine.
func (m *Manager) ExecuteServerScanImmediately(ctx context.Context) (*models.InventoryReport, error) {
	return m.discovery.ExecuteServerScan(ctx)
}

// ExecuteServiceScanImmediately runs a service scan of the whole tree on the
// caller's goroutine.
func (m *Manager) ExecuteServiceScanImmediately(ctx context.Context) (*models.InventoryReport, error) {
	return m.discovery.ExecuteServiceScan(ctx, m.rootUUID())
}

// ExecuteAvailabilityScanImmediately runs a pass from the platform on the
// caller's goroutine.
func (m *Manager) ExecuteAvailabilityScanImmediately(
	ctx context.Context, forced bool,
) (*models.AvailabilityReport, error) {
	if forced {
		return m.avail.RunForced(ctx)
	}

	return m.avail.Run(ctx)
}

// CollectMeasurementsImmediately runs a measurement pass on the caller's goroutine.
func (m *Manager) CollectMeasurementsImmediately(ctx context.Context) ([]models.MeasurementValue, error) {
	return m.measure.Collect(ctx)
}

// RequestAvailabilityCheck checks uuid live, leaving its descendants to
// their schedules, and reports any change.
func (m *Manager) RequestAvailabilityCheck(ctx context.Context, uuid string) (*models.AvailabilityReport, error) {
	return m.avail.RunFrom(ctx, uuid, true)
}

// requestAvailabilityPass gets a forced pass done soon: through the
// scheduler when it runs, inline otherwise.
func (m *Manager) requestAvailabilityPass(ctx context.Context) {
	m.tasksMu.Lock()
	task := m.availTask
	m.tasksMu.Unlock()

	m.avail.ForceNextScan()

	if task != nil {
		task.Trigger()
		return
	}

	if _, err := m.avail.Run(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Availability pass after sync failed")
	}
}
