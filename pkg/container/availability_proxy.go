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

package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

const (
	DefaultAvailabilitySyncTimeout  = time.Second
	DefaultAvailabilityAsyncTimeout = time.Minute
	DefaultSyncTimeoutThreshold     = 5
)

// AvailabilityProxyConfig tunes an AvailabilityProxy.
type AvailabilityProxyConfig struct {
	// SyncTimeout is how long GetAvailability waits for a fresh check.
	SyncTimeout time.Duration
	// AsyncTimeout is how long a check may stay in flight before it is
	// cancelled and resubmitted.
	AsyncTimeout time.Duration
	// SyncTimeoutThreshold consecutive sync timeouts stop synchronous waits
	// until the resource goes UP again.
	SyncTimeoutThreshold int
}

// DefaultAvailabilityProxyConfig returns 1s sync, 60s async and a threshold of 5.
func DefaultAvailabilityProxyConfig() AvailabilityProxyConfig {
	return AvailabilityProxyConfig{
		SyncTimeout:          DefaultAvailabilitySyncTimeout,
		AsyncTimeout:         DefaultAvailabilityAsyncTimeout,
		SyncTimeoutThreshold: DefaultSyncTimeoutThreshold,
	}
}

func (c AvailabilityProxyConfig) withDefaults() AvailabilityProxyConfig {
	d := DefaultAvailabilityProxyConfig()

	if c.SyncTimeout <= 0 {
		c.SyncTimeout = d.SyncTimeout
	}

	if c.AsyncTimeout <= 0 {
		c.AsyncTimeout = d.AsyncTimeout
	}

	if c.SyncTimeoutThreshold <= 0 {
		c.SyncTimeoutThreshold = d.SyncTimeoutThreshold
	}

	return c
}

type availabilityCheck struct {
	done      chan struct{}
	submitted time.Time
	cancel    context.CancelFunc
	avail     models.AvailabilityType
	err       error
}

// AvailabilityProxy calls a component's GetAvailability with at most one
// check in flight. Callers get a fresh value when the check finishes within
// the sync timeout and the last known value otherwise.
type AvailabilityProxy struct {
	c      *Container
	cfg    AvailabilityProxyConfig
	now    func() time.Time
	logger logger.Logger

	mu           sync.Mutex
	inflight     *availabilityCheck
	last         models.AvailabilityType
	syncTimeouts int
	syncDisabled bool
	// wentUp is set by a transition to UP and makes the next sync timeout
	// restart the count.
	wentUp bool
}

func newAvailabilityProxy(c *Container, cfg AvailabilityProxyConfig, log logger.Logger) *AvailabilityProxy {
	return &AvailabilityProxy{
		c:      c,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: log,
		last:   models.AvailabilityUnknown,
	}
}

// GetAvailability returns UP or DOWN from a finished check, or the last known
// value (UNKNOWN before the first result) while a check is still running. If
// the running check has exceeded the async timeout it is cancelled and
// resubmitted, and a *TimeoutError is returned with the last known value.
// Errors from the component are returned as is.
func (p *AvailabilityProxy) GetAvailability(ctx context.Context) (models.AvailabilityType, error) {
	p.mu.Lock()

	if check := p.inflight; check != nil {
		select {
		case <-check.done:
			p.inflight = nil
			defer p.mu.Unlock()

			return p.harvest(check)
		default:
		}

		last := p.last

		if p.now().Sub(check.submitted) > p.cfg.AsyncTimeout {
			check.cancel()
			p.inflight = p.submit()
			p.mu.Unlock()

			return last, &TimeoutError{Op: "getAvailability", Timeout: p.cfg.AsyncTimeout}
		}

		p.mu.Unlock()

		return last, nil
	}

	check := p.submit()
	p.inflight = check

	if p.syncDisabled {
		last := p.last
		p.mu.Unlock()

		return last, nil
	}

	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.SyncTimeout)
	defer timer.Stop()

	select {
	case <-check.done:
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.inflight == check {
			p.inflight = nil
		}

		avail, err := p.harvest(check)
		if err == nil {
			p.syncTimeouts = 0
		}

		return avail, err
	case <-timer.C:
		p.mu.Lock()
		defer p.mu.Unlock()

		p.recordSyncTimeout()

		return p.last, nil
	case <-ctx.Done():
		p.mu.Lock()
		defer p.mu.Unlock()

		return p.last, ctx.Err()
	}
}

// submit starts a check on the availability pool. Callers hold p.mu.
func (p *AvailabilityProxy) submit() *availabilityCheck {
	ctx, cancel := context.WithCancel(context.Background())

	check := &availabilityCheck{
		done:      make(chan struct{}),
		submitted: p.now(),
		cancel:    cancel,
	}

	go func() {
		defer close(check.done)
		defer cancel()

		check.avail, check.err = Invoke(ctx, p.c,
			InvokeOptions{Op: "getAvailability", Lock: LockRead, OnlyIfStarted: true, Pool: p.c.pools.Availability},
			func(ctx context.Context, comp plugin.ResourceComponent) (models.AvailabilityType, error) {
				return comp.GetAvailability(ctx)
			})
	}()

	return check
}

// harvest consumes a finished check. Callers hold p.mu.
func (p *AvailabilityProxy) harvest(check *availabilityCheck) (models.AvailabilityType, error) {
	if check.err != nil {
		return p.last, check.err
	}

	avail := check.avail
	if avail != models.AvailabilityUp && avail != models.AvailabilityDown {
		avail = models.AvailabilityDown
	}

	if avail == models.AvailabilityUp && p.last != models.AvailabilityUp {
		p.syncDisabled = false
		p.wentUp = true
	}

	p.last = avail

	return avail, nil
}

// recordSyncTimeout counts a sync wait that ran out. Callers hold p.mu.
func (p *AvailabilityProxy) recordSyncTimeout() {
	if p.wentUp {
		p.wentUp = false
		p.syncTimeouts = 0

		return
	}

	p.syncTimeouts++

	if p.syncTimeouts >= p.cfg.SyncTimeoutThreshold && !p.syncDisabled {
		p.syncDisabled = true

		p.logger.Warn().
			Str("resource_uuid", p.c.UUID()).
			Int("sync_timeouts", p.syncTimeouts).
			Msg("Availability checks keep exceeding the sync timeout, switching to async only")
	}
}

// SyncTimeouts is the current count of consecutive sync timeouts.
func (p *AvailabilityProxy) SyncTimeouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.syncTimeouts
}

// SyncDisabled reports whether synchronous waits are currently skipped.
func (p *AvailabilityProxy) SyncDisabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.syncDisabled
}

// Cancel abandons any in-flight check.
func (p *AvailabilityProxy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight != nil {
		p.inflight.cancel()
		p.inflight = nil
	}
}

func (p *AvailabilityProxy) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return fmt.Sprintf("AvailabilityProxy[resource=%s, last=%s, sync_timeouts=%d, sync_disabled=%t, in_flight=%t]",
		p.c.UUID(), p.last, p.syncTimeouts, p.syncDisabled, p.inflight != nil)
}
