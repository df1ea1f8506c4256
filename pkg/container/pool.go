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
	"sync"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultInvocationPoolSize   = 100
	DefaultAvailabilityPoolSize = 100
)

// Pool bounds how many component calls run at once. Submission never blocks:
// each task waits for a slot on its own goroutine.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool returns a pool with size slots. Non-positive sizes use the invocation default.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultInvocationPoolSize
	}

	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Go runs fn once a slot is free. If ctx ends before a slot frees up fn is
// never called.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		fn(ctx)
	}()
}

// Wait blocks until every submitted task has returned or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pools are the worker pools shared by every container.
type Pools struct {
	// Invocation runs general facet calls, activation and discovery.
	Invocation *Pool
	// Availability runs live availability checks only.
	Availability *Pool
}

// NewPools builds both pools.
func NewPools(invocationSize, availabilitySize int) *Pools {
	if availabilitySize <= 0 {
		availabilitySize = DefaultAvailabilityPoolSize
	}

	return &Pools{
		Invocation:   NewPool(invocationSize),
		Availability: NewPool(availabilitySize),
	}
}
