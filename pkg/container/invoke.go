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
	"bytes"
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

// InvokeOptions controls a single component call.
type InvokeOptions struct {
	Op   string
	Lock LockMode
	// Timeout of zero waits as long as ctx allows.
	Timeout       time.Duration
	OnlyIfStarted bool
	// Pool defaults to the container's invocation pool.
	Pool *Pool
}

type invokeResult[T any] struct {
	value T
	err   error
}

// Invoke runs fn against the container's component on a pool worker, holding
// the facet lock in the requested mode, and waits for it up to opts.Timeout.
//
// The worker takes and releases the lock itself, so a call the caller gave up
// on keeps the lock until the plugin code actually returns. Errors from fn are
// returned unchanged; panics become *PanicError.
func Invoke[T any](
	ctx context.Context, c *Container, opts InvokeOptions,
	fn func(ctx context.Context, comp plugin.ResourceComponent) (T, error),
) (T, error) {
	var zero T

	if opts.OnlyIfStarted && c.ComponentState() != ComponentStarted {
		return zero, ErrComponentNotStarted
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	pool := opts.Pool
	if pool == nil {
		pool = c.pools.Invocation
	}

	results := make(chan invokeResult[T], 1)
	worker := make(chan uint64, 1)

	pool.Go(callCtx, func(workCtx context.Context) {
		worker <- goroutineID()

		unlock := c.lockFacet(opts.Lock)
		defer unlock()

		// the caller may have given up while we waited for the lock
		if workCtx.Err() != nil {
			return
		}

		if opts.OnlyIfStarted && c.ComponentState() != ComponentStarted {
			results <- invokeResult[T]{err: ErrComponentNotStarted}
			return
		}

		defer func() {
			if r := recover(); r != nil {
				results <- invokeResult[T]{err: &PanicError{Op: opts.Op, Value: r, Stack: string(debug.Stack())}}
			}
		}()

		v, err := fn(workCtx, c.Component())
		results <- invokeResult[T]{value: v, err: err}
	})

	select {
	case r := <-results:
		return r.value, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		te := &TimeoutError{Op: opts.Op, Timeout: opts.Timeout}

		select {
		case id := <-worker:
			te.Stack = goroutineStack(id)
		default:
		}

		c.logger.Warn().
			Str("resource_uuid", c.UUID()).
			Str("op", opts.Op).
			Dur("timeout", opts.Timeout).
			Str("lock", opts.Lock.String()).
			Msg("Component call timed out")

		return zero, te
	}
}

func (c *Container) lockFacet(mode LockMode) func() {
	switch mode {
	case LockRead:
		c.facetLock.RLock()
		return c.facetLock.RUnlock
	case LockWrite:
		c.facetLock.Lock()
		return c.facetLock.Unlock
	default:
		return func() {}
	}
}

//nolint:gochecknoglobals // constant byte prefix
var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, goroutinePrefix)

	if i := bytes.IndexByte(buf, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(buf[:i]), 10, 64); err == nil {
			return id
		}
	}

	return 0
}

// goroutineStack returns the stack of goroutine id from a full dump.
func goroutineStack(id uint64) string {
	if id == 0 {
		return ""
	}

	buf := make([]byte, 1<<20)
	buf = buf[:runtime.Stack(buf, true)]
	header := []byte(fmt.Sprintf("goroutine %d ", id))

	for _, block := range bytes.Split(buf, []byte("\n\n")) {
		if bytes.HasPrefix(block, header) {
			return string(block)
		}
	}

	return ""
}
