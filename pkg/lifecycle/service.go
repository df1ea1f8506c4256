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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var errShutdownTimeout = errors.New("timed out waiting for service to stop")

// Service is a long-running component managed by RunService.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
}

// ServiceOptions controls RunService.
type ServiceOptions struct {
	Service         Service
	Logger          logger.Logger
	ShutdownTimeout time.Duration
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// RunService starts the service, blocks until ctx is cancelled or a shutdown
// signal arrives, then stops it within the shutdown timeout.
func RunService(ctx context.Context, opts *ServiceOptions) error {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCtx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	if err := opts.Service.Start(sigCtx); err != nil {
		return fmt.Errorf("failed to start %s: %w", opts.Service.Name(), err)
	}

	log.Info().Str("service", opts.Service.Name()).Msg("Service started")

	<-sigCtx.Done()

	log.Info().Str("service", opts.Service.Name()).Msg("Shutdown requested")

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- opts.Service.Stop(stopCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to stop %s: %w", opts.Service.Name(), err)
		}
	case <-stopCtx.Done():
		return errShutdownTimeout
	}

	log.Info().Str("service", opts.Service.Name()).Msg("Service stopped")

	return nil
}
