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

// Package lifecycle wires process-level concerns (logging, metrics and
// signal-driven shutdown) around a long-running Service.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
)

// InitializeLogger configures the process-wide logger. A nil config uses defaults.
func InitializeLogger(ctx context.Context, config *logger.Config) error {
	if config == nil {
		config = logger.DefaultConfig()
	}

	if err := logger.Init(ctx, config); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// CreateLogger returns an injectable logger built from config without global state.
func CreateLogger(ctx context.Context, config *logger.Config) (logger.Logger, error) {
	zl, err := logger.New(ctx, config)
	if err != nil {
		return nil, err
	}

	return logger.NewZerologLogger(zl), nil
}

// CreateComponentLogger is CreateLogger with a "component" field attached.
func CreateComponentLogger(ctx context.Context, component string, config *logger.Config) (logger.Logger, error) {
	zl, err := logger.New(ctx, config)
	if err != nil {
		return nil, err
	}

	return logger.NewZerologLogger(zl.With().Str("component", component).Logger()), nil
}

// ShutdownLogger flushes pending log and metric exports.
func ShutdownLogger() error {
	return logger.Shutdown()
}
