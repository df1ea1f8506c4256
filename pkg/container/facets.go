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
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

// ProxyOptions configures a facet proxy.
type ProxyOptions struct {
	Lock          LockMode
	Timeout       time.Duration
	OnlyIfStarted bool
}

// AvailabilityFacet is the availability half of a ResourceComponent.
type AvailabilityFacet interface {
	GetAvailability(ctx context.Context) (models.AvailabilityType, error)
}

type facetProxy struct {
	c     *Container
	facet string
	opts  ProxyOptions
}

func (p facetProxy) invokeOptions(op string) InvokeOptions {
	return InvokeOptions{
		Op:            p.facet + "." + op,
		Lock:          p.opts.Lock,
		Timeout:       p.opts.Timeout,
		OnlyIfStarted: p.opts.OnlyIfStarted,
	}
}

// String runs inline without touching the facet lock.
func (p facetProxy) String() string {
	return fmt.Sprintf("%s proxy [lock=%s, timeout=%s] for %s", p.facet, p.opts.Lock, p.opts.Timeout, p.c.UUID())
}

func (c *Container) newFacetProxy(facet string, opts ProxyOptions) (facetProxy, error) {
	if opts.OnlyIfStarted && c.ComponentState() != ComponentStarted {
		return facetProxy{}, ErrComponentNotStarted
	}

	return facetProxy{c: c, facet: facet, opts: opts}, nil
}

func facetOf[F any](comp plugin.ResourceComponent, name string) (F, error) {
	f, ok := comp.(F)
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s", ErrFacetNotSupported, name)
	}

	return f, nil
}

type availabilityFacetProxy struct{ facetProxy }

// AvailabilityFacet returns a proxy that calls GetAvailability directly on
// the invocation pool, without the async caching of AvailabilityProxy.
func (c *Container) AvailabilityFacet(opts ProxyOptions) (AvailabilityFacet, error) {
	p, err := c.newFacetProxy("availability", opts)
	if err != nil {
		return nil, err
	}

	return availabilityFacetProxy{p}, nil
}

func (p availabilityFacetProxy) GetAvailability(ctx context.Context) (models.AvailabilityType, error) {
	return Invoke(ctx, p.c, p.invokeOptions("GetAvailability"),
		func(ctx context.Context, comp plugin.ResourceComponent) (models.AvailabilityType, error) {
			if comp == nil {
				return models.AvailabilityUnknown, ErrComponentNotStarted
			}

			return comp.GetAvailability(ctx)
		})
}

type operationFacetProxy struct{ facetProxy }

// OperationFacet returns a proxy for components implementing plugin.OperationFacet.
func (c *Container) OperationFacet(opts ProxyOptions) (plugin.OperationFacet, error) {
	p, err := c.newFacetProxy("operation", opts)
	if err != nil {
		return nil, err
	}

	return operationFacetProxy{p}, nil
}

func (p operationFacetProxy) InvokeOperation(ctx context.Context, name string, params models.Configuration) (string, error) {
	return Invoke(ctx, p.c, p.invokeOptions("InvokeOperation"),
		func(ctx context.Context, comp plugin.ResourceComponent) (string, error) {
			f, err := facetOf[plugin.OperationFacet](comp, "operation")
			if err != nil {
				return "", err
			}

			return f.InvokeOperation(ctx, name, params.Clone())
		})
}

type measurementFacetProxy struct{ facetProxy }

// MeasurementFacet returns a proxy for components implementing plugin.MeasurementFacet.
func (c *Container) MeasurementFacet(opts ProxyOptions) (plugin.MeasurementFacet, error) {
	p, err := c.newFacetProxy("measurement", opts)
	if err != nil {
		return nil, err
	}

	return measurementFacetProxy{p}, nil
}

func (p measurementFacetProxy) GetValues(ctx context.Context, names []string) (map[string]float64, error) {
	return Invoke(ctx, p.c, p.invokeOptions("GetValues"),
		func(ctx context.Context, comp plugin.ResourceComponent) (map[string]float64, error) {
			f, err := facetOf[plugin.MeasurementFacet](comp, "measurement")
			if err != nil {
				return nil, err
			}

			return f.GetValues(ctx, names)
		})
}

type configurationFacetProxy struct{ facetProxy }

// ConfigurationFacet returns a proxy for components implementing plugin.ConfigurationFacet.
func (c *Container) ConfigurationFacet(opts ProxyOptions) (plugin.ConfigurationFacet, error) {
	p, err := c.newFacetProxy("configuration", opts)
	if err != nil {
		return nil, err
	}

	return configurationFacetProxy{p}, nil
}

func (p configurationFacetProxy) LoadResourceConfiguration(ctx context.Context) (models.Configuration, error) {
	return Invoke(ctx, p.c, p.invokeOptions("LoadResourceConfiguration"),
		func(ctx context.Context, comp plugin.ResourceComponent) (models.Configuration, error) {
			f, err := facetOf[plugin.ConfigurationFacet](comp, "configuration")
			if err != nil {
				return nil, err
			}

			return f.LoadResourceConfiguration(ctx)
		})
}

func (p configurationFacetProxy) UpdateResourceConfiguration(ctx context.Context, cfg models.Configuration) error {
	_, err := Invoke(ctx, p.c, p.invokeOptions("UpdateResourceConfiguration"),
		func(ctx context.Context, comp plugin.ResourceComponent) (struct{}, error) {
			f, err := facetOf[plugin.ConfigurationFacet](comp, "configuration")
			if err != nil {
				return struct{}{}, err
			}

			return struct{}{}, f.UpdateResourceConfiguration(ctx, cfg.Clone())
		})

	return err
}
