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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

const (
	meterName = "serviceradar-inventory"

	metricAvailScans        = "inventory.avail.scans"
	metricAvailChecks       = "inventory.avail.checks"
	metricAvailChanges      = "inventory.avail.changes"
	metricAvailScanDuration = "inventory.avail.scan.duration"
	metricDiscovered        = "inventory.discovery.resources"
	metricMeasurementValue  = "inventory.measurement.value"
)

type inventoryMetrics struct {
	scans        metric.Int64Counter
	checks       metric.Int64Counter
	changes      metric.Int64Counter
	scanDuration metric.Float64Histogram
	discovered   metric.Int64Counter
	measurement  metric.Float64Gauge
}

func newInventoryMetrics(mp metric.MeterProvider) *inventoryMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(meterName)
	m := &inventoryMetrics{}

	var err error

	if m.scans, err = meter.Int64Counter(metricAvailScans,
		metric.WithDescription("Availability scan passes")); err != nil {
		otel.Handle(err)
	}

	if m.checks, err = meter.Int64Counter(metricAvailChecks,
		metric.WithDescription("Live availability checks made by scans")); err != nil {
		otel.Handle(err)
	}

	if m.changes, err = meter.Int64Counter(metricAvailChanges,
		metric.WithDescription("Availability changes detected by scans")); err != nil {
		otel.Handle(err)
	}

	if m.scanDuration, err = meter.Float64Histogram(metricAvailScanDuration,
		metric.WithDescription("Duration of availability scan passes"),
		metric.WithUnit("s")); err != nil {
		otel.Handle(err)
	}

	if m.discovered, err = meter.Int64Counter(metricDiscovered,
		metric.WithDescription("Resources added to the inventory by discovery")); err != nil {
		otel.Handle(err)
	}

	if m.measurement, err = meter.Float64Gauge(metricMeasurementValue,
		metric.WithDescription("Latest value read from a resource measurement schedule")); err != nil {
		otel.Handle(err)
	}

	return m
}

func (m *inventoryMetrics) recordScan(ctx context.Context, scan *AvailabilityScan) {
	attrs := metric.WithAttributes(
		attribute.Bool("full", scan.Full),
		attribute.Bool("forced", scan.Forced),
	)

	if m.scans != nil {
		m.scans.Add(ctx, 1, attrs)
	}

	if m.checks != nil {
		m.checks.Add(ctx, int64(scan.LiveChecks), attrs)
	}

	if m.changes != nil {
		m.changes.Add(ctx, int64(scan.Changes), attrs)
	}

	if m.scanDuration != nil {
		m.scanDuration.Record(ctx, scan.End.Sub(scan.Start).Seconds(), attrs)
	}
}

func (m *inventoryMetrics) recordDiscovered(ctx context.Context, scanKind string, count int) {
	if m.discovered == nil || count == 0 {
		return
	}

	m.discovered.Add(ctx, int64(count), metric.WithAttributes(attribute.String("scan", scanKind)))
}

func (m *inventoryMetrics) recordMeasurements(ctx context.Context, values []models.MeasurementValue) {
	if m.measurement == nil {
		return
	}

	for _, v := range values {
		m.measurement.Record(ctx, v.Value, metric.WithAttributes(
			attribute.String("resource_uuid", v.ResourceUUID),
			attribute.String("name", v.Name),
		))
	}
}
