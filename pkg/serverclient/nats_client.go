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

package serverclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

// NATSClient implements ServerService with JSON request/reply over NATS.
// Transient failures (no responders, request timeouts) are retried with
// exponential backoff; errors returned by the server are not.
type NATSClient struct {
	nc      *nats.Conn
	ownConn bool
	cfg     Config
	logger  logger.Logger
}

var _ ServerService = (*NATSClient)(nil)

// NewNATSClient connects to cfg.URL.
func NewNATSClient(cfg *Config, clientName string, log logger.Logger) (*NATSClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	}

	if cfg.TLS != nil {
		tlsConfig, err := cfg.TLS.tlsConfig()
		if err != nil {
			return nil, err
		}

		opts = append(opts, nats.Secure(tlsConfig))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	c := newNATSClient(nc, *cfg, log)
	c.ownConn = true

	return c, nil
}

// NewNATSClientWithConn uses an existing connection, which the caller keeps owning.
func NewNATSClientWithConn(nc *nats.Conn, cfg *Config, log logger.Logger) (*NATSClient, error) {
	if cfg.URL == "" {
		cfg.URL = nc.ConnectedUrl()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return newNATSClient(nc, *cfg, log), nil
}

func newNATSClient(nc *nats.Conn, cfg Config, log logger.Logger) *NATSClient {
	return &NATSClient{nc: nc, cfg: cfg, logger: log}
}

// Close drains the connection if the client opened it.
func (c *NATSClient) Close() error {
	if c.ownConn && c.nc != nil {
		return c.nc.Drain()
	}

	return nil
}

func (c *NATSClient) SendInventoryReport(ctx context.Context, report *models.InventoryReport) (*models.SyncInfo, error) {
	return request[*models.SyncInfo](ctx, c, opInventoryReport, report)
}

func (c *NATSClient) SendAvailabilityReport(
	ctx context.Context, report *models.AvailabilityReport,
) (*models.AvailabilityAck, error) {
	ack, err := request[*models.AvailabilityAck](ctx, c, opAvailabilityReport, report)
	if err != nil {
		return nil, err
	}

	if ack == nil {
		ack = &models.AvailabilityAck{}
	}

	return ack, nil
}

func (c *NATSClient) FetchResources(ctx context.Context, ids []int, recursive bool) ([]*models.Resource, error) {
	return request[[]*models.Resource](ctx, c, opFetchResources, fetchRequest{IDs: ids, Recursive: recursive})
}

func (c *NATSClient) ReportResourceError(ctx context.Context, resErr *models.ResourceError) error {
	_, err := request[struct{}](ctx, c, opResourceError, resErr)
	return err
}

func (c *NATSClient) ClearResourceConfigError(ctx context.Context, resourceID int) error {
	_, err := request[struct{}](ctx, c, opClearConfigError, clearErrorRequest{ResourceID: resourceID})
	return err
}

func (c *NATSClient) NotifyNewlyCommitted(ctx context.Context, ids []int) error {
	_, err := request[struct{}](ctx, c, opNotifyNewlyCommitted, committedRequest{IDs: ids})
	return err
}

func request[T any](ctx context.Context, c *NATSClient, op string, payload interface{}) (T, error) {
	var zero T

	data, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	subj := subject(c.cfg.SubjectPrefix, op)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval.Std()

	return backoff.Retry(ctx, func() (T, error) {
		return requestOnce[T](ctx, c, op, subj, data)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug().Err(err).Str("subject", subj).Dur("retry_in", next).Msg("Retrying server request")
		}),
	)
}

func requestOnce[T any](ctx context.Context, c *NATSClient, op, subj string, data []byte) (T, error) {
	var out T

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout.Std())
	defer cancel()

	msg, err := c.nc.RequestWithContext(reqCtx, subj, data)
	if err != nil {
		if isTransient(err) && ctx.Err() == nil {
			return out, fmt.Errorf("%s request failed: %w", op, err)
		}

		return out, backoff.Permanent(fmt.Errorf("%s request failed: %w", op, err))
	}

	if len(msg.Data) == 0 {
		return out, backoff.Permanent(fmt.Errorf("%s: %w", op, ErrEmptyReply))
	}

	var r reply
	if err := json.Unmarshal(msg.Data, &r); err != nil {
		return out, backoff.Permanent(fmt.Errorf("failed to decode %s reply: %w", op, err))
	}

	if r.Error != "" {
		return out, backoff.Permanent(&RemoteError{Op: op, Message: r.Error})
	}

	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &out); err != nil {
			return out, backoff.Permanent(fmt.Errorf("failed to decode %s reply data: %w", op, err))
		}
	}

	return out, nil
}

func isTransient(err error) bool {
	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, context.DeadlineExceeded)
}
