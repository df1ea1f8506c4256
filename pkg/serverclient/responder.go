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

	"github.com/nats-io/nats.go"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

const defaultHandlerTimeout = 30 * time.Second

// Responder answers NATSClient requests by calling a ServerService. It is the
// server half of the protocol and is used by test harnesses and server stubs.
type Responder struct {
	subs   []*nats.Subscription
	svc    ServerService
	logger logger.Logger
}

// Serve subscribes to every request subject under prefix.
func Serve(nc *nats.Conn, prefix string, svc ServerService, log logger.Logger) (*Responder, error) {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}

	r := &Responder{svc: svc, logger: log}

	handlers := map[string]func(ctx context.Context, data []byte) (interface{}, error){
		opInventoryReport: func(ctx context.Context, data []byte) (interface{}, error) {
			var report models.InventoryReport
			if err := json.Unmarshal(data, &report); err != nil {
				return nil, err
			}

			return svc.SendInventoryReport(ctx, &report)
		},
		opAvailabilityReport: func(ctx context.Context, data []byte) (interface{}, error) {
			var report models.AvailabilityReport
			if err := json.Unmarshal(data, &report); err != nil {
				return nil, err
			}

			return svc.SendAvailabilityReport(ctx, &report)
		},
		opFetchResources: func(ctx context.Context, data []byte) (interface{}, error) {
			var req fetchRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, err
			}

			return svc.FetchResources(ctx, req.IDs, req.Recursive)
		},
		opResourceError: func(ctx context.Context, data []byte) (interface{}, error) {
			var resErr models.ResourceError
			if err := json.Unmarshal(data, &resErr); err != nil {
				return nil, err
			}

			return nil, svc.ReportResourceError(ctx, &resErr)
		},
		opClearConfigError: func(ctx context.Context, data []byte) (interface{}, error) {
			var req clearErrorRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, err
			}

			return nil, svc.ClearResourceConfigError(ctx, req.ResourceID)
		},
		opNotifyNewlyCommitted: func(ctx context.Context, data []byte) (interface{}, error) {
			var req committedRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, err
			}

			return nil, svc.NotifyNewlyCommitted(ctx, req.IDs)
		},
	}

	for op, handler := range handlers {
		sub, err := nc.Subscribe(subject(prefix, op), r.wrap(op, handler))
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", op, err)
		}

		r.subs = append(r.subs, sub)
	}

	if err := nc.Flush(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to flush subscriptions: %w", err)
	}

	return r, nil
}

func (r *Responder) wrap(op string, handler func(ctx context.Context, data []byte) (interface{}, error)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultHandlerTimeout)
		defer cancel()

		var out reply

		result, err := handler(ctx, msg.Data)
		if err != nil {
			out.Error = err.Error()
		} else if result != nil {
			data, mErr := json.Marshal(result)
			if mErr != nil {
				out.Error = mErr.Error()
			} else {
				out.Data = data
			}
		}

		payload, err := json.Marshal(out)
		if err != nil {
			r.logger.Error().Err(err).Str("op", op).Msg("Failed to encode reply")
			return
		}

		if err := msg.Respond(payload); err != nil {
			r.logger.Warn().Err(err).Str("op", op).Msg("Failed to send reply")
		}
	}
}

// Close removes every subscription.
func (r *Responder) Close() error {
	var errs []error

	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}

	r.subs = nil

	return errors.Join(errs...)
}
