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

package builtin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
)

const (
	configPort = "port"
	maxPort    = 65535
)

var (
	errInvalidPort      = errors.New("invalid port")
	errPortHostRequired = errors.New("port host is required")
)

func validatePort(port int) error {
	if port <= 0 || port > maxPort {
		return fmt.Errorf("%w: %d", errInvalidPort, port)
	}

	return nil
}

type portDiscovery struct{}

// DiscoverResources reports the ports listed in the parent process's
// plugin configuration.
func (portDiscovery) DiscoverResources(_ context.Context, dc *plugin.DiscoveryContext) ([]*models.DiscoveredResource, error) {
	if dc.ParentResource == nil {
		return nil, nil
	}

	cfg := dc.ParentResource.PluginConfiguration

	raw := cfg[configPorts]
	if raw == "" {
		return nil, nil
	}

	host := cfg[configHost]
	if host == "" {
		host = defaultPortHost
	}

	var out []*models.DiscoveredResource

	for _, field := range strings.Split(raw, ",") {
		port, err := strconv.Atoi(strings.TrimSpace(field))
		if err == nil {
			err = validatePort(port)
		}

		if err != nil {
			dc.Logger.Warn().Err(err).Str("ports", raw).Msg("Skipping invalid port")
			continue
		}

		addr := net.JoinHostPort(host, strconv.Itoa(port))

		out = append(out, &models.DiscoveredResource{
			ResourceType:        TypePort,
			ResourceKey:         addr,
			Name:                fmt.Sprintf("%s port %d", dc.ParentResource.Name, port),
			PluginConfiguration: models.Configuration{configHost: host, configPort: strconv.Itoa(port)},
		})
	}

	return out, nil
}

// portComponent is UP while a TCP connection to its address succeeds.
type portComponent struct {
	timeout time.Duration

	mu   sync.Mutex
	addr string
}

func newPortComponent(timeout time.Duration) *portComponent {
	return &portComponent{timeout: timeout}
}

func (c *portComponent) Start(_ context.Context, rc *plugin.ResourceContext) error {
	host := rc.PluginConfiguration[configHost]
	if host == "" {
		return plugin.NewInvalidPluginConfigurationError(errPortHostRequired)
	}

	port, err := strconv.Atoi(rc.PluginConfiguration[configPort])
	if err != nil {
		return plugin.NewInvalidPluginConfigurationError(fmt.Errorf("%w: %q", errInvalidPort, rc.PluginConfiguration[configPort]))
	}

	if err := validatePort(port); err != nil {
		return plugin.NewInvalidPluginConfigurationError(err)
	}

	c.mu.Lock()
	c.addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.mu.Unlock()

	return nil
}

func (*portComponent) Stop(context.Context) error {
	return nil
}

func (c *portComponent) GetAvailability(ctx context.Context) (models.AvailabilityType, error) {
	c.mu.Lock()
	addr := c.addr
	c.mu.Unlock()

	d := net.Dialer{Timeout: c.timeout}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return models.AvailabilityUnknown, ctx.Err()
		}

		return models.AvailabilityDown, nil
	}

	if err := conn.Close(); err != nil {
		return models.AvailabilityUp, fmt.Errorf("closing connection to %s: %w", addr, err)
	}

	return models.AvailabilityUp, nil
}
