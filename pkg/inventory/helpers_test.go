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
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/serviceradar-inventory/pkg/container"
	"github.com/carverauto/serviceradar-inventory/pkg/logger"
	"github.com/carverauto/serviceradar-inventory/pkg/models"
	"github.com/carverauto/serviceradar-inventory/pkg/plugin"
	"github.com/carverauto/serviceradar-inventory/pkg/serverclient"
)

const (
	typeHost    = "host"
	typeServer  = "server"
	typeService = "service"
)

// fakeClock has a settable Now; tickers are real.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func (*fakeClock) Ticker(d time.Duration) Ticker {
	return realClock{}.Ticker(d)
}

// fakePlugin backs one resource type. Behavior is keyed by resource key so
// that every component built by the factory can be steered from the test.
type fakePlugin struct {
	mu          sync.Mutex
	avail       map[string]models.AvailabilityType
	availErr    map[string]error
	startErr    map[string]error
	availDelay  map[string]time.Duration
	availCalls  map[string]int
	starts      map[string]int
	stops       map[string]int
	discovered  []*models.DiscoveredResource
	discoverErr error
	discoveries int
	values      map[string]map[string]float64
	valueCalls  map[string][]string
	config      map[string]models.Configuration
	operations  []string
}

func newFakePlugin() *fakePlugin {
	return &fakePlugin{
		avail:      make(map[string]models.AvailabilityType),
		availErr:   make(map[string]error),
		startErr:   make(map[string]error),
		availDelay: make(map[string]time.Duration),
		availCalls: make(map[string]int),
		starts:     make(map[string]int),
		stops:      make(map[string]int),
		values:     make(map[string]map[string]float64),
		valueCalls: make(map[string][]string),
		config:     make(map[string]models.Configuration),
	}
}

func (p *fakePlugin) factory() plugin.ResourceComponent {
	return &fakeComponent{p: p}
}

func (p *fakePlugin) set(fn func(p *fakePlugin)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(p)
}

func (p *fakePlugin) calls(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.availCalls[key]
}

func (p *fakePlugin) startCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.starts[key]
}

func (p *fakePlugin) stopCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stops[key]
}

func (p *fakePlugin) DiscoverResources(context.Context, *plugin.DiscoveryContext) ([]*models.DiscoveredResource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.discoveries++

	out := make([]*models.DiscoveredResource, 0, len(p.discovered))
	for _, d := range p.discovered {
		cp := *d
		out = append(out, &cp)
	}

	return out, p.discoverErr
}

type fakeComponent struct {
	p   *fakePlugin
	key string
}

func (c *fakeComponent) Start(_ context.Context, rc *plugin.ResourceContext) error {
	c.key = rc.Resource.ResourceKey

	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	c.p.starts[c.key]++

	return c.p.startErr[c.key]
}

func (c *fakeComponent) Stop(context.Context) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	c.p.stops[c.key]++

	return nil
}

func (c *fakeComponent) GetAvailability(ctx context.Context) (models.AvailabilityType, error) {
	c.p.mu.Lock()
	c.p.availCalls[c.key]++
	delay := c.p.availDelay[c.key]
	c.p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.AvailabilityUnknown, ctx.Err()
		}
	}

	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	if err := c.p.availErr[c.key]; err != nil {
		return models.AvailabilityUnknown, err
	}

	if a, ok := c.p.avail[c.key]; ok {
		return a, nil
	}

	return models.AvailabilityUp, nil
}

func (c *fakeComponent) GetValues(_ context.Context, names []string) (map[string]float64, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	c.p.valueCalls[c.key] = append(c.p.valueCalls[c.key], names...)

	out := make(map[string]float64, len(names))

	for _, name := range names {
		if v, ok := c.p.values[c.key][name]; ok {
			out[name] = v
		}
	}

	return out, nil
}

func (c *fakeComponent) InvokeOperation(_ context.Context, name string, _ models.Configuration) (string, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	c.p.operations = append(c.p.operations, c.key+":"+name)

	return name + " done", nil
}

func (c *fakeComponent) LoadResourceConfiguration(context.Context) (models.Configuration, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	return c.p.config[c.key].Clone(), nil
}

func (c *fakeComponent) UpdateResourceConfiguration(_ context.Context, cfg models.Configuration) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	c.p.config[c.key] = cfg

	return nil
}

func (p *fakePlugin) collected(key string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.valueCalls[key])
}

type testEnv struct {
	m        *Manager
	clock    *fakeClock
	registry *plugin.Registry
	host     *fakePlugin
	server   *fakePlugin
	service  *fakePlugin
	mock     *serverclient.MockServerService
}

type envOptions struct {
	standalone     bool
	withServer     bool
	serverInterval time.Duration
	dataDir        string
	disabled       []string
	proxy          container.AvailabilityProxyConfig
	opts           []Option
}

func newRegistry(t *testing.T, host, server, service *fakePlugin, serverInterval time.Duration) *plugin.Registry {
	t.Helper()

	registry := plugin.NewRegistry()

	require.NoError(t, registry.Register(&plugin.Definition{
		Type:         &models.ResourceType{Name: typeHost, Category: models.CategoryPlatform},
		NewComponent: host.factory,
		Discovery:    host,
	}))
	require.NoError(t, registry.Register(&plugin.Definition{
		Type: &models.ResourceType{
			Name:                 typeServer,
			Category:             models.CategoryServer,
			AvailabilityInterval: models.Duration(serverInterval),
		},
		NewComponent: server.factory,
		Discovery:    server,
	}))
	require.NoError(t, registry.Register(&plugin.Definition{
		Type: &models.ResourceType{
			Name:        typeService,
			Category:    models.CategoryService,
			ParentTypes: []string{typeServer},
		},
		NewComponent: service.factory,
		Discovery:    service,
	}))

	return registry
}

func newTestEnv(t *testing.T, o envOptions) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:   newFakeClock(),
		host:    newFakePlugin(),
		server:  newFakePlugin(),
		service: newFakePlugin(),
	}

	env.host.discovered = []*models.DiscoveredResource{{ResourceType: typeHost, ResourceKey: "host-1", Name: "host-1"}}
	env.registry = newRegistry(t, env.host, env.server, env.service, o.serverInterval)

	var server serverclient.ServerService

	if o.withServer {
		ctrl := gomock.NewController(t)
		env.mock = serverclient.NewMockServerService(ctrl)
		server = env.mock
	}

	cfg := Config{
		AgentName:                "agent-1",
		Standalone:               o.standalone,
		DataDir:                  o.dataDir,
		ComponentStartTimeout:    time.Second,
		ComponentStopTimeout:     time.Second,
		DiscoveryTimeout:         time.Second,
		ServerCallTimeout:        time.Second,
		ServiceScanRetryInterval: 10 * time.Millisecond,
		DisabledTypes:            o.disabled,
		AvailabilityProxy:        o.proxy,
	}

	opts := append([]Option{WithClock(env.clock)}, o.opts...)
	env.m = NewManager(cfg, env.registry, server, logger.NewTestLogger(), opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = env.m.Shutdown(ctx)
	})

	return env
}

// addCommitted puts a synchronized, committed resource with server id id
// under parentUUID and returns its container's resource.
func (env *testEnv) addCommitted(t *testing.T, parentUUID, resourceType, key string, id int) *models.Resource {
	t.Helper()

	candidate := models.NewResource(resourceType, key, key)
	candidate.ID = id
	candidate.InventoryStatus = models.InventoryStatusCommitted

	r, created, err := env.m.MergeResource(context.Background(), parentUUID, candidate)
	require.NoError(t, err)
	require.True(t, created)

	c := env.m.Container(r.UUID)
	c.SetSyncState(container.SyncSynchronized)

	return r
}

// commitPlatform gives the platform a server id as a sync would.
func (env *testEnv) commitPlatform(t *testing.T, id int) *models.Resource {
	t.Helper()

	env.m.mu.Lock()
	c := env.m.containers[env.m.platformUUID]
	r := env.m.mutateLocked(c, func(r *models.Resource) {
		r.ID = id
		r.InventoryStatus = models.InventoryStatusCommitted
	})
	c.SetSyncState(container.SyncSynchronized)
	env.m.mu.Unlock()

	return r
}

// recordingListener collects every event.
type recordingListener struct {
	mu          sync.Mutex
	added       []string
	removed     []string
	activated   []string
	deactivated []string
}

func (l *recordingListener) ResourcesAdded(_ context.Context, rs []*models.Resource) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range rs {
		l.added = append(l.added, r.ResourceKey)
	}
}

func (l *recordingListener) ResourcesRemoved(_ context.Context, rs []*models.Resource) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range rs {
		l.removed = append(l.removed, r.ResourceKey)
	}
}

func (l *recordingListener) ResourceActivated(_ context.Context, r *models.Resource) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.activated = append(l.activated, r.ResourceKey)
}

func (l *recordingListener) ResourceDeactivated(_ context.Context, r *models.Resource) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.deactivated = append(l.deactivated, r.ResourceKey)
}

func (l *recordingListener) snapshot() (added, removed, activated, deactivated []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.added...), append([]string(nil), l.removed...),
		append([]string(nil), l.activated...), append([]string(nil), l.deactivated...)
}
