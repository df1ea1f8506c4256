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

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceMatches(t *testing.T) {
	base := &Resource{ID: 7, UUID: "u-1", ResourceType: "process", ResourceKey: "nginx"}

	tests := []struct {
		name  string
		other *Resource
		want  bool
	}{
		{name: "same id", other: &Resource{ID: 7, UUID: "other"}, want: true},
		{name: "different id wins over uuid", other: &Resource{ID: 8, UUID: "u-1"}, want: false},
		{name: "uuid when other has no id", other: &Resource{UUID: "u-1"}, want: true},
		{name: "type and key", other: &Resource{UUID: "u-2", ResourceType: "process", ResourceKey: "nginx"}, want: true},
		{name: "different key", other: &Resource{UUID: "u-2", ResourceType: "process", ResourceKey: "sshd"}, want: false},
		{name: "nil", other: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Matches(tt.other))
		})
	}
}

func TestResourceChildren(t *testing.T) {
	r := NewResource("platform", "host", "host")

	r.AddChild("a")
	r.AddChild("b")
	r.AddChild("a")

	assert.Equal(t, []string{"a", "b"}, r.Children)
	assert.True(t, r.HasChild("b"))

	r.RemoveChild("a")
	assert.Equal(t, []string{"b"}, r.Children)
}

func TestResourceCloneIsDeep(t *testing.T) {
	r := NewResource("process", "nginx", "nginx")
	r.PluginConfiguration = Configuration{"pid": "10"}
	r.AddChild("c1")

	c := r.Clone()
	c.PluginConfiguration["pid"] = "11"
	c.Children[0] = "c2"

	assert.Equal(t, "10", r.PluginConfiguration["pid"])
	assert.Equal(t, "c1", r.Children[0])
	assert.Nil(t, (*Resource)(nil).Clone())
}

func TestNewResourceAssignsUUID(t *testing.T) {
	a := NewResource("port", "80", "")
	b := NewResource("port", "80", "")

	assert.NotEmpty(t, a.UUID)
	assert.NotEqual(t, a.UUID, b.UUID)
	assert.Equal(t, InventoryStatusNew, a.InventoryStatus)
	assert.Zero(t, a.ID)
}

func TestDiscoveredResourceValidate(t *testing.T) {
	require.ErrorIs(t, (&DiscoveredResource{ResourceKey: "k"}).Validate(), ErrMissingResourceType)
	require.ErrorIs(t, (&DiscoveredResource{ResourceType: "t"}).Validate(), ErrMissingResourceKey)
	require.NoError(t, (&DiscoveredResource{ResourceType: "t", ResourceKey: "k"}).Validate())
}

func TestDiscoveredResourceToResource(t *testing.T) {
	d := &DiscoveredResource{
		ResourceType:        "port",
		ResourceKey:         "tcp:443",
		Version:             "1",
		PluginConfiguration: Configuration{"port": "443"},
	}

	r := d.ToResource()

	assert.Equal(t, "tcp:443", r.Name, "name defaults to key")
	assert.Equal(t, "1", r.Version)
	assert.Equal(t, "443", r.PluginConfiguration["port"])

	d.PluginConfiguration["port"] = "80"
	assert.Equal(t, "443", r.PluginConfiguration["port"])
}

func TestResourceTypeSchedule(t *testing.T) {
	unscheduled := &ResourceType{Name: "platform", Category: CategoryPlatform}
	assert.Nil(t, unscheduled.AvailabilitySchedule())
	assert.False(t, unscheduled.IsTopLevel())

	server := &ResourceType{Name: "process", Category: CategoryServer, AvailabilityInterval: Duration(time.Minute)}
	sched := server.AvailabilitySchedule()
	require.NotNil(t, sched)
	assert.True(t, sched.Enabled)
	assert.Equal(t, Duration(time.Minute), sched.Interval)
	assert.True(t, server.IsTopLevel())

	service := &ResourceType{
		Name:                 "port",
		Category:             CategoryService,
		ParentTypes:          []string{"process"},
		AvailabilityInterval: Duration(time.Minute),
		AvailabilityDisabled: true,
	}
	assert.False(t, service.AvailabilitySchedule().Enabled)
	assert.True(t, service.HasParentType("process"))
	assert.False(t, service.IsTopLevel())

	unscheduledDisabled := &ResourceType{Name: "socket", Category: CategoryService, AvailabilityDisabled: true}
	sched = unscheduledDisabled.AvailabilitySchedule()
	require.NotNil(t, sched)
	assert.False(t, sched.Enabled)
	assert.Zero(t, sched.Interval)
}

func TestAvailabilityTypeIsKnown(t *testing.T) {
	assert.True(t, AvailabilityUp.IsKnown())
	assert.True(t, AvailabilityDown.IsKnown())
	assert.False(t, AvailabilityUnknown.IsKnown())
	assert.False(t, AvailabilityType("").IsKnown())
}

func TestDurationJSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Std())

	require.ErrorIs(t, json.Unmarshal([]byte(`"later"`), &d), ErrInvalidDuration)
	require.ErrorIs(t, json.Unmarshal([]byte(`[]`), &d), ErrInvalidDuration)

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestSyncInfoWalk(t *testing.T) {
	tree := &SyncInfo{UUID: "root", Children: []*SyncInfo{
		{UUID: "a", Children: []*SyncInfo{{UUID: "a1"}}},
		{UUID: "b"},
	}}

	var seen []string
	tree.Walk(func(s *SyncInfo) { seen = append(seen, s.UUID) })

	assert.Equal(t, []string{"root", "a", "a1", "b"}, seen)
	assert.NotPanics(t, func() { (*SyncInfo)(nil).Walk(func(*SyncInfo) {}) })
}
