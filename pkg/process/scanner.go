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

package process

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/carverauto/serviceradar-inventory/pkg/logger"
)

// Info is the subset of a process table entry queries can look at.
type Info struct {
	PID      int32    `json:"pid"`
	PPID     int32    `json:"ppid"`
	Name     string   `json:"name"`
	Cmdline  []string `json:"cmdline,omitempty"`
	Username string   `json:"username,omitempty"`
}

// Match pairs a process with the query it satisfied.
type Match struct {
	Query   string `json:"query"`
	Process Info   `json:"process"`
}

// Lister returns the current process table.
type Lister func(ctx context.Context) ([]Info, error)

// Scanner reads the process table and evaluates queries against it.
type Scanner struct {
	list   Lister
	logger logger.Logger
}

// NewScanner returns a Scanner backed by gopsutil.
func NewScanner(log logger.Logger) *Scanner {
	return &Scanner{list: listProcesses, logger: log}
}

// NewScannerWithLister returns a Scanner reading processes from list.
func NewScannerWithLister(list Lister, log logger.Logger) *Scanner {
	return &Scanner{list: list, logger: log}
}

// Snapshot reads the process table once.
func (s *Scanner) Snapshot(ctx context.Context) ([]Info, error) {
	procs, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("processes", len(procs)).Msg("Process table snapshot taken")

	return procs, nil
}

// Scan takes a snapshot and filters it with the given raw queries. Queries
// that do not parse are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, rawQueries []string) ([]Match, error) {
	queries := make([]*Query, 0, len(rawQueries))

	for _, raw := range rawQueries {
		q, err := ParseQuery(raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("query", raw).Msg("Skipping invalid process query")
			continue
		}

		queries = append(queries, q)
	}

	if len(queries) == 0 {
		return nil, nil
	}

	procs, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	return Filter(procs, queries), nil
}

// Filter returns one Match per process and query pair that matched.
func Filter(procs []Info, queries []*Query) []Match {
	var matches []Match

	for _, q := range queries {
		for i := range procs {
			if q.Matches(&procs[i]) {
				matches = append(matches, Match{Query: q.String(), Process: procs[i]})
			}
		}
	}

	return matches
}

// Exists reports whether pid is still running.
func Exists(ctx context.Context, pid int32) (bool, error) {
	ok, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return false, mapError(err)
	}

	return ok, nil
}

func listProcesses(ctx context.Context) ([]Info, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	infos := make([]Info, 0, len(procs))

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited between listing and inspection
			continue
		}

		info := Info{PID: p.Pid, Name: name}

		if cmdline, err := p.CmdlineSliceWithContext(ctx); err == nil {
			info.Cmdline = cmdline
		}

		if user, err := p.UsernameWithContext(ctx); err == nil {
			info.Username = user
		}

		if ppid, err := p.PpidWithContext(ctx); err == nil {
			info.PPID = ppid
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// gopsutil reports unimplemented platforms with an unexported error value.
func mapError(err error) error {
	if errors.Is(err, ErrUnsupported) || strings.Contains(err.Error(), "not implemented yet") {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	return err
}
