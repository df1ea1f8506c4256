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

// Package process evaluates declarative process-match queries against the
// operating system process table.
package process

import (
	"fmt"
	"regexp"
	"strings"
)

type field string

const (
	fieldName    field = "name"
	fieldCmdline field = "cmdline"
	fieldUser    field = "user"
)

type criterion struct {
	field field
	exact string
	re    *regexp.Regexp
}

// Query is a parsed process-match query. The syntax is a comma separated list
// of criteria, all of which must hold:
//
//	name=<exact>    process name equals value
//	name~<regex>    process name matches regex
//	cmdline~<regex> space-joined command line matches regex
//	user=<name>     process owner equals value
type Query struct {
	raw      string
	criteria []criterion
}

// ParseQuery parses a query string.
func ParseQuery(s string) (*Query, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, ErrEmptyQuery
	}

	q := &Query{raw: raw}

	for _, part := range strings.Split(raw, ",") {
		c, err := parseCriterion(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", raw, err)
		}

		q.criteria = append(q.criteria, c)
	}

	return q, nil
}

func parseCriterion(part string) (criterion, error) {
	idx := strings.IndexAny(part, "=~")
	if idx <= 0 || idx == len(part)-1 {
		return criterion{}, fmt.Errorf("%w: %q", ErrInvalidCriterion, part)
	}

	f := field(strings.ToLower(strings.TrimSpace(part[:idx])))
	op := part[idx]
	value := strings.TrimSpace(part[idx+1:])

	switch {
	case op == '=' && (f == fieldName || f == fieldUser):
		return criterion{field: f, exact: value}, nil
	case op == '~' && (f == fieldName || f == fieldCmdline):
		re, err := regexp.Compile(value)
		if err != nil {
			return criterion{}, fmt.Errorf("%w: %w", ErrInvalidCriterion, err)
		}

		return criterion{field: f, re: re}, nil
	default:
		return criterion{}, fmt.Errorf("%w: %q", ErrInvalidCriterion, part)
	}
}

// Matches reports whether every criterion holds for p.
func (q *Query) Matches(p *Info) bool {
	for _, c := range q.criteria {
		if !c.matches(p) {
			return false
		}
	}

	return true
}

func (q *Query) String() string {
	return q.raw
}

func (c criterion) matches(p *Info) bool {
	var value string

	switch c.field {
	case fieldName:
		value = p.Name
	case fieldCmdline:
		value = strings.Join(p.Cmdline, " ")
	case fieldUser:
		value = p.Username
	}

	if c.re != nil {
		return c.re.MatchString(value)
	}

	return value == c.exact
}
