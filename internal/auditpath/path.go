// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package auditpath parses and filters SQL audit blob names laid out as
// {server}/{database}/{auditName}/{date}/{filename}.
package auditpath

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedPath is returned for names with fewer than four segments.
	ErrMalformedPath = errors.New("malformed audit blob path")
	// ErrUnparsableDate is returned when the date segment is not a date.
	ErrUnparsableDate = errors.New("unparsable date segment")
)

const minSegments = 4

// dateLayouts are tried in order against the date segment.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102",
	"01-02-2006",
}

// Path is a parsed audit blob name.
type Path struct {
	Name      string
	Server    string
	Database  string
	AuditName string
	Date      time.Time
	Filename  string
}

// Parse splits an audit blob name into its parts. Only the first four
// segments are required; the filename is whatever follows the date.
func Parse(name string) (Path, error) {
	parts := strings.Split(name, "/")
	if len(parts) < minSegments {
		return Path{}, fmt.Errorf("%w: %q has %d segments", ErrMalformedPath, name, len(parts))
	}

	date, err := ParseDate(parts[3])
	if err != nil {
		return Path{}, fmt.Errorf("%q: %w", name, err)
	}

	p := Path{
		Name:      name,
		Server:    parts[0],
		Database:  parts[1],
		AuditName: parts[2],
		Date:      date,
	}
	if len(parts) > minSegments {
		p.Filename = strings.Join(parts[minSegments:], "/")
	}
	return p, nil
}

// ParseDate parses a date segment and returns the calendar day it names,
// as midnight UTC. A segment with an offset keeps its own local date; it is
// not shifted into UTC first.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableDate, s)
}

// Day returns midnight UTC of the calendar day t falls on in t's location.
// Day(2020-08-03T23:30:00-05:00) is 2020-08-03, not 2020-08-04.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
