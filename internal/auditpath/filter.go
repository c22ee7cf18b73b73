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

package auditpath

import (
	"fmt"
	"strings"
	"time"
)

// DefaultExtension is the file extension of SQL Server extended event files.
const DefaultExtension = ".xel"

// Filter selects audit blobs for one server and database over an inclusive
// range of days. All string comparisons are case-sensitive.
type Filter struct {
	Server    string
	Database  string
	Start     time.Time
	End       time.Time
	Extension string
}

// NewFilter builds a Filter, normalizing Start and End to calendar days.
func NewFilter(server, database string, start, end time.Time, extension string) (Filter, error) {
	if server == "" {
		return Filter{}, fmt.Errorf("server name is required")
	}
	if database == "" {
		return Filter{}, fmt.Errorf("database name is required")
	}
	if extension == "" {
		extension = DefaultExtension
	}
	f := Filter{
		Server:    server,
		Database:  database,
		Start:     Day(start),
		End:       Day(end),
		Extension: extension,
	}
	if f.End.Before(f.Start) {
		return Filter{}, fmt.Errorf("end date %s is before start date %s",
			f.End.Format(time.DateOnly), f.Start.Format(time.DateOnly))
	}
	return f, nil
}

// Prefix is the listing prefix shared by every blob the filter can match.
func (f Filter) Prefix() string {
	return f.Server + "/" + f.Database + "/"
}

// Match reports whether name is selected. A non-nil error means the name
// could not be evaluated (ErrMalformedPath, ErrUnparsableDate) and should
// be skipped; it is never fatal to the enumeration.
func (f Filter) Match(name string) (bool, error) {
	parts := strings.SplitN(name, "/", minSegments+1)
	if len(parts) < minSegments {
		return false, fmt.Errorf("%w: %q has %d segments", ErrMalformedPath, name, len(parts))
	}
	if parts[0] != f.Server || parts[1] != f.Database {
		return false, nil
	}
	if !strings.HasSuffix(name, f.extension()) {
		return false, nil
	}

	day, err := ParseDate(parts[3])
	if err != nil {
		return false, fmt.Errorf("%q: %w", name, err)
	}
	return f.InRange(day), nil
}

// InRange reports whether the day of t lies within [Start, End].
func (f Filter) InRange(t time.Time) bool {
	day := Day(t)
	return !day.Before(f.Start) && !day.After(f.End)
}

func (f Filter) extension() string {
	if f.Extension == "" {
		return DefaultExtension
	}
	return f.Extension
}
