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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFilter(t *testing.T) Filter {
	t.Helper()
	f, err := NewFilter("srv", "db",
		time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 8, 4, 0, 0, 0, 0, time.UTC),
		"")
	require.NoError(t, err)
	return f
}

func TestFilterMatch(t *testing.T) {
	f := testFilter(t)

	tests := []struct {
		name string
		blob string
		want bool
	}{
		{"before range", "srv/db/auditX/2020-08-02/f1.xel", false},
		{"lower boundary", "srv/db/auditX/2020-08-03/f1.xel", true},
		{"upper boundary", "srv/db/auditX/2020-08-04/f1.xel", true},
		{"after range", "srv/db/auditX/2020-08-05/f1.xel", false},
		{"other server", "srv2/db/auditX/2020-08-03/f1.xel", false},
		{"server case differs", "SRV/db/auditX/2020-08-03/f1.xel", false},
		{"database case differs", "srv/DB/auditX/2020-08-03/f1.xel", false},
		{"wrong extension", "srv/db/auditX/2020-08-03/f1.xml", false},
		{"extension case differs", "srv/db/auditX/2020-08-03/f1.XEL", false},
		{"extension not suffix", "srv/db/auditX/2020-08-03/f1.xel.bak", false},
		{"time of day on upper boundary", "srv/db/auditX/2020-08-04T23:59:59/f1.xel", true},
		{"nested filename", "srv/db/auditX/2020-08-03/sub/f1.xel", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Match(tt.blob)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterMatchSkips(t *testing.T) {
	f := testFilter(t)

	_, err := f.Match("srv/db/f1.xel")
	assert.ErrorIs(t, err, ErrMalformedPath)

	_, err = f.Match("srv/db/auditX/not-a-date/f1.xel")
	assert.ErrorIs(t, err, ErrUnparsableDate)

	// Names for other servers are never date-parsed.
	ok, err := f.Match("other/db/auditX/not-a-date/f1.xel")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestNewFilter(t *testing.T) {
	day := time.Date(2020, 8, 3, 15, 30, 0, 0, time.UTC)

	f, err := NewFilter("srv", "db", day, day, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultExtension, f.Extension)
	assert.Equal(t, time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC), f.Start)
	assert.Equal(t, "srv/db/", f.Prefix())

	_, err = NewFilter("srv", "db", day, day.AddDate(0, 0, -1), "")
	assert.Error(t, err)

	_, err = NewFilter("", "db", day, day, "")
	assert.Error(t, err)

	_, err = NewFilter("srv", "", day, day, "")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	p, err := Parse("srv/db/auditX/2020-08-02/f1.xel")
	require.NoError(t, err)
	assert.Equal(t, "srv", p.Server)
	assert.Equal(t, "db", p.Database)
	assert.Equal(t, "auditX", p.AuditName)
	assert.Equal(t, time.Date(2020, 8, 2, 0, 0, 0, 0, time.UTC), p.Date)
	assert.Equal(t, "f1.xel", p.Filename)

	p, err = Parse("srv/db/auditX/2020-08-02")
	require.NoError(t, err)
	assert.Empty(t, p.Filename)

	_, err = Parse("srv/db")
	assert.ErrorIs(t, err, ErrMalformedPath)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2020, 8, 2, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2020-08-02",
		"2020-08-02T10:11:12Z",
		"2020-08-02T10:11:12",
		"2020-08-02 10:11:12",
		"20200802",
		"08-02-2020",
		" 2020-08-02 ",
	} {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseDate("yesterday")
	assert.ErrorIs(t, err, ErrUnparsableDate)
}

func TestParseDateKeepsLocalDay(t *testing.T) {
	for s, want := range map[string]time.Time{
		"2020-08-03T23:30:00-05:00": time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC),
		"2020-08-03T00:30:00+09:00": time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC),
	} {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
		assert.Equal(t, time.UTC, got.Location(), s)
	}
}

func TestDay(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	assert.Equal(t, time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC),
		Day(time.Date(2020, 8, 3, 23, 30, 0, 0, est)))
	assert.Equal(t, time.Date(2020, 8, 4, 0, 0, 0, 0, time.UTC),
		Day(time.Date(2020, 8, 3, 23, 30, 0, 0, est).UTC()))
}
