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

package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/auditshipper/config"
	"github.com/cardinalhq/auditshipper/internal/cloudstorage"
)

func TestSignCommand(t *testing.T) {
	t.Setenv("AUDITSHIPPER_LOGANALYTICS_WORKSPACE_ID", "ws-123")
	t.Setenv("AUDITSHIPPER_LOGANALYTICS_SHARED_KEY", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")

	cmd := newSignCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--length", "1024", "--date", "Mon, 03 Aug 2020 10:00:00 GMT"})
	require.NoError(t, cmd.Execute())

	got := out.String()
	assert.Contains(t, got, "url: https://ws-123.ods.opinsights.azure.com/api/logs?api-version=2016-04-01\n")
	assert.Contains(t, got, `string-to-sign: "POST\n1024\napplication/json\nx-ms-date:Mon, 03 Aug 2020 10:00:00 GMT\n/api/logs"`)
	assert.Contains(t, got, "x-ms-date: Mon, 03 Aug 2020 10:00:00 GMT\n")
	assert.Contains(t, got, "Authorization: SharedKey ws-123:8HKLbagCSDrenWtV9Ir3K39GUQNynnZT2PtG0HoF3yY=\n")
	assert.Contains(t, got, "Log-Type: SQLAuditLogs\n")
	assert.Contains(t, got, "time-generated-field: event_time\n")
}

func TestSignCommandRejectsBadDate(t *testing.T) {
	t.Setenv("AUDITSHIPPER_LOGANALYTICS_WORKSPACE_ID", "ws-123")
	t.Setenv("AUDITSHIPPER_LOGANALYTICS_SHARED_KEY", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")

	cmd := newSignCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--length", "10", "--date", "2020-08-03"})
	require.Error(t, cmd.Execute())
}

func TestSignCommandNeedsKey(t *testing.T) {
	cmd := newSignCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--length", "10"})
	require.Error(t, cmd.Execute())
}

func TestListBlobs(t *testing.T) {
	store := cloudstorage.NewFileClient(t.TempDir())
	for _, key := range []string{
		"sqlprod01/sales/audit/2020-08-02/x.xel",
		"sqlprod01/sales/audit/2020-08-03/a.xel",
		"sqlprod01/sales/audit/2020-08-04/b.xel",
		"sqlprod01/sales/audit/notes/c.xel",
	} {
		require.NoError(t, store.WriteObject("sqldbauditlogs", key, []byte("12345")))
	}

	cfg := config.Default()
	cfg.Filter.Server = "sqlprod01"
	cfg.Filter.Database = "sales"
	cfg.Filter.StartDate = "2020-08-03"
	cfg.Filter.EndDate = "2020-08-04"

	var out bytes.Buffer
	require.NoError(t, listBlobs(context.Background(), &out, cfg, store))
	assert.Equal(t,
		"sqlprod01/sales/audit/2020-08-03/a.xel\t5\n"+
			"sqlprod01/sales/audit/2020-08-04/b.xel\t5\n",
		out.String())
}

func TestWithRunTimeout(t *testing.T) {
	ctx, cancel := withRunTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)

	ctx2, cancel2 := withRunTimeout(context.Background(), time.Hour)
	defer cancel2()
	_, ok = ctx2.Deadline()
	assert.True(t, ok)
}
