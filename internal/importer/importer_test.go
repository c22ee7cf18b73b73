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

package importer

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/auditshipper/internal/auditpath"
	"github.com/cardinalhq/auditshipper/internal/chunker"
	"github.com/cardinalhq/auditshipper/internal/cloudstorage"
	"github.com/cardinalhq/auditshipper/internal/loganalytics"
	"github.com/cardinalhq/auditshipper/internal/xevent"
)

const container = "sqldbauditlogs"

type recordingUploader struct {
	bodies [][]byte
	fail   func(n int) bool
}

func (u *recordingUploader) Upload(_ context.Context, body []byte) loganalytics.Result {
	n := len(u.bodies)
	u.bodies = append(u.bodies, append([]byte(nil), body...))
	if u.fail != nil && u.fail(n) {
		return loganalytics.Result{StatusCode: 500, Err: &loganalytics.UploadError{StatusCode: 500}}
	}
	return loganalytics.Result{StatusCode: 200}
}

func (u *recordingUploader) statements(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, body := range u.bodies {
		var rows []map[string]any
		require.NoError(t, json.Unmarshal(body, &rows))
		for _, row := range rows {
			out = append(out, row["statement"].(string))
		}
	}
	return out
}

func jsonLines(statements ...string) []byte {
	var sb strings.Builder
	for i, s := range statements {
		b, _ := json.Marshal(map[string]any{
			"event_time":      "2020-08-03T10:00:00Z",
			"sequence_number": i,
			"statement":       s,
		})
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

func testFilter(t *testing.T) auditpath.Filter {
	t.Helper()
	f, err := auditpath.NewFilter("srv", "db",
		time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 8, 4, 0, 0, 0, 0, time.UTC),
		".json")
	require.NoError(t, err)
	return f
}

type fixture struct {
	store   *cloudstorage.FileClient
	tempDir string
	cfg     Config
}

func newFixture(t *testing.T, blobs map[string][]byte) *fixture {
	t.Helper()
	store := cloudstorage.NewFileClient(t.TempDir())
	for key, data := range blobs {
		require.NoError(t, store.WriteObject(container, key, data))
	}
	tmp := t.TempDir()
	return &fixture{
		store:   store,
		tempDir: tmp,
		cfg: Config{
			Container: container,
			Filter:    testFilter(t),
			TempDir:   tmp,
		},
	}
}

func (f *fixture) importer(storage cloudstorage.Client, up loganalytics.Uploader, splitter *chunker.Splitter) *Importer {
	if storage == nil {
		storage = f.store
	}
	return New(f.cfg, storage, xevent.NewFactory(xevent.Options{}), splitter, up, WithRunID("run-1"))
}

func (f *fixture) assertScratchClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind")
}

func TestRun_ShipsMatchingBlobsInListingOrder(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-02/early.json":  jsonLines("too early"),
		"srv/db/audit/2020-08-03/a.json":      jsonLines("a1", "a2"),
		"srv/db/audit/2020-08-04/b.json":      jsonLines("b1"),
		"srv/db/audit/2020-08-05/late.json":   jsonLines("too late"),
		"srv/db/audit/2020-08-03/a.xel":       []byte("not json"),
		"srv/db/audit/yesterday/c.json":       jsonLines("bad date"),
		"srv/db/loose.json":                   jsonLines("too shallow"),
		"srv/otherdb/audit/2020-08-03/d.json": jsonLines("other database"),
		"other/db/audit/2020-08-03/e.json":    jsonLines("other server"),
	})
	up := &recordingUploader{}

	summary, err := f.importer(nil, up, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2", "b1"}, up.statements(t))
	assert.Len(t, up.bodies, 2, "one chunk per blob")

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 7, summary.BlobsListed)
	assert.Equal(t, 2, summary.BlobsMatched)
	assert.Equal(t, 2, summary.BlobsSkipped)
	assert.Equal(t, 2, summary.BlobsShipped)
	assert.Zero(t, summary.BlobsFailed)
	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 2, summary.Chunks)
	assert.Positive(t, summary.BytesDownloaded)
	assert.Positive(t, summary.BytesUploaded)
	f.assertScratchClean(t)
}

func TestRun_RecordFieldOrderSurvives(t *testing.T) {
	line := `{"statement":"select 1","event_time":"2020-08-03T10:00:00Z","succeeded":true}` + "\n"
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": []byte(line),
	})
	up := &recordingUploader{}

	_, err := f.importer(nil, up, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, up.bodies, 1)
	assert.Equal(t, `[{"statement":"select 1","event_time":"2020-08-03T10:00:00Z","succeeded":true}]`, string(up.bodies[0]))
}

func TestRun_SplitsLargeBlobs(t *testing.T) {
	statements := make([]string, 9)
	for i := range statements {
		statements[i] = strings.Repeat(string(rune('a'+i)), 40)
	}
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": jsonLines(statements...),
	})
	up := &recordingUploader{}

	summary, err := f.importer(nil, up, chunker.NewSplitter(300)).Run(context.Background())
	require.NoError(t, err)

	assert.Greater(t, len(up.bodies), 1)
	for _, body := range up.bodies {
		assert.LessOrEqual(t, len(body), 300)
	}
	assert.Equal(t, statements, up.statements(t))
	assert.Equal(t, len(up.bodies), summary.Chunks)
	assert.Equal(t, 9, summary.Records)
}

func TestRun_UploadFailureDoesNotStopRun(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"Error":"InternalError"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	laCfg := loganalytics.DefaultConfig()
	laCfg.WorkspaceID = "ws"
	laCfg.SharedKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	laCfg.Endpoint = srv.URL + "/api/logs"
	client, err := loganalytics.NewClient(laCfg)
	require.NoError(t, err)

	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": jsonLines("a1"),
		"srv/db/audit/2020-08-04/b.json": jsonLines("b1"),
	})

	summary, err := f.importer(nil, client, nil).Run(context.Background())
	require.Error(t, err)

	var blobErr *BlobError
	require.ErrorAs(t, err, &blobErr)
	assert.Equal(t, StageUpload, blobErr.Stage)
	assert.Equal(t, "srv/db/audit/2020-08-03/a.json", blobErr.Key)

	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1, summary.BlobsFailed)
	assert.Equal(t, 1, summary.BlobsShipped)
	assert.Equal(t, 1, summary.UploadFailures)
	assert.Equal(t, 1, summary.Records)
	f.assertScratchClean(t)
}

func TestRun_FailedChunkStillSendsTheRest(t *testing.T) {
	statements := []string{strings.Repeat("x", 60), strings.Repeat("y", 60), strings.Repeat("z", 60)}
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": jsonLines(statements...),
	})
	up := &recordingUploader{fail: func(n int) bool { return n == 0 }}

	summary, err := f.importer(nil, up, chunker.NewSplitter(150)).Run(context.Background())
	require.Error(t, err)
	assert.Len(t, up.bodies, 3)
	assert.Equal(t, 1, summary.UploadFailures)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.BlobsFailed)
}

func TestRun_DecodeFailureIsPerBlob(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": []byte("{\"statement\":\"ok\"}\n{broken\n"),
		"srv/db/audit/2020-08-04/b.json": jsonLines("b1"),
	})
	up := &recordingUploader{}

	summary, err := f.importer(nil, up, nil).Run(context.Background())
	require.Error(t, err)

	var decodeErr *xevent.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 2, decodeErr.Line)

	var blobErr *BlobError
	require.ErrorAs(t, err, &blobErr)
	assert.Equal(t, StageDecode, blobErr.Stage)

	assert.Equal(t, []string{"b1"}, up.statements(t))
	assert.Equal(t, 1, summary.BlobsFailed)
	assert.Equal(t, 1, summary.BlobsShipped)
	f.assertScratchClean(t)
}

func TestRun_EmptyBlobSendsNothing(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": {},
	})
	up := &recordingUploader{}

	summary, err := f.importer(nil, up, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, up.bodies)
	assert.Equal(t, 1, summary.BlobsShipped)
	assert.Zero(t, summary.Chunks)
}

func TestRun_DryRunDownloadsNothing(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": jsonLines("a1"),
		"srv/db/audit/2020-08-04/b.json": jsonLines("b1"),
	})
	f.cfg.DryRun = true
	up := &recordingUploader{}

	summary, err := f.importer(nil, up, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, up.bodies)
	assert.Equal(t, 2, summary.BlobsMatched)
	assert.Zero(t, summary.BlobsShipped)
	assert.Zero(t, summary.BytesDownloaded)
}

type vanishingStore struct {
	*cloudstorage.FileClient
}

func (vanishingStore) DownloadObject(context.Context, string, string, string) (string, int64, bool, error) {
	return "", 0, true, nil
}

func TestRun_MissingBlobIsCounted(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": jsonLines("a1"),
	})
	up := &recordingUploader{}

	summary, err := f.importer(vanishingStore{f.store}, up, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BlobsMissing)
	assert.Zero(t, summary.BlobsShipped)
	assert.Empty(t, up.bodies)
}

type brokenListing struct {
	*cloudstorage.FileClient
	err error
}

func (b brokenListing) ListObjects(context.Context, string, string) iter.Seq2[cloudstorage.ObjectInfo, error] {
	return func(yield func(cloudstorage.ObjectInfo, error) bool) {
		if !yield(cloudstorage.ObjectInfo{Key: "srv/db/audit/2020-08-09/x.json"}, nil) {
			return
		}
		yield(cloudstorage.ObjectInfo{}, b.err)
	}
}

func TestRun_ListingFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("listing denied")

	summary, err := f.importer(brokenListing{f.store, boom}, &recordingUploader{}, nil).Run(context.Background())
	require.ErrorIs(t, err, boom)

	var blobErr *BlobError
	assert.False(t, errors.As(err, &blobErr))
	assert.Equal(t, 1, summary.BlobsListed)
	assert.Zero(t, summary.BlobsMatched)
}

type cancellingUploader struct {
	cancel context.CancelFunc
	calls  int
}

func (u *cancellingUploader) Upload(context.Context, []byte) loganalytics.Result {
	u.calls++
	u.cancel()
	return loganalytics.Result{Err: context.Canceled}
}

func TestRun_CancellationStopsRun(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": jsonLines("a1"),
		"srv/db/audit/2020-08-04/b.json": jsonLines("b1"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	up := &cancellingUploader{cancel: cancel}

	_, err := f.importer(nil, up, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, up.calls)
	f.assertScratchClean(t)
}

func TestSelect_ReportsSkips(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"srv/db/audit/2020-08-03/a.json": jsonLines("a1"),
		"srv/db/audit/garbage/b.json":    jsonLines("b1"),
	})

	var skips []*FilterSkip
	var keys []string
	for obj, err := range f.importer(nil, nil, nil).Select(context.Background(), func(s *FilterSkip) {
		skips = append(skips, s)
	}) {
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}

	assert.Equal(t, []string{"srv/db/audit/2020-08-03/a.json"}, keys)
	require.Len(t, skips, 1)
	assert.Equal(t, "srv/db/audit/garbage/b.json", skips[0].Key)
	assert.ErrorIs(t, skips[0], auditpath.ErrUnparsableDate)
}
