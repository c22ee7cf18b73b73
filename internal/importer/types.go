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
	"fmt"
	"log/slog"
	"time"
)

// FilterSkip is reported for a listed blob whose name could not be
// evaluated against the filter. It never stops the run.
type FilterSkip struct {
	Key string
	Err error
}

func (e *FilterSkip) Error() string {
	return fmt.Sprintf("skipping %s: %v", e.Key, e.Err)
}

func (e *FilterSkip) Unwrap() error {
	return e.Err
}

// Stages at which a blob can fail.
const (
	StageDownload = "download"
	StageDecode   = "decode"
	StageEncode   = "encode"
	StageUpload   = "upload"
)

// BlobError reports a blob that could not be fully shipped. The run moves
// on to the next blob.
type BlobError struct {
	Key   string
	Stage string
	Err   error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Key, e.Err)
}

func (e *BlobError) Unwrap() error {
	return e.Err
}

// Summary counts what a run did.
type Summary struct {
	RunID           string
	BlobsListed     int
	BlobsMatched    int
	BlobsSkipped    int
	BlobsMissing    int
	BlobsShipped    int
	BlobsFailed     int
	Records         int
	Chunks          int
	OversizedChunks int
	UploadFailures  int
	BytesDownloaded int64
	BytesUploaded   int64
	Duration        time.Duration
}

// LogValue renders the summary as a slog group.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("runID", s.RunID),
		slog.Int("listed", s.BlobsListed),
		slog.Int("matched", s.BlobsMatched),
		slog.Int("skipped", s.BlobsSkipped),
		slog.Int("missing", s.BlobsMissing),
		slog.Int("shipped", s.BlobsShipped),
		slog.Int("failed", s.BlobsFailed),
		slog.Int("records", s.Records),
		slog.Int("chunks", s.Chunks),
		slog.Int("oversizedChunks", s.OversizedChunks),
		slog.Int("uploadFailures", s.UploadFailures),
		slog.Int64("bytesDownloaded", s.BytesDownloaded),
		slog.Int64("bytesUploaded", s.BytesUploaded),
		slog.Duration("duration", s.Duration),
	)
}
