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
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/auditshipper/internal/chunker"
	"github.com/cardinalhq/auditshipper/internal/logctx"
	"github.com/cardinalhq/auditshipper/internal/xevent"
)

// ProcessBlob downloads, decodes and ships one blob, adding to summary.
// The downloaded file is removed before returning on every path.
func (im *Importer) ProcessBlob(ctx context.Context, tmpdir, key string, summary *Summary) (err error) {
	ctx, ll := logctx.With(ctx, slog.String("blob", key))
	ctx, span := tracer.Start(ctx, "importer.ProcessBlob",
		trace.WithAttributes(attribute.String("blob", key)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ll.Info("Processing audit blob")

	filename, size, notFound, err := im.storage.DownloadObject(ctx, tmpdir, im.cfg.Container, key)
	if err != nil {
		return &BlobError{Key: key, Stage: StageDownload, Err: err}
	}
	if notFound {
		summary.BlobsMissing++
		blobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "missing")))
		ll.Warn("Blob disappeared between listing and download")
		return nil
	}
	defer func() {
		if rerr := os.Remove(filename); rerr != nil && !os.IsNotExist(rerr) {
			ll.Warn("Failed to remove downloaded file", slog.String("path", filename), slog.Any("error", rerr))
		}
	}()
	summary.BytesDownloaded += size

	records, err := im.decode(ctx, filename)
	if err != nil {
		return &BlobError{Key: key, Stage: StageDecode, Err: err}
	}
	recordsDecoded.Add(ctx, int64(len(records)))
	if len(records) == 0 {
		summary.BlobsShipped++
		blobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "empty")))
		ll.Info("Blob has no events")
		return nil
	}

	encoded, err := chunker.Encode(records)
	if err != nil {
		return &BlobError{Key: key, Stage: StageEncode, Err: err}
	}

	chunks, failed := 0, 0
	err = im.splitter.Split(ctx, encoded, func(c chunker.Chunk) error {
		chunks++
		summary.Chunks++
		if c.Oversized {
			summary.OversizedChunks++
		}
		cctx, _ := logctx.With(ctx,
			slog.Int("chunk", chunks),
			slog.Int("offset", c.Offset),
			slog.Int("records", c.Count))

		res := im.uploader.Upload(cctx, c.Body)
		if !res.OK() {
			failed++
			summary.UploadFailures++
			// A cancelled run ends here; any other failure moves on to the
			// next chunk.
			return ctx.Err()
		}
		summary.Records += c.Count
		summary.BytesUploaded += int64(c.Size())
		return nil
	})
	if err != nil {
		return &BlobError{Key: key, Stage: StageUpload, Err: err}
	}
	chunksSent.Add(ctx, int64(chunks))

	if failed > 0 {
		return &BlobError{Key: key, Stage: StageUpload, Err: fmt.Errorf("%d of %d chunks failed", failed, chunks)}
	}

	summary.BlobsShipped++
	blobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "shipped")))
	ll.Info("Shipped audit blob",
		slog.Int("records", len(encoded)),
		slog.Int("chunks", chunks),
		slog.Int64("downloadedBytes", size))
	return nil
}

func (im *Importer) decode(ctx context.Context, filename string) ([]xevent.Record, error) {
	r, err := im.decoders.ReaderForFile(ctx, filename)
	if err != nil {
		return nil, err
	}
	return xevent.ReadAll(r)
}
