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

// Package importer ships SQL audit blobs to Log Analytics: it selects blobs
// by path, downloads each to a temp file, decodes it, splits the records
// into size-bounded payloads and posts them, one blob at a time.
package importer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/auditshipper/internal/auditpath"
	"github.com/cardinalhq/auditshipper/internal/chunker"
	"github.com/cardinalhq/auditshipper/internal/cloudstorage"
	"github.com/cardinalhq/auditshipper/internal/idgen"
	"github.com/cardinalhq/auditshipper/internal/loganalytics"
	"github.com/cardinalhq/auditshipper/internal/logctx"
	"github.com/cardinalhq/auditshipper/internal/xevent"
)

// Config holds the per-run settings the importer needs.
type Config struct {
	Container string
	Filter    auditpath.Filter
	// TempDir is where the run's scratch directory is created; empty means
	// os.TempDir().
	TempDir string
	// DryRun selects and logs blobs without downloading them.
	DryRun bool
}

type Importer struct {
	cfg      Config
	storage  cloudstorage.Client
	decoders xevent.Factory
	splitter *chunker.Splitter
	uploader loganalytics.Uploader
	newRunID func() string
}

// Option configures an Importer.
type Option func(*Importer)

// WithRunID fixes the run identifier, for tests and replays.
func WithRunID(id string) Option {
	return func(im *Importer) {
		im.newRunID = func() string { return id }
	}
}

// New wires an Importer from its collaborators.
func New(cfg Config, storage cloudstorage.Client, decoders xevent.Factory, splitter *chunker.Splitter, uploader loganalytics.Uploader, opts ...Option) *Importer {
	if splitter == nil {
		splitter = chunker.NewSplitter(chunker.DefaultCeilingBytes)
	}
	im := &Importer{
		cfg:      cfg,
		storage:  storage,
		decoders: decoders,
		splitter: splitter,
		uploader: uploader,
		newRunID: idgen.NewRunID,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Select yields the listed objects the filter matches, in listing order.
// onSkip, when not nil, is told about names that could not be evaluated.
// A listing error is yielded and ends the sequence.
func (im *Importer) Select(ctx context.Context, onSkip func(*FilterSkip)) iter.Seq2[cloudstorage.ObjectInfo, error] {
	return im.scan(ctx, nil, onSkip)
}

func (im *Importer) scan(ctx context.Context, onListed func(cloudstorage.ObjectInfo), onSkip func(*FilterSkip)) iter.Seq2[cloudstorage.ObjectInfo, error] {
	return func(yield func(cloudstorage.ObjectInfo, error) bool) {
		for obj, err := range im.storage.ListObjects(ctx, im.cfg.Container, im.cfg.Filter.Prefix()) {
			if err != nil {
				yield(cloudstorage.ObjectInfo{}, err)
				return
			}
			if onListed != nil {
				onListed(obj)
			}
			ok, merr := im.cfg.Filter.Match(obj.Key)
			if merr != nil {
				if onSkip != nil {
					onSkip(&FilterSkip{Key: obj.Key, Err: merr})
				}
				continue
			}
			if !ok {
				continue
			}
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// Run ships every selected blob. Failures of individual blobs are logged,
// counted and returned together once all blobs were tried; a listing
// failure or cancellation of ctx ends the run early.
func (im *Importer) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: im.newRunID()}
	ctx, ll := logctx.With(ctx, slog.String("runID", summary.RunID))

	ctx, span := tracer.Start(ctx, "importer.Run",
		trace.WithAttributes(
			attribute.String("container", im.cfg.Container),
			attribute.String("server", im.cfg.Filter.Server),
			attribute.String("database", im.cfg.Filter.Database),
		),
	)
	defer span.End()

	workdir, err := os.MkdirTemp(im.cfg.TempDir, "auditshipper-")
	if err != nil {
		return summary, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workdir); err != nil {
			ll.Warn("Failed to remove scratch dir", slog.String("path", workdir), slog.Any("error", err))
		}
	}()

	ll.Info("Starting audit import",
		slog.String("container", im.cfg.Container),
		slog.String("prefix", im.cfg.Filter.Prefix()),
		slog.String("start", im.cfg.Filter.Start.Format(time.DateOnly)),
		slog.String("end", im.cfg.Filter.End.Format(time.DateOnly)),
		slog.Bool("dryRun", im.cfg.DryRun))

	var errs *multierror.Error
	onListed := func(cloudstorage.ObjectInfo) {
		summary.BlobsListed++
	}
	onSkip := func(s *FilterSkip) {
		summary.BlobsSkipped++
		blobsSkipped.Add(ctx, 1)
		ll.Warn("Skipping blob", slog.String("blob", s.Key), slog.Any("error", s.Err))
	}

	for obj, err := range im.scan(ctx, onListed, onSkip) {
		if err != nil {
			summary.Duration = time.Since(start)
			span.RecordError(err)
			span.SetStatus(codes.Error, "listing failed")
			return summary, fmt.Errorf("listing %s: %w", im.cfg.Container, err)
		}
		summary.BlobsMatched++

		if im.cfg.DryRun {
			ll.Info("Would ship blob", slog.String("blob", obj.Key), slog.Int64("size", obj.Size))
			continue
		}

		if err := im.ProcessBlob(ctx, workdir, obj.Key, &summary); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				summary.Duration = time.Since(start)
				return summary, ctxErr
			}
			summary.BlobsFailed++
			blobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
			ll.Error("Failed to ship blob", slog.String("blob", obj.Key), slog.Any("error", err))
			errs = multierror.Append(errs, err)
		}
	}
	summary.Duration = time.Since(start)

	if err := errs.ErrorOrNil(); err != nil {
		span.SetStatus(codes.Error, "some blobs failed")
		return summary, err
	}
	return summary, nil
}
