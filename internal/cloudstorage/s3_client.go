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

package cloudstorage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/auditshipper/internal/awsclient"
)

// s3Client serves audit logs that were copied into an S3-compatible bucket.
type s3Client struct {
	client *s3.Client
	tracer trace.Tracer
}

func newS3Client(ctx context.Context, cfg Config) (Client, error) {
	var mopts []awsclient.ManagerOption
	if cfg.Region != "" {
		mopts = append(mopts, awsclient.WithDefaultRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		mopts = append(mopts, awsclient.WithProfile(cfg.Profile))
	}
	mgr, err := awsclient.NewManager(ctx, mopts...)
	if err != nil {
		return nil, err
	}

	var opts []awsclient.S3Option
	if cfg.RoleARN != "" {
		opts = append(opts, awsclient.WithRole(cfg.RoleARN))
	}
	if cfg.Region != "" {
		opts = append(opts, awsclient.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsclient.WithEndpoint(cfg.Endpoint))
	}
	if cfg.PathStyle {
		opts = append(opts, awsclient.WithPathStyle())
	}
	if cfg.InsecureTLS {
		opts = append(opts, awsclient.WithInsecureTLS())
	}

	sc, err := mgr.GetS3(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &s3Client{client: sc.Client, tracer: sc.Tracer}, nil
}

// s3ErrorIs404 also accepts generic API errors, since S3-compatible stores
// do not always return the typed errors.
func s3ErrorIs404(err error) bool {
	var noKeyErr *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKeyErr) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// ListObjects pages through ListObjectsV2 for the bucket and prefix.
func (c *s3Client) ListObjects(ctx context.Context, bucket, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		ctx, span := c.tracer.Start(ctx, "cloudstorage.s3ListObjects",
			trace.WithAttributes(
				attribute.String("container", bucket),
				attribute.String("prefix", prefix),
			),
		)
		defer span.End()

		input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}
		paginator := s3.NewListObjectsV2Paginator(c.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				span.RecordError(err)
				yield(ObjectInfo{}, fmt.Errorf("list bucket %s: %w", bucket, err))
				return
			}
			listPages.Add(ctx, 1, metric.WithAttributes(attribute.String("container", bucket)))

			for _, obj := range page.Contents {
				info := ObjectInfo{
					Key:  aws.ToString(obj.Key),
					Size: aws.ToInt64(obj.Size),
				}
				if obj.LastModified != nil {
					info.LastModified = *obj.LastModified
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// DownloadObject downloads an object from S3 to a temporary file.
func (c *s3Client) DownloadObject(ctx context.Context, tmpdir, bucket, key string) (string, int64, bool, error) {
	ctx, span := c.tracer.Start(ctx, "cloudstorage.s3DownloadObject",
		trace.WithAttributes(
			attribute.String("container", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	f, err := os.CreateTemp(tmpdir, "s3-*-"+filepath.Base(key))
	if err != nil {
		return "", 0, false, fmt.Errorf("create temp file: %w", err)
	}

	downloader := manager.NewDownloader(c.client)
	size, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		if s3ErrorIs404(err) {
			downloadErrors.Add(ctx, 1, metric.WithAttributes(
				attribute.String("container", bucket),
				attribute.String("reason", "not_found"),
			))
			return "", 0, true, nil
		}
		downloadErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("container", bucket),
			attribute.String("reason", "unknown"),
		))
		return "", 0, false, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	downloadCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("container", bucket),
	))
	downloadBytes.Add(ctx, size, metric.WithAttributes(
		attribute.String("container", bucket),
	))

	// close on success; ignore close error because the bytes are already flushed by the SDK
	_ = f.Close()
	return f.Name(), size, false, nil
}
