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
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/auditshipper/internal/azureclient"
)

// azureClient implements the Client interface for Azure Blob Storage
type azureClient struct {
	blobClient *azureclient.BlobClient
}

func newAzureClient(blobClient *azureclient.BlobClient) Client {
	return &azureClient{blobClient: blobClient}
}

// ListObjects pages through a flat listing of the container.
func (c *azureClient) ListObjects(ctx context.Context, container, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azureListObjects",
			trace.WithAttributes(
				attribute.String("container", container),
				attribute.String("prefix", prefix),
			),
		)
		defer span.End()

		opts := &azblob.ListBlobsFlatOptions{}
		if prefix != "" {
			opts.Prefix = to.Ptr(prefix)
		}
		pager := c.blobClient.Client.NewListBlobsFlatPager(container, opts)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				span.RecordError(err)
				yield(ObjectInfo{}, fmt.Errorf("list container %s: %w", container, err))
				return
			}
			listPages.Add(ctx, 1, metric.WithAttributes(attribute.String("container", container)))

			if page.Segment == nil {
				continue
			}
			for _, item := range page.Segment.BlobItems {
				if item == nil || item.Name == nil {
					continue
				}
				info := ObjectInfo{Key: *item.Name}
				if p := item.Properties; p != nil {
					if p.ContentLength != nil {
						info.Size = *p.ContentLength
					}
					if p.LastModified != nil {
						info.LastModified = *p.LastModified
					}
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// DownloadObject downloads a blob from Azure Blob Storage
func (c *azureClient) DownloadObject(ctx context.Context, tmpdir, container, key string) (string, int64, bool, error) {
	ctx, span := c.blobClient.Tracer.Start(ctx, "cloudstorage.azureDownloadObject",
		trace.WithAttributes(
			attribute.String("container", container),
			attribute.String("key", key),
		),
	)
	defer span.End()

	f, err := os.CreateTemp(tmpdir, "azure-*-"+filepath.Base(key))
	if err != nil {
		return "", 0, false, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	resp, err := c.blobClient.Client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		_ = os.Remove(f.Name())

		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			downloadErrors.Add(ctx, 1, metric.WithAttributes(
				attribute.String("container", container),
				attribute.String("reason", "not_found"),
			))
			return "", 0, true, nil
		}
		downloadErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("container", container),
			attribute.String("reason", "unknown"),
		))
		return "", 0, false, fmt.Errorf("download blob %s/%s: %w", container, key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	size, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = os.Remove(f.Name())
		downloadErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("container", container),
			attribute.String("reason", "copy_failed"),
		))
		return "", 0, false, fmt.Errorf("copy blob content: %w", err)
	}

	downloadCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("container", container),
	))
	downloadBytes.Add(ctx, size, metric.WithAttributes(
		attribute.String("container", container),
	))

	return f.Name(), size, false, nil
}
