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

// Package cloudstorage lists and downloads audit blobs from Azure Blob
// Storage, S3, or a local directory behind one interface.
package cloudstorage

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/cardinalhq/auditshipper/internal/azureclient"
)

const (
	ProviderAzure = "azure"
	ProviderS3    = "s3"
	ProviderFile  = "file"
)

// Config selects and configures a storage provider.
type Config struct {
	Provider string `mapstructure:"provider"`
	// Container is the Azure container or S3 bucket holding the audit logs.
	Container string `mapstructure:"container"`

	// Azure
	ConnectionString string `mapstructure:"connection_string"`
	AccountURL       string `mapstructure:"account_url"`

	// S3
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	// Profile names a shared AWS config profile; empty uses the default chain.
	Profile string `mapstructure:"profile"`
	// RoleARN is assumed through STS when set.
	RoleARN     string `mapstructure:"role_arn"`
	InsecureTLS bool   `mapstructure:"insecure_tls"`

	// File: containers are subdirectories of Path.
	Path string `mapstructure:"path"`
}

// DefaultConfig matches the container Azure SQL auditing writes to.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderAzure,
		Container: "sqldbauditlogs",
	}
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	if c.Container == "" {
		return fmt.Errorf("storage: container is required")
	}
	switch c.Provider {
	case ProviderAzure:
		if c.ConnectionString == "" && c.AccountURL == "" {
			return fmt.Errorf("storage: azure requires connection_string or account_url")
		}
	case ProviderS3:
	case ProviderFile:
		if c.Path == "" {
			return fmt.Errorf("storage: file provider requires path")
		}
	default:
		return fmt.Errorf("storage: unsupported provider %q", c.Provider)
	}
	return nil
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Client provides a unified interface for the storage operations the
// importer needs.
type Client interface {
	// ListObjects yields every object under prefix in the provider's listing
	// order. Iteration stops at the first error, which is yielded.
	ListObjects(ctx context.Context, container, prefix string) iter.Seq2[ObjectInfo, error]

	// DownloadObject downloads an object to a new file in tmpdir. The file
	// name keeps the key's extension. Returns the temp filename, size,
	// whether the object was not found, and error.
	DownloadObject(ctx context.Context, tmpdir, container, key string) (filename string, size int64, notFound bool, err error)
}

// NewClient creates a Client for cfg.Provider.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderAzure:
		mgr, err := azureclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure manager: %w", err)
		}
		opts := []azureclient.BlobOption{azureclient.WithApplicationID("auditshipper")}
		if cfg.ConnectionString != "" {
			opts = append(opts, azureclient.WithConnectionString(cfg.ConnectionString))
		} else {
			opts = append(opts, azureclient.WithAccountURL(cfg.AccountURL))
		}
		blobClient, err := mgr.GetBlob(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		return newAzureClient(blobClient), nil
	case ProviderS3:
		return newS3Client(ctx, cfg)
	case ProviderFile:
		return NewFileClient(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported cloud provider: %s", cfg.Provider)
	}
}
