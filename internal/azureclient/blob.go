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

package azureclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.opentelemetry.io/otel/trace"
)

type BlobClient struct {
	Client *azblob.Client
	Tracer trace.Tracer
}

type blobConfig struct {
	ConnectionString string
	AccountURL       string
	ApplicationID    string
}

type BlobOption func(*blobConfig)

// WithConnectionString authenticates with an account connection string
// (account key or SAS).
func WithConnectionString(connectionString string) BlobOption {
	return func(c *blobConfig) {
		c.ConnectionString = connectionString
	}
}

// WithAccountURL authenticates against https://<account>.blob.core.windows.net
// using the manager's token credential.
func WithAccountURL(accountURL string) BlobOption {
	return func(c *blobConfig) {
		c.AccountURL = accountURL
	}
}

// WithApplicationID sets the telemetry application ID sent in User-Agent.
func WithApplicationID(id string) BlobOption {
	return func(c *blobConfig) {
		c.ApplicationID = id
	}
}

type blobClientKey struct {
	ConnectionString string
	AccountURL       string
}

func (m *Manager) GetBlob(ctx context.Context, opts ...BlobOption) (*BlobClient, error) {
	bc := blobConfig{}
	for _, o := range opts {
		o(&bc)
	}

	if bc.ConnectionString == "" && bc.AccountURL == "" {
		return nil, errors.New("a connection string or account URL is required")
	}

	key := blobClientKey{ConnectionString: bc.ConnectionString, AccountURL: bc.AccountURL}
	m.RLock()
	client, ok := m.blobClients[key]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.blobClients[key]; ok {
		return client, nil
	}

	clientOpts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Telemetry: policy.TelemetryOptions{ApplicationID: bc.ApplicationID},
		},
	}

	var (
		azClient *azblob.Client
		err      error
	)
	if bc.ConnectionString != "" {
		azClient, err = azblob.NewClientFromConnectionString(bc.ConnectionString, clientOpts)
	} else {
		cred, cerr := m.credential()
		if cerr != nil {
			return nil, cerr
		}
		azClient, err = azblob.NewClient(bc.AccountURL, cred, clientOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	client = &BlobClient{
		Client: azClient,
		Tracer: m.tracer,
	}
	m.blobClients[key] = client
	return client, nil
}
