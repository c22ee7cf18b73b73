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

// Package azureclient builds Azure Blob Storage SDK clients from either a
// storage connection string or an account URL plus the default Azure
// credential chain, caching one client per account.
package azureclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// CredentialFunc supplies the token credential used for account URLs.
type CredentialFunc func() (azcore.TokenCredential, error)

type Manager struct {
	newCred CredentialFunc

	sync.RWMutex
	cred        azcore.TokenCredential
	blobClients map[blobClientKey]*BlobClient
	tracer      trace.Tracer
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*Manager)

// WithCredential replaces the default credential chain.
func WithCredential(f CredentialFunc) ManagerOption {
	return func(mgr *Manager) {
		mgr.newCred = f
	}
}

// NewManager returns a Manager. Credentials are only resolved when a client
// for an account URL is first requested, so connection-string users never
// touch the Azure identity chain.
func NewManager(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	mgr := &Manager{
		newCred: func() (azcore.TokenCredential, error) {
			return azidentity.NewDefaultAzureCredential(nil)
		},
		blobClients: make(map[blobClientKey]*BlobClient),
		tracer:      otel.Tracer("github.com/cardinalhq/auditshipper/internal/azureclient"),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr, nil
}

// credential must be called with the write lock held.
func (m *Manager) credential() (azcore.TokenCredential, error) {
	if m.cred != nil {
		return m.cred, nil
	}
	cred, err := m.newCred()
	if err != nil {
		return nil, fmt.Errorf("loading Azure credentials: %w", err)
	}
	m.cred = cred
	return cred, nil
}
