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
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Azurite's well-known development account.
const devConnectionString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

type staticCredential struct{}

func (staticCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "token"}, nil
}

func TestGetBlobConnectionStringIsCached(t *testing.T) {
	credCalls := 0
	mgr, err := NewManager(context.Background(), WithCredential(func() (azcore.TokenCredential, error) {
		credCalls++
		return staticCredential{}, nil
	}))
	require.NoError(t, err)

	c1, err := mgr.GetBlob(context.Background(), WithConnectionString(devConnectionString))
	require.NoError(t, err)
	c2, err := mgr.GetBlob(context.Background(), WithConnectionString(devConnectionString))
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.NotNil(t, c1.Tracer)
	assert.Zero(t, credCalls, "connection strings must not resolve token credentials")
}

func TestGetBlobAccountURLUsesCredential(t *testing.T) {
	credCalls := 0
	mgr, err := NewManager(context.Background(), WithCredential(func() (azcore.TokenCredential, error) {
		credCalls++
		return staticCredential{}, nil
	}))
	require.NoError(t, err)

	_, err = mgr.GetBlob(context.Background(), WithAccountURL("https://acct.blob.core.windows.net/"))
	require.NoError(t, err)
	_, err = mgr.GetBlob(context.Background(), WithAccountURL("https://other.blob.core.windows.net/"))
	require.NoError(t, err)
	assert.Equal(t, 1, credCalls)
}

func TestGetBlobErrors(t *testing.T) {
	mgr, err := NewManager(context.Background(), WithCredential(func() (azcore.TokenCredential, error) {
		return nil, errors.New("no identity")
	}))
	require.NoError(t, err)

	_, err = mgr.GetBlob(context.Background())
	assert.Error(t, err)

	_, err = mgr.GetBlob(context.Background(), WithAccountURL("https://acct.blob.core.windows.net/"))
	assert.ErrorContains(t, err, "no identity")

	_, err = mgr.GetBlob(context.Background(), WithConnectionString("garbage"))
	assert.Error(t, err)
}
