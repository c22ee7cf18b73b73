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

// Package awsclient builds S3 clients for audit logs copied into AWS or an
// S3-compatible store, optionally assuming an IAM role.
package awsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultSessionName = "auditshipper"

// Manager holds the resolved AWS configuration and hands out credential
// providers, one per region and role, to the clients built from it.
type Manager struct {
	base    aws.Config
	sts     *sts.Client
	session string
	tracer  trace.Tracer

	mu        sync.Mutex
	providers map[roleKey]aws.CredentialsProvider
}

type roleKey struct {
	Region  string
	RoleARN string
}

type managerOptions struct {
	session string
	load    []func(*config.LoadOptions) error
}

// ManagerOption configures NewManager.
type ManagerOption func(*managerOptions)

// WithAssumeRoleSessionName names the STS sessions opened for WithRole.
func WithAssumeRoleSessionName(name string) ManagerOption {
	return func(o *managerOptions) {
		o.session = name
	}
}

// WithDefaultRegion sets the region used when the environment names none.
// The STS client for role assumption is built in this region too.
func WithDefaultRegion(region string) ManagerOption {
	return func(o *managerOptions) {
		o.load = append(o.load, config.WithDefaultRegion(region))
	}
}

// WithProfile selects a named profile from the shared AWS config files.
func WithProfile(name string) ManagerOption {
	return func(o *managerOptions) {
		o.load = append(o.load, config.WithSharedConfigProfile(name))
	}
}

// NewManager resolves the AWS configuration chain and prepares the STS
// client used for role assumption. SDK calls are traced through otelaws.
func NewManager(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	mo := managerOptions{session: defaultSessionName}
	for _, opt := range opts {
		opt(&mo)
	}

	cfg, err := config.LoadDefaultConfig(ctx, mo.load...)
	if err != nil {
		return nil, fmt.Errorf("awsclient: load config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	return &Manager{
		base:      cfg,
		sts:       sts.NewFromConfig(cfg),
		session:   mo.session,
		tracer:    otel.Tracer("github.com/cardinalhq/auditshipper/internal/awsclient"),
		providers: map[roleKey]aws.CredentialsProvider{},
	}, nil
}

// Region is the region clients get unless GetS3 is given WithRegion.
func (m *Manager) Region() string {
	return m.base.Region
}

// credentials returns the provider for key, creating it on first use.
// Without a role the base chain is used as is; with one, an assumed-role
// provider is wrapped in a cache so sessions are refreshed only on expiry.
func (m *Manager) credentials(key roleKey) aws.CredentialsProvider {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.providers[key]; ok {
		return p
	}
	p := m.base.Credentials
	if key.RoleARN != "" {
		p = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(m.sts, key.RoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = m.session
			}))
	}
	m.providers[key] = p
	return p
}
