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

package loganalytics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/auditshipper/internal/logctx"
)

const (
	DefaultHost       = "ods.opinsights.azure.com"
	DefaultAPIVersion = "2016-04-01"

	// maxResponseBytes bounds how much of a response body is kept for logging.
	maxResponseBytes = 64 * 1024
)

// Config describes one Log Analytics workspace and custom log table.
type Config struct {
	WorkspaceID string `mapstructure:"workspace_id"`
	SharedKey   string `mapstructure:"shared_key"`
	// LogType names the custom log; the service appends _CL.
	LogType string `mapstructure:"log_type"`
	// TimestampField names the record field used as TimeGenerated.
	TimestampField string `mapstructure:"timestamp_field"`
	Host           string `mapstructure:"host"`
	APIVersion     string `mapstructure:"api_version"`
	// Endpoint overrides the URL derived from WorkspaceID and Host.
	Endpoint string `mapstructure:"endpoint"`
}

// DefaultConfig returns the table and timestamp field used for SQL audit events.
func DefaultConfig() Config {
	return Config{
		LogType:        "SQLAuditLogs",
		TimestampField: "event_time",
		Host:           DefaultHost,
		APIVersion:     DefaultAPIVersion,
	}
}

// URL returns the ingestion endpoint.
func (c Config) URL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	version := c.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	u := url.URL{
		Scheme:   "https",
		Host:     c.WorkspaceID + "." + host,
		Path:     resourcePath,
		RawQuery: url.Values{"api-version": []string{version}}.Encode(),
	}
	return u.String()
}

// Validate checks the settings required to sign and post.
func (c Config) Validate() error {
	var missing []string
	if c.WorkspaceID == "" {
		missing = append(missing, "workspace_id")
	}
	if c.SharedKey == "" {
		missing = append(missing, "shared_key")
	}
	if c.LogType == "" {
		missing = append(missing, "log_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("loganalytics: missing %s", strings.Join(missing, ", "))
	}
	if _, err := DecodeKey(c.SharedKey); err != nil {
		return fmt.Errorf("loganalytics: %w", err)
	}
	return nil
}

// UploadError reports a chunk the API did not accept. StatusCode is zero
// when no response was received.
type UploadError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("upload status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("upload rejected with status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one post.
type Result struct {
	StatusCode int
	Body       string
	Bytes      int
	Duration   time.Duration
	Err        error
}

// OK reports whether the API accepted the payload.
func (r Result) OK() bool {
	return r.Err == nil
}

// Uploader posts one JSON array payload.
type Uploader interface {
	Upload(ctx context.Context, body []byte) Result
}

// Client is an Uploader for one workspace.
type Client struct {
	cfg     Config
	key     []byte
	url     string
	http    *http.Client
	timeout time.Duration
	tracer  trace.Tracer
	now     func() time.Time
}

var _ Uploader = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from DefaultTransportConfig.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds each post, including reading the response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClock overrides the clock used for the x-ms-date header.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, _ := DecodeKey(cfg.SharedKey)

	c := &Client{
		cfg:    cfg,
		key:    key,
		url:    cfg.URL(),
		tracer: tracer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(DefaultTransportConfig())
	}
	return c, nil
}

// Headers returns the signed headers for a body of contentLength bytes
// posted at date.
func (c *Client) Headers(contentLength int, date time.Time) http.Header {
	xmsDate := FormatDate(date)
	signature := sign(StringToSign(contentLength, xmsDate), c.key)

	h := http.Header{}
	h.Set("Accept", contentType)
	h.Set("Content-Type", contentType)
	h.Set("Log-Type", c.cfg.LogType)
	h.Set("Authorization", Authorization(c.cfg.WorkspaceID, signature))
	h.Set("x-ms-date", xmsDate)
	if c.cfg.TimestampField != "" {
		h.Set("time-generated-field", c.cfg.TimestampField)
	}
	return h
}

// Upload posts body and reports the outcome. It never panics and never
// retries; the caller decides whether a failure is fatal.
func (c *Client) Upload(ctx context.Context, body []byte) Result {
	start := time.Now()
	ll := logctx.FromContext(ctx)

	ctx, span := c.tracer.Start(ctx, "loganalytics.Upload",
		trace.WithAttributes(
			attribute.String("log_type", c.cfg.LogType),
			attribute.Int("bytes", len(body)),
		),
	)
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res := c.post(ctx, body)
	res.Bytes = len(body)
	res.Duration = time.Since(start)

	attrs := metric.WithAttributes(
		attribute.String("log_type", c.cfg.LogType),
		attribute.Int("status", res.StatusCode),
	)
	uploadDuration.Record(ctx, res.Duration.Seconds(), attrs)
	if res.OK() {
		uploadCount.Add(ctx, 1, attrs)
		uploadBytes.Add(ctx, int64(len(body)), attrs)
		ll.Info("Upload accepted",
			slog.Int("status", res.StatusCode),
			slog.Int("bytes", len(body)),
			slog.String("response", res.Body))
	} else {
		uploadErrors.Add(ctx, 1, attrs)
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		ll.Error("Upload failed",
			slog.Int("status", res.StatusCode),
			slog.Int("bytes", len(body)),
			slog.String("response", res.Body),
			slog.Any("error", res.Err))
	}
	return res
}

func (c *Client) post(ctx context.Context, body []byte) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: &UploadError{Err: fmt.Errorf("build request: %w", err)}}
	}
	req.Header = c.Headers(len(body), c.now())

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Err: &UploadError{Err: err}}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	res := Result{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = &UploadError{StatusCode: resp.StatusCode, Body: res.Body}
		return res
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		res.Err = &UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", readErr)}
	}
	return res
}
