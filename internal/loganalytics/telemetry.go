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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/auditshipper/internal/loganalytics")

	uploadCount    metric.Int64Counter
	uploadBytes    metric.Int64Counter
	uploadErrors   metric.Int64Counter
	uploadDuration metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/auditshipper/internal/loganalytics")

	var err error
	uploadCount, err = meter.Int64Counter(
		"auditshipper.loganalytics.upload.count",
		metric.WithDescription("Number of payloads accepted by the Data Collector API"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.count counter: %w", err))
	}

	uploadBytes, err = meter.Int64Counter(
		"auditshipper.loganalytics.upload.bytes",
		metric.WithUnit("By"),
		metric.WithDescription("Payload bytes accepted by the Data Collector API"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.bytes counter: %w", err))
	}

	uploadErrors, err = meter.Int64Counter(
		"auditshipper.loganalytics.upload.errors",
		metric.WithDescription("Number of payloads that failed to post or were rejected"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.errors counter: %w", err))
	}

	uploadDuration, err = meter.Float64Histogram(
		"auditshipper.loganalytics.upload.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time taken to post one payload"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.duration histogram: %w", err))
	}
}
