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

package importer

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/auditshipper/internal/importer")

	blobsProcessed metric.Int64Counter
	blobsSkipped   metric.Int64Counter
	recordsDecoded metric.Int64Counter
	chunksSent     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/auditshipper/internal/importer")

	var err error
	blobsProcessed, err = meter.Int64Counter(
		"auditshipper.importer.blobs",
		metric.WithDescription("Number of selected blobs handled, by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create importer.blobs counter: %w", err))
	}

	blobsSkipped, err = meter.Int64Counter(
		"auditshipper.importer.blobs.skipped",
		metric.WithDescription("Number of listed blobs whose names could not be evaluated"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create importer.blobs.skipped counter: %w", err))
	}

	recordsDecoded, err = meter.Int64Counter(
		"auditshipper.importer.records",
		metric.WithDescription("Number of audit events decoded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create importer.records counter: %w", err))
	}

	chunksSent, err = meter.Int64Counter(
		"auditshipper.importer.chunks",
		metric.WithDescription("Number of payload chunks handed to the uploader"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create importer.chunks counter: %w", err))
	}
}
