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

// Package chunker serializes decoded records into JSON array payloads that
// stay under an ingestion size ceiling by recursive halving.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/cardinalhq/auditshipper/internal/logctx"
)

// DefaultCeilingBytes is the Data Collector API's per-post limit with some
// headroom below 32 MB.
const DefaultCeilingBytes = 30_000_000

// Chunk is one serialized JSON array ready to post.
type Chunk struct {
	// Body is the JSON array.
	Body []byte
	// Offset is the index of the chunk's first record in the input.
	Offset int
	// Count is the number of records in the chunk.
	Count int
	// Oversized is set when a single record alone exceeds the ceiling.
	Oversized bool
}

// Size returns the payload size in bytes.
func (c Chunk) Size() int {
	return len(c.Body)
}

// EmitFunc receives chunks in input order. Returning an error stops the split.
type EmitFunc func(Chunk) error

// Splitter bisects a record sequence until every chunk fits Ceiling.
type Splitter struct {
	Ceiling int
}

// NewSplitter returns a Splitter with the given ceiling, or
// DefaultCeilingBytes when ceiling is not positive.
func NewSplitter(ceiling int) *Splitter {
	if ceiling <= 0 {
		ceiling = DefaultCeilingBytes
	}
	return &Splitter{Ceiling: ceiling}
}

// Encode serializes each record on its own so that Split can size ranges
// without re-encoding.
func Encode[T any](records []T) ([][]byte, error) {
	encoded := make([][]byte, len(records))
	for i, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		encoded[i] = b
	}
	return encoded, nil
}

// Split emits the encoded records as one or more JSON array chunks. A chunk
// is emitted as soon as it is final, so emitting and uploading interleave.
// Splitting is depth-first: the first half of an oversized range, including
// its own splits, is emitted before the second half begins. The first half
// of a range of n records holds n/2 of them.
func (s *Splitter) Split(ctx context.Context, encoded [][]byte, emit EmitFunc) error {
	if emit == nil {
		return errors.New("chunker: nil emit func")
	}
	// prefix[i] is the encoded size of records [0, i).
	prefix := make([]int, len(encoded)+1)
	for i, b := range encoded {
		prefix[i+1] = prefix[i] + len(b)
	}
	w := &walker{
		ctx:     ctx,
		ceiling: s.ceiling(),
		encoded: encoded,
		prefix:  prefix,
		emit:    emit,
	}
	return w.split(0, len(encoded))
}

func (s *Splitter) ceiling() int {
	if s == nil || s.Ceiling <= 0 {
		return DefaultCeilingBytes
	}
	return s.Ceiling
}

// ArraySize returns the size of a JSON array holding n records whose
// encodings total recordBytes: brackets plus n-1 commas.
func ArraySize(n, recordBytes int) int {
	if n == 0 {
		return 2
	}
	return 2 + recordBytes + n - 1
}

type walker struct {
	ctx     context.Context
	ceiling int
	encoded [][]byte
	prefix  []int
	emit    EmitFunc
}

func (w *walker) size(lo, hi int) int {
	return ArraySize(hi-lo, w.prefix[hi]-w.prefix[lo])
}

func (w *walker) split(lo, hi int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	n := hi - lo
	size := w.size(lo, hi)
	if size <= w.ceiling {
		return w.emit(w.chunk(lo, hi, size, false))
	}
	if n <= 1 {
		logctx.FromContext(w.ctx).Warn("Single record exceeds payload ceiling, sending it alone",
			slog.Int("offset", lo),
			slog.Int("size", size),
			slog.Int("ceiling", w.ceiling))
		return w.emit(w.chunk(lo, hi, size, true))
	}

	mid := lo + n/2
	if err := w.split(lo, mid); err != nil {
		return err
	}
	return w.split(mid, hi)
}

func (w *walker) chunk(lo, hi, size int, oversized bool) Chunk {
	body := make([]byte, 0, size)
	body = append(body, '[')
	for i := lo; i < hi; i++ {
		if i > lo {
			body = append(body, ',')
		}
		body = append(body, w.encoded[i]...)
	}
	body = append(body, ']')
	return Chunk{
		Body:      body,
		Offset:    lo,
		Count:     hi - lo,
		Oversized: oversized,
	}
}
