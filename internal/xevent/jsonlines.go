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

package xevent

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// MaxLineSizeBytes is the default bound on a single encoded event. Audit
// statements can be large, so this is well above the usual scanner limit.
const MaxLineSizeBytes = 16 * 1024 * 1024

var errNotObject = errors.New("line is not a JSON object")

// JSONLinesReader reads one event per line, each line a JSON object whose
// members are the event's fields.
type JSONLinesReader struct {
	name    string
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	closed  bool
}

// NewJSONLinesReader creates a reader over rc. The reader takes ownership of
// rc and closes it on Close. name is used in decode errors.
func NewJSONLinesReader(name string, rc io.ReadCloser) *JSONLinesReader {
	return NewJSONLinesReaderSize(name, rc, MaxLineSizeBytes)
}

// NewJSONLinesReaderSize is NewJSONLinesReader with lines of up to maxLine
// bytes; values below MaxLineSizeBytes are raised to it.
func NewJSONLinesReaderSize(name string, rc io.ReadCloser, maxLine int) *JSONLinesReader {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), max(maxLine, MaxLineSizeBytes))
	return &JSONLinesReader{
		name:    name,
		scanner: scanner,
		closer:  rc,
	}
}

func (r *JSONLinesReader) Next() (Record, error) {
	if r.closed {
		return nil, io.EOF
	}

	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return nil, &DecodeError{File: r.name, Line: r.line, Err: err}
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, &DecodeError{File: r.name, Line: r.line + 1, Err: err}
	}
	return nil, io.EOF
}

// Close closes the underlying stream.
func (r *JSONLinesReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.closer != nil {
		err = r.closer.Close()
		r.closer = nil
	}
	r.scanner = nil
	return err
}

// Lines returns the number of lines consumed so far.
func (r *JSONLinesReader) Lines() int {
	return r.line
}

func parseRecord(line []byte) (Record, error) {
	if !gjson.ValidBytes(line) {
		return nil, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return nil, errNotObject
	}

	var rec Record
	var convErr error
	doc.ForEach(func(key, value gjson.Result) bool {
		v, err := convertValue(value)
		if err != nil {
			convErr = fmt.Errorf("field %q: %w", key.String(), err)
			return false
		}
		rec = append(rec, Field{Name: key.String(), Value: v})
		return true
	})
	if convErr != nil {
		return nil, convErr
	}
	return rec, nil
}

func convertValue(v gjson.Result) (any, error) {
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.False:
		return false, nil
	case gjson.True:
		return true, nil
	case gjson.String:
		return v.String(), nil
	case gjson.Number:
		if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return i, nil
		}
		// Fractions, exponents and integers beyond int64 keep their literal
		// so they are shipped exactly as decoded.
		return json.Number(v.Raw), nil
	case gjson.JSON:
		raw := make([]byte, len(v.Raw))
		copy(raw, v.Raw)
		return json.RawMessage(raw), nil
	default:
		return nil, fmt.Errorf("unsupported JSON type %v", v.Type)
	}
}
