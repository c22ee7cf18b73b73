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

// Package xevent decodes SQL Server audit files into ordered event records.
// Native .xel files are handed to an external converter; JSON-lines exports
// are decoded in process.
package xevent

import (
	"errors"
	"fmt"
	"io"
)

// Reader produces decoded event records.
type Reader interface {
	// Next returns the next record, or io.EOF when there are no more.
	Next() (Record, error)

	// Close releases any resources held by the reader.
	Close() error
}

// DecodeError reports malformed file content.
type DecodeError struct {
	File string
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.File, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ReadAll drains r and closes it. The close error is reported only when
// reading itself succeeded.
func ReadAll(r Reader) (records []Record, err error) {
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
