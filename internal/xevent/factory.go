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
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Options configures ReaderForFile.
type Options struct {
	// Command converts a native .xel file to JSON lines on stdout.
	Command []string
	// MaxLineBytes bounds one encoded event. It should be at least the
	// upload ceiling so that any event the uploader could send decodes;
	// zero or less means MaxLineSizeBytes.
	MaxLineBytes int
}

// Factory opens a Reader for a local file.
type Factory interface {
	ReaderForFile(ctx context.Context, filename string) (Reader, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, filename string) (Reader, error)

func (f FactoryFunc) ReaderForFile(ctx context.Context, filename string) (Reader, error) {
	return f(ctx, filename)
}

// NewFactory returns a Factory bound to opts.
func NewFactory(opts Options) Factory {
	return FactoryFunc(func(ctx context.Context, filename string) (Reader, error) {
		return ReaderForFile(ctx, filename, opts)
	})
}

// ReaderForFile creates a Reader based on the file's extension:
//   - .xel: runs opts.Command and decodes its output
//   - .json, .jsonl: JSON lines
//   - .json.gz, .jsonl.gz: gzip-compressed JSON lines
func ReaderForFile(ctx context.Context, filename string, opts Options) (Reader, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xel"):
		r, err := newCommandReader(ctx, opts.Command, filename, opts.MaxLineBytes)
		if err != nil {
			return nil, err
		}
		return r, nil
	case strings.HasSuffix(lower, ".json.gz"), strings.HasSuffix(lower, ".jsonl.gz"):
		return createJSONGzReader(filename, opts.MaxLineBytes)
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".jsonl"):
		return createJSONReader(filename, opts.MaxLineBytes)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filename)
	}
}

// Supported reports whether ReaderForFile knows how to open filename.
func Supported(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range []string{".xel", ".json", ".jsonl", ".json.gz", ".jsonl.gz"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var firstErr error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func createJSONGzReader(filename string, maxLine int) (Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON.gz file: %w", err)
	}

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, &DecodeError{File: filename, Err: fmt.Errorf("gzip header: %w", err)}
	}

	rc := &multiReadCloser{
		Reader:  gzipReader,
		closers: []io.Closer{gzipReader, file},
	}
	return NewJSONLinesReaderSize(filename, rc, maxLine), nil
}

func createJSONReader(filename string, maxLine int) (Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	return NewJSONLinesReaderSize(filename, file, maxLine), nil
}
