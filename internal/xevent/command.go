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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// FilePlaceholder in a converter command is replaced by the input path.
// When absent, the path is appended as the last argument.
const FilePlaceholder = "{file}"

const maxStderrBytes = 4096

// CommandReader runs an external converter over a trace file and decodes
// its standard output as JSON lines.
type CommandReader struct {
	cmd    *exec.Cmd
	lines  *JSONLinesReader
	stderr *boundedBuffer
	name   string
	waited bool
}

// NewCommandReader starts argv with filename substituted for FilePlaceholder.
// The process is killed if ctx is cancelled.
func NewCommandReader(ctx context.Context, argv []string, filename string) (*CommandReader, error) {
	return newCommandReader(ctx, argv, filename, MaxLineSizeBytes)
}

func newCommandReader(ctx context.Context, argv []string, filename string, maxLine int) (*CommandReader, error) {
	if len(argv) == 0 {
		return nil, errors.New("no converter command configured")
	}

	args := CommandArgs(argv, filename)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stderr := &boundedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("converter stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &DecodeError{File: filename, Err: fmt.Errorf("start converter %q: %w", args[0], err)}
	}

	return &CommandReader{
		cmd:    cmd,
		lines:  NewJSONLinesReaderSize(filename, io.NopCloser(stdout), maxLine),
		stderr: stderr,
		name:   filename,
	}, nil
}

// CommandArgs expands the converter command line for filename.
func CommandArgs(argv []string, filename string) []string {
	args := make([]string, 0, len(argv)+1)
	substituted := false
	for _, a := range argv {
		if strings.Contains(a, FilePlaceholder) {
			a = strings.ReplaceAll(a, FilePlaceholder, filename)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, filename)
	}
	return args
}

func (r *CommandReader) Next() (Record, error) {
	rec, err := r.lines.Next()
	if errors.Is(err, io.EOF) {
		if werr := r.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	}
	return rec, err
}

// Close stops the converter if it is still running and reaps it.
func (r *CommandReader) Close() error {
	if r.waited {
		return nil
	}
	_ = r.lines.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	r.waited = true
	_ = r.cmd.Wait()
	return nil
}

func (r *CommandReader) wait() error {
	if r.waited {
		return nil
	}
	r.waited = true
	if err := r.cmd.Wait(); err != nil {
		msg := strings.TrimSpace(r.stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &DecodeError{File: r.name, Err: fmt.Errorf("converter failed: %w", err)}
	}
	return nil
}

// boundedBuffer keeps the first limit bytes written to it.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return b.buf.String()
}
