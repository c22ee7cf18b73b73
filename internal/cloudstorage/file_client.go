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

package cloudstorage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// FileClient reads objects from a local directory tree. Containers are
// subdirectories of the base path and keys are slash-separated paths below
// them. It is used for local replays and in tests in place of a cloud
// provider.
type FileClient struct {
	base string
}

var _ Client = (*FileClient)(nil)

// NewFileClient returns a client rooted at base.
func NewFileClient(base string) *FileClient {
	return &FileClient{base: base}
}

func (c *FileClient) path(container, key string) string {
	return filepath.Join(c.base, container, filepath.FromSlash(key))
}

// ListObjects walks the container directory in lexical order.
func (c *FileClient) ListObjects(ctx context.Context, container, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		root := filepath.Join(c.base, container)
		stop := errors.New("stop")
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if !yield(ObjectInfo{Key: key, Size: fi.Size(), LastModified: fi.ModTime()}, nil) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			yield(ObjectInfo{}, err)
		}
	}
}

// DownloadObject copies the requested object to a temp file and returns the filename.
func (c *FileClient) DownloadObject(ctx context.Context, tmpdir, container, key string) (string, int64, bool, error) {
	src := c.path(container, key)
	fi, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, true, nil
		}
		return "", 0, false, err
	}
	// Keep the blob name so the decoder can dispatch on its extension.
	dst, err := os.CreateTemp(tmpdir, "file-*-"+filepath.Base(key))
	if err != nil {
		return "", 0, false, err
	}
	defer func() { _ = dst.Close() }()

	f, err := os.Open(src)
	if err != nil {
		_ = os.Remove(dst.Name())
		return "", 0, false, err
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(dst, f); err != nil {
		_ = os.Remove(dst.Name())
		return "", 0, false, err
	}
	return dst.Name(), fi.Size(), false, nil
}

// WriteObject stores data at container/key, creating directories as needed.
func (c *FileClient) WriteObject(container, key string, data []byte) error {
	dst := c.path(container, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
