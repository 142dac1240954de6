// Package localfs is the local side of a transfer: existence and length
// probes plus offset-aware readers and writers, backed by go-billy so tests
// can run against an in-memory tree.
package localfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// nativeOS is a billy.Filesystem that resolves paths exactly like the OS.
type nativeOS struct {
	osfs.ChrootOS
}

func (n *nativeOS) Chroot(path string) (billy.Filesystem, error) {
	return osfs.New(path), nil
}

func (n *nativeOS) Root() string {
	return string(filepath.Separator)
}

type FS struct {
	fs billy.Filesystem
}

func New(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// NewOS returns a filesystem over the real disk using absolute paths as-is.
func NewOS() *FS {
	return &FS{fs: &nativeOS{}}
}

func NewInMemory() *FS {
	return &FS{fs: memfs.New()}
}

// Size returns the length of the file at path. Missing files yield an
// error matching fs.ErrNotExist.
func (f *FS) Size(path string) (int64, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("localfs: stat %q: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("localfs: %q is a directory", path)
	}
	return info.Size(), nil
}

func (f *FS) Exists(path string) (bool, error) {
	_, err := f.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("localfs: stat %q: %w", path, err)
	}
}

// OpenRead opens path positioned at offset.
func (f *FS) OpenRead(path string, offset int64) (billy.File, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("localfs: open %q: %w", path, err)
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			file.Close()
			return nil, fmt.Errorf("localfs: seek %q to %d: %w", path, offset, err)
		}
	}
	return file, nil
}

// OpenWrite opens path for writing at offset, creating parent directories.
// Offset zero truncates the file.
func (f *FS) OpenWrite(path string, offset int64) (billy.File, error) {
	if err := f.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("localfs: mkdir for %q: %w", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	file, err := f.fs.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("localfs: openfile %q: %w", path, err)
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			file.Close()
			return nil, fmt.Errorf("localfs: seek %q to %d: %w", path, offset, err)
		}
	}
	return file, nil
}

func (f *FS) MkdirAll(path string) error {
	if err := f.fs.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("localfs: mkdirall %q: %w", path, err)
	}
	return nil
}

func (f *FS) WriteFile(path string, data []byte) error {
	if err := f.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	if err := util.WriteFile(f.fs, path, data, 0644); err != nil {
		return fmt.Errorf("localfs: writefile %q: %w", path, err)
	}
	return nil
}

func (f *FS) ReadFile(path string) ([]byte, error) {
	data, err := util.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("localfs: readfile %q: %w", path, err)
	}
	return data, nil
}

func (f *FS) Remove(path string) error {
	if err := f.fs.Remove(path); err != nil {
		return fmt.Errorf("localfs: remove %q: %w", path, err)
	}
	return nil
}
