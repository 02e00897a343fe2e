package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// DirStore maps storage paths onto a local directory tree rooted at Root.
// Useful when MinIO's data directory is mounted locally, and for tests.
type DirStore struct {
	Root string
}

// Compile-time interface check.
var _ Store = (*DirStore)(nil)

// NewDirStore creates a DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

func (d *DirStore) local(p string) string {
	return filepath.Join(d.Root, filepath.FromSlash(cleanDir(p)))
}

func (d *DirStore) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(d.local(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", p, err)
}

func (d *DirStore) List(_ context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(d.local(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, path.Join(cleanDir(p), e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (d *DirStore) Read(_ context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(d.local(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Write replaces the file atomically: the data goes to a temp file in the
// same directory which is then renamed over the target.
func (d *DirStore) Write(_ context.Context, p string, data []byte) error {
	target := d.local(p)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	return writeAtomic(target, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (d *DirStore) MakeDir(_ context.Context, p string) error {
	if err := os.MkdirAll(d.local(p), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}

func (d *DirStore) Copy(_ context.Context, src, dst string) error {
	in, err := os.Open(d.local(src))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("copy %s: %w", src, ErrNotFound)
		}
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	target := d.local(dst)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}
	err = writeAtomic(target, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	log.Trace().Str("src", src).Str("dst", dst).Msg("Local copy complete")
	return nil
}

// writeAtomic writes through fill into a temp file next to target and renames
// it into place. The temp file is removed on any failure.
func writeAtomic(target string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
