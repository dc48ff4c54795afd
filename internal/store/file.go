package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// FileBackend stores one file per record under <dir>/<namespace>/<id>.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) nsDir(ns string) (string, error) {
	if ns == "" || ns == "." || ns == ".." {
		return "", fmt.Errorf("invalid namespace %q", ns)
	}
	return filepath.Join(b.dir, url.PathEscape(ns)), nil
}

func (b *FileBackend) Load(ctx context.Context, ns, id string) ([]byte, error) {
	dir, err := b.nsDir(ns)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Save overwrites the record file in place.
func (b *FileBackend) Save(ctx context.Context, ns, id string, data []byte) error {
	dir, err := b.nsDir(ns)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, id)
	err = os.WriteFile(path, data, 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create namespace dir: %w", err)
		}
		err = os.WriteFile(path, data, 0o644)
	}
	return err
}

// Scan visits records in file-name order.
func (b *FileBackend) Scan(ctx context.Context, ns string, fn func(id string, data []byte) error) error {
	dir, err := b.nsDir(ns)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !de.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return err
		}
		if err := fn(de.Name(), data); err != nil {
			return err
		}
	}
	return nil
}

// Wipe deletes the namespace directory and recreates it empty.
func (b *FileBackend) Wipe(ctx context.Context, ns string) error {
	dir, err := b.nsDir(ns)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (b *FileBackend) Close() error {
	return nil
}
