// Package storage holds converted artifacts between job completion and
// retrieval: a local directory by default, S3 when a bucket is configured.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Storage interface {
	// Store takes ownership of the file at localPath and returns an opaque
	// reference for later retrieval, plus the artifact size in bytes.
	Store(ctx context.Context, jobID, localPath string) (string, int64, error)
	// Open streams a stored artifact.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}

// LocalStorage keeps artifacts under <dir>, named <jobID>.<ext>.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

func (l *LocalStorage) Store(ctx context.Context, jobID, localPath string) (string, int64, error) {
	name := jobID + filepath.Ext(localPath)
	dest := filepath.Join(l.dir, name)
	if err := os.Rename(localPath, dest); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		if err := copyFile(localPath, dest); err != nil {
			return "", 0, fmt.Errorf("failed to store artifact: %w", err)
		}
		os.Remove(localPath)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return "", 0, err
	}
	return name, info.Size(), nil
}

func (l *LocalStorage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	// Base-name the ref so a stored reference can never escape the
	// artifact directory.
	return os.Open(filepath.Join(l.dir, filepath.Base(ref)))
}

func (l *LocalStorage) Remove(ctx context.Context, ref string) error {
	err := os.Remove(filepath.Join(l.dir, filepath.Base(ref)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
