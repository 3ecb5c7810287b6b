// Package images persists uploaded medicine photos and returns the URL they
// are served from.
package images

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type Store interface {
	// Put stores data under a name derived from its content and the
	// extension of name, returning the public URL.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// ObjectName is the content-addressed name for data, keeping the extension
// of the original file name.
func ObjectName(name string, data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]) + strings.ToLower(filepath.Ext(name))
}

// DiskStore writes files into a local directory served under URLPrefix.
type DiskStore struct {
	Dir       string
	URLPrefix string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{Dir: dir, URLPrefix: "/uploads/"}
}

func (s *DiskStore) Put(ctx context.Context, name string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	objectName := ObjectName(name, data)
	if err := os.WriteFile(filepath.Join(s.Dir, objectName), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	slog.Info("Image saved", "filename", objectName, "bytes", len(data))
	return path.Join(s.URLPrefix, objectName), nil
}

// Path resolves a served file name to its location on disk. It refuses
// names that would escape Dir.
func (s *DiskStore) Path(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", false
	}
	return filepath.Join(s.Dir, name), true
}
