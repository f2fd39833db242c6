package fscreator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Creator opens destination files for incoming block ids under a single
// root directory, creating intermediate directories as needed. Workers on
// different connections may ask for the same id concurrently; O_CREATE at
// the kernel makes the file materialize exactly once.
type Creator struct {
	root   string
	logger *slog.Logger
}

// New returns a creator rooted at dir.
func New(dir string, logger *slog.Logger) *Creator {
	return &Creator{root: dir, logger: logger}
}

// Create opens a writable file for id, creating parent directories on
// demand. Ids are relative slash paths; anything that would escape the
// root is rejected.
func (c *Creator) Create(id string) (*os.File, error) {
	rel, err := sanitize(id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(c.root, rel)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
		return nil, fmt.Errorf("mkdir for %s: %w", path, mkErr)
	}
	c.logger.Debug("created parent directories", "path", path)
	f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Truncate sets the file to exactly size bytes. Used when a block starts
// a file from offset zero.
func (c *Creator) Truncate(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s to %d: %w", f.Name(), size, err)
	}
	return nil
}

func sanitize(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty block id")
	}
	if strings.ContainsRune(id, '\\') {
		return "", fmt.Errorf("invalid block id %q", id)
	}
	rel := filepath.Clean(filepath.FromSlash(id))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("block id %q escapes destination root", id)
	}
	return rel, nil
}
