// Package ingest exposes the adventure text files a game can load.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog lists and reads plain-text adventure files from a directory.
// Only .txt files are offered; anything else in the directory is
// ignored.
type Catalog struct {
	dir string
}

// NewCatalog creates a catalog over the given directory.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// List returns the adventure file names, sorted for stable numbering.
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read adventure directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".txt") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the full text of one adventure file. The name must be
// a bare file name from List; paths escaping the directory are
// rejected.
func (c *Catalog) Read(ctx context.Context, name string) (string, error) {
	if name != filepath.Base(name) || name == "." || name == "" {
		return "", fmt.Errorf("invalid adventure file name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to read adventure file: %w", err)
	}
	return string(data), nil
}
