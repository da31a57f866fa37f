// tile/diskcache.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"os"
	"path/filepath"

	"github.com/radioscape/radioscape/log"
)

// DiskCache is a plain filesystem cache for downloaded tile payloads,
// keyed by relative path. Providers use it so repeated fetches of the
// same tile cost a file read rather than a download.
type DiskCache struct {
	dir string
	lg  *log.Logger
}

// NewDiskCache returns a cache rooted at dir, or at the user cache
// directory under Radioscape/tiles if dir is empty.
func NewDiskCache(dir string, lg *log.Logger) *DiskCache {
	if dir == "" {
		if cd, err := os.UserCacheDir(); err == nil {
			dir = filepath.Join(cd, "Radioscape", "tiles")
		} else {
			dir = filepath.Join(os.TempDir(), "radioscape", "tiles")
		}
	}
	lg.Debugf("disk cache directory: %s", dir)
	return &DiskCache{dir: dir, lg: lg}
}

func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, filepath.FromSlash(key))
}

func (c *DiskCache) Has(key string) bool {
	_, err := os.Stat(c.path(key))
	return err == nil
}

// Read returns the cached payload, or nil if the key is absent.
func (c *DiskCache) Read(key string) []byte {
	b, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil
	}
	return b
}

func (c *DiskCache) Write(key string, data []byte) error {
	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.lg.Warnf("disk cache: mkdir for %s: %v", path, err)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		c.lg.Warnf("disk cache: write %s: %v", path, err)
		return err
	}
	return nil
}
