package roster

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// cacheVersion is bumped whenever the on-disk layout changes.
const cacheVersion = 1

// cacheEntry is one cached reference image. An empty Embedding records that
// no face was found in the file.
type cacheEntry struct {
	Size      int64
	ModTime   int64
	Embedding []float32
}

type cacheFile struct {
	Version int
	Model   string
	Entries map[string]cacheEntry
}

// Cache stores reference embeddings between runs, keyed by the image path
// relative to the images directory. An entry is reused only while the file
// size and modification time are unchanged and the model matches.
type Cache struct {
	path    string
	model   string
	entries map[string]cacheEntry
	seen    map[string]bool
}

// LoadCache reads the cache at path. A missing file yields an empty cache.
func LoadCache(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]cacheEntry),
		seen:    make(map[string]bool),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read roster cache: %w", err)
	}

	var f cacheFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return c, fmt.Errorf("failed to decode roster cache: %w", err)
	}
	if f.Version != cacheVersion {
		return c, nil
	}

	c.model = f.Model
	if f.Entries != nil {
		c.entries = f.Entries
	}
	return c, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// reset discards all entries when they were produced by a different model.
func (c *Cache) reset(model string) {
	if c.model != model {
		c.entries = make(map[string]cacheEntry)
		c.model = model
	}
	c.seen = make(map[string]bool)
}

func (c *Cache) lookup(rel string, info fs.FileInfo) (cacheEntry, bool) {
	e, ok := c.entries[rel]
	if !ok || e.Size != info.Size() || e.ModTime != info.ModTime().UnixNano() {
		return cacheEntry{}, false
	}
	c.seen[rel] = true
	return e, true
}

func (c *Cache) put(rel string, info fs.FileInfo, emb []float32) {
	var cp []float32
	if len(emb) > 0 {
		cp = make([]float32, len(emb))
		copy(cp, emb)
	}
	c.entries[rel] = cacheEntry{Size: info.Size(), ModTime: info.ModTime().UnixNano(), Embedding: cp}
	c.seen[rel] = true
}

// Save writes the entries touched by the last build. Entries for files that
// disappeared from the directory are dropped.
func (c *Cache) Save() error {
	f := cacheFile{
		Version: cacheVersion,
		Model:   c.model,
		Entries: make(map[string]cacheEntry, len(c.seen)),
	}
	for rel := range c.seen {
		f.Entries[rel] = c.entries[rel]
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("failed to encode roster cache: %w", err)
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write roster cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace roster cache: %w", err)
	}

	c.entries = f.Entries
	return nil
}
