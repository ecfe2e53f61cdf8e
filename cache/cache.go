// Package cache implements the filesystem PDF cache used by sciproxy.
//
// Cached files are keyed by DOI. Because DOIs contain '/', keys are
// sanitized by replacing '/' with '@' before they become filenames. Reads
// touch the file timestamps so the purge logic can evict least recently
// used entries. Writes go through a temporary ".part" file and an atomic
// rename, and the content must sniff as a PDF before it is accepted.
package cache

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	sanitizeTarget      = "/"
	sanitizeReplacement = "@"
	cacheSuffix         = ".pdf"
	tempSuffix          = ".part"

	bytesPerMegabyte = 1024 * 1024
	hoursPerDay      = 24
)

// ErrMiss is returned by Get and Path when no cached file exists for the key.
var ErrMiss = errors.New("cache miss")

// ErrNotPDF is returned by Put when the provided content does not sniff as a PDF.
var ErrNotPDF = errors.New("content is not a pdf")

// Cache manages PDF files cached on the filesystem under a single directory.
type Cache struct {
	dir string
}

// New creates the cache directory if needed and returns a Cache rooted at dir.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// sanitizeKey replaces '/' with '@' in the provided key.
func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, sanitizeTarget, sanitizeReplacement)
}

// unsanitizeName converts a sanitized filename (without suffix) back to the original key.
func unsanitizeName(name string) string {
	return strings.ReplaceAll(name, sanitizeReplacement, sanitizeTarget)
}

// path generates the full cache file path for a given raw key.
func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+cacheSuffix)
}

// Exists reports whether a cached file exists for the given key.
func (c *Cache) Exists(key string) bool {
	_, err := os.Stat(c.path(key))
	return err == nil
}

// Path returns the path of the cached file for the key and touches the file
// so its timestamps track the last use. It returns ErrMiss when the key is
// not cached.
func (c *Cache) Path(key string) (string, error) {
	path := c.path(key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("checking cache file %s: %w", path, err)
	}

	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		// A failed touch only weakens LRU ordering; the hit still counts.
		log.Printf("touching cache file %s: %v", path, err)
	}

	return path, nil
}

// Get returns the content of the cached PDF for the key, touching the file
// on the way. It returns ErrMiss when the key is not cached.
func (c *Cache) Get(key string) ([]byte, error) {
	path, err := c.Path(key)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cache file %s: %w", path, err)
	}

	return content, nil
}

// Put stores the PDF content under the key. The content must sniff as
// application/pdf; anything else is rejected with ErrNotPDF so that upstream
// error pages never poison the cache. The write goes through a temporary
// file and an atomic rename.
func (c *Cache) Put(key string, content []byte) error {
	if !mimetype.Detect(content).Is("application/pdf") {
		return ErrNotPDF
	}

	path := c.path(key)
	tempPath := path + tempSuffix

	if err := os.WriteFile(tempPath, content, 0o644); err != nil {
		return fmt.Errorf("writing temp cache file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Printf("removing temp cache file %s: %v", tempPath, removeErr)
		}
		return fmt.Errorf("renaming temp cache file %s: %w", tempPath, err)
	}

	return nil
}

// entry describes one valid cached file during a directory scan.
type entry struct {
	usedAt time.Time
	size   int64
	path   string
	key    string
}

// scan lists the valid cache files (correct suffix, non-empty, not temp
// files) together with their total size.
func (c *Cache) scan() ([]entry, int64, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, 0, fmt.Errorf("listing cache dir %s: %w", c.dir, err)
	}

	var entries []entry
	var totalSize int64
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if !strings.HasSuffix(name, cacheSuffix) || strings.HasSuffix(name, tempSuffix) {
			continue
		}

		info, err := dirEntry.Info()
		if err != nil {
			// The file may have been purged concurrently.
			continue
		}
		if info.Size() == 0 {
			continue
		}

		entries = append(entries, entry{
			usedAt: info.ModTime(),
			size:   info.Size(),
			path:   filepath.Join(c.dir, name),
			key:    unsanitizeName(strings.TrimSuffix(name, cacheSuffix)),
		})
		totalSize += info.Size()
	}

	return entries, totalSize, nil
}

// Keys returns the original keys (DOIs) of all validly cached PDFs.
func (c *Cache) Keys() ([]string, error) {
	entries, _, err := c.scan()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}

	return keys, nil
}

// Purge removes cached files based on optional maximum age and size criteria.
// The age pass runs first and removes every file last used more than
// maxAgeDays ago (skipped when maxAgeDays <= 0). The size pass then removes
// least recently used files until the total size fits under maxMegabytes
// (skipped when maxMegabytes < 0; 0 purges everything).
//
// It returns the unique original keys of the removed files.
func (c *Cache) Purge(maxMegabytes float64, maxAgeDays float64) ([]string, error) {
	purged := make(map[string]bool)

	if maxAgeDays > 0 {
		cutoff := time.Now().Add(-time.Duration(maxAgeDays * hoursPerDay * float64(time.Hour)))
		entries, _, err := c.scan()
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			if !e.usedAt.Before(cutoff) {
				continue
			}
			if err := os.Remove(e.path); err != nil {
				if !os.IsNotExist(err) {
					log.Printf("removing expired cache file %s: %v", e.path, err)
				}
				continue
			}
			purged[e.key] = true
		}
	}

	if maxMegabytes >= 0 {
		maxBytes := int64(maxMegabytes * bytesPerMegabyte)
		entries, totalSize, err := c.scan()
		if err != nil {
			return nil, err
		}

		if totalSize > maxBytes {
			// Oldest first, so the least recently used entries go first.
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].usedAt.Before(entries[j].usedAt)
			})

			for _, e := range entries {
				if totalSize <= maxBytes {
					break
				}
				if err := os.Remove(e.path); err != nil {
					if !os.IsNotExist(err) {
						log.Printf("removing cache file %s: %v", e.path, err)
					}
					continue
				}
				totalSize -= e.size
				purged[e.key] = true
			}
		}
	}

	keys := make([]string, 0, len(purged))
	for key := range purged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}
