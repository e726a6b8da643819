// Package repocache manages local working copies of remote repositories,
// keyed by normalized (url, ref). Access to each working copy is serialized
// per key so concurrent tasks never clone, fetch, or read the same copy at
// the same time, while unrelated repositories proceed concurrently.
package repocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/teemtee/tmtweb/internal/port/gitclient"
)

// Cache hands out scoped handles to cloned working copies.
type Cache struct {
	basePath   string
	defaultRef string
	client     gitclient.Client
	log        *slog.Logger

	mu      sync.Mutex // guards entries and per-entry refcounts
	entries map[string]*entry

	clones atomic.Int64
}

// entry is one cached working copy. The semaphore is the entry's named
// lock: held for the whole acquire..release window.
type entry struct {
	sem        *semaphore.Weighted
	key        string
	path       string
	cloned     bool
	checkedOut string
	refs       int
	lastUsed   time.Time
}

// Handle is a scoped reference to a ready working copy. Callers must call
// Release on every exit path; the entry stays locked until they do.
type Handle struct {
	cache *Cache
	ent   *entry
	once  sync.Once
}

// Path returns the local path of the working copy.
func (h *Handle) Path() string { return h.ent.path }

// Release unlocks the entry and drops the reference. Safe to call more
// than once; only the first call has effect.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.ent.sem.Release(1)
		h.cache.mu.Lock()
		h.ent.refs--
		h.ent.lastUsed = time.Now()
		h.cache.mu.Unlock()
	})
}

// New creates a Cache cloning under basePath. An empty request ref is
// normalized to defaultRef before keying.
func New(basePath, defaultRef string, client gitclient.Client, log *slog.Logger) *Cache {
	return &Cache{
		basePath:   basePath,
		defaultRef: defaultRef,
		client:     client,
		log:        log,
		entries:    make(map[string]*entry),
	}
}

// Acquire returns a handle to a ready working copy for (url, ref), cloning
// on first use and reusing the checkout verbatim afterwards. It blocks
// while another holder has the same key. Fetch failures are returned as
// *metadata.FetchError (produced by the git client) and are not retried
// here; retry policy belongs to the caller.
func (c *Cache) Acquire(ctx context.Context, url, ref string) (*Handle, error) {
	key, ref := c.normalize(url, ref)

	c.mu.Lock()
	ent, ok := c.entries[key]
	if !ok {
		ent = &entry{
			sem:  semaphore.NewWeighted(1),
			key:  key,
			path: filepath.Join(c.basePath, dirName(key)),
		}
		c.entries[key] = ent
	}
	ent.refs++
	ent.lastUsed = time.Now()
	c.mu.Unlock()

	if err := ent.sem.Acquire(ctx, 1); err != nil {
		c.drop(ent)
		return nil, err
	}

	if err := c.ensureReady(ctx, ent, url, ref); err != nil {
		ent.sem.Release(1)
		c.drop(ent)
		return nil, err
	}

	return &Handle{cache: c, ent: ent}, nil
}

// ensureReady clones or updates the working copy. Called with the entry's
// lock held.
func (c *Cache) ensureReady(ctx context.Context, ent *entry, url, ref string) error {
	if !ent.cloned {
		if _, err := os.Stat(filepath.Join(ent.path, ".git")); err == nil {
			// A working copy left behind by a previous run. Ask git what
			// it has checked out and adopt it instead of cloning again; a
			// copy we cannot read gets removed and recloned below.
			if cur, err := c.client.CurrentRef(ctx, ent.path); err == nil {
				c.log.Debug("adopted existing working copy", "url", url, "checked_out", cur, "path", ent.path)
				ent.cloned = true
				ent.checkedOut = cur
			} else {
				c.log.Warn("removing unreadable working copy", "path", ent.path, "error", err)
				_ = os.RemoveAll(ent.path)
			}
		}
	}

	if !ent.cloned {
		if err := os.MkdirAll(c.basePath, 0o750); err != nil {
			return fmt.Errorf("repocache: create base path: %w", err)
		}
		c.log.Debug("cloning repository", "url", url, "ref", ref, "path", ent.path)
		if err := c.client.Clone(ctx, url, ref, ent.path); err != nil {
			// A partial clone must not be mistaken for a ready copy.
			_ = os.RemoveAll(ent.path)
			return err
		}
		c.clones.Add(1)
		ent.cloned = true
		ent.checkedOut = ref
		return nil
	}

	// An empty ref means the default branch; whatever an adopted copy has
	// checked out satisfies it.
	if ref == "" || ref == ent.checkedOut {
		return nil
	}
	c.log.Debug("updating repository checkout", "url", url, "ref", ref)
	if err := c.client.Checkout(ctx, ent.path, url, ref); err != nil {
		return err
	}
	ent.checkedOut = ref
	return nil
}

// drop decrements the refcount taken in Acquire when acquisition fails.
func (c *Cache) drop(ent *entry) {
	c.mu.Lock()
	ent.refs--
	ent.lastUsed = time.Now()
	c.mu.Unlock()
}

// CloneCount returns the number of clone operations performed.
func (c *Cache) CloneCount() int64 { return c.clones.Load() }

// Sweep removes working copies that are unreferenced and have not been
// used for at least maxIdle, and returns how many were removed.
func (c *Cache) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, ent := range c.entries {
		if ent.refs > 0 || ent.lastUsed.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(ent.path); err != nil {
			c.log.Warn("failed to remove working copy", "path", ent.path, "error", err)
			continue
		}
		delete(c.entries, key)
		removed++
	}
	if removed > 0 {
		c.log.Info("swept repository cache", "removed", removed)
	}
	return removed
}

// normalize canonicalizes the cache key: trailing slashes and a trailing
// .git suffix are insignificant, and an empty ref means the default ref.
func (c *Cache) normalize(url, ref string) (key, normRef string) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	url = strings.TrimSuffix(url, ".git")
	if ref == "" {
		ref = c.defaultRef
	}
	return url + "@" + ref, ref
}

// dirName derives a stable directory name from the cache key.
func dirName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
