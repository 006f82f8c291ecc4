// Package audiocache implements the Audio Cache (C6): a content-addressed
// store of synthesized audio blobs on local disk, bounded by a byte cap
// with least-recently-accessed eviction, plus an age-based sweep. The
// in-memory index is guarded by a mutex; each blob and its metadata file
// are written in place under a per-fingerprint lock (no temp-file rename).
package audiocache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/thunder45/service-translate/internal/apierrors"
	"github.com/thunder45/service-translate/pkg/logging"
)

// Artifact is the AudioArtifact record of spec §3.
type Artifact struct {
	Fingerprint string    `json:"fingerprint"`
	MimeType    string    `json:"mimeType"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time `json:"createdAt"`
	LastAccess  time.Time `json:"lastAccess"`
	Size        int64     `json:"size"`
}

// Fingerprint computes H(text ‖ language ‖ voice ‖ mode), per §4.7 step 1.
func Fingerprint(text, language, voice, mode string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s", text, language, voice, mode)
	return hex.EncodeToString(h.Sum(nil))
}

type lockedEntry struct {
	mu sync.Mutex
}

// Cache is the Audio Cache.
type Cache struct {
	dir     string
	byteCap int64
	logger  *logging.Logger

	mu        sync.Mutex
	index     map[string]*Artifact
	lru       *list.List // front = most recently used
	lruElem   map[string]*list.Element
	totalSize int64

	fpLocksMu sync.Mutex
	fpLocks   map[string]*lockedEntry
}

func New(dir string, byteCap int64, logger *logging.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierrors.Wrap(apierrors.CodePersistenceIO, "could not create audio cache directory", err)
	}
	c := &Cache{
		dir:     dir,
		byteCap: byteCap,
		logger:  logger,
		index:   make(map[string]*Artifact),
		lru:     list.New(),
		lruElem: make(map[string]*list.Element),
		fpLocks: make(map[string]*lockedEntry),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) blobPath(fingerprint, ext string) string {
	return filepath.Join(c.dir, fingerprint+"."+ext)
}

func (c *Cache) metaPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

func (c *Cache) extFor(mime string) string {
	switch mime {
	case "audio/mpeg":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	default:
		return "bin"
	}
}

func (c *Cache) loadIndex() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return apierrors.Wrap(apierrors.CodePersistenceIO, "failed to list audio cache directory", err)
	}
	var all []*Artifact
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		var a Artifact
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		all = append(all, &a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastAccess.After(all[j].LastAccess) })
	// oldest-accessed first, so the LRU list front ends up most-recent
	for i := len(all) - 1; i >= 0; i-- {
		c.insertLocked(all[i])
	}
	return nil
}

func (c *Cache) insertLocked(a *Artifact) {
	c.index[a.Fingerprint] = a
	elem := c.lru.PushFront(a.Fingerprint)
	c.lruElem[a.Fingerprint] = elem
	c.totalSize += a.Size
}

func (c *Cache) lockFor(fingerprint string) *lockedEntry {
	c.fpLocksMu.Lock()
	defer c.fpLocksMu.Unlock()
	l, ok := c.fpLocks[fingerprint]
	if !ok {
		l = &lockedEntry{}
		c.fpLocks[fingerprint] = l
	}
	return l
}

// Lookup returns the artifact for fingerprint and marks it recently
// accessed, per §4.7 step 2.
func (c *Cache) Lookup(fingerprint string) (*Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.index[fingerprint]
	if !ok {
		return nil, false
	}
	a.LastAccess = time.Now()
	if elem, ok := c.lruElem[fingerprint]; ok {
		c.lru.MoveToFront(elem)
	}
	return a, true
}

// Put writes a new blob under a per-fingerprint lock (§5: "writes happen
// under a per-fingerprint lock"), then enforces the byte cap by evicting
// least-recently-used artifacts.
func (c *Cache) Put(fingerprint, mimeType string, data []byte, duration time.Duration) (*Artifact, error) {
	lock := c.lockFor(fingerprint)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if existing, ok := c.Lookup(fingerprint); ok {
		return existing, nil
	}

	ext := c.extFor(mimeType)
	if err := os.WriteFile(c.blobPath(fingerprint, ext), data, 0o644); err != nil {
		return nil, apierrors.Wrap(apierrors.CodePersistenceIO, "failed to write audio blob", err)
	}

	now := time.Now()
	a := &Artifact{
		Fingerprint: fingerprint,
		MimeType:    mimeType,
		Duration:    duration,
		CreatedAt:   now,
		LastAccess:  now,
		Size:        int64(len(data)),
	}
	metaData, _ := json.Marshal(a)
	if err := os.WriteFile(c.metaPath(fingerprint), metaData, 0o644); err != nil {
		return nil, apierrors.Wrap(apierrors.CodePersistenceIO, "failed to write audio cache metadata", err)
	}

	c.mu.Lock()
	c.insertLocked(a)
	over := c.totalSize - c.byteCap
	c.mu.Unlock()

	if over > 0 {
		c.evict(over)
	}
	return a, nil
}

// Ext reports the on-disk extension for an artifact's MIME type, used to
// build the /audio/{fingerprint}.{ext} URL of §6.
func (c *Cache) Ext(a *Artifact) string { return c.extFor(a.MimeType) }

// BlobPath returns the path to an artifact's blob for serving over HTTP.
func (c *Cache) BlobPath(a *Artifact) string { return c.blobPath(a.Fingerprint, c.extFor(a.MimeType)) }

// evict removes least-recently-used artifacts until at least atLeast
// bytes have been freed, per §4.7's "bounded size and LRU eviction".
func (c *Cache) evict(atLeast int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var freed int64
	for freed < atLeast {
		elem := c.lru.Back()
		if elem == nil {
			break
		}
		fp := elem.Value.(string)
		a := c.index[fp]
		if a == nil {
			c.lru.Remove(elem)
			delete(c.lruElem, fp)
			continue
		}
		c.lru.Remove(elem)
		delete(c.lruElem, fp)
		delete(c.index, fp)
		c.totalSize -= a.Size
		freed += a.Size

		os.Remove(c.blobPath(fp, c.extFor(a.MimeType)))
		os.Remove(c.metaPath(fp))
	}
	if freed > 0 {
		c.logger.Infof("audio cache evicted %s to stay under %s cap", humanize.Bytes(uint64(freed)), humanize.Bytes(uint64(c.byteCap)))
	}
}

// Sweep removes artifacts whose last access is older than maxAge, per
// §4.7's "periodic sweep removes artifacts older than a configured age".
func (c *Cache) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	c.mu.Lock()
	var stale []string
	for fp, a := range c.index {
		if a.LastAccess.Before(cutoff) {
			stale = append(stale, fp)
		}
	}
	for _, fp := range stale {
		a := c.index[fp]
		if elem, ok := c.lruElem[fp]; ok {
			c.lru.Remove(elem)
			delete(c.lruElem, fp)
		}
		delete(c.index, fp)
		c.totalSize -= a.Size
		os.Remove(c.blobPath(fp, c.extFor(a.MimeType)))
		os.Remove(c.metaPath(fp))
	}
	c.mu.Unlock()

	if len(stale) > 0 {
		c.logger.Infof("audio cache sweep removed %d stale artifacts", len(stale))
	}
	return len(stale)
}

// StartSweep runs Sweep on an interval until stop is closed.
func (c *Cache) StartSweep(stop <-chan struct{}, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep(maxAge)
			case <-stop:
				return
			}
		}
	}()
}

// TotalSize reports current on-disk footprint, for /health.
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSize
}
