// Package fs abstracts the real storage the sandbox resolver maps onto.
package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/schleuse-ai/schleuse/internal/logger"
)

// FileInfo represents file metadata
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FileSystem is an abstraction over filesystem operations. All paths handed
// to a FileSystem are real (already resolved) paths.
type FileSystem interface {
	// ReadFile reads the entire file
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// WriteFile writes data to a file, creating parent directories
	WriteFile(ctx context.Context, path string, data []byte) error
	// Stat returns file information
	Stat(ctx context.Context, path string) (*FileInfo, error)
	// ListDir lists directory contents
	ListDir(ctx context.Context, path string) ([]*FileInfo, error)
	// Exists checks if a file exists
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes a file
	Delete(ctx context.Context, path string) error
	// MkdirAll creates a directory and all parent directories
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
}

// CachedFS is a FileSystem backed by the OS with a directory listing cache
// invalidated through fsnotify events.
type CachedFS struct {
	dirCache   map[string]*dirCacheEntry
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	maxEntries int
	watcher    *fsnotify.Watcher
	stopWatch  chan struct{}
	closeOnce  sync.Once
}

type dirCacheEntry struct {
	entries   []*FileInfo
	timestamp time.Time
}

// NewCachedFS creates a new cached filesystem with fsnotify invalidation.
func NewCachedFS(cacheTTL time.Duration, maxEntries int) *CachedFS {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Global().Warn("failed to create file watcher: %v", err)
	}

	cfs := &CachedFS{
		dirCache:   make(map[string]*dirCacheEntry),
		cacheTTL:   cacheTTL,
		maxEntries: maxEntries,
		watcher:    watcher,
		stopWatch:  make(chan struct{}),
	}

	if watcher != nil {
		go cfs.watchFiles()
	}

	return cfs
}

// Close stops the filesystem watcher.
func (cfs *CachedFS) Close() error {
	var err error
	cfs.closeOnce.Do(func() {
		close(cfs.stopWatch)
		if cfs.watcher != nil {
			err = cfs.watcher.Close()
		}
	})
	return err
}

// watchFiles monitors filesystem events and invalidates cache
func (cfs *CachedFS) watchFiles() {
	for {
		select {
		case <-cfs.stopWatch:
			return
		case event, ok := <-cfs.watcher.Events:
			if !ok {
				return
			}
			cfs.InvalidateDirCache(filepath.Dir(event.Name))
		case err, ok := <-cfs.watcher.Errors:
			if !ok {
				return
			}
			logger.Global().Error("filesystem watcher error: %v", err)
		}
	}
}

// InvalidateDirCache removes a directory from cache
func (cfs *CachedFS) InvalidateDirCache(path string) {
	cfs.cacheMu.Lock()
	defer cfs.cacheMu.Unlock()
	delete(cfs.dirCache, path)
}

func (cfs *CachedFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	// No caching for file reads, always read from disk
	return os.ReadFile(path)
}

func (cfs *CachedFS) WriteFile(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	cfs.InvalidateDirCache(dir)

	if cfs.watcher != nil {
		if err := cfs.watcher.Add(dir); err != nil {
			logger.Global().Warn("CachedFS: failed to add watcher for %s: %v", dir, err)
		}
	}

	return nil
}

func (cfs *CachedFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

func (cfs *CachedFS) ListDir(ctx context.Context, path string) ([]*FileInfo, error) {
	cfs.cacheMu.RLock()
	if entry, ok := cfs.dirCache[path]; ok {
		if time.Since(entry.timestamp) < cfs.cacheTTL {
			cfs.cacheMu.RUnlock()
			return entry.entries, nil
		}
	}
	cfs.cacheMu.RUnlock()

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, &FileInfo{
			Path:    filepath.Join(path, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   entry.IsDir(),
		})
	}

	cfs.cacheMu.Lock()
	if len(cfs.dirCache) >= cfs.maxEntries {
		// Simple eviction: remove the oldest entry
		var oldestKey string
		var oldestTime time.Time
		for k, v := range cfs.dirCache {
			if oldestKey == "" || v.timestamp.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.timestamp
			}
		}
		delete(cfs.dirCache, oldestKey)
	}
	cfs.dirCache[path] = &dirCacheEntry{
		entries:   result,
		timestamp: time.Now(),
	}
	cfs.cacheMu.Unlock()

	if cfs.watcher != nil {
		if err := cfs.watcher.Add(path); err != nil {
			logger.Global().Warn("CachedFS: failed to add watcher for %s: %v", path, err)
		}
	}

	return result, nil
}

func (cfs *CachedFS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (cfs *CachedFS) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	cfs.InvalidateDirCache(filepath.Dir(path))
	return nil
}

func (cfs *CachedFS) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
