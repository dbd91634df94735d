package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bytedance/sonic"
	"github.com/peterbourgon/diskv/v3"
)

// fileEntry is the on-disk envelope: CachedResponse plus its expiry, since
// diskv stores raw bytes and has no concept of TTL itself.
type fileEntry struct {
	Response  CachedResponse
	ExpiresAt time.Time
}

// FileStore is a disk-backed Store built on diskv, for a process that wants
// its cache to survive restarts (spec.md §4.3's "persistent backend").
// Entries are named by sha256(key) so arbitrary key bytes are always valid
// filenames, and all sit directly in dir (the Transform adds no
// subdirectories); diskv handles concurrency within one process, matching
// diskv's own single-process-safe contract.
type FileStore struct {
	d *diskv.Diskv
}

// NewFileStore opens (creating if absent) a disk-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	d := diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 0,
		PathPerm:     0755,
		FilePerm:     0644,
	})
	return &FileStore{d: d}
}

func fileKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *FileStore) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.d.Read(fileKey(key))
	if err != nil {
		return nil, false, nil
	}
	var entry fileEntry
	if err := sonic.Unmarshal(raw, &entry); err != nil {
		return nil, false, newError(KindCacheBackend, "corrupt cache file entry", err)
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		_ = s.d.Erase(fileKey(key))
		return nil, false, nil
	}
	resp := entry.Response
	resp.ExpiresAt = entry.ExpiresAt
	return &resp, true, nil
}

func (s *FileStore) Set(_ context.Context, key string, entry *CachedResponse, ttl *time.Duration) error {
	now := time.Now()
	fe := fileEntry{Response: *entry}
	fe.Response.CreatedAt = now
	switch {
	case ttl == nil:
		fe.ExpiresAt = time.Time{}
	case *ttl == 0:
		fe.ExpiresAt = time.Time{}
	default:
		fe.ExpiresAt = now.Add(*ttl)
	}

	raw, err := sonic.Marshal(fe)
	if err != nil {
		return newError(KindCacheBackend, "cannot encode cache file entry", err)
	}
	if err := s.d.Write(fileKey(key), raw); err != nil {
		return newError(KindCacheBackend, "cannot write cache file", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := s.d.Erase(fileKey(key)); err != nil && err != diskv.ErrNotFound {
		return newError(KindCacheBackend, "cannot erase cache file", err)
	}
	return nil
}

func (s *FileStore) Has(_ context.Context, key string) (bool, error) {
	return s.d.Has(fileKey(key)), nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := s.d.EraseAll(); err != nil {
		return newError(KindCacheBackend, "cannot clear cache directory", err)
	}
	return nil
}

// Prune walks every on-disk entry and deletes the expired ones, since diskv
// has no lazy-expiry hook of its own.
func (s *FileStore) Prune(ctx context.Context) error {
	cancel := make(chan struct{})
	defer close(cancel)
	for key := range s.d.Keys(cancel) {
		raw, err := s.d.Read(key)
		if err != nil {
			continue
		}
		var entry fileEntry
		if err := sonic.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
			_ = s.d.Erase(key)
		}
	}
	return nil
}
