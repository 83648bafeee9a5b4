package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arkturian/share-proxy/pkg/logging"
)

const metaSuffix = ".meta"

// FileStore is the disk-backed implementation of Store. One payload file per
// key, optional JSON metadata sidecar, atomic rename on write. No locking:
// multiple processes may share the directory.
type FileStore struct {
	dir string
	ttl time.Duration // 0 means entries never expire
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir, ttl: ttl}, nil
}

// Get returns the entry for name, or ErrMiss if it is absent or its age
// exceeds the TTL. Expired entries are left in place; the next Put
// overwrites them. Reading bumps the entry's access time so that eviction
// order reflects use, not just creation.
func (s *FileStore) Get(name string) (*Entry, error) {
	path := filepath.Join(s.dir, name)

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, err
	}

	if s.ttl > 0 && time.Since(fi.ModTime()) > s.ttl {
		return nil, ErrMiss
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Evicted between stat and read. Treat as a miss and refetch.
			return nil, ErrMiss
		}
		return nil, err
	}

	entry := &Entry{
		Key:          name,
		Data:         data,
		CreatedAt:    fi.ModTime(),
		LastAccessAt: time.Now(),
	}

	if metaData, err := os.ReadFile(path + metaSuffix); err == nil {
		var meta Metadata
		if err := json.Unmarshal(metaData, &meta); err == nil {
			entry.Meta = &meta
		}
	}

	// Not all mounts update atime on read (relatime), so bump it ourselves.
	if err := os.Chtimes(path, entry.LastAccessAt, fi.ModTime()); err != nil {
		logging.LogCacheFailure("touch", name, err)
	}

	return entry, nil
}

// Put writes the payload (and metadata sidecar, when given) for name.
// Data goes to a temp file first and is renamed into place, so a concurrent
// reader never observes a partially written payload.
func (s *FileStore) Put(name string, data []byte, meta *Metadata) error {
	if err := s.writeAtomic(filepath.Join(s.dir, name), data); err != nil {
		return err
	}

	if meta != nil {
		metaData, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := s.writeAtomic(filepath.Join(s.dir, name+metaSuffix), metaData); err != nil {
			return err
		}
	}

	return nil
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

type evictCandidate struct {
	name  string
	size  int64
	atime time.Time
}

// EvictIfOverBudget sums all payload files (metadata sidecars and temp files
// excluded) and, if the total exceeds maxTotalBytes, removes files in
// ascending last-access order until the total falls to 80% of the budget.
// Sidecars are removed together with their payloads.
func (s *FileStore) EvictIfOverBudget(maxTotalBytes int64) error {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	var total int64
	candidates := make([]evictCandidate, 0, len(dirEntries))

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		total += fi.Size()
		candidates = append(candidates, evictCandidate{
			name:  name,
			size:  fi.Size(),
			atime: accessTime(fi),
		})
	}

	if total <= maxTotalBytes {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].atime.Before(candidates[j].atime)
	})

	target := maxTotalBytes * 8 / 10
	evicted := 0
	for _, c := range candidates {
		if total <= target {
			break
		}
		if err := os.Remove(filepath.Join(s.dir, c.name)); err != nil && !os.IsNotExist(err) {
			logging.LogCacheFailure("evict", c.name, err)
			continue
		}
		os.Remove(filepath.Join(s.dir, c.name+metaSuffix))
		total -= c.size
		evicted++
	}

	if evicted > 0 {
		logging.Logger.Info("Evicted cache entries",
			zap.String("dir", s.dir),
			zap.Int("evicted", evicted),
			zap.Int64("remaining_bytes", total))
	}

	return nil
}

// accessTime extracts the last-access time from a stat result, falling back
// to the modification time when the platform does not expose one.
func accessTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Sec, st.Atim.Nsec)
	}
	return fi.ModTime()
}
