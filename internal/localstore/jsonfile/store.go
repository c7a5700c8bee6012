// Package jsonfile implements the local cache as one JSON document per key
// in a directory. Writes use the temp-file, fsync, rename pattern so a crash
// never leaves a half-written entry.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/julianstephens/daylit-sync/internal/localstore"
	"github.com/julianstephens/daylit-sync/internal/logger"
)

const fileExt = ".json"

type document struct {
	Version uint64          `json:"version"`
	Rows    json.RawMessage `json:"rows"`
	Deleted bool            `json:"deleted,omitempty"`
}

type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

func (s *Store) Path() string {
	return s.dir
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (localstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

func (s *Store) Set(ctx context.Context, key string, rows []json.RawMessage) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(key)
	if err != nil {
		return 0, err
	}
	return s.write(key, rows, current.Version+1)
}

func (s *Store) CompareAndSet(ctx context.Context, key string, rows []json.RawMessage, version uint64) (bool, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(key)
	if err != nil {
		return false, 0, err
	}
	if current.Version != version {
		return false, current.Version, nil
	}
	next, err := s.write(key, rows, version+1)
	if err != nil {
		return false, 0, err
	}
	return true, next, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	var keys []string
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if doc, ok := s.document(key); ok && doc.Deleted {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete empties key and hides it from Keys. The file stays behind with a
// bumped version.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.document(key)
	if !ok || doc.Deleted {
		return nil
	}
	if _, err := s.writeDocument(key, nil, doc.Version+1, true); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func (s *Store) file(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}

func (s *Store) read(key string) (localstore.Entry, error) {
	data, err := os.ReadFile(s.file(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return localstore.Entry{}, nil
		}
		return localstore.Entry{}, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("Discarding corrupt cache file", "key", key, "error", err)
		return localstore.Entry{}, nil
	}
	if doc.Deleted {
		return localstore.Entry{Version: doc.Version}, nil
	}
	return localstore.Entry{
		Rows:    localstore.DecodeRows(key, doc.Rows),
		Version: doc.Version,
	}, nil
}

// document reads the raw file of key. Missing and corrupt files report false.
func (s *Store) document(key string) (document, bool) {
	data, err := os.ReadFile(s.file(key))
	if err != nil {
		return document{}, false
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, false
	}
	return doc, true
}

func (s *Store) write(key string, rows []json.RawMessage, version uint64) (uint64, error) {
	return s.writeDocument(key, rows, version, false)
}

func (s *Store) writeDocument(key string, rows []json.RawMessage, version uint64, deleted bool) (uint64, error) {
	payload, err := localstore.EncodeRows(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	data, err := json.Marshal(document{Version: version, Rows: payload, Deleted: deleted})
	if err != nil {
		return 0, fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return 0, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := writeAtomic(s.file(key), data); err != nil {
		return 0, err
	}
	return version, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
