package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileBackend implements storage using one file per key under baseDir/kv.
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
	values  map[string][]byte
}

// NewFileBackend creates a new file-based storage backend
func NewFileBackend(baseDir string) *FileBackend {
	return &FileBackend{
		baseDir: baseDir,
		values:  make(map[string][]byte),
	}
}

func (f *FileBackend) dir() string { return filepath.Join(f.baseDir, "kv") }

// keys are path-escaped so any string is a valid file name
func (f *FileBackend) pathFor(key string) string {
	return filepath.Join(f.dir(), url.PathEscape(key)+".json")
}

func (f *FileBackend) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(f.dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", f.dir(), err)
	}
	if err := f.loadAll(); err != nil {
		return fmt.Errorf("failed to load existing data: %w", err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) Health(ctx context.Context) error {
	_, err := os.Stat(f.dir())
	return err
}

func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.values[key]
	if !ok {
		return nil, &ErrNotFound{Key: key}
	}
	return append([]byte(nil), v...), nil
}

func (f *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := writeFileAtomic(f.pathFor(key), value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	f.values[key] = append([]byte(nil), value...)
	return nil
}

func (f *FileBackend) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.values, key)
	if err := os.Remove(f.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileBackend) Keys(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileBackend) loadAll() error {
	files, err := os.ReadDir(f.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir(), name))
		if err != nil {
			continue
		}
		f.values[key] = data
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
