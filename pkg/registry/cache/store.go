package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Errors for durable stores.
var (
	errInvalidKey  = errors.New("invalid cache key")
	errCreateDir   = errors.New("failed to create cache directory")
	errWriteTemp   = errors.New("failed to write temporary cache file")
	errRenameEntry = errors.New("failed to move cache file into place")
	errReadEntry   = errors.New("failed to read cache file")
	errRemoveEntry = errors.New("failed to remove cache file")
)

// nopStore is the durable tier of a memory-only Cache.
type nopStore struct{}

func (nopStore) Load(Key) ([]byte, bool, error) { return nil, false, nil }
func (nopStore) Save(Key, []byte) error         { return nil }
func (nopStore) Delete(Key) error               { return nil }

// MemoryStore keeps payloads in a map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[Key][]byte{}}
}

// Load implements Store.
func (s *MemoryStore) Load(key Key) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.entries[key]

	return payload, ok, nil
}

// Save implements Store.
func (s *MemoryStore) Save(key Key, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = payload

	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)

	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// FileStore keeps one file per entry at
// <root>/manifests/<repository>/<tag>/<variant>.json.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the entry, so concurrent writers replace whole entries.
type FileStore struct {
	fs   afero.Fs
	root string
}

// NewFileStore returns a FileStore rooted at root on filesystem fsys.
// A nil fsys uses the OS filesystem.
func NewFileStore(fsys afero.Fs, root string) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	return &FileStore{fs: fsys, root: root}
}

// Path returns the file holding key.
func (s *FileStore) Path(key Key) (string, error) {
	if !validSegment(key.Tag) || !validSegment(key.Variant) || key.Repository == "" {
		return "", fmt.Errorf("%w: %s", errInvalidKey, key)
	}

	for _, part := range strings.Split(key.Repository, "/") {
		if !validSegment(part) {
			return "", fmt.Errorf("%w: %s", errInvalidKey, key)
		}
	}

	return path.Join(s.root, "manifests", key.Repository, key.Tag, key.Variant+".json"), nil
}

func validSegment(segment string) bool {
	return segment != "" && segment != "." && segment != ".." && !strings.ContainsAny(segment, `/\`)
}

// Load implements Store.
func (s *FileStore) Load(key Key) ([]byte, bool, error) {
	file, err := s.Path(key)
	if err != nil {
		return nil, false, err
	}

	payload, err := afero.ReadFile(s.fs, file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", errReadEntry, err)
	}

	return payload, true, nil
}

// Save implements Store.
func (s *FileStore) Save(key Key, payload []byte) error {
	file, err := s.Path(key)
	if err != nil {
		return err
	}

	dir := path.Dir(file)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("%w: %w", errCreateDir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("%w: %w", errWriteTemp, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)

		return fmt.Errorf("%w: %w", errWriteTemp, err)
	}

	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)

		return fmt.Errorf("%w: %w", errWriteTemp, err)
	}

	if err := s.fs.Rename(tmpName, file); err != nil {
		_ = s.fs.Remove(tmpName)

		return fmt.Errorf("%w: %w", errRenameEntry, err)
	}

	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(key Key) error {
	file, err := s.Path(key)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", errRemoveEntry, err)
	}

	return nil
}
