package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mike-a-ellis/docqa/internal/index"
)

const (
	indexSuffix  = ".index"
	chunksSuffix = "_chunks.json"

	// DefaultCacheSize is the number of loaded document indexes kept in memory.
	DefaultCacheSize = 128
)

// chunksFile is the on-disk chunk list stored next to each index file.
type chunksFile struct {
	Chunks []string `json:"chunks"`
}

// loaded is a fully decoded, validated artifact along with the state of
// the two files it was read from.
type loaded struct {
	flat   *index.Flat
	model  string
	chunks []string
	stamps [2]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func (a fileStamp) same(b fileStamp) bool {
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{size: info.Size(), modTime: info.ModTime()}, nil
}

// FileStore keeps one index file and one chunk file per document:
//
//	<root>/<user>/<doc>.index
//	<root>/<user>/<doc>_chunks.json
type FileStore struct {
	root  string
	cache *lru.Cache[Key, *loaded]
}

var _ ArtifactStore = (*FileStore)(nil)

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, cacheSize int) (*FileStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vector store directory: %w", err)
	}
	cache, err := lru.New[Key, *loaded](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	return &FileStore{root: root, cache: cache}, nil
}

func (s *FileStore) indexPath(k Key) string {
	return filepath.Join(s.root, k.UserID, k.DocumentID+indexSuffix)
}

func (s *FileStore) chunksPath(k Key) string {
	return filepath.Join(s.root, k.UserID, k.DocumentID+chunksSuffix)
}

// Save writes the index file, then the chunk file. Each is written to a
// temporary file, synced and renamed into place.
func (s *FileStore) Save(ctx context.Context, key Key, a *Artifact) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	flat := index.NewFlat(len(a.Vectors[0]))
	if err := flat.Add(a.Vectors...); err != nil {
		return err
	}
	var indexBuf bytes.Buffer
	if err := flat.Encode(&indexBuf, a.Model); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	chunksBuf, err := json.Marshal(chunksFile{Chunks: a.Chunks})
	if err != nil {
		return fmt.Errorf("failed to encode chunks: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(s.root, key.UserID), 0o755); err != nil {
		return fmt.Errorf("failed to create user directory: %w", err)
	}

	s.cache.Remove(key)
	if err := writeFileAtomic(s.indexPath(key), indexBuf.Bytes()); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := writeFileAtomic(s.chunksPath(key), chunksBuf); err != nil {
		_ = os.Remove(s.indexPath(key))
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	return nil
}

// Search loads the document (from cache when possible) and runs an exact search.
func (s *FileStore) Search(ctx context.Context, key Key, q Query) ([]Hit, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if q.Model != "" && l.model != q.Model {
		return nil, fmt.Errorf("%w: %s has %q, want %q", ErrModelMismatch, key, l.model, q.Model)
	}
	if len(q.Vector) != l.flat.Dim() {
		return nil, fmt.Errorf("%w: %s: query has %d dimensions, index has %d",
			ErrModelMismatch, key, len(q.Vector), l.flat.Dim())
	}

	found, err := l.flat.Search(q.Vector, q.K)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(found))
	for i, h := range found {
		hits[i] = Hit{Position: h.Position, Distance: h.Distance, Text: l.chunks[h.Position]}
	}
	return hits, nil
}

func (s *FileStore) load(key Key) (*loaded, error) {
	paths := [2]string{s.indexPath(key), s.chunksPath(key)}
	var stamps [2]fileStamp
	for i, p := range paths {
		st, err := stampOf(p)
		if err != nil {
			s.cache.Remove(key)
			return nil, fmt.Errorf("%w: %s: %v", ErrArtifactMissing, key, err)
		}
		stamps[i] = st
	}
	if l, ok := s.cache.Get(key); ok {
		if l.stamps[0].same(stamps[0]) && l.stamps[1].same(stamps[1]) {
			return l, nil
		}
		s.cache.Remove(key)
	}

	f, err := os.Open(paths[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactMissing, key, err)
	}
	flat, model, err := index.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactMissing, key, err)
	}

	raw, err := os.ReadFile(paths[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactMissing, key, err)
	}
	var cf chunksFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("%w: %s: chunks: %v", ErrArtifactMissing, key, err)
	}
	if len(cf.Chunks) != flat.Len() {
		return nil, fmt.Errorf("%w: %s: %d chunks for %d vectors", ErrArtifactMissing, key, len(cf.Chunks), flat.Len())
	}

	l := &loaded{flat: flat, model: model, chunks: cf.Chunks, stamps: stamps}
	s.cache.Add(key, l)
	return l, nil
}

// Delete removes both files and evicts the cached index.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.cache.Remove(key)

	var errs []error
	for _, p := range []string{s.indexPath(key), s.chunksPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	// Drop the user directory once it is empty; fails harmlessly otherwise.
	_ = os.Remove(filepath.Join(s.root, key.UserID))
	return errors.Join(errs...)
}

// Keys scans the root directory for index and chunk files.
func (s *FileStore) Keys(ctx context.Context) ([]Key, error) {
	users, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector store directory: %w", err)
	}

	var keys []Key
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, u.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read user directory %s: %w", u.Name(), err)
		}
		seen := make(map[string]bool)
		for _, f := range files {
			name := f.Name()
			var doc string
			switch {
			case strings.HasSuffix(name, chunksSuffix):
				doc = strings.TrimSuffix(name, chunksSuffix)
			case strings.HasSuffix(name, indexSuffix):
				doc = strings.TrimSuffix(name, indexSuffix)
			default:
				continue
			}
			if doc == "" || seen[doc] {
				continue
			}
			seen[doc] = true
			keys = append(keys, Key{UserID: u.Name(), DocumentID: doc})
		}
	}
	return keys, nil
}

// Health checks that the root directory is still accessible.
func (s *FileStore) Health(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("vector store directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vector store root %s is not a directory", s.root)
	}
	return nil
}

// Close drops all cached indexes.
func (s *FileStore) Close() error {
	s.cache.Purge()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
