package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gaceta/internal/core"
)

func init() {
	Register("file", func(ctx context.Context, cfg Config) (Store, error) {
		return OpenFile(cfg.Path)
	})
}

// FileStore keeps the delivered set as a single JSON array on disk, in
// insertion order so the file doubles as a delivery audit trail. Every commit
// rewrites the whole array through a temp file and an atomic rename.
type FileStore struct {
	path  string
	ids   []string
	index map[string]struct{}
}

func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		ids:   []string{},
		index: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, &core.PersistenceError{Op: "load", Err: err}
		}
		// Initialize an empty ledger so later readers never see a
		// missing file.
		if err := s.persist(); err != nil {
			return nil, err
		}
		slog.Info("Initialized empty ledger", "path", path)
		return s, nil
	}

	if err := json.Unmarshal(data, &s.ids); err != nil {
		return nil, &core.PersistenceError{Op: "load", Err: fmt.Errorf("malformed ledger %s: %w", path, err)}
	}

	for _, id := range s.ids {
		s.index[id] = struct{}{}
	}

	slog.Debug("Loaded ledger", "path", path, "entries", len(s.ids))
	return s, nil
}

func (s *FileStore) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *FileStore) Len() int {
	return len(s.index)
}

// Commit appends id and rewrites the file. On a write failure the in-memory
// snapshot is rolled back so a later retry starts from a consistent state.
func (s *FileStore) Commit(ctx context.Context, id string) error {
	if _, ok := s.index[id]; ok {
		return nil
	}

	s.ids = append(s.ids, id)
	s.index[id] = struct{}{}

	if err := s.persist(); err != nil {
		s.ids = s.ids[:len(s.ids)-1]
		delete(s.index, id)
		return err
	}

	return nil
}

// persist writes the whole set to a sibling temp file, syncs it, then renames
// it over the ledger path. A crash at any point leaves either the previous or
// the new file, never a truncated one.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.ids, "", "  ")
	if err != nil {
		return &core.PersistenceError{Op: "commit", Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &core.PersistenceError{Op: "commit", Err: err}
	}

	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return &core.PersistenceError{Op: "commit", Err: werr}
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return &core.PersistenceError{Op: "commit", Err: err}
	}

	return nil
}

func (s *FileStore) Close() error {
	return nil
}
