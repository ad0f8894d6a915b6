package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const currentVersion = 1

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether slug satisfies the naming rule in spec section 3:
// lowercase alphanumeric/dash.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// Store is the single-writer, multi-reader registry document. All mutating
// operations serialize the whole document, write it to a temp file in the
// same directory, and rename over the real path so readers never observe a
// torn write.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  Document
}

// Open loads the registry at path, creating an empty document in memory if
// the file does not yet exist on disk. The file is not created until the
// first mutating call.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: Document{Version: currentVersion}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("registry: read %s: %w", s.path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("registry: parse %s: %w", s.path, err)
	}
	if doc.Version == 0 {
		doc.Version = currentVersion
	}
	s.doc = doc
	return nil
}

// Find returns a copy of the entry for slug.
func (s *Store) Find(slug string) (ServerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.doc.Servers {
		if e.Slug == slug {
			return e, nil
		}
	}
	return ServerEntry{}, &ErrNotFound{Slug: slug}
}

// List returns a copy of every entry, sorted by slug for stable output.
func (s *Store) List() []ServerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServerEntry, len(s.doc.Servers))
	copy(out, s.doc.Servers)
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Upsert inserts entry, or replaces the existing entry with the same slug,
// then atomically rewrites the document.
func (s *Store) Upsert(entry ServerEntry) error {
	if !ValidSlug(entry.Slug) {
		return &ErrInvalidSlug{Slug: entry.Slug}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, e := range s.doc.Servers {
		if e.Slug == entry.Slug {
			s.doc.Servers[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.doc.Servers = append(s.doc.Servers, entry)
	}
	return s.persistLocked()
}

// Remove deletes the entry for slug. It is idempotent: removing an unknown
// slug is not an error.
func (s *Store) Remove(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, e := range s.doc.Servers {
		if e.Slug == slug {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	s.doc.Servers = append(s.doc.Servers[:idx], s.doc.Servers[idx+1:]...)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("registry: mkdir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("registry: create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("registry: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("registry: sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("registry: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("registry: rename %s over %s: %w", tmp, s.path, err)
	}
	return nil
}
