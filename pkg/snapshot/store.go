package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var ErrUnknownSnapshot = errors.New("unknown snapshot")

// Entry describes one saved snapshot.
type Entry struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps JPEG snapshots in a directory with a JSON index. Entries older
// than the retention period are removed together with their files.
type Store struct {
	mu        sync.Mutex
	dir       string
	indexPath string
	retention time.Duration
}

// NewStore opens (and creates if needed) a snapshot directory. A zero
// retention keeps snapshots forever.
func NewStore(dir string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Store{
		dir:       dir,
		indexPath: filepath.Join(dir, "index.json"),
		retention: retention,
	}, nil
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes frame as a new snapshot taken at the given time and prunes
// expired ones. If the index cannot be updated the new file is removed again.
// An expired file that cannot be removed stays indexed and is retried on the
// next Save.
func (s *Store) Save(frame []byte, at time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex()
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Name:      uniqueName(entries, "snap_"+at.Format("20060102_150405.000")),
		Size:      len(frame),
		Timestamp: at,
	}
	path := filepath.Join(s.dir, entry.Name)
	if err := os.WriteFile(path, frame, 0644); err != nil {
		return Entry{}, fmt.Errorf("failed to write snapshot: %w", err)
	}
	entries = append(entries, entry)

	// Filter out old items
	if s.retention > 0 {
		var recent []Entry
		cutoff := time.Now().Add(-s.retention)
		for _, e := range entries {
			if e.Timestamp.After(cutoff) {
				recent = append(recent, e)
				continue
			}
			if err := os.Remove(filepath.Join(s.dir, e.Name)); err != nil && !os.IsNotExist(err) {
				slog.Warn("Failed to remove expired snapshot", "name", e.Name, "error", err)
				recent = append(recent, e)
			}
		}
		entries = recent
	}

	if err := s.writeIndex(entries); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("Failed to remove unindexed snapshot", "name", entry.Name, "error", rmErr)
		}
		return Entry{}, err
	}
	return entry, nil
}

// List returns the indexed snapshots, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Path returns the file path of an indexed snapshot. Names that are not in
// the index are rejected, so callers can pass user input.
func (s *Store) Path(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Name == name {
			return filepath.Join(s.dir, e.Name), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSnapshot, name)
}

func (s *Store) readIndex() ([]Entry, error) {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil // Return empty list if file doesn't exist
		}
		return nil, fmt.Errorf("failed to read snapshot index: %w", err)
	}

	if len(data) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupted index: start fresh and let the next Save overwrite it.
		return []Entry{}, nil
	}
	return entries, nil
}

func (s *Store) writeIndex(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.indexPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot index: %w", err)
	}
	return nil
}

// uniqueName appends a counter when two snapshots share a millisecond.
func uniqueName(entries []Entry, base string) string {
	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		taken[e.Name] = true
	}

	name := base + ".jpg"
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s_%d.jpg", base, i)
	}
	return name
}
