package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// SnapshotVersion is the current version of the snapshot file format.
const SnapshotVersion = 1

// Snapshot is the JSON form of a FileStore.
type Snapshot struct {
	Version   int              `json:"version"`
	SavedAt   time.Time        `json:"saved_at"`
	Authority identity.Address `json:"authority"`
	Records   []SnapshotEntry  `json:"records,omitempty"`
}

// SnapshotEntry is one persisted record.
type SnapshotEntry struct {
	ID     identity.TokenID `json:"id"`
	Record Record           `json:"record"`
}

// FileStore is a MemoryStore persisted to a JSON snapshot file.
// Mutations stay in memory until Save is called. Counters are not persisted;
// Load rebuilds them from the records.
type FileStore struct {
	*MemoryStore

	fileMu sync.Mutex
	path   string
}

// NewFileStore creates a file-backed store. The authority is used until Load
// replaces it with the persisted one.
func NewFileStore(path string, authority identity.Address) *FileStore {
	return &FileStore{
		MemoryStore: NewMemoryStore(authority),
		path:        path,
	}
}

// OpenFileStore creates a file-backed store and loads the snapshot if one exists.
func OpenFileStore(path string, authority identity.Address) (*FileStore, error) {
	s := NewFileStore(path, authority)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the snapshot path.
func (s *FileStore) Path() string {
	return s.path
}

// Save persists the store to disk.
func (s *FileStore) Save() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	snap := s.snapshot()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so a crash never leaves a truncated snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load replaces the in-memory state with the snapshot on disk.
// A missing file leaves the store empty.
func (s *FileStore) Load() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	return s.restore(snap)
}

func (s *FileStore) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version:   SnapshotVersion,
		SavedAt:   time.Now().UTC(),
		Authority: s.authority,
		Records:   make([]SnapshotEntry, 0, len(s.records)),
	}
	for id, rec := range s.records {
		snap.Records = append(snap.Records, SnapshotEntry{ID: id, Record: rec.Clone()})
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		return snap.Records[i].ID.Big().Cmp(snap.Records[j].ID.Big()) < 0
	})
	return snap
}

func (s *FileStore) restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[identity.TokenID]Record, len(snap.Records))
	byDevice := make(map[identity.Address]identity.TokenID, len(snap.Records))
	c := newCounters()
	for _, e := range snap.Records {
		if err := e.Record.Validate(); err != nil {
			return fmt.Errorf("snapshot record %s: %w", e.ID, err)
		}
		if _, dup := records[e.ID]; dup {
			return fmt.Errorf("snapshot record %s: %w", e.ID, ErrDuplicateKey)
		}
		if _, dup := byDevice[e.Record.Device]; dup {
			return fmt.Errorf("snapshot record %s: %w", e.ID, errDeviceTaken)
		}
		records[e.ID] = e.Record
		byDevice[e.Record.Device] = e.ID
		c.add(e.Record)
	}

	s.authority = snap.Authority
	s.records = records
	s.byDevice = byDevice
	s.counters = c
	return nil
}

// Compile-time interface satisfaction check.
var _ Store = (*FileStore)(nil)
