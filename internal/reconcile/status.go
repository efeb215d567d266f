package reconcile

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SyncStatus is the persisted record of the last successful passes. All
// fields are nullable: a missing or unreadable status file means "never
// synced".
type SyncStatus struct {
	LastSyncFromPhone *time.Time `json:"last_sync_from_phone"`
	LastSyncToPhone   *time.Time `json:"last_sync_to_phone"`
	LastFullSync      *time.Time `json:"last_full_sync"`
}

// StatusStore serializes read-modify-write cycles on the status dotfile.
// Watcher-triggered passes and the initial sync can race after a quick
// disconnect/reconnect, so every mutation goes through the mutex.
type StatusStore struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

func NewStatusStore(path string, log *slog.Logger) *StatusStore {
	return &StatusStore{path: path, log: log}
}

// Load reads the status file, defaulting to an empty record when the file is
// missing or unreadable.
func (s *StatusStore) Load() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *StatusStore) load() SyncStatus {
	var st SyncStatus
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debug("status file unreadable, starting empty", "path", s.path, "err", err)
		}
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("status file corrupt, starting empty", "path", s.path, "err", err)
		return SyncStatus{}
	}
	return st
}

// Update applies mut to the current status and writes the result back
// atomically (temp file + rename in the same directory).
func (s *StatusStore) Update(mut func(*SyncStatus)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	mut(&st)

	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".status-*")
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
	return os.Rename(tmp.Name(), s.path)
}

// StampDirection records a successful pass for one direction.
func (s *StatusStore) StampDirection(d Direction, t time.Time) error {
	return s.Update(func(st *SyncStatus) {
		switch d {
		case DirPhoneToLocal:
			st.LastSyncFromPhone = &t
		case DirLocalToPhone:
			st.LastSyncToPhone = &t
		}
	})
}
