package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
)

// Slot names an independently persisted value.
type Slot string

const (
	// SlotSettings holds the user preferences.
	SlotSettings Slot = "ideSettings"
	// SlotDraft holds the unsent program text.
	SlotDraft Slot = "savedContents"
)

// Store persists named slots as JSON files in a state directory.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load decodes the slot into v. It reports false when nothing was persisted yet.
func (s *Store) Load(slot Slot, v any) (bool, error) {
	path := s.pathForSlot(slot)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "slot", slot)
			}
			return false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "slot", slot, "err", err)
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "slot", slot, "err", err)
		}
		return false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "slot", slot, "bytes", len(data))
	}
	return true, nil
}

// Save encodes v and atomically replaces the slot on disk.
func (s *Store) Save(slot Slot, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "slot", slot, "err", err)
		}
		return err
	}
	if err := WriteFileAtomic(s.pathForSlot(slot), data, 0o600); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "slot", slot, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "slot", slot, "bytes", len(data))
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) pathForSlot(slot Slot) string {
	name := sanitize(string(slot))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
