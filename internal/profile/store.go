package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/outputnode/internal/logging"
)

// DefaultPath is used when no profile path is configured.
const DefaultPath = "profile.toml"

// ErrLocked is returned by Save when another process holds the profile lock.
var ErrLocked = errors.New("profile is locked by another process")

// Store reads and writes a profile file. Writers take an advisory lock on
// a sibling ".lock" file so two processes never interleave saves.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logging.GetLogger("config"),
	}
}

// Path returns the profile file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the profile. A missing file yields Default.
func (s *Store) Load() (*Profile, error) {
	return Load(s.path)
}

// Save validates p and writes it atomically.
func (s *Store) Save(p *Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire profile lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("Failed to release profile lock", "error", err)
		}
	}()

	out := p.Clone()
	out.Version = CurrentVersion
	data, err := toml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profile-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp profile: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace profile: %w", err)
	}

	s.logger.Info("Profile saved", "path", s.path)
	return nil
}

// Load reads the profile at path on top of Default, so keys missing from
// the file keep their defaults. A missing file yields Default.
func Load(path string) (*Profile, error) {
	p := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	// Track lists replace the defaults rather than merging into them.
	defaultTracks := p.Audio.Tracks
	p.Audio.Tracks = nil
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if p.Audio.Tracks == nil {
		p.Audio.Tracks = defaultTracks
	}
	if p.Version == 0 {
		p.Version = CurrentVersion
	}
	if p.Version > CurrentVersion {
		return nil, fmt.Errorf("profile version %d is newer than supported version %d", p.Version, CurrentVersion)
	}
	return p, nil
}
