// Package profile provides read-only access to enrolled speaker profiles.
//
// Enrollment, quality scoring and profile CRUD live outside this service;
// profiles arrive as JSON files written by the enrollment tooling.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SpeakerProfile is an enrolled speaker with a fixed-length voiceprint.
type SpeakerProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Embedding []float64 `json:"embedding"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Errors returned by the store.
var (
	ErrNotFound       = errors.New("profile not found")
	ErrEmptyEmbedding = errors.New("profile has no embedding")
)

// Store loads speaker profiles from a directory of JSON files, one
// profile per <id>.json.
type Store struct {
	dir string
}

// NewStore creates a store over the given directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads one profile by ID.
func (s *Store) Load(id string) (*SpeakerProfile, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	path := filepath.Join(s.dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read profile %s: %w", id, err)
	}

	var p SpeakerProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	if len(p.Embedding) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyEmbedding, id)
	}
	return &p, nil
}

// List returns all readable profiles in the directory. Unreadable or
// malformed files are skipped.
func (s *Store) List() ([]*SpeakerProfile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	var out []*SpeakerProfile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		p, err := s.Load(id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
