// Package genmark persists build-generation markers for target artifacts.
//
// Raw filesystem timestamps are vulnerable to clock skew and sub-second
// races, so up-to-dateness is decided by monotonic generation counters
// recorded at the moment of each successful build. Each module directory
// carries one sidecar file (.pipeforge/generations.yaml) mapping target
// names to their last recorded generation, the artifact fingerprint, and a
// snapshot of every dependency's generation and fingerprint at build time.
package genmark

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SidecarDir is the per-module directory holding engine bookkeeping.
const SidecarDir = ".pipeforge"

const sidecarFile = "generations.yaml"

// Input is the recorded state of one dependency at build time.
type Input struct {
	Generation  int64  `yaml:"generation"`
	Fingerprint string `yaml:"fingerprint"`
}

// Mark is the recorded state of one built target.
type Mark struct {
	Generation  int64            `yaml:"generation"`
	BuiltAt     time.Time        `yaml:"built_at"`
	Fingerprint string           `yaml:"fingerprint"`
	Inputs      map[string]Input `yaml:"inputs,omitempty"`
}

type moduleMarks struct {
	Targets map[string]Mark `yaml:"targets"`
}

// Store reads and writes generation sidecar files, caching per-module
// contents for the process lifetime.
type Store struct {
	mu    sync.Mutex
	cache map[string]*moduleMarks
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{cache: make(map[string]*moduleMarks)}
}

// Mark returns the recorded mark for a target, if any.
func (s *Store) Mark(moduleDir, target string) (Mark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mm, err := s.load(moduleDir)
	if err != nil {
		return Mark{}, false
	}
	m, ok := mm.Targets[target]
	return m, ok
}

// Record stores a mark for a target and persists the module's sidecar file
// atomically. Only callers that completed a build successfully may call
// Record, so a crashed or failed build never advances a generation.
func (s *Store) Record(moduleDir, target string, m Mark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mm, err := s.load(moduleDir)
	if err != nil {
		return err
	}
	mm.Targets[target] = m
	return s.persist(moduleDir, mm)
}

// Remove deletes the mark for a target, if present.
func (s *Store) Remove(moduleDir, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mm, err := s.load(moduleDir)
	if err != nil {
		return err
	}
	if _, ok := mm.Targets[target]; !ok {
		return nil
	}
	delete(mm.Targets, target)
	return s.persist(moduleDir, mm)
}

// load returns the cached marks for a module, reading the sidecar file on
// first access. Caller holds s.mu.
func (s *Store) load(moduleDir string) (*moduleMarks, error) {
	if mm, ok := s.cache[moduleDir]; ok {
		return mm, nil
	}

	mm := &moduleMarks{Targets: make(map[string]Mark)}
	data, err := os.ReadFile(filepath.Join(moduleDir, SidecarDir, sidecarFile))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, mm); err != nil {
			return nil, fmt.Errorf("corrupt generation sidecar in %s: %w", moduleDir, err)
		}
		if mm.Targets == nil {
			mm.Targets = make(map[string]Mark)
		}
	case os.IsNotExist(err):
		// No builds recorded yet.
	default:
		return nil, err
	}

	s.cache[moduleDir] = mm
	return mm, nil
}

// persist writes the sidecar via a temp file and rename so readers never
// observe a torn file. Caller holds s.mu.
func (s *Store) persist(moduleDir string, mm *moduleMarks) error {
	dir := filepath.Join(moduleDir, SidecarDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(mm)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, sidecarFile+".*")
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
	return os.Rename(tmp.Name(), filepath.Join(dir, sidecarFile))
}

// FingerprintPath summarizes an artifact's on-disk state. The fingerprint
// only detects out-of-band modification; it is never used to prove
// freshness against a dependency. Missing artifacts yield "". For a
// directory the newest modification time among all descendants is used.
func FingerprintPath(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size())
	}

	newest := info.ModTime()
	var count int
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		count++
		if fi, err := d.Info(); err == nil && fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
		return nil
	})
	return fmt.Sprintf("dir:%d:%d", newest.UnixNano(), count)
}
