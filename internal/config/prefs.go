package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Prefs is the flat retrieval/generation tuning blob plus display toggles.
// It is loaded lazily on first use, merged over defaults, and written back
// in full on every update.
type Prefs struct {
	// TopK is the number of retrieval results fed into answer generation.
	TopK int `yaml:"top_k"`

	// MMRLambda balances diversity vs relevance in retrieval (0..1).
	MMRLambda float64 `yaml:"mmr_lambda"`

	// Temperature controls answer generation randomness.
	Temperature float64 `yaml:"temperature"`

	// ShowImages toggles inline image rendering in answers.
	ShowImages bool `yaml:"show_images"`

	// CompactLayout collapses citation details in the transcript.
	CompactLayout bool `yaml:"compact_layout"`
}

// DefaultPrefs returns the built-in tuning defaults.
func DefaultPrefs() Prefs {
	return Prefs{
		TopK:        8,
		MMRLambda:   0.5,
		Temperature: 0.2,
		ShowImages:  true,
	}
}

// DefaultPrefsPath returns ~/.config/ragdesk/prefs.yaml.
func DefaultPrefsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ragdesk", "prefs.yaml")
}

// PrefsStore owns the persisted preferences blob. Reads are lazy; the file
// is only parsed on first access. Every update rewrites the whole file.
type PrefsStore struct {
	mu     sync.Mutex
	path   string
	loaded bool
	prefs  Prefs
}

// NewPrefsStore creates a store backed by the file at path.
// An empty path uses the default location.
func NewPrefsStore(path string) *PrefsStore {
	if path == "" {
		path = DefaultPrefsPath()
	}
	return &PrefsStore{path: path}
}

// Exists reports whether a preferences file has been written before.
func (p *PrefsStore) Exists() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := os.Stat(p.path)
	return err == nil
}

// Get returns the current preferences, reading the file on first call.
// Fields absent from the file keep their defaults; a corrupt or missing
// file degrades to defaults.
func (p *PrefsStore) Get() Prefs {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked()
	return p.prefs
}

// Update applies fn to the current preferences and writes the result
// through to disk.
func (p *PrefsStore) Update(fn func(*Prefs)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked()
	fn(&p.prefs)

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(p.prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

func (p *PrefsStore) loadLocked() {
	if p.loaded {
		return
	}
	p.prefs = DefaultPrefs()
	if data, err := os.ReadFile(p.path); err == nil {
		// Unmarshalling over the defaults keeps them for absent fields.
		_ = yaml.Unmarshal(data, &p.prefs)
	}
	p.loaded = true
}
