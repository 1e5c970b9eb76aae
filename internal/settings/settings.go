// Package settings holds the mutable device settings: which printer to
// watch, which alert codes to suppress, and the admin credential for
// the config API. Unlike the static server config these change at
// runtime and are written back to disk.
package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// PrinterSettings identifies the printer to monitor
type PrinterSettings struct {
	Address    string `yaml:"address"`
	Serial     string `yaml:"serial"`
	AccessCode string `yaml:"access_code"`
}

// AdminSettings represents the config API credential. When User is
// empty the API runs open, matching a freshly provisioned device.
type AdminSettings struct {
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"`
}

// Settings represents the full persisted settings document
type Settings struct {
	Printer      PrinterSettings `yaml:"printer"`
	IgnoredCodes []string        `yaml:"ignored_codes"`
	Admin        AdminSettings   `yaml:"admin"`
}

// Store reads and writes the settings file. Reads return a copy, so
// callers never observe a half-applied update.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// NewStore creates a store backed by the given file path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the settings file into memory. A missing file is not an
// error: the store starts empty and the monitor stays unconfigured
// until settings arrive through the API.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read settings file: %w", err)
	}

	var next Settings
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

// Save persists next to disk and makes it the current settings. The
// file is written to a temporary path and renamed into place so a
// crash mid-write never leaves a truncated settings file. Mode 0600
// because the file carries the printer access code.
func (s *Store) Save(next Settings) error {
	data, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename settings file: %w", err)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the current settings
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := s.current
	cp.IgnoredCodes = append([]string(nil), s.current.IgnoredCodes...)
	return cp
}

// PrinterConnection returns the printer address, serial and access code
func (s *Store) PrinterConnection() (address, serial, accessCode string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Printer.Address, s.current.Printer.Serial, s.current.Printer.AccessCode
}

// IgnoredCodes returns the configured suppression list
func (s *Store) IgnoredCodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.current.IgnoredCodes...)
}
