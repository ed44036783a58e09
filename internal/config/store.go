package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fabhost/agent/infrastructure/config"
	"github.com/fabhost/agent/infrastructure/logging"
)

// DefaultConfigDirName is the default directory name under the operator's
// home directory.
const DefaultConfigDirName = ".fabstir-host"

// DefaultBackupRetention is how long a backup copy is kept before Load
// purges it.
const DefaultBackupRetention = 30 * 24 * time.Hour

// Store loads and saves the single OperatorConfig blob for this agent
// instance, under a single-writer discipline: every Save/Load call holds
// mu for its duration, matching the "ConfigStore accessed under a
// single-writer discipline" resource policy.
type Store struct {
	mu              sync.Mutex
	dir             string
	backupRetention time.Duration
	logger          *logging.Logger
}

// NewStore builds a Store rooted at dir. An empty dir resolves to
// $FABSTIR_CONFIG_DIR, falling back to ~/.fabstir-host.
func NewStore(dir string, logger *logging.Logger) (*Store, error) {
	resolved, err := resolveConfigDir(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(resolved, "backups"), 0o755); err != nil {
		return nil, fmt.Errorf("config: creating config dir: %w", err)
	}
	return &Store{
		dir:             resolved,
		backupRetention: DefaultBackupRetention,
		logger:          logger,
	}, nil
}

func resolveConfigDir(dir string) (string, error) {
	if strings.TrimSpace(dir) != "" {
		return dir, nil
	}
	if env := strings.TrimSpace(config.GetEnv("FABSTIR_CONFIG_DIR", "")); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDirName), nil
}

// Path returns the path of the primary config file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, "config.json")
}

// SetBackupRetention overrides the default backup retention window.
func (s *Store) SetBackupRetention(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backupRetention = d
}

// Load reads, migrates, validates, and returns the OperatorConfig. It also
// purges backups older than the retention window. A missing file returns
// os.ErrNotExist wrapped so callers can distinguish first-run from corruption.
func (s *Store) Load() (*OperatorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: %w", os.ErrNotExist)
		}
		return nil, fmt.Errorf("config: reading %s: %w", s.Path(), err)
	}

	var cfg OperatorConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", s.Path(), err)
	}

	if cfg.Version == "" {
		cfg.Version = "0.9.0"
	}
	if err := migrate(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.purgeOldBackups()

	return &cfg, nil
}

// Save validates cfg, backs up the existing file (if any), and writes cfg
// atomically via a temp-file-then-rename.
func (s *Store) Save(cfg *OperatorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := s.backupLocked(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("config: renaming temp file: %w", err)
	}
	return nil
}

func (s *Store) backupLocked() error {
	raw, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading existing config for backup: %w", err)
	}

	name := fmt.Sprintf("backup-%s.json", time.Now().UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(s.dir, "backups", name)
	for n := 1; fileExists(path); n++ {
		path = filepath.Join(s.dir, "backups", fmt.Sprintf("backup-%s-%d.json", time.Now().UTC().Format("20060102T150405"), n))
	}
	return os.WriteFile(path, raw, 0o600)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// purgeOldBackups deletes backup files older than s.backupRetention. Errors
// removing individual files are logged and otherwise ignored — a stuck
// backup file should never block a config load.
func (s *Store) purgeOldBackups() {
	backupDir := filepath.Join(s.dir, "backups")
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-s.backupRetention)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(backupDir, e.Name())); err != nil && s.logger != nil {
				s.logger.Warn(context.Background(), "config: failed to purge stale backup", map[string]interface{}{
					"file":  e.Name(),
					"error": err.Error(),
				})
			}
		}
	}
}

// ListBackups returns backup file names under the backups directory, newest
// first.
func (s *Store) ListBackups() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "backups"))
	if err != nil {
		return nil, fmt.Errorf("config: listing backups: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
