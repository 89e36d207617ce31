package fs

// JSON file backend for guild configs
// Whole file is rewritten on every change: write to <file>.tmp, then rename over the original
// A file that fails to parse is moved aside to <file>.backup.<unix> and the bot starts empty

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ticker-bot/internal/features/guilds"
	logging "ticker-bot/internal/infra/log"

	"go.uber.org/zap"
)

type GuildFileStore struct {
	mu     sync.Mutex
	path   string
	guilds map[string]*guilds.GuildConfig
	now    func() time.Time
}

func NewGuildFileStore(path string) (*GuildFileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("guild store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &GuildFileStore{
		path:   path,
		guilds: make(map[string]*guilds.GuildConfig),
		now:    time.Now,
	}, nil
}

func (s *GuildFileStore) Path() string { return s.path }

func (s *GuildFileStore) LoadAll() (map[string]*guilds.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guilds = make(map[string]*guilds.GuildConfig)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		logging.LogDebug("Guild store file does not exist, starting empty", zap.String("file", s.path))
		return s.snapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guild store file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "{}" {
		return s.snapshot(), nil
	}

	var decoded map[string]*guilds.GuildConfig
	if err := json.Unmarshal(data, &decoded); err != nil {
		backup := fmt.Sprintf("%s.backup.%d", s.path, s.now().Unix())
		logging.LogError("Guild store file is corrupted, starting empty",
			zap.String("file", s.path), zap.String("backup", backup), zap.Error(err))
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			logging.LogError("Failed to back up corrupted guild store file", zap.Error(renameErr))
		}
		return s.snapshot(), nil
	}

	for id, cfg := range decoded {
		if cfg == nil {
			continue
		}
		cfg.GuildID = id
		s.guilds[id] = cfg.Clone()
	}

	logging.LogDebug("Loaded guild store file",
		zap.String("file", s.path),
		zap.Int("count", len(s.guilds)))

	return s.snapshot(), nil
}

func (s *GuildFileStore) snapshot() map[string]*guilds.GuildConfig {
	out := make(map[string]*guilds.GuildConfig, len(s.guilds))
	for id, cfg := range s.guilds {
		out[id] = cfg.Clone()
	}
	return out
}

func (s *GuildFileStore) Save(cfg *guilds.GuildConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.guilds[cfg.GuildID]
	s.guilds[cfg.GuildID] = cfg.Clone()
	if err := s.flush(); err != nil {
		if had {
			s.guilds[cfg.GuildID] = prev
		} else {
			delete(s.guilds, cfg.GuildID)
		}
		return err
	}
	return nil
}

func (s *GuildFileStore) Delete(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.guilds[guildID]
	if !had {
		return nil
	}
	delete(s.guilds, guildID)
	if err := s.flush(); err != nil {
		s.guilds[guildID] = prev
		return err
	}
	return nil
}

func (s *GuildFileStore) Close() error { return nil }

// flush must be called with s.mu held
func (s *GuildFileStore) flush() error {
	data, err := json.MarshalIndent(s.guilds, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal guild store: %w", err)
	}

	tempFilePath := s.path + ".tmp"
	if err := os.WriteFile(tempFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary guild store file: %w", err)
	}

	if err := os.Rename(tempFilePath, s.path); err != nil {
		os.Remove(tempFilePath)
		return fmt.Errorf("failed to rename temporary file to guild store file: %w", err)
	}

	logging.LogDebug("Saved guild store file",
		zap.String("file", s.path),
		zap.Int("count", len(s.guilds)))
	return nil
}
