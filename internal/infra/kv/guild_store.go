package kv

// buntdb backend for guild configs: one JSON value per key "guild:<id>"

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ticker-bot/internal/features/guilds"
	logging "ticker-bot/internal/infra/log"

	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
)

const keyPrefix = "guild:"

type GuildBuntStore struct {
	db *buntdb.DB
}

// OpenGuildStore opens (or creates) the database file. ":memory:" gives an in-memory store.
func OpenGuildStore(path string) (*GuildBuntStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	return &GuildBuntStore{db: db}, nil
}

func guildKey(guildID string) string {
	return keyPrefix + guildID
}

func (s *GuildBuntStore) LoadAll() (map[string]*guilds.GuildConfig, error) {
	out := make(map[string]*guilds.GuildConfig)

	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(keyPrefix+"*", func(key, value string) bool {
			var cfg guilds.GuildConfig
			if err := json.Unmarshal([]byte(value), &cfg); err != nil {
				logging.LogWarn("Skipping unreadable guild record", zap.String("key", key), zap.Error(err))
				return true
			}
			cfg.GuildID = strings.TrimPrefix(key, keyPrefix)
			out[cfg.GuildID] = &cfg
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate guild records: %w", err)
	}
	return out, nil
}

func (s *GuildBuntStore) Save(cfg *guilds.GuildConfig) error {
	content, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal guild config: %w", err)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(guildKey(cfg.GuildID), string(content), nil); err != nil {
			return fmt.Errorf("failed to store guild config: %w", err)
		}
		return nil
	})
}

func (s *GuildBuntStore) Delete(guildID string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(guildKey(guildID))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (s *GuildBuntStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
