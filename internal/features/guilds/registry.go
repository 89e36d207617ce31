package guilds

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	logging "ticker-bot/internal/infra/log"

	"go.uber.org/zap"
)

// Store persists guild configs. Implementations: fs.GuildFileStore (JSON) and kv.GuildBuntStore (buntdb).
type Store interface {
	LoadAll() (map[string]*GuildConfig, error)
	Save(cfg *GuildConfig) error
	Delete(guildID string) error
	Close() error
}

// Registry is the in-memory view of every guild config; each change is flushed to the Store
// before it becomes visible.
type Registry struct {
	mu              sync.RWMutex
	guilds          map[string]*GuildConfig
	store           Store
	defaultInterval int
}

func NewRegistry(store Store, defaultInterval int) *Registry {
	if defaultInterval == 0 {
		defaultInterval = DefaultUpdateInterval
	}
	return &Registry{
		guilds:          make(map[string]*GuildConfig),
		store:           store,
		defaultInterval: defaultInterval,
	}
}

func (r *Registry) Load() error {
	loaded, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load guild configs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.guilds = make(map[string]*GuildConfig, len(loaded))
	for id, cfg := range loaded {
		cfg = cfg.Clone()
		cfg.GuildID = id
		if cfg.UpdateInterval == 0 {
			cfg.UpdateInterval = r.defaultInterval
		}
		r.guilds[id] = cfg
	}

	logging.LogInfo("Loaded guild configs", zap.Int("guilds", len(r.guilds)))
	return nil
}

func (r *Registry) Get(guildID string) (*GuildConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.guilds[guildID]
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

// GetOrCreate returns the stored config or a fresh default one. Nothing is saved.
func (r *Registry) GetOrCreate(guildID string) *GuildConfig {
	if cfg, ok := r.Get(guildID); ok {
		return cfg
	}
	return NewGuildConfig(guildID, r.defaultInterval)
}

// All returns snapshots sorted by guild id.
func (r *Registry) All() []*GuildConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*GuildConfig, 0, len(r.guilds))
	for _, cfg := range r.guilds {
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

func (r *Registry) Tracking() []*GuildConfig {
	all := r.All()
	out := all[:0]
	for _, cfg := range all {
		if cfg.Tracking {
			out = append(out, cfg)
		}
	}
	return out
}

// Update applies fn to a copy of the guild config (created with defaults if missing).
// When fn succeeds and changed something, the copy is saved and then published.
func (r *Registry) Update(guildID string, fn func(*GuildConfig) error) (*GuildConfig, error) {
	return r.update(guildID, fn, false)
}

// UpdateExisting is Update for guilds that must already be configured.
func (r *Registry) UpdateExisting(guildID string, fn func(*GuildConfig) error) (*GuildConfig, error) {
	return r.update(guildID, fn, true)
}

func (r *Registry) update(guildID string, fn func(*GuildConfig) error, mustExist bool) (*GuildConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.guilds[guildID]
	if !exists {
		if mustExist {
			return nil, ErrUnknownGuild
		}
		current = NewGuildConfig(guildID, r.defaultInterval)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return current.Clone(), err
	}

	if exists && reflect.DeepEqual(current, next) {
		return next.Clone(), nil
	}

	if err := r.store.Save(next); err != nil {
		return current.Clone(), fmt.Errorf("failed to save guild %s: %w", guildID, err)
	}
	r.guilds[guildID] = next
	return next.Clone(), nil
}

func (r *Registry) Remove(guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.guilds[guildID]; !ok {
		return nil
	}
	if err := r.store.Delete(guildID); err != nil {
		return fmt.Errorf("failed to delete guild %s: %w", guildID, err)
	}
	delete(r.guilds, guildID)
	return nil
}

// Stats returns total and tracking guild counts.
func (r *Registry) Stats() (total, tracking int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.guilds {
		total++
		if cfg.Tracking {
			tracking++
		}
	}
	return total, tracking
}

func (r *Registry) Close() error {
	return r.store.Close()
}
