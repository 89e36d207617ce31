package guilds

// Per-server tracking configuration and the mutations admin commands apply to it

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	MinUpdateInterval     = 60
	MaxUpdateInterval     = 24 * 3600
	DefaultUpdateInterval = 300
)

var (
	ErrUnknownGuild        = errors.New("guild is not configured")
	ErrInvalidInterval     = fmt.Errorf("update interval must be between %d seconds and 24 hours (%d seconds)", MinUpdateInterval, MaxUpdateInterval)
	ErrTooManyTokens       = errors.New("too many tokens tracked")
	ErrTokenAlreadyTracked = errors.New("token is already tracked")
	ErrTokenNotTracked     = errors.New("token is not tracked")
	ErrEmptyToken          = errors.New("token cannot be empty")
	ErrNoTokens            = errors.New("no tokens are tracked")
)

type GuildConfig struct {
	GuildID          string             `json:"guild_id"`
	Tracking         bool               `json:"is_tracking"`
	Tokens           []string           `json:"tokens"`
	UpdateInterval   int                `json:"update_interval"` // seconds
	ConfigChannelID  string             `json:"config_channel_id,omitempty"`
	DisplayChannelID string             `json:"display_channel_id,omitempty"`
	RoleID           string             `json:"role_id,omitempty"`
	LastPrices       map[string]float64 `json:"last_prices,omitempty"`
	LastUpdate       time.Time          `json:"last_update,omitempty"`
}

func NewGuildConfig(guildID string, updateInterval int) *GuildConfig {
	if updateInterval == 0 {
		updateInterval = DefaultUpdateInterval
	}
	return &GuildConfig{
		GuildID:        guildID,
		Tokens:         []string{},
		UpdateInterval: updateInterval,
		LastPrices:     map[string]float64{},
	}
}

// Clone returns a deep copy so callers never share maps or slices with the registry.
func (g *GuildConfig) Clone() *GuildConfig {
	c := *g
	c.Tokens = slices.Clone(g.Tokens)
	if c.Tokens == nil {
		c.Tokens = []string{}
	}
	c.LastPrices = maps.Clone(g.LastPrices)
	if c.LastPrices == nil {
		c.LastPrices = map[string]float64{}
	}
	return &c
}

// Interval returns the update interval as a duration, falling back to the default for bad values.
func (g *GuildConfig) Interval() time.Duration {
	secs := g.UpdateInterval
	if secs < MinUpdateInterval || secs > MaxUpdateInterval {
		secs = DefaultUpdateInterval
	}
	return time.Duration(secs) * time.Second
}

// Due reports whether a tracking guild should be refreshed at now.
func (g *GuildConfig) Due(now time.Time) bool {
	if !g.Tracking || len(g.Tokens) == 0 {
		return false
	}
	if g.LastUpdate.IsZero() {
		return true
	}
	return !now.Before(g.LastUpdate.Add(g.Interval()))
}

// NextUpdate is the earliest time the guild becomes due.
func (g *GuildConfig) NextUpdate() time.Time {
	if g.LastUpdate.IsZero() {
		return time.Time{}
	}
	return g.LastUpdate.Add(g.Interval())
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

func (g *GuildConfig) HasToken(token string) bool {
	return lo.Contains(g.Tokens, normalizeToken(token))
}

func (g *GuildConfig) AddToken(token string, maxTokens int) error {
	token = normalizeToken(token)
	if token == "" {
		return ErrEmptyToken
	}
	if lo.Contains(g.Tokens, token) {
		return ErrTokenAlreadyTracked
	}
	if maxTokens > 0 && len(g.Tokens) >= maxTokens {
		return fmt.Errorf("%w: limit is %d", ErrTooManyTokens, maxTokens)
	}
	g.Tokens = append(g.Tokens, token)
	return nil
}

func (g *GuildConfig) RemoveToken(token string) error {
	token = normalizeToken(token)
	if !lo.Contains(g.Tokens, token) {
		return ErrTokenNotTracked
	}
	g.Tokens = lo.Without(g.Tokens, token)
	delete(g.LastPrices, token)
	if len(g.Tokens) == 0 {
		g.Tracking = false
	}
	return nil
}

func (g *GuildConfig) SetInterval(seconds int) error {
	if seconds < MinUpdateInterval || seconds > MaxUpdateInterval {
		return ErrInvalidInterval
	}
	g.UpdateInterval = seconds
	return nil
}

// SetTracking turns refreshes on or off. Tracking needs at least one token.
func (g *GuildConfig) SetTracking(on bool) error {
	if on && len(g.Tokens) == 0 {
		return ErrNoTokens
	}
	g.Tracking = on
	return nil
}

func (g *GuildConfig) SetChannels(configChannelID, displayChannelID string) {
	g.ConfigChannelID = configChannelID
	g.DisplayChannelID = displayChannelID
}

func (g *GuildConfig) SetRole(roleID string) {
	g.RoleID = roleID
}

// RecordPrices stores the latest observations used as the next trend baseline.
func (g *GuildConfig) RecordPrices(prices map[string]float64, at time.Time) {
	if g.LastPrices == nil {
		g.LastPrices = map[string]float64{}
	}
	for token, price := range prices {
		if lo.Contains(g.Tokens, token) {
			g.LastPrices[token] = price
		}
	}
	g.LastUpdate = at
}
