package tracker

import (
	"context"
	"errors"

	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
)

// PriceSource is "fetch price for token X".
type PriceSource interface {
	FetchQuotes(ctx context.Context, ids []string) (map[string]prices.Quote, error)
}

// ErrRoleNotFound is wrapped by SetRoleColor when the role no longer exists in the guild.
var ErrRoleNotFound = errors.New("role not found")

// Display is "rename/display" on the chat platform.
type Display interface {
	SetNickname(ctx context.Context, guildID, nickname string) error
	// EnsureRole returns the id of the named role, creating it and assigning it to the bot if needed.
	EnsureRole(ctx context.Context, guildID, name string) (string, error)
	SetRoleColor(ctx context.Context, guildID, roleID string, color int) error
	// SetStatus changes the session-wide presence text.
	SetStatus(ctx context.Context, text string) error
}

// Observer is notified after a guild refresh was pushed.
type Observer interface {
	GuildRefreshed(ctx context.Context, guild *guilds.GuildConfig, quotes map[string]prices.Quote)
}
