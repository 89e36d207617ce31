package discord

// Discord gateway/REST adapter
// Implements tracker.Display: nickname, trend role color, watching status
// A deleted ticker role is reported as tracker.ErrRoleNotFound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"ticker-bot/internal/features/tracker"
	logging "ticker-bot/internal/infra/log"

	"github.com/bwmarrin/discordgo"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

const (
	openAttempts = 5

	// grey until the first refresh sets a trend color
	initialRoleColor = 0x95A5A6
)

type Session struct {
	dg *discordgo.Session

	roleMu sync.Mutex
}

func NewSession(token string) (*Session, error) {
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	dg, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.ShouldReconnectOnError = true
	dg.StateEnabled = true
	return &Session{dg: dg}, nil
}

// Raw exposes the discordgo session for handler registration.
func (s *Session) Raw() *discordgo.Session { return s.dg }

// Open connects to the gateway, retrying with exponential backoff.
func (s *Session) Open(ctx context.Context) error {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 1; attempt <= openAttempts; attempt++ {
		err := s.dg.Open()
		if err == nil {
			logging.LogSuccess("Connected to Discord", zap.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		delay := b.Duration()
		logging.LogWarn("Discord connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("discord open cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed to connect to discord after %d attempts: %w", openAttempts, lastErr)
}

func (s *Session) Close() error {
	return s.dg.Close()
}

// Ready reports whether the gateway session is up.
func (s *Session) Ready() bool {
	return s.dg.DataReady
}

func (s *Session) BotUserID() string {
	if s.dg.State != nil && s.dg.State.User != nil {
		return s.dg.State.User.ID
	}
	return ""
}

func (s *Session) SetNickname(ctx context.Context, guildID, nickname string) error {
	if err := s.dg.GuildMemberNickname(guildID, "@me", nickname, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to set nickname in guild %s: %w", guildID, err)
	}
	return nil
}

func (s *Session) EnsureRole(ctx context.Context, guildID, name string) (string, error) {
	s.roleMu.Lock()
	defer s.roleMu.Unlock()

	roles, err := s.dg.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to list roles in guild %s: %w", guildID, err)
	}

	role := findRole(roles, name)
	if role == nil {
		color := initialRoleColor
		hoist := false
		mentionable := false
		role, err = s.dg.GuildRoleCreate(guildID, &discordgo.RoleParams{
			Name:        name,
			Color:       &color,
			Hoist:       &hoist,
			Mentionable: &mentionable,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("failed to create role %q in guild %s: %w", name, guildID, err)
		}
		logging.LogInfo("Created ticker role", zap.String("guild_id", guildID), zap.String("role_id", role.ID))
	}

	if botID := s.BotUserID(); botID != "" {
		if err := s.dg.GuildMemberRoleAdd(guildID, botID, role.ID, discordgo.WithContext(ctx)); err != nil {
			return role.ID, fmt.Errorf("failed to assign role %s in guild %s: %w", role.ID, guildID, err)
		}
	}
	return role.ID, nil
}

func findRole(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, r := range roles {
		if r != nil && r.Name == name {
			return r
		}
	}
	return nil
}

func (s *Session) SetRoleColor(ctx context.Context, guildID, roleID string, color int) error {
	_, err := s.dg.GuildRoleEdit(guildID, roleID, &discordgo.RoleParams{Color: &color}, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownRole(err) {
			return fmt.Errorf("%w: role %s in guild %s: %v", tracker.ErrRoleNotFound, roleID, guildID, err)
		}
		return fmt.Errorf("failed to set role color in guild %s: %w", guildID, err)
	}
	return nil
}

// isUnknownRole matches Discord's "Unknown Role" (10011) or a plain 404 from the role endpoint.
func isUnknownRole(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownRole {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// SetStatus sets a "Watching <text>" presence.
func (s *Session) SetStatus(_ context.Context, text string) error {
	if err := s.dg.UpdateStatusComplex(watchingStatus(text)); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

func watchingStatus(text string) discordgo.UpdateStatusData {
	return discordgo.UpdateStatusData{
		Status: string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{{
			Name: text,
			Type: discordgo.ActivityTypeWatching,
		}},
	}
}

func (s *Session) SendMessage(ctx context.Context, channelID, content string) error {
	if _, err := s.dg.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return nil
}

// SendEmbed posts an embed with optional file attachments.
func (s *Session) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed, files ...*discordgo.File) error {
	_, err := s.dg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files:  files,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send embed to channel %s: %w", channelID, err)
	}
	return nil
}
