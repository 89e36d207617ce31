package bots_monitor

// Outbound channels for alerts and summaries: Discord text channels and an optional Telegram chat

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger posts to Discord channels (discord.Session).
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) error
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed, files ...*discordgo.File) error
}

// Mirror receives copies of alerts and summaries outside Discord.
type Mirror interface {
	Send(text string) error
	SendPhoto(caption, name string, png []byte) error
}

type TelegramMirror struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramMirror returns nil, nil when the mirror is not configured.
func NewTelegramMirror(token string, chatID int64) (*TelegramMirror, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramMirror{bot: bot, chatID: chatID}, nil
}

func (t *TelegramMirror) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (t *TelegramMirror) SendPhoto(caption, name string, png []byte) error {
	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{Name: name, Bytes: png})
	photo.Caption = caption
	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("failed to send telegram photo: %w", err)
	}
	return nil
}
