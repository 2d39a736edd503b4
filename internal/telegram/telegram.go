// Package telegram binds the pipeline to the Telegram Bot API: a long-poll
// loop for inbound messages and a Sender for outbound artifacts.
package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Handler receives routed inbound messages. Satisfied by bot.Orchestrator.
type Handler interface {
	HandleStart(ctx context.Context, chatID int64)
	HandleText(ctx context.Context, chatID int64, input string)
}

// Transport wraps the Bot API client.
type Transport struct {
	api *tgbotapi.BotAPI
}

// New connects to the Bot API with the given token.
func New(token string) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Info().Str("bot_username", api.Self.UserName).Msg("Telegram bot authorized")
	return &Transport{api: api}, nil
}

// Poll consumes updates until ctx is cancelled. Each inbound message is
// handled on its own goroutine; ordering within one chat is preserved by
// Telegram's per-chat update ordering, which this loop assumes.
func (t *Transport) Poll(ctx context.Context, h Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := t.api.GetUpdatesChan(u)
	log.Info().Msg("Polling for updates")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || msg.Chat == nil {
				continue
			}
			go t.dispatch(ctx, h, msg)
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, h Handler, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			h.HandleStart(ctx, chatID)
		default:
			log.Debug().Str("command", msg.Command()).Int64("chat_id", chatID).Msg("Ignoring unknown command")
		}
		return
	}
	h.HandleText(ctx, chatID, msg.Text)
}

// SendText sends a plain text message.
func (t *Transport) SendText(chatID int64, text string) error {
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendPhoto sends an image attachment with a caption.
func (t *Transport) SendPhoto(chatID int64, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "tale.png", Bytes: data})
	photo.Caption = caption
	_, err := t.api.Send(photo)
	return err
}

// SendVoice sends an OGG/Opus voice bubble.
func (t *Transport) SendVoice(chatID int64, data []byte, caption string) error {
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "tale.ogg", Bytes: data})
	voice.Caption = caption
	_, err := t.api.Send(voice)
	return err
}

// SendAudio sends a generic audio attachment (the baseline container when
// voice transcoding was unavailable).
func (t *Transport) SendAudio(chatID int64, data []byte, caption string) error {
	audio := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: "tale.wav", Bytes: data})
	audio.Caption = caption
	_, err := t.api.Send(audio)
	return err
}
