// Package realtime ingests messages as the provider pushes them. The
// event path is intentionally unthrottled: no keyword filter and no
// quota checks, only text cleanup and the shared sink.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg_ingest/internal/model"
	"tg_ingest/internal/sink"
)

type telegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Listener consumes pushed message events and persists them through
// the shared sink into the rolling daily export.
type Listener struct {
	api telegramAPI
	snk *sink.Sink
	exp sink.Exporter
	log *slog.Logger
}

// New creates a Listener with the given Telegram token.
func New(token string, snk *sink.Sink, exp sink.Exporter, log *slog.Logger) (*Listener, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Listener{api: api, snk: snk, exp: exp, log: log}, nil
}

// Run starts the long-polling loop, blocking until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := l.api.GetUpdatesChan(u)
	l.log.Info("realtime listener started")

	for {
		select {
		case <-ctx.Done():
			l.api.StopReceivingUpdates()
			l.log.Info("realtime listener stopped")
			return
		case update := <-updates:
			msg := update.Message
			if msg == nil {
				msg = update.ChannelPost
			}
			if msg == nil {
				continue
			}
			l.handle(ctx, msg)
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	text := model.CleanText(msg.Text)
	if text == "" {
		return
	}

	src := classifyChat(msg.Chat)
	m := model.Message{
		ProviderMessageID: int64(msg.MessageID),
		SourceID:          src.SourceID,
		SourceType:        src.SourceType,
		Text:              text,
		Sender:            senderName(msg),
		SentAt:            time.Unix(int64(msg.Date), 0).UTC(),
		IngestedAt:        time.Now().UTC(),
	}

	written, err := l.snk.WriteBatch(ctx, src, []model.Message{m}, l.exp)
	if err != nil {
		l.log.Error("persisting realtime message failed", "source", src.SourceID, "error", err)
		return
	}
	l.log.Debug("realtime message ingested", "source", src.SourceID, "written", written)
}

func classifyChat(chat *tgbotapi.Chat) model.Source {
	var st model.SourceType
	switch chat.Type {
	case "channel":
		st = model.SourceChannel
	case "group", "supergroup":
		st = model.SourceGroup
	default:
		st = model.SourcePersonal
	}
	return model.Source{
		SourceID:    strconv.FormatInt(chat.ID, 10),
		SourceType:  st,
		DisplayName: chatName(chat),
	}
}

func chatName(chat *tgbotapi.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.UserName != "" {
		return chat.UserName
	}
	if name := strings.TrimSpace(chat.FirstName + " " + chat.LastName); name != "" {
		return name
	}
	return strconv.FormatInt(chat.ID, 10)
}

func senderName(msg *tgbotapi.Message) string {
	if msg.From != nil {
		if msg.From.UserName != "" {
			return msg.From.UserName
		}
		return strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	if msg.SenderChat != nil {
		return msg.SenderChat.Title
	}
	return ""
}
