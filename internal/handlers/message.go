package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/fullsong-tgbot-go/internal/i18n"
	"github.com/fullsong-tgbot-go/internal/middleware"
	"github.com/fullsong-tgbot-go/internal/services/download"
	"github.com/fullsong-tgbot-go/internal/services/quota"
	"github.com/fullsong-tgbot-go/internal/services/relay"
	"github.com/fullsong-tgbot-go/internal/services/state"
	"github.com/fullsong-tgbot-go/pkg/format"
	"github.com/fullsong-tgbot-go/pkg/logger"
	"github.com/fullsong-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// MessageHandler handles plain-text song requests from private chats.
type MessageHandler struct {
	config      *config.Config
	bot         *tgbotapi.BotAPI
	downloads   *download.Service
	state       *state.Manager
	rateLimiter middleware.RateLimiter
	metrics     *middleware.Metrics
	localizer   *i18n.Localizer
	logger      *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	bot *tgbotapi.BotAPI,
	downloads *download.Service,
	stateManager *state.Manager,
	rateLimiter middleware.RateLimiter,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		config:      cfg,
		bot:         bot,
		downloads:   downloads,
		state:       stateManager,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		localizer:   localizer,
		logger:      logger,
	}
}

// HandleMessage treats any non-command private-chat text as a song request.
func (h *MessageHandler) HandleMessage(ctx context.Context, update *tgbotapi.Update) error {
	if update.Message == nil || update.Message.IsCommand() {
		return nil
	}
	if !update.Message.Chat.IsPrivate() {
		return nil
	}
	if update.Message.From.ID == h.bot.Self.ID {
		return nil
	}

	query := strings.TrimSpace(update.Message.Text)
	if query == "" {
		return nil
	}

	return h.ProcessSongRequest(ctx, update.Message, query)
}

// ProcessSongRequest runs one end-to-end song request and sends exactly one
// outcome reply: the audio with its metadata, or a single error message.
func (h *MessageHandler) ProcessSongRequest(ctx context.Context, message *tgbotapi.Message, query string) error {
	chatID := message.Chat.ID
	userID := message.From.ID
	lang := h.userLanguage(ctx, userID)

	log := logger.WithUser(h.logger, chatID, userID).WithField("query", query)

	if !h.rateLimiter.Allow(userID) {
		h.metrics.RecordRateLimitExceeded()
		return h.reply(chatID, message.MessageID, h.localizer.Get(lang, i18n.MsgRateLimitExceeded, nil))
	}

	// Song names and working links both relay fine; a mangled link would
	// only send the agent chasing a dead URL.
	if strings.HasPrefix(strings.ToLower(query), "http") && !format.IsValidURL(query) {
		return h.reply(chatID, message.MessageID, h.localizer.Get(lang, i18n.MsgSongUsage, nil))
	}

	// One download at a time per user; the relay conversation is stateful
	// and a second interleaved exchange would corrupt it.
	if active, err := h.state.GetActiveRequest(ctx, userID); err == nil && active != "" {
		return h.reply(chatID, message.MessageID, h.localizer.Get(lang, i18n.MsgAlreadyDownloading, nil))
	}
	if err := h.state.SetActiveRequest(ctx, userID, query); err != nil {
		log.WithError(err).Warn("Failed to set active request flag")
	}
	defer func() {
		if err := h.state.ClearActiveRequest(context.Background(), userID); err != nil {
			log.WithError(err).Warn("Failed to clear active request flag")
		}
	}()

	h.metrics.RecordDownloadRequest()
	start := time.Now()

	progress, err := h.sendProgress(chatID, h.localizer.Get(lang, i18n.MsgSearching, nil))
	if err != nil {
		log.WithError(err).Error("Failed to send progress message")
	}
	defer h.deleteProgress(chatID, progress)

	h.editProgress(chatID, progress, h.localizer.Get(lang, i18n.MsgFinding, nil))

	handle, err := h.downloads.RequestDownload(ctx, userID, query)
	if err != nil {
		outcome, text := h.classify(lang, err)
		h.metrics.RecordDownloadOutcome(outcome, time.Since(start))
		if outcome == "quota_exceeded" {
			h.metrics.RecordQuotaDenied()
		}
		if outcome == "storage_error" || outcome == "channel_error" || outcome == "error" {
			log.WithError(err).Error("Download request failed")
		} else {
			log.WithField("outcome", outcome).Info("Download request rejected")
		}
		return h.reply(chatID, message.MessageID, text)
	}

	defer func() {
		if rerr := handle.Release(); rerr != nil {
			log.WithError(rerr).Error("Failed to remove temp file")
		}
	}()

	h.editProgress(chatID, progress, h.localizer.Get(lang, i18n.MsgUploading, nil))

	if err := h.sendAudio(chatID, lang, handle); err != nil {
		h.metrics.RecordDownloadOutcome("error", time.Since(start))
		log.WithError(err).Error("Failed to send audio")
		return h.reply(chatID, message.MessageID, h.localizer.Get(lang, i18n.MsgTryLater, nil))
	}

	h.metrics.RecordDownloadOutcome("success", time.Since(start))
	return nil
}

// classify maps a failure to a metrics label and a user-facing message.
// No kind is silently swallowed, but none leaks raw internals to the user.
func (h *MessageHandler) classify(lang string, err error) (string, string) {
	var quotaErr *download.QuotaExceededError
	var storageErr *quota.StorageError
	var channelErr *relay.ChannelError

	switch {
	case errors.As(err, &quotaErr):
		return "quota_exceeded", h.localizer.Get(lang, i18n.MsgQuotaExceeded, map[string]interface{}{
			"Limit": quotaErr.Limit,
		})
	case errors.Is(err, relay.ErrNoResult):
		return "not_found", h.localizer.Get(lang, i18n.MsgNotFound, nil)
	case errors.Is(err, relay.ErrNoMedia):
		return "no_media", h.localizer.Get(lang, i18n.MsgNoMedia, nil)
	case errors.Is(err, relay.ErrTimeout):
		return "timeout", h.localizer.Get(lang, i18n.MsgTimeout, nil)
	case errors.As(err, &storageErr):
		return "storage_error", h.localizer.Get(lang, i18n.MsgTryLater, nil)
	case errors.As(err, &channelErr):
		return "channel_error", h.localizer.Get(lang, i18n.MsgTryLater, nil)
	default:
		return "error", h.localizer.Get(lang, i18n.MsgTryLater, nil)
	}
}

func (h *MessageHandler) sendAudio(chatID int64, lang string, handle *relay.MediaHandle) error {
	safeName := format.SafeFileName(handle.FileName)

	audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(handle.Path))
	audio.Title = strings.TrimSuffix(safeName, ".mp3")
	audio.Performer = "FullSong Bot"
	audio.Duration = handle.Duration

	caption := h.localizer.Get(lang, i18n.MsgCaption, map[string]interface{}{
		"FileName": markdown.EscapeHTML(safeName),
		"Size":     format.FileSize(handle.Size),
	})
	if handle.Duration > 0 {
		caption += "\n" + h.localizer.Get(lang, i18n.MsgCaptionDuration, map[string]interface{}{
			"Duration": format.Duration(handle.Duration),
		})
	}
	audio.Caption = caption
	audio.ParseMode = "HTML"

	_, err := h.bot.Send(audio)
	return err
}

func (h *MessageHandler) reply(chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	_, err := h.bot.Send(msg)
	return err
}

func (h *MessageHandler) sendProgress(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := h.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (h *MessageHandler) editProgress(chatID int64, messageID int, text string) {
	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := h.bot.Send(edit); err != nil {
		h.logger.WithError(err).Debug("Failed to edit progress message")
	}
}

func (h *MessageHandler) deleteProgress(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		h.logger.WithError(err).Debug("Failed to delete progress message")
	}
}

func (h *MessageHandler) userLanguage(ctx context.Context, userID int64) string {
	lang, err := h.state.GetUserLanguage(ctx, userID)
	if err != nil || lang == "" {
		return h.config.I18n.DefaultLanguage
	}
	return lang
}
