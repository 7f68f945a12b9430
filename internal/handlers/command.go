package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/fullsong-tgbot-go/internal/i18n"
	"github.com/fullsong-tgbot-go/internal/middleware"
	"github.com/fullsong-tgbot-go/internal/services/cache"
	"github.com/fullsong-tgbot-go/internal/services/quota"
	"github.com/fullsong-tgbot-go/internal/services/state"
	"github.com/fullsong-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// CommandHandler handles telegram commands
type CommandHandler struct {
	bot         *tgbotapi.BotAPI
	config      *config.Config
	quota       *quota.Store
	state       *state.Manager
	cache       cache.Service
	rateLimiter middleware.RateLimiter
	messages    *MessageHandler
	localizer   *i18n.Localizer
	logger      *logrus.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
	quotaStore *quota.Store,
	stateManager *state.Manager,
	cacheService cache.Service,
	rateLimiter middleware.RateLimiter,
	messages *MessageHandler,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *CommandHandler {
	return &CommandHandler{
		bot:         bot,
		config:      cfg,
		quota:       quotaStore,
		state:       stateManager,
		cache:       cacheService,
		rateLimiter: rateLimiter,
		messages:    messages,
		localizer:   localizer,
		logger:      logger,
	}
}

// HandleCommand processes telegram commands
func (h *CommandHandler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID
	lang := h.userLanguage(ctx, userID)

	switch message.Command() {
	case "start":
		return h.sendMarkdown(chatID, h.localizer.Get(lang, i18n.MsgWelcome, nil))
	case "help":
		return h.sendMarkdown(chatID, h.localizer.Get(lang, i18n.MsgHelp, nil))
	case "song":
		return h.handleSong(ctx, message, lang)
	case "stats":
		return h.handleStats(ctx, message, lang)
	case "premium":
		return h.handlePremium(ctx, message, lang)
	case "lang":
		return h.handleLang(ctx, message, lang)
	case "clearcache":
		return h.handleClearCache(ctx, message, lang)
	default:
		return h.sendText(chatID, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil))
	}
}

// handleSong handles /song <query>
func (h *CommandHandler) handleSong(ctx context.Context, message *tgbotapi.Message, lang string) error {
	query := strings.TrimSpace(message.CommandArguments())
	if query == "" {
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgSongUsage, nil))
	}
	return h.messages.ProcessSongRequest(ctx, message, query)
}

// handleStats shows the caller's download statistics. The owner may pass a
// user id to inspect someone else.
func (h *CommandHandler) handleStats(ctx context.Context, message *tgbotapi.Message, lang string) error {
	targetID := message.From.ID

	if args := strings.TrimSpace(message.CommandArguments()); args != "" && h.isOwner(message.From.ID) {
		id, err := strconv.ParseInt(args, 10, 64)
		if err == nil {
			targetID = id
		}
	}

	stats, err := h.quota.GetStats(ctx, targetID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load stats")
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgTryLater, nil))
	}

	status := h.localizer.Get(lang, i18n.MsgStatusStandard, nil)
	if stats.IsPremium {
		status = h.localizer.Get(lang, i18n.MsgStatusPremium, nil)
	}
	last := stats.LastDownloadDate
	if last == "" {
		last = h.localizer.Get(lang, i18n.MsgStatsNever, nil)
	}

	text := h.localizer.Get(lang, i18n.MsgStats, map[string]interface{}{
		"Status": status,
		"Daily":  stats.DailyDownloads,
		"Limit":  h.quota.Limit(),
		"Last":   last,
	})
	return h.sendMarkdown(message.Chat.ID, text)
}

// handlePremium shows membership info, or, for the owner with arguments,
// flips a user's premium flag: /premium <user_id> <true|false>
func (h *CommandHandler) handlePremium(ctx context.Context, message *tgbotapi.Message, lang string) error {
	args := strings.Fields(message.CommandArguments())

	if len(args) == 0 || !h.isOwner(message.From.ID) {
		return h.sendMarkdown(message.Chat.ID, h.localizer.Get(lang, i18n.MsgPremiumInfo, nil))
	}

	if len(args) != 2 {
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgPremiumUsage, nil))
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgPremiumUsage, nil))
	}
	premium, err := strconv.ParseBool(args[1])
	if err != nil {
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgPremiumUsage, nil))
	}

	if err := h.quota.SetPremium(ctx, userID, premium); err != nil {
		h.logger.WithError(err).Error("Failed to set premium status")
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgTryLater, nil))
	}

	// A fresh premium user should not sit out a throttle earned on the
	// standard tier.
	if premium {
		h.rateLimiter.Reset(userID)
	}

	return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgPremiumUpdated, map[string]interface{}{
		"Status": premium,
	}))
}

// handleLang sets the caller's preferred language: /lang <en|tr>
func (h *CommandHandler) handleLang(ctx context.Context, message *tgbotapi.Message, lang string) error {
	requested := strings.TrimSpace(message.CommandArguments())

	valid := false
	for _, l := range h.config.I18n.Languages {
		if l == requested {
			valid = true
			break
		}
	}
	if !valid {
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgLangUsage, map[string]interface{}{
			"Languages": strings.Join(h.config.I18n.Languages, ", "),
		}))
	}

	if err := h.state.SetUserLanguage(ctx, message.From.ID, requested); err != nil {
		h.logger.WithError(err).Error("Failed to save language preference")
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgTryLater, nil))
	}

	return h.sendText(message.Chat.ID, h.localizer.Get(requested, i18n.MsgLangUpdated, nil))
}

// handleClearCache flushes the negative-result cache, owner only. Useful
// after the agent's catalog picks up songs it previously missed.
func (h *CommandHandler) handleClearCache(ctx context.Context, message *tgbotapi.Message, lang string) error {
	if !h.isOwner(message.From.ID) {
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil))
	}

	if err := h.cache.Clear(ctx); err != nil {
		h.logger.WithError(err).Error("Failed to clear cache")
		return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgTryLater, nil))
	}

	return h.sendText(message.Chat.ID, h.localizer.Get(lang, i18n.MsgCacheCleared, nil))
}

func (h *CommandHandler) isOwner(userID int64) bool {
	return userID == h.config.Bot.OwnerID
}

func (h *CommandHandler) sendText(chatID int64, text string) error {
	_, err := h.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (h *CommandHandler) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, markdown.ToTelegramHTML(text))
	msg.ParseMode = "HTML"
	_, err := h.bot.Send(msg)
	return err
}

func (h *CommandHandler) userLanguage(ctx context.Context, userID int64) string {
	lang, err := h.state.GetUserLanguage(ctx, userID)
	if err != nil || lang == "" {
		return h.config.I18n.DefaultLanguage
	}
	return lang
}
