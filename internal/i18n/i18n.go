package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load language files
	for _, lang := range cfg.Languages {
		path := filepath.Join(cfg.Directory, fmt.Sprintf("%s.json", lang))
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgWelcome            = "welcome"
	MsgHelp               = "help"
	MsgSongUsage          = "song_usage"
	MsgSearching          = "searching"
	MsgFinding            = "finding"
	MsgUploading          = "uploading"
	MsgCaption            = "caption"
	MsgCaptionDuration    = "caption_duration"
	MsgQuotaExceeded      = "quota_exceeded"
	MsgNotFound           = "not_found"
	MsgNoMedia            = "no_media"
	MsgTimeout            = "timeout"
	MsgTryLater           = "try_later"
	MsgAlreadyDownloading = "already_downloading"
	MsgRateLimitExceeded  = "rate_limit_exceeded"
	MsgStats              = "stats"
	MsgStatsNever         = "stats_never"
	MsgStatusPremium      = "status_premium"
	MsgStatusStandard     = "status_standard"
	MsgPremiumInfo        = "premium_info"
	MsgPremiumUpdated     = "premium_updated"
	MsgPremiumUsage       = "premium_usage"
	MsgUnknownCommand     = "unknown_command"
	MsgCacheCleared       = "cache_cleared"
	MsgLangUsage          = "lang_usage"
	MsgLangUpdated        = "lang_updated"
	MsgStartupNotice      = "startup_notice"
)
