package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/fullsong-tgbot-go/internal/services/relay"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Session implements relay.Channel over a dedicated Telegram bot account
// that shares a private chat with the external downloader agent. An update
// pump filters messages from that chat into an inbox; Receive drains the
// inbox under a timeout.
type Session struct {
	bot           *tgbotapi.BotAPI
	chatID        int64
	updateTimeout int
	inbox         chan *relay.Message
	client        *http.Client
	logger        *logrus.Logger
}

// NewSession authorizes the agent-side bot account.
func NewSession(cfg *config.AgentConfig, logger *logrus.Logger) (*Session, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent session: %w", err)
	}

	logger.WithField("username", bot.Self.UserName).Info("Agent session authorized")

	return &Session{
		bot:           bot,
		chatID:        cfg.ChatID,
		updateTimeout: cfg.UpdateTimeout,
		inbox:         make(chan *relay.Message, 16),
		client:        &http.Client{Timeout: 2 * time.Minute},
		logger:        logger,
	}, nil
}

// Start launches the update pump. It stops when ctx is cancelled.
func (s *Session) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.updateTimeout
	updates := s.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Chat.ID != s.chatID {
					continue
				}
				msg := toRelayMessage(update.Message)
				select {
				case s.inbox <- msg:
				default:
					s.logger.Warn("Agent inbox full, dropping message")
				}
			}
		}
	}()
}

// Drain discards messages that arrived outside any conversation, such as a
// reply the agent sent after a fetch had already given up on it.
func (s *Session) Drain() {
	dropped := 0
	for {
		select {
		case <-s.inbox:
			dropped++
		default:
			if dropped > 0 {
				s.logger.WithField("count", dropped).Warn("Dropped stale agent messages")
			}
			return
		}
	}
}

// Send sends a text message to the agent chat.
func (s *Session) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		return &relay.ChannelError{Op: "send", Err: err}
	}
	return nil
}

// Receive waits for the next message from the agent chat.
func (s *Session) Receive(ctx context.Context, timeout time.Duration) (*relay.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, relay.ErrTimeout
	case <-timer.C:
		return nil, relay.ErrTimeout
	case msg := <-s.inbox:
		return msg, nil
	}
}

// Download retrieves the referenced media to the given path.
func (s *Session) Download(ctx context.Context, media *relay.MediaRef, path string) error {
	url, err := s.bot.GetFileDirectURL(media.FileID)
	if err != nil {
		return &relay.ChannelError{Op: "resolve file", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &relay.ChannelError{Op: "download", Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &relay.ChannelError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &relay.ChannelError{Op: "download", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	out, err := os.Create(path)
	if err != nil {
		return &relay.ChannelError{Op: "download", Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &relay.ChannelError{Op: "download", Err: err}
	}
	return nil
}

// toRelayMessage flattens a Telegram message into the shape the relay
// understands. Audio, documents and voice notes all count as media; the
// agent is not consistent about which it sends.
func toRelayMessage(m *tgbotapi.Message) *relay.Message {
	msg := &relay.Message{Text: m.Text}
	if msg.Text == "" {
		msg.Text = m.Caption
	}

	switch {
	case m.Audio != nil:
		msg.Media = &relay.MediaRef{
			FileID:   m.Audio.FileID,
			FileName: m.Audio.FileName,
			Size:     int64(m.Audio.FileSize),
			Duration: m.Audio.Duration,
		}
	case m.Document != nil:
		msg.Media = &relay.MediaRef{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			Size:     int64(m.Document.FileSize),
		}
	case m.Voice != nil:
		msg.Media = &relay.MediaRef{
			FileID:   m.Voice.FileID,
			Size:     int64(m.Voice.FileSize),
			Duration: m.Voice.Duration,
		}
	}

	return msg
}
