package agent

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fullsong-tgbot-go/internal/services/relay"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return &Session{
		inbox:  make(chan *relay.Message, 16),
		logger: log,
	}
}

func TestDrainDiscardsBufferedMessages(t *testing.T) {
	s := newTestSession()
	s.inbox <- &relay.Message{Text: "late reply"}
	s.inbox <- &relay.Message{Text: "even later reply"}

	s.Drain()

	_, err := s.Receive(context.Background(), 5*time.Millisecond)
	assert.ErrorIs(t, err, relay.ErrTimeout, "drained messages must be gone")
}

func TestDrainOnEmptyInboxIsNoop(t *testing.T) {
	s := newTestSession()
	s.Drain()

	s.inbox <- &relay.Message{Text: "fresh"}
	msg, err := s.Receive(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "fresh", msg.Text)
}

func TestReceiveDeliversInOrder(t *testing.T) {
	s := newTestSession()
	s.inbox <- &relay.Message{Text: "first"}
	s.inbox <- &relay.Message{Text: "second"}

	msg, err := s.Receive(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Text)

	msg, err = s.Receive(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Text)
}

func TestReceiveTimesOutOnEmptyInbox(t *testing.T) {
	s := newTestSession()

	_, err := s.Receive(context.Background(), 5*time.Millisecond)
	assert.ErrorIs(t, err, relay.ErrTimeout)
}

func TestToRelayMessageMapsAudio(t *testing.T) {
	msg := toRelayMessage(&tgbotapi.Message{
		Caption: "here you go",
		Audio: &tgbotapi.Audio{
			FileID:   "f1",
			FileName: "song.mp3",
			FileSize: 4096,
			Duration: 222,
		},
	})

	assert.Equal(t, "here you go", msg.Text)
	require.NotNil(t, msg.Media)
	assert.Equal(t, "f1", msg.Media.FileID)
	assert.Equal(t, "song.mp3", msg.Media.FileName)
	assert.EqualValues(t, 4096, msg.Media.Size)
	assert.Equal(t, 222, msg.Media.Duration)
}

func TestToRelayMessagePlainText(t *testing.T) {
	msg := toRelayMessage(&tgbotapi.Message{Text: "searching"})

	assert.Equal(t, "searching", msg.Text)
	assert.Nil(t, msg.Media)
}
