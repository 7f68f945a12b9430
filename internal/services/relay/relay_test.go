package relay

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChannel replays a fixed sequence of agent replies and records
// everything the relay sends. Entries in stale model messages buffered
// before the conversation started; they are served ahead of replies
// unless Drain removes them first.
type scriptedChannel struct {
	sent      []string
	stale     []*Message
	replies   []*Message
	downloads map[string][]byte
	sendErr   error
}

func (c *scriptedChannel) Send(ctx context.Context, text string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *scriptedChannel) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	if len(c.stale) > 0 {
		msg := c.stale[0]
		c.stale = c.stale[1:]
		return msg, nil
	}
	if len(c.replies) == 0 {
		return nil, ErrTimeout
	}
	msg := c.replies[0]
	c.replies = c.replies[1:]
	return msg, nil
}

func (c *scriptedChannel) Drain() {
	c.stale = nil
}

func (c *scriptedChannel) Download(ctx context.Context, media *MediaRef, path string) error {
	return os.WriteFile(path, c.downloads[media.FileID], 0644)
}

func newTestRelay(t *testing.T, channel Channel) *Relay {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	temp, err := NewTempManager(t.TempDir(), log)
	require.NoError(t, err)

	return NewRelay(channel, temp, Options{
		ReplyTimeout: 10 * time.Millisecond,
		MediaTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		MinFileSize:  1024,
	}, log)
}

func TestFetchTimeoutOnFirstReply(t *testing.T) {
	channel := &scriptedChannel{}
	r := newTestRelay(t, channel)

	_, err := r.Fetch(context.Background(), "test song")
	assert.ErrorIs(t, err, ErrTimeout, "a silent agent is a timeout, not a missing file")
}

func TestFetchNotFoundShortCircuits(t *testing.T) {
	channel := &scriptedChannel{
		replies: []*Message{
			{Text: "Error: nothing matched your query"},
		},
	}
	r := newTestRelay(t, channel)

	_, err := r.Fetch(context.Background(), "test song")
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, []string{"test song"}, channel.sent, "no further send after a not-found reply")
}

func TestFetchNotFoundCaseInsensitive(t *testing.T) {
	channel := &scriptedChannel{
		replies: []*Message{
			{Text: "NOT FOUND, sorry"},
		},
	}
	r := newTestRelay(t, channel)

	_, err := r.Fetch(context.Background(), "test song")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestFetchSelectsFirstChoice(t *testing.T) {
	channel := &scriptedChannel{
		replies: []*Message{
			{Text: "Pick a track:\n1. Song A\n2. Song B"},
			{Text: "Queued your pick"},
			{Text: "here it comes", Media: &MediaRef{FileID: "f1", FileName: "song.mp3"}},
		},
		downloads: map[string][]byte{
			"f1": bytes.Repeat([]byte("a"), 5000),
		},
	}
	r := newTestRelay(t, channel)

	handle, err := r.Fetch(context.Background(), "test song")
	require.NoError(t, err)
	defer handle.Release()

	assert.Equal(t, []string{"test song", "1"}, channel.sent)
	assert.Equal(t, "song.mp3", handle.FileName)
	assert.EqualValues(t, 5000, handle.Size)
}

func TestFetchFirstResponseMedia(t *testing.T) {
	channel := &scriptedChannel{
		replies: []*Message{
			{Text: "on it"},
			{Media: &MediaRef{FileID: "f1", FileName: "track.mp3"}},
		},
		downloads: map[string][]byte{
			"f1": bytes.Repeat([]byte("x"), 5000),
		},
	}
	r := newTestRelay(t, channel)

	handle, err := r.Fetch(context.Background(), "test song")
	require.NoError(t, err)
	defer handle.Release()

	data, err := os.ReadFile(handle.Path)
	require.NoError(t, err)
	assert.Len(t, data, 5000)
}

func TestFetchRejectsSmallPayload(t *testing.T) {
	channel := &scriptedChannel{
		replies: []*Message{
			{Text: "on it"},
			{Media: &MediaRef{FileID: "small", FileName: "placeholder.mp3"}},
			{Media: &MediaRef{FileID: "big", FileName: "real.mp3"}},
		},
		downloads: map[string][]byte{
			"small": bytes.Repeat([]byte("x"), 1000),
			"big":   bytes.Repeat([]byte("x"), 2000),
		},
	}
	r := newTestRelay(t, channel)

	handle, err := r.Fetch(context.Background(), "test song")
	require.NoError(t, err)
	defer handle.Release()

	assert.Equal(t, "real.mp3", handle.FileName)
	assert.EqualValues(t, 2000, handle.Size)

	// The rejected placeholder must not linger in the scratch dir.
	entries, err := os.ReadDir(filepath.Dir(handle.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchNoMediaAfterAttempts(t *testing.T) {
	channel := &scriptedChannel{
		replies: []*Message{
			{Text: "on it"},
			{Text: "still working"},
			{Text: "almost there"},
			{Text: "any moment now"},
			{Text: "hold on"},
		},
	}
	r := newTestRelay(t, channel)

	_, err := r.Fetch(context.Background(), "test song")
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestFetchNoMediaWhenAgentGoesQuiet(t *testing.T) {
	channel := &scriptedChannel{
		replies: []*Message{
			{Text: "on it"},
			{Text: "still working"},
		},
	}
	r := newTestRelay(t, channel)

	// The final per-attempt timeout folds into no-media, not timeout.
	_, err := r.Fetch(context.Background(), "test song")
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestFetchDiscardsStragglersFromEarlierExchange(t *testing.T) {
	// A selection menu that arrived after a previous request gave up must
	// not be read as this request's first reply.
	channel := &scriptedChannel{
		stale: []*Message{
			{Text: "Pick a track:\n1. Old Song\n2. Older Song"},
		},
		replies: []*Message{
			{Text: "on it"},
			{Media: &MediaRef{FileID: "f1", FileName: "fresh.mp3"}},
		},
		downloads: map[string][]byte{
			"f1": bytes.Repeat([]byte("x"), 5000),
		},
	}
	r := newTestRelay(t, channel)

	handle, err := r.Fetch(context.Background(), "test song")
	require.NoError(t, err)
	defer handle.Release()

	assert.Equal(t, []string{"test song"}, channel.sent, "the stale menu must not trigger a selection")
	assert.Equal(t, "fresh.mp3", handle.FileName)
}

func TestFetchChannelErrorPropagates(t *testing.T) {
	channel := &scriptedChannel{
		sendErr: &ChannelError{Op: "send", Err: os.ErrClosed},
	}
	r := newTestRelay(t, channel)

	_, err := r.Fetch(context.Background(), "test song")

	var chanErr *ChannelError
	assert.ErrorAs(t, err, &chanErr)
}

func TestMediaHandleReleaseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.mp3")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	handle := &MediaHandle{Path: path, FileName: "file.mp3", Size: 4}

	require.NoError(t, handle.Release())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, handle.Release(), "double release must be a no-op")
}
