package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Failure kinds of a fetch. The downloader agent is a black box, so these
// are the only contractual outcomes besides success.
var (
	// ErrNoResult means the agent answered that nothing matched the query.
	ErrNoResult = errors.New("no result found")
	// ErrNoMedia means the agent responded but never delivered a usable file.
	ErrNoMedia = errors.New("no media received")
	// ErrTimeout means the agent stopped answering mid-conversation.
	ErrTimeout = errors.New("conversation timed out")
)

// ChannelError is a transport-level send/receive fault from the messaging
// collaborator, distinct from the scripted-protocol failures above.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Message is a single reply received from the downloader agent.
type Message struct {
	Text  string
	Media *MediaRef
}

// MediaRef is an opaque reference to media attached to a Message,
// retrievable through the Channel that produced it.
type MediaRef struct {
	FileID   string
	FileName string
	Size     int64
	Duration int
}

// Channel abstracts the messaging transport toward the downloader agent.
// Receive must return ErrTimeout when no message arrives within the given
// timeout, and *ChannelError for transport faults. Drain discards buffered
// messages left over from an earlier exchange.
type Channel interface {
	Send(ctx context.Context, text string) error
	Receive(ctx context.Context, timeout time.Duration) (*Message, error)
	Download(ctx context.Context, media *MediaRef, path string) error
	Drain()
}

// MediaHandle is a successfully retrieved artifact. The receiver owns the
// temp file and must call Release once it is done with it.
type MediaHandle struct {
	Path     string
	FileName string
	Size     int64
	Duration int

	released bool
}

// Release removes the underlying temp file. Safe to call more than once.
func (h *MediaHandle) Release() error {
	if h.released {
		return nil
	}
	h.released = true
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Options bound the scripted conversation.
type Options struct {
	// Timeout bounds the whole exchange; zero means the caller's context
	// deadline is the only bound.
	Timeout time.Duration
	// ReplyTimeout bounds each early conversational step.
	ReplyTimeout time.Duration
	// MediaTimeout bounds each wait for the agent to transmit media.
	MediaTimeout time.Duration
	// MaxAttempts caps the media-inspection cycles.
	MaxAttempts int
	// MinFileSize rejects empty/placeholder payloads the agent sends on
	// soft failures.
	MinFileSize int64
}

// notFoundMarkers short-circuit the conversation; the agent answers in
// Turkish or English depending on its mood.
var notFoundMarkers = []string{"bulunamadı", "not found", "hata", "error"}

// Relay drives the scripted request/response exchange with the downloader
// agent: send the query, interpret the replies, retrieve whatever media
// arrives, retry on empty payloads up to a bound.
type Relay struct {
	channel Channel
	temp    *TempManager
	opts    Options
	logger  *logrus.Logger

	// The agent chat is a single shared session; interleaved
	// conversations would consume each other's replies.
	mu sync.Mutex
}

// NewRelay creates a relay over the given channel.
func NewRelay(channel Channel, temp *TempManager, opts Options, logger *logrus.Logger) *Relay {
	return &Relay{
		channel: channel,
		temp:    temp,
		opts:    opts,
		logger:  logger,
	}
}

// Fetch runs one scripted conversation for the query and returns the
// retrieved artifact. It fails with ErrNoResult, ErrNoMedia, ErrTimeout or
// a *ChannelError. Any temp file not handed back is removed before return.
func (r *Relay) Fetch(ctx context.Context, query string) (*MediaHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A reply that straggled in after an earlier fetch gave up must not be
	// read as this conversation's first response.
	r.channel.Drain()

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	log := r.logger.WithField("query", query)

	if err := r.channel.Send(ctx, query); err != nil {
		return nil, err
	}

	// First reply: search results, an error, or the download starting.
	resp, err := r.channel.Receive(ctx, r.opts.ReplyTimeout)
	if err != nil {
		return nil, err
	}

	if containsNotFound(resp.Text) {
		log.Info("Agent reported no result")
		return nil, ErrNoResult
	}

	// A digit 1-5 in the reply is taken as a selection menu; always pick
	// the first option. Known fragility: unrelated digits misfire, kept
	// for compatibility with the agent's observed behavior.
	if containsChoiceDigit(resp.Text) {
		if err := r.channel.Send(ctx, "1"); err != nil {
			return nil, err
		}
		if _, err := r.channel.Receive(ctx, r.opts.ReplyTimeout); err != nil {
			return nil, err
		}
	}

	// Wait for the agent to begin transmitting.
	resp, err = r.channel.Receive(ctx, r.opts.MediaTimeout)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if resp.Media != nil {
			handle, err := r.retrieve(ctx, resp.Media)
			if err != nil {
				return nil, err
			}
			if handle != nil {
				log.WithFields(logrus.Fields{
					"file":    handle.FileName,
					"size":    handle.Size,
					"attempt": attempt + 1,
				}).Info("Media retrieved")
				return handle, nil
			}
			log.WithField("attempt", attempt+1).Debug("Payload rejected, awaiting next response")
		}

		resp, err = r.channel.Receive(ctx, r.opts.MediaTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				// The agent stopped responding; fold into no-media.
				break
			}
			return nil, err
		}
	}

	return nil, ErrNoMedia
}

// retrieve downloads the media to a fresh temp path and validates it.
// Returns (nil, nil) when the payload is a placeholder to be discarded.
func (r *Relay) retrieve(ctx context.Context, media *MediaRef) (*MediaHandle, error) {
	path := r.temp.NewPath("mp3")

	if err := r.channel.Download(ctx, media, path); err != nil {
		r.temp.Remove(path)
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() <= r.opts.MinFileSize {
		r.temp.Remove(path)
		return nil, nil
	}

	name := media.FileName
	if name == "" {
		name = "audio.mp3"
	}

	return &MediaHandle{
		Path:     path,
		FileName: name,
		Size:     info.Size(),
		Duration: media.Duration,
	}, nil
}

func containsNotFound(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range notFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func containsChoiceDigit(text string) bool {
	return strings.ContainsAny(text, "12345")
}
