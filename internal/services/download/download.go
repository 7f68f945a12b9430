package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/fullsong-tgbot-go/internal/services/cache"
	"github.com/fullsong-tgbot-go/internal/services/relay"
	"github.com/sirupsen/logrus"
)

// QuotaExceededError means the user spent today's allowance. Carries the
// configured limit for display.
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily download limit of %d reached", e.Limit)
}

// QuotaStore is the subset of the quota store the orchestrator needs.
type QuotaStore interface {
	CanDownload(ctx context.Context, userID int64) (bool, error)
	RecordDownload(ctx context.Context, userID int64) error
	AppendHistory(ctx context.Context, userID int64, fileName string) error
	Limit() int
}

// Fetcher runs one scripted conversation with the downloader agent.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*relay.MediaHandle, error)
}

// Service composes the quota store and the conversation relay: check quota,
// fetch, record on success. The returned handle owns the temp file; the
// caller must Release it on every exit path.
type Service struct {
	quota   QuotaStore
	fetcher Fetcher
	cache   cache.Service
	logger  *logrus.Logger
}

// NewService creates a new download orchestrator.
func NewService(quota QuotaStore, fetcher Fetcher, cache cache.Service, logger *logrus.Logger) *Service {
	return &Service{
		quota:   quota,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
	}
}

// RequestDownload runs one end-to-end request for the user.
func (s *Service) RequestDownload(ctx context.Context, userID int64, query string) (*relay.MediaHandle, error) {
	allowed, err := s.quota.CanDownload(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &QuotaExceededError{Limit: s.quota.Limit()}
	}

	if s.cache.IsNegative(ctx, query) {
		s.logger.WithField("query", query).Debug("Answering from negative cache")
		return nil, relay.ErrNoResult
	}

	handle, err := s.fetcher.Fetch(ctx, query)
	if err != nil {
		if errors.Is(err, relay.ErrNoResult) {
			if cerr := s.cache.MarkNegative(ctx, query); cerr != nil {
				s.logger.WithError(cerr).Warn("Failed to cache negative result")
			}
		}
		return nil, err
	}

	if err := s.quota.RecordDownload(ctx, userID); err != nil {
		if rerr := handle.Release(); rerr != nil {
			s.logger.WithError(rerr).Error("Failed to remove temp file")
		}
		return nil, err
	}

	// History is reporting only; a failure here must not cost the user
	// an already retrieved file.
	if err := s.quota.AppendHistory(ctx, userID, handle.FileName); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to append download history")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"file":    handle.FileName,
		"size":    handle.Size,
	}).Info("Download completed")

	return handle, nil
}
