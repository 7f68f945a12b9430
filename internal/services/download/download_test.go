package download

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/fullsong-tgbot-go/internal/services/cache"
	"github.com/fullsong-tgbot-go/internal/services/relay"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockQuotaStore is a mock type for the QuotaStore interface
type MockQuotaStore struct {
	mock.Mock
}

func (m *MockQuotaStore) CanDownload(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuotaStore) RecordDownload(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockQuotaStore) AppendHistory(ctx context.Context, userID int64, fileName string) error {
	args := m.Called(ctx, userID, fileName)
	return args.Error(0)
}

func (m *MockQuotaStore) Limit() int {
	args := m.Called()
	return args.Int(0)
}

// MockFetcher is a mock type for the Fetcher interface
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, query string) (*relay.MediaHandle, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relay.MediaHandle), args.Error(1)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func enabledCache(t *testing.T) cache.Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = time.Minute
	cfg.Cache.MaxSize = 100
	return cache.NewCache(cfg, testLogger())
}

func disabledCache() cache.Service {
	return cache.NewCache(&config.Config{}, testLogger())
}

func newHandle(t *testing.T, name string, size int) *relay.MediaHandle {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return &relay.MediaHandle{Path: path, FileName: name, Size: int64(size)}
}

func TestRequestDownloadQuotaExceeded(t *testing.T) {
	quotaStore := new(MockQuotaStore)
	fetcher := new(MockFetcher)

	quotaStore.On("CanDownload", mock.Anything, int64(42)).Return(false, nil)
	quotaStore.On("Limit").Return(5)

	svc := NewService(quotaStore, fetcher, disabledCache(), testLogger())

	_, err := svc.RequestDownload(context.Background(), 42, "test song")

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 5, quotaErr.Limit)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRequestDownloadSuccess(t *testing.T) {
	quotaStore := new(MockQuotaStore)
	fetcher := new(MockFetcher)
	handle := newHandle(t, "test_song.mp3", 5000)

	quotaStore.On("CanDownload", mock.Anything, int64(42)).Return(true, nil)
	quotaStore.On("RecordDownload", mock.Anything, int64(42)).Return(nil).Once()
	quotaStore.On("AppendHistory", mock.Anything, int64(42), "test_song.mp3").Return(nil).Once()
	fetcher.On("Fetch", mock.Anything, "test song").Return(handle, nil).Once()

	svc := NewService(quotaStore, fetcher, disabledCache(), testLogger())

	got, err := svc.RequestDownload(context.Background(), 42, "test song")
	require.NoError(t, err)
	assert.Equal(t, handle, got)

	quotaStore.AssertExpectations(t)
	fetcher.AssertExpectations(t)
}

func TestRequestDownloadFetchFailurePropagates(t *testing.T) {
	quotaStore := new(MockQuotaStore)
	fetcher := new(MockFetcher)

	quotaStore.On("CanDownload", mock.Anything, int64(42)).Return(true, nil)
	fetcher.On("Fetch", mock.Anything, "test song").Return(nil, relay.ErrTimeout)

	svc := NewService(quotaStore, fetcher, disabledCache(), testLogger())

	_, err := svc.RequestDownload(context.Background(), 42, "test song")
	assert.ErrorIs(t, err, relay.ErrTimeout)
	quotaStore.AssertNotCalled(t, "RecordDownload", mock.Anything, mock.Anything)
}

func TestRequestDownloadNegativeCache(t *testing.T) {
	quotaStore := new(MockQuotaStore)
	fetcher := new(MockFetcher)

	quotaStore.On("CanDownload", mock.Anything, int64(42)).Return(true, nil)
	fetcher.On("Fetch", mock.Anything, "missing song").Return(nil, relay.ErrNoResult).Once()

	svc := NewService(quotaStore, fetcher, enabledCache(t), testLogger())

	_, err := svc.RequestDownload(context.Background(), 42, "missing song")
	require.ErrorIs(t, err, relay.ErrNoResult)

	// The repeat miss answers from cache without engaging the agent again.
	_, err = svc.RequestDownload(context.Background(), 42, "missing song")
	require.ErrorIs(t, err, relay.ErrNoResult)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRequestDownloadRecordFailureReleasesFile(t *testing.T) {
	quotaStore := new(MockQuotaStore)
	fetcher := new(MockFetcher)
	handle := newHandle(t, "test_song.mp3", 5000)

	quotaStore.On("CanDownload", mock.Anything, int64(42)).Return(true, nil)
	quotaStore.On("RecordDownload", mock.Anything, int64(42)).
		Return(assert.AnError)
	fetcher.On("Fetch", mock.Anything, "test song").Return(handle, nil)

	svc := NewService(quotaStore, fetcher, disabledCache(), testLogger())

	_, err := svc.RequestDownload(context.Background(), 42, "test song")
	require.Error(t, err)

	_, statErr := os.Stat(handle.Path)
	assert.True(t, os.IsNotExist(statErr), "temp file must be released on post-fetch failure")
}

func TestRequestDownloadHistoryFailureIsNotFatal(t *testing.T) {
	quotaStore := new(MockQuotaStore)
	fetcher := new(MockFetcher)
	handle := newHandle(t, "test_song.mp3", 5000)

	quotaStore.On("CanDownload", mock.Anything, int64(42)).Return(true, nil)
	quotaStore.On("RecordDownload", mock.Anything, int64(42)).Return(nil)
	quotaStore.On("AppendHistory", mock.Anything, int64(42), "test_song.mp3").
		Return(assert.AnError)
	fetcher.On("Fetch", mock.Anything, "test song").Return(handle, nil)

	svc := NewService(quotaStore, fetcher, disabledCache(), testLogger())

	got, err := svc.RequestDownload(context.Background(), 42, "test song")
	require.NoError(t, err, "history is reporting only")
	assert.Equal(t, handle, got)
}
