package state

import (
	"context"
	"fmt"
	"time"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// activeRequestTTL caps how long an in-flight flag can stick around if a
// crash prevents the normal clear.
const activeRequestTTL = 10 * time.Minute

// Storage holds ephemeral per-user state: the in-flight download flag that
// blocks a second concurrent request, and the preferred language.
type Storage interface {
	SetActiveRequest(ctx context.Context, userID int64, query string) error
	GetActiveRequest(ctx context.Context, userID int64) (string, error)
	ClearActiveRequest(ctx context.Context, userID int64) error

	GetUserLanguage(ctx context.Context, userID int64) (string, error)
	SetUserLanguage(ctx context.Context, userID int64, lang string) error
}

// Manager selects and wraps the configured storage backend.
type Manager struct {
	storage Storage
	logger  *logrus.Logger
}

// NewManager creates a new state manager
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	var storage Storage

	switch cfg.State.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		storage = redisStorage
	case "memory", "":
		storage = NewMemoryStorage(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported state storage type: %s", cfg.State.Type)
	}

	return &Manager{storage: storage, logger: logger}, nil
}

// Delegate methods to underlying storage
func (m *Manager) SetActiveRequest(ctx context.Context, userID int64, query string) error {
	return m.storage.SetActiveRequest(ctx, userID, query)
}

func (m *Manager) GetActiveRequest(ctx context.Context, userID int64) (string, error) {
	return m.storage.GetActiveRequest(ctx, userID)
}

func (m *Manager) ClearActiveRequest(ctx context.Context, userID int64) error {
	return m.storage.ClearActiveRequest(ctx, userID)
}

func (m *Manager) GetUserLanguage(ctx context.Context, userID int64) (string, error) {
	return m.storage.GetUserLanguage(ctx, userID)
}

func (m *Manager) SetUserLanguage(ctx context.Context, userID int64, lang string) error {
	return m.storage.SetUserLanguage(ctx, userID, lang)
}

// RedisStorage implements state storage using Redis
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.State.Redis.Addr,
		Password: cfg.State.Redis.Password,
		DB:       cfg.State.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{client: client, logger: logger}, nil
}

func (r *RedisStorage) SetActiveRequest(ctx context.Context, userID int64, query string) error {
	key := fmt.Sprintf("active_request:%d", userID)
	return r.client.Set(ctx, key, query, activeRequestTTL).Err()
}

func (r *RedisStorage) GetActiveRequest(ctx context.Context, userID int64) (string, error) {
	key := fmt.Sprintf("active_request:%d", userID)
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

func (r *RedisStorage) ClearActiveRequest(ctx context.Context, userID int64) error {
	key := fmt.Sprintf("active_request:%d", userID)
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStorage) GetUserLanguage(ctx context.Context, userID int64) (string, error) {
	key := fmt.Sprintf("user_lang:%d", userID)
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

func (r *RedisStorage) SetUserLanguage(ctx context.Context, userID int64, lang string) error {
	key := fmt.Sprintf("user_lang:%d", userID)
	return r.client.Set(ctx, key, lang, 0).Err()
}

// MemoryStorage implements state storage using in-memory cache
type MemoryStorage struct {
	requests  *cache.Cache
	languages *cache.Cache
	logger    *logrus.Logger
}

func NewMemoryStorage(cfg *config.Config, logger *logrus.Logger) *MemoryStorage {
	cleanup := cfg.State.Memory.CleanupInterval
	if cleanup == 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryStorage{
		requests:  cache.New(activeRequestTTL, cleanup),
		languages: cache.New(cache.NoExpiration, cache.NoExpiration),
		logger:    logger,
	}
}

func (m *MemoryStorage) SetActiveRequest(ctx context.Context, userID int64, query string) error {
	m.requests.SetDefault(fmt.Sprintf("active_request:%d", userID), query)
	return nil
}

func (m *MemoryStorage) GetActiveRequest(ctx context.Context, userID int64) (string, error) {
	if val, found := m.requests.Get(fmt.Sprintf("active_request:%d", userID)); found {
		return val.(string), nil
	}
	return "", nil
}

func (m *MemoryStorage) ClearActiveRequest(ctx context.Context, userID int64) error {
	m.requests.Delete(fmt.Sprintf("active_request:%d", userID))
	return nil
}

func (m *MemoryStorage) GetUserLanguage(ctx context.Context, userID int64) (string, error) {
	if val, found := m.languages.Get(fmt.Sprintf("user_lang:%d", userID)); found {
		return val.(string), nil
	}
	return "", nil
}

func (m *MemoryStorage) SetUserLanguage(ctx context.Context, userID int64, lang string) error {
	m.languages.Set(fmt.Sprintf("user_lang:%d", userID), lang, cache.NoExpiration)
	return nil
}
