package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service remembers queries the downloader agent recently came up empty on,
// so repeat misses answer immediately instead of re-running the whole
// conversation. Only negative outcomes are cached; media files are deleted
// after delivery and cannot be reused.
type Service interface {
	IsNegative(ctx context.Context, query string) bool
	MarkNegative(ctx context.Context, query string) error
	Clear(ctx context.Context) error
}

// Cache implements the negative-result cache over go-cache.
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.Config, logger *logrus.Logger) Service {
	if !cfg.Cache.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
}

// IsNegative reports whether the query recently produced no result.
func (c *Cache) IsNegative(ctx context.Context, query string) bool {
	if !c.enabled {
		return false
	}

	if _, found := c.cache.Get(c.generateKey(query)); found {
		c.logger.WithField("query", query).Debug("Negative cache hit")
		return true
	}

	return false
}

// MarkNegative records that the query produced no result.
func (c *Cache) MarkNegative(ctx context.Context, query string) error {
	if !c.enabled {
		return nil
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing expired entries")
		c.cache.DeleteExpired()
	}

	c.cache.SetDefault(c.generateKey(query), time.Now())
	c.logger.WithField("query", query).Debug("Query marked as negative")
	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

// generateKey creates a unique cache key from the normalized query
func (c *Cache) generateKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}
