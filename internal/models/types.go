package models

import (
	"time"
)

// UserQuota represents a user's daily download allowance.
// DailyDownloads is only meaningful relative to LastDownloadDate: if that
// date is not today, the counter is logically zero regardless of the stored
// value. The store resets it lazily on the next quota check.
type UserQuota struct {
	UserID           int64
	IsPremium        bool
	DailyDownloads   int
	LastDownloadDate string // YYYY-MM-DD, empty if the user never downloaded
}

// DownloadRecord is an append-only history entry for a completed download.
type DownloadRecord struct {
	ID           int64
	UserID       int64
	FileName     string
	DownloadDate time.Time
}

// UserStats is the read-only view returned by the quota store.
type UserStats struct {
	DailyDownloads   int
	LastDownloadDate string
	IsPremium        bool
}
