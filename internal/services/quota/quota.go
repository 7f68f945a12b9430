package quota

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/fullsong-tgbot-go/internal/models"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"
)

const dateFormat = "2006-01-02"

// StorageError wraps any fault from the underlying database. Callers must
// not assume quota was granted if a call returned one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("quota storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store persists per-user daily download counters and premium flags over
// SQLite. Every read-then-write sequence on a user's quota is serialized by
// a store-wide mutex; without it, two racing calls could both observe a
// stale counter and double-grant permission.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	limit  int
	logger *logrus.Logger
	now    func() time.Time
}

// NewStore opens (or creates) the SQLite database and initializes the schema.
func NewStore(dataSourceName string, dailyLimit int, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if err = db.Ping(); err != nil {
		return nil, &StorageError{Op: "ping", Err: err}
	}

	store := &Store{
		db:     db,
		limit:  dailyLimit,
		logger: logger,
		now:    time.Now,
	}
	if err = store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Limit returns the configured daily download limit.
func (s *Store) Limit() int {
	return s.limit
}

func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        user_id INTEGER PRIMARY KEY,
        is_premium BOOLEAN DEFAULT 0,
        daily_downloads INTEGER DEFAULT 0,
        last_download_date TEXT
    );

    CREATE TABLE IF NOT EXISTS download_history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER,
        file_name TEXT,
        download_date TEXT,
        FOREIGN KEY (user_id) REFERENCES users (user_id)
    );
    `
	if _, err := s.db.Exec(schema); err != nil {
		return &StorageError{Op: "init schema", Err: err}
	}
	return nil
}

// EnsureUser idempotently creates a quota record for the user. A row is
// inserted only on the first call per user_id.
func (s *Store) EnsureUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureUserLocked(ctx, userID)
}

func (s *Store) ensureUserLocked(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (user_id, is_premium) VALUES (?, 0)", userID)
	if err != nil {
		return &StorageError{Op: "ensure user", Err: err}
	}
	return nil
}

// CanDownload reports whether the user may download now. If the stored
// last_download_date is not today the counter is reset and persisted before
// answering. Premium users always pass; others pass while the counter is
// below the daily limit.
func (s *Store) CanDownload(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUserLocked(ctx, userID); err != nil {
		return false, err
	}

	var (
		isPremium      bool
		dailyDownloads int
		lastDate       sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT is_premium, daily_downloads, last_download_date FROM users WHERE user_id = ?",
		userID).Scan(&isPremium, &dailyDownloads, &lastDate)
	if err != nil {
		return false, &StorageError{Op: "query quota", Err: err}
	}

	today := s.now().Format(dateFormat)
	if !lastDate.Valid || lastDate.String != today {
		_, err := s.db.ExecContext(ctx,
			"UPDATE users SET daily_downloads = 0, last_download_date = ? WHERE user_id = ?",
			today, userID)
		if err != nil {
			return false, &StorageError{Op: "reset quota", Err: err}
		}
		return true, nil
	}

	if isPremium {
		return true, nil
	}

	return dailyDownloads < s.limit, nil
}

// RecordDownload counts a completed download. Must only be called after a
// successful retrieval, never speculatively.
func (s *Store) RecordDownload(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET daily_downloads = daily_downloads + 1, last_download_date = ? WHERE user_id = ?",
		s.now().Format(dateFormat), userID)
	if err != nil {
		return &StorageError{Op: "record download", Err: err}
	}
	return nil
}

// AppendHistory appends a download record. History is append-only and
// independent of the quota counters.
func (s *Store) AppendHistory(ctx context.Context, userID int64, fileName string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO download_history (user_id, file_name, download_date) VALUES (?, ?, ?)",
		userID, fileName, s.now().Format("2006-01-02 15:04:05"))
	if err != nil {
		return &StorageError{Op: "append history", Err: err}
	}
	return nil
}

// GetStats returns the user's counters without creating a record for
// unknown users.
func (s *Store) GetStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	var (
		isPremium      bool
		dailyDownloads int
		lastDate       sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT is_premium, daily_downloads, last_download_date FROM users WHERE user_id = ?",
		userID).Scan(&isPremium, &dailyDownloads, &lastDate)
	if err == sql.ErrNoRows {
		return &models.UserStats{}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get stats", Err: err}
	}

	return &models.UserStats{
		DailyDownloads:   dailyDownloads,
		LastDownloadDate: lastDate.String,
		IsPremium:        isPremium,
	}, nil
}

// IsPremium reports the user's premium flag; unknown users are not premium.
func (s *Store) IsPremium(ctx context.Context, userID int64) (bool, error) {
	var isPremium bool
	err := s.db.QueryRowContext(ctx,
		"SELECT is_premium FROM users WHERE user_id = ?", userID).Scan(&isPremium)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "is premium", Err: err}
	}
	return isPremium, nil
}

// SetPremium overwrites the user's premium flag. Idempotent.
func (s *Store) SetPremium(ctx context.Context, userID int64, premium bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUserLocked(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_premium = ? WHERE user_id = ?", premium, userID)
	if err != nil {
		return &StorageError{Op: "set premium", Err: err}
	}
	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"premium": premium,
	}).Info("Premium status updated")
	return nil
}

// History returns the most recent download records for the user, newest first.
func (s *Store) History(ctx context.Context, userID int64, limit int) ([]models.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, file_name, download_date FROM download_history WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, &StorageError{Op: "query history", Err: err}
	}
	defer rows.Close()

	var records []models.DownloadRecord
	for rows.Next() {
		var (
			rec  models.DownloadRecord
			date string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.FileName, &date); err != nil {
			return nil, &StorageError{Op: "scan history", Err: err}
		}
		rec.DownloadDate, _ = time.Parse("2006-01-02 15:04:05", date)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate history", Err: err}
	}
	return records, nil
}
