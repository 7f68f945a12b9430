package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TempManager owns the process-wide scratch directory for retrieved media.
// Names are randomized to avoid collisions; nothing locks the directory
// itself, so removal on every exit path is the only guard against leakage.
type TempManager struct {
	dir    string
	logger *logrus.Logger
}

// NewTempManager creates the scratch directory if it does not exist.
func NewTempManager(dir string, logger *logrus.Logger) (*TempManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", dir, err)
	}
	return &TempManager{dir: dir, logger: logger}, nil
}

// NewPath generates a fresh randomized file path inside the scratch dir.
func (m *TempManager) NewPath(extension string) string {
	name := fmt.Sprintf("temp_%d_%s.%s", time.Now().Unix(), uuid.NewString()[:8], extension)
	return filepath.Join(m.dir, name)
}

// Remove deletes a single temp file. Best effort: failures are logged and
// never escalate.
func (m *TempManager) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.WithError(err).WithField("path", path).Error("Failed to remove temp file")
	}
}

// Sweep deletes every file left in the scratch dir. Called on shutdown.
func (m *TempManager) Sweep() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.WithError(err).Error("Failed to read temp dir")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m.Remove(filepath.Join(m.dir, entry.Name()))
	}
	m.logger.WithField("dir", m.dir).Info("Temp files cleaned up")
}
