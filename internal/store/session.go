// Package store handles everything that outlives the process: session
// directories, log routing, accepted solutions and session transcripts.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SessionManager manages the per-run session directory and its well-known
// file paths.
type SessionManager struct {
	sessionDir string
	logger     *slog.Logger
}

// NewSessionManager creates a timestamped session directory under outputDir.
func NewSessionManager(outputDir string, logger *slog.Logger) (*SessionManager, error) {
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	sessionDir := filepath.Join(outputDir, "session_"+timestamp)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	logger.Info("Created session directory", "path", sessionDir)

	return &SessionManager{sessionDir: sessionDir, logger: logger}, nil
}

// GetSessionDir returns the session directory path.
func (sm *SessionManager) GetSessionDir() string {
	return sm.sessionDir
}

// GetLogPath returns the full path to the session log file.
func (sm *SessionManager) GetLogPath() string {
	return filepath.Join(sm.sessionDir, "session.log")
}

// GetHistoryPath returns the full path to the session history record.
func (sm *SessionManager) GetHistoryPath() string {
	return filepath.Join(sm.sessionDir, HistoryFilename)
}

// BackupConfig copies the config file into the session directory so a run is
// reproducible even after the config changes.
func (sm *SessionManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := filepath.Join(sm.sessionDir, "config.toml.bak")
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	sm.logger.Info("Backed up config file", "path", backupPath)
	return nil
}

// ListSessions returns the session directory names under outputDir, newest
// last.
func ListSessions(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() && len(entry.Name()) > len("session_") && entry.Name()[:len("session_")] == "session_" {
			sessions = append(sessions, entry.Name())
		}
	}
	return sessions, nil
}
