package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"leetforge/pkg/models"
)

const HistoryFilename = "session.json"

// HistoryRecorder persists the session transcript with async write support so
// an interrupted run still leaves an inspectable record behind.
type HistoryRecorder struct {
	sessionDir string
	logger     *slog.Logger

	writeChan   chan *models.Session
	writeWg     sync.WaitGroup
	stopWriter  chan struct{}
	writerError error
	errorMu     sync.Mutex
	writeMu     sync.Mutex // Protects concurrent disk writes
}

// NewHistoryRecorder starts the background writer goroutine.
func NewHistoryRecorder(sessionDir string, logger *slog.Logger) *HistoryRecorder {
	r := &HistoryRecorder{
		sessionDir: sessionDir,
		logger:     logger,
		writeChan:  make(chan *models.Session, 10),
		stopWriter: make(chan struct{}),
	}
	r.startAsyncWriter()
	return r
}

func (r *HistoryRecorder) startAsyncWriter() {
	r.writeWg.Add(1)
	go func() {
		defer r.writeWg.Done()
		for {
			select {
			case session := <-r.writeChan:
				if err := r.writeToDisk(session); err != nil {
					r.errorMu.Lock()
					r.writerError = err
					r.errorMu.Unlock()
					r.logger.Error("Failed to write session history", "error", err)
				}
			case <-r.stopWriter:
				// Drain remaining writes before stopping
				for len(r.writeChan) > 0 {
					session := <-r.writeChan
					if err := r.writeToDisk(session); err != nil {
						r.logger.Error("Failed to write session history during shutdown", "error", err)
					}
				}
				return
			}
		}
	}()
}

// Record queues a snapshot for async write. A full buffer falls back to a
// synchronous write rather than dropping the snapshot.
func (r *HistoryRecorder) Record(session *models.Session) {
	snapshot := copySession(session)
	select {
	case r.writeChan <- snapshot:
	default:
		r.logger.Warn("History write buffer full, writing synchronously")
		if err := r.writeToDisk(snapshot); err != nil {
			r.logger.Error("Failed to write session history", "error", err)
		}
	}
}

// Flush writes the snapshot synchronously. Terminal transitions use this so
// the final state is durable before the process exits.
func (r *HistoryRecorder) Flush(session *models.Session) {
	if err := r.writeToDisk(copySession(session)); err != nil {
		r.logger.Error("Failed to flush session history", "error", err)
	}
}

// writeToDisk performs an atomic temp-file write of the history record.
func (r *HistoryRecorder) writeToDisk(session *models.Session) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}

	historyPath := filepath.Join(r.sessionDir, HistoryFilename)
	tempPath := historyPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp history: %w", err)
	}
	if err := os.Rename(tempPath, historyPath); err != nil {
		return fmt.Errorf("failed to rename history: %w", err)
	}

	r.logger.Debug("Session history saved", "path", historyPath, "state", session.State)
	return nil
}

// Close stops the async writer and waits for pending writes.
func (r *HistoryRecorder) Close() error {
	close(r.stopWriter)
	r.writeWg.Wait()

	r.errorMu.Lock()
	defer r.errorMu.Unlock()
	return r.writerError
}

// copySession snapshots the session so the async writer never races the
// solver loop.
func copySession(session *models.Session) *models.Session {
	snapshot := *session
	snapshot.Records = append([]models.AttemptRecord{}, session.Records...)
	return &snapshot
}

// LoadHistory reads a recorded session transcript back from a session
// directory.
func LoadHistory(sessionDir string) (*models.Session, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, HistoryFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read session history: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	return &session, nil
}
