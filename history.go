// CoverLink - Play History Storage
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// Play is one track in the play history.
type Play struct {
	ID        int64      `json:"id"`
	Artist    string     `json:"artist,omitempty"`
	Title     string     `json:"title"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Duration returns how long the track played, zero while it is still playing.
func (p Play) Duration() time.Duration {
	if p.EndedAt == nil {
		return 0
	}
	return p.EndedAt.Sub(p.StartedAt)
}

// HistoryStats tracks storage system performance
type HistoryStats struct {
	PlaysStored   uint64    `json:"plays_stored"`
	PlaysDeleted  uint64    `json:"plays_deleted"`
	DatabaseSize  int64     `json:"database_size_bytes"`
	LastCleanup   time.Time `json:"last_cleanup"`
	StorageErrors uint64    `json:"storage_errors"`
	OldestPlay    time.Time `json:"oldest_play"`
	NewestPlay    time.Time `json:"newest_play"`
}

// History records played tracks in SQLite. It implements PlaybackListener.
type History struct {
	config HistoryConfig
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time

	mutex    sync.RWMutex
	openPlay int64 // row id of the track still playing, 0 when none
	stats    HistoryStats

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewHistory opens the history database. A disabled history accepts
// playback events and ignores them.
func NewHistory(config HistoryConfig, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &History{
		config:   config,
		logger:   logger.With(zap.String("component", "history")),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if !config.Enabled {
		return h, nil
	}

	if err := h.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if config.CleanupInterval > 0 {
		go h.cleanupRoutine()
	}

	h.logger.Info("Play history initialized",
		zap.String("database", config.DatabasePath),
		zap.Int("retention_days", config.RetentionDays))
	return h, nil
}

// initDatabase opens the SQLite database and creates the schema
func (h *History) initDatabase() error {
	var err error
	h.db, err = sql.Open("sqlite3", h.config.DatabasePath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	h.db.SetMaxOpenConns(4)
	h.db.SetMaxIdleConns(2)
	h.db.SetConnMaxLifetime(5 * time.Minute)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			artist TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_started_at ON plays(started_at DESC)`,
	}
	for _, query := range queries {
		if _, err := h.db.Exec(query); err != nil {
			h.db.Close()
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	// a crash leaves the last play open forever
	if _, err := h.db.Exec(`UPDATE plays SET ended_at = started_at WHERE ended_at IS NULL`); err != nil {
		h.db.Close()
		return fmt.Errorf("failed to close dangling plays: %w", err)
	}
	return nil
}

// TrackStarted closes the open play, if any, and records a new one.
func (h *History) TrackStarted(artist, title string, at time.Time) {
	if !h.config.Enabled {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.endOpenPlayLocked(at); err != nil {
		h.recordErrorLocked("end play", err)
	}

	result, err := h.db.Exec(`INSERT INTO plays (artist, title, started_at) VALUES (?, ?, ?)`,
		artist, title, at.UnixMilli())
	if err != nil {
		h.recordErrorLocked("insert play", err)
		return
	}
	id, err := result.LastInsertId()
	if err != nil {
		h.recordErrorLocked("insert play", err)
		return
	}

	h.openPlay = id
	h.stats.PlaysStored++
	h.logger.Debug("Play started",
		zap.Int64("id", id),
		zap.String("artist", artist),
		zap.String("title", title))
}

// TrackArtist sets the artist of the open play.
func (h *History) TrackArtist(artist string) {
	if !h.config.Enabled {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.openPlay == 0 {
		return
	}
	if _, err := h.db.Exec(`UPDATE plays SET artist = ? WHERE id = ?`, artist, h.openPlay); err != nil {
		h.recordErrorLocked("update artist", err)
	}
}

// TrackEnded closes the open play.
func (h *History) TrackEnded(at time.Time) {
	if !h.config.Enabled {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.endOpenPlayLocked(at); err != nil {
		h.recordErrorLocked("end play", err)
	}
}

func (h *History) endOpenPlayLocked(at time.Time) error {
	if h.openPlay == 0 {
		return nil
	}
	id := h.openPlay
	h.openPlay = 0
	_, err := h.db.Exec(`UPDATE plays SET ended_at = ? WHERE id = ?`, at.UnixMilli(), id)
	return err
}

// Recent returns the latest plays, newest first.
func (h *History) Recent(limit int) ([]Play, error) {
	if !h.config.Enabled {
		return nil, ErrStorageDisabled
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Query(`
		SELECT id, artist, title, started_at, ended_at
		FROM plays ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var (
			p       Play
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Artist, &p.Title, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		p.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			p.EndedAt = &t
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// cleanupRoutine performs periodic cleanup of old plays
func (h *History) cleanupRoutine() {
	ticker := time.NewTicker(h.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := h.Cleanup(); err != nil {
				h.logger.Warn("Cleanup failed", zap.Error(err))
			}
		case <-h.stopChan:
			return
		}
	}
}

// Cleanup removes plays older than the retention period.
func (h *History) Cleanup() (int64, error) {
	if !h.config.Enabled {
		return 0, ErrStorageDisabled
	}
	if h.config.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := h.now().AddDate(0, 0, -h.config.RetentionDays)
	result, err := h.db.Exec(`DELETE FROM plays WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		h.mutex.Lock()
		h.recordErrorLocked("cleanup", err)
		h.mutex.Unlock()
		return 0, err
	}
	deleted, _ := result.RowsAffected()

	h.mutex.Lock()
	h.stats.PlaysDeleted += uint64(deleted)
	h.stats.LastCleanup = h.now()
	h.mutex.Unlock()

	if deleted > 0 {
		h.logger.Info("Removed old plays", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// GetStats returns storage statistics.
func (h *History) GetStats() HistoryStats {
	if !h.config.Enabled {
		return HistoryStats{}
	}

	h.mutex.RLock()
	stats := h.stats
	h.mutex.RUnlock()

	if info, err := os.Stat(h.config.DatabasePath); err == nil {
		stats.DatabaseSize = info.Size()
	}

	var oldest, newest sql.NullInt64
	if err := h.db.QueryRow(`SELECT MIN(started_at), MAX(started_at) FROM plays`).Scan(&oldest, &newest); err == nil {
		if oldest.Valid {
			stats.OldestPlay = time.UnixMilli(oldest.Int64)
		}
		if newest.Valid {
			stats.NewestPlay = time.UnixMilli(newest.Int64)
		}
	}
	return stats
}

func (h *History) recordErrorLocked(operation string, err error) {
	h.stats.StorageErrors++
	h.logger.Error("History write failed", zap.String("operation", operation), zap.Error(err))
}

// IsEnabled returns whether storage is enabled
func (h *History) IsEnabled() bool {
	return h.config.Enabled
}

// Close ends the open play and closes the database.
func (h *History) Close() error {
	if !h.config.Enabled {
		return nil
	}

	var err error
	h.stopOnce.Do(func() {
		close(h.stopChan)

		h.mutex.Lock()
		if endErr := h.endOpenPlayLocked(h.now()); endErr != nil {
			h.recordErrorLocked("end play", endErr)
		}
		h.mutex.Unlock()

		err = h.db.Close()
		h.logger.Info("Play history closed")
	})
	return err
}
