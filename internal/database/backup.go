package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"beautycity/internal/config"

	"github.com/rs/zerolog"
)

const (
	backupPrefix    = "beautycity_"
	backupExt       = ".db"
	partialSuffix   = ".partial"
	defaultInterval = 24 * time.Hour
)

// BackupService snapshots the appointment database on a schedule.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BackupService{db: db, config: cfg, logger: logger}
}

func (s *BackupService) interval() time.Duration {
	if s.config.Schedule == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Str("schedule", s.config.Schedule).Msg("bad backup schedule, using 24h")
		return defaultInterval
	}
	return d
}

// Start takes a backup right away and then every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backups disabled")
		return
	}

	interval := s.interval()
	s.logger.Info().Dur("interval", interval).Str("dir", s.config.StoragePath).Msg("backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("backup failed")
		}
		s.CleanupOldBackups()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PerformBackup writes a snapshot with VACUUM INTO, checks it and only then gives it
// the final name. A failed snapshot never shows up as a backup file.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := backupPrefix + time.Now().Format("20060102_150405.000") + backupExt
	final := filepath.Join(s.config.StoragePath, name)
	partial := final + partialSuffix

	quoted := strings.ReplaceAll(partial, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("vacuum into: %w", err)
	}

	if err := verifySnapshot(ctx, partial); err != nil {
		_ = os.Remove(partial)
		return "", err
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("finalize backup: %w", err)
	}

	s.logger.Info().Str("path", final).Msg("backup completed")
	return final, nil
}

// verifySnapshot runs quick_check and makes sure the appointments table came along.
func verifySnapshot(ctx context.Context, path string) error {
	snap, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer snap.Close()

	var result string
	if err := snap.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("snapshot is corrupt: %s", result)
	}

	var n int
	if err := snap.QueryRowContext(ctx, "SELECT COUNT(*) FROM appointments").Scan(&n); err != nil {
		return fmt.Errorf("snapshot has no appointments table: %w", err)
	}
	return nil
}

// CleanupOldBackups removes backups older than the retention period and leftover
// partial files. The newest backup is kept whatever its age.
func (s *BackupService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("read backup directory")
		return
	}

	type backupFile struct {
		name    string
		modTime time.Time
	}
	var backups []backupFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if strings.HasSuffix(e.Name(), partialSuffix) {
			s.remove(e.Name())
			continue
		}
		backups = append(backups, backupFile{name: e.Name(), modTime: info.ModTime()})
	}
	if len(backups) <= 1 {
		return
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.After(backups[j].modTime) })
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	for _, b := range backups[1:] {
		if b.modTime.Before(cutoff) {
			s.remove(b.name)
		}
	}
}

func (s *BackupService) remove(name string) {
	if err := os.Remove(filepath.Join(s.config.StoragePath, name)); err != nil {
		s.logger.Warn().Err(err).Str("file", name).Msg("delete old backup")
		return
	}
	s.logger.Info().Str("file", name).Msg("old backup deleted")
}
