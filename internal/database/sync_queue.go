package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"beautycity/internal/models"
)

const syncTaskColumns = `id, task_type, appointment_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

// CreateSyncTask queues a journal write. An upsert carries the whole row, so it
// supersedes every waiting task of the same appointment; a status update supersedes
// only earlier status updates.
func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sync task tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if task.Status == models.SyncStatusPending {
		if err := supersedeWaiting(ctx, tx, task.AppointmentID, task.TaskType); err != nil {
			return err
		}
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
        INSERT INTO sync_queue (task_type, appointment_id, payload, status, retry_count, last_error, created_at, next_retry_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskType, task.AppointmentID, task.Payload, task.Status,
		task.RetryCount, task.LastError, now, task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get sync task id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync task: %w", err)
	}

	task.ID = id
	task.CreatedAt = now
	return nil
}

func supersedeWaiting(ctx context.Context, tx *sql.Tx, appointmentID int64, taskType string) error {
	query := `UPDATE sync_queue SET status = ?, processed_at = ?
              WHERE appointment_id = ? AND status IN ('pending', 'retry')`
	args := []interface{}{models.SyncStatusSuperseded, time.Now(), appointmentID}
	if taskType != models.SyncTaskUpsert {
		query += ` AND task_type = ?`
		args = append(args, taskType)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to supersede sync tasks: %w", err)
	}
	return nil
}

// GetPendingSyncTasks returns tasks that are due now, oldest first.
func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + ` FROM sync_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	return db.querySyncTasks(ctx, query, time.Now(), limit)
}

func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + ` FROM sync_queue WHERE status = 'failed' ORDER BY created_at DESC, id DESC`
	return db.querySyncTasks(ctx, query)
}

// RequeueFailedSyncTasks gives dead tasks a fresh retry budget.
func (db *DB) RequeueFailedSyncTasks(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `
        UPDATE sync_queue SET status = 'pending', retry_count = 0, next_retry_at = NULL, processed_at = NULL
        WHERE status = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue sync tasks: %w", err)
	}
	return res.RowsAffected()
}

// PurgeSyncTasks drops finished tasks processed before the cutoff. Failed tasks stay for inspection.
func (db *DB) PurgeSyncTasks(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
        DELETE FROM sync_queue WHERE status IN ('completed', 'superseded') AND processed_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sync tasks: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) querySyncTasks(ctx context.Context, query string, args ...interface{}) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(
			&t.ID, &t.TaskType, &t.AppointmentID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateSyncTaskStatus records the outcome of one attempt. "retry" bumps retry_count;
// terminal statuses stamp processed_at.
func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}

	query := `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?`
	args := []interface{}{status, lastErr, nextRetryAt}
	switch status {
	case models.SyncStatusRetry:
		query += `, retry_count = retry_count + 1`
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		query += `, processed_at = ?`
		args = append(args, time.Now())
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}
