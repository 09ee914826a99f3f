package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/metrics"
	"beautycity/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskStore persists journal tasks so they survive restarts and redis outages.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	PurgeSyncTasks(ctx context.Context, before time.Time) (int64, error)
}

// taskPayload is persisted in SyncTask.Payload as JSON.
type taskPayload struct {
	AppointmentID int64               `json:"appointment_id"`
	Appointment   *models.Appointment `json:"appointment,omitempty"`
	Status        models.Status       `json:"status,omitempty"`
}

// SheetsWorker consumes sync_queue tasks and mirrors appointments into the
// journal spreadsheet.
type SheetsWorker struct {
	store         TaskStore
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	purgeEvery    time.Duration
	lastPurge     time.Time
	logger        *zerolog.Logger
}

func NewSheetsWorker(store TaskStore, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	retry = retry.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		store:         store,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "journal:queue",
		deadLetterKey: "journal:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		purgeEvery:    time.Hour,
		logger:        logger,
	}
}

// EnqueueTask persists the task and schedules it via redis, falling back to
// the in-memory queue. Tasks lost from both are picked up by polling.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, appointmentID int64, appt *models.Appointment, status models.Status) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if appointmentID == 0 && appt != nil {
		appointmentID = appt.ID
	}
	if appointmentID == 0 {
		return errors.New("appointment id is required")
	}

	payloadBytes, err := json.Marshal(taskPayload{
		AppointmentID: appointmentID,
		Appointment:   appt,
		Status:        status,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:      taskType,
		AppointmentID: appointmentID,
		Payload:       string(payloadBytes),
		Status:        models.SyncStatusPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, using memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left to polling")
	}
	return nil
}

// Start runs the consume loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets worker started")
	defer w.logger.Info().Msg("sheets worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending tasks")
		}
		if err != nil || len(tasks) == 0 {
			w.purgeIdle(ctx)
			if !w.sleep(ctx) {
				return
			}
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

// purgeIdle drops old finished tasks, at most once per purgeEvery.
func (w *SheetsWorker) purgeIdle(ctx context.Context) {
	now := time.Now()
	if now.Sub(w.lastPurge) < w.purgeEvery {
		return
	}
	w.lastPurge = now

	n, err := w.store.PurgeSyncTasks(ctx, now.Add(-models.SyncTaskRetention))
	if err != nil {
		w.logger.Warn().Err(err).Msg("purge journal tasks")
		return
	}
	if n > 0 {
		w.logger.Info().Int64("removed", n).Msg("old journal tasks purged")
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) bool {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncSyncTask(task.TaskType, models.SyncStatusCompleted)
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *SheetsWorker) handleTask(ctx context.Context, taskType string, payload taskPayload) error {
	switch taskType {
	case models.SyncTaskUpsert:
		if payload.Appointment == nil {
			return errors.New("appointment payload missing")
		}
		return w.sheets.UpsertAppointment(ctx, payload.Appointment)
	case models.SyncTaskUpdateStatus:
		if payload.AppointmentID == 0 || payload.Status == "" {
			return errors.New("appointment id or status missing")
		}
		return w.sheets.UpdateAppointmentStatus(ctx, payload.AppointmentID, payload.Status)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.DelayFor(attempt, cause))
	metrics.IncSyncTask(task.TaskType, models.SyncStatusRetry)
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("journal task will be retried")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	metrics.IncSyncTask(task.TaskType, models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("appointment_id", task.AppointmentID).Msg("journal task failed")
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push")
	}
}
