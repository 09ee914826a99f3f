package models

import "time"

const (
	// DefaultSlotStep шаг сетки слотов по умолчанию
	DefaultSlotStep = 30 * time.Minute

	// DefaultProcedureMinutes длительность процедуры, если в каталоге не указана
	DefaultProcedureMinutes = 60

	// ClockLayout формат времени начала/конца смены
	ClockLayout = "15:04"

	// DateLayout формат даты в запросах и каталоге
	DateLayout = "2006-01-02"

	// DefaultMaxBookingDays горизонт записи вперед
	DefaultMaxBookingDays = 60

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60 // 1 час в секундах

	// SyncTaskRetention сколько хранить выполненные задачи журнала
	SyncTaskRetention = 7 * 24 * time.Hour

	// AdmissionLockTTL время жизни блокировки записи к мастеру
	AdmissionLockTTL = 10 * time.Second
)

const ParseModeHTML = "HTML"
