package models

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// DefaultRateLimitRPS запросов в секунду на один API-ключ
	DefaultRateLimitRPS = 10

	// DefaultRateLimitBurst всплеск запросов на один API-ключ
	DefaultRateLimitBurst = 5

	// MenuCacheTTL время жизни кэша меню в секундах
	MenuCacheTTL = 5 * 60
)
