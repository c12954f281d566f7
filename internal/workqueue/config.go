package workqueue

import (
	"time"

	"github.com/rs/zerolog"
)

// Config tunes a ShardExecutor. Zero values fall back to sensible defaults
// applied by NewShardExecutor.
type Config struct {
	// Shards is the number of worker goroutines; jobs with the same key
	// always land on the same shard.
	Shards int

	// QueueSize is the per-shard buffer capacity.
	QueueSize int

	// EnqueueTimeout bounds how long Submit waits for space in a full shard.
	EnqueueTimeout time.Duration

	// MaxAttempts caps retries per job, including the first run.
	MaxAttempts int

	// BaseBackoff is the first retry delay; subsequent delays grow
	// exponentially up to MaxInterval.
	BaseBackoff time.Duration
	MaxInterval time.Duration

	// ErrorHandler receives terminal job errors. Optional.
	ErrorHandler func(error)

	Logger zerolog.Logger
}
