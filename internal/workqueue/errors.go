package workqueue

import (
	"errors"
	"fmt"
)

// ErrExecutorClosed is returned by Submit after Stop.
var ErrExecutorClosed = errors.New("workqueue: executor closed")

// ErrQueueFull is the sentinel wrapped by QueueFullError.
var ErrQueueFull = errors.New("workqueue: shard queue full")

// QueueFullError reports a shard that stayed full past the enqueue timeout.
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("workqueue: shard %d full (%d/%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Unwrap() error { return ErrQueueFull }
