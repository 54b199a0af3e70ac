package queue

import "errors"

// ErrQueueFull is returned when enqueueing to a queue at capacity.
var ErrQueueFull = errors.New("queue is full")

// Queue represents a basic queue.
type Queue interface {
	Enqueue(item interface{}) error
	Dequeue() (interface{}, error)
	Size() int
	ReadAllMessages() []interface{}
	ClearQueue()
}
