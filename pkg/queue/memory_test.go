package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	q := NewInMemoryQueue(2)

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	assert.Equal(t, ErrQueueFull, q.Enqueue("c"))
	assert.Equal(t, 2, q.Size())

	item, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", item)

	messages := q.ReadAllMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "b", messages[0])

	_, err = q.Dequeue()
	assert.Error(t, err)

	require.NoError(t, q.Enqueue("d"))
	q.ClearQueue()
	assert.Equal(t, 0, q.Size())
}
