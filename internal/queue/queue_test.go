package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	evt := AttendanceMarked{AttendanceID: "a1", LectureID: "l1", StudentID: "s1", MarkedAt: time.Unix(1700000000, 0).UTC()}
	msg, err := NewMessage(TypeAttendanceMarked, evt)
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	select {
	case got := <-msgs:
		assert.Equal(t, TypeAttendanceMarked, got.Type)
		var body AttendanceMarked
		require.NoError(t, json.Unmarshal(got.Body, &body))
		assert.Equal(t, evt, body)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestPublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "x"}), context.Canceled)
}

func TestRedisConsumeStopsDuringRetryBackoff(t *testing.T) {
	// nothing listens on port 1, so every BRPOP fails and the consumer backs off
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := NewRedisQueue(client, "test:events").Consume(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(400 * time.Millisecond):
		t.Fatal("consumer kept sleeping after cancel")
	}
}
