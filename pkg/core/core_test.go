package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListener(t *testing.T) {
	var l Listener
	var msgs []any

	l.Listen(func(msg any) {
		msgs = append(msgs, msg)
	})
	l.Fire("DESCRIBE")
	l.Fire(1)

	require.Equal(t, []any{"DESCRIBE", 1}, msgs)
}

func TestWorker(t *testing.T) {
	var n atomic.Int32
	done := make(chan struct{})

	w := NewWorker(time.Millisecond, func() time.Duration {
		if n.Add(1) == 3 {
			close(done)
			return 0
		}
		return time.Millisecond
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker timeout")
	}

	w.Stop()
	w.Stop()
	require.Equal(t, int32(3), n.Load())

	var nilWorker *Worker
	nilWorker.Stop()
	nilWorker.Do()
}
