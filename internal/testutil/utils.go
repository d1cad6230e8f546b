package testutil

import (
	"log"
	"os"
	"testing"
	"time"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags|log.Lmicroseconds)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// Receive waits for a value on ch, failing the test if none arrives in time.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()

	var zero T
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting for value", timeout)
		return zero
	}
}

// NoReceive fails the test if a value arrives on ch within wait.
func NoReceive[T any](t *testing.T, ch <-chan T, wait time.Duration) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("unexpected value received: %v", v)
	case <-time.After(wait):
	}
}
