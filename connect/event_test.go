package connect

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestEvent(t *testing.T) {
	event := NewEventWithContext(context.Background())
	assert.Equal(t, event.IsSet(), false)
	event.Set()
	assert.Equal(t, event.IsSet(), true)

	event = NewEventWithContext(context.Background())
	event.SetOnSignals(syscall.SIGUSR1)
	syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	select {
	case <-event.Ctx().Done():
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}
