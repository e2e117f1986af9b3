package connect

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestChannelPair(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := NewChannelPair(ctx, "a:1", "b:2")
	assert.Equal(t, a.RemoteAddr(), "b:2")
	assert.Equal(t, b.RemoteAddr(), "a:1")
	assert.NotEqual(t, a.Id(), b.Id())

	// emits before listen are queued
	for _, payload := range []string{"1", "2", "3"} {
		assert.Equal(t, a.Emit("T", payload), nil)
	}

	received := make(chan *Message, 8)
	b.Listen(func(channel Channel, message *Message) {
		assert.Equal(t, channel.Id(), b.Id())
		received <- message
	})
	for _, payload := range []string{"1", "2", "3"} {
		select {
		case message := <-received:
			assert.Equal(t, message, &Message{Tag: "T", Payload: payload})
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}

	assert.Equal(t, a.Emit("", "x"), ErrEmptyTag)
}

func TestChannelPairClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := NewChannelPair(ctx, "a:1", "b:2")

	var aCloses atomic.Int32
	var bCloses atomic.Int32
	a.OnClose(func(channel Channel) {
		aCloses.Add(1)
	})
	b.OnClose(func(channel Channel) {
		bCloses.Add(1)
	})

	a.Close()
	a.Close()
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	waitForCount(t, &aCloses, 1)
	waitForCount(t, &bCloses, 1)

	assert.Equal(t, b.Emit("T", "x"), ErrChannelClosed)

	// added after close runs right away
	b.OnClose(func(channel Channel) {
		bCloses.Add(1)
	})
	assert.Equal(t, bCloses.Load(), int32(2))
}

func waitForCount(t *testing.T, count *atomic.Int32, expected int32) {
	end := time.Now().Add(time.Second)
	for count.Load() != expected {
		if end.Before(time.Now()) {
			t.Fatalf("count %d != %d", count.Load(), expected)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
