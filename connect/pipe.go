package connect

import (
	"context"
	"sync"
	"time"
)

// an in-process `Channel` pair with the same lifecycle as an `Endpoint`:
// emits queue until the other side listens, each side dispatches on its own goroutine,
// and closing either side closes both.
// Used to wire components in one process and in tests.

const PipeBufferSize = 1024

type PipeChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	id         Id
	remoteAddr string

	receive chan *Message
	other   *PipeChannel

	emitTimeout time.Duration

	listenOnce sync.Once

	stateLock      sync.Mutex
	closed         bool
	closeCallbacks *CallbackList[CloseFunction]
}

// `aAddr` is the address of a as seen by b, and the reverse for `bAddr`
func NewChannelPair(ctx context.Context, aAddr string, bAddr string) (*PipeChannel, *PipeChannel) {
	cancelCtx, cancel := context.WithCancel(ctx)
	newEnd := func(remoteAddr string) *PipeChannel {
		return &PipeChannel{
			ctx:            cancelCtx,
			cancel:         cancel,
			id:             NewId(),
			remoteAddr:     remoteAddr,
			receive:        make(chan *Message, PipeBufferSize),
			emitTimeout:    DefaultEndpointSettings().EmitTimeout,
			closeCallbacks: NewCallbackList[CloseFunction](),
		}
	}
	a := newEnd(bAddr)
	b := newEnd(aAddr)
	a.other = b
	b.other = a
	go a.runClose()
	go b.runClose()
	return a, b
}

func (self *PipeChannel) Id() Id {
	return self.id
}

func (self *PipeChannel) RemoteAddr() string {
	return self.remoteAddr
}

func (self *PipeChannel) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *PipeChannel) Emit(tag string, payload string) error {
	message := &Message{
		Tag:     tag,
		Payload: payload,
	}
	if message.Tag == "" {
		return ErrEmptyTag
	}

	select {
	case <-self.ctx.Done():
		return ErrChannelClosed
	default:
	}

	select {
	case <-self.ctx.Done():
		return ErrChannelClosed
	case self.other.receive <- message:
		return nil
	case <-time.After(self.emitTimeout):
		return ErrEmitTimeout
	}
}

func (self *PipeChannel) OnClose(callback CloseFunction) {
	self.stateLock.Lock()
	closed := self.closed
	if !closed {
		self.closeCallbacks.Add(callback)
	}
	self.stateLock.Unlock()

	if closed {
		runCloseCallbacks(self, []CloseFunction{callback})
	}
}

func (self *PipeChannel) Listen(receive ReceiveFunction) {
	self.listenOnce.Do(func() {
		go func() {
			for {
				select {
				case <-self.ctx.Done():
					return
				case message := <-self.receive:
					HandleError(func() {
						receive(self, message)
					})
				}
			}
		}()
	})
}

func (self *PipeChannel) Close() {
	self.cancel()
}

func (self *PipeChannel) runClose() {
	<-self.ctx.Done()

	self.stateLock.Lock()
	self.closed = true
	callbacks := self.closeCallbacks.Get()
	self.stateLock.Unlock()

	runCloseCallbacks(self, callbacks)
}
