package connect

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

const TransportBufferSize = 32

type EndpointSettings struct {
	SendBufferSize int
	// an empty message is written when no message was written for this long
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	// must be larger than the remote ping timeout
	ReadTimeout time.Duration
	// max time `Emit` waits for space in the send buffer
	EmitTimeout time.Duration
}

func DefaultEndpointSettings() *EndpointSettings {
	return &EndpointSettings{
		SendBufferSize: TransportBufferSize,
		PingTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    30 * time.Second,
		EmitTimeout:    5 * time.Second,
	}
}

// a `Channel` over one websocket
// there is one writer goroutine, started on create, and one reader goroutine, started on `Listen`
type Endpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	id         Id
	remoteAddr string
	ws         *websocket.Conn

	settings *EndpointSettings

	send chan []byte

	listenOnce sync.Once

	stateLock      sync.Mutex
	closed         bool
	closeCallbacks *CallbackList[CloseFunction]
}

func NewEndpoint(
	ctx context.Context,
	ws *websocket.Conn,
	remoteAddr string,
	settings *EndpointSettings,
) *Endpoint {
	cancelCtx, cancel := context.WithCancel(ctx)
	endpoint := &Endpoint{
		ctx:            cancelCtx,
		cancel:         cancel,
		id:             NewId(),
		remoteAddr:     remoteAddr,
		ws:             ws,
		settings:       settings,
		send:           make(chan []byte, settings.SendBufferSize),
		closeCallbacks: NewCallbackList[CloseFunction](),
	}
	go endpoint.runWrite()
	go endpoint.runClose()
	return endpoint
}

func (self *Endpoint) Id() Id {
	return self.id
}

func (self *Endpoint) RemoteAddr() string {
	return self.remoteAddr
}

func (self *Endpoint) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *Endpoint) Emit(tag string, payload string) error {
	message := &Message{
		Tag:     tag,
		Payload: payload,
	}
	b, err := EncodeFrame(message)
	if err != nil {
		return err
	}

	select {
	case <-self.ctx.Done():
		return ErrChannelClosed
	default:
	}

	select {
	case <-self.ctx.Done():
		return ErrChannelClosed
	case self.send <- b:
		glog.V(LogLevelTrace).Infof("[e]%s->%s %s\n", self.id, self.remoteAddr, message)
		return nil
	case <-time.After(self.settings.EmitTimeout):
		glog.Infof("[e]drop %s->%s %s\n", self.id, self.remoteAddr, message)
		return ErrEmitTimeout
	}
}

func (self *Endpoint) OnClose(callback CloseFunction) {
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

func (self *Endpoint) Listen(receive ReceiveFunction) {
	self.listenOnce.Do(func() {
		go self.runRead(receive)
	})
}

func (self *Endpoint) Close() {
	self.cancel()
}

func (self *Endpoint) runClose() {
	<-self.ctx.Done()
	self.ws.Close()

	self.stateLock.Lock()
	self.closed = true
	callbacks := self.closeCallbacks.Get()
	self.stateLock.Unlock()

	glog.V(LogLevelEvent).Infof("[e]close %s %s\n", self.id, self.remoteAddr)
	runCloseCallbacks(self, callbacks)
}

func (self *Endpoint) runWrite() {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			return
		case b := <-self.send:
			self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
			if err := self.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
				// note that for websocket a dealine timeout cannot be recovered
				glog.Infof("[ts]%s-> error = %s\n", self.remoteAddr, err)
				return
			}
		case <-time.After(self.settings.PingTimeout):
			self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
			if err := self.ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
				// note that for websocket a dealine timeout cannot be recovered
				return
			}
		}
	}
}

func (self *Endpoint) runRead(receive ReceiveFunction) {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		self.ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, b, err := self.ws.ReadMessage()
		if err != nil {
			select {
			case <-self.ctx.Done():
				// closed locally
			default:
				glog.Infof("[tr]%s<- error = %s\n", self.remoteAddr, err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if 0 == len(b) {
				// ping
				glog.V(LogLevelTrace).Infof("[tr]ping %s<-\n", self.remoteAddr)
				continue
			}
			message, err := DecodeFrame(b)
			if err != nil {
				glog.Infof("[tr]%s<- bad frame = %s\n", self.remoteAddr, err)
				continue
			}
			glog.V(LogLevelTrace).Infof("[tr]%s<-%s %s\n", self.id, self.remoteAddr, message)
			HandleError(func() {
				receive(self, message)
			})
		default:
			glog.V(LogLevelTrace).Infof("[tr]other=%d %s<-\n", messageType, self.remoteAddr)
		}
	}
}
