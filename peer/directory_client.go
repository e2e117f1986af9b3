package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/protocol"
)

var errAlreadyConnected = errors.New("directory client already connected")

// mirrors boards as the directory announces them
type BoardSubscriber interface {
	Subscribe(name board.Name) error
	Unsubscribe(name board.Name)
}

// the channel from a peer to the directory
// connects once per process lifetime. Losing the channel does not unshare boards;
// share and unshare fail with `ErrNotConnected` afterwards.
type DirectoryClient struct {
	ctx    context.Context
	cancel context.CancelFunc

	address    string
	dial       connect.DialFunction
	subscriber BoardSubscriber

	connectOnce sync.Once
	connected   chan struct{}

	stateLock sync.Mutex
	channel   connect.Channel
}

// `dial` is typically `connect.Dialer.DialWithRetry`
func NewDirectoryClient(
	ctx context.Context,
	address string,
	dial connect.DialFunction,
	subscriber BoardSubscriber,
) *DirectoryClient {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &DirectoryClient{
		ctx:        cancelCtx,
		cancel:     cancel,
		address:    address,
		dial:       dial,
		subscriber: subscriber,
		connected:  make(chan struct{}),
	}
}

// waits for `localReady`, then dials the directory
// the directory only announces boards other peers can reach, so the local server must be bound first
func (self *DirectoryClient) Connect(localReady <-chan struct{}) error {
	err := errAlreadyConnected
	self.connectOnce.Do(func() {
		err = self.connect(localReady)
	})
	return err
}

func (self *DirectoryClient) connect(localReady <-chan struct{}) error {
	select {
	case <-localReady:
	case <-self.ctx.Done():
		return self.ctx.Err()
	}

	channel, err := self.dial(self.ctx, self.address)
	if err != nil {
		glog.Infof("[dc]connect %s error = %s\n", self.address, err)
		return err
	}
	glog.Infof("[dc]connected %s %s\n", self.address, channel.Id())

	self.stateLock.Lock()
	self.channel = channel
	self.stateLock.Unlock()
	close(self.connected)

	channel.OnClose(self.closed)
	channel.Listen(self.receive)
	return nil
}

// closed once the first connect succeeds
func (self *DirectoryClient) Connected() <-chan struct{} {
	return self.connected
}

func (self *DirectoryClient) closed(channel connect.Channel) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.channel == channel {
		self.channel = nil
	}
	glog.Infof("[dc]disconnected %s\n", self.address)
}

func (self *DirectoryClient) getChannel() connect.Channel {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.channel
}

func (self *DirectoryClient) Share(name board.Name) error {
	return self.emit(protocol.ShareBoard, name.String())
}

func (self *DirectoryClient) Unshare(name board.Name) error {
	return self.emit(protocol.UnshareBoard, name.String())
}

func (self *DirectoryClient) emit(tag string, payload string) error {
	channel := self.getChannel()
	if channel == nil {
		return ErrNotConnected
	}
	glog.V(connect.LogLevelEvent).Infof("[dc]%s %s\n", tag, payload)
	return channel.Emit(tag, payload)
}

func (self *DirectoryClient) receive(channel connect.Channel, message *connect.Message) {
	glog.V(connect.LogLevelTrace).Infof("[dc]-> %s\n", message)

	switch message.Tag {
	case protocol.SharingBoard:
		name, err := board.ParseName(message.Payload)
		if err != nil {
			glog.Infof("[dc]malformed %s = %s\n", message, err)
			return
		}
		if err := self.subscriber.Subscribe(name); err != nil {
			glog.Infof("[dc]subscribe %s error = %s\n", name, err)
		}
	case protocol.UnsharingBoard:
		name, err := board.ParseName(message.Payload)
		if err != nil {
			glog.Infof("[dc]malformed %s = %s\n", message, err)
			return
		}
		self.subscriber.Unsubscribe(name)
	case protocol.Error:
		glog.Infof("[dc]directory error = %s\n", message.Payload)
	default:
		glog.Infof("[dc]unknown message %s\n", message)
	}
}

func (self *DirectoryClient) Close() {
	self.cancel()
	if channel := self.getChannel(); channel != nil {
		channel.Close()
	}
}
