package directory

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/protocol"
)

// the registry of shared boards and the connected peers that hear about them
//
// a peer's entry is created on its first share and shrinks on unshare.
// Disconnecting a peer removes only its channel. Its boards stay listed until explicitly unshared,
// and peers that subscribe to them find out the owner is gone when the dial fails.
type Directory struct {
	boardsLock sync.Mutex
	boards     map[board.PeerAddress]map[board.Name]bool

	channelsLock sync.Mutex
	channels     map[connect.Id]connect.Channel
}

func NewDirectory() *Directory {
	return &Directory{
		boards:   map[board.PeerAddress]map[board.Name]bool{},
		channels: map[connect.Id]connect.Channel{},
	}
}

// registers the channel and starts listening
// the channel gets one `SHARING_BOARD` for every board shared so far.
// The channel is registered before the shared boards are read, so a share that races the connect
// reaches the channel at least once.
func (self *Directory) Connect(channel connect.Channel) {
	self.channelsLock.Lock()
	self.channels[channel.Id()] = channel
	self.channelsLock.Unlock()

	glog.V(connect.LogLevelEvent).Infof("[dir]connect %s %s\n", channel.Id(), channel.RemoteAddr())

	channel.OnClose(self.Disconnect)

	for _, name := range self.SharedBoards() {
		if err := channel.Emit(protocol.SharingBoard, name.String()); err != nil {
			glog.Infof("[dir]connect %s emit error = %s\n", channel.Id(), err)
			break
		}
	}

	channel.Listen(self.Receive)
}

// removes the channel from the registry
// boards the peer shared are not unshared
func (self *Directory) Disconnect(channel connect.Channel) {
	self.channelsLock.Lock()
	defer self.channelsLock.Unlock()

	if _, ok := self.channels[channel.Id()]; ok {
		delete(self.channels, channel.Id())
		glog.V(connect.LogLevelEvent).Infof("[dir]disconnect %s\n", channel.Id())
	}
}

func (self *Directory) Receive(channel connect.Channel, message *connect.Message) {
	switch message.Tag {
	case protocol.ShareBoard:
		name, err := board.ParseName(message.Payload)
		if err != nil {
			self.replyError(channel, message, err)
			return
		}
		self.Share(channel, name)
	case protocol.UnshareBoard:
		name, err := board.ParseName(message.Payload)
		if err != nil {
			self.replyError(channel, message, err)
			return
		}
		self.Unshare(channel, name)
	default:
		glog.Infof("[dir]%s unknown message %s\n", channel.Id(), message)
	}
}

func (self *Directory) replyError(channel connect.Channel, message *connect.Message, err error) {
	glog.Infof("[dir]%s malformed %s = %s\n", channel.Id(), message, err)
	errorText := fmt.Sprintf("wrong sharingBoard format: %s", message.Payload)
	if emitErr := channel.Emit(protocol.Error, errorText); emitErr != nil {
		glog.Infof("[dir]%s emit error = %s\n", channel.Id(), emitErr)
	}
}

// adds the board to the owner's entry and tells every other connected peer
// sharing an already shared board is a no-op for the registry but is still broadcast
func (self *Directory) Share(origin connect.Channel, name board.Name) {
	self.boardsLock.Lock()
	names, ok := self.boards[name.Owner]
	if !ok {
		names = map[board.Name]bool{}
		self.boards[name.Owner] = names
	}
	names[name] = true
	self.boardsLock.Unlock()

	glog.V(connect.LogLevelEvent).Infof("[dir]share %s\n", name)
	self.broadcast(origin, protocol.SharingBoard, name.String())
}

// removes the board from the owner's entry and tells every other connected peer
func (self *Directory) Unshare(origin connect.Channel, name board.Name) {
	self.boardsLock.Lock()
	names, ok := self.boards[name.Owner]
	if ok && names[name] {
		delete(names, name)
		if len(names) == 0 {
			delete(self.boards, name.Owner)
		}
		self.boardsLock.Unlock()
		glog.V(connect.LogLevelEvent).Infof("[dir]unshare %s\n", name)
	} else {
		self.boardsLock.Unlock()
		glog.Infof("[dir]unshare %s not shared\n", name)
	}

	self.broadcast(origin, protocol.UnsharingBoard, name.String())
}

// the shared boards, ordered by name
func (self *Directory) SharedBoards() []board.Name {
	self.boardsLock.Lock()
	defer self.boardsLock.Unlock()

	out := []board.Name{}
	for _, names := range self.boards {
		out = append(out, maps.Keys(names)...)
	}
	slices.SortFunc(out, func(a board.Name, b board.Name) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

func (self *Directory) Channels() []connect.Channel {
	self.channelsLock.Lock()
	defer self.channelsLock.Unlock()
	return maps.Values(self.channels)
}

// emits to a snapshot of the connected channels, skipping the origin
func (self *Directory) broadcast(origin connect.Channel, tag string, payload string) {
	for _, channel := range self.Channels() {
		if origin != nil && channel.Id() == origin.Id() {
			continue
		}
		if err := channel.Emit(tag, payload); err != nil {
			glog.Infof("[dir]broadcast %s %s error = %s\n", channel.Id(), tag, err)
		}
	}
}
