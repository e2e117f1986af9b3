package peer

import (
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/protocol"
)

// serves an inbound channel from a peer that mirrors boards owned here
func (self *SessionManager) AcceptSession(channel connect.Channel) {
	glog.V(connect.LogLevelEvent).Infof("[sm]accept %s %s\n", channel.Id(), channel.RemoteAddr())
	channel.OnClose(self.subscriberClosed)
	channel.Listen(self.receiveFromSubscriber)
}

func (self *SessionManager) subscriberClosed(channel connect.Channel) {
	self.subscribersLock.Lock()
	defer self.subscribersLock.Unlock()
	for name, boardSubscribers := range self.subscribers {
		if _, ok := boardSubscribers[channel.Id()]; ok {
			delete(boardSubscribers, channel.Id())
			glog.V(connect.LogLevelEvent).Infof("[sm]%s closed, unlisten %s\n", channel.Id(), name)
		}
	}
	glog.V(connect.LogLevelEvent).Infof("[sm]%s closed\n", channel.Id())
}

func (self *SessionManager) receiveFromSubscriber(channel connect.Channel, message *connect.Message) {
	glog.V(connect.LogLevelTrace).Infof("[sm]%s -> %s\n", channel.Id(), message)

	switch message.Tag {
	case protocol.ListenBoard:
		name, whiteboard, ok := self.ownedBoardForMessage(channel, message)
		if !ok {
			return
		}
		self.addSubscriber(name, channel)
		glog.V(connect.LogLevelEvent).Infof("[sm]%s listen %s\n", channel.Id(), whiteboard.Name())
	case protocol.UnlistenBoard:
		name, err := board.ParseName(message.Payload)
		if err != nil {
			self.replyBoardError(channel, message, err)
			return
		}
		self.removeSubscriber(name, channel)
		glog.V(connect.LogLevelEvent).Infof("[sm]%s unlisten %s\n", channel.Id(), name)
	case protocol.GetBoardData:
		_, whiteboard, ok := self.ownedBoardForMessage(channel, message)
		if !ok {
			return
		}
		self.emit(channel, protocol.BoardData, whiteboard.String())
	case protocol.BoardPathUpdate, protocol.BoardUndoUpdate, protocol.BoardClearUpdate:
		kind, _ := protocol.UpdateKindForTag(message.Tag)
		update, err := protocol.ParseUpdate(kind, message.Payload)
		if err != nil {
			self.replyBoardError(channel, message, err)
			return
		}
		self.receiveUpdate(channel, update)
	case protocol.BoardError:
		glog.Infof("[sm]%s board error = %s\n", channel.Id(), message.Payload)
	default:
		glog.Infof("[sm]%s unknown message %s\n", channel.Id(), message)
	}
}

// the originator gets an accepted or rejected ack with the proposal payload
// on accept every other subscriber gets the new state
func (self *SessionManager) receiveUpdate(channel connect.Channel, update *protocol.Update) {
	whiteboard := self.getOwnedBoard(update.Name)
	if whiteboard == nil {
		self.emit(channel, protocol.BoardError, fmt.Sprintf("%s: %s", ErrBoardNotFound, update.Name))
		return
	}

	snapshot, ok := applyUpdate(whiteboard, update)
	if !ok {
		glog.V(connect.LogLevelEvent).Infof("[sm]%s reject %s %s\n", channel.Id(), update.Kind, update)
		self.emit(channel, update.Kind.RejectedTag(), update.String())
		return
	}

	glog.V(connect.LogLevelEvent).Infof("[sm]%s accept %s %s -> %d\n", channel.Id(), update.Kind, update, snapshot.Version)
	self.emit(channel, update.Kind.AcceptedTag(), update.String())
	self.pushBoardData(snapshot, channel)
	self.presenter.Render(snapshot)
}

func (self *SessionManager) ownedBoardForMessage(
	channel connect.Channel,
	message *connect.Message,
) (board.Name, *board.Whiteboard, bool) {
	name, err := board.ParseName(message.Payload)
	if err != nil {
		self.replyBoardError(channel, message, err)
		return board.Name{}, nil, false
	}
	whiteboard := self.getOwnedBoard(name)
	if whiteboard == nil {
		glog.Infof("[sm]%s unknown board %s\n", channel.Id(), name)
		self.emit(channel, protocol.BoardError, fmt.Sprintf("%s: %s", ErrBoardNotFound, name))
		return board.Name{}, nil, false
	}
	return name, whiteboard, true
}

func (self *SessionManager) replyBoardError(channel connect.Channel, message *connect.Message, err error) {
	glog.Infof("[sm]%s malformed %s = %s\n", channel.Id(), message, err)
	self.emit(channel, protocol.BoardError, err.Error())
}

func (self *SessionManager) emit(channel connect.Channel, tag string, payload string) {
	if err := channel.Emit(tag, payload); err != nil {
		glog.Infof("[sm]%s emit %s error = %s\n", channel.Id(), tag, err)
	}
}

func (self *SessionManager) addSubscriber(name board.Name, channel connect.Channel) {
	self.subscribersLock.Lock()
	defer self.subscribersLock.Unlock()
	boardSubscribers, ok := self.subscribers[name]
	if !ok {
		boardSubscribers = map[connect.Id]connect.Channel{}
		self.subscribers[name] = boardSubscribers
	}
	boardSubscribers[channel.Id()] = channel
}

func (self *SessionManager) removeSubscriber(name board.Name, channel connect.Channel) {
	self.subscribersLock.Lock()
	defer self.subscribersLock.Unlock()
	if boardSubscribers, ok := self.subscribers[name]; ok {
		delete(boardSubscribers, channel.Id())
		if len(boardSubscribers) == 0 {
			delete(self.subscribers, name)
		}
	}
}

func (self *SessionManager) removeSubscribers(name board.Name) []connect.Channel {
	self.subscribersLock.Lock()
	defer self.subscribersLock.Unlock()
	boardSubscribers, ok := self.subscribers[name]
	if !ok {
		return []connect.Channel{}
	}
	delete(self.subscribers, name)
	return maps.Values(boardSubscribers)
}

func (self *SessionManager) Subscribers(name board.Name) []connect.Channel {
	self.subscribersLock.Lock()
	defer self.subscribersLock.Unlock()
	return maps.Values(self.subscribers[name])
}

// pushes the state to every subscriber of the board except `origin`
func (self *SessionManager) pushBoardData(snapshot *board.Snapshot, origin connect.Channel) {
	data := snapshot.String()
	for _, channel := range self.Subscribers(snapshot.Name) {
		if origin != nil && channel.Id() == origin.Id() {
			continue
		}
		self.emit(channel, protocol.BoardData, data)
	}
}
