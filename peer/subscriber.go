package peer

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/protocol"
)

// the outbound channel to one owner, shared by every board mirrored from that owner
// `channel` and `err` are set once before `ready` is closed
type ownerConnection struct {
	address board.PeerAddress
	ready   chan struct{}
	channel connect.Channel
	err     error

	// guarded by the session manager connections lock
	mirrors map[board.Name]bool

	closeOnce sync.Once
}

func newOwnerConnection(address board.PeerAddress) *ownerConnection {
	return &ownerConnection{
		address: address,
		ready:   make(chan struct{}),
		mirrors: map[board.Name]bool{},
	}
}

// closes the channel exactly once, after the dial resolves
func (self *ownerConnection) close() {
	self.closeOnce.Do(func() {
		go func() {
			<-self.ready
			if self.channel != nil {
				self.channel.Close()
			}
		}()
	})
}

// mirrors a board owned by another peer
//
// the connection to the owner is created on first use. Concurrent subscribes to the same owner
// share one connection: the first caller dials and the others wait for that dial.
// Subscribing to an own board or an already mirrored board is a no-op.
func (self *SessionManager) Subscribe(name board.Name) error {
	if self.isLocal(name.Owner) {
		glog.V(connect.LogLevelEvent).Infof("[sm]subscribe %s is local\n", name)
		return nil
	}

	self.connectionsLock.Lock()
	connection, ok := self.connections[name.Owner]
	if !ok {
		connection = newOwnerConnection(name.Owner)
		self.connections[name.Owner] = connection
	}
	mirrored := connection.mirrors[name]
	connection.mirrors[name] = true
	self.connectionsLock.Unlock()

	if !ok {
		self.connectOwner(connection)
	} else {
		select {
		case <-connection.ready:
		case <-self.ctx.Done():
			return self.ctx.Err()
		}
	}
	if connection.err != nil {
		return connection.err
	}
	if mirrored {
		return nil
	}

	glog.V(connect.LogLevelEvent).Infof("[sm]subscribe %s\n", name)
	if err := connection.channel.Emit(protocol.ListenBoard, name.String()); err != nil {
		return err
	}
	return connection.channel.Emit(protocol.GetBoardData, name.String())
}

func (self *SessionManager) connectOwner(connection *ownerConnection) {
	defer close(connection.ready)

	channel, err := self.dial(self.ctx, connection.address.String())
	if err != nil {
		glog.Infof("[sm]connect %s error = %s\n", connection.address, err)
		connection.err = err
		self.connectionsLock.Lock()
		if self.connections[connection.address] == connection {
			delete(self.connections, connection.address)
		}
		self.connectionsLock.Unlock()
		return
	}
	glog.V(connect.LogLevelEvent).Infof("[sm]connect %s %s\n", connection.address, channel.Id())
	connection.channel = channel
	channel.OnClose(func(channel connect.Channel) {
		self.ownerClosed(connection)
	})
	channel.Listen(func(channel connect.Channel, message *connect.Message) {
		self.receiveFromOwner(connection, message)
	})
}

// deregisters the connection and drops every mirror it carried
func (self *SessionManager) ownerClosed(connection *ownerConnection) {
	self.connectionsLock.Lock()
	if self.connections[connection.address] == connection {
		delete(self.connections, connection.address)
	}
	names := maps.Keys(connection.mirrors)
	clear(connection.mirrors)
	self.connectionsLock.Unlock()

	glog.V(connect.LogLevelEvent).Infof("[sm]connection %s closed\n", connection.address)
	for _, name := range names {
		self.dropMirror(name)
	}
}

// stops mirroring a board
// the connection to the owner is closed when its last mirror is dropped
func (self *SessionManager) Unsubscribe(name board.Name) {
	self.connectionsLock.Lock()
	connection, ok := self.connections[name.Owner]
	if !ok || !connection.mirrors[name] {
		self.connectionsLock.Unlock()
		self.dropMirror(name)
		return
	}
	delete(connection.mirrors, name)
	last := len(connection.mirrors) == 0
	if last {
		delete(self.connections, name.Owner)
	}
	self.connectionsLock.Unlock()

	glog.V(connect.LogLevelEvent).Infof("[sm]unsubscribe %s\n", name)
	self.dropMirror(name)

	select {
	case <-connection.ready:
		if connection.err == nil {
			if err := connection.channel.Emit(protocol.UnlistenBoard, name.String()); err != nil {
				glog.Infof("[sm]unsubscribe %s emit error = %s\n", name, err)
			}
		}
	default:
		// the dial has not resolved, and the owner never heard a listen
	}
	if last {
		connection.close()
	}
}

func (self *SessionManager) dropMirror(name board.Name) {
	self.boardsLock.Lock()
	whiteboard, ok := self.boards[name]
	if ok && whiteboard.IsRemote() {
		delete(self.boards, name)
	}
	self.boardsLock.Unlock()

	if ok && whiteboard.IsRemote() {
		glog.V(connect.LogLevelEvent).Infof("[sm]drop mirror %s\n", name)
		self.presenter.Remove(name)
	}
}

func (self *SessionManager) isMirrored(connection *ownerConnection, name board.Name) bool {
	self.connectionsLock.Lock()
	defer self.connectionsLock.Unlock()
	return connection.mirrors[name]
}

// the owner addresses with an open or pending connection
func (self *SessionManager) Connections() []board.PeerAddress {
	self.connectionsLock.Lock()
	defer self.connectionsLock.Unlock()
	return maps.Keys(self.connections)
}

// sends a proposal to the owner of a mirrored board
func (self *SessionManager) propose(update *protocol.Update) error {
	self.connectionsLock.Lock()
	connection, ok := self.connections[update.Name.Owner]
	self.connectionsLock.Unlock()
	if !ok {
		return ErrNotConnected
	}
	select {
	case <-connection.ready:
	default:
		return ErrNotConnected
	}
	if connection.err != nil {
		return ErrNotConnected
	}
	glog.V(connect.LogLevelEvent).Infof("[sm]propose %s %s\n", update.Kind, update)
	return connection.channel.Emit(update.Kind.UpdateTag(), update.String())
}

func (self *SessionManager) receiveFromOwner(connection *ownerConnection, message *connect.Message) {
	glog.V(connect.LogLevelTrace).Infof("[sm]%s -> %s\n", connection.address, message)

	switch message.Tag {
	case protocol.BoardData:
		snapshot, err := board.ParseSnapshot(message.Payload)
		if err != nil {
			glog.Infof("[sm]%s malformed %s = %s\n", connection.address, message, err)
			return
		}
		self.receiveBoardData(connection, snapshot)
	case protocol.BoardDeleted:
		name, err := board.ParseName(message.Payload)
		if err != nil {
			glog.Infof("[sm]%s malformed %s = %s\n", connection.address, message, err)
			return
		}
		glog.V(connect.LogLevelEvent).Infof("[sm]%s deleted %s\n", connection.address, name)
		self.Unsubscribe(name)
	case protocol.BoardPathAccepted, protocol.BoardUndoAccepted, protocol.BoardClearAccepted:
		kind, _ := protocol.UpdateKindForTag(message.Tag)
		update, err := protocol.ParseUpdate(kind, message.Payload)
		if err != nil {
			glog.Infof("[sm]%s malformed %s = %s\n", connection.address, message, err)
			return
		}
		self.receiveAccepted(connection, update)
	case protocol.BoardPathRejected, protocol.BoardUndoRejected, protocol.BoardClearRejected:
		kind, _ := protocol.UpdateKindForTag(message.Tag)
		update, err := protocol.ParseUpdate(kind, message.Payload)
		if err != nil {
			glog.Infof("[sm]%s malformed %s = %s\n", connection.address, message, err)
			return
		}
		glog.V(connect.LogLevelEvent).Infof("[sm]%s rejected %s %s\n", connection.address, kind, update)
		self.resync(connection, update.Name)
	case protocol.BoardError:
		glog.Infof("[sm]%s board error = %s\n", connection.address, message.Payload)
	default:
		glog.Infof("[sm]%s unknown message %s\n", connection.address, message)
	}
}

// replaces or creates the mirror
// snapshots for boards that are no longer mirrored, or older than the mirror, are ignored
func (self *SessionManager) receiveBoardData(connection *ownerConnection, snapshot *board.Snapshot) {
	if snapshot.Name.Owner != connection.address || !self.isMirrored(connection, snapshot.Name) {
		glog.V(connect.LogLevelEvent).Infof("[sm]%s ignore data %s\n", connection.address, snapshot.Name)
		return
	}

	var next *board.Snapshot
	self.boardsLock.Lock()
	whiteboard, ok := self.boards[snapshot.Name]
	if !ok {
		whiteboard = board.NewWhiteboardFromSnapshot(snapshot, true)
		self.boards[snapshot.Name] = whiteboard
		next = whiteboard.Snapshot()
	} else if whiteboard.IsRemote() && whiteboard.Replace(snapshot) {
		next = whiteboard.Snapshot()
	}
	self.boardsLock.Unlock()

	if next == nil {
		glog.V(connect.LogLevelEvent).Infof("[sm]%s ignore stale data %s%%%d\n", connection.address, snapshot.Name, snapshot.Version)
		return
	}
	glog.V(connect.LogLevelEvent).Infof("[sm]%s data %s%%%d\n", connection.address, next.Name, next.Version)
	self.presenter.Render(next)
}

// the owner applied the proposal at its base version, so applying it to a mirror still at that
// version produces the owner's state. A mirror that moved on asks for the full state.
func (self *SessionManager) receiveAccepted(connection *ownerConnection, update *protocol.Update) {
	glog.V(connect.LogLevelEvent).Infof("[sm]%s accepted %s %s\n", connection.address, update.Kind, update)

	whiteboard, ok := self.getBoard(update.Name)
	if !ok || !whiteboard.IsRemote() {
		return
	}
	snapshot, ok := applyUpdate(whiteboard, update)
	if !ok {
		self.resync(connection, update.Name)
		return
	}
	self.presenter.Render(snapshot)
}

func (self *SessionManager) resync(connection *ownerConnection, name board.Name) {
	if !self.isMirrored(connection, name) {
		return
	}
	if err := connection.channel.Emit(protocol.GetBoardData, name.String()); err != nil {
		glog.Infof("[sm]%s resync %s error = %s\n", connection.address, name, err)
	}
}
