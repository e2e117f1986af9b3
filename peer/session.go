package peer

import (
	"context"
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

// tells the directory about boards this peer owns
type Sharer interface {
	Share(name board.Name) error
	Unshare(name board.Name) error
}

// the boards of one peer process and the sessions that replicate them
//
// owner role: boards created here are authoritative. Inbound channels from `AcceptSession`
// subscribe to them, read them, and propose updates.
// subscriber role: boards owned by other peers are mirrored over one outbound channel per owner,
// created on the first `Subscribe` to that owner and closed when its last mirror is dropped.
//
// the board table, subscriber table, and connection table each have their own lock
// and are never held across an emit.
type SessionManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	dial      connect.DialFunction
	presenter Presenter

	stateLock    sync.Mutex
	localAddress *board.PeerAddress
	sharer       Sharer

	boardsLock sync.Mutex
	boards     map[board.Name]*board.Whiteboard

	// owned board -> inbound subscriber channels
	subscribersLock sync.Mutex
	subscribers     map[board.Name]map[connect.Id]connect.Channel

	// owner -> outbound connection
	connectionsLock sync.Mutex
	connections     map[board.PeerAddress]*ownerConnection
}

func NewSessionManager(ctx context.Context, dial connect.DialFunction, presenter Presenter) *SessionManager {
	cancelCtx, cancel := context.WithCancel(ctx)
	if presenter == nil {
		presenter = &NopPresenter{}
	}
	return &SessionManager{
		ctx:         cancelCtx,
		cancel:      cancel,
		dial:        dial,
		presenter:   presenter,
		boards:      map[board.Name]*board.Whiteboard{},
		subscribers: map[board.Name]map[connect.Id]connect.Channel{},
		connections: map[board.PeerAddress]*ownerConnection{},
	}
}

// the address other peers reach this process at
// boards can only be created once this is set
func (self *SessionManager) SetLocalAddress(address board.PeerAddress) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.localAddress = &address
}

func (self *SessionManager) LocalAddress() (board.PeerAddress, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.localAddress == nil {
		return board.PeerAddress{}, ErrNoAddress
	}
	return *self.localAddress, nil
}

func (self *SessionManager) SetSharer(sharer Sharer) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.sharer = sharer
}

func (self *SessionManager) getSharer() Sharer {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.sharer
}

func (self *SessionManager) isLocal(address board.PeerAddress) bool {
	localAddress, err := self.LocalAddress()
	return err == nil && localAddress == address
}

func (self *SessionManager) getBoard(name board.Name) (*board.Whiteboard, bool) {
	self.boardsLock.Lock()
	defer self.boardsLock.Unlock()
	whiteboard, ok := self.boards[name]
	return whiteboard, ok
}

// the owned board, or nil if the board is missing or a mirror
func (self *SessionManager) getOwnedBoard(name board.Name) *board.Whiteboard {
	whiteboard, ok := self.getBoard(name)
	if !ok || whiteboard.IsRemote() {
		return nil
	}
	return whiteboard
}

func (self *SessionManager) removeBoard(name board.Name) (*board.Whiteboard, bool) {
	self.boardsLock.Lock()
	defer self.boardsLock.Unlock()
	whiteboard, ok := self.boards[name]
	if ok {
		delete(self.boards, name)
	}
	return whiteboard, ok
}

// all boards, owned and mirrored, ordered by name
func (self *SessionManager) Boards() []board.Name {
	self.boardsLock.Lock()
	names := maps.Keys(self.boards)
	self.boardsLock.Unlock()

	slices.SortFunc(names, func(a board.Name, b board.Name) int {
		return strings.Compare(a.String(), b.String())
	})
	return names
}

func (self *SessionManager) Board(name board.Name) (*board.Whiteboard, error) {
	whiteboard, ok := self.getBoard(name)
	if !ok {
		return nil, ErrBoardNotFound
	}
	return whiteboard, nil
}

// creates an empty owned board
func (self *SessionManager) CreateBoard() (board.Name, error) {
	localAddress, err := self.LocalAddress()
	if err != nil {
		return board.Name{}, err
	}
	name := board.NewLocalName(localAddress)
	self.addBoard(board.NewWhiteboard(name, false))
	return name, nil
}

func (self *SessionManager) addBoard(whiteboard *board.Whiteboard) {
	self.boardsLock.Lock()
	self.boards[whiteboard.Name()] = whiteboard
	self.boardsLock.Unlock()

	glog.V(connect.LogLevelEvent).Infof("[sm]create %s\n", whiteboard.Name())
	self.presenter.Render(whiteboard.Snapshot())
}

func (self *SessionManager) Draw(name board.Name, path board.Path) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return self.mutateLocally(protocol.UpdatePath, name, path)
}

func (self *SessionManager) Undo(name board.Name) error {
	return self.mutateLocally(protocol.UpdateUndo, name, "")
}

func (self *SessionManager) Clear(name board.Name) error {
	return self.mutateLocally(protocol.UpdateClear, name, "")
}

// owned boards apply at the current version and push to subscribers when shared
// mirrors forward the proposal to the owner and change only when the owner answers
func (self *SessionManager) mutateLocally(kind protocol.UpdateKind, name board.Name, path board.Path) error {
	whiteboard, ok := self.getBoard(name)
	if !ok {
		return ErrBoardNotFound
	}

	snapshot := whiteboard.Snapshot()
	if kind == protocol.UpdateUndo && len(snapshot.Paths) == 0 {
		return ErrEmptyBoard
	}

	update := &protocol.Update{
		Kind:        kind,
		Name:        name,
		BaseVersion: snapshot.Version,
		Path:        path,
	}

	if whiteboard.IsRemote() {
		return self.propose(update)
	}

	next, ok := applyUpdate(whiteboard, update)
	if !ok {
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, kind, update.BaseVersion)
	}
	glog.V(connect.LogLevelEvent).Infof("[sm]local %s %s -> %d\n", kind, name, next.Version)
	self.presenter.Render(next)
	if whiteboard.IsShared() {
		self.pushBoardData(next, nil)
	}
	return nil
}

// owned boards are shared through the directory
func (self *SessionManager) SetShared(name board.Name, shared bool) error {
	whiteboard, ok := self.getBoard(name)
	if !ok {
		return ErrBoardNotFound
	}
	if whiteboard.IsRemote() {
		return ErrRemoteBoard
	}
	sharer := self.getSharer()
	if sharer == nil {
		return ErrNotConnected
	}

	// the flag is set before the directory hears about the board,
	// so a subscriber never misses a push
	previous := whiteboard.IsShared()
	whiteboard.SetShared(shared)
	var err error
	if shared {
		err = sharer.Share(name)
	} else {
		err = sharer.Unshare(name)
	}
	if err != nil {
		whiteboard.SetShared(previous)
		return err
	}
	glog.V(connect.LogLevelEvent).Infof("[sm]shared %s = %t\n", name, shared)
	self.presenter.Render(whiteboard.Snapshot())
	return nil
}

// owned boards notify every subscriber and are unshared
// mirrors unsubscribe from the owner
func (self *SessionManager) DeleteBoard(name board.Name) error {
	whiteboard, ok := self.getBoard(name)
	if !ok {
		return ErrBoardNotFound
	}
	if whiteboard.IsRemote() {
		self.Unsubscribe(name)
		return nil
	}

	self.removeBoard(name)
	for _, channel := range self.removeSubscribers(name) {
		if err := channel.Emit(protocol.BoardDeleted, name.String()); err != nil {
			glog.Infof("[sm]delete %s notify %s error = %s\n", name, channel.Id(), err)
		}
	}
	if whiteboard.IsShared() {
		if sharer := self.getSharer(); sharer != nil {
			if err := sharer.Unshare(name); err != nil {
				glog.Infof("[sm]delete %s unshare error = %s\n", name, err)
			}
		}
	}
	glog.V(connect.LogLevelEvent).Infof("[sm]delete %s\n", name)
	self.presenter.Remove(name)
	return nil
}

// best effort delete of every board, then closes every connection
func (self *SessionManager) Shutdown() {
	for _, name := range self.Boards() {
		if err := self.DeleteBoard(name); err != nil {
			glog.V(connect.LogLevelEvent).Infof("[sm]shutdown delete %s error = %s\n", name, err)
		}
	}

	self.connectionsLock.Lock()
	connections := maps.Values(self.connections)
	clear(self.connections)
	self.connectionsLock.Unlock()
	for _, connection := range connections {
		connection.close()
	}

	self.subscribersLock.Lock()
	channels := map[connect.Id]connect.Channel{}
	for _, boardSubscribers := range self.subscribers {
		maps.Copy(channels, boardSubscribers)
	}
	clear(self.subscribers)
	self.subscribersLock.Unlock()
	for _, channel := range channels {
		channel.Close()
	}

	self.cancel()
}

// applies an update to a board and returns the resulting state
func applyUpdate(whiteboard *board.Whiteboard, update *protocol.Update) (*board.Snapshot, bool) {
	switch update.Kind {
	case protocol.UpdatePath:
		return whiteboard.AddPathSnapshot(update.Path, update.BaseVersion)
	case protocol.UpdateUndo:
		return whiteboard.UndoSnapshot(update.BaseVersion)
	case protocol.UpdateClear:
		return whiteboard.ClearSnapshot(update.BaseVersion)
	default:
		return nil, false
	}
}
