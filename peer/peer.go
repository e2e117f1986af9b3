package peer

import (
	"context"

	"github.com/golang/glog"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/connect"
)

type PeerSettings struct {
	// host:port of the directory, or empty to run without one
	DirectoryAddress string

	ServerSettings *connect.ServerSettings
	DialSettings   *connect.DialSettings
}

func DefaultPeerSettings() *PeerSettings {
	return &PeerSettings{
		ServerSettings: connect.DefaultServerSettings(),
		DialSettings:   connect.DefaultDialSettings(),
	}
}

// one peer process: a server for the boards it owns, a session manager,
// and a directory client
type Peer struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings *PeerSettings

	server          *connect.Server
	dialer          *connect.Dialer
	sessionManager  *SessionManager
	directoryClient *DirectoryClient
}

// port 0 binds any free port
func NewPeer(ctx context.Context, port int, presenter Presenter, settings *PeerSettings) *Peer {
	cancelCtx, cancel := context.WithCancel(ctx)

	server := connect.NewServer(cancelCtx, port, settings.ServerSettings)
	dialer := connect.NewDialer(settings.DialSettings)
	sessionManager := NewSessionManager(cancelCtx, dialer.Dial, presenter)
	server.OnSessionStarted(sessionManager.AcceptSession)

	var directoryClient *DirectoryClient
	if settings.DirectoryAddress != "" {
		directoryClient = NewDirectoryClient(
			cancelCtx,
			settings.DirectoryAddress,
			dialer.DialWithRetry,
			sessionManager,
		)
		sessionManager.SetSharer(directoryClient)
	}

	return &Peer{
		ctx:             cancelCtx,
		cancel:          cancel,
		settings:        settings,
		server:          server,
		dialer:          dialer,
		sessionManager:  sessionManager,
		directoryClient: directoryClient,
	}
}

// binds the server, then connects to the directory
// returns once the directory is connected, or the server fails to bind
func (self *Peer) Start() error {
	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		if err := self.server.ListenAndServe(); err != nil {
			glog.Infof("[p]serve error = %s\n", err)
			serveErr <- err
		}
	}()

	select {
	case <-self.server.Ready():
	case err := <-serveErr:
		return err
	case <-self.ctx.Done():
		return self.ctx.Err()
	}

	addrStr, err := self.server.Addr()
	if err != nil {
		return err
	}
	address, err := board.ParsePeerAddress(addrStr)
	if err != nil {
		return err
	}
	self.sessionManager.SetLocalAddress(address)
	glog.Infof("[p]peer %s\n", address)

	if self.directoryClient != nil {
		return self.directoryClient.Connect(self.server.Ready())
	}
	return nil
}

func (self *Peer) Address() (board.PeerAddress, error) {
	return self.sessionManager.LocalAddress()
}

func (self *Peer) SessionManager() *SessionManager {
	return self.sessionManager
}

func (self *Peer) CreateBoard() (board.Name, error) {
	return self.sessionManager.CreateBoard()
}

func (self *Peer) Draw(name board.Name, path board.Path) error {
	return self.sessionManager.Draw(name, path)
}

func (self *Peer) Undo(name board.Name) error {
	return self.sessionManager.Undo(name)
}

func (self *Peer) Clear(name board.Name) error {
	return self.sessionManager.Clear(name)
}

func (self *Peer) SetShared(name board.Name, shared bool) error {
	return self.sessionManager.SetShared(name, shared)
}

func (self *Peer) DeleteBoard(name board.Name) error {
	return self.sessionManager.DeleteBoard(name)
}

func (self *Peer) Boards() []board.Name {
	return self.sessionManager.Boards()
}

func (self *Peer) Board(name board.Name) (*board.Whiteboard, error) {
	return self.sessionManager.Board(name)
}

func (self *Peer) Done() <-chan struct{} {
	return self.ctx.Done()
}

// deletes every board, then closes the directory channel and the server
func (self *Peer) Close() {
	self.sessionManager.Shutdown()
	if self.directoryClient != nil {
		self.directoryClient.Close()
	}
	self.server.Close()
	self.cancel()
}
