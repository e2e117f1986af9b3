package peer

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/directory"
)

func startTestDirectory(t *testing.T, ctx context.Context, password string) (*directory.Directory, string) {
	settings := connect.DefaultServerSettings()
	settings.Password = password
	server := connect.NewServer(ctx, 0, settings)
	d := directory.NewDirectory()
	server.OnSessionStarted(d.Connect)
	directory.AddListRoute(server.Router(), d)
	go server.ListenAndServe()
	<-server.Ready()

	addr, err := server.Addr()
	assert.Equal(t, err, nil)
	return d, addr
}

func startTestPeer(t *testing.T, ctx context.Context, directoryAddress string, password string) *Peer {
	settings := DefaultPeerSettings()
	settings.DirectoryAddress = directoryAddress
	settings.ServerSettings.Password = password
	settings.DialSettings.Password = password
	p := NewPeer(ctx, 0, newTestPresenter(), settings)
	err := p.Start()
	assert.Equal(t, err, nil)
	return p
}

func TestPeersShareOverWebsockets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	password := "whiteboard"
	d, directoryAddress := startTestDirectory(t, ctx, password)
	a := startTestPeer(t, ctx, directoryAddress, password)
	defer a.Close()
	b := startTestPeer(t, ctx, directoryAddress, password)
	defer b.Close()

	name, err := a.CreateBoard()
	assert.Equal(t, err, nil)
	assert.Equal(t, a.Draw(name, "first"), nil)

	assert.Equal(t, a.SetShared(name, true), nil)
	waitFor(t, func() bool {
		return boardVersion(b.SessionManager(), name) == 1
	})
	assert.Equal(t, d.SharedBoards(), []board.Name{name})

	mirror, err := b.Board(name)
	assert.Equal(t, err, nil)
	assert.Equal(t, mirror.IsRemote(), true)
	assert.Equal(t, mirror.Paths(), []board.Path{"first"})

	assert.Equal(t, b.Draw(name, "second"), nil)
	waitFor(t, func() bool {
		return boardVersion(a.SessionManager(), name) == 2 && boardVersion(b.SessionManager(), name) == 2
	})

	assert.Equal(t, a.Undo(name), nil)
	waitFor(t, func() bool {
		return boardVersion(b.SessionManager(), name) == 3
	})
	assert.Equal(t, mirror.Paths(), []board.Path{"first"})

	// a new peer hears about boards shared before it connected
	c := startTestPeer(t, ctx, directoryAddress, password)
	defer c.Close()
	waitFor(t, func() bool {
		return boardVersion(c.SessionManager(), name) == 3
	})

	assert.Equal(t, a.SetShared(name, false), nil)
	waitFor(t, func() bool {
		_, errB := b.Board(name)
		_, errC := c.Board(name)
		return errors.Is(errB, ErrBoardNotFound) && errors.Is(errC, ErrBoardNotFound)
	})
	assert.Equal(t, len(d.SharedBoards()), 0)
}

func TestPeerWrongPassword(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, directoryAddress := startTestDirectory(t, ctx, "whiteboard")

	settings := DefaultPeerSettings()
	settings.DirectoryAddress = directoryAddress
	settings.DialSettings.Password = "wrong"
	p := NewPeer(ctx, 0, nil, settings)
	defer p.Close()

	err := p.Start()
	assert.Equal(t, errors.Is(err, connect.ErrAuthInvalid), true)
}

func TestPeerWithoutDirectory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPeer(ctx, 0, nil, DefaultPeerSettings())
	defer p.Close()
	assert.Equal(t, p.Start(), nil)

	address, err := p.Address()
	assert.Equal(t, err, nil)
	assert.Equal(t, address.Host, "localhost")

	name, err := p.CreateBoard()
	assert.Equal(t, err, nil)
	assert.Equal(t, name.Owner, address)
	assert.Equal(t, p.SetShared(name, true), ErrNotConnected)
}
