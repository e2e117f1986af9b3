package directory

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/connect"
	"github.com/bringyour/whiteboard/protocol"
)

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

const quietTimeout = 100 * time.Millisecond
const messageTimeout = 2 * time.Second

type testPeer struct {
	channel  connect.Channel
	messages chan *connect.Message
}

// connects a new peer to the directory over an in-process pair
func connectTestPeer(ctx context.Context, directory *Directory, addr string) *testPeer {
	directorySide, peerSide := connect.NewChannelPair(ctx, "directory:3101", addr)
	peer := &testPeer{
		channel:  peerSide,
		messages: make(chan *connect.Message, 64),
	}
	peerSide.Listen(func(channel connect.Channel, message *connect.Message) {
		peer.messages <- message
	})
	directory.Connect(directorySide)
	return peer
}

func (self *testPeer) next(t *testing.T) *connect.Message {
	select {
	case message := <-self.messages:
		return message
	case <-time.After(messageTimeout):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func (self *testPeer) quiet(t *testing.T) {
	select {
	case message := <-self.messages:
		t.Fatalf("unexpected message %s", message)
	case <-time.After(quietTimeout):
	}
}

func testName(port int, localId string) board.Name {
	return board.NewName(board.NewPeerAddress("localhost", port), localId)
}

func TestShareBroadcastNoEcho(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	directory := NewDirectory()
	a := connectTestPeer(ctx, directory, "localhost:4001")
	b := connectTestPeer(ctx, directory, "localhost:4002")
	c := connectTestPeer(ctx, directory, "localhost:4003")

	name := testName(4001, "board1")
	a.channel.Emit(protocol.ShareBoard, name.String())

	for _, peer := range []*testPeer{b, c} {
		message := peer.next(t)
		assert.Equal(t, message.Tag, protocol.SharingBoard)
		assert.Equal(t, message.Payload, name.String())
	}
	a.quiet(t)

	a.channel.Emit(protocol.UnshareBoard, name.String())
	for _, peer := range []*testPeer{b, c} {
		message := peer.next(t)
		assert.Equal(t, message.Tag, protocol.UnsharingBoard)
		assert.Equal(t, message.Payload, name.String())
	}
	a.quiet(t)
}

func TestConnectSnapshotExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	directory := NewDirectory()
	a := connectTestPeer(ctx, directory, "localhost:4001")

	name1 := testName(4001, "board1")
	name2 := testName(4001, "board2")
	a.channel.Emit(protocol.ShareBoard, name1.String())
	a.channel.Emit(protocol.ShareBoard, name2.String())
	// sharing twice does not duplicate the entry
	a.channel.Emit(protocol.ShareBoard, name1.String())
	waitFor(t, func() bool {
		return len(directory.SharedBoards()) == 2
	})

	b := connectTestPeer(ctx, directory, "localhost:4002")
	received := map[string]int{}
	for i := 0; i < 2; i += 1 {
		message := b.next(t)
		assert.Equal(t, message.Tag, protocol.SharingBoard)
		received[message.Payload] += 1
	}
	b.quiet(t)
	assert.Equal(t, received, map[string]int{
		name1.String(): 1,
		name2.String(): 1,
	})

	a.channel.Emit(protocol.UnshareBoard, name1.String())
	waitFor(t, func() bool {
		return len(directory.SharedBoards()) == 1
	})

	c := connectTestPeer(ctx, directory, "localhost:4003")
	message := c.next(t)
	assert.Equal(t, message.Tag, protocol.SharingBoard)
	assert.Equal(t, message.Payload, name2.String())
	c.quiet(t)
}

func TestMalformedPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	directory := NewDirectory()
	a := connectTestPeer(ctx, directory, "localhost:4001")
	b := connectTestPeer(ctx, directory, "localhost:4002")

	a.channel.Emit(protocol.ShareBoard, "localhost:board1")
	message := a.next(t)
	assert.Equal(t, message.Tag, protocol.Error)
	assert.Equal(t, strings.Contains(message.Payload, "wrong sharingBoard format"), true)

	a.channel.Emit(protocol.UnshareBoard, "nope")
	message = a.next(t)
	assert.Equal(t, message.Tag, protocol.Error)

	b.quiet(t)
	assert.Equal(t, len(directory.SharedBoards()), 0)
}

func TestUnshareUnknown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	directory := NewDirectory()
	a := connectTestPeer(ctx, directory, "localhost:4001")
	b := connectTestPeer(ctx, directory, "localhost:4002")

	name := testName(4001, "board1")
	a.channel.Emit(protocol.UnshareBoard, name.String())

	// still broadcast, the registry is unchanged
	message := b.next(t)
	assert.Equal(t, message.Tag, protocol.UnsharingBoard)
	a.quiet(t)
	assert.Equal(t, len(directory.SharedBoards()), 0)
}

func TestDisconnectKeepsBoards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	directory := NewDirectory()
	a := connectTestPeer(ctx, directory, "localhost:4001")
	b := connectTestPeer(ctx, directory, "localhost:4002")

	name := testName(4001, "board1")
	a.channel.Emit(protocol.ShareBoard, name.String())
	b.next(t)

	a.channel.Close()
	waitFor(t, func() bool {
		return len(directory.Channels()) == 1
	})
	assert.Equal(t, directory.SharedBoards(), []board.Name{name})

	b.channel.Emit(protocol.ShareBoard, testName(4002, "board1").String())
	waitFor(t, func() bool {
		return len(directory.SharedBoards()) == 2
	})
}

func TestListHandler(t *testing.T) {
	directory := NewDirectory()
	directory.Share(nil, testName(4002, "board1"))
	directory.Share(nil, testName(4001, "board2"))

	r := httptest.NewRequest(http.MethodGet, ListPath, nil)
	w := httptest.NewRecorder()
	NewListHandler(directory).ServeHTTP(w, r)

	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Header().Get("Content-Type"), "application/json")

	var result ListResult
	err := json.Unmarshal(w.Body.Bytes(), &result)
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Boards, []string{
		"localhost:4001:board2",
		"localhost:4002:board1",
	})
}

func waitFor(t *testing.T, condition func() bool) {
	end := time.Now().Add(messageTimeout)
	for !condition() {
		if end.Before(time.Now()) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
