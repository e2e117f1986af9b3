package protocol

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/bringyour/whiteboard/board"
)

func TestParseUpdate(t *testing.T) {
	update, err := ParseUpdate(UpdatePath, "localhost:4001:board1%3%stroke")
	assert.Equal(t, err, nil)
	assert.Equal(t, update.Name, board.NewName(board.NewPeerAddress("localhost", 4001), "board1"))
	assert.Equal(t, update.BaseVersion, int64(3))
	assert.Equal(t, update.Path, board.Path("stroke"))
	assert.Equal(t, update.String(), "localhost:4001:board1%3%stroke")

	update, err = ParseUpdate(UpdateUndo, "localhost:4001:board1%0%")
	assert.Equal(t, err, nil)
	assert.Equal(t, update.Path, board.Path(""))

	for _, bad := range []string{
		"localhost:4001:board1%3",
		"localhost:4001%3%stroke",
		"localhost:4001:board1%x%stroke",
		"localhost:4001:board1%3%",
		"localhost:4001:board1%3%a%b",
	} {
		_, err := ParseUpdate(UpdatePath, bad)
		assert.NotEqual(t, err, nil)
	}
}

func TestUpdateKindTags(t *testing.T) {
	for _, kind := range []UpdateKind{UpdatePath, UpdateUndo, UpdateClear} {
		for _, tag := range []string{kind.UpdateTag(), kind.AcceptedTag(), kind.RejectedTag()} {
			tagKind, ok := UpdateKindForTag(tag)
			assert.Equal(t, ok, true)
			assert.Equal(t, tagKind, kind)
		}
	}
	_, ok := UpdateKindForTag(BoardData)
	assert.Equal(t, ok, false)
}
