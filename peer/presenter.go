package peer

import (
	"github.com/bringyour/whiteboard/board"
)

// receives board state changes for display
// calls come from connection goroutines and the caller of local intents, so implementations
// must be safe for concurrent use
type Presenter interface {
	// the board was created or changed
	Render(snapshot *board.Snapshot)
	// the board was deleted locally or by its owner
	Remove(name board.Name)
}

type NopPresenter struct{}

func (self *NopPresenter) Render(snapshot *board.Snapshot) {}

func (self *NopPresenter) Remove(name board.Name) {}
