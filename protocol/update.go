package protocol

import (
	"fmt"
	"strings"

	"github.com/bringyour/whiteboard/board"
)

type UpdateKind int

const (
	UpdatePath UpdateKind = iota
	UpdateUndo
	UpdateClear
)

func (self UpdateKind) String() string {
	switch self {
	case UpdatePath:
		return "path"
	case UpdateUndo:
		return "undo"
	case UpdateClear:
		return "clear"
	default:
		return fmt.Sprintf("unknown(%d)", int(self))
	}
}

func (self UpdateKind) UpdateTag() string {
	switch self {
	case UpdatePath:
		return BoardPathUpdate
	case UpdateUndo:
		return BoardUndoUpdate
	default:
		return BoardClearUpdate
	}
}

func (self UpdateKind) AcceptedTag() string {
	switch self {
	case UpdatePath:
		return BoardPathAccepted
	case UpdateUndo:
		return BoardUndoAccepted
	default:
		return BoardClearAccepted
	}
}

func (self UpdateKind) RejectedTag() string {
	switch self {
	case UpdatePath:
		return BoardPathRejected
	case UpdateUndo:
		return BoardUndoRejected
	default:
		return BoardClearRejected
	}
}

// update, accepted, and rejected tags map to their kind
func UpdateKindForTag(tag string) (UpdateKind, bool) {
	switch tag {
	case BoardPathUpdate, BoardPathAccepted, BoardPathRejected:
		return UpdatePath, true
	case BoardUndoUpdate, BoardUndoAccepted, BoardUndoRejected:
		return UpdateUndo, true
	case BoardClearUpdate, BoardClearAccepted, BoardClearRejected:
		return UpdateClear, true
	default:
		return 0, false
	}
}

// a mutation proposal, host:port:boardid%baseVersion%path
// undo and clear have an empty path
type Update struct {
	Kind        UpdateKind
	Name        board.Name
	BaseVersion int64
	Path        board.Path
}

func (self *Update) String() string {
	return fmt.Sprintf("%s%%%d%%%s", self.Name, self.BaseVersion, self.Path)
}

func ParseUpdate(kind UpdateKind, payload string) (*Update, error) {
	parts := strings.SplitN(payload, "%", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", board.ErrMalformedSnapshot, payload)
	}
	name, err := board.ParseName(parts[0])
	if err != nil {
		return nil, err
	}
	baseVersion, err := board.ParseVersion(parts[1])
	if err != nil {
		return nil, err
	}
	path := board.Path(parts[2])
	if kind == UpdatePath {
		if err := path.Validate(); err != nil {
			return nil, err
		}
	}
	return &Update{
		Kind:        kind,
		Name:        name,
		BaseVersion: baseVersion,
		Path:        path,
	}, nil
}
