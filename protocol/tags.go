package protocol

// message tags exchanged between peers and the directory
// every payload is a string. Board names have the form host:port:boardid.

// peer -> directory
const (
	// payload host:port:boardid
	ShareBoard = "SHARE_BOARD"
	// payload host:port:boardid
	UnshareBoard = "UNSHARE_BOARD"
)

// directory -> peer
const (
	// payload host:port:boardid
	// sent to every other peer on share, and once per shared board to a newly connected peer
	SharingBoard = "SHARING_BOARD"
	// payload host:port:boardid
	UnsharingBoard = "UNSHARING_BOARD"
	// payload is the error text
	Error = "ERROR"
)

// subscriber -> owner
const (
	// payload host:port:boardid
	ListenBoard = "BOARD_LISTEN"
	// payload host:port:boardid
	UnlistenBoard = "BOARD_UNLISTEN"
	// payload host:port:boardid
	GetBoardData = "GET_BOARD_DATA"

	// payload host:port:boardid%version%path
	// version must equal the version of the board without the path added
	BoardPathUpdate = "BOARD_PATH_UPDATE"
	// payload host:port:boardid%version%
	BoardUndoUpdate = "BOARD_UNDO_UPDATE"
	// payload host:port:boardid%version%
	BoardClearUpdate = "BOARD_CLEAR_UPDATE"
)

// owner -> subscriber
const (
	// payload host:port:boardid%version%path1%path2...
	BoardData = "BOARD_DATA"

	// acknowledgements to the originator of an update, with the update payload
	BoardPathAccepted  = "BOARD_PATH_ACCEPTED"
	BoardUndoAccepted  = "BOARD_UNDO_ACCEPTED"
	BoardClearAccepted = "BOARD_CLEAR_ACCEPTED"
	BoardPathRejected  = "BOARD_PATH_REJECTED"
	BoardUndoRejected  = "BOARD_UNDO_REJECTED"
	BoardClearRejected = "BOARD_CLEAR_REJECTED"

	// payload host:port:boardid
	BoardDeleted = "BOARD_DELETED"
)

// either direction
const (
	// payload is the error text
	BoardError = "BOARD_ERROR"
)
