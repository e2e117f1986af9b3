package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/bringyour/whiteboard/board"
	"github.com/bringyour/whiteboard/peer"
)

type lineReader interface {
	ReadLine() (string, error)
}

type scannerLineReader struct {
	scanner *bufio.Scanner
}

func newScannerLineReader(r io.Reader) *scannerLineReader {
	return &scannerLineReader{
		scanner: bufio.NewScanner(r),
	}
}

func (self *scannerLineReader) ReadLine() (string, error) {
	if self.scanner.Scan() {
		return self.scanner.Text(), nil
	}
	if err := self.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// prints changes to the selected board, and board arrivals and removals
type ConsolePresenter struct {
	stateLock sync.Mutex
	out       io.Writer
	selected  *board.Name
}

func NewConsolePresenter(out io.Writer) *ConsolePresenter {
	return &ConsolePresenter{
		out: out,
	}
}

func (self *ConsolePresenter) Select(name *board.Name) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.selected = name
}

func (self *ConsolePresenter) Selected() (board.Name, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.selected == nil {
		return board.Name{}, false
	}
	return *self.selected, true
}

func (self *ConsolePresenter) Render(snapshot *board.Snapshot) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.selected != nil && *self.selected == snapshot.Name {
		writeSnapshot(self.out, snapshot)
	}
}

func (self *ConsolePresenter) Remove(name board.Name) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.selected != nil && *self.selected == name {
		self.selected = nil
	}
	fmt.Fprintf(self.out, "removed %s\n", name)
}

func writeSnapshot(out io.Writer, snapshot *board.Snapshot) {
	fmt.Fprintf(out, "%s version %d, %d paths\n", snapshot.Name, snapshot.Version, len(snapshot.Paths))
	for i, path := range snapshot.Paths {
		fmt.Fprintf(out, "  %d: %s\n", i+1, path)
	}
}

const consoleHelp = `Commands:
    new                create a board and select it
    list               list boards
    select <n|name>    select a board by list number or name
    draw <path>        add a path to the selected board
    undo               remove the last path of the selected board
    clear              remove every path of the selected board
    share              share the selected board (own boards only)
    unshare            stop sharing the selected board
    delete             delete the selected board, or stop mirroring it
    show               print the selected board
    help               show this help
    quit               exit
`

var errNoSelection = errors.New("no board selected, use new or select")

// the interactive commands, one per line
type Console struct {
	peer      *peer.Peer
	presenter *ConsolePresenter
	out       io.Writer
}

func NewConsole(p *peer.Peer, presenter *ConsolePresenter, out io.Writer) *Console {
	return &Console{
		peer:      p,
		presenter: presenter,
		out:       out,
	}
}

// returns on quit, end of input, or when the context is done
func (self *Console) Run(ctx context.Context, in lineReader) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := in.ReadLine()
		if err != nil {
			return
		}
		if quit := self.Exec(line); quit {
			return
		}
	}
}

// runs one command line, and returns true on quit
func (self *Console) Exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	command := fields[0]
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), command))

	var err error
	switch command {
	case "new":
		err = self.create()
	case "list", "ls":
		self.list()
	case "select":
		err = self.selectBoard(arg)
	case "draw":
		err = self.withSelected(func(name board.Name) error {
			return self.peer.Draw(name, board.Path(arg))
		})
	case "undo":
		err = self.withSelected(self.peer.Undo)
	case "clear":
		err = self.withSelected(self.peer.Clear)
	case "share":
		err = self.withSelected(func(name board.Name) error {
			return self.peer.SetShared(name, true)
		})
	case "unshare":
		err = self.withSelected(func(name board.Name) error {
			return self.peer.SetShared(name, false)
		})
	case "delete":
		err = self.withSelected(self.peer.DeleteBoard)
	case "show":
		err = self.withSelected(func(name board.Name) error {
			whiteboard, err := self.peer.Board(name)
			if err != nil {
				return err
			}
			writeSnapshot(self.out, whiteboard.Snapshot())
			return nil
		})
	case "help", "?":
		fmt.Fprint(self.out, consoleHelp)
	case "quit", "exit":
		return true
	default:
		err = fmt.Errorf("unknown command %q, try help", command)
	}
	if err != nil {
		fmt.Fprintf(self.out, "error: %s\n", err)
	}
	return false
}

func (self *Console) create() error {
	name, err := self.peer.CreateBoard()
	if err != nil {
		return err
	}
	self.presenter.Select(&name)
	fmt.Fprintf(self.out, "created %s\n", name)
	return nil
}

func (self *Console) list() {
	selected, hasSelected := self.presenter.Selected()
	for i, name := range self.peer.Boards() {
		whiteboard, err := self.peer.Board(name)
		if err != nil {
			continue
		}
		marker := " "
		if hasSelected && selected == name {
			marker = "*"
		}
		var kind string
		if whiteboard.IsRemote() {
			kind = "mirror"
		} else if whiteboard.IsShared() {
			kind = "shared"
		} else {
			kind = "local"
		}
		fmt.Fprintf(self.out, "%s%d %s (%s, version %d)\n", marker, i+1, name, kind, whiteboard.Version())
	}
}

func (self *Console) selectBoard(arg string) error {
	names := self.peer.Boards()
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 1 || len(names) < i {
			return fmt.Errorf("no board %d", i)
		}
		name := names[i-1]
		self.presenter.Select(&name)
		fmt.Fprintf(self.out, "selected %s\n", name)
		return nil
	}

	name, err := board.ParseName(arg)
	if err != nil {
		return err
	}
	if _, err := self.peer.Board(name); err != nil {
		return err
	}
	self.presenter.Select(&name)
	fmt.Fprintf(self.out, "selected %s\n", name)
	return nil
}

func (self *Console) withSelected(do func(name board.Name) error) error {
	name, ok := self.presenter.Selected()
	if !ok {
		return errNoSelection
	}
	return do(name)
}
