package board

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const snapshotSeparator = "%"

// an opaque serialized stroke
// paths are append only and never change once created
type Path string

func (self Path) Validate() error {
	if self == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.Contains(string(self), snapshotSeparator) {
		return fmt.Errorf("%w: contains %q", ErrInvalidPath, snapshotSeparator)
	}
	return nil
}

// the full state of a board at one version
type Snapshot struct {
	Name    Name
	Version int64
	Paths   []Path
}

// name%version%path1%path2...
// an empty board is name%version%
func (self *Snapshot) String() string {
	parts := make([]string, 0, len(self.Paths))
	for _, path := range self.Paths {
		parts = append(parts, string(path))
	}
	return fmt.Sprintf(
		"%s%s%d%s%s",
		self.Name,
		snapshotSeparator,
		self.Version,
		snapshotSeparator,
		strings.Join(parts, snapshotSeparator),
	)
}

func ParseSnapshot(data string) (*Snapshot, error) {
	parts := strings.Split(data, snapshotSeparator)
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedSnapshot, data)
	}
	name, err := ParseName(parts[0])
	if err != nil {
		return nil, err
	}
	version, err := ParseVersion(parts[1])
	if err != nil {
		return nil, err
	}
	paths := []Path{}
	if !(len(parts) == 3 && parts[2] == "") {
		for _, part := range parts[2:] {
			path := Path(part)
			if err := path.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrMalformedSnapshot, err)
			}
			paths = append(paths, path)
		}
	}
	return &Snapshot{
		Name:    name,
		Version: version,
		Paths:   paths,
	}, nil
}

func ParseVersion(s string) (int64, error) {
	version, err := strconv.ParseInt(s, 10, 64)
	if err != nil || version < 0 {
		return 0, fmt.Errorf("%w: bad version %q", ErrMalformedSnapshot, s)
	}
	return version, nil
}

// a versioned, ordered stroke list
//
// every mutation carries the version the caller believes the board is at,
// and applies only when that equals the current version. An applied mutation advances the
// version by exactly one, so the version always equals the number of accepted mutations.
// The board lock is the single serialization point for mutations.
//
// empty board policy:
// - `Undo` is rejected, there is nothing to remove
// - `Clear` is accepted and advances the version
type Whiteboard struct {
	stateLock sync.Mutex

	name Name
	// true when the authoritative copy is owned by another peer
	remote bool

	version int64
	paths   []Path
	// owner side only
	shared bool
}

func NewWhiteboard(name Name, remote bool) *Whiteboard {
	return &Whiteboard{
		name:   name,
		remote: remote,
		paths:  []Path{},
	}
}

func NewWhiteboardFromSnapshot(snapshot *Snapshot, remote bool) *Whiteboard {
	return &Whiteboard{
		name:    snapshot.Name,
		remote:  remote,
		version: snapshot.Version,
		paths:   slices.Clone(snapshot.Paths),
	}
}

func (self *Whiteboard) Name() Name {
	return self.name
}

func (self *Whiteboard) IsRemote() bool {
	return self.remote
}

func (self *Whiteboard) Version() int64 {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.version
}

func (self *Whiteboard) Paths() []Path {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.paths)
}

func (self *Whiteboard) IsShared() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.shared
}

func (self *Whiteboard) SetShared(shared bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.shared = shared
}

func (self *Whiteboard) Snapshot() *Snapshot {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.snapshot()
}

func (self *Whiteboard) snapshot() *Snapshot {
	return &Snapshot{
		Name:    self.name,
		Version: self.version,
		Paths:   slices.Clone(self.paths),
	}
}

func (self *Whiteboard) String() string {
	return self.Snapshot().String()
}

// name%version
func (self *Whiteboard) NameAndVersion() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return fmt.Sprintf("%s%s%d", self.name, snapshotSeparator, self.version)
}

func (self *Whiteboard) AddPath(path Path, baseVersion int64) bool {
	_, ok := self.AddPathSnapshot(path, baseVersion)
	return ok
}

func (self *Whiteboard) Undo(baseVersion int64) bool {
	_, ok := self.UndoSnapshot(baseVersion)
	return ok
}

func (self *Whiteboard) Clear(baseVersion int64) bool {
	_, ok := self.ClearSnapshot(baseVersion)
	return ok
}

// the `*Snapshot` variants also return the state right after an accepted mutation,
// taken under the same lock

func (self *Whiteboard) AddPathSnapshot(path Path, baseVersion int64) (*Snapshot, bool) {
	if path.Validate() != nil {
		return nil, false
	}
	return self.mutate(baseVersion, func() bool {
		self.paths = append(self.paths, path)
		return true
	})
}

func (self *Whiteboard) UndoSnapshot(baseVersion int64) (*Snapshot, bool) {
	return self.mutate(baseVersion, func() bool {
		if len(self.paths) == 0 {
			return false
		}
		self.paths = slices.Clone(self.paths[:len(self.paths)-1])
		return true
	})
}

func (self *Whiteboard) ClearSnapshot(baseVersion int64) (*Snapshot, bool) {
	return self.mutate(baseVersion, func() bool {
		self.paths = []Path{}
		return true
	})
}

func (self *Whiteboard) mutate(baseVersion int64, apply func() bool) (*Snapshot, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if baseVersion != self.version {
		return nil, false
	}
	if !apply() {
		return nil, false
	}
	self.version += 1
	return self.snapshot(), true
}

// replaces the state of a mirror with a snapshot pushed by the owner
// snapshots older than the current version are ignored, since pushes can arrive out of order
func (self *Whiteboard) Replace(snapshot *Snapshot) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if snapshot.Name != self.name {
		return false
	}
	if snapshot.Version < self.version {
		return false
	}
	self.version = snapshot.Version
	self.paths = slices.Clone(snapshot.Paths)
	return true
}
