package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// identifies a process by the address its peer server is reachable at
// comparable
type PeerAddress struct {
	Host string
	Port int
}

func NewPeerAddress(host string, port int) PeerAddress {
	return PeerAddress{
		Host: host,
		Port: port,
	}
}

// host:port
func ParsePeerAddress(s string) (PeerAddress, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return PeerAddress{}, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	return parsePeerAddressParts(s, parts[0], parts[1])
}

func parsePeerAddressParts(s string, host string, portStr string) (PeerAddress, error) {
	if host == "" {
		return PeerAddress{}, fmt.Errorf("%w: empty host in %q", ErrMalformedAddress, s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || 65535 < port {
		return PeerAddress{}, fmt.Errorf("%w: bad port in %q", ErrMalformedAddress, s)
	}
	return NewPeerAddress(host, port), nil
}

func (self PeerAddress) String() string {
	return fmt.Sprintf("%s:%d", self.Host, self.Port)
}

// the globally unique name of a board, `host:port:localId` where host:port is the owner
// comparable
type Name struct {
	Owner   PeerAddress
	LocalId string
}

func NewName(owner PeerAddress, localId string) Name {
	return Name{
		Owner:   owner,
		LocalId: localId,
	}
}

// ulids are time ordered so boards created by one process sort by creation
func NewLocalName(owner PeerAddress) Name {
	return NewName(owner, "board"+strings.ToLower(ulid.Make().String()))
}

// exactly three colon delimited fields
func ParseName(s string) (Name, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Name{}, fmt.Errorf("%w: %q", ErrMalformedName, s)
	}
	owner, err := parsePeerAddressParts(s, parts[0], parts[1])
	if err != nil {
		return Name{}, fmt.Errorf("%w: %s", ErrMalformedName, err)
	}
	localId := parts[2]
	if localId == "" || strings.Contains(localId, snapshotSeparator) {
		return Name{}, fmt.Errorf("%w: bad board id in %q", ErrMalformedName, s)
	}
	return NewName(owner, localId), nil
}

func (self Name) String() string {
	return fmt.Sprintf("%s:%s", self.Owner, self.LocalId)
}
