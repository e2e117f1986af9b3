package connect

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// a frame is the unit on the wire. Each websocket binary message carries exactly one frame,
// encoded as a protobuf record:
//
//	field 1 (bytes) tag
//	field 2 (bytes) payload
//
// unknown fields are skipped so that newer peers can add fields
// an empty websocket message is a ping and never decodes to a frame

const (
	frameTagNumber     protowire.Number = 1
	framePayloadNumber protowire.Number = 2
)

var ErrEmptyTag = errors.New("frame tag is empty")

type Message struct {
	Tag     string
	Payload string
}

func (self *Message) String() string {
	return fmt.Sprintf("%s(%s)", self.Tag, self.Payload)
}

func EncodeFrame(message *Message) ([]byte, error) {
	if message.Tag == "" {
		return nil, ErrEmptyTag
	}
	b := make([]byte, 0, len(message.Tag)+len(message.Payload)+8)
	b = protowire.AppendTag(b, frameTagNumber, protowire.BytesType)
	b = protowire.AppendString(b, message.Tag)
	b = protowire.AppendTag(b, framePayloadNumber, protowire.BytesType)
	b = protowire.AppendString(b, message.Payload)
	return b, nil
}

func RequireEncodeFrame(message *Message) []byte {
	b, err := EncodeFrame(message)
	if err != nil {
		panic(err)
	}
	return b
}

func DecodeFrame(b []byte) (*Message, error) {
	message := &Message{}
	for 0 < len(b) {
		number, wireType, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case number == frameTagNumber && wireType == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			message.Tag = v
			b = b[n:]
		case number == framePayloadNumber && wireType == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			message.Payload = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(number, wireType, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if message.Tag == "" {
		return nil, ErrEmptyTag
	}
	return message, nil
}
