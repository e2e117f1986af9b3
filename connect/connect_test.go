package connect

import (
	"encoding/json"
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func TestIdOrder(t *testing.T) {
	// ulids are ordered by create time
	// channel ids from one process can be ordered

	a := NewId()
	for range 64 * 1024 {
		b := NewId()
		assert.Equal(t, a.LessThan(b), true)
		assert.Equal(t, b.LessThan(a), false)
		assert.Equal(t, b.LessThan(b), false)
		assert.Equal(t, b == a, false)
		a = b
	}
}

func TestIdJsonCodec(t *testing.T) {
	type Test struct {
		A Id  `json:"a,omitempty"`
		B *Id `json:"b,omitempty"`
	}

	test1 := &Test{}
	test1.A = NewId()
	b_ := NewId()
	test1.B = &b_

	test1Json, err := json.Marshal(test1)
	assert.Equal(t, err, nil)

	test2 := &Test{}
	err = json.Unmarshal(test1Json, test2)
	assert.Equal(t, err, nil)

	assert.Equal(t, test1.A, test2.A)
	assert.Equal(t, test1.B, test2.B)

	test3 := &Test{}
	test3.A = NewId()

	test3Json, err := json.Marshal(test3)
	assert.Equal(t, err, nil)

	test4 := &Test{}
	err = json.Unmarshal(test3Json, test4)
	assert.Equal(t, err, nil)

	assert.Equal(t, test3.A, test4.A)
	assert.Equal(t, test3.B, nil)
}

func TestIdString(t *testing.T) {
	a := NewId()
	b, err := ParseId(a.String())
	assert.Equal(t, err, nil)
	assert.Equal(t, a, b)

	c, err := IdFromBytes(a.Bytes())
	assert.Equal(t, err, nil)
	assert.Equal(t, a, c)

	_, err = IdFromBytes([]byte{1, 2, 3})
	assert.NotEqual(t, err, nil)
	_, err = ParseId("not an id")
	assert.NotEqual(t, err, nil)
}

func TestFrame(t *testing.T) {
	message := &Message{
		Tag:     "BOARD_DATA",
		Payload: "localhost:4001:board1%1%a",
	}
	b, err := EncodeFrame(message)
	assert.Equal(t, err, nil)

	decoded, err := DecodeFrame(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded, message)

	// an empty payload is allowed
	decoded, err = DecodeFrame(RequireEncodeFrame(&Message{Tag: "X"}))
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded.Payload, "")

	_, err = EncodeFrame(&Message{Payload: "a"})
	assert.Equal(t, err, ErrEmptyTag)
}

func TestFrameSkipsUnknownFields(t *testing.T) {
	b := RequireEncodeFrame(&Message{Tag: "T", Payload: "p"})
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 10, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	decoded, err := DecodeFrame(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded, &Message{Tag: "T", Payload: "p"})
}

func TestFrameErrors(t *testing.T) {
	b := RequireEncodeFrame(&Message{Tag: "T", Payload: "payload"})
	_, err := DecodeFrame(b[:len(b)-2])
	assert.NotEqual(t, err, nil)

	noTag := protowire.AppendTag(nil, framePayloadNumber, protowire.BytesType)
	noTag = protowire.AppendString(noTag, "p")
	_, err = DecodeFrame(noTag)
	assert.Equal(t, err, ErrEmptyTag)
}

func TestHandleError(t *testing.T) {
	handled := false
	var handledErr error
	r := HandleError(func() {
		panic("bad message")
	}, func() {
		handled = true
	}, func(err error) {
		handledErr = err
	})
	assert.NotEqual(t, r, nil)
	assert.Equal(t, handled, true)
	assert.Equal(t, handledErr.Error(), "bad message")

	r = HandleError(func() {})
	assert.Equal(t, r, nil)
}
