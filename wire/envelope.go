package wire

import "fmt"

// Envelope is a decoded, self-describing message: header plus raw
// body bytes. Op state machines further unmarshal Body into a
// SimpleBody/BufferBody/StatusBody according to Header.Command()/IsAck().
type Envelope struct {
	Header Header
	Body   []byte
}

// Encode concatenates header and body, setting BodyLen to the true
// tail length so the receiver can validate before dereferencing
// (spec §4.2).
func Encode(h Header, body []byte) []byte {
	h.BodyLen = uint32(len(body))
	buf := make([]byte, HeaderSize+len(body))
	EncodeHeader(h, buf)
	copy(buf[HeaderSize:], body)
	return buf
}

// Decode validates the fixed header and that BodyLen matches the
// bytes actually received, per spec §4.2/§7 ("protocol violations").
func Decode(raw []byte) (Envelope, error) {
	h, err := DecodeHeader(raw)
	if err != nil {
		return Envelope{}, err
	}
	if int(HeaderSize)+int(h.BodyLen) != len(raw) {
		return Envelope{}, fmt.Errorf("kelpie: wire: body_len %d does not match received length %d", h.BodyLen, len(raw)-HeaderSize)
	}
	return Envelope{Header: h, Body: raw[HeaderSize:]}, nil
}

func NewSimple(h Header, body SimpleBody) ([]byte, error) {
	b, err := body.Marshal()
	if err != nil {
		return nil, err
	}
	return Encode(h, b), nil
}

func NewBuffer(h Header, body BufferBody) ([]byte, error) {
	b, err := body.Marshal()
	if err != nil {
		return nil, err
	}
	return Encode(h, b), nil
}

func NewStatus(h Header, body StatusBody) []byte {
	return Encode(h, body.Marshal())
}

func NewList(h Header, body ListBody) ([]byte, error) {
	b, err := body.Marshal()
	if err != nil {
		return nil, err
	}
	return Encode(h, b), nil
}
