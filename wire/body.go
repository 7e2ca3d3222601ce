package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
)

// NetBufferRemote is an opaque handle describing a pinned region on
// the sender, carried as an up-to-56-byte blob per spec §6. The
// concrete transport (package transport) interprets the bytes.
type NetBufferRemote [56]byte

const simpleFixedLen = 8 + 2 + 2 + 4 + 4 + 1 + 1 + 2 // = 24
const bufferFixedLen = 56 + 8 + 2 + 2 + 4 + 4 + 1     // = 77
const statusFixedLen = 4 + 24                          // remote_rc + object_info

// ObjectInfoWireSize matches spec §6 ("object_info: 24B").
const ObjectInfoWireSize = 24

// SimpleBody: NetBufferRemote-less command body, used by Publish's
// info queries, List, Drop, Compute, and Get-Unbounded's initial ask.
type SimpleBody struct {
	MetaPlusDataSize uint64
	Bucket           uint32
	IomHash          uint32
	Behavior         behavior.Flags
	K1, K2           string
	FnName           string
	FnArgs           []byte
}

func (b SimpleBody) Marshal() ([]byte, error) {
	if len(b.K1) > cmn.MaxKeyStringBytes || len(b.K2) > cmn.MaxKeyStringBytes {
		return nil, fmt.Errorf("kelpie: wire: key component exceeds %d bytes", cmn.MaxKeyStringBytes)
	}
	if len(b.FnName) > 255 {
		return nil, fmt.Errorf("kelpie: wire: function name exceeds 255 bytes")
	}
	tail := len(b.K1) + len(b.K2) + len(b.FnName) + len(b.FnArgs)
	buf := make([]byte, simpleFixedLen+tail)
	binary.LittleEndian.PutUint64(buf[0:8], b.MetaPlusDataSize)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(b.K1)))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(b.K2)))
	binary.LittleEndian.PutUint32(buf[12:16], b.Bucket)
	binary.LittleEndian.PutUint32(buf[16:20], b.IomHash)
	buf[20] = byte(b.Behavior)
	buf[21] = byte(len(b.FnName))
	binary.LittleEndian.PutUint16(buf[22:24], uint16(len(b.FnArgs)))
	off := simpleFixedLen
	off += copy(buf[off:], b.K1)
	off += copy(buf[off:], b.K2)
	off += copy(buf[off:], b.FnName)
	copy(buf[off:], b.FnArgs)
	return buf, nil
}

func UnmarshalSimpleBody(buf []byte) (SimpleBody, error) {
	if len(buf) < simpleFixedLen {
		return SimpleBody{}, fmt.Errorf("kelpie: wire: simple body shorter than fixed struct")
	}
	k1n := binary.LittleEndian.Uint16(buf[8:10])
	k2n := binary.LittleEndian.Uint16(buf[10:12])
	fnNameN := uint16(buf[21])
	fnArgsN := binary.LittleEndian.Uint16(buf[22:24])
	need := simpleFixedLen + int(k1n) + int(k2n) + int(fnNameN) + int(fnArgsN)
	if k1n > 255 || k2n > 255 || need > len(buf) {
		return SimpleBody{}, fmt.Errorf("kelpie: wire: declared key/fn sizes outside received body")
	}
	b := SimpleBody{
		MetaPlusDataSize: binary.LittleEndian.Uint64(buf[0:8]),
		Bucket:           binary.LittleEndian.Uint32(buf[12:16]),
		IomHash:          binary.LittleEndian.Uint32(buf[16:20]),
		Behavior:         behavior.Flags(buf[20]),
	}
	off := simpleFixedLen
	b.K1 = string(buf[off : off+int(k1n)])
	off += int(k1n)
	b.K2 = string(buf[off : off+int(k2n)])
	off += int(k2n)
	b.FnName = string(buf[off : off+int(fnNameN)])
	off += int(fnNameN)
	b.FnArgs = append([]byte(nil), buf[off:off+int(fnArgsN)]...)
	return b, nil
}

// BufferBody adds a NetBufferRemote describing a pre-allocated landing
// (or source) buffer, used by Get-Bounded and Get-Unbounded's reply.
type BufferBody struct {
	NBR              NetBufferRemote
	MetaPlusDataSize uint64
	Bucket           uint32
	IomHash          uint32
	Behavior         behavior.Flags
	K1, K2           string
}

func (b BufferBody) Marshal() ([]byte, error) {
	if len(b.K1) > cmn.MaxKeyStringBytes || len(b.K2) > cmn.MaxKeyStringBytes {
		return nil, fmt.Errorf("kelpie: wire: key component exceeds %d bytes", cmn.MaxKeyStringBytes)
	}
	buf := make([]byte, bufferFixedLen+len(b.K1)+len(b.K2))
	off := 0
	off += copy(buf[off:], b.NBR[:])
	binary.LittleEndian.PutUint64(buf[off:off+8], b.MetaPlusDataSize)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(b.K1)))
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(b.K2)))
	off += 2
	binary.LittleEndian.PutUint32(buf[off:off+4], b.Bucket)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], b.IomHash)
	off += 4
	buf[off] = byte(b.Behavior)
	off++
	off += copy(buf[off:], b.K1)
	copy(buf[off:], b.K2)
	return buf, nil
}

func UnmarshalBufferBody(buf []byte) (BufferBody, error) {
	if len(buf) < bufferFixedLen {
		return BufferBody{}, fmt.Errorf("kelpie: wire: buffer body shorter than fixed struct")
	}
	var b BufferBody
	off := 0
	copy(b.NBR[:], buf[off:off+56])
	off += 56
	b.MetaPlusDataSize = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	k1n := binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	k2n := binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	b.Bucket = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	b.IomHash = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	b.Behavior = behavior.Flags(buf[off])
	off++
	if k1n > 255 || k2n > 255 || off+int(k1n)+int(k2n) > len(buf) {
		return BufferBody{}, fmt.Errorf("kelpie: wire: declared key sizes outside received body")
	}
	b.K1 = string(buf[off : off+int(k1n)])
	off += int(k1n)
	b.K2 = string(buf[off : off+int(k2n)])
	return b, nil
}

// ObjectInfoWire is the 24-byte on-wire form of object_info_t.
type ObjectInfoWire struct {
	RowUserBytes    uint64
	ColUserBytes    uint64
	RowNumColumns   uint16
	ColDependencies uint16
	ColAvailability uint8
	_pad            [3]byte
}

func (o ObjectInfoWire) Marshal() []byte {
	buf := make([]byte, ObjectInfoWireSize)
	binary.LittleEndian.PutUint64(buf[0:8], o.RowUserBytes)
	binary.LittleEndian.PutUint64(buf[8:16], o.ColUserBytes)
	binary.LittleEndian.PutUint16(buf[16:18], o.RowNumColumns)
	binary.LittleEndian.PutUint16(buf[18:20], o.ColDependencies)
	buf[20] = o.ColAvailability
	return buf
}

func UnmarshalObjectInfoWire(buf []byte) (ObjectInfoWire, error) {
	if len(buf) < ObjectInfoWireSize {
		return ObjectInfoWire{}, fmt.Errorf("kelpie: wire: object_info shorter than %d bytes", ObjectInfoWireSize)
	}
	return ObjectInfoWire{
		RowUserBytes:    binary.LittleEndian.Uint64(buf[0:8]),
		ColUserBytes:    binary.LittleEndian.Uint64(buf[8:16]),
		RowNumColumns:   binary.LittleEndian.Uint16(buf[16:18]),
		ColDependencies: binary.LittleEndian.Uint16(buf[18:20]),
		ColAvailability: buf[20],
	}, nil
}

// StatusBody is the reply shape: {success flag, remote_rc, object_info}.
type StatusBody struct {
	RemoteRC int32
	Info     ObjectInfoWire
}

func (s StatusBody) Marshal() []byte {
	buf := make([]byte, statusFixedLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.RemoteRC))
	copy(buf[4:], s.Info.Marshal())
	return buf
}

func UnmarshalStatusBody(buf []byte) (StatusBody, error) {
	if len(buf) < statusFixedLen {
		return StatusBody{}, fmt.Errorf("kelpie: wire: status body shorter than fixed struct")
	}
	info, err := UnmarshalObjectInfoWire(buf[4:])
	if err != nil {
		return StatusBody{}, err
	}
	return StatusBody{
		RemoteRC: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Info:     info,
	}, nil
}
