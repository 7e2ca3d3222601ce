package wire

import (
	"encoding/binary"
	"fmt"
)

// ListEntryWire is one row of a List reply: a key plus its size and
// availability, packed the same way SimpleBody packs key strings.
type ListEntryWire struct {
	K1, K2       string
	Size         uint64
	Availability uint8
}

// ListBody is the reply shape for spec §4.5 List: a count-prefixed run
// of ListEntryWire rows.
type ListBody struct {
	Entries []ListEntryWire
}

func (b ListBody) Marshal() ([]byte, error) {
	size := 4
	for _, e := range b.Entries {
		if len(e.K1) > 255 || len(e.K2) > 255 {
			return nil, fmt.Errorf("kelpie: wire: list entry key component exceeds 255 bytes")
		}
		size += 2 + 1 + len(e.K1) + len(e.K2) + 8 + 1
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(b.Entries)))
	off := 4
	for _, e := range b.Entries {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(e.K1)))
		off += 2
		buf[off] = byte(len(e.K2))
		off++
		off += copy(buf[off:], e.K1)
		off += copy(buf[off:], e.K2)
		binary.LittleEndian.PutUint64(buf[off:off+8], e.Size)
		off += 8
		buf[off] = e.Availability
		off++
	}
	return buf, nil
}

func UnmarshalListBody(buf []byte) (ListBody, error) {
	if len(buf) < 4 {
		return ListBody{}, fmt.Errorf("kelpie: wire: list body shorter than count prefix")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	entries := make([]ListEntryWire, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+3 > len(buf) {
			return ListBody{}, fmt.Errorf("kelpie: wire: list body truncated at entry %d", i)
		}
		k1n := int(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
		k2n := int(buf[off])
		off++
		if off+k1n+k2n+9 > len(buf) {
			return ListBody{}, fmt.Errorf("kelpie: wire: list body truncated at entry %d", i)
		}
		k1 := string(buf[off : off+k1n])
		off += k1n
		k2 := string(buf[off : off+k2n])
		off += k2n
		size := binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
		avail := buf[off]
		off++
		entries = append(entries, ListEntryWire{K1: k1, K2: k2, Size: size, Availability: avail})
	}
	return ListBody{Entries: entries}, nil
}
