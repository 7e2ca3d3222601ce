package ldo

import "github.com/sandialabs/faodel-sub003/cmn/debug"

// RdmaSegment describes one registered memory region a transport can
// target: {handle, offset, size}.
type RdmaSegment struct {
	Handle uintptr
	Offset uint32
	Size   uint32
}

// GetRdmaHandles enumerates 1 segment for an allocator-owned
// (contiguous) LDO, or 2 for an LDO wrapping non-contiguous
// caller-supplied meta/data buffers (spec §4.1).
func (d DataObject) GetRdmaHandles() []RdmaSegment {
	debug.Assert(!d.IsNull(), "GetRdmaHandles on null ldo")
	if !d.a.isUser {
		return []RdmaSegment{{Handle: d.a.local.cookie, Offset: 0, Size: d.GetWireSize()}}
	}
	segs := make([]RdmaSegment, 0, 2)
	if len(d.a.userMeta) > 0 {
		segs = append(segs, RdmaSegment{Handle: d.a.local.cookie, Offset: 0, Size: uint32(len(d.a.userMeta))})
	}
	if len(d.a.userData) > 0 {
		segs = append(segs, RdmaSegment{Handle: d.a.local.cookie, Offset: uint32(len(d.a.userMeta)), Size: uint32(len(d.a.userData))})
	}
	return segs
}

// IsPinned reports whether the wire segment has been registered with
// the transport.
func (d DataObject) IsPinned() bool {
	if d.IsNull() {
		return false
	}
	return d.a.local.pinned
}
