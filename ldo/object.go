package ldo

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sandialabs/faodel-sub003/cmn/atomic"
	"github.com/sandialabs/faodel-sub003/cmn/debug"
)

// HeaderSize is the fixed, on-wire header: {tag:u16, meta_size:u16,
// data_size:u32}, little-endian, 8 bytes (spec §3).
const HeaderSize = 8

const (
	MaxMetaSize = 0xFFFF              // meta_size <= 65535
	MaxDataSize = 0xFFFFFFFF          // data_size <= 2^32-1
)

// header is the bit-exact on-wire/on-disk layout.
type header struct {
	Tag      uint16
	MetaSize uint16
	DataSize uint32
}

func encodeHeader(h header, b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.Tag)
	binary.LittleEndian.PutUint16(b[2:4], h.MetaSize)
	binary.LittleEndian.PutUint32(b[4:8], h.DataSize)
}

func decodeHeader(b []byte) header {
	return header{
		Tag:      binary.LittleEndian.Uint16(b[0:2]),
		MetaSize: binary.LittleEndian.Uint16(b[2:4]),
		DataSize: binary.LittleEndian.Uint32(b[4:8]),
	}
}

// localHeader is never transmitted: it holds the atomic refcount and
// the transport's pin cookie.
type localHeader struct {
	refcount  atomic.Int32
	allocator *Allocator
	cookie    uintptr
	pinned    bool
	freeFn    func()
}

// alloc is the shared, refcounted allocation backing one or more
// DataObject handles. Copies of a DataObject increment refcount; the
// last reference releases the buffer back to the allocator.
type alloc struct {
	local localHeader
	buf   []byte // header(8) || meta || data, contiguous for allocator-owned LDOs
	cap   uint32 // user_capacity: max meta+data

	// set only for DataObjects wrapping caller-provided, possibly
	// non-contiguous memory (spec §4.1 constructor 3).
	userMeta []byte
	userData []byte
	isUser   bool
}

// DataObject (LDO) is an owning handle to an alloc. The zero value is
// a "null" LDO (IsNull() == true).
type DataObject struct {
	a *alloc
}

// New allocates a contiguous {header, meta, data} buffer sized to
// meta+data and fills in the header. allocator may be nil for
// DefaultAllocator.
func New(metaCap uint16, dataCap uint32, allocator *Allocator, tag uint16) (DataObject, error) {
	return NewWithCapacity(uint32(metaCap)+dataCap, metaCap, dataCap, allocator, tag)
}

// NewWithCapacity reserves capacity >= meta+data, for later growth via
// ModifyUserSizes.
func NewWithCapacity(capacity uint32, metaSize uint16, dataSize uint32, allocator *Allocator, tag uint16) (DataObject, error) {
	if uint32(metaSize)+dataSize > capacity {
		return DataObject{}, fmt.Errorf("kelpie: ldo capacity %d too small for meta=%d data=%d", capacity, metaSize, dataSize)
	}
	if allocator == nil {
		allocator = DefaultAllocator
	}
	buf := allocator.alloc(int(HeaderSize + capacity))
	encodeHeader(header{Tag: tag, MetaSize: metaSize, DataSize: dataSize}, buf)
	a := &alloc{buf: buf, cap: capacity}
	a.local.allocator = allocator
	a.local.refcount.Store(1)
	cookie, err := allocator.pin(buf[:HeaderSize+uint32(metaSize)+dataSize])
	if err != nil {
		return DataObject{}, fmt.Errorf("kelpie: pinning ldo: %w", err)
	}
	a.local.cookie = cookie
	a.local.pinned = true
	return DataObject{a: a}, nil
}

// Wrap builds an LDO around caller-owned memory. If userMeta and
// userData are not contiguous, the LDO is recorded as two RDMA
// segments (see GetRdmaHandles). freeFn, if non-nil, is called on
// final release instead of returning the buffer to an allocator.
func Wrap(userMeta, userData []byte, freeFn func()) DataObject {
	a := &alloc{isUser: true, userMeta: userMeta, userData: userData}
	a.local.freeFn = freeFn
	a.local.refcount.Store(1)
	a.cap = uint32(len(userMeta) + len(userData))
	return DataObject{a: a}
}

func (d DataObject) IsNull() bool { return d.a == nil }

// Copy increments the refcount and returns a second handle to the
// same allocation.
func (d DataObject) Copy() DataObject {
	if d.IsNull() {
		return DataObject{}
	}
	d.a.local.refcount.Inc()
	return DataObject{a: d.a}
}

// Release decrements the refcount. At zero, the buffer returns to the
// allocator that produced it (or freeFn runs, for wrapped memory).
func (d *DataObject) Release() {
	if d.IsNull() {
		return
	}
	a := d.a
	d.a = nil
	if a.local.refcount.Dec() > 0 {
		return
	}
	if a.local.pinned && a.local.allocator != nil {
		a.local.allocator.unpin(a.local.cookie)
	}
	if a.isUser && a.local.freeFn != nil {
		a.local.freeFn()
	}
}

func (d DataObject) head() header {
	debug.Assert(!d.IsNull(), "head() on null ldo")
	if d.a.isUser {
		return header{MetaSize: uint16(len(d.a.userMeta)), DataSize: uint32(len(d.a.userData))}
	}
	return decodeHeader(d.a.buf)
}

func (d DataObject) GetTag() uint16      { return d.head().Tag }
func (d DataObject) GetMetaSize() uint32 { return uint32(d.head().MetaSize) }
func (d DataObject) GetDataSize() uint32 { return d.head().DataSize }
func (d DataObject) GetUserSize() uint32 { return d.GetMetaSize() + d.GetDataSize() }
func (d DataObject) GetWireSize() uint32 { return HeaderSize + d.GetUserSize() }
func (d DataObject) GetUserCapacity() uint32 {
	if d.IsNull() {
		return 0
	}
	return d.a.cap
}

func (d *DataObject) SetTag(tag uint16) {
	debug.Assert(!d.IsNull() && !d.a.isUser, "SetTag on null or user ldo")
	h := decodeHeader(d.a.buf)
	h.Tag = tag
	encodeHeader(h, d.a.buf)
}

// ModifyUserSizes succeeds iff newMeta+newData <= capacity; it does
// not mutate on overflow.
func (d *DataObject) ModifyUserSizes(newMeta uint16, newData uint32) error {
	debug.Assert(!d.IsNull(), "ModifyUserSizes on null ldo")
	if d.a.isUser {
		return fmt.Errorf("kelpie: cannot resize a user-memory ldo")
	}
	if uint32(newMeta)+newData > d.a.cap {
		return fmt.Errorf("kelpie: %w: meta=%d data=%d exceeds capacity=%d", errOverflow, newMeta, newData, d.a.cap)
	}
	h := decodeHeader(d.a.buf)
	h.MetaSize, h.DataSize = newMeta, newData
	encodeHeader(h, d.a.buf)
	return nil
}

var errOverflow = fmt.Errorf("ldo capacity overflow")

// GetBasePtr, GetMetaPtr, GetDataPtr return slices aliasing the
// underlying buffer (Go's answer to "typed pointers").
func (d DataObject) GetBasePtr() []byte {
	debug.Assert(!d.IsNull(), "GetBasePtr on null ldo")
	if d.a.isUser {
		return append(append([]byte(nil), d.a.userMeta...), d.a.userData...)
	}
	return d.a.buf[:d.GetWireSize()]
}

func (d DataObject) GetMetaPtr() []byte {
	debug.Assert(!d.IsNull(), "GetMetaPtr on null ldo")
	if d.a.isUser {
		return d.a.userMeta
	}
	h := decodeHeader(d.a.buf)
	return d.a.buf[HeaderSize : HeaderSize+uint32(h.MetaSize)]
}

func (d DataObject) GetDataPtr() []byte {
	debug.Assert(!d.IsNull(), "GetDataPtr on null ldo")
	if d.a.isUser {
		return d.a.userData
	}
	h := decodeHeader(d.a.buf)
	start := HeaderSize + uint32(h.MetaSize)
	return d.a.buf[start : start+h.DataSize]
}

// DeepCompare reports 0 when d and o have identical tag, meta, and
// data content (spec §8 round-trip property).
func (d DataObject) DeepCompare(o DataObject) int {
	if d.IsNull() != o.IsNull() {
		return -1
	}
	if d.IsNull() {
		return 0
	}
	if d.GetTag() != o.GetTag() {
		return -1
	}
	dm, om := d.GetMetaPtr(), o.GetMetaPtr()
	if len(dm) != len(om) {
		return -1
	}
	for i := range dm {
		if dm[i] != om[i] {
			return -1
		}
	}
	dd, od := d.GetDataPtr(), o.GetDataPtr()
	if len(dd) != len(od) {
		return -1
	}
	for i := range dd {
		if dd[i] != od[i] {
			return -1
		}
	}
	return 0
}

// RefCount is exposed for tests/diagnostics only.
func (d DataObject) RefCount() int32 {
	if d.IsNull() {
		return 0
	}
	return d.a.local.refcount.Load()
}

// WriteToFile writes exactly {header, meta, data} -- bit-exact for a
// later ReadFromFile/LoadFromFile round trip.
func (d DataObject) WriteToFile(filename string) (int, error) {
	f, err := os.Create(filename)
	if err != nil {
		return 0, fmt.Errorf("kelpie: writeToFile: %w", err)
	}
	defer f.Close()
	var hb [HeaderSize]byte
	encodeHeader(d.head(), hb[:])
	n, err := f.Write(hb[:])
	if err != nil {
		return n, err
	}
	nm, err := f.Write(d.GetMetaPtr())
	n += nm
	if err != nil {
		return n, err
	}
	nd, err := f.Write(d.GetDataPtr())
	n += nd
	return n, err
}

// ReadFromFile overwrites d's meta/data content in place; the
// capacities must already match (mirrors the C++ deepcopy-style
// in-place read). Use LoadFromFile to build a fresh LDO instead.
func (d *DataObject) ReadFromFile(filename string) error {
	loaded, err := LoadFromFile(filename)
	if err != nil {
		return err
	}
	if d.GetUserCapacity() < loaded.GetUserSize() {
		return fmt.Errorf("kelpie: readFromFile: destination capacity %d too small for %d bytes", d.GetUserCapacity(), loaded.GetUserSize())
	}
	if err := d.ModifyUserSizes(uint16(loaded.GetMetaSize()), loaded.GetDataSize()); err != nil {
		return err
	}
	copy(d.GetMetaPtr(), loaded.GetMetaPtr())
	copy(d.GetDataPtr(), loaded.GetDataPtr())
	d.SetTag(loaded.GetTag())
	return nil
}

// FromBytes rebuilds an LDO from an exact {header, meta, data} image --
// the same layout WriteToFile/LoadFromFile use -- for callers that
// already hold the bytes in memory (an IOM driver reading an object
// back from S3, Azure, GCS, HDFS, or an embedded KV store) instead of
// a local file.
func FromBytes(buf []byte) (DataObject, error) {
	if len(buf) < HeaderSize {
		return DataObject{}, fmt.Errorf("kelpie: ldo.FromBytes: buffer shorter than header")
	}
	h := decodeHeader(buf)
	if len(buf) != int(HeaderSize)+int(h.MetaSize)+int(h.DataSize) {
		return DataObject{}, fmt.Errorf("kelpie: ldo.FromBytes: length %d does not match header sizes meta=%d data=%d", len(buf), h.MetaSize, h.DataSize)
	}
	d, err := New(h.MetaSize, h.DataSize, DefaultAllocator, h.Tag)
	if err != nil {
		return DataObject{}, err
	}
	metaStart := HeaderSize
	dataStart := HeaderSize + uint32(h.MetaSize)
	copy(d.GetMetaPtr(), buf[metaStart:dataStart])
	copy(d.GetDataPtr(), buf[dataStart:])
	return d, nil
}

// LoadFromFile rebuilds an LDO by reading the header first and sizing
// the allocation accordingly.
func LoadFromFile(filename string) (DataObject, error) {
	f, err := os.Open(filename)
	if err != nil {
		return DataObject{}, fmt.Errorf("kelpie: loadFromFile: %w", err)
	}
	defer f.Close()
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(f, hb[:]); err != nil {
		return DataObject{}, fmt.Errorf("kelpie: loadFromFile: reading header: %w", err)
	}
	h := decodeHeader(hb[:])
	d, err := New(h.MetaSize, h.DataSize, DefaultAllocator, h.Tag)
	if err != nil {
		return DataObject{}, err
	}
	if _, err := io.ReadFull(f, d.GetMetaPtr()); err != nil {
		return DataObject{}, fmt.Errorf("kelpie: loadFromFile: reading meta: %w", err)
	}
	if _, err := io.ReadFull(f, d.GetDataPtr()); err != nil {
		return DataObject{}, fmt.Errorf("kelpie: loadFromFile: reading data: %w", err)
	}
	return d, nil
}
