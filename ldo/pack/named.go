package pack

import (
	"bytes"
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// NamedKeying selects how NamedBundle keys its entries on the wire:
// by a 32-bit hash of the name (compact, opaque) or by the name itself
// truncated to MaxTruncatedNameLen bytes (human-readable on the wire,
// at the cost of a few extra bytes and possible collisions on very
// long names).
type NamedKeying uint8

const (
	KeyedByHash NamedKeying = iota
	KeyedByTruncatedName
)

// MaxTruncatedNameLen bounds the KeyedByTruncatedName format.
const MaxTruncatedNameLen = 32

// NamedBundle is a keyed-name archive for variable payloads (Compute's
// function_args, a pool-join option set) backed by tinylib/msgp's
// streaming Writer/Reader rather than struct-tag codegen, since the
// key set is dynamic.
type NamedBundle struct {
	keying  NamedKeying
	entries []namedEntry
}

type namedEntry struct {
	name string
	key  uint32 // populated when keying == KeyedByHash
	val  []byte
}

func NewNamedBundle(keying NamedKeying) *NamedBundle {
	return &NamedBundle{keying: keying}
}

func djb2(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = (h<<5 + h) + uint32(s[i])
	}
	return h
}

func (n *NamedBundle) Set(name string, val []byte) {
	for i := range n.entries {
		if n.entries[i].name == name {
			n.entries[i].val = val
			return
		}
	}
	e := namedEntry{name: name, val: val}
	if n.keying == KeyedByHash {
		e.key = djb2(name)
	}
	n.entries = append(n.entries, e)
}

func (n *NamedBundle) Get(name string) ([]byte, bool) {
	for _, e := range n.entries {
		if e.name == name {
			return e.val, true
		}
	}
	return nil, false
}

func (n *NamedBundle) Names() []string {
	out := make([]string, len(n.entries))
	for i, e := range n.entries {
		out[i] = e.name
	}
	return out
}

// Marshal writes the bundle as a msgpack map: {key -> value}, where
// key is either the hash (uint32) or the truncated name (string),
// per n.keying.
func (n *NamedBundle) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := w.WriteMapHeader(uint32(len(n.entries))); err != nil {
		return nil, fmt.Errorf("kelpie: named bundle: %w", err)
	}
	for _, e := range n.entries {
		switch n.keying {
		case KeyedByHash:
			if err := w.WriteUint32(e.key); err != nil {
				return nil, err
			}
		default:
			name := e.name
			if len(name) > MaxTruncatedNameLen {
				name = name[:MaxTruncatedNameLen]
			}
			if err := w.WriteString(name); err != nil {
				return nil, err
			}
		}
		if err := w.WriteBytes(e.val); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("kelpie: named bundle: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalNamedBundle parses a bundle written by Marshal. Entries
// keyed by hash come back with empty Name (the hash cannot be
// reversed); callers that need the name must look it up by hash
// themselves (e.g. against a known function registry).
func UnmarshalNamedBundle(keying NamedKeying, b []byte) (*NamedBundle, error) {
	r := msgp.NewReader(bytes.NewReader(b))
	count, err := r.ReadMapHeader()
	if err != nil {
		return nil, fmt.Errorf("kelpie: named bundle: reading map header: %w", err)
	}
	nb := &NamedBundle{keying: keying, entries: make([]namedEntry, 0, count)}
	for i := uint32(0); i < count; i++ {
		var e namedEntry
		switch keying {
		case KeyedByHash:
			key, err := r.ReadUint32()
			if err != nil {
				return nil, fmt.Errorf("kelpie: named bundle: reading key %d: %w", i, err)
			}
			e.key = key
		default:
			name, err := r.ReadString()
			if err != nil {
				return nil, fmt.Errorf("kelpie: named bundle: reading name %d: %w", i, err)
			}
			e.name = name
		}
		val, err := r.ReadBytes(nil)
		if err != nil {
			return nil, fmt.Errorf("kelpie: named bundle: reading value %d: %w", i, err)
		}
		e.val = val
		nb.entries = append(nb.entries, e)
	}
	return nb, nil
}

// GetByHash looks up a KeyedByHash entry directly, without needing the
// original name (the wire form only ever carried the hash).
func (n *NamedBundle) GetByHash(hash uint32) ([]byte, bool) {
	for _, e := range n.entries {
		if e.key == hash {
			return e.val, true
		}
	}
	return nil, false
}

// HashOf exposes the same djb2 function used for KeyedByHash keys so
// callers can compute a lookup hash for GetByHash.
func HashOf(name string) uint32 { return djb2(name) }
