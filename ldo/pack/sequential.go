// Package pack implements the two concrete archive formats that
// replace the original's template-per-serialization "archive" pattern
// (spec §9): a length-prefixed SequentialBundle for streaming data
// (ObjectCapacities, Drop NACK payloads), and a msgp-backed NamedBundle
// for keyed-by-name payloads (Compute function args, pool-join option
// sets).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SequentialBundle writes/reads a simple length-prefixed stream of
// byte strings: [u32 count][u32 len, bytes]*count.
type SequentialBundle struct {
	items [][]byte
}

func NewSequentialBundle() *SequentialBundle { return &SequentialBundle{} }

func (s *SequentialBundle) Add(item []byte) { s.items = append(s.items, item) }

func (s *SequentialBundle) AddString(item string) { s.Add([]byte(item)) }

func (s *SequentialBundle) Items() [][]byte { return s.items }

func (s *SequentialBundle) Marshal() []byte {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(s.items)))
	buf.Write(hdr[:])
	for _, it := range s.items {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(it)))
		buf.Write(hdr[:])
		buf.Write(it)
	}
	return buf.Bytes()
}

func UnmarshalSequentialBundle(b []byte) (*SequentialBundle, error) {
	r := bytes.NewReader(b)
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("kelpie: sequential bundle: reading count: %w", err)
	}
	count := binary.LittleEndian.Uint32(hdr[:])
	sb := &SequentialBundle{items: make([][]byte, 0, count)}
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("kelpie: sequential bundle: reading item %d length: %w", i, err)
		}
		n := binary.LittleEndian.Uint32(hdr[:])
		item := make([]byte, n)
		if _, err := io.ReadFull(r, item); err != nil {
			return nil, fmt.Errorf("kelpie: sequential bundle: reading item %d: %w", i, err)
		}
		sb.items = append(sb.items, item)
	}
	return sb, nil
}
