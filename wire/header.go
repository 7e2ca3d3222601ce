// Package wire implements the bit-exact message envelopes that cross
// the network between OpEngines: a fixed 44-byte header common to
// every envelope, plus one of four body shapes (simple, buffer,
// status, list), per spec §6.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/sandialabs/faodel-sub003/cmn"
)

// HeaderSize is the fixed message header shared by every envelope.
const HeaderSize = 44

// Command selectors packed into UserFlags bits [7:4] when IsCommand is set.
type Command uint8

const (
	CmdCompute     Command = 0x8
	CmdPublish     Command = 0x9
	CmdGetBounded  Command = 0xA
	CmdGetUnbounded Command = 0xB
	CmdGetColInfo  Command = 0xC
	CmdGetRowInfo  Command = 0xD
	CmdList        Command = 0xE
	CmdDrop        Command = 0xF
)

// UserFlags bit layout.
const (
	FlagIsCommand uint16 = 0x80
	FlagStatusAck uint16 = 0x01
	FlagStatusNak uint16 = 0x02
	FlagCanStall  uint16 = 0x04
	FlagIsSuccess uint16 = 0x08
)

// Header is the fixed 44-byte prefix common to every envelope.
type Header struct {
	Src         cmn.NodeID
	Dst         cmn.NodeID
	SrcMailbox  uint64
	DstMailbox  uint64 // 0 = new target-side op
	OpID        uint32 // stable hash of the op class name
	UserFlags   uint16
	_reserved   uint16
	BodyLen     uint32
}

func (h Header) IsCommand() bool  { return h.UserFlags&FlagIsCommand != 0 }
func (h Header) Command() Command { return Command((h.UserFlags >> 4) & 0xF) }
func (h Header) IsSuccess() bool  { return h.UserFlags&FlagIsSuccess != 0 }
func (h Header) CanStall() bool   { return h.UserFlags&FlagCanStall != 0 }
func (h Header) IsAck() bool      { return !h.IsCommand() && h.UserFlags&FlagStatusAck != 0 }
func (h Header) IsNak() bool      { return !h.IsCommand() && h.UserFlags&FlagStatusNak != 0 }

func MakeCommandFlags(cmd Command, canStall bool) uint16 {
	f := FlagIsCommand | uint16(cmd)<<4
	if canStall {
		f |= FlagCanStall
	}
	return f
}

func MakeStatusFlags(ack bool, success bool) uint16 {
	var f uint16
	if ack {
		f |= FlagStatusAck
	} else {
		f |= FlagStatusNak
	}
	if success {
		f |= FlagIsSuccess
	}
	return f
}

func EncodeHeader(h Header, b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(h.Src))
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.Dst))
	binary.LittleEndian.PutUint64(b[16:24], h.SrcMailbox)
	binary.LittleEndian.PutUint64(b[24:32], h.DstMailbox)
	binary.LittleEndian.PutUint32(b[32:36], h.OpID)
	binary.LittleEndian.PutUint16(b[36:38], h.UserFlags)
	binary.LittleEndian.PutUint16(b[38:40], 0)
	binary.LittleEndian.PutUint32(b[40:44], h.BodyLen)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("kelpie: wire: header too short: %d < %d", len(b), HeaderSize)
	}
	h := Header{
		Src:        cmn.NodeID(binary.LittleEndian.Uint64(b[0:8])),
		Dst:        cmn.NodeID(binary.LittleEndian.Uint64(b[8:16])),
		SrcMailbox: binary.LittleEndian.Uint64(b[16:24]),
		DstMailbox: binary.LittleEndian.Uint64(b[24:32]),
		OpID:       binary.LittleEndian.Uint32(b[32:36]),
		UserFlags:  binary.LittleEndian.Uint16(b[36:38]),
		BodyLen:    binary.LittleEndian.Uint32(b[40:44]),
	}
	return h, nil
}

// OpIDOf is the "stable hash of the op class name" the spec calls for
// (§6); djb2 keeps it consistent with Bucket's hashing rule since no
// other hash function is specified for op_id.
func OpIDOf(opClassName string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(opClassName); i++ {
		h = (h<<5 + h) + uint32(opClassName[i])
	}
	return h
}
