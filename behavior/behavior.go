// Package behavior defines the 8-bit pool_behavior_t flags that
// control how Put/Get calls touch local memory, remote memory, and
// the IOM layer, per spec §4.6.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package behavior

type Flags uint8

const (
	WriteToLocal     Flags = 1 << 0
	WriteToRemote    Flags = 1 << 1
	WriteToIOM       Flags = 1 << 2
	ReadToLocal      Flags = 1 << 3
	ReadToRemote     Flags = 1 << 4
	EnableOverwrites Flags = 1 << 7
)

// Named presets composing the bits above (spec §4.6).
const (
	DefaultLocal  = WriteToLocal | ReadToLocal
	DefaultRemote = WriteToRemote | ReadToLocal
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// RebaseToRemote translates flags for use on the remote side of an
// op: ReadToRemote becomes ReadToLocal and WriteToRemote becomes
// WriteToLocal before use, since from the remote's point of view its
// own memory is local (spec §4.6, "rebase to remote's frame").
func (f Flags) RebaseToRemote() Flags {
	out := f &^ (ReadToRemote | WriteToRemote)
	if f.Has(ReadToRemote) {
		out |= ReadToLocal
	}
	if f.Has(WriteToRemote) {
		out |= WriteToLocal
	}
	return out
}

func (f Flags) String() string {
	s := ""
	add := func(bit Flags, name string) {
		if f.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(WriteToLocal, "WriteToLocal")
	add(WriteToRemote, "WriteToRemote")
	add(WriteToIOM, "WriteToIOM")
	add(ReadToLocal, "ReadToLocal")
	add(ReadToRemote, "ReadToRemote")
	add(EnableOverwrites, "EnableOverwrites")
	if s == "" {
		return "none"
	}
	return s
}
