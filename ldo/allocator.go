// Package ldo implements the DataObject (LDO): a reference-counted
// {header, meta, data} memory segment whose on-wire layout is
// bit-exact and whose memory is registered with a network transport
// for zero-copy RDMA, per spec §3/§4.1.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ldo

// AllocatorType selects when a DataObject's wire segment is pinned
// with the network transport.
type AllocatorType uint8

const (
	// Eager pins at allocation time.
	Eager AllocatorType = iota
	// Lazy pins on first RDMA use.
	Lazy
)

// PinFunc registers a memory region with the network transport and
// returns an opaque cookie the transport later needs to unpin it.
// RegisterRecvCallback-style transports plug in here at bootstrap
// (spec §5 "Registered memory").
type PinFunc func(base []byte) (cookie uintptr, err error)

// UnpinFunc releases a previously pinned region.
type UnpinFunc func(cookie uintptr)

// Allocator is the pluggable memory source for DataObjects. The
// default allocator simply uses make([]byte, n) and a no-op
// pin/unpin; a real RDMA-capable deployment supplies Pin/Unpin that
// call into the transport's memory registration.
type Allocator struct {
	Pin   PinFunc
	Unpin UnpinFunc
}

// DefaultAllocator never registers memory with a transport; it is
// sufficient for intra-process use and for tests.
var DefaultAllocator = &Allocator{
	Pin:   func([]byte) (uintptr, error) { return 0, nil },
	Unpin: func(uintptr) {},
}

func (a *Allocator) alloc(n int) []byte { return make([]byte, n) }

func (a *Allocator) pin(b []byte) (uintptr, error) {
	if a.Pin == nil {
		return 0, nil
	}
	return a.Pin(b)
}

func (a *Allocator) unpin(cookie uintptr) {
	if a.Unpin != nil {
		a.Unpin(cookie)
	}
}
