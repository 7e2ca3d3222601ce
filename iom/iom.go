// Package iom defines the pluggable persistent-backend interface
// (I/O Module) consumed opaquely by the rest of the core, per spec §6:
// WriteObject, ReadObject, GetInfo, Finish. Concrete drivers live
// under iom/driver/*.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package iom

import (
	"fmt"
	"sync"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// Hash is the iom_hash_t identifier type -- a djb2 hash of the IOM's
// configured name, the same hash rule Bucket uses (spec has no other
// hash specified for IOM names).
type Hash = uint32

// HashName hashes an IOM's configured name into its registry key.
func HashName(name string) Hash {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = (h<<5 + h) + uint32(name[i])
	}
	return h
}

// Driver is the interface every persistent backend implements.
type Driver interface {
	WriteObject(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject) cmn.RC
	ReadObject(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.RC)
	GetInfo(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC)
	Finish()
}

// Compressor is an optional capability: a driver implementing it
// reports whether it lz4-compresses objects inside its own
// WriteObject. The core never compresses on a driver's behalf.
type Compressor interface {
	Compress() bool
}

// ExistenceHint is an optional capability: a driver backed by a cuckoo
// filter (or similar) that can answer "definitely absent" without a
// round trip.
type ExistenceHint interface {
	MaybeHas(bucket cmn.Bucket, key cmn.Key) bool
}

// Lister is an optional capability: a driver that can enumerate its
// own persisted keys under a row/column pattern, so LocalKV's List
// (spec §4.4) can union persisted entries in alongside in-memory ones.
type Lister interface {
	ListObjects(bucket cmn.Bucket, keyPattern cmn.Key) ([]cmn.Key, []cmn.ObjectInfo, error)
}

// Registry is the process-wide name->driver map (spec §2, "IOM
// Registry"). Constructed once at bootstrap and held behind a
// dependency-injected handle.
type Registry struct {
	mu      sync.RWMutex
	drivers map[Hash]Driver
	names   map[Hash]string
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[Hash]Driver), names: make(map[Hash]string)}
}

// Register binds name's hash to driver; returns the hash callers
// should thread through Put/Get/List calls as iom_hash_t.
func (r *Registry) Register(name string, driver Driver) Hash {
	h := HashName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[h] = driver
	r.names[h] = name
	return h
}

func (r *Registry) Lookup(h Hash) (Driver, bool) {
	if h == 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[h]
	return d, ok
}

func (r *Registry) Name(h Hash) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[h]
}

// Stop calls Finish on every registered driver.
func (r *Registry) Stop() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.drivers {
		d.Finish()
	}
}

func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("iom.Registry{%d drivers}", len(r.drivers))
}
