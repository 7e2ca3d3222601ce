// Package localkv implements the LKV described in spec §4.4: a map of
// (bucket, row) to Row, each row owning a mutex-guarded set of named
// cells. Put/Get/WantLocal/Drop/List/Info all funnel through a row's
// mutex so that, for a given (bucket, row), at most one goroutine
// executes cell logic at a time.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package localkv

import (
	"time"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// WantCallback is invoked exactly once per WantLocal registration:
// either directly (if the data was already present) or later, off a
// row's dispatch, once the cell becomes available.
type WantCallback func(success bool, key cmn.Key, obj ldo.DataObject, info cmn.ObjectInfo)

// waiter is one outstanding request against a not-yet-available cell:
// either a remote op waiting to be triggered via its mailbox, or a
// local WantLocal callback.
type waiter struct {
	mailbox  uint64 // 0 if this is a local callback waiter
	callback WantCallback
}

// Cell is one (row, column) slot. Every field is only ever touched
// while the owning Row's mutex is held.
type Cell struct {
	Availability cmn.Availability
	LDO          ldo.DataObject

	waiters []waiter

	dropRequested bool

	timePosted   time.Time
	timeAccessed time.Time

	iomHash uint32 // nonzero if this cell was published with WriteToIOM
}

// isEmpty reports whether the cell carries no data, no pending
// waiters, and no drop request -- i.e. it can be removed from its Row
// outright instead of kept as a placeholder.
func (c *Cell) isEmpty() bool {
	return c.Availability == cmn.Unavailable && len(c.waiters) == 0 && !c.dropRequested
}

// touch refreshes the cell's access timestamp under the row lock.
func (c *Cell) touch() { c.timeAccessed = time.Now() }

// info builds the object_info_t for this single column (spec §4.4
// Info, column form).
func (c *Cell) info() cmn.ObjectInfo {
	info := cmn.ObjectInfo{ColAvailability: c.Availability}
	if !c.LDO.IsNull() {
		info.ColUserBytes = uint64(c.LDO.GetUserSize())
	}
	return info
}
