package localkv

import (
	"strings"
	"sync"
	"time"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// Row is the set of cells sharing a bucket+row name. colSingle holds
// the cell addressed by an empty column name; it is kept separate from
// cols so the common "one object per row" case never touches the map.
type Row struct {
	mu sync.Mutex

	name      string
	colSingle *Cell
	cols      map[string]*Cell
}

func newRow(name string) *Row {
	return &Row{name: name}
}

// cell returns the cell at col, creating it if create is true.
func (r *Row) cell(col string, create bool) *Cell {
	if col == "" {
		if r.colSingle == nil && create {
			r.colSingle = &Cell{}
		}
		return r.colSingle
	}
	if r.cols == nil {
		if !create {
			return nil
		}
		r.cols = make(map[string]*Cell)
	}
	c, ok := r.cols[col]
	if !ok {
		if !create {
			return nil
		}
		c = &Cell{}
		r.cols[col] = c
	}
	return c
}

// deleteCellLocked removes col from the row once its cell is empty.
func (r *Row) deleteCellLocked(col string) {
	if col == "" {
		r.colSingle = nil
		return
	}
	delete(r.cols, col)
}

// forEachLocked visits every (col, cell) pair currently present.
func (r *Row) forEachLocked(fn func(col string, c *Cell)) {
	if r.colSingle != nil {
		fn("", r.colSingle)
	}
	for col, c := range r.cols {
		fn(col, c)
	}
}

// put applies spec §4.4 Put to one cell, returning the waiters that
// must be dispatched (the caller hands these to the background worker
// outside the row lock) and the info to report back to the caller.
func (r *Row) put(col string, obj ldo.DataObject, overwrite bool, iomHash uint32) (dispatch []waiter, info cmn.ObjectInfo, rc cmn.RC) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cell(col, true)
	if c.Availability == cmn.InLocalMemory && !overwrite {
		return nil, c.info(), cmn.RCEExist
	}

	now := time.Now()
	c.LDO = obj
	c.Availability = cmn.InLocalMemory
	c.iomHash = iomHash
	if c.timePosted.IsZero() {
		c.timePosted = now
	}
	c.timeAccessed = now

	dispatch = c.waiters
	c.waiters = nil

	return dispatch, c.info(), cmn.RCOk
}

// get implements the local-only Get variant (spec §4.4 Get,
// "local-only caller" branch): no waiter registration, ENOENT if
// absent or not yet available.
func (r *Row) get(col string) (ldo.DataObject, cmn.ObjectInfo, cmn.RC) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cell(col, false)
	if c == nil || c.Availability != cmn.InLocalMemory {
		return ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCENoEnt
	}
	c.touch()
	return c.LDO.Copy(), c.info(), cmn.RCOk
}

// getOrWait implements the "for op" Get variant: if available, returns
// the LDO immediately; otherwise registers mailbox as a waiter on a
// newly-or-already Requested cell and reports RCWaiting.
func (r *Row) getOrWait(col string, mailbox uint64) (ldo.DataObject, cmn.ObjectInfo, cmn.RC) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cell(col, true)
	if c.Availability == cmn.InLocalMemory {
		c.touch()
		return c.LDO.Copy(), c.info(), cmn.RCOk
	}
	c.Availability = cmn.Requested
	c.waiters = append(c.waiters, waiter{mailbox: mailbox})
	return ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCWaiting
}

// wantLocal implements WantLocal (spec §4.4): if the cell is already
// available the callback fires immediately (caller is expected to hand
// this off the row lock via the background worker); otherwise the
// callback is queued on the cell's waiter list.
func (r *Row) wantLocal(col string, createIfMissing bool, cb WantCallback) (immediate *waiter, waiting bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cell(col, createIfMissing)
	if c == nil {
		return nil, false
	}
	if c.Availability == cmn.InLocalMemory {
		c.touch()
		return &waiter{callback: cb}, false
	}
	if c.Availability == cmn.Unavailable {
		c.Availability = cmn.Requested
	}
	c.waiters = append(c.waiters, waiter{callback: cb})
	return nil, true
}

// drop implements spec §4.4 Drop for a single (non-wildcard) column.
// A cell with outstanding waiters survives with dropRequested set;
// any other cell is removed from the row. dropped reports whether the
// column existed.
func (r *Row) drop(col string) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cell(col, false)
	if c == nil {
		return false
	}
	if len(c.waiters) > 0 {
		c.dropRequested = true
		return true
	}
	r.deleteCellLocked(col)
	return true
}

// dropPrefix drops every column whose name has the given prefix (the
// wildcard form of Drop).
func (r *Row) dropPrefix(prefix string) (dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var toDelete []string
	r.forEachLocked(func(col string, c *Cell) {
		if !strings.HasPrefix(col, prefix) {
			return
		}
		if len(c.waiters) > 0 {
			c.dropRequested = true
			dropped++
			return
		}
		toDelete = append(toDelete, col)
		dropped++
	})
	for _, col := range toDelete {
		r.deleteCellLocked(col)
	}
	return dropped
}

// matchesCol reports whether col satisfies pattern: an empty pattern
// matches every column, a trailing '*' matches by prefix, anything
// else requires an exact match (spec §4.4: "wildcards match by prefix
// only; trailing * required, no regex").
func matchesCol(col, pattern string) bool {
	if pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(col, pattern[:len(pattern)-1])
	}
	return col == pattern
}

// info implements spec §4.4 Info, row form: an aggregate over every
// matching column.
func (r *Row) info(colPattern string) cmn.ObjectInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out cmn.ObjectInfo
	first := true
	r.forEachLocked(func(col string, c *Cell) {
		if !matchesCol(col, colPattern) {
			return
		}
		out.RowNumColumns++
		ci := c.info()
		out.RowUserBytes += ci.ColUserBytes
		if first {
			out.ColAvailability = ci.ColAvailability
			first = false
		} else if out.ColAvailability != ci.ColAvailability {
			out.ColAvailability = cmn.MixedConditions
		}
	})
	return out
}

// list implements the per-row half of spec §4.4 List: every (key,
// size) pair whose column matches colPattern.
func (r *Row) list(bucket cmn.Bucket, colPattern string) []ListEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ListEntry
	r.forEachLocked(func(col string, c *Cell) {
		if !matchesCol(col, colPattern) {
			return
		}
		out = append(out, ListEntry{Bucket: bucket, Key: cmn.NewKey2(r.name, col), Size: uint64(c.info().ColUserBytes), Availability: c.Availability})
	})
	return out
}

// ListEntry is one row of spec §4.4 List's output.
type ListEntry struct {
	Bucket       cmn.Bucket
	Key          cmn.Key
	Size         uint64
	Availability cmn.Availability
}
