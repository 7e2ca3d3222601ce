package localkv

import (
	"strings"
	"sync"

	"github.com/sandialabs/faodel-sub003/backburner"
	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/iom"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// bucketRowKey is the LKV's top-level map key (spec §4.4: "a map
// (bucket, row_name) -> Row").
type bucketRowKey struct {
	Bucket cmn.Bucket
	Row    string
}

// TriggerPayload is the UserPayload an op receives via
// opengine.Engine.Trigger once LocalKV's Dispatch wakes a stalled
// target-side Get (spec §4.4 Dispatch / §4.5 Get).
type TriggerPayload struct {
	Success bool
	Key     cmn.Key
	Obj     ldo.DataObject
	Info    cmn.ObjectInfo
}

// Triggerer is the subset of opengine.Engine LocalKV needs to wake a
// mailbox waiting on a cell; accepting the interface instead of the
// concrete type keeps this package import-cycle free.
type Triggerer interface {
	Trigger(mailbox uint64, payload any) error
}

// WorkSubmitter is the subset of backburner.Pool LocalKV needs to hand
// off dispatch work outside the row lock (spec §4.4 Dispatch: "never
// runs under the row mutex").
type WorkSubmitter interface {
	AddWorkBatch(work []backburner.WorkFunc)
}

// LocalKV is the process-wide local key/value store (spec §4.4).
// Constructed once at bootstrap and held behind a dependency-injected
// handle.
type LocalKV struct {
	topMu sync.RWMutex
	rows  map[bucketRowKey]*Row

	engine Triggerer
	work   WorkSubmitter
	ioms   *iom.Registry
}

// New builds a LocalKV. engine and work may be nil in tests that never
// exercise waiter dispatch; ioms may be nil if no IOM is configured.
func New(engine Triggerer, work WorkSubmitter, ioms *iom.Registry) *LocalKV {
	return &LocalKV{rows: make(map[bucketRowKey]*Row), engine: engine, work: work, ioms: ioms}
}

// row locates or creates the Row for (bucket, name), taking the
// top-level lock only long enough to do so (spec §4.4: "acquire the
// top lock briefly to locate/create the row").
func (kv *LocalKV) row(bucket cmn.Bucket, name string, create bool) *Row {
	key := bucketRowKey{Bucket: bucket, Row: name}

	kv.topMu.RLock()
	r, ok := kv.rows[key]
	kv.topMu.RUnlock()
	if ok || !create {
		return r
	}

	kv.topMu.Lock()
	defer kv.topMu.Unlock()
	if r, ok = kv.rows[key]; ok {
		return r
	}
	r = newRow(name)
	kv.rows[key] = r
	return r
}

// Put implements spec §4.4 Put.
func (kv *LocalKV) Put(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject, flags behavior.Flags, iomHash iom.Hash) (cmn.ObjectInfo, cmn.RC) {
	r := kv.row(bucket, key.K1, true)
	waiters, info, rc := r.put(key.K2, obj, flags.Has(behavior.EnableOverwrites), iomHash)
	if rc != cmn.RCOk {
		return info, rc
	}

	if flags.Has(behavior.WriteToIOM) && iomHash != 0 && kv.ioms != nil {
		if driver, ok := kv.ioms.Lookup(iomHash); ok {
			if wrc := driver.WriteObject(bucket, key, obj); wrc != cmn.RCOk {
				nlog.Warningln("localkv: Put: iom WriteObject failed for", key, ":", wrc)
			}
		}
	}

	kv.dispatch(key, obj, info, waiters)
	return info, cmn.RCOk
}

// Get implements the local-only Get variant of spec §4.4.
func (kv *LocalKV) Get(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.ObjectInfo, cmn.RC) {
	r := kv.row(bucket, key.K1, false)
	if r == nil {
		return ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCENoEnt
	}
	return r.get(key.K2)
}

// GetForOp implements the "for op" Get variant of spec §4.4: if the
// value is not yet available, mailbox is registered as a waiter and
// RCWaiting is returned; the caller's Op later receives a
// TriggerPayload via Triggerer.Trigger(mailbox, ...).
func (kv *LocalKV) GetForOp(bucket cmn.Bucket, key cmn.Key, mailbox uint64) (ldo.DataObject, cmn.ObjectInfo, cmn.RC) {
	r := kv.row(bucket, key.K1, true)
	return r.getOrWait(key.K2, mailbox)
}

// WantLocal implements spec §4.4 WantLocal. The callback is always
// invoked exactly once, either synchronously (immediate=true) or later
// off a Put's dispatch.
func (kv *LocalKV) WantLocal(bucket cmn.Bucket, key cmn.Key, createIfMissing bool, cb WantCallback) cmn.RC {
	r := kv.row(bucket, key.K1, createIfMissing)
	if r == nil {
		return cmn.RCENoEnt
	}
	immediate, waiting := r.wantLocal(key.K2, createIfMissing, cb)
	if immediate != nil {
		obj, info, _ := r.get(key.K2)
		kv.submit(func() int {
			cb(true, key, obj, info)
			return 0
		})
		return cmn.RCOk
	}
	if waiting {
		return cmn.RCWaiting
	}
	return cmn.RCENoEnt
}

// Drop implements spec §4.4 Drop, including the row-name wildcard form
// (every row whose name matches the prefix) and the column wildcard
// form (every column in a row matching the prefix).
func (kv *LocalKV) Drop(bucket cmn.Bucket, key cmn.Key) cmn.RC {
	if key.IsRowWildcard() {
		prefix := strings.TrimSuffix(key.K1, "*")
		for _, r := range kv.rowsWithPrefix(bucket, prefix) {
			kv.dropInRow(r, key.K2)
		}
		return cmn.RCOk
	}
	r := kv.row(bucket, key.K1, false)
	if r == nil {
		return cmn.RCENoEnt
	}
	if !kv.dropInRow(r, key.K2) {
		return cmn.RCENoEnt
	}
	return cmn.RCOk
}

func (kv *LocalKV) dropInRow(r *Row, colPattern string) bool {
	if colPattern == "" {
		return r.drop("")
	}
	if strings.HasSuffix(colPattern, "*") {
		return r.dropPrefix(strings.TrimSuffix(colPattern, "*")) > 0
	}
	return r.drop(colPattern)
}

func (kv *LocalKV) rowsWithPrefix(bucket cmn.Bucket, prefix string) []*Row {
	kv.topMu.RLock()
	defer kv.topMu.RUnlock()
	var out []*Row
	for k, r := range kv.rows {
		if k.Bucket == bucket && strings.HasPrefix(k.Row, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Info implements spec §4.4 Info: a single column's info if key.K2 is
// a concrete column name, or a row aggregate if key.K2 is empty or a
// wildcard.
func (kv *LocalKV) Info(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC) {
	r := kv.row(bucket, key.K1, false)
	if r == nil {
		return cmn.ObjectInfo{}, cmn.RCENoEnt
	}
	if key.K2 != "" && !key.IsColWildcard() {
		obj, info, rc := r.get(key.K2)
		_ = obj
		return info, rc
	}
	return r.info(key.K2), cmn.RCOk
}

// List implements spec §4.4 List. If key.K1 carries no wildcard, only
// that row is scanned; otherwise every row whose name matches the
// prefix is. When driver is non-nil and the pattern may include
// persisted keys, its entries are unioned in, de-duplicated by key.
func (kv *LocalKV) List(bucket cmn.Bucket, key cmn.Key, driver iom.Driver) []ListEntry {
	colPattern := key.K2

	var rows []*Row
	if key.IsRowWildcard() {
		rows = kv.rowsWithPrefix(bucket, strings.TrimSuffix(key.K1, "*"))
	} else if r := kv.row(bucket, key.K1, false); r != nil {
		rows = []*Row{r}
	}

	seen := make(map[cmn.Key]bool)
	var out []ListEntry
	for _, r := range rows {
		for _, e := range r.list(bucket, colPattern) {
			if !seen[e.Key] {
				seen[e.Key] = true
				out = append(out, e)
			}
		}
	}

	lister, ok := driver.(iom.Lister)
	if !ok {
		return out
	}
	keys, infos, err := lister.ListObjects(bucket, key)
	if err != nil {
		nlog.Warningln("localkv: List: iom ListObjects failed:", err)
		return out
	}
	for i, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		var size uint64
		if i < len(infos) {
			size = infos[i].ColUserBytes
		}
		out = append(out, ListEntry{Bucket: bucket, Key: k, Size: size, Availability: cmn.InDisk})
	}
	return out
}

// dispatch hands a Put's collected waiters off to the background
// worker, outside any row lock (spec §4.4 Dispatch). If no worker is
// configured, it runs them inline -- useful for tests and for a
// single-threaded embedding.
func (kv *LocalKV) dispatch(key cmn.Key, obj ldo.DataObject, info cmn.ObjectInfo, waiters []waiter) {
	if len(waiters) == 0 {
		return
	}
	items := make([]backburner.WorkFunc, 0, len(waiters))
	for _, w := range waiters {
		w := w
		items = append(items, func() int {
			kv.fire(w, key, obj, info)
			return 0
		})
	}
	if kv.work == nil {
		for _, item := range items {
			item()
		}
		return
	}
	kv.work.AddWorkBatch(items)
}

func (kv *LocalKV) fire(w waiter, key cmn.Key, obj ldo.DataObject, info cmn.ObjectInfo) {
	if w.callback != nil {
		w.callback(true, key, obj.Copy(), info)
		return
	}
	if kv.engine == nil {
		nlog.Warningln("localkv: dispatch: no engine configured, dropping trigger for mailbox", w.mailbox)
		return
	}
	if err := kv.engine.Trigger(w.mailbox, TriggerPayload{Success: true, Key: key, Obj: obj.Copy(), Info: info}); err != nil {
		nlog.Warningln("localkv: dispatch: trigger failed for mailbox", w.mailbox, ":", err)
	}
}

func (kv *LocalKV) submit(work backburner.WorkFunc) {
	if kv.work == nil {
		work()
		return
	}
	kv.work.AddWorkBatch([]backburner.WorkFunc{work})
}
