package localkv

import (
	"sync"
	"testing"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
)

func mustLDO(t *testing.T, data string) ldo.DataObject {
	t.Helper()
	obj, err := ldo.New(0, uint32(len(data)), nil, 1)
	if err != nil {
		t.Fatalf("ldo.New: %v", err)
	}
	copy(obj.GetDataPtr(), data)
	return obj
}

func TestPutThenGet(t *testing.T) {
	kv := New(nil, nil, nil)
	key := cmn.NewKey2("row1", "col1")
	obj := mustLDO(t, "hello")

	if _, rc := kv.Put(1, key, obj, behavior.DefaultLocal, 0); rc != cmn.RCOk {
		t.Fatalf("Put: %v", rc)
	}
	got, info, rc := kv.Get(1, key)
	if rc != cmn.RCOk {
		t.Fatalf("Get: %v", rc)
	}
	if string(got.GetDataPtr()) != "hello" {
		t.Fatalf("expected hello, got %q", got.GetDataPtr())
	}
	if info.ColAvailability != cmn.InLocalMemory {
		t.Fatalf("expected InLocalMemory, got %v", info.ColAvailability)
	}
}

func TestGetMissingReturnsENoEnt(t *testing.T) {
	kv := New(nil, nil, nil)
	if _, _, rc := kv.Get(1, cmn.NewKey2("nope", "")); rc != cmn.RCENoEnt {
		t.Fatalf("expected RCENoEnt, got %v", rc)
	}
}

func TestPutWithoutOverwriteRejectsExisting(t *testing.T) {
	kv := New(nil, nil, nil)
	key := cmn.NewKey2("row1", "col1")
	if _, rc := kv.Put(1, key, mustLDO(t, "a"), behavior.DefaultLocal, 0); rc != cmn.RCOk {
		t.Fatalf("first put: %v", rc)
	}
	if _, rc := kv.Put(1, key, mustLDO(t, "b"), behavior.DefaultLocal, 0); rc != cmn.RCEExist {
		t.Fatalf("expected RCEExist, got %v", rc)
	}
	got, _, _ := kv.Get(1, key)
	if string(got.GetDataPtr()) != "a" {
		t.Fatalf("expected original value preserved, got %q", got.GetDataPtr())
	}
}

func TestPutWithOverwriteReplacesExisting(t *testing.T) {
	kv := New(nil, nil, nil)
	key := cmn.NewKey2("row1", "col1")
	flags := behavior.DefaultLocal | behavior.EnableOverwrites
	kv.Put(1, key, mustLDO(t, "a"), flags, 0)
	if _, rc := kv.Put(1, key, mustLDO(t, "b"), flags, 0); rc != cmn.RCOk {
		t.Fatalf("overwrite put: %v", rc)
	}
	got, _, _ := kv.Get(1, key)
	if string(got.GetDataPtr()) != "b" {
		t.Fatalf("expected overwritten value, got %q", got.GetDataPtr())
	}
}

func TestWantLocalFiresImmediatelyWhenAvailable(t *testing.T) {
	kv := New(nil, nil, nil)
	key := cmn.NewKey2("row1", "col1")
	kv.Put(1, key, mustLDO(t, "now"), behavior.DefaultLocal, 0)

	var called bool
	rc := kv.WantLocal(1, key, false, func(success bool, k cmn.Key, obj ldo.DataObject, info cmn.ObjectInfo) {
		called = true
		if !success || string(obj.GetDataPtr()) != "now" {
			t.Errorf("unexpected callback args: success=%v data=%q", success, obj.GetDataPtr())
		}
	})
	if rc != cmn.RCOk {
		t.Fatalf("expected RCOk, got %v", rc)
	}
	if !called {
		t.Fatal("expected callback to fire synchronously with no worker configured")
	}
}

func TestWantLocalFiresOnceDataArrivesViaDispatch(t *testing.T) {
	kv := New(nil, nil, nil)
	key := cmn.NewKey2("row1", "col1")

	var mu sync.Mutex
	var calls int
	rc := kv.WantLocal(1, key, true, func(success bool, k cmn.Key, obj ldo.DataObject, info cmn.ObjectInfo) {
		mu.Lock()
		calls++
		mu.Unlock()
		if !success {
			t.Error("expected success=true")
		}
	})
	if rc != cmn.RCWaiting {
		t.Fatalf("expected RCWaiting, got %v", rc)
	}

	kv.Put(1, key, mustLDO(t, "later"), behavior.DefaultLocal, 0)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected callback to fire exactly once, got %d", calls)
	}
}

func TestGetForOpWaitsThenGetsTriggered(t *testing.T) {
	tr := &fakeTriggerer{}
	kv := New(tr, nil, nil)
	key := cmn.NewKey2("row1", "col1")

	_, _, rc := kv.GetForOp(1, key, 42)
	if rc != cmn.RCWaiting {
		t.Fatalf("expected RCWaiting, got %v", rc)
	}

	kv.Put(1, key, mustLDO(t, "payload"), behavior.DefaultLocal, 0)

	if len(tr.triggers) != 1 {
		t.Fatalf("expected exactly one trigger, got %d", len(tr.triggers))
	}
	tp, ok := tr.triggers[0].payload.(TriggerPayload)
	if !ok || !tp.Success || string(tp.Obj.GetDataPtr()) != "payload" {
		t.Fatalf("unexpected trigger payload: %+v", tr.triggers[0].payload)
	}
	if tr.triggers[0].mailbox != 42 {
		t.Fatalf("expected mailbox 42, got %d", tr.triggers[0].mailbox)
	}
}

type triggerCall struct {
	mailbox uint64
	payload any
}

type fakeTriggerer struct {
	mu       sync.Mutex
	triggers []triggerCall
}

func (f *fakeTriggerer) Trigger(mailbox uint64, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, triggerCall{mailbox, payload})
	return nil
}

func TestDropRemovesAvailableCell(t *testing.T) {
	kv := New(nil, nil, nil)
	key := cmn.NewKey2("row1", "col1")
	kv.Put(1, key, mustLDO(t, "x"), behavior.DefaultLocal, 0)

	if rc := kv.Drop(1, key); rc != cmn.RCOk {
		t.Fatalf("Drop: %v", rc)
	}
	if _, _, rc := kv.Get(1, key); rc != cmn.RCENoEnt {
		t.Fatalf("expected dropped cell to be gone, got %v", rc)
	}
}

func TestDropWithWaiterDefersRemoval(t *testing.T) {
	tr := &fakeTriggerer{}
	kv := New(tr, nil, nil)
	key := cmn.NewKey2("row1", "col1")

	kv.GetForOp(1, key, 7) // registers a waiter, cell stays Requested

	if rc := kv.Drop(1, key); rc != cmn.RCOk {
		t.Fatalf("Drop: %v", rc)
	}

	// The waiter is still owed a trigger even though Drop was requested.
	kv.Put(1, key, mustLDO(t, "final"), behavior.DefaultLocal, 0)
	if len(tr.triggers) != 1 {
		t.Fatalf("expected the deferred waiter to still be triggered, got %d calls", len(tr.triggers))
	}
}

func TestDropPrefixRemovesMatchingColumns(t *testing.T) {
	kv := New(nil, nil, nil)
	kv.Put(1, cmn.NewKey2("row1", "a1"), mustLDO(t, "1"), behavior.DefaultLocal, 0)
	kv.Put(1, cmn.NewKey2("row1", "a2"), mustLDO(t, "2"), behavior.DefaultLocal, 0)
	kv.Put(1, cmn.NewKey2("row1", "b1"), mustLDO(t, "3"), behavior.DefaultLocal, 0)

	if rc := kv.Drop(1, cmn.NewKey2("row1", "a*")); rc != cmn.RCOk {
		t.Fatalf("Drop prefix: %v", rc)
	}
	if _, _, rc := kv.Get(1, cmn.NewKey2("row1", "a1")); rc != cmn.RCENoEnt {
		t.Fatal("expected a1 dropped")
	}
	if _, _, rc := kv.Get(1, cmn.NewKey2("row1", "b1")); rc != cmn.RCOk {
		t.Fatal("expected b1 to survive prefix drop")
	}
}

func TestInfoRowAggregatesMixedAvailability(t *testing.T) {
	tr := &fakeTriggerer{}
	kv := New(tr, nil, nil)
	kv.Put(1, cmn.NewKey2("row1", "a"), mustLDO(t, "x"), behavior.DefaultLocal, 0)
	kv.GetForOp(1, cmn.NewKey2("row1", "b"), 1) // leaves b as Requested

	info, rc := kv.Info(1, cmn.NewKey2("row1", ""))
	if rc != cmn.RCOk {
		t.Fatalf("Info: %v", rc)
	}
	if info.RowNumColumns != 2 {
		t.Fatalf("expected 2 columns, got %d", info.RowNumColumns)
	}
	if info.ColAvailability != cmn.MixedConditions {
		t.Fatalf("expected MixedConditions, got %v", info.ColAvailability)
	}
}

func TestListMatchesPrefixAcrossRows(t *testing.T) {
	kv := New(nil, nil, nil)
	kv.Put(1, cmn.NewKey2("alpha", "c1"), mustLDO(t, "1"), behavior.DefaultLocal, 0)
	kv.Put(1, cmn.NewKey2("alphabet", "c1"), mustLDO(t, "2"), behavior.DefaultLocal, 0)
	kv.Put(1, cmn.NewKey2("beta", "c1"), mustLDO(t, "3"), behavior.DefaultLocal, 0)

	entries := kv.List(1, cmn.NewKey2("alpha*", ""), nil)
	if len(entries) != 2 {
		t.Fatalf("expected 2 matching rows, got %d: %+v", len(entries), entries)
	}
}

func TestDispatchIsMonotoneNewWaiterAfterPutSeesData(t *testing.T) {
	kv := New(nil, nil, nil)
	key := cmn.NewKey2("row1", "col1")
	kv.Put(1, key, mustLDO(t, "already-here"), behavior.DefaultLocal, 0)

	// A waiter registered after the put must see the data, not block.
	obj, _, rc := kv.GetForOp(1, key, 99)
	if rc != cmn.RCOk || string(obj.GetDataPtr()) != "already-here" {
		t.Fatalf("expected immediate visibility post-put, got rc=%v data=%q", rc, obj.GetDataPtr())
	}
}

func TestConcurrentPutsToDifferentRowsDoNotRace(t *testing.T) {
	kv := New(nil, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := cmn.NewKey2("row", "")
			key.K1 = key.K1 + string(rune('a'+n%26))
			kv.Put(1, key, mustLDO(t, "v"), behavior.DefaultLocal, 0)
		}(i)
	}
	wg.Wait()
}
