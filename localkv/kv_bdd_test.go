package localkv

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
)

func bddLDO(data string) ldo.DataObject {
	obj, err := ldo.New(0, uint32(len(data)), nil, 1)
	Expect(err).NotTo(HaveOccurred())
	copy(obj.GetDataPtr(), data)
	return obj
}

var _ = Describe("LocalKV", func() {
	var kv *LocalKV

	BeforeEach(func() {
		kv = New(nil, nil, nil)
	})

	Describe("Put and Get", func() {
		It("returns what was put", func() {
			key := cmn.NewKey2("row1", "col1")
			_, rc := kv.Put(1, key, bddLDO("hello"), behavior.DefaultLocal, 0)
			Expect(rc).To(Equal(cmn.RCOk))

			got, info, rc := kv.Get(1, key)
			Expect(rc).To(Equal(cmn.RCOk))
			Expect(string(got.GetDataPtr())).To(Equal("hello"))
			Expect(info.ColAvailability).To(Equal(cmn.InLocalMemory))
		})

		It("reports ENOENT for a key never written", func() {
			_, _, rc := kv.Get(1, cmn.NewKey2("nope", ""))
			Expect(rc).To(Equal(cmn.RCENoEnt))
		})

		It("keeps buckets isolated", func() {
			key := cmn.NewKey2("row1", "col1")
			_, rc := kv.Put(1, key, bddLDO("a"), behavior.DefaultLocal, 0)
			Expect(rc).To(Equal(cmn.RCOk))

			_, _, rc = kv.Get(2, key)
			Expect(rc).To(Equal(cmn.RCENoEnt))
		})
	})

	Describe("overwrite behavior", func() {
		It("rejects a second Put without EnableOverwrites", func() {
			key := cmn.NewKey2("row1", "col1")
			_, rc := kv.Put(1, key, bddLDO("a"), behavior.DefaultLocal, 0)
			Expect(rc).To(Equal(cmn.RCOk))

			_, rc = kv.Put(1, key, bddLDO("b"), behavior.DefaultLocal, 0)
			Expect(rc).To(Equal(cmn.RCEExist))

			got, _, _ := kv.Get(1, key)
			Expect(string(got.GetDataPtr())).To(Equal("a"))
		})

		It("accepts a second Put with EnableOverwrites", func() {
			key := cmn.NewKey2("row1", "col1")
			_, rc := kv.Put(1, key, bddLDO("a"), behavior.DefaultLocal, 0)
			Expect(rc).To(Equal(cmn.RCOk))

			_, rc = kv.Put(1, key, bddLDO("b"), behavior.DefaultLocal|behavior.EnableOverwrites, 0)
			Expect(rc).To(Equal(cmn.RCOk))

			got, _, _ := kv.Get(1, key)
			Expect(string(got.GetDataPtr())).To(Equal("b"))
		})
	})

	Describe("Drop", func() {
		It("removes a column so a later Get reports ENOENT", func() {
			key := cmn.NewKey2("row1", "col1")
			_, rc := kv.Put(1, key, bddLDO("a"), behavior.DefaultLocal, 0)
			Expect(rc).To(Equal(cmn.RCOk))

			rc = kv.Drop(1, key)
			Expect(rc).To(Equal(cmn.RCOk))

			_, _, rc = kv.Get(1, key)
			Expect(rc).To(Equal(cmn.RCENoEnt))
		})
	})

	Describe("Info", func() {
		It("reports column size without returning the payload", func() {
			key := cmn.NewKey2("row1", "col1")
			_, rc := kv.Put(1, key, bddLDO("hello"), behavior.DefaultLocal, 0)
			Expect(rc).To(Equal(cmn.RCOk))

			info, rc := kv.Info(1, key)
			Expect(rc).To(Equal(cmn.RCOk))
			Expect(info.ColUserBytes).To(BeEquivalentTo(5))
		})
	})
})
