package memsys_test

import (
	"github.com/catzilla-go/catzilla/memsys"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("MMSA", func() {
	var m *memsys.MMSA

	BeforeEach(func() {
		m = memsys.New()
	})

	It("round-trips alloc/free accounting (property: allocs - frees == live handles)", func() {
		var live []memsys.Handle
		for i := 0; i < 50; i++ {
			h, ok := m.Alloc(memsys.Request, 128)
			Expect(ok).To(BeTrue())
			live = append(live, h)
		}
		snap := m.Stats()
		Expect(snap.AllocCount - snap.DeallocCount).To(Equal(int64(len(live))))

		for _, h := range live {
			m.Free(h)
		}
		snap = m.Stats()
		Expect(snap.AllocCount - snap.DeallocCount).To(Equal(int64(0)))
	})

	It("serves a cache-arena allocation at the requested length", func() {
		h, ok := m.Alloc(memsys.Cache, 4096)
		Expect(ok).To(BeTrue())
		Expect(len(h.Bytes())).To(Equal(4096))
	})

	It("serves oversized allocations outside the pooled size classes", func() {
		h, ok := m.Alloc(memsys.Static, 8<<20)
		Expect(ok).To(BeTrue())
		Expect(len(h.Bytes())).To(Equal(8 << 20))
		m.Free(h)
	})

	It("reallocs to a larger size, preserving the prefix", func() {
		h, ok := m.Alloc(memsys.Task, 16)
		Expect(ok).To(BeTrue())
		copy(h.Bytes(), []byte("hello world12345"))
		h2, ok := m.Realloc(h, 64)
		Expect(ok).To(BeTrue())
		Expect(string(h2.Bytes()[:11])).To(Equal("hello world"))
	})

	It("purge is advisory and never breaks subsequent allocations", func() {
		h, ok := m.Alloc(memsys.Response, 256)
		Expect(ok).To(BeTrue())
		m.Free(h)
		m.Purge(memsys.Response)
		_, ok = m.Alloc(memsys.Response, 256)
		Expect(ok).To(BeTrue())
	})

	It("reports normal memory pressure while the arenas are idle", func() {
		Expect(m.MemPressure()).To(Equal(memsys.MemPressureNormal))
	})
})
