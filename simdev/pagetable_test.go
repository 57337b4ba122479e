package simdev

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PageTable", func() {
	var pt PageTable

	BeforeEach(func() {
		pt = NewPageTable(12)
	})

	It("should find a page by any address inside it", func() {
		pt.Insert(Page{VAddr: 0x1000, BO: 3, Offset: 0x2000})

		page, found := pt.Find(0x1abc)

		Expect(found).To(BeTrue())
		Expect(page.BO).To(BeEquivalentTo(3))
		Expect(page.Offset).To(Equal(uint64(0x2000)))
	})

	It("should not find unmapped pages", func() {
		pt.Insert(Page{VAddr: 0x1000})

		_, found := pt.Find(0x2000)

		Expect(found).To(BeFalse())
	})

	It("should remove pages", func() {
		pt.Insert(Page{VAddr: 0x1000})
		pt.Insert(Page{VAddr: 0x2000})

		pt.Remove(0x1000)

		_, found := pt.Find(0x1000)
		Expect(found).To(BeFalse())
		Expect(pt.Len()).To(Equal(1))
	})

	It("should panic when inserting a page twice", func() {
		pt.Insert(Page{VAddr: 0x1000})

		Expect(func() { pt.Insert(Page{VAddr: 0x1000}) }).To(Panic())
	})

	It("should panic when removing a missing page", func() {
		Expect(func() { pt.Remove(0x1000) }).To(Panic())
	})
})
