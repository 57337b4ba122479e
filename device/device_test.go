package device

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EngineClass", func() {
	It("should parse names", func() {
		e, err := ParseEngineClass("GFX")
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(Equal(EngineGFX))

		e, err = ParseEngineClass("sdma")
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(Equal(EngineDMA))

		_, err = ParseEngineClass("blitter")
		Expect(err).To(HaveOccurred())
	})

	It("should build masks", func() {
		m, err := ParseEngineMask("gfx, dma")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Has(EngineGFX)).To(BeTrue())
		Expect(m.Has(EngineCompute)).To(BeFalse())
		Expect(m.Engines()).To(Equal([]EngineClass{EngineGFX, EngineDMA}))
		Expect(m.String()).To(Equal("gfx,dma"))
	})
})

var _ = Describe("HWIPInfo", func() {
	It("should use the ring mask for kernel-mode lanes", func() {
		info := HWIPInfo{AvailableRings: 0b1011, NumUserQSlots: 2}
		Expect(info.LaneMask(ProtocolKernel)).To(Equal(uint32(0b1011)))
	})

	It("should turn user queue slots into a mask", func() {
		info := HWIPInfo{AvailableRings: 0b1011, NumUserQSlots: 2}
		Expect(info.LaneMask(ProtocolUser)).To(Equal(uint32(0b11)))
	})

	It("should report no user lanes without slots", func() {
		info := HWIPInfo{AvailableRings: 1}
		Expect(info.LaneMask(ProtocolUser)).To(BeZero())
	})
})

var _ = Describe("Code", func() {
	It("should unwrap result codes", func() {
		err := fmt.Errorf("submit: %w", ECANCELED)
		Expect(Code(err)).To(Equal(ECANCELED))
		Expect(CodeName(err)).To(Equal("-ECANCELED"))
	})

	It("should treat nil as success", func() {
		Expect(Code(nil)).To(BeZero())
		Expect(CodeName(nil)).To(Equal("0"))
	})

	It("should map foreign errors to EINVAL", func() {
		Expect(Code(errors.New("boom"))).To(Equal(EINVAL))
	})

	It("should parse code names", func() {
		Expect(ParseCode("-ENODATA")).To(Equal(ENODATA))
		Expect(ParseCode("ehwpoison")).To(Equal(EHWPOISON))
		Expect(ParseCode("0")).To(BeZero())

		_, err := ParseCode("EAGAIN")
		Expect(err).To(HaveOccurred())
	})
})
