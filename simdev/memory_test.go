package simdev

import (
	"time"

	"github.com/sarchlab/gpucs/device"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Memory", func() {
	var d *Device

	BeforeEach(func() {
		d = MakeBuilder().
			WithMemory(device.DomainVRAM, 64<<10).
			Build("GPU")
	})

	AfterEach(func() {
		d.Close()
	})

	It("should account for live objects", func() {
		m := mapBuffer(d, 4096, device.DomainGTT, 0)

		s := d.Stats()
		Expect(s.Buffers).To(Equal(1))
		Expect(s.VARanges).To(Equal(1))
		Expect(s.Mappings).To(Equal(1))
		Expect(s.CPUMappings).To(Equal(1))

		unmapBuffer(d, m)

		Expect(d.Stats().Total()).To(BeZero())
	})

	It("should run out of memory in a domain", func() {
		_, err := d.AllocBuffer(device.AllocRequest{
			Size:   128 << 10,
			Domain: device.DomainVRAM,
		})

		Expect(err).To(MatchError(device.ENOMEM))
	})

	It("should return memory on free", func() {
		h, err := d.AllocBuffer(device.AllocRequest{
			Size:   64 << 10,
			Domain: device.DomainVRAM,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.FreeBuffer(h)).To(Succeed())

		h, err = d.AllocBuffer(device.AllocRequest{
			Size:   64 << 10,
			Domain: device.DomainVRAM,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.FreeBuffer(h)).To(Succeed())
	})

	It("should return injected allocation errors", func() {
		d.Inject(OpAllocBuffer, device.ENOMEM)

		_, err := d.AllocBuffer(device.AllocRequest{
			Size:   4096,
			Domain: device.DomainGTT,
		})

		Expect(err).To(MatchError(device.ENOMEM))
	})

	It("should alias CPU and GPU views", func() {
		m := mapBuffer(d, 8192, device.DomainGTT, 0)
		defer unmapBuffer(d, m)

		m.cpu[4100] = 0x5a

		mem, b, err := d.translate(m.addr+4100, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(b.handle).To(Equal(m.handle))
		Expect(mem[0]).To(Equal(byte(0x5a)))
	})

	It("should fault on unmapped addresses", func() {
		_, _, err := d.translate(0x10, 4)

		Expect(err).To(MatchError(device.EFAULT))
	})

	It("should fault on accesses past the buffer", func() {
		m := mapBuffer(d, 4096, device.DomainGTT, 0)
		defer unmapBuffer(d, m)

		_, _, err := d.translate(m.addr+4000, 200)

		Expect(err).To(MatchError(device.EFAULT))
	})

	It("should reject mapping outside a reserved range", func() {
		h, err := d.AllocBuffer(device.AllocRequest{
			Size:   4096,
			Domain: device.DomainGTT,
		})
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(d.FreeBuffer(h)).To(Succeed()) }()

		err = d.MapVA(h, 0x1000, 4096, device.PageRWX, device.TimelinePoint{})

		Expect(err).To(MatchError(device.EINVAL))
	})

	It("should reject unbalanced cpu unmaps", func() {
		h, err := d.AllocBuffer(device.AllocRequest{
			Size:   4096,
			Domain: device.DomainGTT,
		})
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(d.FreeBuffer(h)).To(Succeed()) }()

		Expect(d.CPUUnmap(h)).To(MatchError(device.EINVAL))
	})

	Context("timeline", func() {
		var so device.SyncobjHandle

		BeforeEach(func() {
			var err error
			so, err = d.CreateSyncobj()
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(d.DestroySyncobj(so)).To(Succeed())
		})

		It("should signal the mapping point", func() {
			h, err := d.AllocBuffer(device.AllocRequest{
				Size:   4096,
				Domain: device.DomainGTT,
			})
			Expect(err).NotTo(HaveOccurred())

			addr, va, err := d.AllocVARange(4096, 4096)
			Expect(err).NotTo(HaveOccurred())

			point := device.TimelinePoint{Syncobj: so, Point: 3}
			Expect(d.MapVA(h, addr, 4096, device.PageRWX, point)).To(Succeed())

			Expect(d.TimelineWait(so, 3, time.Second)).To(Succeed())
			Expect(d.TimelineWait(so, 2, time.Second)).To(Succeed())

			Expect(d.UnmapVA(h, addr, 4096, device.TimelinePoint{})).To(Succeed())
			Expect(d.FreeVARange(va)).To(Succeed())
			Expect(d.FreeBuffer(h)).To(Succeed())
		})

		It("should time out on points that never signal", func() {
			err := d.TimelineWait(so, 1, 10*time.Millisecond)

			Expect(err).To(MatchError(device.ETIME))
		})

		It("should signal after the map latency", func() {
			d2 := MakeBuilder().WithMapLatency(5 * time.Millisecond).Build("GPU2")
			defer d2.Close()

			so2, err := d2.CreateSyncobj()
			Expect(err).NotTo(HaveOccurred())

			h, err := d2.AllocBuffer(device.AllocRequest{
				Size:   4096,
				Domain: device.DomainGTT,
			})
			Expect(err).NotTo(HaveOccurred())

			addr, _, err := d2.AllocVARange(4096, 4096)
			Expect(err).NotTo(HaveOccurred())

			point := device.TimelinePoint{Syncobj: so2, Point: 1}
			Expect(d2.MapVA(h, addr, 4096, device.PageRWX, point)).To(Succeed())

			Expect(d2.TimelineWait(so2, 1, device.TimeoutInfinite)).To(Succeed())
		})
	})
})
