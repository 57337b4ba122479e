package simdev

import (
	"encoding/binary"
	"time"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/packet"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scheduler", func() {
	var (
		d   *Device
		ctx device.ContextHandle
		ib  mapped
		dst mapped
	)

	BeforeEach(func() {
		var err error

		d = MakeBuilder().Build("GPU")
		ctx, err = d.CreateContext()
		Expect(err).NotTo(HaveOccurred())

		ib = mapBuffer(d, 4096, device.DomainGTT, 0)
		dst = mapBuffer(d, 4096, device.DomainGTT, 0)
	})

	AfterEach(func() {
		unmapBuffer(d, ib)
		unmapBuffer(d, dst)
		Expect(d.FreeContext(ctx)).To(Succeed())
		d.Close()
		Expect(d.Stats().Total()).To(BeZero())
	})

	submit := func(
		engine device.EngineClass,
		ring uint32,
		program []uint32,
		bos ...device.BufferHandle,
	) (uint64, error) {
		writeDwords(ib.cpu, program)

		list, err := d.CreateBOList(bos)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(d.DestroyBOList(list)).To(Succeed()) }()

		return d.Submit(ctx, &device.Request{
			Engine:    engine,
			Ring:      ring,
			Resources: list,
			IBs: []device.IBInfo{{
				GPUAddr:    ib.addr,
				SizeDwords: uint32(len(program)),
			}},
		})
	}

	wait := func(engine device.EngineClass, ring uint32, seq uint64) error {
		expired, err := d.QueryFence(device.Fence{
			Engine:  engine,
			Ring:    ring,
			Context: ctx,
			SeqNo:   seq,
		}, device.TimeoutInfinite)
		Expect(expired).To(BeTrue())

		return err
	}

	It("should execute a write program", func() {
		program := packet.WriteData(dst.addr, []uint32{1, 2, 3})

		seq, err := submit(device.EngineDMA, 1, program, dst.handle, ib.handle)

		Expect(err).NotTo(HaveOccurred())
		Expect(seq).To(Equal(uint64(1)))
		Expect(wait(device.EngineDMA, 1, seq)).To(Succeed())
		Expect(binary.LittleEndian.Uint32(dst.cpu[8:])).To(Equal(uint32(3)))
	})

	It("should number submissions per ring", func() {
		program := packet.NOP()

		s1, err := submit(device.EngineCompute, 0, program, ib.handle)
		Expect(err).NotTo(HaveOccurred())
		s2, err := submit(device.EngineCompute, 0, program, ib.handle)
		Expect(err).NotTo(HaveOccurred())
		s3, err := submit(device.EngineCompute, 1, program, ib.handle)
		Expect(err).NotTo(HaveOccurred())

		Expect(s1).To(Equal(uint64(1)))
		Expect(s2).To(Equal(uint64(2)))
		Expect(s3).To(Equal(uint64(1)))

		Expect(wait(device.EngineCompute, 0, s2)).To(Succeed())
		Expect(wait(device.EngineCompute, 0, s1)).To(Succeed())
		Expect(wait(device.EngineCompute, 1, s3)).To(Succeed())
	})

	It("should fill and copy", func() {
		src := mapBuffer(d, 4096, device.DomainGTT, 0)
		defer unmapBuffer(d, src)

		program := append(packet.Fill(src.addr, 0xaaaaaaaa, 1024),
			packet.Copy(src.addr, dst.addr, 1024)...)

		seq, err := submit(device.EngineDMA, 0, program,
			src.handle, dst.handle, ib.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(wait(device.EngineDMA, 0, seq)).To(Succeed())

		for i := 0; i < 1024; i++ {
			Expect(dst.cpu[i]).To(Equal(byte(0xaa)))
		}
		Expect(dst.cpu[1024]).To(BeZero())
	})

	It("should compare and swap", func() {
		binary.LittleEndian.PutUint32(dst.cpu, 7)

		program := packet.AtomicCmpSwap(dst.addr, 7, 9)
		seq, err := submit(device.EngineGFX, 0, program, dst.handle, ib.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(wait(device.EngineGFX, 0, seq)).To(Succeed())
		Expect(binary.LittleEndian.Uint32(dst.cpu)).To(Equal(uint32(9)))

		seq, err = submit(device.EngineGFX, 0, program, dst.handle, ib.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(wait(device.EngineGFX, 0, seq)).To(Succeed())
		Expect(binary.LittleEndian.Uint32(dst.cpu)).To(Equal(uint32(9)))
	})

	It("should treat sequence number 0 as complete", func() {
		Expect(wait(device.EngineGFX, 0, 0)).To(Succeed())
	})

	It("should reject unknown contexts", func() {
		_, err := d.Submit(99, &device.Request{Engine: device.EngineGFX})

		Expect(err).To(MatchError(device.ENOENT))
	})

	It("should reject rings that are not available", func() {
		_, err := submit(device.EngineDMA, 2, packet.NOP(), ib.handle)

		Expect(err).To(MatchError(device.EINVAL))
	})

	It("should reject an indirect buffer missing from the list", func() {
		_, err := submit(device.EngineDMA, 0, packet.NOP(), dst.handle)

		Expect(err).To(MatchError(device.EINVAL))
	})

	It("should cancel jobs that touch buffers outside the list", func() {
		program := packet.WriteData(dst.addr, []uint32{1})

		seq, err := submit(device.EngineDMA, 0, program, ib.handle)

		Expect(err).NotTo(HaveOccurred())
		Expect(wait(device.EngineDMA, 0, seq)).To(MatchError(device.ECANCELED))
		Expect(dst.cpu[0]).To(BeZero())
	})

	It("should refuse non-secure access to encrypted buffers", func() {
		enc := mapBuffer(d, 4096, device.DomainVRAM, device.FlagEncrypted)
		defer unmapBuffer(d, enc)

		program := packet.WriteData(enc.addr, []uint32{1})

		seq, err := submit(device.EngineGFX, 0, program, enc.handle, ib.handle)

		Expect(err).NotTo(HaveOccurred())
		Expect(wait(device.EngineGFX, 0, seq)).To(MatchError(device.EPERM))
	})

	It("should return injected codes", func() {
		d.Inject(OpSubmit, device.ECANCELED)
		d.Inject(OpQueryFence, device.ENODATA)

		seq, err := submit(device.EngineGFX, 0, packet.NOP(), ib.handle)
		Expect(err).To(MatchError(device.ECANCELED))
		Expect(seq).To(BeZero())

		_, err = d.QueryFence(device.Fence{
			Engine:  device.EngineGFX,
			Context: ctx,
		}, device.TimeoutInfinite)
		Expect(err).To(MatchError(device.ENODATA))
	})

	It("should report a hung ring as not expired", func() {
		d.Hang(device.EngineGFX, 0)

		seq, err := submit(device.EngineGFX, 0, packet.NOP(), ib.handle)
		Expect(err).NotTo(HaveOccurred())

		expired, err := d.QueryFence(device.Fence{
			Engine:  device.EngineGFX,
			Context: ctx,
			SeqNo:   seq,
		}, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(expired).To(BeFalse())

		d.Resume(device.EngineGFX, 0)

		Expect(wait(device.EngineGFX, 0, seq)).To(Succeed())
	})
})
