package lanes

import (
	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ipblock"
	"github.com/sarchlab/gpucs/ring"
	"github.com/sarchlab/gpucs/simdev"
	"github.com/sarchlab/gpucs/submit"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeSubmitter struct {
	protocol device.Protocol
}

func (s fakeSubmitter) Protocol() device.Protocol {
	return s.protocol
}

func (s fakeSubmitter) Submit(
	*ring.Context, *bo.Buffer, bool,
) (ring.Completion, error) {
	return ring.Completion{Protocol: s.protocol}, nil
}

type fakeSubmitters struct{}

func (fakeSubmitters) SubmitterFor(p device.Protocol) ring.Submitter {
	return fakeSubmitter{protocol: p}
}

var _ = Describe("Manager", func() {
	var (
		mockCtrl  *gomock.Controller
		prober    *MockProber
		scheduler *MockScheduler
		m         *Manager
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		prober = NewMockProber(mockCtrl)
		scheduler = NewMockScheduler(mockCtrl)

		m = MakeBuilder().
			WithProber(prober).
			WithScheduler(scheduler).
			WithOpsTable(ipblock.MakeBuilder().Build()).
			WithSubmitters(fakeSubmitters{}).
			Build("Lanes")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report no lanes without creating anything", func() {
		prober.EXPECT().
			QueryHWIP(device.EngineCompute).
			Return(device.HWIPInfo{}, nil)

		cs, err := m.CreateLanes(device.EngineCompute, device.ProtocolKernel,
			ring.Options{})

		Expect(err).To(MatchError(ErrNotAvailable))
		Expect(cs).To(BeEmpty())
		Expect(m.Contexts()).To(BeEmpty())
	})

	It("should report no user lanes when there are no slots", func() {
		prober.EXPECT().
			QueryHWIP(device.EngineGFX).
			Return(device.HWIPInfo{AvailableRings: 0x1}, nil)

		_, err := m.CreateLanes(device.EngineGFX, device.ProtocolUser,
			ring.Options{})

		Expect(err).To(MatchError(ErrNotAvailable))
	})

	It("should create one context per set bit", func() {
		prober.EXPECT().
			QueryHWIP(device.EngineDMA).
			Return(device.HWIPInfo{AvailableRings: 0b1010}, nil)
		scheduler.EXPECT().CreateContext().Return(device.ContextHandle(5), nil)
		scheduler.EXPECT().CreateContext().Return(device.ContextHandle(6), nil)

		cs, err := m.CreateLanes(device.EngineDMA, device.ProtocolKernel,
			ring.Options{WriteLength: 128})

		Expect(err).NotTo(HaveOccurred())
		Expect(cs).To(HaveLen(2))
		Expect(cs[0].Lane).To(Equal(1))
		Expect(cs[1].Lane).To(Equal(3))
		Expect(cs[0].ContextHandle).To(Equal(device.ContextHandle(5)))
		Expect(cs[1].Name()).To(Equal("dma[3].kernel"))
		Expect(cs[1].WriteLength).To(Equal(uint32(128)))
		Expect(cs[0].Ops.Engine()).To(Equal(device.EngineDMA))
		Expect(cs[0].State()).To(Equal(ring.StateIdle))
		Expect(cs[0].Submitter().Protocol()).To(Equal(device.ProtocolKernel))
		Expect(m.Status()).To(HaveLen(2))

		scheduler.EXPECT().FreeContext(device.ContextHandle(5)).Return(nil)
		scheduler.EXPECT().FreeContext(device.ContextHandle(6)).Return(nil)

		Expect(m.DestroyLanes(cs)).To(Succeed())
		Expect(cs[0].State()).To(Equal(ring.StateQueueDestroyed))
		Expect(m.Contexts()).To(BeEmpty())
	})

	It("should undo created lanes when one fails", func() {
		prober.EXPECT().
			QueryHWIP(device.EngineCompute).
			Return(device.HWIPInfo{AvailableRings: 0x7}, nil)
		gomock.InOrder(
			scheduler.EXPECT().CreateContext().Return(device.ContextHandle(1), nil),
			scheduler.EXPECT().CreateContext().Return(device.ContextHandle(2), nil),
			scheduler.EXPECT().CreateContext().
				Return(device.ContextHandle(0), device.ENOMEM),
		)
		scheduler.EXPECT().FreeContext(device.ContextHandle(1)).Return(nil)
		scheduler.EXPECT().FreeContext(device.ContextHandle(2)).Return(nil)

		cs, err := m.CreateLanes(device.EngineCompute, device.ProtocolKernel,
			ring.Options{})

		Expect(err).To(MatchError(device.ENOMEM))
		Expect(cs).To(BeNil())
		Expect(m.Contexts()).To(BeEmpty())
	})

	It("should pass on probe failures", func() {
		prober.EXPECT().
			QueryHWIP(device.EngineGFX).
			Return(device.HWIPInfo{}, device.EINVAL)

		_, err := m.CreateLanes(device.EngineGFX, device.ProtocolKernel,
			ring.Options{})

		Expect(err).To(MatchError(device.EINVAL))
		Expect(err).NotTo(MatchError(ErrNotAvailable))
	})

	It("should panic when destroying a busy context", func() {
		prober.EXPECT().
			QueryHWIP(device.EngineGFX).
			Return(device.HWIPInfo{AvailableRings: 0x1}, nil)
		scheduler.EXPECT().CreateContext().Return(device.ContextHandle(1), nil)

		cs, err := m.CreateLanes(device.EngineGFX, device.ProtocolKernel,
			ring.Options{})
		Expect(err).NotTo(HaveOccurred())

		cs[0].MustTransition(ring.StateSubmitting)

		Expect(func() { _ = m.DestroyLanes(cs) }).To(Panic())
	})

	Context("groups", func() {
		It("should skip engine classes without lanes", func() {
			prober.EXPECT().
				QueryHWIP(device.EngineGFX).
				Return(device.HWIPInfo{AvailableRings: 0x1}, nil)
			prober.EXPECT().
				QueryHWIP(device.EngineCompute).
				Return(device.HWIPInfo{}, nil)
			prober.EXPECT().
				QueryHWIP(device.EngineDMA).
				Return(device.HWIPInfo{AvailableRings: 0x1}, nil)
			scheduler.EXPECT().CreateContext().
				Return(device.ContextHandle(1), nil).Times(2)

			g, err := m.CreateGroup(
				device.MaskOf(device.EngineGFX, device.EngineCompute,
					device.EngineDMA),
				device.ProtocolKernel, ring.Options{})

			Expect(err).NotTo(HaveOccurred())
			Expect(g.Engines()).To(Equal([]device.EngineClass{
				device.EngineGFX, device.EngineDMA}))
			Expect(g.Contexts()).To(HaveLen(2))
			Expect(g.Lanes(device.EngineCompute)).To(BeEmpty())

			scheduler.EXPECT().FreeContext(device.ContextHandle(1)).
				Return(nil).Times(2)

			Expect(g.Destroy()).To(Succeed())
			Expect(g.Contexts()).To(BeEmpty())
		})

		It("should report no lanes when no class has any", func() {
			prober.EXPECT().
				QueryHWIP(gomock.Any()).
				Return(device.HWIPInfo{}, nil).Times(2)

			g, err := m.CreateGroup(
				device.MaskOf(device.EngineGFX, device.EngineCompute),
				device.ProtocolKernel, ring.Options{})

			Expect(err).To(MatchError(ErrNotAvailable))
			Expect(g).To(BeNil())
		})
	})
})

var _ = Describe("Manager on a device", func() {
	var (
		dev     *simdev.Device
		buffers *bo.Manager
		m       *Manager
	)

	BeforeEach(func() {
		dev = simdev.MakeBuilder().Build("GPU")
		buffers = bo.NewManager(dev)
		engine := submit.MakeBuilder().
			WithBufferManager(buffers).
			WithScheduler(dev).
			Build("Engine")

		m = MakeBuilder().
			WithProber(dev).
			WithScheduler(dev).
			WithOpsTable(ipblock.MakeBuilder().
				WithDevice(dev).
				WithBufferManager(buffers).
				Build()).
			WithSubmitters(engine).
			Build("Lanes")
	})

	AfterEach(func() {
		dev.Close()
	})

	DescribeTable("should leave nothing behind",
		func(engine device.EngineClass, protocol device.Protocol, n int) {
			cs, err := m.CreateLanes(engine, protocol, ring.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(cs).To(HaveLen(n))

			Expect(m.DestroyLanes(cs)).To(Succeed())

			Expect(buffers.Live()).To(BeZero())
			Expect(dev.Stats().Total()).To(BeZero())
		},
		Entry("gfx kernel", device.EngineGFX, device.ProtocolKernel, 1),
		Entry("compute kernel", device.EngineCompute, device.ProtocolKernel, 4),
		Entry("dma kernel", device.EngineDMA, device.ProtocolKernel, 2),
		Entry("gfx user", device.EngineGFX, device.ProtocolUser, 1),
		Entry("compute user", device.EngineCompute, device.ProtocolUser, 2),
		Entry("dma user", device.EngineDMA, device.ProtocolUser, 2),
	)

	It("should skip engines the device does not have", func() {
		_, err := m.CreateLanes(device.EngineUVD, device.ProtocolKernel,
			ring.Options{})

		Expect(err).To(MatchError(ErrNotAvailable))
		Expect(dev.Stats().Total()).To(BeZero())
	})

	It("should release user queues when the device runs out of slots", func() {
		dev.Close()
		dev = simdev.MakeBuilder().
			WithUserQueueSlots(device.EngineCompute, 2).
			Build("GPU")
		buffers = bo.NewManager(dev)
		m = MakeBuilder().
			WithProber(dev).
			WithOpsTable(ipblock.MakeBuilder().
				WithDevice(dev).
				WithBufferManager(buffers).
				Build()).
			WithSubmitters(fakeSubmitters{}).
			Build("Lanes")
		dev.Inject(simdev.OpCreateUserQueue, nil)
		dev.Inject(simdev.OpCreateUserQueue, device.ENOMEM)

		_, err := m.CreateLanes(device.EngineCompute, device.ProtocolUser,
			ring.Options{})

		Expect(err).To(MatchError(device.ENOMEM))
		Expect(buffers.Live()).To(BeZero())
		Expect(dev.Stats().Total()).To(BeZero())
	})
})
