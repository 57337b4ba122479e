package packet

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Packet", func() {
	It("should round trip headers", func() {
		h := Header(OpCopy, 5)

		op, n, err := ParseHeader(h)

		Expect(err).NotTo(HaveOccurred())
		Expect(op).To(Equal(OpCopy))
		Expect(n).To(Equal(5))
	})

	It("should reject headers of other packet types", func() {
		_, _, err := ParseHeader(0x12345678)
		Expect(err).To(MatchError(ErrBadHeader))
	})

	It("should decode a stream of packets", func() {
		var dw []uint32
		dw = append(dw, WriteData(0x1_0000_1000, []uint32{1, 2, 3})...)
		dw = append(dw, NOP()...)
		dw = append(dw, AtomicCmpSwap(0x2000, 7, 9)...)

		packets, err := Decode(dw)

		Expect(err).NotTo(HaveOccurred())
		Expect(packets).To(HaveLen(3))
		Expect(packets[0].Op).To(Equal(OpWriteData))
		Expect(Addr(packets[0].Payload[0], packets[0].Payload[1])).
			To(Equal(uint64(0x1_0000_1000)))
		Expect(packets[0].Payload[2:]).To(Equal([]uint32{1, 2, 3}))
		Expect(packets[1].Op).To(Equal(OpNOP))
		Expect(packets[1].Payload).To(BeEmpty())
		Expect(packets[2].Payload[2:]).To(Equal([]uint32{7, 9}))
	})

	It("should report truncated payloads", func() {
		dw := Fill(0x1000, 0xdeadbeaf, 64)

		_, err := Decode(dw[:3])

		Expect(err).To(MatchError(ErrTruncated))
	})

	It("should panic on oversized payloads", func() {
		Expect(func() { Header(OpWriteData, MaxPayload+1) }).To(Panic())
	})
})
