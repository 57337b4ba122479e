package cmd

import (
	"bytes"
	"path/filepath"

	"github.com/sarchlab/gpucs/config"
	"github.com/sarchlab/gpucs/device"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Test cases", func() {
	It("should expand tests over engines and protocols", func() {
		cfg := config.Defaults()
		cfg.Engines = device.MaskOf(device.EngineGFX, device.EngineDMA)
		cfg.Protocols = []device.Protocol{
			device.ProtocolKernel, device.ProtocolUser,
		}

		cases, err := buildCases(cfg, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(cases).To(HaveLen(18))
		Expect(cases[0].name).To(Equal("write-linear/gfx/kernel"))
		Expect(cases[2].name).To(Equal("write-linear-multi/gfx,dma/kernel"))
		Expect(cases[17].name).To(Equal("nop/dma/user"))
	})

	It("should reject unknown tests", func() {
		_, err := buildCases(config.Defaults(), []string{"draw"})

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Commands", func() {
	var (
		dir string
		out *bytes.Buffer
	)

	execute := func(args ...string) error {
		root := newRootCmd()
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs(append(args,
			"--env-file", filepath.Join(dir, "missing.env")))

		return root.Execute()
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = new(bytes.Buffer)
	})

	It("should run nop rounds on every lane", func() {
		err := execute("run", "nop", "--engines=dma", "--nop-rounds=2")

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("[PASS] nop/dma/kernel"))
		Expect(out.String()).To(ContainSubstring("4 rounds"))
	})

	It("should run through both protocols", func() {
		err := execute("run", "write-linear", "--engines=gfx",
			"--protocol=both")

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("[PASS] write-linear/gfx/kernel"))
		Expect(out.String()).To(ContainSubstring("[PASS] write-linear/gfx/user"))
	})

	It("should skip engines without lanes", func() {
		err := execute("run", "nop", "--engines=vce")

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("[SKIP] nop/vce/kernel"))
	})

	It("should fail on hard failures", func() {
		err := execute("run", "nop", "--engines=compute",
			"--sim-inject=submit=EINVAL")

		Expect(err).To(MatchError("1 of 1 tests failed"))
		Expect(out.String()).To(ContainSubstring("[FAIL] nop/compute/kernel"))
		Expect(out.String()).To(ContainSubstring("-EINVAL"))
	})

	It("should reject unknown tests", func() {
		Expect(execute("run", "draw")).To(HaveOccurred())
	})

	It("should reject invalid settings", func() {
		Expect(execute("run", "nop", "--nop-rounds=0")).To(HaveOccurred())
	})

	It("should list lanes", func() {
		err := execute("lanes", "--engines=gfx,dma")

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("gfx[0].kernel"))
		Expect(out.String()).To(ContainSubstring("dma[1].kernel"))
	})

	It("should check for leaks without kmemleak", func() {
		err := execute("leak", "--engines=dma", "--protocol=both",
			"--iterations=2",
			"--kmemleak", filepath.Join(dir, "kmemleak"))

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("[SKIP] leak check"))
		Expect(out.String()).To(ContainSubstring("[PASS] device objects"))
	})

	It("should record rounds and report them", func() {
		db := filepath.Join(dir, "run")

		err := execute("run", "copy-linear", "--engines=dma", "--db", db)
		Expect(err).NotTo(HaveOccurred())

		out.Reset()
		err = execute("report", db)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("Subcommand: run"))
		Expect(out.String()).To(ContainSubstring("8 rounds"))
		Expect(out.String()).To(ContainSubstring("dma[0].kernel"))
		Expect(out.String()).To(ContainSubstring("dma[1].kernel"))
	})
})
