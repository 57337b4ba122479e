package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/harness"
	"github.com/sarchlab/gpucs/idgen"
	"github.com/sarchlab/gpucs/ring"
	"github.com/sarchlab/gpucs/simdev"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fixedLanes []*ring.Context

func (l fixedLanes) Contexts() []*ring.Context {
	return l
}

func (l fixedLanes) Status() []ring.Status {
	out := make([]ring.Status, 0, len(l))
	for _, c := range l {
		out = append(out, c.Snapshot())
	}

	return out
}

type fixedProgress harness.ProgressStatus

func (p fixedProgress) Status() harness.ProgressStatus {
	return harness.ProgressStatus(p)
}

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		c      *ring.Context
		server *httptest.Server
	)

	get := func(path string) *http.Response {
		rsp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())

		return rsp
	}

	BeforeEach(func() {
		c = ring.New(device.EngineDMA, 1, device.ProtocolKernel, nil,
			ring.Options{WriteLength: 128})
		c.MustTransition(ring.StateQueueCreated)

		m = NewMonitor()
		m.RegisterLanes(fixedLanes{c})
		m.RegisterProgress(fixedProgress{Rounds: 3, Verified: 2})

		server = httptest.NewServer(m.router())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should list lanes", func() {
		rsp := get("/api/lanes")
		defer rsp.Body.Close()

		var status []ring.Status
		Expect(json.NewDecoder(rsp.Body).Decode(&status)).To(Succeed())

		Expect(status).To(Equal([]ring.Status{{
			Name:        "dma[1].kernel",
			Engine:      "dma",
			Lane:        1,
			Protocol:    "kernel",
			WriteLength: 128,
			State:       "Idle",
			SubmitCode:  "0",
			WaitCode:    "0",
		}}))
	})

	It("should serialize a lane", func() {
		rsp := get("/api/lane/" + url.PathEscape("dma[1].kernel"))
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		var body map[string]any
		Expect(json.NewDecoder(rsp.Body).Decode(&body)).To(Succeed())
		Expect(body).NotTo(BeEmpty())
	})

	It("should serialize a field of a lane", func() {
		req := url.PathEscape(
			`{"lane_name":"dma[1].kernel","field_name":"WriteLength"}`)

		rsp := get("/api/field/" + req)
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})

	It("should serialize the round of a lane", func() {
		c.BeginRound("7")
		c.SetSubmitCode(device.ECANCELED)

		req := url.PathEscape(
			`{"lane_name":"dma[1].kernel","field_name":"SubmitCode"}`)

		rsp := get("/api/field/" + req)
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("-ECANCELED"))
	})

	It("should reject unknown fields", func() {
		req := url.PathEscape(
			`{"lane_name":"dma[1].kernel","field_name":"Program"}`)

		rsp := get("/api/field/" + req)
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should serve lanes while rounds run on them", func() {
		dev := simdev.MakeBuilder().Build("GPU")
		defer dev.Close()

		p := harness.MakePlatformBuilder().
			WithIDGenerator(idgen.NewSequential()).
			Build(dev)

		server.Close()
		m.RegisterLanes(p.Lanes)
		server = httptest.NewServer(m.router())

		done := make(chan error, 1)
		go func() {
			done <- p.Runner.Nop(device.EngineDMA, device.ProtocolKernel, 200)
		}()

		paths := []string{
			"/api/lanes",
			"/api/lane/" + url.PathEscape("dma[0].kernel"),
			"/api/field/" + url.PathEscape(
				`{"lane_name":"dma[0].kernel","field_name":"Round"}`),
		}

		polls := 0
		for running := true; running; {
			for _, path := range paths {
				rsp := get(path)
				_, err := io.Copy(io.Discard, rsp.Body)
				Expect(err).NotTo(HaveOccurred())
				rsp.Body.Close()

				Expect(rsp.StatusCode).To(
					BeElementOf(http.StatusOK, http.StatusNotFound))
			}
			polls++

			select {
			case err := <-done:
				Expect(err).NotTo(HaveOccurred())
				running = false
			default:
			}
		}

		Expect(polls).To(BeNumerically(">=", 1))
		Expect(p.Lanes.Contexts()).To(BeEmpty())
	})

	It("should report unknown lanes", func() {
		rsp := get("/api/lane/" + url.PathEscape("gfx[0].user"))
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field requests", func() {
		rsp := get("/api/field/" + url.PathEscape("{"))
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should report runner status", func() {
		rsp := get("/api/status")
		defer rsp.Body.Close()

		var status harness.ProgressStatus
		Expect(json.NewDecoder(rsp.Body).Decode(&status)).To(Succeed())
		Expect(status.Rounds).To(Equal(uint64(3)))
		Expect(status.Verified).To(Equal(uint64(2)))
	})

	It("should report progress bars until they complete", func() {
		bar := m.CreateProgressBar("write_linear", 4)
		bar.IncrementInProgress(2)
		bar.MoveInProgressToFinished(1)

		rsp := get("/api/progress")
		var bars []ProgressBarStatus
		Expect(json.NewDecoder(rsp.Body).Decode(&bars)).To(Succeed())
		rsp.Body.Close()

		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("write_linear"))
		Expect(bars[0].Finished).To(Equal(uint64(1)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		m.CompleteProgressBar(bar)

		rsp = get("/api/progress")
		bars = nil
		Expect(json.NewDecoder(rsp.Body).Decode(&bars)).To(Succeed())
		rsp.Body.Close()

		Expect(bars).To(BeEmpty())
	})

	It("should report resource usage", func() {
		rsp := get("/api/resource")
		defer rsp.Body.Close()

		var res resourceRsp
		Expect(json.NewDecoder(rsp.Body).Decode(&res)).To(Succeed())
		Expect(res.MemorySize).To(BeNumerically(">", 0))
	})

	It("should serve the monitoring page", func() {
		rsp := get("/")
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})

	It("should serve the monitoring page from a directory", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "index.html"),
			[]byte("<p>lanes</p>"), 0o644)).To(Succeed())

		server.Close()
		server = httptest.NewServer(m.WithAssetDir(dir).router())

		rsp := get("/")
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("<p>lanes</p>"))
	})

	It("should fall back to a random port", func() {
		m.WithPortNumber(80)
		Expect(m.portNumber).To(BeZero())

		port := m.StartServer()
		defer func() { Expect(m.StopServer()).To(Succeed()) }()

		Expect(port).To(BeNumerically(">", 0))
	})
})
