// Package config loads the settings of a run. Values come from defaults, a
// .env file, GPUCS_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/simdev"
	"github.com/spf13/pflag"
)

// BackendSim is the in-process simulated device.
const BackendSim = "sim"

// Config holds the settings of a run.
type Config struct {
	Backend   string
	Engines   device.EngineMask
	Protocols []device.Protocol
	Secure    bool

	// Timeout bounds every fence and timeline wait. Zero waits forever.
	Timeout   time.Duration
	NopRounds int

	// DBPath is where results are recorded, without the .sqlite3 suffix.
	// Empty disables recording.
	DBPath string

	Monitor     bool
	MonitorPort int
	OpenBrowser bool

	// MonitorAssets is a directory to serve the monitoring page from. Empty
	// serves the built-in page.
	MonitorAssets string

	LeakCheck   bool
	ParallelIDs bool

	// Verbose logs every round, not only tolerated codes and failures.
	Verbose bool

	Sim SimConfig
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Backend: BackendSim,
		Engines: device.MaskOf(device.EngineGFX, device.EngineCompute,
			device.EngineDMA),
		Protocols: []device.Protocol{device.ProtocolKernel},
		NopRounds: 16,
		Sim:       defaultSim(),
	}
}

// Load returns the defaults overridden by the .env file at envFile, if it
// exists, and by the process environment.
func Load(envFile string) (Config, error) {
	c := Defaults()

	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, fs.ErrNotExist):
		default:
			return c, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	err := c.ApplyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := fileVals[key]

		return v, ok
	})

	return c, err
}

// ApplyEnv overrides the settings whose GPUCS_* variable lookup finds.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	for _, s := range settings {
		v, ok := lookup(s.env())
		if !ok {
			continue
		}

		if err := s.set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.env(), err))
		}
	}

	return errors.Join(errs...)
}

// RegisterFlags adds one flag per setting to fs, with the current values as
// defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		fs.String(s.name, s.get(c), s.usage)

		if s.isBool {
			fs.Lookup(s.name).NoOptDefVal = "true"
		}
	}
}

// ApplyFlags overrides the settings whose flags were set on the command
// line.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var errs []error

	for _, s := range settings {
		if !fs.Changed(s.name) {
			continue
		}

		if err := s.set(c, fs.Lookup(s.name).Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", s.name, err))
		}
	}

	return errors.Join(errs...)
}

// Validate reports settings that cannot be used together.
func (c Config) Validate() error {
	if c.Backend != BackendSim {
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}

	if c.Engines == 0 {
		return errors.New("no engine class selected")
	}

	if len(c.Protocols) == 0 {
		return errors.New("no protocol selected")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", c.Timeout)
	}

	if c.NopRounds <= 0 {
		return fmt.Errorf("nop rounds must be positive, got %d", c.NopRounds)
	}

	if c.MonitorAssets != "" {
		info, err := os.Stat(c.MonitorAssets)
		if err != nil {
			return fmt.Errorf("monitor assets: %w", err)
		}

		if !info.IsDir() {
			return fmt.Errorf("monitor assets: %s is not a directory",
				c.MonitorAssets)
		}
	}

	return nil
}

// WaitTimeout is Timeout with zero mapped to an infinite wait.
func (c Config) WaitTimeout() time.Duration {
	if c.Timeout == 0 {
		return device.TimeoutInfinite
	}

	return c.Timeout
}

// SimConfig holds the parameters of the simulated device.
type SimConfig struct {
	KernelLanes    map[device.EngineClass]uint32
	UserQueueSlots map[device.EngineClass]uint32

	// MemoryMiB is the size of the VRAM and GTT domains.
	MemoryMiB uint64

	// Inject queues result codes that device entry points return in order.
	Inject []Injection
}

// Injection is one queued result code.
type Injection struct {
	Op   simdev.Op
	Code syscall.Errno
}

func defaultSim() SimConfig {
	return SimConfig{
		KernelLanes: map[device.EngineClass]uint32{
			device.EngineGFX:     0x1,
			device.EngineCompute: 0xf,
			device.EngineDMA:     0x3,
		},
		UserQueueSlots: map[device.EngineClass]uint32{
			device.EngineGFX:     1,
			device.EngineCompute: 2,
			device.EngineDMA:     2,
		},
		MemoryMiB: 256,
	}
}

// Build creates the simulated device.
func (s SimConfig) Build(name string) *simdev.Device {
	b := simdev.MakeBuilder().
		WithMemory(device.DomainVRAM, s.MemoryMiB<<20).
		WithMemory(device.DomainGTT, s.MemoryMiB<<20)

	for e := device.EngineClass(0); e < device.NumEngineClasses; e++ {
		b = b.WithLanes(e, s.KernelLanes[e]).
			WithUserQueueSlots(e, s.UserQueueSlots[e])
	}

	d := b.Build(name)

	for _, inj := range s.Inject {
		if inj.Code == 0 {
			d.Inject(inj.Op, nil)
			continue
		}

		d.Inject(inj.Op, inj.Code)
	}

	return d
}

var opNames = map[string]simdev.Op{
	"alloc":          simdev.OpAllocBuffer,
	"create_context": simdev.OpCreateContext,
	"submit":         simdev.OpSubmit,
	"query_fence":    simdev.OpQueryFence,
	"create_userq":   simdev.OpCreateUserQueue,
	"signal_userq":   simdev.OpSignalUserQueue,
}

func opName(op simdev.Op) string {
	for n, o := range opNames {
		if o == op {
			return n
		}
	}

	return strconv.Itoa(int(op))
}

// pairs splits "a=1,b=2" into key/value pairs.
func pairs(s string) ([][2]string, error) {
	var out [][2]string

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not key=value", part)
		}

		out = append(out, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
	}

	return out, nil
}

func parseEngineValues(s string) (map[device.EngineClass]uint32, error) {
	kvs, err := pairs(s)
	if err != nil {
		return nil, err
	}

	out := make(map[device.EngineClass]uint32, len(kvs))
	for _, kv := range kvs {
		e, err := device.ParseEngineClass(kv[0])
		if err != nil {
			return nil, err
		}

		v, err := strconv.ParseUint(kv[1], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kv[0], err)
		}

		out[e] = uint32(v)
	}

	return out, nil
}

func formatEngineValues(m map[device.EngineClass]uint32, hex bool) string {
	engines := make([]device.EngineClass, 0, len(m))
	for e := range m {
		engines = append(engines, e)
	}

	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })

	parts := make([]string, 0, len(engines))
	for _, e := range engines {
		if hex {
			parts = append(parts, fmt.Sprintf("%s=%#x", e, m[e]))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%d", e, m[e]))
		}
	}

	return strings.Join(parts, ",")
}

func parseInjections(s string) ([]Injection, error) {
	kvs, err := pairs(s)
	if err != nil {
		return nil, err
	}

	out := make([]Injection, 0, len(kvs))
	for _, kv := range kvs {
		op, ok := opNames[strings.ToLower(kv[0])]
		if !ok {
			return nil, fmt.Errorf("unknown device operation %q", kv[0])
		}

		code, err := device.ParseCode(kv[1])
		if err != nil {
			return nil, err
		}

		out = append(out, Injection{Op: op, Code: code})
	}

	return out, nil
}

func formatInjections(inj []Injection) string {
	parts := make([]string, 0, len(inj))
	for _, i := range inj {
		parts = append(parts,
			opName(i.Op)+"="+strings.TrimPrefix(device.CodeName(i.Code), "-"))
	}

	return strings.Join(parts, ",")
}

func parseProtocols(s string) ([]device.Protocol, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") {
		return []device.Protocol{device.ProtocolKernel, device.ProtocolUser}, nil
	}

	var out []device.Protocol

	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		p, err := device.ParseProtocol(part)
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, nil
}

func formatProtocols(ps []device.Protocol) string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.String())
	}

	return strings.Join(names, ",")
}
