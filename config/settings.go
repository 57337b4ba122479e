package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/gpucs/device"
)

// EnvPrefix starts the name of every environment variable read by Load.
const EnvPrefix = "GPUCS_"

type setting struct {
	name   string
	usage  string
	isBool bool
	get    func(c *Config) string
	set    func(c *Config, v string) error
}

func (s setting) env() string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(s.name, "-", "_"))
}

func boolSetting(name, usage string, field func(c *Config) *bool) setting {
	return setting{
		name:   name,
		usage:  usage,
		isBool: true,
		get: func(c *Config) string {
			return strconv.FormatBool(*field(c))
		},
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}

			*field(c) = b

			return nil
		},
	}
}

func intSetting(name, usage string, field func(c *Config) *int) setting {
	return setting{
		name:  name,
		usage: usage,
		get: func(c *Config) string {
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}

			*field(c) = n

			return nil
		},
	}
}

var settings = []setting{
	{
		name:  "backend",
		usage: "device backend to run against",
		get:   func(c *Config) string { return c.Backend },
		set: func(c *Config, v string) error {
			c.Backend = strings.ToLower(strings.TrimSpace(v))
			return nil
		},
	},
	{
		name:  "engines",
		usage: "comma separated engine classes, e.g. gfx,compute,dma",
		get:   func(c *Config) string { return c.Engines.String() },
		set: func(c *Config, v string) error {
			m, err := device.ParseEngineMask(v)
			if err == nil {
				c.Engines = m
			}

			return err
		},
	},
	{
		name:  "protocol",
		usage: "kernel, user or both",
		get:   func(c *Config) string { return formatProtocols(c.Protocols) },
		set: func(c *Config, v string) error {
			ps, err := parseProtocols(v)
			if err == nil {
				c.Protocols = ps
			}

			return err
		},
	},
	boolSetting("secure", "submit with encrypted buffers",
		func(c *Config) *bool { return &c.Secure }),
	{
		name:  "timeout",
		usage: "fence and timeline wait timeout, 0 waits forever",
		get:   func(c *Config) string { return c.Timeout.String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err == nil {
				c.Timeout = d
			}

			return err
		},
	},
	intSetting("nop-rounds", "rounds per lane of the nop test",
		func(c *Config) *int { return &c.NopRounds }),
	{
		name:  "db",
		usage: "record results to this sqlite database, without suffix",
		get:   func(c *Config) string { return c.DBPath },
		set: func(c *Config, v string) error {
			c.DBPath = v
			return nil
		},
	},
	boolSetting("monitor", "serve the monitoring page during the run",
		func(c *Config) *bool { return &c.Monitor }),
	intSetting("monitor-port", "port of the monitoring server, 0 picks one",
		func(c *Config) *int { return &c.MonitorPort }),
	boolSetting("open-browser", "open the monitoring page in a browser",
		func(c *Config) *bool { return &c.OpenBrowser }),
	{
		name:  "monitor-assets",
		usage: "serve the monitoring page from this directory",
		get:   func(c *Config) string { return c.MonitorAssets },
		set: func(c *Config, v string) error {
			c.MonitorAssets = v
			return nil
		},
	},
	boolSetting("leak-check", "check kmemleak around the run",
		func(c *Config) *bool { return &c.LeakCheck }),
	boolSetting("parallel-ids", "use globally unique round IDs",
		func(c *Config) *bool { return &c.ParallelIDs }),
	boolSetting("verbose", "log every round",
		func(c *Config) *bool { return &c.Verbose }),
	{
		name:  "sim-lanes",
		usage: "kernel ring masks of the simulated device, e.g. gfx=0x1,dma=0x3",
		get: func(c *Config) string {
			return formatEngineValues(c.Sim.KernelLanes, true)
		},
		set: func(c *Config, v string) error {
			m, err := parseEngineValues(v)
			if err == nil {
				c.Sim.KernelLanes = m
			}

			return err
		},
	},
	{
		name:  "sim-userq-slots",
		usage: "user queue slots of the simulated device, e.g. gfx=1,dma=2",
		get: func(c *Config) string {
			return formatEngineValues(c.Sim.UserQueueSlots, false)
		},
		set: func(c *Config, v string) error {
			m, err := parseEngineValues(v)
			if err == nil {
				c.Sim.UserQueueSlots = m
			}

			return err
		},
	},
	{
		name:  "sim-memory-mib",
		usage: "VRAM and GTT size of the simulated device",
		get: func(c *Config) string {
			return strconv.FormatUint(c.Sim.MemoryMiB, 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err == nil {
				c.Sim.MemoryMiB = n
			}

			return err
		},
	},
	{
		name:  "sim-inject",
		usage: "result codes to inject, e.g. submit=ECANCELED,query_fence=0",
		get:   func(c *Config) string { return formatInjections(c.Sim.Inject) },
		set: func(c *Config, v string) error {
			inj, err := parseInjections(v)
			if err == nil {
				c.Sim.Inject = inj
			}

			return err
		},
	},
}
