// Package config loads the vlab-avamar worker configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vlab-avamar/internal/storage"
)

// Config is the complete worker configuration.
type Config struct {
	Libvirt LibvirtConfig `yaml:"libvirt"`
	Pools   storage.Pools `yaml:"pools"`

	// ImagesDir, when set, serves the image catalog from a plain directory
	// instead of the images pool.
	ImagesDir string `yaml:"images_dir,omitempty"`

	NATS     NATSConfig     `yaml:"nats"`
	Worker   WorkerConfig   `yaml:"worker"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Boot     BootConfig     `yaml:"boot"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Convert  ConvertConfig  `yaml:"convert"`
}

// LibvirtConfig locates the libvirt daemon.
type LibvirtConfig struct {
	Socket  string        `yaml:"socket"`
	Timeout time.Duration `yaml:"timeout"`
}

// NATSConfig configures the task transport.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Queue         string `yaml:"queue"`
}

// WorkerConfig configures the task worker.
type WorkerConfig struct {
	ID          string        `yaml:"id"`
	Concurrency int           `yaml:"concurrency"`
	ResultStore string        `yaml:"result_store"` // badger directory, empty keeps results in memory
	ResultTTL   time.Duration `yaml:"result_ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// BootConfig tunes the boot-readiness gate.
type BootConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	GraceDelay   time.Duration `yaml:"grace_delay"`
	Timeout      time.Duration `yaml:"timeout"` // zero waits forever
}

// TimeoutsConfig bounds platform waits.
type TimeoutsConfig struct {
	Poll     time.Duration `yaml:"poll"`
	Shutdown time.Duration `yaml:"shutdown"`
	State    time.Duration `yaml:"state"`
	IPWait   time.Duration `yaml:"ip_wait"`
}

// ConvertConfig controls the qemu-img conversion of VMDK disks to qcow2.
type ConvertConfig struct {
	QemuImg    string `yaml:"qemu_img"`
	ScratchDir string `yaml:"scratch_dir"` // empty uses the system temp dir
}

// Defaults.
const (
	DefaultSocket        = "/var/run/libvirt/libvirt-sock"
	DefaultNATSURL       = "nats://127.0.0.1:4222"
	DefaultSubjectPrefix = "vlab.avamar"
	DefaultQueue         = "vlab-avamar-workers"
	DefaultConcurrency   = 4
	DefaultResultTTL     = 7 * 24 * time.Hour
	DefaultMetricsAddr   = ":9464"
	DefaultLogLevel      = "info"
	DefaultBootPoll      = time.Second
	DefaultBootGrace     = 300 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultShutdown      = 2 * time.Minute
	DefaultStateTimeout  = 30 * time.Second
	DefaultIPWait        = 10 * time.Minute
)

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize trims input and fills unset fields with defaults.
func (c *Config) Normalize() {
	c.Libvirt.Socket = strings.TrimSpace(c.Libvirt.Socket)
	if c.Libvirt.Socket == "" {
		c.Libvirt.Socket = DefaultSocket
	}
	if c.Libvirt.Timeout == 0 {
		c.Libvirt.Timeout = 5 * time.Second
	}

	def := storage.DefaultPools()
	if c.Pools.Images.Name == "" {
		c.Pools.Images.Name = def.Images.Name
	}
	if c.Pools.Images.Path == "" {
		c.Pools.Images.Path = def.Images.Path
	}
	if c.Pools.Machines.Name == "" {
		c.Pools.Machines.Name = def.Machines.Name
	}
	if c.Pools.Machines.Path == "" {
		c.Pools.Machines.Path = def.Machines.Path
	}

	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.NATS.Queue == "" {
		c.NATS.Queue = DefaultQueue
	}

	if c.Worker.ID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Worker.ID, _, _ = strings.Cut(host, ".")
		}
	}
	c.Worker.ID = strings.ToLower(strings.TrimSpace(c.Worker.ID))
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = DefaultConcurrency
	}
	if c.Worker.ResultTTL == 0 {
		c.Worker.ResultTTL = DefaultResultTTL
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Boot.PollInterval == 0 {
		c.Boot.PollInterval = DefaultBootPoll
	}
	if c.Boot.GraceDelay == 0 {
		c.Boot.GraceDelay = DefaultBootGrace
	}

	if c.Timeouts.Poll == 0 {
		c.Timeouts.Poll = DefaultPollInterval
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = DefaultShutdown
	}
	if c.Timeouts.State == 0 {
		c.Timeouts.State = DefaultStateTimeout
	}
	if c.Timeouts.IPWait == 0 {
		c.Timeouts.IPWait = DefaultIPWait
	}

	c.Convert.QemuImg = strings.TrimSpace(c.Convert.QemuImg)
	if c.Convert.QemuImg == "" {
		c.Convert.QemuImg = storage.DefaultQemuImg
	}
	c.Convert.ScratchDir = strings.TrimSpace(c.Convert.ScratchDir)
}

// Validate checks the configuration for errors.
// It does not contact libvirt or NATS.
func (c *Config) Validate() error {
	if c.Libvirt.Timeout < 0 {
		return fmt.Errorf("libvirt.timeout must not be negative, got %s", c.Libvirt.Timeout)
	}

	if c.Pools.Images.Name == c.Pools.Machines.Name {
		return fmt.Errorf("pools.images and pools.machines must differ, both are %q", c.Pools.Images.Name)
	}
	for field, path := range map[string]string{
		"pools.images.path":   c.Pools.Images.Path,
		"pools.machines.path": c.Pools.Machines.Path,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must be absolute, got %q", field, path)
		}
	}

	if strings.ContainsAny(c.NATS.SubjectPrefix, " *>") || strings.HasSuffix(c.NATS.SubjectPrefix, ".") {
		return fmt.Errorf("nats.subject_prefix is not a valid subject prefix: %q", c.NATS.SubjectPrefix)
	}

	if c.Worker.ID == "" {
		return fmt.Errorf("worker.id is required")
	}
	if strings.ContainsAny(c.Worker.ID, " ./*>") {
		return fmt.Errorf("worker.id must not contain spaces, dots, slashes or wildcards, got %q", c.Worker.ID)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be > 0, got %d", c.Worker.Concurrency)
	}
	if c.Worker.ResultTTL < 0 {
		return fmt.Errorf("worker.result_ttl must not be negative, got %s", c.Worker.ResultTTL)
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Boot.PollInterval <= 0 {
		return fmt.Errorf("boot.poll_interval must be > 0, got %s", c.Boot.PollInterval)
	}
	if c.Boot.GraceDelay < 0 || c.Boot.Timeout < 0 {
		return fmt.Errorf("boot.grace_delay and boot.timeout must not be negative")
	}

	if c.Timeouts.Poll <= 0 || c.Timeouts.Shutdown <= 0 || c.Timeouts.State <= 0 {
		return fmt.Errorf("timeouts.poll, timeouts.shutdown and timeouts.state must be > 0")
	}
	if c.Timeouts.IPWait < 0 {
		return fmt.Errorf("timeouts.ip_wait must not be negative, got %s", c.Timeouts.IPWait)
	}

	if c.Convert.ScratchDir != "" && !strings.HasPrefix(c.Convert.ScratchDir, "/") {
		return fmt.Errorf("convert.scratch_dir must be absolute, got %q", c.Convert.ScratchDir)
	}

	return nil
}

// Parse decodes, normalizes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	c.Normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &c, nil
}

// LoadFromFile loads the configuration at path. An empty path yields the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}
