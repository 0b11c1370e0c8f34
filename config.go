package mavftp

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls engine tunables. Zero-value fields are replaced by
// defaults() with the values the original implementation hard-codes.
type Config struct {
	// Debug gates extra diagnostic logging: 1 adds session lifecycle events
	// (terminate, retries, EOF, burst progress), 2 also logs every frame
	// sent and received. Command intent, results and failures are logged at
	// every Debug value.
	Debug int `yaml:"debug"`

	// PktLossRx/PktLossTx are synthetic loss percentages (0..100) used to
	// exercise gap repair and write-stall inference in tests.
	PktLossRx int `yaml:"pkt_loss_rx"`
	PktLossTx int `yaml:"pkt_loss_tx"`

	// BurstReadSize is the requested burst payload size, clamped to
	// [1, MaxPayload].
	BurstReadSize int `yaml:"burst_read_size"`
	// MaxBacklog bounds concurrently outstanding gap reads once EOF has
	// been reached.
	MaxBacklog int `yaml:"max_backlog"`
	// WriteSize is the write block size.
	WriteSize int `yaml:"write_size"`
	// WriteQSize bounds outstanding (un-acked) writes.
	WriteQSize int `yaml:"write_qsize"`
	// RetryTime is the gap/burst retry deadline.
	RetryTime time.Duration `yaml:"retry_time"`

	// FrameRateLimit caps outbound frames per second on a slow link. Zero
	// means unlimited. See golang.org/x/time/rate wiring in engine.go.
	FrameRateLimit float64 `yaml:"frame_rate_limit"`
}

// defaults fills zero-valued fields with the original implementation's
// hard-coded defaults (pymavlink mavftp.py MAVFTP.__init__).
func (c *Config) defaults() {
	if c.BurstReadSize <= 0 {
		c.BurstReadSize = defaultBurstReadSize
	}
	if c.BurstReadSize > MaxPayload {
		c.BurstReadSize = MaxPayload
	}
	if c.MaxBacklog <= 0 {
		c.MaxBacklog = defaultMaxBacklog
	}
	if c.WriteSize <= 0 {
		c.WriteSize = defaultWriteSize
	}
	if c.WriteQSize <= 0 {
		c.WriteQSize = defaultWriteQSize
	}
	if c.RetryTime <= 0 {
		c.RetryTime = defaultRetryTime
	}
}

// DefaultConfig returns a Config with all tunables set to the original
// implementation's defaults.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

// LoadConfig reads a YAML-encoded Config from path, applying defaults to
// any field left unset in the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mavftp: read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("mavftp: parse config: %w", err)
	}
	c.defaults()
	return &c, nil
}
