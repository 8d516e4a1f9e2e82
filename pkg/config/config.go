// Package config loads the settings of the lelink daemon.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"
	"github.com/muxable/lelink/pkg/l2cap"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalid           = errors.New("config: invalid value")
)

type Log struct {
	Level       string `toml:"level" yaml:"level" default:"info"`
	Development bool   `toml:"development" yaml:"development"`
}

type HCI struct {
	// Device is the HCI device index, -1 for the first available one.
	Device int `toml:"device" yaml:"device" default:"-1"`
}

// Queue sizes are in bytes including the two byte record headers.
type Queue struct {
	TX int `toml:"tx" yaml:"tx" default:"1024"`
	RX int `toml:"rx" yaml:"rx" default:"1024"`
}

type L2CAP struct {
	FragmentSize int `toml:"fragment_size" yaml:"fragment_size" default:"27"`
	MaxSDU       int `toml:"max_sdu" yaml:"max_sdu" default:"1024"`
}

type ATT struct {
	MaxMTU     int    `toml:"max_mtu" yaml:"max_mtu" default:"247"`
	DeviceName string `toml:"device_name" yaml:"device_name" default:"lelink"`
	Appearance uint16 `toml:"appearance" yaml:"appearance"`
}

// Connection holds the parameters requested from the central once
// connected. Intervals are in units of 1.25 ms and the timeout in 10 ms.
type Connection struct {
	Request     bool   `toml:"request" yaml:"request"`
	IntervalMin uint16 `toml:"interval_min" yaml:"interval_min" default:"24"`
	IntervalMax uint16 `toml:"interval_max" yaml:"interval_max" default:"40"`
	Latency     uint16 `toml:"latency" yaml:"latency"`
	Timeout     uint16 `toml:"timeout" yaml:"timeout" default:"400"`
}

// Advertising intervals are in units of 0.625 ms.
type Advertising struct {
	IntervalMin uint16 `toml:"interval_min" yaml:"interval_min" default:"160"`
	IntervalMax uint16 `toml:"interval_max" yaml:"interval_max" default:"240"`
}

type Config struct {
	Log          Log           `toml:"log" yaml:"log"`
	HCI          HCI           `toml:"hci" yaml:"hci"`
	Queue        Queue         `toml:"queue" yaml:"queue"`
	L2CAP        L2CAP         `toml:"l2cap" yaml:"l2cap"`
	ATT          ATT           `toml:"att" yaml:"att"`
	Connection   Connection    `toml:"connection" yaml:"connection"`
	Advertising  Advertising   `toml:"advertising" yaml:"advertising"`
	PollInterval time.Duration `toml:"poll_interval" yaml:"poll_interval" default:"1ms"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads the file at path, TOML or YAML by extension, over the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, c.Validate()
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = c.decodeTOML(buf)
	case ".yaml", ".yml":
		err = c.decodeYAML(buf)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, c.Validate()
}

func (c *Config) decodeTOML(buf []byte) error {
	md, err := toml.Decode(string(buf), c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys %v", undecoded)
	}
	return nil
}

func (c *Config) decodeYAML(buf []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Level parses the configured log level.
func (c *Config) Level() (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return l, fmt.Errorf("%w: log level %q", ErrInvalid, c.Log.Level)
	}
	return l, nil
}

// Validate reports every setting the daemon cannot run with.
func (c *Config) Validate() error {
	var err error
	_, lerr := c.Level()
	err = multierr.Append(err, lerr)
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
		}
	}
	check(c.HCI.Device >= -1, "hci device %d", c.HCI.Device)
	// a queue holds at least one record of the largest size
	check(c.Queue.TX >= 2+255, "tx queue of %d bytes", c.Queue.TX)
	check(c.Queue.RX >= 2+255, "rx queue of %d bytes", c.Queue.RX)
	check(c.L2CAP.FragmentSize >= 27 && c.L2CAP.FragmentSize <= 251, "l2cap fragment size %d", c.L2CAP.FragmentSize)
	check(c.L2CAP.MaxSDU > 0 && c.L2CAP.MaxSDU <= 0xFFFF, "l2cap max sdu %d", c.L2CAP.MaxSDU)
	check(c.ATT.MaxMTU >= 23 && c.ATT.MaxMTU <= 517, "att max mtu %d", c.ATT.MaxMTU)
	// the name is advertised next to the flags in 31 bytes
	check(c.ATT.DeviceName != "" && len(c.ATT.DeviceName) <= 26, "device name %q", c.ATT.DeviceName)
	check(c.PollInterval > 0, "poll interval %v", c.PollInterval)
	// an ATT response of a full MTU must fit the empty transmit queue
	if c.L2CAP.FragmentSize > 0 {
		need := l2cap.FramedSize(c.ATT.MaxMTU, c.L2CAP.FragmentSize)
		check(c.Queue.TX >= need, "tx queue of %d bytes cannot hold a %d byte att response framed in %d bytes",
			c.Queue.TX, c.ATT.MaxMTU, need)
	}

	p := c.Connection
	check(p.IntervalMin >= 6 && p.IntervalMin <= p.IntervalMax && p.IntervalMax <= 3200,
		"connection interval %d..%d", p.IntervalMin, p.IntervalMax)
	check(p.Latency <= 499, "connection latency %d", p.Latency)
	check(p.Timeout >= 10 && p.Timeout <= 3200, "supervision timeout %d", p.Timeout)
	// the timeout must exceed two of the longest effective intervals
	check(uint32(p.Timeout)*4 > (1+uint32(p.Latency))*uint32(p.IntervalMax),
		"supervision timeout %d too short for interval %d and latency %d", p.Timeout, p.IntervalMax, p.Latency)

	a := c.Advertising
	check(a.IntervalMin >= 0x20 && a.IntervalMin <= a.IntervalMax && a.IntervalMax <= 0x4000,
		"advertising interval %d..%d", a.IntervalMin, a.IntervalMax)
	return err
}
