package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Read configuration.
 *
 * Description:	Everything has a default so a missing file, or a file with
 *		only a few keys, is fine.  Keys that aren't recognized are
 *		an error rather than being quietly ignored.
 *
 *		The file name extension picks the format:
 *
 *			.yaml, .yml	YAML
 *			.toml		TOML
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Buffer capacities are fixed when the program is built.
const CommandBufferSize = 1024
const DataBufferSize = 4096

const DEFAULT_CONFIG_FILE = "satlink.yaml"

type StationConfig struct {
	Callsign    string `yaml:"callsign" toml:"callsign"`
	SSID        int    `yaml:"ssid" toml:"ssid"`
	Destination string `yaml:"destination" toml:"destination"`
	DestSSID    int    `yaml:"dest_ssid" toml:"dest_ssid"`
}

type ChannelConfig struct {
	CCAThreshold int           `yaml:"cca_threshold" toml:"cca_threshold"` // dBm
	Settle       time.Duration `yaml:"settle" toml:"settle"`
	FullDuplex   bool          `yaml:"full_duplex" toml:"full_duplex"`
	QuietRSSI    int           `yaml:"quiet_rssi" toml:"quiet_rssi"` // Reported by a stream radio.
	TxQueueSlots int           `yaml:"txq_slots" toml:"txq_slots"`
}

type LinkConfig struct {
	CRCPolicy         string        `yaml:"crc_policy" toml:"crc_policy"`
	PassInterval      time.Duration `yaml:"pass_interval" toml:"pass_interval"`
	MaxOverflowPasses int           `yaml:"max_overflow_passes" toml:"max_overflow_passes"`
	CommandOverflow   string        `yaml:"command_overflow" toml:"command_overflow"`
	DataOverflow      string        `yaml:"data_overflow" toml:"data_overflow"`
}

type TransportConfig struct {
	HostDevice  string `yaml:"host_device" toml:"host_device"` // Serial port to the host.  Empty for none.
	HostBaud    int    `yaml:"host_baud" toml:"host_baud"`
	CommandPty  bool   `yaml:"command_pty" toml:"command_pty"`
	ModemDevice string `yaml:"modem_device" toml:"modem_device"` // Serial port to the radio modem.
	ModemBaud   int    `yaml:"modem_baud" toml:"modem_baud"`
}

type PTTConfig struct {
	Chip   string `yaml:"chip" toml:"chip"` // e.g. gpiochip0.  Empty for no PTT.
	Line   int    `yaml:"line" toml:"line"`
	Invert bool   `yaml:"invert" toml:"invert"`
}

type LogConfig struct {
	Level           string `yaml:"level" toml:"level"`
	FrameLogDir     string `yaml:"frame_log_dir" toml:"frame_log_dir"` // Empty for none.
	FrameLogPattern string `yaml:"frame_log_pattern" toml:"frame_log_pattern"`
	TimestampFormat string `yaml:"timestamp_format" toml:"timestamp_format"`
	MQTTURL         string `yaml:"mqtt_url" toml:"mqtt_url"`
}

type Config struct {
	Station   StationConfig   `yaml:"station" toml:"station"`
	Channel   ChannelConfig   `yaml:"channel" toml:"channel"`
	Link      LinkConfig      `yaml:"link" toml:"link"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	PTT       PTTConfig       `yaml:"ptt" toml:"ptt"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Station: StationConfig{
			Callsign:    "NOCALL",
			SSID:        0,
			Destination: "CQ",
			DestSSID:    0,
		},
		Channel: ChannelConfig{
			CCAThreshold: DEFAULT_CCA_THRESHOLD,
			Settle:       DEFAULT_SETTLE,
			QuietRSSI:    -120,
			TxQueueSlots: DEFAULT_TQ_SLOTS,
		},
		Link: LinkConfig{
			CRCPolicy:         CRCStrict.String(),
			PassInterval:      time.Millisecond,
			MaxOverflowPasses: 100,
			CommandOverflow:   OverflowRejectWrite.String(),
			DataOverflow:      OverflowDropTail.String(),
		},
		Transport: TransportConfig{
			HostBaud:  115200,
			ModemBaud: 9600,
		},
		Log: LogConfig{
			Level:           "info",
			FrameLogPattern: DEFAULT_FRAME_LOG_PATTERN,
			TimestampFormat: DEFAULT_TIMESTAMP_FORMAT,
		},
	}
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case OverflowDropTail.String():
		return OverflowDropTail, nil
	case OverflowRejectWrite.String():
		return OverflowRejectWrite, nil
	default:
		return OverflowDropTail, fmt.Errorf("unknown overflow policy %q, expected %s or %s", s, OverflowDropTail, OverflowRejectWrite)
	}
}

// Validate checks ranges and names.  All problems are reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if _, err := NewHeaderTemplate(c.Station.Destination, c.Station.DestSSID, c.Station.Callsign, c.Station.SSID); err != nil {
		errs = append(errs, fmt.Errorf("station: %w", err))
	}
	if c.Channel.Settle < 0 {
		errs = append(errs, fmt.Errorf("channel.settle %s must not be negative", c.Channel.Settle))
	}
	if c.Channel.TxQueueSlots < 1 {
		errs = append(errs, fmt.Errorf("channel.txq_slots %d must be at least 1", c.Channel.TxQueueSlots))
	}
	if _, err := ParseCRCPolicy(c.Link.CRCPolicy); err != nil {
		errs = append(errs, fmt.Errorf("link.crc_policy: %w", err))
	}
	if c.Link.PassInterval <= 0 {
		errs = append(errs, fmt.Errorf("link.pass_interval %s must be positive", c.Link.PassInterval))
	}
	if c.Link.MaxOverflowPasses < 1 {
		errs = append(errs, fmt.Errorf("link.max_overflow_passes %d must be at least 1", c.Link.MaxOverflowPasses))
	}
	if _, err := ParseOverflowPolicy(c.Link.CommandOverflow); err != nil {
		errs = append(errs, fmt.Errorf("link.command_overflow: %w", err))
	}
	if _, err := ParseOverflowPolicy(c.Link.DataOverflow); err != nil {
		errs = append(errs, fmt.Errorf("link.data_overflow: %w", err))
	}
	if c.Transport.HostDevice != "" && c.Transport.HostBaud <= 0 {
		errs = append(errs, fmt.Errorf("transport.host_baud %d must be positive", c.Transport.HostBaud))
	}
	if c.Transport.ModemDevice != "" && c.Transport.ModemBaud <= 0 {
		errs = append(errs, fmt.Errorf("transport.modem_baud %d must be positive", c.Transport.ModemBaud))
	}
	if c.PTT.Chip != "" && c.PTT.Line < 0 {
		errs = append(errs, fmt.Errorf("ptt.line %d must not be negative", c.PTT.Line))
	}
	if _, err := NewLogger(io.Discard, c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// CodecConfig for the station.  Validate first.
func (c *Config) CodecConfig() CodecConfig {
	var policy, _ = ParseCRCPolicy(c.Link.CRCPolicy)
	return CodecConfig{
		Destination:     c.Station.Destination,
		DestinationSSID: c.Station.DestSSID,
		Source:          c.Station.Callsign,
		SourceSSID:      c.Station.SSID,
		CRCPolicy:       policy,
	}
}

func (c *Config) ArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		Threshold:  c.Channel.CCAThreshold,
		Settle:     c.Channel.Settle,
		FullDuplex: c.Channel.FullDuplex,
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        LoadConfig
 *
 * Purpose:     Read configuration file on top of the defaults.
 *
 * Inputs:	fname	- File name.  A missing file is not an error
 *			  when missingOK is set.
 *
 * Returns:	Validated configuration.
 *
 *--------------------------------------------------------------------*/

func LoadConfig(fname string, missingOK bool) (*Config, error) {
	var cfg = DefaultConfig()

	var fp, err = os.Open(fname)
	if err != nil {
		if missingOK && errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	defer fp.Close()

	switch strings.ToLower(filepath.Ext(fname)) {
	case ".toml":
		err = decodeTOML(fp, cfg)
	default:
		err = decodeYAML(fp, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}

	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	var dec = yaml.NewDecoder(r)
	dec.KnownFields(true)

	var err = dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil // Empty file.
	}
	return err
}

func decodeTOML(r io.Reader, cfg *Config) error {
	var md, err = toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		var keys = make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}
