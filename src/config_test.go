package satlink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name string, content string) string {
	t.Helper()

	var fname = filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fname, []byte(content), 0644))
	return fname
}

func TestDefaultConfigIsValid(t *testing.T) {
	var cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())

	var codec = cfg.CodecConfig()
	assert.Equal(t, "NOCALL", codec.Source)
	assert.Equal(t, CRCStrict, codec.CRCPolicy)

	var arb = cfg.ArbiterConfig()
	assert.Equal(t, DEFAULT_CCA_THRESHOLD, arb.Threshold)
	assert.Equal(t, DEFAULT_SETTLE, arb.Settle)
	assert.False(t, arb.FullDuplex)
}

func TestLoadConfigMissing(t *testing.T) {
	var fname = filepath.Join(t.TempDir(), "nothere.yaml")

	var cfg, err = LoadConfig(fname, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadConfig(fname, false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigYAML(t *testing.T) {
	var fname = writeConfig(t, "satlink.yaml", `
station:
  callsign: KK4HEJ
  ssid: 7
channel:
  cca_threshold: -95
  settle: 5ms
  full_duplex: true
link:
  crc_policy: lenient
transport:
  modem_device: /dev/ttyUSB0
ptt:
  chip: gpiochip0
  line: 17
log:
  level: debug
`)

	var cfg, err = LoadConfig(fname, false)
	require.NoError(t, err)

	assert.Equal(t, "KK4HEJ", cfg.Station.Callsign)
	assert.Equal(t, 7, cfg.Station.SSID)
	assert.Equal(t, "CQ", cfg.Station.Destination, "default kept")
	assert.Equal(t, -95, cfg.Channel.CCAThreshold)
	assert.Equal(t, 5*time.Millisecond, cfg.Channel.Settle)
	assert.True(t, cfg.Channel.FullDuplex)
	assert.Equal(t, CRCLenient, cfg.CodecConfig().CRCPolicy)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Transport.ModemDevice)
	assert.Equal(t, 9600, cfg.Transport.ModemBaud)
	assert.Equal(t, 17, cfg.PTT.Line)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigTOML(t *testing.T) {
	var fname = writeConfig(t, "satlink.toml", `
[station]
callsign = "W1AW"
destination = "KA2DEW"
dest_ssid = 2

[channel]
settle = "20ms"
txq_slots = 3

[link]
command_overflow = "drop-tail"
`)

	var cfg, err = LoadConfig(fname, false)
	require.NoError(t, err)

	assert.Equal(t, "W1AW", cfg.Station.Callsign)
	assert.Equal(t, "KA2DEW", cfg.Station.Destination)
	assert.Equal(t, 2, cfg.Station.DestSSID)
	assert.Equal(t, 20*time.Millisecond, cfg.Channel.Settle)
	assert.Equal(t, 3, cfg.Channel.TxQueueSlots)
	assert.Equal(t, OverflowDropTail.String(), cfg.Link.CommandOverflow)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	var cfg, err = LoadConfig(writeConfig(t, "empty.yaml", ""), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigUnknownKeys(t *testing.T) {
	var _, err = LoadConfig(writeConfig(t, "bad.yaml", "channel:\n  bogus: 1\n"), false)
	assert.ErrorContains(t, err, "bogus")

	_, err = LoadConfig(writeConfig(t, "bad.toml", "[channel]\nbogus = 1\n"), false)
	assert.ErrorContains(t, err, "unknown keys: channel.bogus")
}

func TestLoadConfigInvalid(t *testing.T) {
	var fname = writeConfig(t, "invalid.yaml", `
station:
  callsign: WAYTOOLONG
link:
  crc_policy: sometimes
  data_overflow: explode
log:
  level: chatty
`)

	var _, err = LoadConfig(fname, false)
	require.Error(t, err)

	// Everything wrong is reported, not just the first.
	assert.ErrorContains(t, err, fname)
	assert.ErrorContains(t, err, "station")
	assert.ErrorContains(t, err, "link.crc_policy")
	assert.ErrorContains(t, err, "link.data_overflow")
	assert.ErrorContains(t, err, "log.level")
}

func TestConfigValidateRanges(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Channel.Settle = -time.Millisecond
	cfg.Channel.TxQueueSlots = 0
	cfg.Link.PassInterval = 0
	cfg.Link.MaxOverflowPasses = 0
	cfg.Transport.HostDevice = "/dev/ttyS0"
	cfg.Transport.HostBaud = 0
	cfg.PTT.Chip = "gpiochip0"
	cfg.PTT.Line = -1

	var err = cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"channel.settle", "channel.txq_slots", "link.pass_interval", "link.max_overflow_passes", "transport.host_baud", "ptt.line"} {
		assert.ErrorContains(t, err, key)
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	var p, err = ParseOverflowPolicy("reject-write")
	require.NoError(t, err)
	assert.Equal(t, OverflowRejectWrite, p)

	_, err = ParseOverflowPolicy("whatever")
	assert.Error(t, err)
}
