package main

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	satlink "github.com/doismellburning/satlink/src"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	var cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	var err = cmd.Execute()
	return out.String(), err
}

func TestEncodeDecode(t *testing.T) {
	var encoded, err = execute(t, "encode", "--src", "KK4HEJ", "--src-ssid", "7", "HELLO")
	require.NoError(t, err)

	var frame = strings.TrimSpace(encoded)
	assert.True(t, strings.HasPrefix(frame, "00F15E48"), frame)
	assert.Len(t, frame, 2*satlink.EncodedSize(5))

	decoded, err := execute(t, "decode", frame)
	require.NoError(t, err)
	assert.Contains(t, decoded, "command:   0x00")
	assert.Contains(t, decoded, "KK4HEJ-7>CQ-0")
	assert.Contains(t, decoded, "corrected: 0 header, 0 payload")
	assert.Contains(t, decoded, "crc:       ok")
	assert.Contains(t, decoded, `text:      "HELLO"`)
}

func TestEncodeHexWithErrors(t *testing.T) {
	var encoded, err = execute(t, "encode", "-x", "-C", "9", "-e", "1", "DEADBEEF")
	require.NoError(t, err)

	var lines = strings.Split(strings.TrimSpace(encoded), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "# corrupted symbols at"))

	decoded, err := execute(t, "decode", lines[1])
	require.NoError(t, err)
	assert.Contains(t, decoded, "command:   0x09")
	assert.Contains(t, decoded, "payload:   DEADBEEF")
	assert.NotContains(t, decoded, "text:")
}

func TestDecodeGarbage(t *testing.T) {
	var out, err = execute(t, "decode", "00 11 22 33 44 55 66 77 88 99 AA BB CC DD EE FF 00 11 22 33 44 55 66")
	assert.ErrorIs(t, err, satlink.ErrBadSync)
	assert.Contains(t, out, "discarded after RawReceived")

	_, err = execute(t, "decode", "not hex")
	assert.Error(t, err)
}

func TestStressSingleErrors(t *testing.T) {
	var out, err = execute(t, "stress", "-n", "200", "-e", "1", "--seed", "42")
	require.NoError(t, err)

	assert.Contains(t, out, "frames:    200")
	assert.Contains(t, out, "corrected: 200")
	assert.Contains(t, out, "discarded: 0")
	assert.Contains(t, out, "silent:    0")
}

func TestVersion(t *testing.T) {
	var out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "satlink - Version")
}

func TestInjectErrors(t *testing.T) {
	var rng = rand.New(rand.NewPCG(1, 2))

	var frame = make([]byte, satlink.EncodedSize(10))
	var positions = injectErrors(rng, frame, 5)
	require.Len(t, positions, 5)

	for i, b := range frame {
		var hit = false
		for _, p := range positions {
			hit = hit || p == i
		}
		assert.Equal(t, hit, b != 0, "position %d", i)
	}

	for _, p := range positions {
		assert.GreaterOrEqual(t, p, protectedStart)
		assert.Less(t, p, len(frame)-satlink.IL2P_CRC_ENCODED_SIZE)
	}

	assert.Nil(t, injectErrors(rng, frame, 0))
	assert.Len(t, injectErrors(rng, make([]byte, satlink.IL2P_MIN_ENCODED_SIZE), 100), satlink.IL2P_HEADER_SIZE+satlink.IL2P_HEADER_PARITY)
}

func TestParseHex(t *testing.T) {
	var b, err = parseHex("0x00 f1\n5e48")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xf1, 0x5e, 0x48}, b)
}
