package satlink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIL2PScrambleKnownValue(t *testing.T) {
	assert.Equal(t, []byte{0x43, 0xd9, 0x33, 0xeb, 0x0a}, ScrambleBlock([]byte("HELLO")))
	assert.Equal(t, []byte("HELLO"), DescrambleBlock([]byte{0x43, 0xd9, 0x33, 0xeb, 0x0a}))
}

func TestIL2PScrambleEmpty(t *testing.T) {
	assert.Empty(t, ScrambleBlock(nil))
	assert.Empty(t, DescrambleBlock(nil))
}

func TestIL2PScrambleRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var in = rapid.SliceOfN(rapid.Byte(), 1, 300).Draw(t, "in")

		var scrambled = ScrambleBlock(in)
		assert.Len(t, scrambled, len(in))

		var out = DescrambleBlock(scrambled)
		assert.True(t, bytes.Equal(in, out), "in %x out %x", in, out)
	})
}

// Sample frame headers from the IL2P protocol document, after RS parity is removed.
func TestIL2PDescrambleSampleHeaders(t *testing.T) {
	var sframe = il2pDataStringToBytes("26 57 4D 57 F1 D2 A8 F0 6A F2 7B AD 23")
	assert.Equal(t, il2pDataStringToBytes("2B A1 12 24 25 37 6B 2B 14 68 25 2A 27"), DescrambleBlock(sframe))

	var uiframe = il2pDataStringToBytes("6A EA 9C C2 01 11 FC 14 1F DA 6E F2 53")
	assert.Equal(t, il2pDataStringToBytes("63 F1 40 40 40 00 6B 2B 54 28 25 2A 0F"), DescrambleBlock(uiframe))

	// And back again.
	assert.Equal(t, sframe, ScrambleBlock(DescrambleBlock(sframe)))
	assert.Equal(t, uiframe, ScrambleBlock(DescrambleBlock(uiframe)))
}

func descrambleFrom(in []byte, state int) []byte {
	var out = make([]byte, len(in))
	for b, v := range in {
		for m := byte(0x80); m != 0; m >>= 1 {
			if descramble_bit(IfThenElse(v&m != 0, 1, 0), &state) != 0 {
				out[b] |= m
			}
		}
	}
	return out
}

// The descrambler recovers after 9 bits whatever state it starts in.
func TestIL2PDescrambleSelfSynchronizing(t *testing.T) {
	var plain = []byte("The quick brown fox")
	var scrambled = ScrambleBlock(plain)

	for state := range 512 {
		var out = descrambleFrom(scrambled, state)
		assert.Equal(t, plain[1]&0x7f, out[1]&0x7f, "state %03x", state)
		assert.Equal(t, plain[2:], out[2:], "state %03x", state)
	}
}
