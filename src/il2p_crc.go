package satlink

/*-------------------------------------------------------------
 *
 * Purpose:	IL2P Trailing CRC-16-CCITT protected by (7,4) Hamming encoding.
 *
 *		The CRC provides a final validity check after RS FEC decoding,
 *		catching rare cases where RS decoding silently produces
 *		incorrect data under extreme error conditions.
 *
 *		The CRC itself is the receiver's last word on corruption
 *		so each of its nibbles gets its own Hamming codeword.  One
 *		bit error per codeword is corrected.
 *
 * Reference:	IL2P specification v0.6
 *
 *--------------------------------------------------------------*/

import (
	"encoding/binary"
	"math/bits"

	"github.com/sigurn/crc16"
)

// Same as the AX.25 FCS.
var il2pCRCTable = crc16.MakeTable(crc16.CRC16_X_25)

// Hamming (7,4) encode table from the IL2P spec.
// Maps 4-bit data nibble to 7-bit Hamming codeword.
var il2p_hamming_encode = [16]byte{
	0x00, 0x71, 0x62, 0x13, 0x54, 0x25, 0x36, 0x47,
	0x38, 0x49, 0x5a, 0x2b, 0x6c, 0x1d, 0x0e, 0x7f,
}

// Maps any received byte to the nibble with the nearest codeword.
// The top bit is not part of the code and is ignored.
var il2p_hamming_decode [256]byte

func init() {
	for b := range il2p_hamming_decode {
		var best = 0
		var bestDistance = 8
		for n, cw := range il2p_hamming_encode {
			var d = bits.OnesCount8(byte(b)&0x7f ^ cw)
			if d < bestDistance {
				best, bestDistance = n, d
			}
		}
		il2p_hamming_decode[b] = byte(best)
	}
}

/*-------------------------------------------------------------
 *
 * Name:	CRCCalculate
 *
 * Purpose:	Compute the Hamming protected CRC for a payload.
 *
 * Inputs:	payload	- Scrambled payload bytes, without RS parity.
 *
 * Returns:	Four codewords.  The least significant nibble's codeword
 *		is in the low byte.
 *
 *--------------------------------------------------------------*/

func CRCCalculate(payload []byte) uint32 {
	return crcEncode(crc16.Checksum(payload, il2pCRCTable))
}

/*-------------------------------------------------------------
 *
 * Name:	CRCVerify
 *
 * Purpose:	Validate a received encoded CRC against a payload.
 *
 * Inputs:	payload		- Payload after RS correction.
 *		received	- Four codewords as received.
 *
 * Returns:	true if CRC matches, after correcting the codewords.
 *
 *--------------------------------------------------------------*/

func CRCVerify(payload []byte, received uint32) bool {
	return crcDecode(received) == crc16.Checksum(payload, il2pCRCTable)
}

func crcEncode(crc uint16) uint32 {
	var encoded uint32
	for shift := 12; shift >= 0; shift -= 4 {
		encoded = encoded<<8 | uint32(il2p_hamming_encode[(crc>>shift)&0x0f])
	}
	return encoded
}

func crcDecode(encoded uint32) uint16 {
	var crc uint16
	for shift := 24; shift >= 0; shift -= 8 {
		crc = crc<<4 | uint16(il2p_hamming_decode[byte(encoded>>shift)])
	}
	return crc
}

// High nibble is sent first.

func putCRC(dst []byte, encoded uint32) {
	binary.BigEndian.PutUint32(dst, encoded)
}

func getCRC(src []byte) uint32 {
	return binary.BigEndian.Uint32(src)
}
