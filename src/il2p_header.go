package satlink

/*--------------------------------------------------------------------------------
 *
 * Purpose:	Fixed IL2P type 1 header used for every frame on the link.
 *
 * Description:	The header is 13 bytes.  Most bits are fixed for the life of
 *		the link and are built once into a template:
 *
 *			bits 0-5 of bytes 0-5	Destination callsign, DEC SIXBIT.
 *			bits 0-5 of bytes 6-11	Source callsign, DEC SIXBIT.
 *			byte 12			Destination SSID (upper nybble),
 *						Source SSID (lower nybble).
 *			bit 6			UI, PID, Control.
 *			bit 7 of byte 0		FEC level.  1 means 16 payload parity symbols.
 *			bit 7 of byte 1		Header type.  Always 1.
 *			bit 7 of bytes 2-11	Payload byte count, MSB in byte 2.
 *
 *		Only the payload byte count changes from frame to frame.
 *
 *--------------------------------------------------------------------------------*/

import (
	"fmt"
	"strings"
)

const IL2P_MAX_CALLSIGN_LEN = 6

const IL2P_MAX_SSID = 15

// PID value for "no layer 3".
const IL2P_PID_NONE = 0xF

type Il2pHeader [IL2P_HEADER_SIZE]byte

// Convert character to IL2P 6 bit format.
// This is the same as DEC SIXBIT so it does not involve lower case letters.

func ascii_to_sixbit(a byte) byte {
	if a >= ' ' && a <= '_' {
		return a - ' '
	}
	return 31 // '?' for any invalid.
}

func sixbit_to_ascii(s byte) byte {
	return (s & 0x3f) + ' '
}

// A field is spread over one bit position in consecutive bytes.
// lsb_index is the byte with the least significant bit; more significant
// bits are in lower numbered bytes.

func (h *Il2pHeader) setField(bit_num int, lsb_index int, width int, value int) {
	Assert(value >= 0 && value < 1<<width)

	for ; width > 0; width-- {
		Assert(lsb_index >= 0 && lsb_index <= 11)
		h[lsb_index] &^= 1 << bit_num
		if value&1 != 0 {
			h[lsb_index] |= 1 << bit_num
		}
		value >>= 1
		lsb_index--
	}
}

func (h *Il2pHeader) getField(bit_num int, lsb_index int, width int) int {
	var result = 0
	for i := lsb_index - width + 1; i <= lsb_index; i++ {
		Assert(i >= 0 && i <= 11)
		result <<= 1
		if h[i]&(1<<bit_num) != 0 {
			result |= 1
		}
	}
	return result
}

func (h *Il2pHeader) SetUI(val int)               { h.setField(6, 0, 1, val) }
func (h *Il2pHeader) SetPID(val int)              { h.setField(6, 4, 4, val) }
func (h *Il2pHeader) SetControl(val int)          { h.setField(6, 11, 7, val) }
func (h *Il2pHeader) SetFECLevel(val int)         { h.setField(7, 0, 1, val) }
func (h *Il2pHeader) SetHeaderType(val int)       { h.setField(7, 1, 1, val) }
func (h *Il2pHeader) SetPayloadByteCount(val int) { h.setField(7, 11, 10, val) }

func (h *Il2pHeader) UI() int               { return h.getField(6, 0, 1) }
func (h *Il2pHeader) PID() int              { return h.getField(6, 4, 4) }
func (h *Il2pHeader) Control() int          { return h.getField(6, 11, 7) }
func (h *Il2pHeader) FECLevel() int         { return h.getField(7, 0, 1) }
func (h *Il2pHeader) HeaderType() int       { return h.getField(7, 1, 1) }
func (h *Il2pHeader) PayloadByteCount() int { return h.getField(7, 11, 10) }

func (h *Il2pHeader) callsign(offset int) string {
	var b strings.Builder
	for i := range IL2P_MAX_CALLSIGN_LEN {
		b.WriteByte(sixbit_to_ascii(h[offset+i]))
	}
	return strings.TrimRight(b.String(), " ")
}

func (h *Il2pHeader) Destination() (string, int) {
	return h.callsign(0), int(h[12] >> 4)
}

func (h *Il2pHeader) Source() (string, int) {
	return h.callsign(IL2P_MAX_CALLSIGN_LEN), int(h[12] & 0x0f)
}

func (h *Il2pHeader) String() string {
	var dst, dssid = h.Destination()
	var src, sssid = h.Source()
	return fmt.Sprintf("%s-%d>%s-%d type=%d fec=%d count=%d", src, sssid, dst, dssid, h.HeaderType(), h.FECLevel(), h.PayloadByteCount())
}

func putCallsign(h *Il2pHeader, offset int, call string) error {
	call = strings.ToUpper(strings.TrimSpace(call))

	if len(call) == 0 || len(call) > IL2P_MAX_CALLSIGN_LEN {
		return fmt.Errorf("callsign %q must be 1 to %d characters", call, IL2P_MAX_CALLSIGN_LEN)
	}

	for i := range len(call) {
		var a = call[i]
		if a < ' ' || a > '_' {
			return fmt.Errorf("callsign %q has character %q that can't be sent", call, a)
		}
		h[offset+i] = ascii_to_sixbit(a)
	}

	return nil
}

/*--------------------------------------------------------------------------------
 *
 * Function:	NewHeaderTemplate
 *
 * Purpose:	Build the fixed part of the header for this link.
 *
 * Inputs:	dst, dssid	Destination callsign and SSID.
 *		src, sssid	Source callsign and SSID.
 *
 * Returns:	Header with a payload byte count of zero.
 *
 *--------------------------------------------------------------------------------*/

func NewHeaderTemplate(dst string, dssid int, src string, sssid int) (Il2pHeader, error) {
	var h Il2pHeader

	if err := putCallsign(&h, 0, dst); err != nil {
		return h, fmt.Errorf("destination: %w", err)
	}
	if err := putCallsign(&h, IL2P_MAX_CALLSIGN_LEN, src); err != nil {
		return h, fmt.Errorf("source: %w", err)
	}

	if dssid < 0 || dssid > IL2P_MAX_SSID || sssid < 0 || sssid > IL2P_MAX_SSID {
		return h, fmt.Errorf("SSIDs %d and %d must be in range of 0 to %d", dssid, sssid, IL2P_MAX_SSID)
	}
	h[12] = byte(dssid<<4 | sssid)

	h.SetUI(1)
	h.SetPID(IL2P_PID_NONE)
	h.SetControl(0)
	h.SetFECLevel(1)
	h.SetHeaderType(1)

	return h, nil
}

// Copy of the template carrying the payload byte count.
func (h Il2pHeader) WithPayloadByteCount(n int) Il2pHeader {
	h.SetPayloadByteCount(n)
	return h
}

// CheckTemplate makes sure a received header was produced the same way.
// Callsigns are not compared.
func (h *Il2pHeader) CheckTemplate(template *Il2pHeader) error {
	if h.HeaderType() != template.HeaderType() {
		return fmt.Errorf("header type %d: %w", h.HeaderType(), ErrBadHeader)
	}
	if h.FECLevel() != template.FECLevel() {
		return fmt.Errorf("FEC level %d: %w", h.FECLevel(), ErrBadHeader)
	}
	if h.PayloadByteCount() > IL2P_MAX_PAYLOAD_SIZE {
		return fmt.Errorf("payload byte count %d: %w", h.PayloadByteCount(), ErrBadHeader)
	}
	return nil
}
