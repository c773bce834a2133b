package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Delimiter based framing used on the serial side of the link.
 *
 * Description: The KISS TNC protocol is described in http://www.ka9q.net/papers/kiss.html
 *
 * 		Briefly, a frame is composed of
 *
 *			* FEND (0xC0)
 *			* Contents - with special escape sequences so a 0xc0
 *				byte in the data is not taken as end of frame.
 *			* FEND
 *
 *		The first byte of the contents is the command.
 *		Anything after that is the command body.
 *
 *			00	Data frame	Goes out over the radio.
 *			06	SetHardware	Handled by the link itself.
 *			others			Handed to the command dispatcher.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/charmbracelet/log"
)

/*
 * Special characters used by SLIP protocol.
 */

const FEND = 0xC0
const FESC = 0xDB
const TFEND = 0xDC
const TFESC = 0xDD

const KISS_CMD_DATA_FRAME = 0x00
const KISS_CMD_SET_HARDWARE = 0x06

// Smallest frame with a command and body: FEND, command, at least one byte, FEND.
// Anything shorter carries only a command.
const KISS_MIN_FRAME_LEN = 4

// Worst case is every byte escaped, plus two FENDs.
const MAX_KISS_LEN = 2*(FRAME_COMMAND_SIZE+IL2P_MAX_ENCODED_SIZE) + 2

type KissFrame struct {
	Command byte
	Payload []byte
}

type KissFramer struct {
	logger *log.Logger
}

func NewKissFramer(logger *log.Logger) *KissFramer {
	return &KissFramer{logger: componentLogger(logger, "kiss")}
}

/*-------------------------------------------------------------------
 *
 * Name:        AppendEscaped
 *
 * Purpose:     Encapsulate a frame into KISS format.
 *
 * Inputs:	dst	- Result is appended here.  Can be nil.
 *
 *		in	- Command byte and body.
 *			  If the command happens to be FEND or FESC,
 *			  it is escaped, like any other byte.
 *
 * Returns:	dst with the sequence:
 *				FEND		- Magic frame separator.
 *				data		- with certain byte values replaced so
 *						  FEND will never occur here.
 *				FEND		- Magic frame separator.
 *
 *		Absolute max length will be twice input plus 2.
 *
 *-----------------------------------------------------------------*/

func AppendEscaped(dst []byte, in []byte) []byte {
	dst = append(dst, FEND)

	for _, b := range in {
		switch b {
		case FEND:
			dst = append(dst, FESC, TFEND)
		case FESC:
			dst = append(dst, FESC, TFESC)
		default:
			dst = append(dst, b)
		}
	}

	return append(dst, FEND)
}

func Escape(in []byte) []byte {
	return AppendEscaped(make([]byte, 0, len(in)+len(in)/8+2), in)
}

/*-------------------------------------------------------------------
 *
 * Name:        AppendUnescaped
 *
 * Purpose:     Extract original data from a KISS frame.
 *
 * Inputs:	dst	- Result is appended here.
 *
 *		in	- The sequence is:
 *				FEND		- Magic frame separator, optional.
 *				data		- with certain byte values replaced so
 *						  FEND will never occur here.
 *				FEND		- Magic frame separator.
 *
 * Returns:	dst with the escapes and FENDs removed.
 *		ErrFrameCorrupt if FESC is followed by anything other
 *		than TFEND or TFESC.  dst is returned unchanged in that case.
 *
 *-----------------------------------------------------------------*/

func (k *KissFramer) AppendUnescaped(dst []byte, in []byte) ([]byte, error) {
	if len(in) > 0 && in[0] == FEND {
		in = in[1:] // Skip over optional leading FEND
	}

	if len(in) > 0 && in[len(in)-1] == FEND {
		in = in[:len(in)-1] // Ignore last FEND
	} else {
		// Keep whatever is there.  It might be useful.
		k.logger.Warn("KISS frame should end with FEND", "len", len(in))
	}

	var start = len(dst)
	var escapedMode = false

	for _, b := range in {
		if escapedMode {
			switch b {
			case TFESC:
				dst = append(dst, FESC)
			case TFEND:
				dst = append(dst, FEND)
			default:
				return dst[:start], fmt.Errorf("found 0x%02x after FESC: %w", b, ErrFrameCorrupt)
			}
			escapedMode = false
		} else if b == FESC {
			escapedMode = true
		} else if b == FEND {
			k.logger.Warn("KISS frame should not have FEND in the middle")
		} else {
			dst = append(dst, b)
		}
	}

	if escapedMode {
		return dst[:start], fmt.Errorf("frame ends with FESC: %w", ErrFrameCorrupt)
	}

	return dst, nil
}

func (k *KissFramer) Unescape(in []byte) ([]byte, error) {
	return k.AppendUnescaped(make([]byte, 0, len(in)), in)
}

/*-------------------------------------------------------------------
 *
 * Name:        FindFrame
 *
 * Purpose:     Locate a complete frame at the head of a buffer.
 *
 * Inputs:	rb	- Bytes as they arrived from the transport.
 *
 * Returns:	Length of the frame, including both FENDs, starting at
 *		the head of the buffer.  The frame is not removed.
 *		0 if there is no complete frame yet.
 *
 * Description:	Looking only uses indexed reads, but anything that can
 *		never become part of a frame is thrown away:
 *
 *		- Noise in front of the first FEND.
 *		- All but the last of a run of FENDs.  Noise on the line
 *		  or repeated sync bytes can produce those.
 *		- A span without a closing FEND that is already longer than
 *		  any legal frame, or that fills the whole buffer.
 *
 *		Never waits for anything.
 *
 *-----------------------------------------------------------------*/

func (k *KissFramer) FindFrame(rb *RingBuffer) int {
	for {
		var noise = 0
		for noise < rb.Len() && rb.At(noise) != FEND {
			noise++
		}
		if noise > 0 {
			k.logger.Debug("Rejected noise", "buffer", rb.Name(), "len", noise)
			rb.Discard(noise)
		}

		if rb.Len() == 0 {
			return 0
		}

		var run = 1
		for run < rb.Len() && rb.At(run) == FEND {
			run++
		}
		if run > 1 {
			rb.Discard(run - 1)
		}

		var restart = false
		for i := 1; i < rb.Len(); i++ {
			if rb.At(i) == FEND {
				return i + 1
			}
			if i+1 >= MAX_KISS_LEN {
				k.logger.Warn("KISS message exceeded maximum length", "buffer", rb.Name(), "len", i+1)
				rb.Discard(i + 1)
				restart = true
				break
			}
		}
		if restart {
			continue
		}

		if rb.Full() {
			k.logger.Warn("Unterminated frame fills buffer, discarding", "buffer", rb.Name(), "len", rb.Len())
			rb.Discard(rb.Len())
		}

		return 0
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        ExtractFrame
 *
 * Purpose:     Take the next complete frame out of a buffer.
 *
 * Inputs:	rb	- Buffer.  The frame is removed if one is found,
 *			  even if it turns out to be corrupt.
 *
 *		scratch	- Work space, at least MAX_KISS_LEN bytes.
 *
 * Returns:	Frame with escapes removed.  Payload refers to scratch.
 *		ErrFrameIncomplete if there is nothing yet.
 *		ErrFrameCorrupt for bad escape sequences or a frame with
 *		no command byte.
 *
 *-----------------------------------------------------------------*/

func (k *KissFramer) ExtractFrame(rb *RingBuffer, scratch []byte) (KissFrame, error) {
	Assert(len(scratch) >= MAX_KISS_LEN)

	var n = k.FindFrame(rb)
	if n == 0 {
		return KissFrame{}, ErrFrameIncomplete
	}

	var wire = scratch[:n]
	rb.Read(wire)

	if k.logger.GetLevel() <= log.DebugLevel {
		k.logger.Debug("Frame from transport", "buffer", rb.Name(), "command", kissCommandName(wire[1]))
		debugDump(k.logger, "As received", wire)
	}

	// Unescaping never makes things longer so it can be done in place.
	var unwrapped, err = k.AppendUnescaped(scratch[:0], wire)
	if err != nil {
		return KissFrame{}, err
	}

	if len(unwrapped) == 0 {
		return KissFrame{}, fmt.Errorf("no command byte: %w", ErrFrameCorrupt)
	}

	return KissFrame{Command: unwrapped[0], Payload: unwrapped[1:]}, nil
}

func kissCommandName(cmd byte) string {
	switch cmd {
	case KISS_CMD_DATA_FRAME:
		return "Data frame"
	case KISS_CMD_SET_HARDWARE:
		return "SetHardware"
	case FESC:
		return "Escaped"
	default:
		return fmt.Sprintf("Command 0x%02x", cmd)
	}
}
