package satlink

/*-------------------------------------------------------------
 *
 * Purpose:	Convert between a command byte plus payload and the
 *		encoded frame handed to the radio.
 *
 * Description:	Encoding always runs every stage in order:
 *
 *			Idle -> HeaderBuilt -> HeaderScrambled -> HeaderEncoded
 *			-> PayloadScrambled -> PayloadEncoded -> CrcAppended -> Ready
 *
 *		The payload stages produce nothing when there is no payload.
 *
 *		Decoding reverses it.  A header or payload that RS can't
 *		fix discards the whole frame.  What happens on a CRC
 *		mismatch depends on the CRC policy.
 *
 *		A Codec owns all of its work space, sized for the largest
 *		frame when it is created.  A decoded Frame refers to that
 *		space and is only good until the next Decode.
 *		A Codec must not be used by more than one goroutine at once.
 *
 *--------------------------------------------------------------*/

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/charmbracelet/log"
)

// Sync word is accepted with this many bits wrong.
const IL2P_SYNC_MAX_BIT_ERRORS = 1

type CodecConfig struct {
	Destination     string
	DestinationSSID int
	Source          string
	SourceSSID      int
	CRCPolicy       CRCPolicy
}

// Frame is a decoded frame.
type Frame struct {
	Command byte
	Header  Il2pHeader
	Payload []byte

	HeaderCorrected  int // Symbols fixed by RS.
	PayloadCorrected int
	CRCValid         bool
}

func (f *Frame) Corrected() int {
	return f.HeaderCorrected + f.PayloadCorrected
}

type CodecStats struct {
	Encoded          int
	Decoded          int
	Discarded        int
	CRCMismatches    int
	SymbolsCorrected int
}

type Codec struct {
	logger    *log.Logger
	template  Il2pHeader
	crcPolicy CRCPolicy

	headerBlock  [IL2P_HEADER_SIZE + IL2P_HEADER_PARITY]byte
	payloadBlock [IL2P_MAX_PAYLOAD_SIZE + IL2P_PAYLOAD_PARITY]byte
	payload      [IL2P_MAX_PAYLOAD_SIZE]byte
	frame        Frame

	stats CodecStats
}

func NewCodec(cfg CodecConfig, logger *log.Logger) (*Codec, error) {
	var template, err = NewHeaderTemplate(cfg.Destination, cfg.DestinationSSID, cfg.Source, cfg.SourceSSID)
	if err != nil {
		return nil, err
	}

	return &Codec{
		logger:    componentLogger(logger, "il2p"),
		template:  template,
		crcPolicy: cfg.CRCPolicy,
	}, nil
}

func (c *Codec) Template() Il2pHeader {
	return c.template
}

func (c *Codec) CRCPolicy() CRCPolicy {
	return c.crcPolicy
}

func (c *Codec) SetCRCPolicy(p CRCPolicy) {
	if p != c.crcPolicy {
		c.logger.Info("CRC policy changed", "from", c.crcPolicy, "to", p)
	}
	c.crcPolicy = p
}

func (c *Codec) Stats() CodecStats {
	return c.stats
}

// EncodedSize is the number of bytes Encode produces for a payload of n bytes.
func EncodedSize(n int) int {
	if n == 0 {
		return IL2P_MIN_ENCODED_SIZE
	}
	return IL2P_MIN_ENCODED_SIZE + n + IL2P_PAYLOAD_PARITY
}

func (c *Codec) txStage(s TxStage) {
	c.logger.Debug("Encode", "stage", s)
}

func (c *Codec) rxStage(s RxStage) {
	c.logger.Debug("Decode", "stage", s)
}

/*-------------------------------------------------------------
 *
 * Name:	AppendEncoded
 *
 * Purpose:	Build a complete frame for transmission.
 *
 * Inputs:	dst	- Result is appended here.  With enough capacity
 *			  nothing is allocated.
 *		cmd	- Command byte.
 *		payload	- Up to IL2P_MAX_PAYLOAD_SIZE bytes.  Can be empty.
 *
 * Returns:	dst with the frame appended.
 *		ErrPayloadTooLarge and dst unchanged if it won't fit in
 *		one RS block.
 *
 *--------------------------------------------------------------*/

func (c *Codec) AppendEncoded(dst []byte, cmd byte, payload []byte) ([]byte, error) {
	var n = len(payload)
	if n > IL2P_MAX_PAYLOAD_SIZE {
		return dst, fmt.Errorf("%d bytes, maximum is %d: %w", n, IL2P_MAX_PAYLOAD_SIZE, ErrPayloadTooLarge)
	}

	var size = EncodedSize(n)
	var start = len(dst)
	dst = slices.Grow(dst, size)[:start+size]
	var out = dst[start:]

	c.txStage(TxIdle)

	out[0] = cmd
	copy(out[FRAME_COMMAND_SIZE:], il2pSyncBytes[:])
	out = out[FRAME_COMMAND_SIZE+IL2P_SYNC_WORD_SIZE:]

	var hdr = c.template.WithPayloadByteCount(n)
	c.txStage(TxHeaderBuilt)

	scrambleBlockInto(out[:IL2P_HEADER_SIZE], hdr[:])
	c.txStage(TxHeaderScrambled)

	rsCodecs[IL2P_HEADER_PARITY].encode(out[:IL2P_HEADER_SIZE], out[IL2P_HEADER_SIZE:IL2P_HEADER_SIZE+IL2P_HEADER_PARITY])
	out = out[IL2P_HEADER_SIZE+IL2P_HEADER_PARITY:]
	c.txStage(TxHeaderEncoded)

	var scrambled = out[:n]
	if n > 0 {
		scrambleBlockInto(scrambled, payload)
		c.txStage(TxPayloadScrambled)

		rsCodecs[IL2P_PAYLOAD_PARITY].encode(scrambled, out[n:n+IL2P_PAYLOAD_PARITY])
		out = out[n+IL2P_PAYLOAD_PARITY:]
		c.txStage(TxPayloadEncoded)
	}

	putCRC(out, CRCCalculate(scrambled))
	c.txStage(TxCrcAppended)

	c.txStage(TxReady)
	c.stats.Encoded++

	if c.logger.GetLevel() <= log.DebugLevel {
		debugDump(c.logger, fmt.Sprintf("Encoded %s", &hdr), dst[start:])
	}

	return dst, nil
}

func (c *Codec) Encode(cmd byte, payload []byte) ([]byte, error) {
	return c.AppendEncoded(make([]byte, 0, EncodedSize(len(payload))), cmd, payload)
}

func syncBitErrors(b []byte) int {
	var got = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return bits.OnesCount32(got ^ IL2P_SYNC_WORD)
}

func (c *Codec) discard(stage RxStage, err error) (*Frame, error) {
	c.stats.Discarded++
	c.rxStage(RxDiscarded)
	return nil, &DecodeError{Stage: stage, Err: err}
}

/*-------------------------------------------------------------
 *
 * Name:	Decode
 *
 * Purpose:	Recover command and payload from a received frame.
 *
 * Inputs:	wire	- Frame as delivered by the radio.  Not modified.
 *			  Anything after the expected end is ignored.
 *
 * Returns:	Decoded frame, only valid until the next call.
 *		*DecodeError naming the last stage reached when the frame
 *		had to be discarded.
 *
 *--------------------------------------------------------------*/

func (c *Codec) Decode(wire []byte) (*Frame, error) {
	c.rxStage(RxRawReceived)

	if len(wire) < IL2P_MIN_ENCODED_SIZE {
		return c.discard(RxRawReceived, fmt.Errorf("%d bytes: %w", len(wire), ErrShortFrame))
	}

	var f = &c.frame
	*f = Frame{Command: wire[0]}

	if e := syncBitErrors(wire[FRAME_COMMAND_SIZE:]); e > IL2P_SYNC_MAX_BIT_ERRORS {
		return c.discard(RxRawReceived, fmt.Errorf("%d bits wrong: %w", e, ErrBadSync))
	}
	var rest = wire[FRAME_COMMAND_SIZE+IL2P_SYNC_WORD_SIZE:]

	// Header.

	copy(c.headerBlock[:], rest)
	rest = rest[len(c.headerBlock):]

	var hc, err = RSDecode(c.headerBlock[:], IL2P_HEADER_PARITY)
	if err != nil {
		return c.discard(RxRawReceived, fmt.Errorf("%w: %w", ErrHeaderUncorrectable, err))
	}
	f.HeaderCorrected = hc
	c.rxStage(RxHeaderRsDecoded)

	descrambleBlockInto(f.Header[:], c.headerBlock[:IL2P_HEADER_SIZE])
	c.rxStage(RxHeaderDescrambled)

	if err := f.Header.CheckTemplate(&c.template); err != nil {
		return c.discard(RxHeaderDescrambled, err)
	}

	// Payload.

	var n = f.Header.PayloadByteCount()
	var need = EncodedSize(n) - (FRAME_COMMAND_SIZE + IL2P_SYNC_WORD_SIZE + IL2P_HEADER_SIZE + IL2P_HEADER_PARITY)
	if len(rest) < need {
		return c.discard(RxHeaderDescrambled, fmt.Errorf("header says %d payload bytes, have %d bytes after header: %w", n, len(rest), ErrShortFrame))
	}
	if len(rest) > need {
		c.logger.Debug("Ignoring bytes after end of frame", "count", len(rest)-need)
	}

	var scrambled = c.payloadBlock[:n]
	if n > 0 {
		var block = c.payloadBlock[:n+IL2P_PAYLOAD_PARITY]
		copy(block, rest)
		rest = rest[len(block):]

		var pc, err = RSDecode(block, IL2P_PAYLOAD_PARITY)
		if err != nil {
			return c.discard(RxHeaderDescrambled, fmt.Errorf("%w: %w", ErrPayloadUncorrectable, err))
		}
		f.PayloadCorrected = pc
	}
	c.rxStage(RxPayloadRsDecoded)

	f.Payload = c.payload[:n]
	descrambleBlockInto(f.Payload, scrambled)
	c.rxStage(RxPayloadDescrambled)

	// CRC covers the payload as it was sent, still scrambled.

	f.CRCValid = CRCVerify(scrambled, getCRC(rest))
	if !f.CRCValid {
		c.stats.CRCMismatches++
		if c.crcPolicy == CRCStrict {
			return c.discard(RxPayloadDescrambled, ErrCRCMismatch)
		}
		c.logger.Warn("CRC mismatch, delivering anyway", "command", f.Command, "len", n, "corrected", f.Corrected())
	}
	c.rxStage(RxCrcVerified)

	c.stats.Decoded++
	c.stats.SymbolsCorrected += f.Corrected()
	c.rxStage(RxDelivered)

	if f.Corrected() > 0 {
		c.logger.Info("Corrected errors", "header", f.HeaderCorrected, "payload", f.PayloadCorrected)
	}

	return f, nil
}
