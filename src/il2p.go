package satlink

/*------------------------------------------------------------------
 *
 * Purpose:	Constants, errors, and pipeline stages shared by the
 *		link-layer codec.
 *
 * Description:	An encoded frame, as handed to the radio, is:
 *
 *			1 byte		Command.
 *			3 bytes		Sync word.  0xF1 0x5E 0x48.
 *			15 bytes	Header.  13 scrambled + 2 RS parity.
 *			N + 16 bytes	Payload, only if N > 0.
 *					N scrambled + 16 RS parity.
 *			4 bytes		Hamming protected CRC.
 *
 *		N is limited so header or payload never exceed one
 *		255 symbol RS block.
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
)

const IL2P_SYNC_WORD = 0xF15E48
const IL2P_SYNC_WORD_SIZE = 3

// Sync word as it goes on the wire.
var il2pSyncBytes = [IL2P_SYNC_WORD_SIZE]byte{0xF1, 0x5E, 0x48}

const IL2P_HEADER_SIZE = 13
const IL2P_HEADER_PARITY = 2

const IL2P_PAYLOAD_PARITY = 16

const RS_BLOCK_SIZE = 255
const RS_MAX_PARITY = 16

// Largest payload that fits with its parity in one RS block.
const IL2P_MAX_PAYLOAD_SIZE = RS_BLOCK_SIZE - IL2P_PAYLOAD_PARITY

const IL2P_CRC_ENCODED_SIZE = 4

const FRAME_COMMAND_SIZE = 1

// Encoded size of a frame with no payload.
const IL2P_MIN_ENCODED_SIZE = FRAME_COMMAND_SIZE + IL2P_SYNC_WORD_SIZE + IL2P_HEADER_SIZE + IL2P_HEADER_PARITY + IL2P_CRC_ENCODED_SIZE

const IL2P_MAX_ENCODED_SIZE = IL2P_MIN_ENCODED_SIZE + IL2P_MAX_PAYLOAD_SIZE + IL2P_PAYLOAD_PARITY

var (
	ErrFrameCorrupt         = errors.New("frame corrupt")
	ErrFrameIncomplete      = errors.New("no complete frame")
	ErrBufferOverflow       = errors.New("buffer overflow")
	ErrSustainedOverflow    = errors.New("sustained buffer overflow")
	ErrUncorrectable        = errors.New("uncorrectable")
	ErrHeaderUncorrectable  = errors.New("header uncorrectable")
	ErrPayloadUncorrectable = errors.New("payload uncorrectable")
	ErrCRCMismatch          = errors.New("CRC mismatch")
	ErrChannelBusy          = errors.New("channel busy")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrBadSync              = errors.New("sync word not found")
	ErrShortFrame           = errors.New("frame too short")
	ErrBadHeader            = errors.New("header does not match template")
	ErrInvalidParity        = errors.New("unsupported number of parity symbols")
)

// Stages of building an outgoing frame.  Each one consumes the output of the previous.

type TxStage int

const (
	TxIdle TxStage = iota
	TxHeaderBuilt
	TxHeaderScrambled
	TxHeaderEncoded
	TxPayloadScrambled
	TxPayloadEncoded
	TxCrcAppended
	TxReady
)

var txStageNames = [...]string{
	"Idle", "HeaderBuilt", "HeaderScrambled", "HeaderEncoded",
	"PayloadScrambled", "PayloadEncoded", "CrcAppended", "Ready",
}

func (s TxStage) String() string {
	if s < 0 || int(s) >= len(txStageNames) {
		return fmt.Sprintf("TxStage(%d)", int(s))
	}
	return txStageNames[s]
}

// Stages of taking apart a received frame.

type RxStage int

const (
	RxRawReceived RxStage = iota
	RxHeaderRsDecoded
	RxHeaderDescrambled
	RxPayloadRsDecoded
	RxPayloadDescrambled
	RxCrcVerified
	RxDelivered
	RxDiscarded
)

var rxStageNames = [...]string{
	"RawReceived", "HeaderRsDecoded", "HeaderDescrambled", "PayloadRsDecoded",
	"PayloadDescrambled", "CrcVerified", "Delivered", "Discarded",
}

func (s RxStage) String() string {
	if s < 0 || int(s) >= len(rxStageNames) {
		return fmt.Sprintf("RxStage(%d)", int(s))
	}
	return rxStageNames[s]
}

// DecodeError reports the stage at which a received frame was discarded.
type DecodeError struct {
	Stage RxStage // Last stage successfully reached.
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("frame discarded after %s: %s", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// CRCPolicy decides what happens to a frame whose trailing CRC does not match.

type CRCPolicy int

const (
	CRCStrict  CRCPolicy = iota // Discard the frame.
	CRCLenient                  // Deliver it, flagged.
)

func (p CRCPolicy) String() string {
	switch p {
	case CRCStrict:
		return "strict"
	case CRCLenient:
		return "lenient"
	default:
		return fmt.Sprintf("CRCPolicy(%d)", int(p))
	}
}

func ParseCRCPolicy(s string) (CRCPolicy, error) {
	switch s {
	case "strict", "":
		return CRCStrict, nil
	case "lenient":
		return CRCLenient, nil
	default:
		return CRCStrict, fmt.Errorf("unknown CRC policy %q, expected strict or lenient", s)
	}
}
