package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Decide when the half duplex radio may transmit.
 *
 * Description:	Producers of frames to be transmitted put them in the
 *		transmit queue and go merrily on their way, unconcerned
 *		about when the frame might actually get transmitted.
 *
 *		Once per pass the arbiter is given the queue occupancy and a
 *		fresh signal strength sample:
 *
 *		Receiving	   -> AssessingChannel	Something is queued.
 *		AssessingChannel   -> Transmitting	Every sample has been at or
 *							below the threshold for longer
 *							than the settle interval.
 *		AssessingChannel   -> Receiving		Queue emptied while waiting.
 *		Transmitting	   -> Receiving		Queue drained and the radio
 *							reports it is done sending.
 *
 *		A sample above the threshold restarts the clear interval and
 *		the arbiter keeps waiting.  It never blocks.
 *
 *		With full duplex there is no need to listen first.
 *
 *		While the power monitor reports overcurrent, transmitting is
 *		inhibited and any transmission in progress is stopped.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Default time the channel must stay clear.
const DEFAULT_SETTLE = time.Millisecond

// Default clear channel threshold, dBm.
const DEFAULT_CCA_THRESHOLD = -90

type ArbiterState int

const (
	Receiving ArbiterState = iota
	AssessingChannel
	Transmitting
)

func (s ArbiterState) String() string {
	switch s {
	case Receiving:
		return "Receiving"
	case AssessingChannel:
		return "AssessingChannel"
	case Transmitting:
		return "Transmitting"
	default:
		return fmt.Sprintf("ArbiterState(%d)", int(s))
	}
}

// TxSwitch keys the transmitter, e.g. a T/R switch or PTT line.
type TxSwitch interface {
	SetTransmit(on bool) error
}

type ArbiterConfig struct {
	Threshold  int           // Signal strength above this means busy.
	Settle     time.Duration // How long it must stay clear.
	FullDuplex bool
}

// ArbiterInput is what the arbiter gets to look at each pass.
type ArbiterInput struct {
	Now            time.Time
	SignalStrength int
	Queued         int  // Frames waiting to go out.
	RadioBusy      bool // Radio still sending.
	Inhibit        bool // Power monitor says no.
}

type ChannelArbiter struct {
	logger   *log.Logger
	txSwitch TxSwitch

	state      ArbiterState
	threshold  int
	settle     time.Duration
	fullDuplex bool

	clearing   bool // Clear interval in progress.
	clearSince time.Time
	lastBusy   time.Time
}

func NewChannelArbiter(cfg ArbiterConfig, txSwitch TxSwitch, logger *log.Logger) *ChannelArbiter {
	return &ChannelArbiter{
		logger:     componentLogger(logger, "xmit"),
		txSwitch:   txSwitch,
		state:      Receiving,
		threshold:  cfg.Threshold,
		settle:     cfg.Settle,
		fullDuplex: cfg.FullDuplex,
	}
}

func (a *ChannelArbiter) State() ArbiterState {
	return a.state
}

func (a *ChannelArbiter) Threshold() int {
	return a.threshold
}

func (a *ChannelArbiter) SetThreshold(t int) {
	a.logger.Info("Clear channel threshold changed", "from", a.threshold, "to", t)
	a.threshold = t
}

// When a sample last exceeded the threshold.  Zero if never.
func (a *ChannelArbiter) LastBusy() time.Time {
	return a.lastBusy
}

// ChannelBusy reports ErrChannelBusy unless the arbiter is in Transmitting.
func (a *ChannelArbiter) ChannelBusy() error {
	if a.state != Transmitting {
		return fmt.Errorf("%s: %w", a.state, ErrChannelBusy)
	}
	return nil
}

func (a *ChannelArbiter) setState(s ArbiterState) {
	if s == a.state {
		return
	}

	a.logger.Debug("State change", "from", a.state, "to", s)

	if a.txSwitch != nil && (s == Transmitting || a.state == Transmitting) {
		if err := a.txSwitch.SetTransmit(s == Transmitting); err != nil {
			a.logger.Error("Can't switch transmitter", "on", s == Transmitting, "err", err)
		}
	}

	if s == AssessingChannel {
		a.clearing = false
	}

	a.state = s
}

/*-------------------------------------------------------------------
 *
 * Name:        Poll
 *
 * Purpose:     Advance the state machine by one pass.
 *
 * Inputs:	in	- Current time, signal strength sample, queue
 *			  occupancy, radio and power status.
 *
 * Returns:	State after this pass.  The caller may hand a frame to
 *		the radio only when this is Transmitting.
 *
 *--------------------------------------------------------------------*/

func (a *ChannelArbiter) Poll(in ArbiterInput) ArbiterState {
	if in.SignalStrength > a.threshold {
		a.lastBusy = in.Now
	}

	switch a.state {
	case Receiving:
		if in.Queued > 0 && !in.Inhibit {
			a.setState(AssessingChannel)
			a.assess(in)
		}

	case AssessingChannel:
		if in.Queued == 0 {
			a.setState(Receiving)
			break
		}
		a.assess(in)

	case Transmitting:
		if in.Inhibit {
			a.logger.Warn("Transmit inhibited by power monitor")
			a.setState(Receiving)
			break
		}
		if in.Queued == 0 && !in.RadioBusy {
			a.setState(Receiving)
		}
	}

	return a.state
}

func (a *ChannelArbiter) assess(in ArbiterInput) {
	if in.Inhibit {
		a.clearing = false
		return
	}

	if a.fullDuplex {
		a.setState(Transmitting)
		return
	}

	if in.SignalStrength > a.threshold {
		if a.clearing {
			a.logger.Debug("Channel busy, waiting", "signal", in.SignalStrength, "threshold", a.threshold)
		}
		a.clearing = false
		return
	}

	if !a.clearing {
		a.clearing = true
		a.clearSince = in.Now
	}

	if in.Now.Sub(a.clearSince) > a.settle {
		a.setState(Transmitting)
	}
}
