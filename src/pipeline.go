package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Cooperative scheduling loop tying the link layer together.
 *
 * Description:	One goroutine owns both byte buffers and does everything
 *		in a fixed round each pass:
 *
 *		1. Radio: take received frames, decode them.
 *			Data frames (command 0) are escaped and written to
 *			the host.  Anything else is escaped into the command
 *			buffer, the same as commands from the host.
 *
 *		2. Command buffer: find frames.
 *			0x06 SetHardware is answered by the link itself.
 *			0x00 is a reply to the ground, encoded and queued at
 *			high priority.
 *			Everything else goes to the command dispatcher.
 *
 *		3. Data buffer: find frames, encode, queue at low priority.
 *			Left in the buffer while the queue is full.
 *
 *		4. Power monitor and channel arbiter.
 *
 *		5. Hand at most one queued frame to the radio.
 *
 *		6. Watchdog, always, even when the pass fails.
 *
 *		Nothing waits.  Transports feed the buffers only through
 *		Ingest, called from the same goroutine between passes.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Most frames taken from the radio in one pass.
const RX_FRAMES_PER_PASS = 8

// Collaborators.  nil fields get harmless defaults.
type PipelineDeps struct {
	Radio      Radio
	Host       io.Writer // Received data frames and SetHardware responses.
	Watchdog   Watchdog
	Power      PowerMonitor
	Dispatcher Dispatcher
	TxSwitch   TxSwitch
	Observers  []FrameObserver
}

// PassReport says what one pass did.
type PassReport struct {
	State       ArbiterState
	Received    int // Frames from the radio.
	Discarded   int // Of those, thrown away by the decoder.
	ToHost      int
	Dispatched  int
	Queued      int
	Transmitted int
	Overflow    bool
}

type Pipeline struct {
	logger *log.Logger

	codec   *Codec
	framer  *KissFramer
	arbiter *ChannelArbiter
	txq     *TransmitQueue

	radio      Radio
	host       io.Writer
	watchdog   Watchdog
	power      PowerMonitor
	dispatcher Dispatcher
	observers  []FrameObserver

	cmdBuf  *RingBuffer
	dataBuf *RingBuffer

	// Work space, sized once.
	scratch []byte
	rxbuf   []byte
	encbuf  []byte
	plain   []byte
	escaped []byte

	maxOverflowPasses int
	overflowPasses    int
	lastOverflows     int
}

/*-------------------------------------------------------------------
 *
 * Name:        NewPipeline
 *
 * Inputs:	cfg	- Validated configuration.
 *		deps	- Collaborators.  Radio is required.
 *
 *--------------------------------------------------------------------*/

func NewPipeline(cfg *Config, deps PipelineDeps, logger *log.Logger) (*Pipeline, error) {
	if deps.Radio == nil {
		return nil, fmt.Errorf("pipeline needs a radio")
	}

	var codec, err = NewCodec(cfg.CodecConfig(), logger)
	if err != nil {
		return nil, err
	}

	cmdPolicy, err := ParseOverflowPolicy(cfg.Link.CommandOverflow)
	if err != nil {
		return nil, err
	}
	dataPolicy, err := ParseOverflowPolicy(cfg.Link.DataOverflow)
	if err != nil {
		return nil, err
	}

	var p = &Pipeline{
		logger:     componentLogger(logger, "pipeline"),
		codec:      codec,
		framer:     NewKissFramer(logger),
		arbiter:    NewChannelArbiter(cfg.ArbiterConfig(), deps.TxSwitch, logger),
		txq:        NewTransmitQueue(cfg.Channel.TxQueueSlots),
		radio:      deps.Radio,
		host:       IfThenElse[io.Writer](deps.Host != nil, deps.Host, io.Discard),
		watchdog:   IfThenElse[Watchdog](deps.Watchdog != nil, deps.Watchdog, nopWatchdog{}),
		power:      IfThenElse[PowerMonitor](deps.Power != nil, deps.Power, nopPowerMonitor{}),
		dispatcher: IfThenElse[Dispatcher](deps.Dispatcher != nil, deps.Dispatcher, nopDispatcher{}),
		observers:  deps.Observers,

		cmdBuf:  NewRingBuffer("command", CommandBufferSize, cmdPolicy),
		dataBuf: NewRingBuffer("data", DataBufferSize, dataPolicy),

		scratch: make([]byte, MAX_KISS_LEN),
		rxbuf:   make([]byte, MAX_KISS_LEN),
		encbuf:  make([]byte, 0, IL2P_MAX_ENCODED_SIZE),
		plain:   make([]byte, 0, FRAME_COMMAND_SIZE+IL2P_MAX_PAYLOAD_SIZE),
		escaped: make([]byte, 0, MAX_KISS_LEN),

		maxOverflowPasses: cfg.Link.MaxOverflowPasses,
	}

	return p, nil
}

func (p *Pipeline) Codec() *Codec                 { return p.codec }
func (p *Pipeline) Arbiter() *ChannelArbiter      { return p.arbiter }
func (p *Pipeline) TransmitQueue() *TransmitQueue { return p.txq }
func (p *Pipeline) CommandBuffer() *RingBuffer    { return p.cmdBuf }
func (p *Pipeline) DataBuffer() *RingBuffer       { return p.dataBuf }

// IngestCommand adds bytes from a command transport.  Overflow is reported and counted.
func (p *Pipeline) IngestCommand(b []byte) error {
	var _, err = p.cmdBuf.Write(b)
	return err
}

// IngestData adds bytes from the host data port.
func (p *Pipeline) IngestData(b []byte) error {
	var _, err = p.dataBuf.Write(b)
	return err
}

/*-------------------------------------------------------------------
 *
 * Name:        QueueFrame
 *
 * Purpose:     Encode a frame and put it in the transmit queue.
 *
 * Inputs:	prio	- TQ_PRIO_0_HI or TQ_PRIO_1_LO.
 *		cmd	- Command byte.
 *		payload	- Up to IL2P_MAX_PAYLOAD_SIZE bytes.
 *
 *--------------------------------------------------------------------*/

func (p *Pipeline) QueueFrame(prio int, cmd byte, payload []byte) error {
	var frame, err = p.codec.AppendEncoded(p.encbuf[:0], cmd, payload)
	if err != nil {
		return err
	}
	return p.txq.Append(prio, frame)
}

func (p *Pipeline) observe(rec FrameRecord) {
	for _, o := range p.observers {
		o.ObserveFrame(rec)
	}
}

// Write cmd + body to the host as one KISS frame.
func (p *Pipeline) sendToHost(cmd byte, body []byte) {
	p.plain = append(append(p.plain[:0], cmd), body...)
	p.escaped = AppendEscaped(p.escaped[:0], p.plain)

	if _, err := p.host.Write(p.escaped); err != nil {
		p.logger.Error("Can't write to host", "err", err)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Pass
 *
 * Purpose:     One round of the scheduling loop.
 *
 * Inputs:	now	- Current time, for channel assessment.
 *
 * Returns:	What was done.
 *		ErrSustainedOverflow once the buffers have overflowed on
 *		more consecutive passes than allowed.  Nothing else is
 *		fatal.
 *
 *--------------------------------------------------------------------*/

func (p *Pipeline) Pass(now time.Time) (PassReport, error) {
	defer p.watchdog.Trigger()

	var report PassReport

	p.receive(now, &report)
	p.processCommands(&report)
	p.processData(&report)

	var inhibit = p.power.IsOvercurrent(p.arbiter.State() == Transmitting)

	var signal, status = p.radio.SampleRSSI()
	if status != RadioOK {
		p.logger.Warn("Can't sample signal strength, assuming busy", "status", status)
		signal = p.arbiter.Threshold() + 1
	}

	var radioBusy = p.radio.IsBusy()

	report.State = p.arbiter.Poll(ArbiterInput{
		Now:            now,
		SignalStrength: signal,
		Queued:         p.txq.Count(-1),
		RadioBusy:      radioBusy,
		Inhibit:        inhibit,
	})

	if report.State == Transmitting && !radioBusy {
		p.transmit(now, &report)
	}

	return report, p.checkOverflow(&report)
}

func (p *Pipeline) receive(now time.Time, report *PassReport) {
	for range RX_FRAMES_PER_PASS {
		var n, rssi, status = p.radio.Receive(p.rxbuf)
		switch status {
		case RadioOK:
		case RadioNoData:
			return
		default:
			p.logger.Error("Radio receive failed", "status", status)
			return
		}

		report.Received++

		var f, err = p.codec.Decode(p.rxbuf[:n])
		if err != nil {
			report.Discarded++
			p.logger.Warn("Discarded frame from radio", "err", err, "rssi", rssi)
			continue
		}

		p.observe(FrameRecord{
			Time:      now,
			Direction: DirectionRx,
			Command:   f.Command,
			Len:       len(f.Payload),
			Corrected: f.Corrected(),
			CRCValid:  f.CRCValid,
			RSSI:      rssi,
		})

		if f.Command == KISS_CMD_DATA_FRAME {
			p.sendToHost(f.Command, f.Payload)
			report.ToHost++
			continue
		}

		p.plain = append(append(p.plain[:0], f.Command), f.Payload...)
		p.escaped = AppendEscaped(p.escaped[:0], p.plain)
		if err := p.IngestCommand(p.escaped); err != nil {
			p.logger.Error("Command from radio lost", "command", kissCommandName(f.Command), "err", err)
		}
	}
}

func (p *Pipeline) processCommands(report *PassReport) {
	for {
		var f, err = p.framer.ExtractFrame(p.cmdBuf, p.scratch)
		if errors.Is(err, ErrFrameIncomplete) {
			return
		}
		if err != nil {
			p.logger.Warn("Bad frame in command buffer", "err", err)
			continue
		}

		switch f.Command {
		case KISS_CMD_SET_HARDWARE:
			p.setHardware(f.Payload)

		case KISS_CMD_DATA_FRAME:
			if err := p.QueueFrame(TQ_PRIO_0_HI, f.Command, f.Payload); err != nil {
				p.logger.Warn("Reply not queued", "len", len(f.Payload), "err", err)
				continue
			}
			report.Queued++

		default:
			p.dispatcher.Dispatch(f.Command, f.Payload)
			report.Dispatched++
		}
	}
}

func (p *Pipeline) processData(report *PassReport) {
	for !p.txq.Full(TQ_PRIO_1_LO) {
		var f, err = p.framer.ExtractFrame(p.dataBuf, p.scratch)
		if errors.Is(err, ErrFrameIncomplete) {
			return
		}
		if err != nil {
			p.logger.Warn("Bad frame in data buffer", "err", err)
			continue
		}

		if err := p.QueueFrame(TQ_PRIO_1_LO, f.Command, f.Payload); err != nil {
			p.logger.Warn("Data frame not queued", "len", len(f.Payload), "err", err)
			continue
		}
		report.Queued++
	}
}

func (p *Pipeline) transmit(now time.Time, report *PassReport) {
	var frame = p.txq.Peek()
	if frame == nil {
		return
	}

	switch status := p.radio.Transmit(frame); status {
	case RadioOK:
		report.Transmitted++
		p.observe(FrameRecord{
			Time:      now,
			Direction: DirectionTx,
			Command:   frame[0],
			Len:       payloadSizeOf(len(frame)),
			CRCValid:  true,
		})
		p.txq.Remove()

	case RadioBusy:
		// Try again next pass.

	default:
		p.logger.Error("Radio transmit failed, frame dropped", "status", status, "len", len(frame))
		p.txq.Remove()
	}
}

// Payload size of an encoded frame of n bytes.
func payloadSizeOf(n int) int {
	if n <= IL2P_MIN_ENCODED_SIZE {
		return 0
	}
	return n - IL2P_MIN_ENCODED_SIZE - IL2P_PAYLOAD_PARITY
}

func (p *Pipeline) checkOverflow(report *PassReport) error {
	var total = p.cmdBuf.Overflows() + p.dataBuf.Overflows()
	report.Overflow = total > p.lastOverflows
	p.lastOverflows = total

	if !report.Overflow {
		p.overflowPasses = 0
		return nil
	}

	p.overflowPasses++
	p.logger.Error("Buffer overflow", "command_lost", p.cmdBuf.Overflows(), "data_lost", p.dataBuf.Overflows(), "passes", p.overflowPasses)

	if p.overflowPasses > p.maxOverflowPasses {
		return fmt.Errorf("%d consecutive passes: %w", p.overflowPasses, ErrSustainedOverflow)
	}
	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     Run passes until cancelled.
 *
 * Inputs:	interval	- Time between passes.
 *		cmdIn, dataIn	- Bytes from transports.  Either can be nil.
 *
 * Returns:	nil when ctx is done, otherwise the fatal pass error.
 *
 *--------------------------------------------------------------------*/

func (p *Pipeline) Run(ctx context.Context, interval time.Duration, cmdIn, dataIn <-chan []byte) error {
	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Running", "interval", interval, "state", p.arbiter.State())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

	drain:
		for {
			select {
			case b, ok := <-cmdIn:
				if !ok {
					cmdIn = nil
					continue
				}
				if err := p.IngestCommand(b); err != nil {
					p.logger.Warn("Command bytes lost", "err", err)
				}
			case b, ok := <-dataIn:
				if !ok {
					dataIn = nil
					continue
				}
				if err := p.IngestData(b); err != nil {
					p.logger.Warn("Data bytes lost", "err", err)
				}
			default:
				break drain
			}
		}

		if _, err := p.Pass(time.Now()); err != nil {
			return err
		}
	}
}
