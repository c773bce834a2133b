package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Collaborators at the edge of the link layer.
 *
 * Description:	The pipeline talks to the radio, the watchdog, the power
 *		monitor, and the command dispatcher only through these
 *		interfaces.  Every radio call returns its status directly.
 *
 *		StreamRadio carries encoded frames over any byte stream,
 *		such as a serial port to a modem, escaped with KISS framing
 *		so they can be found again.
 *
 *		LoopbackRadio is for tests.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

type RadioStatus int

const (
	RadioOK     RadioStatus = iota
	RadioNoData             // Receive: nothing waiting.
	RadioBusy               // Transmit: still sending the previous frame.
	RadioFault
)

func (s RadioStatus) String() string {
	switch s {
	case RadioOK:
		return "OK"
	case RadioNoData:
		return "NoData"
	case RadioBusy:
		return "Busy"
	case RadioFault:
		return "Fault"
	default:
		return fmt.Sprintf("RadioStatus(%d)", int(s))
	}
}

type Radio interface {
	// Send one encoded frame.  The caller has already checked IsBusy.
	Transmit(frame []byte) RadioStatus

	// Copy one received frame into buf.  Never blocks.
	Receive(buf []byte) (n int, rssi int, status RadioStatus)

	// Current signal strength for clear channel assessment.
	SampleRSSI() (int, RadioStatus)

	IsBusy() bool
}

type Watchdog interface {
	Trigger()
}

type PowerMonitor interface {
	IsOvercurrent(transmitting bool) bool
}

type Dispatcher interface {
	Dispatch(cmd byte, payload []byte)
}

type WatchdogFunc func()

func (f WatchdogFunc) Trigger() { f() }

type DispatcherFunc func(cmd byte, payload []byte)

func (f DispatcherFunc) Dispatch(cmd byte, payload []byte) { f(cmd, payload) }

type nopWatchdog struct{}

func (nopWatchdog) Trigger() {}

type nopPowerMonitor struct{}

func (nopPowerMonitor) IsOvercurrent(bool) bool { return false }

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(byte, []byte) {}

// Size of each read from a stream.
const STREAM_READ_SIZE = 256

// readLoop feeds chunks read from r to out until r fails or ctx is done.
func readLoop(ctx context.Context, r io.Reader, out chan<- []byte, errCh chan<- error) {
	var buf = make([]byte, STREAM_READ_SIZE)
	for {
		var n, err = r.Read(buf)
		if n > 0 {
			select {
			case out <- bytes.Clone(buf[:n]):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// StartReader reads r in a new goroutine.  The error channel gets the
// error that stopped it, io.EOF included.
func StartReader(ctx context.Context, r io.Reader) (<-chan []byte, <-chan error) {
	var out = make(chan []byte, 16)
	var errCh = make(chan error, 1)
	go readLoop(ctx, r, out, errCh)
	return out, errCh
}

/*-------------------------------------------------------------------
 *
 * Name:        StreamRadio
 *
 * Purpose:     Radio carried over a byte stream.
 *
 * Description:	Each encoded frame is written as one KISS frame.
 *		Received bytes are collected by a goroutine and frames
 *		are found in them when Receive is called.
 *
 *		There is no real receiver to measure so signal strength
 *		is a fixed value.
 *
 *--------------------------------------------------------------------*/

type StreamRadio struct {
	logger *log.Logger
	rw     io.ReadWriter
	framer *KissFramer
	rssi   int

	chunks chan []byte
	errs   chan error

	rx      *RingBuffer
	scratch []byte
	txbuf   []byte

	mu    sync.Mutex
	fault error
}

func NewStreamRadio(rw io.ReadWriter, rssi int, logger *log.Logger) *StreamRadio {
	logger = componentLogger(logger, "radio")
	return &StreamRadio{
		logger:  logger,
		rw:      rw,
		framer:  NewKissFramer(logger),
		rssi:    rssi,
		chunks:  make(chan []byte, 16),
		errs:    make(chan error, 1),
		rx:      NewRingBuffer("radio", 4*MAX_KISS_LEN, OverflowDropTail),
		scratch: make([]byte, MAX_KISS_LEN),
		txbuf:   make([]byte, 0, MAX_KISS_LEN),
	}
}

// Start reading.  Stops when ctx is done or the stream fails.
func (r *StreamRadio) Start(ctx context.Context) {
	go readLoop(ctx, r.rw, r.chunks, r.errs)
}

func (r *StreamRadio) setFault(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fault == nil {
		r.logger.Error("Radio stream failed", "err", err)
		r.fault = err
	}
}

// Err is the error that stopped the stream, if any.
func (r *StreamRadio) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fault
}

func (r *StreamRadio) Transmit(frame []byte) RadioStatus {
	r.txbuf = AppendEscaped(r.txbuf[:0], frame)
	if _, err := r.rw.Write(r.txbuf); err != nil {
		r.setFault(err)
		return RadioFault
	}
	return RadioOK
}

func (r *StreamRadio) Receive(buf []byte) (int, int, RadioStatus) {
drain:
	for {
		select {
		case chunk := <-r.chunks:
			if _, err := r.rx.Write(chunk); err != nil {
				r.logger.Warn("Receive buffer overflow", "err", err)
			}
		case err := <-r.errs:
			if !errors.Is(err, io.EOF) {
				r.setFault(err)
			}
		default:
			break drain
		}
	}

	var f, err = r.framer.ExtractFrame(r.rx, r.scratch)
	if errors.Is(err, ErrFrameIncomplete) {
		return 0, 0, IfThenElse(r.Err() != nil, RadioFault, RadioNoData)
	}
	if err != nil {
		r.logger.Warn("Bad frame from radio", "err", err)
		return 0, 0, RadioNoData
	}

	if len(buf) < 1+len(f.Payload) {
		r.logger.Warn("Frame from radio too big", "len", 1+len(f.Payload))
		return 0, 0, RadioNoData
	}

	buf[0] = f.Command
	var n = 1 + copy(buf[1:], f.Payload)

	return n, r.rssi, RadioOK
}

func (r *StreamRadio) SampleRSSI() (int, RadioStatus) {
	return r.rssi, IfThenElse(r.Err() != nil, RadioFault, RadioOK)
}

func (r *StreamRadio) IsBusy() bool {
	return false
}

/*-------------------------------------------------------------------
 *
 * Name:        LoopbackRadio
 *
 * Purpose:     Scripted radio for tests.
 *
 * Description:	Transmitted frames are recorded.  Received frames and
 *		signal strength samples are played back in order.  When the
 *		samples run out the last one repeats.
 *
 *--------------------------------------------------------------------*/

type LoopbackRadio struct {
	mu sync.Mutex

	sent     [][]byte
	incoming []loopbackFrame
	samples  []int
	quiet    int

	// Number of IsBusy calls that report busy after each Transmit.
	BusyPolls int
	busyLeft  int

	TransmitStatus RadioStatus
}

type loopbackFrame struct {
	data []byte
	rssi int
}

func NewLoopbackRadio(quiet int) *LoopbackRadio {
	return &LoopbackRadio{quiet: quiet}
}

// Queue a frame to be received.
func (r *LoopbackRadio) Inject(frame []byte, rssi int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incoming = append(r.incoming, loopbackFrame{data: bytes.Clone(frame), rssi: rssi})
}

// Queue signal strength samples.
func (r *LoopbackRadio) Samples(s ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s...)
}

func (r *LoopbackRadio) Transmit(frame []byte) RadioStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.TransmitStatus != RadioOK {
		return r.TransmitStatus
	}

	r.sent = append(r.sent, bytes.Clone(frame))
	r.busyLeft = r.BusyPolls

	return RadioOK
}

func (r *LoopbackRadio) Receive(buf []byte) (int, int, RadioStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.incoming) == 0 {
		return 0, 0, RadioNoData
	}

	var f = r.incoming[0]
	r.incoming = r.incoming[1:]

	return copy(buf, f.data), f.rssi, RadioOK
}

func (r *LoopbackRadio) SampleRSSI() (int, RadioStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		return r.quiet, RadioOK
	}

	var s = r.samples[0]
	if len(r.samples) > 1 {
		r.samples = r.samples[1:]
	} else {
		r.quiet = s
		r.samples = nil
	}

	return s, RadioOK
}

func (r *LoopbackRadio) IsBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.busyLeft > 0 {
		r.busyLeft--
		return true
	}
	return false
}

func (r *LoopbackRadio) SentFrames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}
