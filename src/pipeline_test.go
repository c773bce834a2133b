package satlink

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pipelineEpoch = time.Unix(1700000000, 0)

type recordingObserver struct {
	records []FrameRecord
}

func (o *recordingObserver) ObserveFrame(rec FrameRecord) {
	o.records = append(o.records, rec)
}

type dispatched struct {
	cmd     byte
	payload []byte
}

type pipelineFixture struct {
	p        *Pipeline
	radio    *LoopbackRadio
	host     *bytes.Buffer
	calls    []dispatched
	watchdog int
	observer *recordingObserver
	codec    *Codec
}

func newPipelineFixture(t *testing.T, tweak func(*Config)) *pipelineFixture {
	t.Helper()

	var cfg = DefaultConfig()
	cfg.Channel.FullDuplex = true
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, cfg.Validate())

	var fx = &pipelineFixture{
		radio:    NewLoopbackRadio(-120),
		host:     new(bytes.Buffer),
		observer: new(recordingObserver),
		codec:    newTestCodec(t, CRCStrict),
	}

	var p, err = NewPipeline(cfg, PipelineDeps{
		Radio:    fx.radio,
		Host:     fx.host,
		Watchdog: WatchdogFunc(func() { fx.watchdog++ }),
		Dispatcher: DispatcherFunc(func(cmd byte, payload []byte) {
			fx.calls = append(fx.calls, dispatched{cmd, bytes.Clone(payload)})
		}),
		Observers: []FrameObserver{fx.observer},
	}, nil)
	require.NoError(t, err)
	fx.p = p

	return fx
}

// Frames the radio sent, decoded.
func (fx *pipelineFixture) sent(t *testing.T) []dispatched {
	t.Helper()

	var out []dispatched
	for _, wire := range fx.radio.SentFrames() {
		var f, err = fx.codec.Decode(wire)
		require.NoError(t, err)
		out = append(out, dispatched{f.Command, bytes.Clone(f.Payload)})
	}
	return out
}

func (fx *pipelineFixture) inject(t *testing.T, cmd byte, payload []byte) {
	t.Helper()

	var wire, err = fx.codec.Encode(cmd, payload)
	require.NoError(t, err)
	fx.radio.Inject(wire, -75)
}

func TestPipelineNeedsRadio(t *testing.T) {
	var _, err = NewPipeline(DefaultConfig(), PipelineDeps{}, nil)
	assert.Error(t, err)
}

func TestPipelineHostDataIsTransmitted(t *testing.T) {
	var fx = newPipelineFixture(t, nil)

	require.NoError(t, fx.p.IngestData(Escape([]byte{0x00, 'h', 'i'})))

	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 1, report.Transmitted)
	assert.Equal(t, Transmitting, report.State)

	assert.Equal(t, []dispatched{{0x00, []byte("hi")}}, fx.sent(t))

	require.Len(t, fx.observer.records, 1)
	var rec = fx.observer.records[0]
	assert.Equal(t, DirectionTx, rec.Direction)
	assert.Equal(t, 2, rec.Len)
	assert.True(t, rec.CRCValid)

	// Nothing left, so back to listening.
	report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, Receiving, report.State)
	assert.Equal(t, 2, fx.watchdog)
}

func TestPipelineHalfDuplexWaitsForSettle(t *testing.T) {
	var fx = newPipelineFixture(t, func(c *Config) {
		c.Channel.FullDuplex = false
		c.Channel.Settle = 5 * time.Millisecond
	})

	require.NoError(t, fx.p.IngestData(Escape([]byte{0x00, 'x'})))

	var report, _ = fx.p.Pass(pipelineEpoch)
	assert.Equal(t, AssessingChannel, report.State)
	assert.Equal(t, 0, report.Transmitted)

	report, _ = fx.p.Pass(pipelineEpoch.Add(3 * time.Millisecond))
	assert.Equal(t, AssessingChannel, report.State)

	report, _ = fx.p.Pass(pipelineEpoch.Add(6 * time.Millisecond))
	assert.Equal(t, Transmitting, report.State)
	assert.Equal(t, 1, report.Transmitted)
}

func TestPipelineReceivedDataGoesToHost(t *testing.T) {
	var fx = newPipelineFixture(t, nil)
	fx.inject(t, 0x00, []byte{'a', FEND, 'b'})

	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Equal(t, 1, report.ToHost)

	assert.Equal(t, Escape([]byte{0x00, 'a', FEND, 'b'}), fx.host.Bytes())

	require.Len(t, fx.observer.records, 1)
	var rec = fx.observer.records[0]
	assert.Equal(t, DirectionRx, rec.Direction)
	assert.Equal(t, 3, rec.Len)
	assert.Equal(t, -75, rec.RSSI)
}

func TestPipelineReceivedCommandIsDispatched(t *testing.T) {
	var fx = newPipelineFixture(t, nil)
	fx.inject(t, 0x09, []byte("status?"))

	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 0, report.ToHost)

	assert.Equal(t, []dispatched{{0x09, []byte("status?")}}, fx.calls)
	assert.Empty(t, fx.host.Bytes())
}

func TestPipelineHostCommandIsDispatched(t *testing.T) {
	var fx = newPipelineFixture(t, nil)

	require.NoError(t, fx.p.IngestCommand([]byte{0xC0, 0x09, 0xC0}))

	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dispatched)
	require.Len(t, fx.calls, 1)
	assert.Equal(t, byte(0x09), fx.calls[0].cmd)
	assert.Empty(t, fx.calls[0].payload)
}

func TestPipelineRepliesGoFirst(t *testing.T) {
	var fx = newPipelineFixture(t, nil)

	require.NoError(t, fx.p.IngestData(Escape([]byte{0x00, 'd', 'a', 't', 'a'})))
	require.NoError(t, fx.p.IngestCommand(Escape([]byte{0x00, 'a', 'c', 'k'})))

	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queued)
	assert.Equal(t, 1, report.Transmitted)

	_, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)

	assert.Equal(t, []dispatched{{0x00, []byte("ack")}, {0x00, []byte("data")}}, fx.sent(t))
}

func TestPipelineDiscardsUndecodable(t *testing.T) {
	var fx = newPipelineFixture(t, nil)
	fx.radio.Inject([]byte("not an il2p frame at all, just noise"), -60)

	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Equal(t, 1, report.Discarded)
	assert.Empty(t, fx.host.Bytes())
	assert.Empty(t, fx.observer.records)
	assert.Equal(t, 1, fx.p.Codec().Stats().Discarded)
}

func TestPipelineDataWaitsWhileQueueFull(t *testing.T) {
	var fx = newPipelineFixture(t, func(c *Config) {
		c.Channel.FullDuplex = false
		c.Channel.TxQueueSlots = 1
	})
	fx.radio.Samples(-50) // Busy channel, nothing goes out.

	for _, b := range []byte("abc") {
		require.NoError(t, fx.p.IngestData(Escape([]byte{0x00, b})))
	}

	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, AssessingChannel, report.State)
	assert.Equal(t, 8, fx.p.DataBuffer().Len(), "two frames still waiting")
}

func TestPipelineRadioBusyAndFault(t *testing.T) {
	var fx = newPipelineFixture(t, nil)
	require.NoError(t, fx.p.IngestData(Escape([]byte{0x00, 'z'})))

	fx.radio.TransmitStatus = RadioBusy
	var report, _ = fx.p.Pass(pipelineEpoch)
	assert.Equal(t, 0, report.Transmitted)
	assert.Equal(t, 1, fx.p.TransmitQueue().Count(-1), "kept for next time")

	fx.radio.TransmitStatus = RadioFault
	report, _ = fx.p.Pass(pipelineEpoch)
	assert.Equal(t, 0, report.Transmitted)
	assert.True(t, fx.p.TransmitQueue().IsEmpty(), "dropped")
}

func TestPipelineWaitsForBusyRadio(t *testing.T) {
	var fx = newPipelineFixture(t, nil)
	fx.radio.BusyPolls = 1

	require.NoError(t, fx.p.IngestData(Escape([]byte{0x00, '1'})))
	require.NoError(t, fx.p.IngestData(Escape([]byte{0x00, '2'})))

	var report, _ = fx.p.Pass(pipelineEpoch)
	assert.Equal(t, 1, report.Transmitted)

	report, _ = fx.p.Pass(pipelineEpoch)
	assert.Equal(t, 0, report.Transmitted, "radio still sending")

	report, _ = fx.p.Pass(pipelineEpoch)
	assert.Equal(t, 1, report.Transmitted)
}

type overcurrent bool

func (o overcurrent) IsOvercurrent(bool) bool { return bool(o) }

func TestPipelineOvercurrentInhibits(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Channel.FullDuplex = true

	var radio = NewLoopbackRadio(-120)
	var p, err = NewPipeline(cfg, PipelineDeps{Radio: radio, Power: overcurrent(true)}, nil)
	require.NoError(t, err)

	require.NoError(t, p.IngestData(Escape([]byte{0x00, 'p'})))

	report, err := p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.Equal(t, Receiving, report.State)
	assert.Empty(t, radio.SentFrames())
}

func TestPipelineSustainedOverflow(t *testing.T) {
	var fx = newPipelineFixture(t, func(c *Config) {
		c.Link.MaxOverflowPasses = 2
	})

	var flood = make([]byte, CommandBufferSize+1)
	var overflowPass = func() error {
		assert.ErrorIs(t, fx.p.IngestCommand(flood), ErrBufferOverflow)
		var report, err = fx.p.Pass(pipelineEpoch)
		assert.True(t, report.Overflow)
		return err
	}

	require.NoError(t, overflowPass())
	require.NoError(t, overflowPass())

	// A clean pass starts the count over.
	var report, err = fx.p.Pass(pipelineEpoch)
	require.NoError(t, err)
	assert.False(t, report.Overflow)

	require.NoError(t, overflowPass())
	require.NoError(t, overflowPass())
	assert.ErrorIs(t, overflowPass(), ErrSustainedOverflow)
	assert.Equal(t, 6, fx.watchdog)
}

func TestPipelineRun(t *testing.T) {
	var fx = newPipelineFixture(t, nil)

	var ctx, cancel = context.WithCancel(context.Background())
	var cmdIn = make(chan []byte, 1)
	var dataIn = make(chan []byte, 1)
	var done = make(chan error, 1)

	go func() {
		done <- fx.p.Run(ctx, time.Millisecond, cmdIn, dataIn)
	}()

	dataIn <- Escape([]byte{0x00, 'r', 'u', 'n'})
	close(cmdIn)

	require.Eventually(t, func() bool {
		return len(fx.radio.SentFrames()) == 1
	}, 2*time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPipelineRunStopsOnOverflow(t *testing.T) {
	var fx = newPipelineFixture(t, func(c *Config) {
		c.Link.MaxOverflowPasses = 1
	})

	var cmdIn = make(chan []byte, 4)
	cmdIn <- make([]byte, CommandBufferSize+1)
	cmdIn <- make([]byte, CommandBufferSize+1)

	var done = make(chan error, 1)
	go func() {
		done <- fx.p.Run(context.Background(), time.Millisecond, cmdIn, nil)
	}()

	// Both chunks can land in the same pass, so keep the pressure on.
	var err error
	require.Eventually(t, func() bool {
		select {
		case err = <-done:
			return true
		case cmdIn <- make([]byte, CommandBufferSize+1):
			return false
		default:
			return false
		}
	}, 5*time.Second, time.Millisecond)

	assert.True(t, errors.Is(err, ErrSustainedOverflow))
}
