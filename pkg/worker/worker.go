// Package worker drives one Suwol1000 indicator over a serial port: a
// state machine that polls for weight/RFID changes, runs the voice
// prompt sequence to completion once a card is tagged, and recovers
// from link faults — grounded on the original source's worker.py
// WeighingStationWorker, expanded from its bare INITIALIZE/CONNECT/
// STANDBY/RECOVER loop to the MEASURE sequencing spec.md adds.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/donghyeon/scaleledger-gateway/pkg/events"
	"github.com/donghyeon/scaleledger-gateway/pkg/logger"
	"github.com/donghyeon/scaleledger-gateway/pkg/serial"
	"github.com/donghyeon/scaleledger-gateway/pkg/suwol1000"

	"github.com/rs/zerolog"
)

// State is one position in the WeighingWorker's lifecycle.
type State string

const (
	StateInitialize State = "INITIALIZE"
	StateConnect    State = "CONNECT"
	StateIdle       State = "IDLE"
	StateMeasure    State = "MEASURE"
	StateRecover    State = "RECOVER"
)

// voiceSequence is the fixed prompt order a completed weighing plays
// through before the worker reports WeighingCompleted.
var voiceSequence = []suwol1000.VoiceCode{
	suwol1000.VoicePleaseWait,
	suwol1000.VoiceWeightComplete,
	suwol1000.VoiceThankYou,
}

// Port is the subset of *serial.Link a WeighingWorker needs; an
// interface so tests can drive the state machine against a fake
// indicator instead of real hardware.
type Port interface {
	Write(frame []byte) error
	ReadFrame(etx byte) ([]byte, error)
	Close() error
}

// Opener opens a named serial port. The default is serial.Open; tests
// substitute a fake.
type Opener func(name string) (Port, error)

func defaultOpener(name string) (Port, error) {
	return serial.Open(name)
}

// Config configures a WeighingWorker.
type Config struct {
	PortName        string
	DeviceID        int
	PollingInterval time.Duration
	RetryInterval   time.Duration
	Sink            events.Sink
	Open            Opener // nil uses serial.Open
}

// Worker is one WeighingWorker instance. It owns its SerialLink
// exclusively and is not safe for concurrent use — spec.md assigns it
// a dedicated goroutine.
type Worker struct {
	cfg Config
	log zerolog.Logger

	open Opener
	link Port

	state State

	lastWeight int
	lastPlate  string
}

// New builds a Worker in its initial state. cfg.Sink defaults to a
// null sink if nil.
func New(cfg Config) *Worker {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 100 * time.Millisecond
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Second
	}
	if cfg.Sink == nil {
		cfg.Sink = events.NullSink{}
	}
	open := cfg.Open
	if open == nil {
		open = defaultOpener
	}
	return &Worker{
		cfg:   cfg,
		log:   logger.Bind("port", cfg.PortName),
		open:  open,
		state: StateInitialize,
	}
}

// State returns the worker's current state, chiefly for tests.
func (w *Worker) State() State { return w.state }

// Run drives the state machine until ctx is cancelled. It always
// returns a nil error on cooperative cancellation; state machine
// errors are logged and handled internally per spec.md §7.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			if w.link != nil {
				w.link.Close()
			}
			return nil
		}

		switch w.state {
		case StateInitialize:
			w.log.Info().Str("next_state", string(StateConnect)).Msg("sys.worker.startup")
			w.state = StateConnect

		case StateConnect:
			w.state = w.connect()

		case StateIdle:
			w.state = w.idle(ctx)

		case StateMeasure:
			w.state = w.measure(ctx)

		case StateRecover:
			w.state = w.recover(ctx)
		}
	}
}

func (w *Worker) connect() State {
	w.log.Debug().Msg("hw.serial.connecting")
	link, err := w.open(w.cfg.PortName)
	if err != nil {
		w.log.Warn().Err(err).Msg("hw.serial.connect_failed")
		return StateRecover
	}
	w.link = link
	w.log.Info().Str("next_state", string(StateIdle)).Msg("hw.serial.connected")
	return StateIdle
}

func (w *Worker) idle(ctx context.Context) State {
	resp, err := w.poll(suwol1000.VoiceNone, "")
	if err != nil {
		if errors.Is(err, serial.ErrLinkLost) {
			w.log.Warn().Err(err).Msg("hw.serial.connection_lost")
			return StateRecover
		}
		// Timeout and protocol errors are transient: stay in IDLE.
		w.log.Warn().Err(err).Msg("hw.protocol.parse_error")
		sleepCtx(ctx, w.cfg.PollingInterval)
		return StateIdle
	}

	if resp.CurrentWeight != w.lastWeight {
		w.log.Info().Int("weight", resp.CurrentWeight).Msg("hw.scale.weight_changed")
		w.lastWeight = resp.CurrentWeight
	}

	if resp.RFIDCardUID != suwol1000.NoCardUID {
		w.lastPlate = resp.RFIDCardUID
		w.log.Info().Str("rfid", w.lastPlate).Msg("biz.rfid.tagged")
		w.cfg.Sink.Emit(events.NewRFIDTagged(w.lastPlate))
		sleepCtx(ctx, w.cfg.PollingInterval)
		return StateMeasure
	}

	sleepCtx(ctx, w.cfg.PollingInterval)
	return StateIdle
}

// measure drives the fixed voice sequence to completion, one code at a
// time. Each code is sent until the indicator's *response* confirms it
// started playing (a reply other than NONE to the sent code, not merely
// sent == code — the first reply to a freshly sent code is often still
// NONE, before the prompt has actually started), then NONE is sent until the indicator
// reports silence again — see spec.md §4.3/§8 scenario 4.
func (w *Worker) measure(ctx context.Context) State {
	for _, code := range voiceSequence {
		observed := suwol1000.VoiceNone
		triggered := false

		for {
			if ctx.Err() != nil {
				return StateMeasure
			}

			send := code
			if observed != suwol1000.VoiceNone {
				send = suwol1000.VoiceNone
			}

			resp, err := w.poll(send, w.lastPlate)
			if err != nil {
				if errors.Is(err, serial.ErrLinkLost) {
					w.log.Warn().Err(err).Msg("hw.serial.connection_lost")
					return StateRecover
				}
				w.log.Warn().Err(err).Msg("hw.protocol.parse_error")
				sleepCtx(ctx, w.cfg.PollingInterval)
				continue
			}

			observed = resp.VoiceCode
			if send == code && observed != suwol1000.VoiceNone {
				triggered = true
			}

			if triggered && observed == suwol1000.VoiceNone {
				break
			}
			sleepCtx(ctx, w.cfg.PollingInterval)
		}
	}

	w.log.Info().Str("rfid", w.lastPlate).Int("weight", w.lastWeight).Msg("biz.weighing.completed")
	w.cfg.Sink.Emit(events.NewWeighingCompleted(w.lastPlate, w.lastWeight))
	return StateIdle
}

func (w *Worker) recover(ctx context.Context) State {
	if w.link != nil {
		w.link.Close()
		w.log.Info().Msg("hw.serial.closed")
		w.link = nil
	}
	w.log.Info().Dur("retry_in", w.cfg.RetryInterval).Str("next_state", string(StateConnect)).
		Msg("sys.worker.recovery_scheduled")
	sleepCtx(ctx, w.cfg.RetryInterval)
	return StateConnect
}

// poll writes one DISPLAY request and decodes the indicator's reply.
func (w *Worker) poll(voice suwol1000.VoiceCode, plate string) (suwol1000.ResponsePacket, error) {
	req := suwol1000.RequestPacket{
		DeviceID:      w.cfg.DeviceID,
		CommandCode:   suwol1000.CommandDisplay,
		DisplayWeight: w.lastWeight,
		DisplayPlate:  plate,
		GreenBlink:    plate != "",
		VoiceCode:     voice,
	}
	if err := w.link.Write(req.ToBytes()); err != nil {
		return suwol1000.ResponsePacket{}, err
	}

	raw, err := w.link.ReadFrame(suwol1000.ETX)
	if err != nil {
		return suwol1000.ResponsePacket{}, err
	}
	return suwol1000.FromBytes(raw)
}

// sleepCtx sleeps for d or returns early if ctx is cancelled, mirroring
// the teacher's ticker/ctx.Done() select idiom in cmd/watch.go.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
