package bp

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"

	"github.com/dcp-vardis/dcp-vardis-go/internal/transport"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Engine is the BP daemon's core: the client-protocol registry, transmit
// scheduler, receive sniffer and payload collector of §2/§4.1/§4.2/§5.
// Command-server framing lives in commandserver.go; this type is what it
// drives.
type Engine struct {
	cfg  Config
	reg  *registry
	bc   transport.Broadcaster
	log  *logging.Logger

	mu                 sync.Mutex
	active             bool
	seqno              uint32
	avgBeaconSize      float64
	haveBeaconSize     bool
	avgInterBeaconTime time.Duration
	haveInterBeacon    bool
	lastBeaconAt       time.Time

	statMu sync.Mutex
	cntOut       map[wire.ProtocolId]uint64
	cntOutDrop   map[wire.ProtocolId]uint64
	cntIn        map[wire.ProtocolId]uint64
	cntInDrop    map[wire.ProtocolId]uint64
	cntInDropUnknownProtocol uint64

	exitFlag chan struct{}
	exitOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine constructs a BP engine bound to bc, initially inactive
// (§6 "Activation model").
func NewEngine(cfg Config, bc transport.Broadcaster, log *logging.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		reg:        newRegistry(),
		bc:         bc,
		log:        log,
		cntOut:     make(map[wire.ProtocolId]uint64),
		cntOutDrop: make(map[wire.ProtocolId]uint64),
		cntIn:      make(map[wire.ProtocolId]uint64),
		cntInDrop:  make(map[wire.ProtocolId]uint64),
		exitFlag:   make(chan struct{}),
	}, nil
}

func (e *Engine) OwnNodeId() wire.NodeId { return e.cfg.OwnNodeId }

// Register admits a new client protocol per §4.1's checks, in order:
// not already present; 1 <= maxPayloadSize <= maxBeaconSize - fixed
// overhead; dropping-queue modes require maxEntries >= 1.
func (e *Engine) Register(protocolId wire.ProtocolId, name string, maxPayloadSize int, mode QueueingMode, maxEntries int, allowMultiple, wantTxConfirms bool, shmName string) (token uuid.UUID, own wire.NodeId, status RegisterStatus) {
	own = e.cfg.OwnNodeId
	if _, exists := e.reg.get(protocolId); exists {
		return uuid.UUID{}, own, AlreadyRegistered
	}
	maxAllowed := e.cfg.MaxBeaconSize - FixedSizeBeaconOverhead
	if maxPayloadSize < 1 || maxPayloadSize > maxAllowed {
		return uuid.UUID{}, own, IllegalMaxPayloadSize
	}
	if (mode == QueueDropHead || mode == QueueDropTail) && maxEntries < 1 {
		return uuid.UUID{}, own, IllegalDroppingQueueSize
	}

	channel, err := newClientChannel(e.cfg.ShmDir, shmName, mode, maxEntries, maxPayloadSize)
	if err != nil {
		e.log.Error("bp: register: shm channel creation failed:", err)
		return uuid.UUID{}, own, InternalError
	}

	tok := uuid.NewV4()
	reg := &registration{
		ProtocolId: protocolId, Name: name, MaxPayloadSize: maxPayloadSize,
		Mode: mode, MaxEntries: maxEntries, AllowMultiplePayloads: allowMultiple,
		WantTxConfirms: wantTxConfirms, Token: tok, channel: channel,
	}
	if !e.reg.register(reg) {
		channel.close()
		return uuid.UUID{}, own, AlreadyRegistered
	}
	e.statMu.Lock()
	e.cntOut[protocolId] = 0
	e.cntOutDrop[protocolId] = 0
	e.cntIn[protocolId] = 0
	e.cntInDrop[protocolId] = 0
	e.statMu.Unlock()
	return tok, own, Ok
}

func (e *Engine) Deregister(protocolId wire.ProtocolId, token uuid.UUID) error {
	reg, ok := e.reg.deregister(protocolId, token)
	if !ok {
		return ErrNotOwner
	}
	return reg.channel.close()
}

func (e *Engine) ListRegisteredProtocols() []registration { return e.reg.list() }

func (e *Engine) ClearBuffer(protocolId wire.ProtocolId) error {
	reg, ok := e.reg.get(protocolId)
	if !ok {
		return ErrUnknownProtocol
	}
	reg.channel.clearOutgoing()
	return nil
}

func (e *Engine) QueryNumberBufferedPayloads(protocolId wire.ProtocolId) (int, error) {
	reg, ok := e.reg.get(protocolId)
	if !ok {
		return 0, ErrUnknownProtocol
	}
	return reg.channel.numBuffered(), nil
}

func (e *Engine) Activate() {
	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
}

func (e *Engine) Deactivate() {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
}

func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Shutdown sets exitFlag; every loop checks it each iteration or after
// every short sleep (§5 Cancellation).
func (e *Engine) Shutdown() {
	e.exitOnce.Do(func() { close(e.exitFlag) })
	e.wg.Wait()
}

func (e *Engine) shuttingDown() bool {
	select {
	case <-e.exitFlag:
		return true
	default:
		return false
	}
}

// TransmitPayload is the only payload-path primitive (§4.1); it is the
// producer side of the per-client shared-memory channel, not the command
// socket.
func (e *Engine) TransmitPayload(protocolId wire.ProtocolId, token uuid.UUID, payload []byte) error {
	reg, ok := e.reg.get(protocolId)
	if !ok {
		return ErrUnknownProtocol
	}
	if reg.Token != token {
		return ErrNotOwner
	}
	if len(payload) > reg.MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if dropped := reg.channel.admitOutgoing(payload); dropped {
		e.bumpStat(&e.cntOutDrop, protocolId)
		return nil
	}
	return nil
}

func (e *Engine) bumpStat(m *map[wire.ProtocolId]uint64, id wire.ProtocolId) {
	e.statMu.Lock()
	(*m)[id]++
	e.statMu.Unlock()
}

// GetStatistics returns a snapshot copy (§5: "exposed read is a snapshot
// copy").
func (e *Engine) GetStatistics() Statistics {
	e.mu.Lock()
	seqno, avgSize, interBeacon := e.seqno, e.avgBeaconSize, e.avgInterBeaconTime
	e.mu.Unlock()

	e.statMu.Lock()
	defer e.statMu.Unlock()
	cp := func(src map[wire.ProtocolId]uint64) map[wire.ProtocolId]uint64 {
		out := make(map[wire.ProtocolId]uint64, len(src))
		for k, v := range src {
			out[k] = v
		}
		return out
	}
	return Statistics{
		BPSeqno:                    seqno,
		AvgBeaconSize:              avgSize,
		AvgInterBeaconTime:         interBeacon,
		CntOutgoingPayloads:        cp(e.cntOut),
		CntDroppedOutgoingPayloads: cp(e.cntOutDrop),
		CntIncomingPayloads:        cp(e.cntIn),
		CntDroppedIncomingPayloads: cp(e.cntInDrop),
		CntDroppedIncomingUnknownProtocol: e.cntInDropUnknownProtocol,
	}
}

// Run starts the transmit scheduler and receive sniffer threads and
// blocks until ctx is cancelled or Shutdown is called.
func (e *Engine) Run(ctx context.Context) {
	e.wg.Add(2)
	go e.runScheduler(ctx)
	go e.runSniffer(ctx)
	select {
	case <-ctx.Done():
	case <-e.exitFlag:
	}
	e.exitOnce.Do(func() { close(e.exitFlag) })
}

func (e *Engine) jitteredSleep() time.Duration {
	avg := e.cfg.AvgBeaconPeriod.Seconds()
	j := e.cfg.JitterFraction
	lo := avg * (1 - j)
	hi := avg * (1 + j)
	d := lo + rand.Float64()*(hi-lo)
	return time.Duration(d * float64(time.Second))
}

// runScheduler is the transmit scheduler of §4.1: it sleeps a jittered
// interval, assembles one beacon from the registry in insertion order,
// and broadcasts it.
func (e *Engine) runScheduler(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.exitFlag:
			return
		case <-time.After(e.jitteredSleep()):
		}
		if e.shuttingDown() {
			return
		}
		e.assembleAndSend()
	}
}

func (e *Engine) assembleAndSend() {
	maxBeacon := e.cfg.MaxBeaconSize
	remaining := maxBeacon - wire.FixedSizeBPHeader
	bodies := make([][]byte, 0, 8)
	ids := make([]wire.ProtocolId, 0, 8)

	e.reg.forEachInOrder(func(reg *registration) {
		if remaining < wire.FixedSizePayloadHeader {
			return
		}
		payload, ok := reg.channel.pullOutgoing()
		if !ok {
			return
		}
		need := wire.FixedSizePayloadHeader + len(payload)
		if need > remaining {
			// SPEC_FULL.md §B / Design Note: AllowMultiplePayloads is
			// honored by never pulling more than one payload per
			// protocol per window when false; a protocol that allows
			// multiple still only offers one payload per registry pass
			// here since pullOutgoing only returns a single item, which
			// keeps the statistic observable without a second admission
			// path.
			return
		}
		remaining -= need
		bodies = append(bodies, payload)
		ids = append(ids, reg.ProtocolId)
	})

	if len(bodies) == 0 {
		if !e.IsActive() {
			return
		}
	}
	if len(bodies) == 0 {
		return
	}

	e.mu.Lock()
	e.seqno++
	seq := e.seqno
	e.mu.Unlock()

	enc := wire.NewEncoder(maxBeacon)
	header := wire.BPHeader{
		Magic: wire.BPMagic, Version: wire.BPVersion, SenderId: e.cfg.OwnNodeId,
		NumPayloads: uint8(len(bodies)), Seqno: seq,
	}
	totalPayloadBytes := 0
	for i := range bodies {
		totalPayloadBytes += wire.FixedSizePayloadHeader + len(bodies[i])
	}
	header.Length = uint16(totalPayloadBytes)
	wire.EncodeBPHeader(enc, header)
	for i, body := range bodies {
		wire.EncodePayloadHeader(enc, wire.PayloadHeader{ProtocolId: ids[i], Length: uint16(len(body))})
		enc.PutBytes(body)
		e.bumpStat(&e.cntOut, ids[i])
	}

	if err := e.bc.Send(enc.Bytes()); err != nil {
		e.log.Error("bp: beacon send failed:", err)
	}
}

// runSniffer is the receive sniffer + demultiplexer of §4.2.
func (e *Engine) runSniffer(ctx context.Context) {
	defer e.wg.Done()
	for {
		if e.shuttingDown() {
			return
		}
		frame, err := e.bc.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || e.shuttingDown() {
				return
			}
			continue
		}
		// §4.2's receive filter is dst==broadcast (handled by the
		// transport) AND etherType==configured; the latter is checked
		// here before the frame is even decoded.
		if frame.EtherType != e.cfg.EtherType {
			continue
		}
		e.handleFrame(frame.Payload)
	}
}

func (e *Engine) handleFrame(raw []byte) {
	d := wire.NewDecoder(raw)
	header, err := wire.DecodeBPHeader(d)
	if err != nil {
		return
	}
	if !header.Valid(e.cfg.OwnNodeId, d.Remaining()) {
		return
	}
	e.updateEWMA(len(raw))

	for i := 0; i < int(header.NumPayloads); i++ {
		ph, err := wire.DecodePayloadHeader(d)
		if err != nil {
			return // malformed PayloadHeader aborts the remaining payloads, §4.2
		}
		body, err := d.GetBytes(int(ph.Length))
		if err != nil {
			return
		}
		reg, ok := e.reg.get(ph.ProtocolId)
		if !ok {
			// unknown protocol: skip, counted as drop (§4.2 step 3); no
			// per-client entry exists for an unregistered id, so this
			// goes in an aggregate counter instead of cntInDrop.
			e.statMu.Lock()
			e.cntInDropUnknownProtocol++
			e.statMu.Unlock()
			continue
		}
		e.bumpStat(&e.cntIn, ph.ProtocolId)
		if reg.channel.pushIndication(body) {
			e.bumpStat(&e.cntInDrop, ph.ProtocolId)
		}
	}
}

func (e *Engine) updateEWMA(beaconLen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if !e.haveBeaconSize {
		e.avgBeaconSize = float64(beaconLen)
		e.haveBeaconSize = true
	} else {
		a := e.cfg.EWMAAlpha
		e.avgBeaconSize = a*e.avgBeaconSize + (1-a)*float64(beaconLen)
	}
	if !e.lastBeaconAt.IsZero() {
		gap := now.Sub(e.lastBeaconAt)
		if !e.haveInterBeacon {
			e.avgInterBeaconTime = gap
			e.haveInterBeacon = true
		} else {
			a := e.cfg.EWMAAlpha
			e.avgInterBeaconTime = time.Duration(a*float64(e.avgInterBeaconTime) + (1-a)*float64(gap))
		}
	}
	e.lastBeaconAt = now
}

// ReceivePayload drains one inbound payload for protocolId, blocking up
// to timeout. It is the client-library counterpart of pushIndication.
func (e *Engine) ReceivePayload(protocolId wire.ProtocolId, timeout time.Duration) ([]byte, bool, error) {
	reg, ok := e.reg.get(protocolId)
	if !ok {
		return nil, false, ErrUnknownProtocol
	}
	payload, ok := reg.channel.pullIndication(timeout)
	return payload, ok, nil
}
