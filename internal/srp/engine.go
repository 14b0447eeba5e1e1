package srp

import (
	"context"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/dcp-vardis/dcp-vardis-go/internal/bp"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Config holds SR's own parameters, kept deliberately small: capacity of
// the neighbour table and how long a row survives without a refresh.
type Config struct {
	TableCapacity int
	StaleAfter    time.Duration
}

func DefaultConfig() Config {
	return Config{TableCapacity: 64, StaleAfter: 5 * time.Second}
}

// Engine is the SR daemon's degenerate protocol-data engine: it registers
// with BP as client ProtocolSR, transmits its own one-field safety beacon
// every beacon window, and folds every received one into its Table.
type Engine struct {
	own    wire.NodeId
	table  *Table
	client *bp.Client
	log    *logging.Logger

	beaconPeriod time.Duration

	mu     sync.Mutex
	active bool

	exitFlag chan struct{}
	exitOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine registers SR with the BP daemon behind client using QueueDropHead
// with a one-entry buffer: a missed safety beacon is superseded by the next
// one, never worth retransmitting stale liveness information.
func NewEngine(own wire.NodeId, cfg Config, beaconPeriod time.Duration, client *bp.Client, log *logging.Logger) (*Engine, error) {
	_, status, err := client.Register(wire.ProtocolSR, "srp", wire.FixedSizeSafetyBeacon, bp.QueueDropHead, 1, false, false, "srp-payload")
	if err != nil {
		return nil, err
	}
	if status != bp.Ok {
		return nil, status
	}
	return &Engine{
		own:          own,
		table:        NewTable(cfg.TableCapacity, cfg.StaleAfter),
		client:       client,
		log:          log,
		beaconPeriod: beaconPeriod,
		exitFlag:     make(chan struct{}),
	}, nil
}

func (e *Engine) Table() *Table { return e.table }

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

func (e *Engine) Shutdown() {
	e.exitOnce.Do(func() { close(e.exitFlag) })
	e.wg.Wait()
	e.client.Deregister()
	e.client.Close()
}

func (e *Engine) shuttingDown() bool {
	select {
	case <-e.exitFlag:
		return true
	default:
		return false
	}
}

// Run starts the transmit/receive/eviction drivers and blocks until ctx is
// cancelled or Shutdown is called.
func (e *Engine) Run(ctx context.Context) {
	e.wg.Add(3)
	go e.runTxDriver(ctx)
	go e.runRxDriver(ctx)
	go e.runEvictionDriver(ctx)
	select {
	case <-ctx.Done():
	case <-e.exitFlag:
	}
	e.exitOnce.Do(func() { close(e.exitFlag) })
}

func (e *Engine) runTxDriver(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.beaconPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.exitFlag:
			return
		case <-ticker.C:
		}
		if !e.IsActive() {
			continue
		}
		enc := wire.NewEncoder(wire.FixedSizeSafetyBeacon)
		wire.EncodeSafetyBeacon(enc, wire.SafetyBeacon{SenderId: e.own, TimeStamp: uint32(time.Now().Unix())})
		if err := e.client.Transmit(enc.Bytes()); err != nil {
			e.log.Error("srp: transmit failed:", err)
		}
	}
}

func (e *Engine) runRxDriver(ctx context.Context) {
	defer e.wg.Done()
	for {
		if e.shuttingDown() {
			return
		}
		payload, ok, err := e.client.ReceivePayload(100 * time.Millisecond)
		if err != nil {
			e.log.Error("srp: receive failed:", err)
			return
		}
		if !ok {
			continue
		}
		if !e.IsActive() {
			continue
		}
		beacon, derr := wire.DecodeSafetyBeacon(wire.NewDecoder(payload))
		if derr != nil {
			e.log.Warning("srp: malformed safety beacon:", derr)
			continue
		}
		e.table.Refresh(beacon, time.Now())
	}
}

// runEvictionDriver periodically drops rows that have gone stale, the
// table-side analogue of VD's dropStaleIds.
func (e *Engine) runEvictionDriver(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.beaconPeriod * 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.exitFlag:
			return
		case <-ticker.C:
		}
		e.table.EvictStale(time.Now())
	}
}
