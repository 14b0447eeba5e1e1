package vardis

import (
	"context"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/dcp-vardis/dcp-vardis-go/internal/bp"
	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// Engine is the VD daemon's protocol-data engine: it owns the RTDB
// (Store), registers itself as a BP client protocol, and runs the
// transmit/receive drivers of §4.4/§4.5 on top of BP's beacon windows.
type Engine struct {
	store  *Store
	client *bp.Client
	cfg    Config
	log    *logging.Logger

	beaconPeriod time.Duration

	mu     sync.Mutex
	active bool

	exitFlag chan struct{}
	exitOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine registers VD with the BP daemon behind client, using Once
// mode: VD always composes one fresh payload per beacon window rather
// than buffering a backlog (§4.1's Once semantics: one-slot buffer,
// overwritten, consumed on transmit).
func NewEngine(own wire.NodeId, cfg Config, beaconPeriod time.Duration, client *bp.Client, log *logging.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	_, status, err := client.Register(wire.ProtocolVD, "vardis", cfg.MaxPayloadSize, bp.Once, 0, false, false, "vardis-payload")
	if err != nil {
		return nil, err
	}
	if status != bp.Ok {
		return nil, status
	}
	return &Engine{
		store:        newStore(own, cfg),
		client:       client,
		cfg:          cfg,
		log:          log,
		beaconPeriod: beaconPeriod,
		exitFlag:     make(chan struct{}),
	}, nil
}

func (e *Engine) Store() *Store { return e.store }

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

// Run starts the transmit and receive drivers and blocks until ctx is
// cancelled or Shutdown is called.
func (e *Engine) Run(ctx context.Context) {
	e.wg.Add(2)
	go e.runTxDriver(ctx)
	go e.runRxDriver(ctx)
	select {
	case <-ctx.Done():
	case <-e.exitFlag:
	}
	e.exitOnce.Do(func() { close(e.exitFlag) })
}

// runTxDriver composes one outgoing VD payload per beacon window and
// hands it to BP (§2 "Transmit driver").
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
		payload := e.store.ComposePayload(e.cfg.MaxPayloadSize)
		if len(payload) == 0 {
			continue
		}
		if err := e.client.Transmit(payload); err != nil {
			e.log.Error("vardis: transmit failed:", err)
		}
	}
}

// runRxDriver consumes payloads BP delivers and applies them to the RTDB
// (§2 "Receive driver").
func (e *Engine) runRxDriver(ctx context.Context) {
	defer e.wg.Done()
	for {
		if e.shuttingDown() {
			return
		}
		payload, ok, err := e.client.ReceivePayload(100 * time.Millisecond)
		if err != nil {
			e.log.Error("vardis: receive failed:", err)
			return
		}
		if !ok {
			continue
		}
		if !e.IsActive() {
			continue // Deactivate stops RTDB mutation (§6 activation model)
		}
		e.store.ApplyPayload(payload)
	}
}
