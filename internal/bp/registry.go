package bp

import (
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/dcp-vardis/dcp-vardis-go/internal/wire"
)

// registration is one entry of the client-protocol registry (§3 "Entities
// and invariants" / ClientProtocol).
type registration struct {
	ProtocolId            wire.ProtocolId
	Name                  string
	MaxPayloadSize        int
	Mode                  QueueingMode
	MaxEntries            int
	AllowMultiplePayloads bool
	WantTxConfirms        bool
	Token                 uuid.UUID // SPEC_FULL.md §B: proves ownership for Deregister and TransmitPayload

	channel *clientChannel
}

// registry is the mutex-guarded client-protocol table. Every mutation —
// Register, Deregister, and the payload collector's iteration — happens
// under mu, tightening the teacher's inconsistent locking discipline
// per Design Note/§4.1 Open Questions.
type registry struct {
	mu    sync.Mutex
	byId  map[wire.ProtocolId]*registration
	order []wire.ProtocolId // insertion order, stable across transmissions
}

func newRegistry() *registry {
	return &registry{byId: make(map[wire.ProtocolId]*registration)}
}

func (r *registry) register(reg *registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byId[reg.ProtocolId]; exists {
		return false
	}
	r.byId[reg.ProtocolId] = reg
	r.order = append(r.order, reg.ProtocolId)
	return true
}

func (r *registry) deregister(id wire.ProtocolId, token uuid.UUID) (*registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byId[id]
	if !ok || reg.Token != token {
		return nil, false
	}
	delete(r.byId, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return reg, true
}

func (r *registry) get(id wire.ProtocolId) (*registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byId[id]
	return reg, ok
}

// forEachInOrder calls fn for every registration in stable insertion
// order, holding mu for the whole iteration (§4.1: "client-protocol
// iteration order is insertion order ... tighten the rule to always
// under the mutex").
func (r *registry) forEachInOrder(fn func(*registration)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pid := range r.order {
		fn(r.byId[pid])
	}
}

func (r *registry) list() []registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registration, 0, len(r.order))
	for _, pid := range r.order {
		out = append(out, *r.byId[pid])
	}
	return out
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
