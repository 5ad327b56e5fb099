package track

import (
	"sort"
	"time"

	"github.com/ibramn/pump-protocol/dart"
)

// Registry owns every known PumpState. It is not safe for concurrent use:
// the protocol engine's single event-loop goroutine is its only caller, per
// the concurrency model described in state.go, so there is deliberately no
// mutex here.
type Registry struct {
	pumps map[byte]*PumpState
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pumps: make(map[byte]*PumpState)}
}

// stateFor returns the PumpState for addr, creating it on first reference.
func (r *Registry) stateFor(addr byte) *PumpState {
	p, ok := r.pumps[addr]
	if !ok {
		p = &PumpState{Address: addr}
		r.pumps[addr] = p
	}
	return p
}

// Apply folds one decoded record into the projection for addr at time now,
// returning a snapshot of the resulting state. Volume/amount/nozzle/
// identity fields update unconditionally; DC1 status goes through the
// anti-flap policy in applyStatus.
func (r *Registry) Apply(addr byte, rec dart.Record, now time.Time) PumpState {
	p := r.stateFor(addr)
	p.LastUpdate = now

	switch rec.Kind {
	case dart.RecStatus:
		p.applyStatus(now, rec.Status)
	case dart.RecVolumeAmount:
		v, a := rec.Volume, rec.Amount
		p.Volume = &v
		p.Amount = &a
	case dart.RecNozzlePrice:
		n, out, price := rec.Nozzle, rec.NozzleOut, rec.Price
		p.Nozzle = &n
		p.NozzleOut = &out
		p.Price = &price
	case dart.RecIdentity:
		id := rec.Identity
		p.Identity = &id
	}

	return p.clone()
}

// Get returns a snapshot of the state for addr, if any frame has been seen
// for it yet.
func (r *Registry) Get(addr byte) (PumpState, bool) {
	p, ok := r.pumps[addr]
	if !ok {
		return PumpState{}, false
	}
	return p.clone(), true
}

// List returns a snapshot of every known pump, ordered by address: the
// projection-wide counterpart to Get, for callers that want every pump the
// bus has seen rather than one address at a time.
func (r *Registry) List() []PumpState {
	addrs := make([]byte, 0, len(r.pumps))
	for a := range r.pumps {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	out := make([]PumpState, len(addrs))
	for i, a := range addrs {
		out[i] = r.pumps[a].clone()
	}
	return out
}

// Forget destroys the state held for addr, e.g. when a configuration
// change abandons the address.
func (r *Registry) Forget(addr byte) {
	delete(r.pumps, addr)
}
