// Package track maintains the per-pump state projection: the anti-flap
// status policy, and the latest volume/amount/nozzle/identity fields
// reported by a pump. It owns no I/O and no locks, because the protocol
// engine's single-threaded event loop is its only caller.
package track

import (
	"time"
)

// historyLimit bounds status_history at 10 entries.
const historyLimit = 10

// recentWindow is the age threshold a status sample must fall within to
// count as "recent" for anti-flap purposes.
const recentWindow = 2 * time.Second

// StatusSample is one entry in a PumpState's status history ring.
type StatusSample struct {
	Status byte
	At     time.Time
}

// PumpState is the exported, stabilised projection of one pump address.
// Fields use pointers where the underlying DART transaction is optional so
// callers can tell "never reported" from "reported as zero".
type PumpState struct {
	Address byte

	Status        byte
	StatusHistory []StatusSample // ordered, oldest first, length <= 10

	Volume *float64
	Amount *float64

	Nozzle    *byte
	NozzleOut *bool
	Price     *float64

	Identity *string

	LastUpdate time.Time

	initialized bool // true once the first DC1 has set Status
}

// clone returns a value copy safe to hand to an observer: slices and
// pointers are copied so a later mutation of the live state can't be seen
// through a previously returned snapshot.
func (p *PumpState) clone() PumpState {
	out := *p
	out.StatusHistory = append([]StatusSample(nil), p.StatusHistory...)
	if p.Volume != nil {
		v := *p.Volume
		out.Volume = &v
	}
	if p.Amount != nil {
		v := *p.Amount
		out.Amount = &v
	}
	if p.Nozzle != nil {
		v := *p.Nozzle
		out.Nozzle = &v
	}
	if p.NozzleOut != nil {
		v := *p.NozzleOut
		out.NozzleOut = &v
	}
	if p.Price != nil {
		v := *p.Price
		out.Price = &v
	}
	if p.Identity != nil {
		v := *p.Identity
		out.Identity = &v
	}
	return out
}

// applyStatus runs the anti-flap policy for one incoming DC1 sample and
// updates Status accordingly. It never invents a transition: it only
// delays or ignores non-stabilised ones.
func (p *PumpState) applyStatus(now time.Time, newStatus byte) {
	p.StatusHistory = append(p.StatusHistory, StatusSample{Status: newStatus, At: now})
	if len(p.StatusHistory) > historyLimit {
		p.StatusHistory = p.StatusHistory[len(p.StatusHistory)-historyLimit:]
	}

	if !p.initialized {
		p.Status = newStatus
		p.initialized = true
		return
	}

	var recent []StatusSample
	for _, s := range p.StatusHistory {
		if now.Sub(s.At) <= recentWindow {
			recent = append(recent, s)
		}
	}

	counts := make(map[byte]int, len(recent))
	for _, s := range recent {
		counts[s.Status]++
	}
	presence := func(s byte) bool { return counts[s] > 0 }

	switch {
	case presence(1):
		p.Status = 1
	case presence(2):
		p.Status = 2
	case presence(5):
		p.Status = 5
	case presence(0) && counts[0] >= 3:
		p.Status = 0
	default:
		if mode, count, ok := modeOf(counts); ok && mode != p.Status && count >= 3 {
			p.Status = mode
		}
		// else: keep current status; the new sample isn't stabilised yet.
	}
}

// modeOf returns the most frequently occurring status in counts, breaking
// ties by the lowest status value for determinism.
func modeOf(counts map[byte]int) (status byte, count int, ok bool) {
	best := -1
	var bestStatus byte
	for s, c := range counts {
		if c > best || (c == best && s < bestStatus) {
			best = c
			bestStatus = s
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return bestStatus, best, true
}
