package track

import (
	"testing"
	"time"

	"github.com/ibramn/pump-protocol/dart"
)

func statusRec(s byte) dart.Record { return dart.Record{Kind: dart.RecStatus, Status: s} }

// TestAntiFlapIdle is property P7: alternating DC1(0)/DC1(5) within 2s
// windows must export 5 at every step after the first 5 is observed.
func TestAntiFlapIdle(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	seq := []byte{0, 5, 0, 5, 0, 5, 0}
	var sawFive bool
	for i, s := range seq {
		now := base.Add(time.Duration(i) * 300 * time.Millisecond)
		state := r.Apply(0x50, statusRec(s), now)
		if s == 5 {
			sawFive = true
		}
		if sawFive {
			if state.Status != 5 {
				t.Fatalf("step %d: got status %d, want 5 (sawFive=%v)", i, state.Status, sawFive)
			}
		}
	}
}

// TestPriorityStatus is property P8: any DC1(1) or DC1(2) in the last 2s
// overrides 0/5 presence.
func TestPriorityStatus(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	r.Apply(0x50, statusRec(0), base)
	r.Apply(0x50, statusRec(5), base.Add(300*time.Millisecond))
	state := r.Apply(0x50, statusRec(2), base.Add(600*time.Millisecond))
	if state.Status != 2 {
		t.Fatalf("got status %d, want 2 (AUTHORIZED overrides idle presence)", state.Status)
	}

	state = r.Apply(0x50, statusRec(1), base.Add(900*time.Millisecond))
	if state.Status != 1 {
		t.Fatalf("got status %d, want 1 (RESET overrides)", state.Status)
	}
}

func TestAntiFlapStabilizedModeTransition(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	r.Apply(0x50, statusRec(0), base)
	// A single 6 doesn't stabilise (count < 3), so status stays at 0.
	state := r.Apply(0x50, statusRec(6), base.Add(100*time.Millisecond))
	if state.Status != 0 {
		t.Fatalf("single sample of 6 flipped status early: got %d", state.Status)
	}

	state = r.Apply(0x50, statusRec(6), base.Add(200*time.Millisecond))
	state = r.Apply(0x50, statusRec(6), base.Add(300*time.Millisecond))
	if state.Status != 6 {
		t.Fatalf("3 consecutive samples of 6 should stabilise: got %d", state.Status)
	}
}

func TestApplyVolumeAmountNozzlePriceIdentity(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Apply(0x50, statusRec(5), now)
	state := r.Apply(0x50, dart.Record{Kind: dart.RecVolumeAmount, Volume: 12.3, Amount: 45.6}, now)
	if state.Volume == nil || *state.Volume != 12.3 {
		t.Fatalf("got volume %v", state.Volume)
	}
	if state.Amount == nil || *state.Amount != 45.6 {
		t.Fatalf("got amount %v", state.Amount)
	}

	state = r.Apply(0x50, dart.Record{Kind: dart.RecNozzlePrice, Nozzle: 3, NozzleOut: true, Price: 2.5}, now)
	if state.Nozzle == nil || *state.Nozzle != 3 {
		t.Fatalf("got nozzle %v", state.Nozzle)
	}
	if state.NozzleOut == nil || !*state.NozzleOut {
		t.Fatalf("got nozzleOut %v", state.NozzleOut)
	}
	if state.Price == nil || *state.Price != 2.5 {
		t.Fatalf("got price %v", state.Price)
	}

	state = r.Apply(0x50, dart.Record{Kind: dart.RecIdentity, Identity: "1234567890"}, now)
	if state.Identity == nil || *state.Identity != "1234567890" {
		t.Fatalf("got identity %v", state.Identity)
	}
}

func TestRegistryListAndForget(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Apply(0x50, statusRec(0), now)
	r.Apply(0x60, statusRec(5), now)

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("got %d pumps, want 2", len(list))
	}
	if list[0].Address != 0x50 || list[1].Address != 0x60 {
		t.Fatalf("expected address order, got %+v", list)
	}

	r.Forget(0x50)
	if _, ok := r.Get(0x50); ok {
		t.Fatal("expected 0x50 to be forgotten")
	}
	if _, ok := r.Get(0x60); !ok {
		t.Fatal("0x60 should still be present")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	state := r.Apply(0x50, statusRec(5), now)
	r.Apply(0x50, dart.Record{Kind: dart.RecVolumeAmount, Volume: 1, Amount: 2}, now)

	if state.Volume != nil {
		t.Fatal("earlier snapshot must not observe a later mutation")
	}
}
