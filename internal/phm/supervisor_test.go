package phm

import (
	"sync"
	"testing"
	"time"

	"github.com/ecucore/coreem/internal/testutil/testlog"
)

func TestSupervisorFirstTickSeedsCycle(t *testing.T) {
	testlog.Start(t)
	sup := NewSupervisor(SupervisorConfig{
		SupervisionCycle:    time.Second,
		AllowedMissedCycles: 1,
	}, nil)

	start := time.Now()
	sup.MaintenanceTick(start)
	if sup.LastHealthy() != start {
		t.Fatalf("expected first tick to seed last healthy timestamp")
	}
	if sup.MissedCycles() != 0 {
		t.Fatalf("expected no missed cycles after seeding tick")
	}
}

func TestSupervisorHealthyCycleResetsCounter(t *testing.T) {
	testlog.Start(t)
	sup := NewSupervisor(SupervisorConfig{
		SupervisionCycle:    time.Second,
		AllowedMissedCycles: 1,
	}, nil)

	start := time.Now()
	sup.MaintenanceTick(start)

	sup.OnAlive()
	sup.MaintenanceTick(start.Add(time.Second))
	if sup.MissedCycles() != 0 {
		t.Fatalf("expected healthy cycle to keep missed at 0")
	}
	if !sup.LastHealthy().Equal(start.Add(time.Second)) {
		t.Fatalf("expected last healthy to advance")
	}
}

func TestSupervisorMissedCycleWithoutAlive(t *testing.T) {
	testlog.Start(t)
	sup := NewSupervisor(SupervisorConfig{
		SupervisionCycle:    time.Second,
		AllowedMissedCycles: 2,
	}, nil)

	start := time.Now()
	sup.MaintenanceTick(start)
	sup.MaintenanceTick(start.Add(time.Second)) // no OnAlive this cycle
	if sup.MissedCycles() != 1 {
		t.Fatalf("expected 1 missed cycle, got %d", sup.MissedCycles())
	}
}

func TestSupervisorViolationInvokedAfterAllowedMisses(t *testing.T) {
	testlog.Start(t)
	var mu sync.Mutex
	var reasons []string

	sup := NewSupervisor(SupervisorConfig{
		AppID:               "app.radar",
		SupervisionCycle:    time.Second,
		AllowedMissedCycles: 1,
	}, func(reason string) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	})

	start := time.Now()
	sup.MaintenanceTick(start)
	sup.MaintenanceTick(start.Add(1 * time.Second)) // miss 1
	sup.MaintenanceTick(start.Add(2 * time.Second)) // miss 2 -> exceeds allowed(1)

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 {
		t.Fatalf("expected exactly one violation, got %d: %v", len(reasons), reasons)
	}
	if sup.MissedCycles() != 0 {
		t.Fatalf("expected missed cycles reset after violation")
	}
}

func TestSupervisorTickBeforeCycleElapsedIsNoOp(t *testing.T) {
	testlog.Start(t)
	sup := NewSupervisor(SupervisorConfig{
		SupervisionCycle:    time.Second,
		AllowedMissedCycles: 1,
	}, nil)

	start := time.Now()
	sup.MaintenanceTick(start)
	sup.MaintenanceTick(start.Add(100 * time.Millisecond))
	if !sup.LastHealthy().Equal(start) {
		t.Fatalf("expected no cycle evaluation before cycle length elapsed")
	}
}

func TestSupervisorRequiredCheckpointsMustAllBeSeen(t *testing.T) {
	testlog.Start(t)
	sup := NewSupervisor(SupervisorConfig{
		SupervisionCycle:    time.Second,
		AllowedMissedCycles: 5,
		RequiredCheckpoints: []uint32{1, 2, 3},
	}, nil)

	start := time.Now()
	sup.MaintenanceTick(start)

	sup.OnAlive()
	sup.OnCheckpoint(1)
	sup.OnCheckpoint(2)
	// checkpoint 3 missing
	sup.MaintenanceTick(start.Add(time.Second))
	if sup.MissedCycles() != 1 {
		t.Fatalf("expected missed cycle when a required checkpoint is absent")
	}

	sup.OnAlive()
	sup.OnCheckpoint(1)
	sup.OnCheckpoint(2)
	sup.OnCheckpoint(3)
	sup.MaintenanceTick(start.Add(2 * time.Second))
	if sup.MissedCycles() != 0 {
		t.Fatalf("expected missed cycles to reset once all checkpoints seen")
	}
}

// TestSupervisorRequireAliveCarriesNoEvaluationEffect documents that
// RequireAlive is stored for the manifest's "alive" literal convention
// only; a cycle with no required checkpoints still needs exactly
// got_alive either way.
func TestSupervisorRequireAliveCarriesNoEvaluationEffect(t *testing.T) {
	testlog.Start(t)
	sup := NewSupervisor(SupervisorConfig{
		SupervisionCycle:    time.Second,
		AllowedMissedCycles: 5,
		RequireAlive:        true,
	}, nil)

	start := time.Now()
	sup.MaintenanceTick(start)
	sup.MaintenanceTick(start.Add(time.Second)) // no OnAlive this cycle
	if sup.MissedCycles() != 1 {
		t.Fatalf("expected a missed cycle without alive regardless of RequireAlive")
	}

	sup.OnAlive()
	sup.MaintenanceTick(start.Add(2 * time.Second))
	if sup.MissedCycles() != 0 {
		t.Fatalf("expected missed cycles to reset once alive is reported")
	}
}
