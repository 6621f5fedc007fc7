// Package phm implements the Platform Health Manager: a per-app
// Supervisor that evaluates alive/checkpoint reports against a fixed
// cycle length, and a Client façade apps use to report their own
// health over the transport binding. Grounded on
// original_source/phm/src/phm_supervisor.cpp for the cycle evaluation
// state machine.
package phm

import (
	"fmt"
	"sync"
	"time"
)

// SupervisorConfig is the per-app supervision contract loaded from a
// manifest entry. RequireAlive records the manifest's "alive" literal
// convention for diagnostics; the cycle formula in aliveOkLocked
// already requires an alive report every cycle regardless of its
// value, so it carries no evaluation effect of its own.
type SupervisorConfig struct {
	AppID               string
	SupervisionCycle    time.Duration
	AllowedMissedCycles int
	RequiredCheckpoints []uint32
	RequireAlive        bool
}

// ViolationFunc is invoked when an app exceeds its allowed missed
// cycles. It is called outside the Supervisor's internal lock, so it
// may safely call back into the Supervisor or block briefly.
type ViolationFunc func(reason string)

// Supervisor evaluates one app's health against its SupervisorConfig.
// Safe for concurrent use: OnAlive/OnCheckpoint are typically called
// from the transport's RPC dispatch thread while MaintenanceTick is
// driven by the Execution Manager's own loop.
type Supervisor struct {
	mu  sync.Mutex
	cfg SupervisorConfig

	onViolation ViolationFunc

	started     bool
	cycleStart  time.Time
	lastHealthy time.Time

	gotAlive   bool
	seenCps    map[uint32]struct{}
	missed     int
}

// NewSupervisor constructs a Supervisor for cfg. onViolation may be nil.
func NewSupervisor(cfg SupervisorConfig, onViolation ViolationFunc) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		onViolation: onViolation,
		seenCps:     make(map[uint32]struct{}),
	}
}

// OnAlive records an alive report for the current cycle.
func (s *Supervisor) OnAlive() {
	s.mu.Lock()
	s.gotAlive = true
	s.mu.Unlock()
}

// OnCheckpoint records a checkpoint id for the current cycle.
func (s *Supervisor) OnCheckpoint(id uint32) {
	s.mu.Lock()
	s.seenCps[id] = struct{}{}
	s.mu.Unlock()
}

// MissedCycles returns the current consecutive-miss count, for tests
// and diagnostics.
func (s *Supervisor) MissedCycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missed
}

// LastHealthy returns the timestamp of the last cycle evaluated
// healthy, or the zero time before the first tick.
func (s *Supervisor) LastHealthy() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHealthy
}

// MaintenanceTick drives one evaluation step using now as the current
// time. The first call after construction only seeds the cycle clock
// and returns. On every later call, if the elapsed time since the
// cycle started has reached the configured cycle length, the cycle is
// evaluated and a fresh one begins; otherwise the call is a no-op.
//
// now is supplied by the caller rather than read from the system clock
// so the Execution Manager can drive every Supervisor from a single
// external tick source without drift, and so tests can simulate time
// deterministically.
func (s *Supervisor) MaintenanceTick(now time.Time) {
	s.mu.Lock()

	if !s.started {
		s.started = true
		s.cycleStart = now
		s.lastHealthy = now
		s.mu.Unlock()
		return
	}

	if now.Sub(s.cycleStart) < s.cfg.SupervisionCycle {
		s.mu.Unlock()
		return
	}

	cpsOk := containsAll(s.seenCps, s.cfg.RequiredCheckpoints)
	aliveOk := s.aliveOkLocked(cpsOk)

	violate := false
	if aliveOk {
		s.missed = 0
		s.lastHealthy = now
	} else {
		s.missed++
		if s.missed > s.cfg.AllowedMissedCycles {
			violate = true
			s.missed = 0
		}
	}

	s.cycleStart = now
	s.gotAlive = false
	s.seenCps = make(map[uint32]struct{})

	appID := s.cfg.AppID
	allowed := s.cfg.AllowedMissedCycles
	s.mu.Unlock()

	if violate && s.onViolation != nil {
		s.onViolation(fmt.Sprintf("%s: missed more than %d supervision cycles", appID, allowed))
	}
}

// aliveOkLocked must be called with mu held. An app with no required
// checkpoints is judged solely on whether it reported alive this
// cycle; one with required checkpoints must do both.
func (s *Supervisor) aliveOkLocked(cpsOk bool) bool {
	if len(s.cfg.RequiredCheckpoints) == 0 {
		return s.gotAlive
	}
	return s.gotAlive && cpsOk
}

func containsAll(have map[uint32]struct{}, need []uint32) bool {
	if len(need) == 0 {
		return true
	}
	for _, n := range need {
		if _, ok := have[n]; !ok {
			return false
		}
	}
	return true
}
