package em

import (
	"testing"
	"time"

	"github.com/ecucore/coreem/internal/config"
	"github.com/ecucore/coreem/internal/logging"
	"github.com/ecucore/coreem/internal/testutil/testlog"
)

func newBackoffTestManager(maxRestarts int, initial, max time.Duration) *Manager {
	cfg := config.DefaultEMConfig()
	cfg.MaxRestarts = maxRestarts
	cfg.RestartBackoffInitial = initial
	cfg.RestartBackoffMax = max
	return NewManager(cfg)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never became true")
}

func TestReapChildrenSchedulesBackoffBeforeRestarting(t *testing.T) {
	testlog.Start(t)
	falseBin := findExecutable(t, "/bin/false", "/usr/bin/false")

	m := newBackoffTestManager(3, 30*time.Millisecond, 200*time.Millisecond)
	log := logging.For("em.test")

	app := AppConfig{AppID: "flaky", Executable: falseBin, RestartPolicy: RestartOnFailure}
	child, err := spawnChild(app, "")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	m.children["flaky"] = child

	waitUntil(t, func() bool {
		m.reapChildren(log)
		c, ok := m.children["flaky"]
		return ok && c.exited
	})

	scheduled := m.children["flaky"]
	if scheduled.restarts != 1 {
		t.Fatalf("expected one recorded restart attempt, got %d", scheduled.restarts)
	}
	if !scheduled.restartAt.After(time.Now()) {
		t.Fatalf("expected restartAt to be scheduled in the future immediately after exit")
	}
	firstPID := scheduled.pid()

	// Before the backoff elapses, reapChildren must not respawn yet.
	m.reapChildren(log)
	if m.children["flaky"].pid() != firstPID {
		t.Fatalf("respawned before backoff elapsed")
	}

	waitUntil(t, func() bool {
		m.reapChildren(log)
		c, ok := m.children["flaky"]
		return ok && !c.exited
	})
	if m.children["flaky"].pid() == firstPID {
		t.Fatalf("expected a new process after backoff elapsed")
	}
	if m.children["flaky"].restarts != 1 {
		t.Fatalf("expected restart count to carry over to the respawned child, got %d", m.children["flaky"].restarts)
	}
}

func TestReapChildrenGivesUpAfterRestartCap(t *testing.T) {
	testlog.Start(t)
	falseBin := findExecutable(t, "/bin/false", "/usr/bin/false")

	m := newBackoffTestManager(1, 5*time.Millisecond, 20*time.Millisecond)
	log := logging.For("em.test")

	app := AppConfig{AppID: "doomed", Executable: falseBin, RestartPolicy: RestartOnFailure}
	child, err := spawnChild(app, "")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	m.children["doomed"] = child

	// First abnormal exit: one restart allowed (cap is 1).
	waitUntil(t, func() bool {
		m.reapChildren(log)
		c, ok := m.children["doomed"]
		return ok && c.exited
	})
	waitUntil(t, func() bool {
		m.reapChildren(log)
		c, ok := m.children["doomed"]
		return ok && !c.exited
	})

	// Second abnormal exit: restarts now exceeds the cap of 1, so the
	// Manager must give up and drop the entry entirely.
	waitUntil(t, func() bool {
		m.reapChildren(log)
		_, ok := m.children["doomed"]
		return !ok
	})
}
