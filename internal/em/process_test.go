package em

import (
	"os"
	"testing"
	"time"

	"github.com/ecucore/coreem/internal/testutil/testlog"
)

func findExecutable(t *testing.T, candidates ...string) string {
	t.Helper()
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	t.Skip("no suitable test executable found on this system")
	return ""
}

func waitForReap(t *testing.T, c *runningChild) (bool, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if exited, err := c.tryReap(); exited {
			return exited, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("process never exited")
	return false, nil
}

func TestSpawnChildCleanExitIsNotAbnormal(t *testing.T) {
	testlog.Start(t)
	trueBin := findExecutable(t, "/bin/true", "/usr/bin/true")

	c, err := spawnChild(AppConfig{AppID: "ok", Executable: trueBin}, "")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if c.pid() <= 0 {
		t.Fatalf("expected a positive pid, got %d", c.pid())
	}

	_, exitErr := waitForReap(t, c)
	if abnormalExit(exitErr) {
		t.Fatalf("expected a zero exit not to be abnormal, got %v", exitErr)
	}
}

func TestSpawnChildFailureExitIsAbnormal(t *testing.T) {
	testlog.Start(t)
	falseBin := findExecutable(t, "/bin/false", "/usr/bin/false")

	c, err := spawnChild(AppConfig{AppID: "bad", Executable: falseBin}, "")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	_, exitErr := waitForReap(t, c)
	if !abnormalExit(exitErr) {
		t.Fatalf("expected a nonzero exit to be abnormal")
	}
}

func TestTryReapIsNonBlockingBeforeExit(t *testing.T) {
	testlog.Start(t)
	trueBin := findExecutable(t, "/bin/true", "/usr/bin/true")
	c, err := spawnChild(AppConfig{AppID: "slow", Executable: trueBin}, "")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	// Immediately poll; tryReap must return promptly either way rather
	// than blocking on cmd.Wait.
	done := make(chan struct{})
	go func() {
		c.tryReap()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("tryReap blocked")
	}
	waitForReap(t, c)
}
