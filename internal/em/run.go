package em

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecucore/coreem/internal/logging"
	"github.com/ecucore/coreem/internal/metrics"
	"github.com/ecucore/coreem/internal/phm"
	"github.com/ecucore/coreem/internal/transport"
)

// buildEnvHint renders app's subscribed events as the comma-separated
// "service:instance:event@group" list the binding's env-driven
// pre-request step expects, hex-encoded per spec.md §4.H step 9.
func buildEnvHint(app AppConfig) string {
	if app.Com == nil || len(app.Com.Subscribe) == 0 {
		return ""
	}
	parts := make([]string, 0, len(app.Com.Subscribe))
	for _, event := range app.Com.Subscribe {
		parts = append(parts, fmt.Sprintf("0x%04x:0x%04x:0x%04x@0x%04x",
			app.Com.ServiceID, app.Com.InstanceID, event, app.Com.EventGroup))
	}
	return strings.Join(parts, ",")
}

// Run is Phases 3 through 5: spawn start_on_boot apps in dependency
// order, drive the supervision/reap loop at cfg.SupervisionTick until
// ctx is cancelled or every child has exited, then shut down
// gracefully. It returns once shutdown completes.
func (m *Manager) Run(ctx context.Context) error {
	log := logging.For("em.manager")

	for _, appID := range m.order {
		app := m.byID[appID]
		envHint := buildEnvHint(app)
		child, err := spawnChild(app, envHint)
		if err != nil {
			log.Error().Str("app", appID).Err(err).Msg("failed to spawn app")
			continue
		}
		m.mu.Lock()
		m.children[appID] = child
		m.mu.Unlock()
		log.Info().Str("app", appID).Str("instance_id", child.instanceID).Int("pid", child.pid()).Msg("spawned app")
	}

	ticker := time.NewTicker(m.cfg.SupervisionTick)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			m.shutdown(log)
			return nil
		case now := <-ticker.C:
			// Catch up without drifting: drive as many ticks as have
			// actually elapsed since the last one, rather than always
			// exactly one per wakeup.
			for !lastTick.Add(m.cfg.SupervisionTick).After(now) {
				lastTick = lastTick.Add(m.cfg.SupervisionTick)
				m.tickSupervisors(lastTick)
			}
			m.reapChildren(log)
			if m.childCount() == 0 && len(m.order) > 0 {
				m.shutdown(log)
				return nil
			}
		}
	}
}

func (m *Manager) tickSupervisors(now time.Time) {
	m.mu.Lock()
	sups := make([]*phm.Supervisor, 0, len(m.supervisors))
	for _, s := range m.supervisors {
		sups = append(sups, s)
	}
	m.mu.Unlock()

	for _, s := range sups {
		s.MaintenanceTick(now)
	}
}

// restartBackoff computes the delay before the attempt-th restart,
// doubling from cfg.RestartBackoffInitial and capping at
// cfg.RestartBackoffMax.
func (m *Manager) restartBackoff(attempt int) time.Duration {
	delay := m.cfg.RestartBackoffInitial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.RestartBackoffMax {
			return m.cfg.RestartBackoffMax
		}
	}
	if delay > m.cfg.RestartBackoffMax {
		delay = m.cfg.RestartBackoffMax
	}
	return delay
}

// reapChildren performs the non-blocking reap step: any child whose
// exit has become available is either dropped, scheduled for a
// backed-off restart, or (once its backoff elapses) respawned. A child
// waiting out its backoff stays in m.children, marked exited, so it
// still counts toward childCount.
func (m *Manager) reapChildren(log zerolog.Logger) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.children))
	for id := range m.children {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		m.mu.Lock()
		child, ok := m.children[id]
		m.mu.Unlock()
		if !ok {
			continue
		}

		if child.exited {
			if now.Before(child.restartAt) {
				continue
			}
			m.respawn(id, child, log)
			continue
		}

		exited, exitErr := child.tryReap()
		if !exited {
			continue
		}

		log.Info().Str("app", id).Str("instance_id", child.instanceID).Int("pid", child.pid()).Err(exitErr).Msg("app exited")

		if child.app.RestartPolicy != RestartOnFailure || !abnormalExit(exitErr) {
			m.mu.Lock()
			delete(m.children, id)
			m.mu.Unlock()
			continue
		}

		child.restarts++
		if child.restarts > m.cfg.MaxRestarts {
			log.Warn().Str("app", id).Str("instance_id", child.instanceID).Int("restarts", child.restarts).Msg("giving up after exceeding restart cap")
			m.mu.Lock()
			delete(m.children, id)
			m.mu.Unlock()
			continue
		}

		backoff := m.restartBackoff(child.restarts)
		child.exited = true
		child.restartAt = now.Add(backoff)
		metrics.RecordRestart(id)
		log.Info().Str("app", id).Str("instance_id", child.instanceID).Int("attempt", child.restarts).Dur("backoff", backoff).Msg("scheduling restart")
	}
}

// respawn replaces a child that has finished waiting out its restart
// backoff. On failure the attempt still counts against the restart
// cap, and another backoff is scheduled rather than retrying
// immediately.
func (m *Manager) respawn(id string, child *runningChild, log zerolog.Logger) {
	next, err := spawnChild(child.app, child.envHint)
	if err != nil {
		log.Error().Str("app", id).Str("instance_id", child.instanceID).Err(err).Msg("restart failed")
		child.restarts++
		if child.restarts > m.cfg.MaxRestarts {
			log.Warn().Str("app", id).Str("instance_id", child.instanceID).Int("restarts", child.restarts).Msg("giving up after exceeding restart cap")
			m.mu.Lock()
			delete(m.children, id)
			m.mu.Unlock()
			return
		}
		child.restartAt = time.Now().Add(m.restartBackoff(child.restarts))
		return
	}
	next.restarts = child.restarts
	log.Info().Str("app", id).Str("instance_id", next.instanceID).Str("prior_instance_id", child.instanceID).Int("pid", next.pid()).Msg("restarted app")
	m.mu.Lock()
	m.children[id] = next
	m.mu.Unlock()
}

func (m *Manager) childCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children)
}

// shutdown is Phase 5: signal every live child to terminate, wait up
// to cfg.ShutdownGrace polling at cfg.ShutdownPoll, force-kill any
// stragglers, reap them, then close the transport.
func (m *Manager) shutdown(log zerolog.Logger) {
	m.mu.Lock()
	children := make([]*runningChild, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, c)
	}
	m.mu.Unlock()

	for _, c := range children {
		if c.exited {
			continue
		}
		if err := c.terminate(); err != nil {
			log.Warn().Str("app", c.app.AppID).Err(err).Msg("failed to send termination signal")
		}
	}

	deadline := time.Now().Add(m.cfg.ShutdownGrace)
	for time.Now().Before(deadline) {
		m.reapLiveSet(children, log)
		if allExited(children) {
			break
		}
		time.Sleep(m.cfg.ShutdownPoll)
	}

	for _, c := range children {
		if c.exited {
			continue
		}
		if err := c.kill(); err != nil {
			log.Warn().Str("app", c.app.AppID).Err(err).Msg("failed to send kill signal")
		}
	}
	m.reapLiveSet(children, log)

	m.mu.Lock()
	for _, c := range children {
		delete(m.children, c.app.AppID)
	}
	m.mu.Unlock()

	transport.Shutdown()
	log.Info().Msg("execution manager shut down")
}

func (m *Manager) reapLiveSet(children []*runningChild, log zerolog.Logger) {
	for _, c := range children {
		if c.exited {
			continue
		}
		exited, exitErr := c.tryReap()
		if exited {
			c.exited = true
			log.Info().Str("app", c.app.AppID).Str("instance_id", c.instanceID).Err(exitErr).Msg("app exited during shutdown")
		}
	}
}

func allExited(children []*runningChild) bool {
	for _, c := range children {
		if !c.exited {
			return false
		}
	}
	return true
}

