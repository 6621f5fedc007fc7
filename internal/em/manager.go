package em

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ecucore/coreem/internal/config"
	"github.com/ecucore/coreem/internal/logging"
	"github.com/ecucore/coreem/internal/metrics"
	"github.com/ecucore/coreem/internal/persistency"
	"github.com/ecucore/coreem/internal/phm"
	"github.com/ecucore/coreem/internal/transport"
)

// AppName is the Execution Manager's own transport identity.
const AppName = "em.core"

// Manager runs the Execution Manager's full lifecycle: registry and
// transport bootstrap, supervisor and routing-table wire-up,
// dependency-ordered spawning, the supervision/reap run loop, and
// signal-driven shutdown.
type Manager struct {
	cfg      config.EMConfig
	registry *persistency.Registry
	binding  *transport.Binding

	apps  []AppConfig
	byID  map[string]AppConfig
	order []string

	mu          sync.Mutex
	supervisors map[string]*phm.Supervisor
	clientToApp map[uint32]string
	children    map[string]*runningChild
}

// NewManager constructs a Manager over cfg. Bootstrap must be called
// before WireUp, and WireUp before Run.
func NewManager(cfg config.EMConfig) *Manager {
	return &Manager{
		cfg:         cfg,
		registry:    persistency.NewRegistry(),
		supervisors: make(map[string]*phm.Supervisor),
		clientToApp: make(map[uint32]string),
		children:    make(map[string]*runningChild),
	}
}

// Bootstrap is Phase 1: initialize the Storage Registry, initialize
// the Transport under the EM's own identity, offer the PHM service,
// and load every app manifest.
func (m *Manager) Bootstrap() error {
	log := logging.For("em.manager")

	persistManifest := m.cfg.PersistencyManifest
	if !filepath.IsAbs(persistManifest) {
		persistManifest = filepath.Join(m.cfg.ManifestDir, persistManifest)
	}
	if res := m.registry.InitFromFile(persistManifest); !res.IsOk() {
		return fmt.Errorf("em: storage registry init failed: %w", res.Err())
	}

	m.binding = transport.Init(AppName)
	if err := m.binding.OfferService(phm.ServiceID, phm.InstanceID); err != nil {
		return fmt.Errorf("em: offer phm service: %w", err)
	}

	apps, err := LoadManifests(m.cfg.ManifestDir)
	if err != nil {
		return fmt.Errorf("em: load manifests: %w", err)
	}
	m.apps = apps
	m.byID = make(map[string]AppConfig, len(apps))
	for _, a := range apps {
		m.byID[a.AppID] = a
	}
	log.Info().Int("apps", len(apps)).Msg("manifests loaded")
	return nil
}

// WireUp is Phase 2: build a Supervisor per PHM-configured app, load
// the application table into a client_id -> app_id map restricted to
// known apps, and register the single PHM RPC handler.
func (m *Manager) WireUp() error {
	log := logging.For("em.manager")

	for _, app := range m.apps {
		if app.PHM == nil {
			continue
		}
		appID := app.AppID
		sup := phm.NewSupervisor(phm.SupervisorConfig{
			AppID:               appID,
			SupervisionCycle:    time.Duration(app.PHM.PeriodMS) * time.Millisecond,
			AllowedMissedCycles: app.PHM.AllowedMissedCycles,
			RequiredCheckpoints: app.PHM.RequiredCheckpoints,
			RequireAlive:        app.PHM.RequireAlive,
		}, func(reason string) {
			log.Warn().Str("app", appID).Str("reason", reason).Msg("phm violation")
			metrics.RecordViolation(appID)
		})
		m.supervisors[appID] = sup
	}

	known := make(map[string]bool, len(m.apps))
	for _, a := range m.apps {
		known[a.AppID] = true
	}
	tablePath := m.cfg.AppTablePath
	if strings.TrimSpace(tablePath) == "" {
		tablePath = os.Getenv(EnvAppTable)
	}
	table, err := LoadAppTable(tablePath, known)
	if err != nil {
		return fmt.Errorf("em: load app table: %w", err)
	}
	m.mu.Lock()
	m.clientToApp = table
	m.mu.Unlock()

	m.binding.RegisterRPCHandler(m.handlePHMRequest)

	m.order = ComputeStartOrder(m.apps)
	log.Info().Strs("order", m.order).Msg("computed start order")
	return nil
}

// RegisterClient lets a test or an in-process app announce its
// client_id -> app_id mapping directly, bypassing the application
// table file. The EM's own RPC handler is the only code that reads
// this map, so tests exercising PHM fan-out without spawning real
// executables can populate it this way.
func (m *Manager) RegisterClient(clientID uint32, appID string) {
	m.mu.Lock()
	m.clientToApp[clientID] = appID
	m.mu.Unlock()
}

func (m *Manager) handlePHMRequest(clientID uint32, service, instance, method uint16, payload []byte) ([]byte, bool) {
	if service != phm.ServiceID || instance != phm.InstanceID {
		return nil, false
	}
	log := logging.For("em.manager")

	m.mu.Lock()
	appID, known := m.clientToApp[clientID]
	var sup *phm.Supervisor
	if known {
		sup = m.supervisors[appID]
	}
	m.mu.Unlock()

	if !known {
		log.Warn().Uint32("client_id", clientID).Msg("dropping phm message from unknown client")
		return []byte{}, true
	}
	if sup == nil {
		return []byte{}, true
	}

	switch method {
	case phm.MethodAlive:
		sup.OnAlive()
	case phm.MethodCheckpoint:
		if len(payload) == 4 {
			id := uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
			sup.OnCheckpoint(id)
		}
	}
	return []byte{}, true
}
