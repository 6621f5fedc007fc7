// Package em implements the Execution Manager: manifest loading,
// dependency-ordered startup, supervised child-process spawning with a
// bounded restart policy, PHM fan-out keyed by the transport's client
// identifier, and signal-aware shutdown.
//
// Grounded on original_source/em/execution_manager.cpp for the overall
// bootstrap/spawn/monitor/restart shape, generalized per spec into
// dependency ordering, a client_id -> app_id routing table, and
// graceful-then-forceful shutdown. The run loop and signal handling
// follow internal/ghost/service.go's Run/serve pattern
// (signal.NotifyContext, ticker-driven loop, bounded shutdown wait),
// and child supervision is grounded on internal/ghost/cluster_host.go's
// managed-child bookkeeping (name -> handle map, cancel/done on stop),
// adapted from in-process goroutines to real os/exec child processes.
package em

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ecucore/coreem/internal/logging"
)

// RestartPolicy selects how the Execution Manager reacts to a child's
// abnormal exit.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
)

// PHMConfig is the per-app supervision configuration parsed from a
// manifest's "phm" block. RequireAlive records whether the literal
// string "alive" appeared in required_checkpoints; the Supervisor's
// cycle formula requires an alive report every cycle regardless, so
// this only preserves the manifest's documented convention rather than
// changing evaluation.
type PHMConfig struct {
	PeriodMS            int
	AllowedMissedCycles int
	RequiredCheckpoints []uint32
	RequireAlive        bool
}

// ComConfig is the per-app communication configuration parsed from a
// manifest's "com.someip" block.
type ComConfig struct {
	ServiceID  uint16
	InstanceID uint16
	EventGroup uint16
	Subscribe  []uint16
}

// AppConfig is one application's immutable, fully-defaulted manifest
// entry.
type AppConfig struct {
	AppID         string
	Executable    string
	StartOnBoot   bool
	RestartPolicy RestartPolicy
	LogFile       string
	Dependencies  []string
	PHM           *PHMConfig
	Com           *ComConfig
}

type rawManifest struct {
	AppID         string          `json:"app_id"`
	Executable    string          `json:"executable"`
	StartOnBoot   *bool           `json:"start_on_boot"`
	RestartPolicy string          `json:"restart_policy"`
	LogFile       string          `json:"log_file"`
	Dependencies  []string        `json:"dependencies"`
	PHM           *rawPHM         `json:"phm"`
	Com           *rawCom         `json:"com.someip"`
}

type rawPHM struct {
	PeriodMS            *int              `json:"period_ms"`
	AllowedMissedCycles *int              `json:"allowed_missed_cycles"`
	RequiredCheckpoints []json.RawMessage `json:"required_checkpoints"`
}

type rawCom struct {
	ServiceID  json.RawMessage   `json:"service_id"`
	InstanceID json.RawMessage   `json:"instance_id"`
	EventGroup json.RawMessage   `json:"event_group"`
	Subscribe  []json.RawMessage `json:"subscribe"`
}

const (
	defaultPeriodMS            = 1000
	defaultAllowedMissedCycles = 3
	defaultEventGroup          = 0x0001
)

// LoadManifests reads every *.json file in dir (in directory order,
// which os.ReadDir returns sorted by name) and parses it into an
// AppConfig. Entries missing app_id or executable are logged and
// skipped; a file that fails to parse as JSON is logged and skipped
// rather than aborting the whole load, matching the source's
// best-effort per-file loop.
func LoadManifests(dir string) ([]AppConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("em: read manifest dir %s: %w", dir, err)
	}

	log := logging.For("em.manifest")
	var apps []AppConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping unreadable manifest")
			continue
		}
		var raw rawManifest
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping malformed manifest")
			continue
		}
		app, ok := parseManifest(raw, log, path)
		if !ok {
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func parseManifest(raw rawManifest, log zerolog.Logger, path string) (AppConfig, bool) {
	if strings.TrimSpace(raw.AppID) == "" || strings.TrimSpace(raw.Executable) == "" {
		log.Warn().Str("path", path).Msg("skipping manifest missing app_id or executable")
		return AppConfig{}, false
	}

	app := AppConfig{
		AppID:         raw.AppID,
		Executable:    raw.Executable,
		StartOnBoot:   raw.StartOnBoot != nil && *raw.StartOnBoot,
		RestartPolicy: RestartNever,
		LogFile:       raw.LogFile,
		Dependencies:  raw.Dependencies,
	}
	if raw.RestartPolicy == string(RestartOnFailure) {
		app.RestartPolicy = RestartOnFailure
	}

	if raw.PHM != nil {
		app.PHM = parsePHM(raw.PHM, log, path)
	}
	if raw.Com != nil {
		app.Com = parseCom(raw.Com, log, path)
	}
	return app, true
}

func parsePHM(raw *rawPHM, log zerolog.Logger, path string) *PHMConfig {
	cfg := &PHMConfig{
		PeriodMS:            defaultPeriodMS,
		AllowedMissedCycles: defaultAllowedMissedCycles,
	}
	if raw.PeriodMS != nil {
		cfg.PeriodMS = *raw.PeriodMS
	}
	if raw.AllowedMissedCycles != nil {
		cfg.AllowedMissedCycles = *raw.AllowedMissedCycles
	}
	for _, item := range raw.RequiredCheckpoints {
		var asStr string
		if err := json.Unmarshal(item, &asStr); err == nil {
			if strings.EqualFold(strings.TrimSpace(asStr), "alive") {
				cfg.RequireAlive = true
				continue
			}
			id, err := parseFlexUint(asStr, 32)
			if err != nil {
				log.Warn().Str("path", path).Str("value", asStr).Msg("ignoring unparseable required_checkpoints entry")
				continue
			}
			cfg.RequiredCheckpoints = append(cfg.RequiredCheckpoints, uint32(id))
			continue
		}
		var asNum json.Number
		if err := json.Unmarshal(item, &asNum); err == nil {
			id, err := asNum.Int64()
			if err != nil {
				log.Warn().Str("path", path).Str("value", string(item)).Msg("ignoring unparseable required_checkpoints entry")
				continue
			}
			cfg.RequiredCheckpoints = append(cfg.RequiredCheckpoints, uint32(id))
			continue
		}
		log.Warn().Str("path", path).Str("value", string(item)).Msg("ignoring unparseable required_checkpoints entry")
	}
	return cfg
}

func parseCom(raw *rawCom, log zerolog.Logger, path string) *ComConfig {
	cfg := &ComConfig{EventGroup: defaultEventGroup}
	if v, err := parseFlexUintRaw(raw.ServiceID, 16); err == nil {
		cfg.ServiceID = uint16(v)
	} else if len(raw.ServiceID) > 0 {
		log.Warn().Str("path", path).Msg("ignoring unparseable com.someip.service_id")
	}
	if v, err := parseFlexUintRaw(raw.InstanceID, 16); err == nil {
		cfg.InstanceID = uint16(v)
	} else if len(raw.InstanceID) > 0 {
		log.Warn().Str("path", path).Msg("ignoring unparseable com.someip.instance_id")
	}
	if v, err := parseFlexUintRaw(raw.EventGroup, 16); err == nil {
		cfg.EventGroup = uint16(v)
	} else if len(raw.EventGroup) > 0 {
		log.Warn().Str("path", path).Msg("ignoring unparseable com.someip.event_group")
	}
	for _, item := range raw.Subscribe {
		v, err := parseFlexUintRaw(item, 16)
		if err != nil {
			log.Warn().Str("path", path).Str("value", string(item)).Msg("ignoring unparseable com.someip.subscribe entry")
			continue
		}
		cfg.Subscribe = append(cfg.Subscribe, uint16(v))
	}
	return cfg
}

// parseFlexUintRaw accepts a JSON number or a decimal/0x-hex JSON
// string, matching the manifest format's "integer fields accept
// decimal or 0x… hex strings" rule.
func parseFlexUintRaw(raw json.RawMessage, bits int) (uint64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("em: empty field")
	}
	var asNum json.Number
	if err := json.Unmarshal(raw, &asNum); err == nil {
		v, err := asNum.Int64()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}
	var asStr string
	if err := json.Unmarshal(raw, &asStr); err == nil {
		return parseFlexUint(asStr, bits)
	}
	return 0, fmt.Errorf("em: field %q is neither a number nor a string", string(raw))
}

func parseFlexUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, bits)
	}
	return strconv.ParseUint(s, 10, bits)
}

