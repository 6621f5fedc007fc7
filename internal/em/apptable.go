package em

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ecucore/coreem/internal/logging"
)

// EnvAppTable names the environment variable the Execution Manager
// reads for the transport's application table path, per spec.md §6.
const EnvAppTable = "VSOMEIP_CONFIGURATION"

// appTableFile is the on-disk shape of the transport's application
// table: one entry per app process naming the client id the transport
// assigned it. original_source/em never defines this format (the
// earlier variant had no client-id routing at all); this JSON shape is
// this port's own resolution of that gap, documented in DESIGN.md.
type appTableFile struct {
	Apps []appTableEntry `json:"apps"`
}

type appTableEntry struct {
	ClientID json.RawMessage `json:"client_id"`
	AppID    string          `json:"app_id"`
}

// LoadAppTable parses the application table at path into a
// client_id -> app_id map, restricted to app ids present in known
// (already-loaded) manifests. A missing file yields an empty map: the
// PHM RPC handler then drops every message from an unknown client,
// which is the documented behavior for apps the table doesn't cover.
func LoadAppTable(path string, known map[string]bool) (map[uint32]string, error) {
	result := make(map[uint32]string)
	if strings.TrimSpace(path) == "" {
		return result, nil
	}

	log := logging.For("em.apptable")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("application table not found, no client ids known yet")
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("em: read app table %s: %w", path, err)
	}

	var raw appTableFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("em: parse app table %s: %w", path, err)
	}

	for _, entry := range raw.Apps {
		if !known[entry.AppID] {
			log.Warn().Str("app", entry.AppID).Msg("ignoring app table entry for an app not present in loaded manifests")
			continue
		}
		id, err := parseFlexUintRaw(entry.ClientID, 32)
		if err != nil {
			log.Warn().Str("app", entry.AppID).Msg("ignoring app table entry with unparseable client_id")
			continue
		}
		result[uint32(id)] = entry.AppID
	}
	return result, nil
}
