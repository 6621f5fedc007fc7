package transport

import (
	"strconv"
	"strings"

	"github.com/ecucore/coreem/internal/logging"
)

// EnvRequestEvents is the environment variable the binding reads on
// Init to pre-request and pre-subscribe a set of events before any
// application code runs, per spec.md §6.
const EnvRequestEvents = "SOMEIP_REQUEST_EVENTS"

// applyEnvPreRequests parses raw ("svc:inst:event[@group],…", numbers
// accepting 0x hex) and, for each well-formed triple, calls
// RequestEvent then SubscribeToEvent. The subscription callback is a
// no-op: dispatchNotification already runs the generic
// notificationHandlers fan-out on every inbound frame regardless of
// whether a per-event subscriber also exists, so registering the
// subscription itself (which is what makes the Bus route the event's
// frames to this binding) is all this needs to do. Malformed triples are logged and skipped; they
// never abort the remaining list.
func (b *Binding) applyEnvPreRequests(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	log := logging.For("transport").With().Str("app", b.appName).Logger()

	for _, triple := range strings.Split(raw, ",") {
		triple = strings.TrimSpace(triple)
		if triple == "" {
			continue
		}
		service, instance, event, group, ok := parseTriple(triple)
		if !ok {
			log.Warn().Str("triple", triple).Msg("skipping malformed pre-request triple")
			continue
		}
		if err := b.RequestEvent(service, instance, event, []uint16{group}, true); err != nil {
			log.Warn().Str("triple", triple).Err(err).Msg("pre-request failed")
			continue
		}
		if _, err := b.SubscribeToEvent(service, instance, group, event, func(payload []byte) {}); err != nil {
			log.Warn().Str("triple", triple).Err(err).Msg("pre-subscribe failed")
		}
	}
}

// parseTriple parses "service:instance:event" or
// "service:instance:event@group" with each number in decimal or 0x hex.
func parseTriple(s string) (service, instance, event, group uint16, ok bool) {
	group = defaultEventGroup
	if at := strings.IndexByte(s, '@'); at >= 0 {
		g, perr := parseUint16(s[at+1:])
		if perr != nil {
			return 0, 0, 0, 0, false
		}
		group = g
		s = s[:at]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, 0, false
	}
	svc, err1 := parseUint16(parts[0])
	inst, err2 := parseUint16(parts[1])
	evt, err3 := parseUint16(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, 0, false
	}
	return svc, inst, evt, group, true
}

func parseUint16(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
