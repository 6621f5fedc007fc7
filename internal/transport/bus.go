package transport

import (
	"fmt"
	"sync"

	"github.com/ecucore/coreem/internal/metrics"
)

// Bus is the shared medium multiple Binding instances attach to,
// standing in for the vsomeip daemon the original source talked to: it
// tracks which binding currently offers a service, which bindings
// subscribe to which event or event group, and hands out process-wide
// client ids. One Bus is shared by every Binding in a process via the
// package-level singleton; tests may construct additional Bus values
// to simulate independent app processes exchanging frames.
type Bus struct {
	mu sync.Mutex

	nextClientID uint32
	attached     map[*Binding]struct{}
	servers      map[ServiceKey]*Binding
	eventSubs    map[EventKey]map[*Binding]struct{}
	groupSubs    map[GroupKey]map[*Binding]struct{}
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{
		attached:  make(map[*Binding]struct{}),
		servers:   make(map[ServiceKey]*Binding),
		eventSubs: make(map[EventKey]map[*Binding]struct{}),
		groupSubs: make(map[GroupKey]map[*Binding]struct{}),
	}
}

func (b *Bus) assignClientID() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextClientID++
	return b.nextClientID
}

func (b *Bus) attach(binding *Binding) {
	b.mu.Lock()
	b.attached[binding] = struct{}{}
	b.mu.Unlock()
}

func (b *Bus) detach(binding *Binding) {
	b.mu.Lock()
	delete(b.attached, binding)
	for key, server := range b.servers {
		if server == binding {
			delete(b.servers, key)
		}
	}
	for key, subs := range b.eventSubs {
		delete(subs, binding)
		if len(subs) == 0 {
			delete(b.eventSubs, key)
		}
	}
	for key, subs := range b.groupSubs {
		delete(subs, binding)
		if len(subs) == 0 {
			delete(b.groupSubs, key)
		}
	}
	b.mu.Unlock()
}

// offerService publishes binding as the server for key and notifies
// every attached binding of the availability transition.
func (b *Bus) offerService(key ServiceKey, binding *Binding) {
	b.mu.Lock()
	b.servers[key] = binding
	attached := snapshotBindings(b.attached)
	b.mu.Unlock()
	b.broadcastAvailability(attached, key, true)
}

// stopOfferService withdraws binding as the server for key, if it is
// still the current server, and notifies availability listeners.
func (b *Bus) stopOfferService(key ServiceKey, binding *Binding) {
	b.mu.Lock()
	if b.servers[key] == binding {
		delete(b.servers, key)
	}
	attached := snapshotBindings(b.attached)
	b.mu.Unlock()
	b.broadcastAvailability(attached, key, false)
}

func (b *Bus) broadcastAvailability(attached []*Binding, key ServiceKey, available bool) {
	for _, binding := range attached {
		binding.deliver(inboundEvent{
			kind:      kindAvailability,
			service:   key.Service,
			instance:  key.Instance,
			available: available,
		})
	}
}

func (b *Bus) server(key ServiceKey) *Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.servers[key]
}

func (b *Bus) subscribeEvent(key EventKey, binding *Binding) {
	b.mu.Lock()
	if b.eventSubs[key] == nil {
		b.eventSubs[key] = make(map[*Binding]struct{})
	}
	b.eventSubs[key][binding] = struct{}{}
	count := len(b.eventSubs[key])
	b.mu.Unlock()
	publishSubscriptionCount(key, count)
}

func (b *Bus) unsubscribeEvent(key EventKey, binding *Binding) {
	b.mu.Lock()
	subs := b.eventSubs[key]
	if subs == nil {
		b.mu.Unlock()
		return
	}
	delete(subs, binding)
	count := len(subs)
	if count == 0 {
		delete(b.eventSubs, key)
	}
	b.mu.Unlock()
	publishSubscriptionCount(key, count)
}

func publishSubscriptionCount(key EventKey, count int) {
	metrics.SetSubscriptionCount(
		fmt.Sprintf("0x%04x", key.Service),
		fmt.Sprintf("0x%04x", key.Instance),
		fmt.Sprintf("0x%04x", key.Event),
		count,
	)
}

func (b *Bus) subscribeGroup(key GroupKey, binding *Binding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groupSubs[key] == nil {
		b.groupSubs[key] = make(map[*Binding]struct{})
	}
	b.groupSubs[key][binding] = struct{}{}
}

// notify delivers a notification to every binding subscribed to the
// exact event key and to every binding blanket-subscribed to the
// event's group.
func (b *Bus) notify(key EventKey, group uint16, payload []byte) {
	b.mu.Lock()
	recipients := make(map[*Binding]struct{})
	for binding := range b.eventSubs[key] {
		recipients[binding] = struct{}{}
	}
	for binding := range b.groupSubs[GroupKey{Service: key.Service, Instance: key.Instance, Group: group}] {
		recipients[binding] = struct{}{}
	}
	b.mu.Unlock()

	for binding := range recipients {
		binding.deliver(inboundEvent{
			kind:     kindNotification,
			service:  key.Service,
			instance: key.Instance,
			event:    key.Event,
			payload:  payload,
		})
	}
}

// request routes a request frame to the current server for key and
// returns a channel the caller reads the response from. Returns nil if
// no server currently offers the service.
func (b *Bus) request(key ServiceKey, clientID uint32, method uint16, payload []byte) chan []byte {
	server := b.server(key)
	if server == nil {
		return nil
	}
	respCh := make(chan []byte, 1)
	server.deliver(inboundEvent{
		kind:     kindRequest,
		service:  key.Service,
		instance: key.Instance,
		method:   method,
		clientID: clientID,
		payload:  payload,
		respCh:   respCh,
	})
	return respCh
}

func snapshotBindings(m map[*Binding]struct{}) []*Binding {
	out := make([]*Binding, 0, len(m))
	for b := range m {
		out = append(out, b)
	}
	return out
}
