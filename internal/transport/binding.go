package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/ecucore/coreem/internal/logging"
)

var (
	ErrBindingClosed      = errors.New("transport: binding is shut down")
	ErrServiceUnavailable = errors.New("transport: service has no server offering it")
	ErrEventNotRequested  = errors.New("transport: request_event must precede subscribe_to_event")
	ErrRequestTimeout     = errors.New("transport: request timed out waiting for a response")
)

const defaultEventGroup uint16 = 0x0001

// requestTimeout bounds SendRequest so a server that never responds
// cannot hang a caller forever; generous relative to the supervision
// cadence this binding ultimately serves (see internal/em).
const requestTimeout = 2 * time.Second

// Binding is bound to a single application identity and owns exactly
// one dispatch goroutine, matching the one-event-routing-thread-per-
// process invariant. Construct via Init for the process-wide singleton,
// or NewBinding directly in tests that need several independent
// application identities sharing one Bus.
type Binding struct {
	appName  string
	clientID uint32
	bus      *Bus

	mu                 sync.Mutex
	closed             bool
	offeredServices    map[ServiceKey]struct{}
	offeredEvents      map[EventKey]uint16 // event -> group it was offered under
	requestedEvents    map[EventKey]struct{}
	requestedServices  map[ServiceKey]struct{}
	subsByKey          map[EventKey][]subEntry
	tokenKeys          map[uint64]EventKey
	nextToken          uint64
	notificationHandlers []NotificationHandler
	rpcHandlers        []RPCHandler
	legacyHandler      LegacyHandler
	availabilityListeners []AvailabilityHandler
	autoSubscribe      bool
	autoSubscribeGroup uint16

	inbox  chan inboundEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBinding constructs and starts a Binding bound to appName, attached
// to bus. Most callers should use Init instead; this is exported for
// tests that simulate multiple application identities on one Bus.
func NewBinding(appName string, bus *Bus) *Binding {
	b := &Binding{
		appName:            appName,
		bus:                bus,
		clientID:           bus.assignClientID(),
		offeredServices:    make(map[ServiceKey]struct{}),
		offeredEvents:      make(map[EventKey]uint16),
		requestedEvents:    make(map[EventKey]struct{}),
		requestedServices:  make(map[ServiceKey]struct{}),
		subsByKey:          make(map[EventKey][]subEntry),
		tokenKeys:          make(map[uint64]EventKey),
		autoSubscribeGroup: defaultEventGroup,
		inbox:              make(chan inboundEvent, 256),
		stopCh:             make(chan struct{}),
	}
	bus.attach(b)
	b.wg.Add(1)
	go b.runLoop()
	return b
}

// ClientID returns the identifier the Bus assigned this binding,
// exposed so the Execution Manager can build its client_id -> app_id
// routing table.
func (b *Binding) ClientID() uint32 { return b.clientID }

// AppName returns the identity this binding was initialized under.
func (b *Binding) AppName() string { return b.appName }

func (b *Binding) deliver(ev inboundEvent) {
	select {
	case b.inbox <- ev:
	case <-b.stopCh:
	}
}

func (b *Binding) runLoop() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.inbox:
			b.dispatch(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Binding) dispatch(ev inboundEvent) {
	switch ev.kind {
	case kindNotification:
		b.dispatchNotification(ev)
	case kindRequest:
		b.dispatchRequest(ev)
	case kindAvailability:
		b.dispatchAvailability(ev)
	}
}

func (b *Binding) dispatchNotification(ev inboundEvent) {
	key := EventKey{Service: ev.service, Instance: ev.instance, Event: ev.event}

	b.mu.Lock()
	subs := cloneSubEntries(b.subsByKey[key])
	handlers := cloneNotificationHandlers(b.notificationHandlers)
	legacy := b.legacyHandler
	b.mu.Unlock()

	for _, s := range subs {
		s.cb(ev.payload)
	}
	if len(handlers) > 0 {
		for _, h := range handlers {
			h(ev.service, ev.instance, ev.event, ev.payload)
		}
	} else if legacy != nil {
		legacy(ev.payload)
	}
}

func (b *Binding) dispatchRequest(ev inboundEvent) {
	b.mu.Lock()
	handlers := cloneRPCHandlers(b.rpcHandlers)
	b.mu.Unlock()

	var resp []byte
	handled := false
	for _, h := range handlers {
		r, ok := h(ev.clientID, ev.service, ev.instance, ev.method, ev.payload)
		if ok && !handled {
			resp, handled = r, true
		}
	}
	if ev.respCh != nil {
		ev.respCh <- resp
	}
}

func (b *Binding) dispatchAvailability(ev inboundEvent) {
	b.mu.Lock()
	listeners := cloneAvailabilityHandlers(b.availabilityListeners)
	autoSub := b.autoSubscribe
	group := b.autoSubscribeGroup
	b.mu.Unlock()

	for _, l := range listeners {
		l(ev.service, ev.instance, ev.available)
	}
	if ev.available && autoSub {
		// Best-effort: availability races during startup are routine,
		// per the error handling design, so no error is surfaced here.
		b.bus.subscribeGroup(GroupKey{Service: ev.service, Instance: ev.instance, Group: group}, b)
	}
}

// EnableAutoSubscribe turns on or off blind subscription to a default
// event group whenever any service becomes available. Off by default.
func (b *Binding) EnableAutoSubscribe(enable bool, group uint16) {
	b.mu.Lock()
	b.autoSubscribe = enable
	b.autoSubscribeGroup = group
	b.mu.Unlock()
}

// OfferService publishes (service, instance) as served by this binding.
// If opts names an event, the event is offered under its group as well.
func (b *Binding) OfferService(service, instance uint16, opts ...EventOffer) error {
	key := ServiceKey{Service: service, Instance: instance}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBindingClosed
	}
	b.offeredServices[key] = struct{}{}
	for _, o := range opts {
		b.offeredEvents[EventKey{Service: service, Instance: instance, Event: o.Event}] = o.Group
	}
	b.mu.Unlock()

	b.bus.offerService(key, b)
	return nil
}

// StopOfferService withdraws a previously offered service.
func (b *Binding) StopOfferService(service, instance uint16) error {
	key := ServiceKey{Service: service, Instance: instance}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBindingClosed
	}
	delete(b.offeredServices, key)
	b.mu.Unlock()

	b.bus.stopOfferService(key, b)
	return nil
}

// SendNotification publishes payload for (service, instance, event),
// lazily offering the event under the default group the first time it
// is used if OfferService never declared it explicitly.
func (b *Binding) SendNotification(service, instance, event uint16, payload []byte) error {
	key := EventKey{Service: service, Instance: instance, Event: event}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBindingClosed
	}
	group, offered := b.offeredEvents[key]
	if !offered {
		group = defaultEventGroup
		b.offeredEvents[key] = group
	}
	b.mu.Unlock()

	b.bus.notify(key, group, payload)
	return nil
}

// RequestService marks (service, instance) as wanted by this binding.
func (b *Binding) RequestService(service, instance uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBindingClosed
	}
	b.requestedServices[ServiceKey{Service: service, Instance: instance}] = struct{}{}
	return nil
}

// ReleaseService withdraws a previous RequestService.
func (b *Binding) ReleaseService(service, instance uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBindingClosed
	}
	delete(b.requestedServices, ServiceKey{Service: service, Instance: instance})
	return nil
}

// RequestEvent declares this binding's interest in (service, instance,
// event) before SubscribeToEvent may be called for it. groups and
// reliable are accepted for interface fidelity with the original
// request_event contract; the in-process Bus does not distinguish
// reliability classes.
func (b *Binding) RequestEvent(service, instance, event uint16, groups []uint16, reliable bool) error {
	_ = groups
	_ = reliable
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBindingClosed
	}
	b.requestedEvents[EventKey{Service: service, Instance: instance, Event: event}] = struct{}{}
	return nil
}

// SubscribeToEvent subscribes cb to (service, instance, event) under
// group, returning a token identifying this particular subscription.
// RequestEvent must have been called first for the same event.
func (b *Binding) SubscribeToEvent(service, instance, group, event uint16, cb SubscriptionCallback) (SubscriptionToken, error) {
	key := EventKey{Service: service, Instance: instance, Event: event}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return SubscriptionToken{}, ErrBindingClosed
	}
	if _, ok := b.requestedEvents[key]; !ok {
		b.mu.Unlock()
		return SubscriptionToken{}, ErrEventNotRequested
	}
	b.nextToken++
	token := b.nextToken
	b.subsByKey[key] = append(b.subsByKey[key], subEntry{token: token, cb: cb})
	b.tokenKeys[token] = key
	b.mu.Unlock()

	b.bus.subscribeEvent(key, b)
	_ = group // group is accepted for interface fidelity; delivery is keyed on the exact event.
	return SubscriptionToken{id: token}, nil
}

// UnsubscribeEvent tears down a single subscription. When it was the
// last subscription for its event key, the binding releases the event
// with the Bus and RequestEvent must be called again before
// subscribing to that event.
func (b *Binding) UnsubscribeEvent(token SubscriptionToken) error {
	b.mu.Lock()
	key, ok := b.tokenKeys[token.id]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.tokenKeys, token.id)

	entries := b.subsByKey[key]
	for i, e := range entries {
		if e.token == token.id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	b.subsByKey[key] = entries
	released := len(entries) == 0
	if released {
		delete(b.subsByKey, key)
		delete(b.requestedEvents, key)
	}
	b.mu.Unlock()

	if released {
		b.bus.unsubscribeEvent(key, b)
	}
	return nil
}

// RegisterNotificationHandler appends h to the demultiplexer's
// notification fan-out list. Delivery order equals registration order.
func (b *Binding) RegisterNotificationHandler(h NotificationHandler) {
	b.mu.Lock()
	b.notificationHandlers = append(b.notificationHandlers, h)
	b.mu.Unlock()
}

// RegisterRPCHandler appends h to the request/response fan-out list.
func (b *Binding) RegisterRPCHandler(h RPCHandler) {
	b.mu.Lock()
	b.rpcHandlers = append(b.rpcHandlers, h)
	b.mu.Unlock()
}

// RegisterLegacyHandler installs the single-slot fallback used only
// when the notification fan-out list is empty.
func (b *Binding) RegisterLegacyHandler(h LegacyHandler) {
	b.mu.Lock()
	b.legacyHandler = h
	b.mu.Unlock()
}

// RegisterAvailabilityListener appends h to the availability fan-out
// list. Invocations always occur outside the internal lock.
func (b *Binding) RegisterAvailabilityListener(h AvailabilityHandler) {
	b.mu.Lock()
	b.availabilityListeners = append(b.availabilityListeners, h)
	b.mu.Unlock()
}

// SendRequest sends a request to (service, instance, method) and blocks
// for the response, up to requestTimeout. Returns CommNotFound if no
// server currently offers the service, CommTimeout if it never
// responds.
func (b *Binding) SendRequest(service, instance, method uint16, payload []byte) ([]byte, CommCode) {
	b.mu.Lock()
	closed := b.closed
	clientID := b.clientID
	b.mu.Unlock()
	if closed {
		return nil, CommTransportError
	}

	respCh := b.bus.request(ServiceKey{Service: service, Instance: instance}, clientID, method, payload)
	if respCh == nil {
		return nil, CommNotFound
	}

	select {
	case resp := <-respCh:
		return resp, CommOk
	case <-time.After(requestTimeout):
		return nil, CommTimeout
	}
}

// SendRequestAsync sends a fire-and-forget request and invokes onDone
// with the eventual result on a separate goroutine. Used by callers
// like the PHM client that never wait on a response.
func (b *Binding) SendRequestAsync(service, instance, method uint16, payload []byte, onDone func([]byte, CommCode)) {
	go func() {
		resp, code := b.SendRequest(service, instance, method, payload)
		if onDone != nil {
			onDone(resp, code)
		}
	}()
}

// Shutdown stops the dispatch goroutine and detaches from the Bus.
// Afterwards, offer, notify, request and subscribe operations return
// ErrBindingClosed and SendRequest returns CommTransportError;
// UnsubscribeEvent and the Register* methods do not check for shutdown.
func (b *Binding) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)
	b.wg.Wait()
	b.bus.detach(b)
	log := logging.For("transport")
	log.Info().Str("app", b.appName).Msg("binding shut down")
}
