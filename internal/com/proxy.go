package com

import (
	"github.com/ecucore/coreem/internal/transport"
)

// Proxy is the client-side half of the façade: it requests a service,
// subscribes to its events, and calls its methods, all by delegating
// to the transport.Binding it was built with.
type Proxy struct {
	desc    ServiceDescriptor
	binding *transport.Binding
}

// NewProxy builds a Proxy for desc over binding. Construction performs
// no I/O; call RequestService to announce interest in the service.
func NewProxy(desc ServiceDescriptor, binding *transport.Binding) *Proxy {
	return &Proxy{desc: desc, binding: binding}
}

// Descriptor returns the service coordinates this proxy was built for.
func (p *Proxy) Descriptor() ServiceDescriptor { return p.desc }

// RequestService announces this proxy's interest in the service.
func (p *Proxy) RequestService() error {
	return p.binding.RequestService(p.desc.ServiceID, p.desc.InstanceID)
}

// ReleaseService withdraws a previous RequestService.
func (p *Proxy) ReleaseService() error {
	return p.binding.ReleaseService(p.desc.ServiceID, p.desc.InstanceID)
}

// Subscribe requests and subscribes to ev, invoking cb with the
// decoded value on every notification. Requesting the event is folded
// into Subscribe since the façade has no separate use for a requested-
// but-unsubscribed event.
func Subscribe[T any](p *Proxy, ev EventDescriptor[T], cb func(T)) (transport.SubscriptionToken, error) {
	if err := p.binding.RequestEvent(p.desc.ServiceID, p.desc.InstanceID, ev.ID, []uint16{ev.Group}, true); err != nil {
		return transport.SubscriptionToken{}, err
	}
	return p.binding.SubscribeToEvent(p.desc.ServiceID, p.desc.InstanceID, ev.Group, ev.ID, func(payload []byte) {
		v, err := ev.Codec.Decode(payload)
		if err != nil {
			return
		}
		cb(v)
	})
}

// Unsubscribe tears down a subscription obtained from Subscribe.
func (p *Proxy) Unsubscribe(token transport.SubscriptionToken) error {
	return p.binding.UnsubscribeEvent(token)
}

// Call sends req to m asynchronously, decoding the response payload
// and invoking onDone with the result. onDone receives the zero Resp
// value and a non-CommOk code on failure, or a decode error folded
// into CommInvalidArg.
func Call[Req, Resp any](p *Proxy, m MethodDescriptor[Req, Resp], req Req, onDone func(Resp, transport.CommCode)) {
	payload := m.Req.Encode(req)
	p.binding.SendRequestAsync(p.desc.ServiceID, p.desc.InstanceID, m.ID, payload, func(resp []byte, code transport.CommCode) {
		if onDone == nil {
			return
		}
		var out Resp
		if code != transport.CommOk {
			onDone(out, code)
			return
		}
		v, err := m.Resp.Decode(resp)
		if err != nil {
			onDone(out, transport.CommInvalidArg)
			return
		}
		onDone(v, transport.CommOk)
	})
}

// CallSync is Call's blocking counterpart, for callers that want the
// decoded response inline rather than via a callback.
func CallSync[Req, Resp any](p *Proxy, m MethodDescriptor[Req, Resp], req Req) (Resp, transport.CommCode) {
	var out Resp
	resp, code := p.binding.SendRequest(p.desc.ServiceID, p.desc.InstanceID, m.ID, m.Req.Encode(req))
	if code != transport.CommOk {
		return out, code
	}
	v, err := m.Resp.Decode(resp)
	if err != nil {
		return out, transport.CommInvalidArg
	}
	return v, transport.CommOk
}
