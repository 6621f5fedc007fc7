package com

import (
	"github.com/ecucore/coreem/internal/transport"
)

// Skeleton is the server-side half of the façade: it offers a service,
// publishes its events, and answers its methods, all by delegating to
// the transport.Binding it was built with.
type Skeleton struct {
	desc    ServiceDescriptor
	binding *transport.Binding
}

// NewSkeleton builds a Skeleton for desc over binding.
func NewSkeleton(desc ServiceDescriptor, binding *transport.Binding) *Skeleton {
	return &Skeleton{desc: desc, binding: binding}
}

// Descriptor returns the service coordinates this skeleton offers.
func (s *Skeleton) Descriptor() ServiceDescriptor { return s.desc }

// Offer publishes the service, declaring any events that will be
// notified under a non-default group.
func (s *Skeleton) Offer(events ...transport.EventOffer) error {
	return s.binding.OfferService(s.desc.ServiceID, s.desc.InstanceID, events...)
}

// Stop withdraws a previous Offer.
func (s *Skeleton) Stop() error {
	return s.binding.StopOfferService(s.desc.ServiceID, s.desc.InstanceID)
}

// Notify publishes value on ev, encoded through its codec.
func Notify[T any](s *Skeleton, ev EventDescriptor[T], value T) error {
	return s.binding.SendNotification(s.desc.ServiceID, s.desc.InstanceID, ev.ID, ev.Codec.Encode(value))
}

// HandleMethod registers fn to answer calls to m, decoding the request
// payload through m.Req and encoding fn's returned response through
// m.Resp. It appends to the binding's RPC fan-out list, so one binding
// may back several skeletons as long as their method ids don't
// collide.
func HandleMethod[Req, Resp any](s *Skeleton, m MethodDescriptor[Req, Resp], fn func(clientID uint32, req Req) Resp) {
	s.binding.RegisterRPCHandler(func(clientID uint32, service, instance, method uint16, payload []byte) ([]byte, bool) {
		if service != s.desc.ServiceID || instance != s.desc.InstanceID || method != m.ID {
			return nil, false
		}
		req, err := m.Req.Decode(payload)
		if err != nil {
			return nil, true
		}
		resp := fn(clientID, req)
		return m.Resp.Encode(resp), true
	})
}
