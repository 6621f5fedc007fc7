// Package com implements the transport-agnostic Proxy/Skeleton façade
// over a service's event and method coordinates. It performs no I/O of
// its own; every operation delegates to a transport.Binding obtained at
// construction, exactly as ara::com::Proxy<Desc>/Skeleton<Desc> delegate
// to the ara::com::IAdapter reachable through their Runtime.
//
// Grounded on original_source/include/ara/com/core.hpp's Proxy<Desc>/
// Skeleton<Desc> templates and Codec<T> specializations, and on
// original_source/ara/com/someip_adapter.cpp for the subscription
// bookkeeping style that transport.Binding already implements.
package com

// ServiceDescriptor names one service's SOME/IP coordinates, the Go
// analogue of a Desc type's kServiceId/kInstanceId/kDefaultClient/
// kDefaultServer members. Method and event ids live alongside it as
// MethodDescriptor/EventDescriptor values rather than nested types,
// since Go has no nested-template equivalent.
type ServiceDescriptor struct {
	ServiceID         uint16
	InstanceID        uint16
	DefaultClientName string
	DefaultServerName string
}

// EventDescriptor names one event of a service and carries the codec
// that turns a typed value into the wire payload and back. Group is
// passed to the binding unchanged; a zero Group is not replaced by the
// binding's default event group.
type EventDescriptor[T any] struct {
	ID    uint16
	Group uint16
	Codec Codec[T]
}

// MethodDescriptor names one request/response method of a service and
// carries the codecs for its request and response payloads. Proxies
// use Req's Encode and Resp's Decode; skeletons use Req's Decode and
// Resp's Encode.
type MethodDescriptor[Req, Resp any] struct {
	ID   uint16
	Req  Codec[Req]
	Resp Codec[Resp]
}
