/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

// CastType classifies a destination relative to the receiver.
type CastType int

const (
	CastNone CastType = iota
	CastUnicastLocal
	CastLocalBroadcast
	CastSubnetBroadcast
	CastMulticast
	CastPromiscuous
)

func (c CastType) String() string {
	switch c {
	case CastUnicastLocal:
		return "unicast-local"
	case CastLocalBroadcast:
		return "local-broadcast"
	case CastSubnetBroadcast:
		return "subnet-broadcast"
	case CastMulticast:
		return "multicast"
	case CastPromiscuous:
		return "promiscuous"
	default:
		return "none"
	}
}

func (c CastType) isBroadcast() bool {
	return c == CastLocalBroadcast || c == CastSubnetBroadcast
}

// DeliveryStatus is the per-delivery result recorded in a buffer's Clip
// Info and handed to the upper layer through a receive token.
type DeliveryStatus int

const (
	StatusSuccess DeliveryStatus = iota
	StatusNotStarted
	StatusInvalidParameter
	StatusOutOfResources
	StatusNotFound
)

// ClipInfo is the per-packet control block attached to every buffer the
// core handles.
type ClipInfo struct {
	Start    int // byte offset of this fragment within its parent datagram
	Length   int
	End      int // Start + Length
	CastType CastType
	LinkFlag uint32 // opaque pass-through from the link layer
	Life     int    // ticks remaining; 0 means "never expires"
	Status   DeliveryStatus
}
