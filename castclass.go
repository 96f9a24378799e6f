/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

// globalCastType computes the cast type of a received datagram against
// the receiving interface's own address tables.
func globalCastType(ifc *Interface, dst IP4Addr) CastType {
	switch {
	case dst.IsMulticast():
		return CastMulticast
	case dst.IsLimitedBroadcast():
		return CastLocalBroadcast
	case dst == ifc.IP && !ifc.IP.IsZero():
		return CastUnicastLocal
	case !ifc.IP.IsZero() && dst == ifc.IP.DirectedBroadcast(ifc.Netmask):
		return CastSubnetBroadcast
	case ifc.Promiscuous:
		return CastPromiscuous
	default:
		return CastNone
	}
}

// interfaceLocalCast computes the cast type the demultiplexer's first
// pass uses for one configured interface: broadcast and multicast
// datagrams simply inherit the cast type already computed against the
// receiving interface; any other destination is recomputed against this
// interface specifically, with an interface of address zero ("any")
// treated as matching every destination as unicast-local, falling back
// to promiscuous.
func interfaceLocalCast(ifc *Interface, dst IP4Addr, received CastType) CastType {
	if received == CastLocalBroadcast || received == CastMulticast {
		return received
	}
	if ifc.IP.IsZero() {
		return CastUnicastLocal
	}
	switch {
	case dst == ifc.IP:
		return CastUnicastLocal
	case dst == ifc.IP.DirectedBroadcast(ifc.Netmask):
		return CastSubnetBroadcast
	case ifc.Promiscuous:
		return CastPromiscuous
	default:
		return CastNone
	}
}

// sourceRejected reports whether a frame's source address is itself
// broadcast or multicast in the receiving interface's own scope, which
// the ingress validator rejects outright regardless of destination.
func sourceRejected(ifc *Interface, src IP4Addr) bool {
	if src.IsLimitedBroadcast() || src.IsMulticast() {
		return true
	}
	return !ifc.IP.IsZero() && src == ifc.IP.DirectedBroadcast(ifc.Netmask)
}
