/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

// effectiveProtocol determines the protocol byte and ICMP-error status the
// Acceptance Filter should match against. For any protocol other than
// ICMP it is simply head.Protocol. For ICMP, a query
// message (echo, timestamp, ...) matches as ICMP itself; an error message
// (destination unreachable, time exceeded, ...) carries the protocol of
// the offending datagram in its own payload, so the embedded header's
// protocol field is what a registered client actually expects to see.
func effectiveProtocol(classify func(byte) icmpClass, head *IP4Header, payload []byte) (proto byte, isError bool) {
	if head.Protocol != protoICMP {
		return head.Protocol, false
	}
	if len(payload) < icmpHeaderLen {
		return protoICMP, false
	}
	class := classify(payload[icmpOffType])
	if class != icmpErrorMessage {
		return protoICMP, false
	}
	embedded := payload[icmpErrorDataOffset:]
	if len(embedded) < ip4offProto+1 {
		return protoICMP, true
	}
	return embedded[ip4offProto], true
}

const (
	icmpOffType         = 0
	icmpOffCode         = 1
	icmpOffChecksum     = 2
	icmpHeaderLen       = 8
	icmpErrorDataOffset = 8 // type, code, checksum, unused(4), then the embedded IP header
)

const igmpMinLen = 8

// icmpHandle is the stub the ingress validator calls for ICMP traffic:
// both query and error class messages are handed to the demultiplexer
// exactly like any other protocol. A client registered for ICMP itself
// sees query messages; a client registered for the embedded datagram's
// own protocol (via effectiveProtocol) sees error messages that report
// on its own traffic, provided it accepts ICMP errors. Synthesizing a
// reply to a query, or forwarding an error's embedded original anywhere
// beyond delivery, is transmit behavior and out of scope here.
func icmpHandle(s *Service, pb *PktBuf) DeliveryStatus {
	raw := pb.bytes()
	if len(raw) < icmpHeaderLen {
		pb.release()
		return StatusInvalidParameter
	}
	return demultiplex(s, pb)
}

// igmpHandle is the IGMP stub: just enough structural validation to
// reject obviously malformed frames, then release. No multicast group
// management is implemented by this core; an upper layer owns group
// membership.
func igmpHandle(s *Service, pb *PktBuf) DeliveryStatus {
	if pb.len() < igmpMinLen {
		pb.release()
		return StatusInvalidParameter
	}
	pb.release()
	return StatusSuccess
}
