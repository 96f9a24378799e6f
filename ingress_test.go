/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import "testing"

func buildHeader(headerLen int, totalLen int, opts []byte) []byte {
	raw := make([]byte, totalLen)
	raw[ip4offVer] = byte(4<<4 | headerLen/4)
	be.PutUint16(raw[ip4offTotalLen:], uint16(totalLen))
	raw[ip4offTTL] = 64
	raw[ip4offProto] = protoUDP
	copy(raw[ip4offSrc:], []byte{10, 0, 0, 3})
	copy(raw[ip4offDst:], []byte{10, 0, 0, 2})
	copy(raw[ip4MinHeaderLen:headerLen], opts)
	be.PutUint16(raw[ip4offChecksum:], 0)
	cksum := ip4Checksum(raw[:headerLen])
	be.PutUint16(raw[ip4offChecksum:], ^cksum)
	return raw
}

func testInterface() *Interface {
	return &Interface{IP: ip4AddrFromBytes([]byte{10, 0, 0, 2}), Netmask: ip4AddrFromBytes([]byte{255, 255, 255, 0}), Configured: true}
}

func TestAcceptFrameRejectsUndersizedFrame(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	ifc := testInterface()

	pb := newPktBuf(make([]byte, 10))
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	if link.restarts != 1 {
		t.Fatalf("restarts: got %v, want 1", link.restarts)
	}
	if pb.refCount() != 0 {
		t.Fatalf("expected undersized buffer to be released")
	}
}

func TestAcceptFrameRejectsLinkError(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	ifc := testInterface()

	pb := newPktBuf(buildHeader(ip4MinHeaderLen, ip4MinHeaderLen+4, nil))
	acceptFrame(s, ifc, pb, LinkStatusError, 0)

	if link.restarts != 0 {
		t.Fatalf("restarts: got %v, want 0 (a link error must not trigger another receive)", link.restarts)
	}
	if pb.refCount() != 0 {
		t.Fatalf("expected buffer to be released on link error")
	}
}

func TestAcceptFrameSuppressesRestartWhenDestroying(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	s.State = ServiceDestroying
	ifc := testInterface()

	pb := newPktBuf(buildHeader(ip4MinHeaderLen, ip4MinHeaderLen+4, nil))
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	if link.restarts != 0 {
		t.Fatalf("restarts: got %v, want 0 (no restart once the service is destroying)", link.restarts)
	}
	if pb.refCount() != 0 {
		t.Fatalf("expected buffer to be released while destroying")
	}
}

func TestAcceptFrameRejectsBadChecksum(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	ifc := testInterface()

	raw := buildHeader(ip4MinHeaderLen, ip4MinHeaderLen+4, nil)
	raw[ip4offChecksum] ^= 0xff

	pb := newPktBuf(raw)
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	if pb.refCount() != 0 {
		t.Fatalf("expected corrupted header to be rejected")
	}
}

func TestAcceptFrameAcceptsZeroChecksum(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	ifc := testInterface()

	raw := buildHeader(ip4MinHeaderLen, ip4MinHeaderLen+4, nil)
	be.PutUint16(raw[ip4offChecksum:], 0)

	inst := newInstance("any", InstanceConfig{AcceptAnyProtocol: true})
	inst.configure()
	s.addInterface(ifc)
	s.addInstance(inst, ifc)
	tok := newReceiveToken()
	inst.submitToken(tok)

	pb := newPktBuf(raw)
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	select {
	case <-tok.done:
		if tok.Status != StatusSuccess {
			t.Fatalf("token status: got %v, want StatusSuccess", tok.Status)
		}
	default:
		t.Fatalf("expected zero-checksum header to be accepted and delivered")
	}
}

func TestAcceptFrameRejectsFragmentedWithDF(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	ifc := testInterface()

	raw := buildHeader(ip4MinHeaderLen, ip4MinHeaderLen+8, nil)
	be.PutUint16(raw[ip4offFrag:], ip4FlagDF|ip4FlagMF)
	be.PutUint16(raw[ip4offChecksum:], 0)
	cksum := ip4Checksum(raw[:ip4MinHeaderLen])
	be.PutUint16(raw[ip4offChecksum:], ^cksum)

	pb := newPktBuf(raw)
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	if pb.refCount() != 0 {
		t.Fatalf("expected DF+MF combination to be rejected")
	}
}

func TestAcceptFrameRejectsMisalignedFragmentLength(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	ifc := testInterface()

	raw := buildHeader(ip4MinHeaderLen, ip4MinHeaderLen+5, nil)
	be.PutUint16(raw[ip4offFrag:], ip4FlagMF)
	be.PutUint16(raw[ip4offChecksum:], 0)
	cksum := ip4Checksum(raw[:ip4MinHeaderLen])
	be.PutUint16(raw[ip4offChecksum:], ^cksum)

	pb := newPktBuf(raw)
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	if pb.refCount() != 0 {
		t.Fatalf("expected a fragment length not a multiple of 8 to be rejected")
	}
}

func TestAcceptFrameRejectsSubnetBroadcastSource(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	ifc := testInterface()

	raw := buildHeader(ip4MinHeaderLen, ip4MinHeaderLen+4, nil)
	copy(raw[ip4offSrc:], []byte{10, 0, 0, 255}) // ifc's subnet-directed broadcast
	be.PutUint16(raw[ip4offChecksum:], 0)
	cksum := ip4Checksum(raw[:ip4MinHeaderLen])
	be.PutUint16(raw[ip4offChecksum:], ^cksum)

	pb := newPktBuf(raw)
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	if pb.refCount() != 0 {
		t.Fatalf("expected a source equal to the interface's subnet-directed broadcast address to be rejected")
	}
}

func TestAcceptFrameRejectsInvalidOptions(t *testing.T) {

	link := newFakeLinkService(nil)
	s := newService(link, nil)
	s.validOptions = func(options []byte) bool { return false }
	ifc := testInterface()

	pb := newPktBuf(buildHeader(ip4MinHeaderLen+4, ip4MinHeaderLen+4+4, []byte{1, 2, 3, 4}))
	acceptFrame(s, ifc, pb, LinkStatusOK, 0)

	if pb.refCount() != 0 {
		t.Fatalf("expected options rejected by validOptions to drop the datagram")
	}
}
