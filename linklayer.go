/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import (
	"net"

	"github.com/mdlayher/raw"
	"golang.org/x/net/bpf"
)

const (
	etherTypeIPv4  = 0x0800
	etherHeaderLen = 6 + 6 + 2
)

// LinkService is the external "link layer" collaborator the core calls
// back into after every received frame is consumed, so the next one can
// be requested, and through which it hands outbound datagrams to the
// wire. Kept as a small interface so the core package never imports
// mdlayher/raw directly; only the concrete adapter below and the fake
// used in tests do.
type LinkService interface {
	// RestartReceive posts a request for one more frame. The ingress
	// validator calls this exactly once on every code path, whether the
	// frame it just processed was accepted, rejected, or handed off for
	// reassembly.
	RestartReceive()

	// Transmit frames pb's IPv4 bytes behind an Ethernet header
	// addressed to dst and sends it. pb is released once the frame has
	// been handed to the wire (or failed to be).
	Transmit(pb *PktBuf, dst net.HardwareAddr) error
}

// rawLinkService is the production LinkService: a goroutine reading a
// raw AF_PACKET socket and handing frames back to the core over a
// callback instead of sharing state directly.
type rawLinkService struct {
	conn *raw.Conn
	pool *bufPool
	src  net.HardwareAddr

	accept func(pb *PktBuf)

	restart chan struct{}
}

// newRawLinkService opens a raw socket on ifaceName and returns a
// LinkService that reads Ethernet-framed IPv4 datagrams off it,
// discarding the Ethernet header, and hands each one to accept as a
// freshly allocated *PktBuf holding just the IPv4 datagram. accept is
// called from the receiver goroutine; it must not block for long, since
// it runs the ingress validator inline.
func newRawLinkService(ifaceName string, pool *bufPool, accept func(pb *PktBuf)) (*rawLinkService, error) {
	ifc, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	conn, err := raw.ListenPacket(ifc, etherTypeIPv4, nil)
	if err != nil {
		return nil, err
	}

	// Restrict the socket to IPv4 frames at the kernel level; mirrors
	// raw.ListenPacket's etherType filtering with an explicit classic
	// BPF program for portability across the raw package's backends.
	filter, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 1},
		bpf.RetConstant{Val: 262144},
		bpf.RetConstant{Val: 0},
	})
	if err == nil {
		_ = conn.SetBPF(filter)
	}

	ls := &rawLinkService{
		conn:    conn,
		pool:    pool,
		src:     ifc.HardwareAddr,
		accept:  accept,
		restart: make(chan struct{}, 1),
	}
	ls.restart <- struct{}{} // prime the first receive
	go ls.receiver()
	return ls, nil
}

func (ls *rawLinkService) RestartReceive() {
	select {
	case ls.restart <- struct{}{}:
	default:
	}
}

func (ls *rawLinkService) receiver() {
	frame := make([]byte, 65535)
	for range ls.restart {
		n, _, err := ls.conn.ReadFrom(frame)
		if err != nil {
			log.err("link: read failed: %v", err)
			continue
		}
		if n <= etherHeaderLen {
			continue
		}

		pb := ls.pool.get()
		pb.blocks[0].off = 0
		pb.blocks[0].end = n - etherHeaderLen
		copy(pb.blocks[0].data, frame[etherHeaderLen:n])

		ls.accept(pb)
	}
}

// buildEthernetFrame wraps payload in an IPv4 Ethernet header addressed
// from src to dst.
func buildEthernetFrame(dst, src net.HardwareAddr, payload []byte) []byte {
	frame := make([]byte, etherHeaderLen+len(payload))
	copy(frame[0:6], dst)
	copy(frame[6:12], src)
	be.PutUint16(frame[12:14], etherTypeIPv4)
	copy(frame[etherHeaderLen:], payload)
	return frame
}

// Transmit wraps pb's bytes in an Ethernet header addressed to dst and
// writes the frame to the raw socket. pb is always released, whether
// the write succeeds or not.
func (ls *rawLinkService) Transmit(pb *PktBuf, dst net.HardwareAddr) error {
	defer pb.release()

	frame := buildEthernetFrame(dst, ls.src, pb.bytes())

	_, err := ls.conn.WriteTo(frame, &raw.Addr{HardwareAddr: dst})
	if err != nil {
		log.err("link: write failed: %v", err)
	}
	return err
}

func (ls *rawLinkService) close() error {
	return ls.conn.Close()
}

// fakeLinkService is the in-memory LinkService used by tests:
// RestartReceive just counts calls so a test can assert the
// restart-exactly-once discipline, and push feeds a frame straight into
// the accept callback synchronously.
type fakeLinkService struct {
	accept   func(pb *PktBuf)
	restarts int

	sent []fakeTransmission
}

// fakeTransmission records one call to Transmit for a test to inspect.
type fakeTransmission struct {
	dst  net.HardwareAddr
	data []byte
}

func newFakeLinkService(accept func(pb *PktBuf)) *fakeLinkService {
	return &fakeLinkService{accept: accept}
}

func (ls *fakeLinkService) RestartReceive() {
	ls.restarts++
}

func (ls *fakeLinkService) Transmit(pb *PktBuf, dst net.HardwareAddr) error {
	ls.sent = append(ls.sent, fakeTransmission{dst: dst, data: append([]byte(nil), pb.bytes()...)})
	pb.release()
	return nil
}

func (ls *fakeLinkService) push(pb *PktBuf) {
	ls.accept(pb)
}
