/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import (
	"bytes"
	"testing"
)

func fragHeader(id uint16, start, length int, mf bool) *IP4Header {
	return &IP4Header{
		Version:   4,
		HeaderLen: ip4MinHeaderLen,
		ID:        id,
		Protocol:  protoUDP,
		Src:       ip4AddrFromBytes([]byte{10, 0, 0, 3}),
		Dst:       ip4AddrFromBytes([]byte{10, 0, 0, 2}),
		MF:        mf,
		FragOff:   start,
	}
}

func fragBuf(id uint16, start int, data []byte, mf bool) *PktBuf {
	pb := newPktBuf(append([]byte(nil), data...))
	pb.head = fragHeader(id, start, len(data), mf)
	pb.clip = ClipInfo{Start: start, Length: len(data), End: start + len(data)}
	return pb
}

func seq(from, to byte) []byte {
	out := make([]byte, 0, int(to)-int(from)+1)
	for b := from; ; b++ {
		out = append(out, b)
		if b == to {
			break
		}
	}
	return out
}

func TestReassembleInOrder(t *testing.T) {

	at := newAssembleTable()

	if got := at.reassemble(fragBuf(0x2000, 0, seq(0x00, 0x07), true)); got != nil {
		t.Fatalf("first fragment completed prematurely")
	}
	if got := at.reassemble(fragBuf(0x2000, 8, seq(0x08, 0x0f), true)); got != nil {
		t.Fatalf("second fragment completed prematurely")
	}
	done := at.reassemble(fragBuf(0x2000, 16, seq(0x10, 0x17), false))
	if done == nil {
		t.Fatalf("expected completion on last fragment")
	}
	if !bytes.Equal(done.bytes(), seq(0x00, 0x17)) {
		t.Fatalf("reassembled payload mismatch: got %x", done.bytes())
	}
}

func TestReassembleOutOfOrderWithDuplicate(t *testing.T) {

	at := newAssembleTable()

	at.reassemble(fragBuf(0x2001, 8, seq(0x08, 0x0f), true))
	at.reassemble(fragBuf(0x2001, 16, seq(0x10, 0x17), false))
	if done := at.reassemble(fragBuf(0x2001, 8, seq(0x08, 0x0f), true)); done != nil {
		t.Fatalf("duplicate fragment should not complete the datagram")
	}
	done := at.reassemble(fragBuf(0x2001, 0, seq(0x00, 0x07), true))
	if done == nil {
		t.Fatalf("expected completion after first fragment fills the gap")
	}
	if !bytes.Equal(done.bytes(), seq(0x00, 0x17)) {
		t.Fatalf("reassembled payload mismatch: got %x", done.bytes())
	}
}

// An overlapping fragment never overwrites bytes already claimed by an
// earlier-arriving fragment: the new fragment is head-trimmed against its
// predecessor (see the left-overlap resolution rule and the "likely bug
// in source" design note about which neighbor is the true predecessor).
func TestReassembleOverlapKeepsEarlierBytes(t *testing.T) {

	at := newAssembleTable()

	a := bytes.Repeat([]byte{'A'}, 16)
	b := bytes.Repeat([]byte{'B'}, 16)
	c := bytes.Repeat([]byte{'C'}, 8)

	at.reassemble(fragBuf(0x2002, 0, a, true))
	at.reassemble(fragBuf(0x2002, 8, b, true))
	done := at.reassemble(fragBuf(0x2002, 24, c, false))
	if done == nil {
		t.Fatalf("expected completion")
	}

	want := append(append(bytes.Repeat([]byte{'A'}, 16), bytes.Repeat([]byte{'B'}, 8)...), c...)
	if !bytes.Equal(done.bytes(), want) {
		t.Fatalf("overlap resolution mismatch:\ngot  %x\nwant %x", done.bytes(), want)
	}
}

func TestReassembleAging(t *testing.T) {

	svc := newService(newFakeLinkService(nil), nil)
	at := svc.Assemble

	at.reassemble(fragBuf(0x2003, 0, seq(0x00, 0x07), true))

	for i := 0; i < fragmentLife; i++ {
		timerTick(svc)
	}

	_, _, entry := at.lookup(assembleKey{dst: ip4AddrFromBytes([]byte{10, 0, 0, 2}), src: ip4AddrFromBytes([]byte{10, 0, 0, 3}), id: 0x2003, protocol: protoUDP})
	if entry != nil {
		t.Fatalf("expected assembly entry to have aged out after %v ticks", fragmentLife)
	}

	done := at.reassemble(fragBuf(0x2003, 8, seq(0x08, 0x0f), true))
	if done != nil {
		t.Fatalf("fresh arrival after aging should not complete immediately")
	}
}
