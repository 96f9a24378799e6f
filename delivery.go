/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

// RxWrapper is the structure handed to a client through a signaled
// receive token: a snapshot of the header in wire format, the fragment
// table describing the payload's physical layout, and the status the
// Acceptance Filter or Demultiplexer recorded.
type RxWrapper struct {
	pb     *PktBuf
	inst   *Instance
	Header []byte
	Tail   []Fragment
	Status DeliveryStatus
}

// recycle is invoked by the upper layer once it is done with a delivered
// datagram, releasing the underlying buffer and removing the wrapper
// from its instance's delivered list exactly once.
func (w *RxWrapper) recycle() {
	w.inst.removeDelivered(w)
	w.pb.release()
}

// wrapRxData builds the wrapper Delivery hands to a client. The header
// is re-encoded from the parsed struct and the payload is described as
// a fragment table rather than re-prepended, so a caller that wants a
// contiguous view can build one on demand.
func wrapRxData(inst *Instance, pb *PktBuf) *RxWrapper {
	w := &RxWrapper{
		pb:     pb,
		inst:   inst,
		Header: pb.head.encode(),
		Tail:   pb.fragmentTable(),
		Status: pb.clip.Status,
	}
	inst.addDelivered(w)
	return w
}

// deliverPending pairs off pending tokens and received datagrams on an
// instance for as long as both queues are non-empty. A shared buffer
// (still referenced by another instance's fan-out) is duplicated into a
// fresh contiguous buffer before delivery so the client's view is never
// mutated out from under it by another instance's path: the bytes are
// copied, room for the header is prepended and the header copied in, then
// the header is head-trimmed back off so the duplicate's data view
// matches the original headless payload while still keeping the header
// physically addressable just ahead of it. An unshared buffer is
// delivered directly.
func deliverPending(inst *Instance) {
	for inst.hasToken() && inst.hasReceived() {
		pb := inst.popReceived()
		tok := inst.popToken()

		deliver := pb
		if pb.shared() {
			hdr := pb.head.encode()
			dup := pb.duplicate(0)
			dup.prependHeader(hdr)
			dup.trimHead(len(hdr))
			pb.release()
			deliver = dup
		}

		tok.Wrapper = wrapRxData(inst, deliver)
		tok.Status = deliver.clip.Status
		tok.signal()
	}
}
