/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

// LinkStatus reports the outcome of a lower-layer receive, the first
// argument the ingress validator is invoked with.
type LinkStatus int

const (
	LinkStatusOK LinkStatus = iota
	LinkStatusError
)

// acceptFrame is the ingress validator, the entry point the link layer
// invokes for every received frame. ifc is the interface the frame
// arrived on. On every path, pb is either handed onward (to the
// reassembler or a protocol handler, both of which take ownership) or
// released here. RestartReceive is called exactly once before
// returning, except when the link reported an error or the service is
// already destroying, in which case the frame is dropped without
// requesting another receive.
func acceptFrame(s *Service, ifc *Interface, pb *PktBuf, status LinkStatus, linkFlag uint32) {
	if status != LinkStatusOK || s.destroying() {
		pb.release()
		return
	}

	defer s.Link.RestartReceive()

	raw := pb.bytes()
	if len(raw) < ip4MinHeaderLen {
		pb.release()
		return
	}

	head := parseIP4Header(raw)

	if len(raw) > int(head.TotalLen) {
		pb.trimTail(len(raw) - int(head.TotalLen))
		raw = pb.bytes()
	}

	if head.Version != 4 ||
		int(head.HeaderLen) < ip4MinHeaderLen ||
		int(head.TotalLen) < int(head.HeaderLen) ||
		int(head.TotalLen) != len(raw) {
		pb.release()
		return
	}

	if !verifyChecksum(raw, int(head.HeaderLen)) {
		pb.release()
		return
	}

	pb.head = head
	pb.clip.LinkFlag = linkFlag

	if sourceRejected(ifc, head.Src) {
		pb.release()
		return
	}

	cast := globalCastType(ifc, head.Dst)
	if cast == CastNone {
		pb.release()
		return
	}

	start := head.FragOff
	end := start + (int(head.TotalLen) - int(head.HeaderLen))
	if end > ip4MaxPacketLen {
		pb.release()
		return
	}

	if int(head.HeaderLen) > ip4MinHeaderLen {
		if !s.validOptions(head.Options) {
			pb.release()
			return
		}
	}

	pb.trimHead(int(head.HeaderLen))
	pb.clip.Start = start
	pb.clip.Length = end - start
	pb.clip.End = end
	pb.clip.CastType = cast

	fragmented := head.MF || head.FragOff != 0
	if fragmented {
		if head.DF {
			pb.release()
			return
		}
		if head.MF && pb.clip.Length%8 != 0 {
			pb.release()
			return
		}

		whole := s.Assemble.reassemble(pb)
		if whole == nil {
			return
		}
		dispatch(s, whole)
		return
	}

	dispatch(s, pb)
}

// validOptions is the options validity predicate, treated as an
// external collaborator beyond basic structural sanity: option parsing
// itself is out of scope here.
func validOptions(options []byte) bool {
	return len(options)%4 == 0
}

// dispatch implements Protocol dispatch: ICMP and
// IGMP go to their own handlers, everything else to the Demultiplexer.
// Buffer ownership transfers to the callee in every branch.
func dispatch(s *Service, pb *PktBuf) {
	switch pb.head.Protocol {
	case protoICMP:
		icmpHandle(s, pb)
	case protoIGMP:
		igmpHandle(s, pb)
	default:
		demultiplex(s, pb)
	}
}
