/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

// demultiplex fans a received datagram out to every accepting instance
// in two passes: pass one asks every instance on every configured
// interface whether it accepts the datagram, without touching any
// instance's queue; pass two hands a cloned buffer to each instance
// that said yes. The caller's own reference to pb is always consumed.
func demultiplex(s *Service, pb *PktBuf) DeliveryStatus {
	head := pb.head
	raw := pb.bytes()
	proto, isErr := effectiveProtocol(s.icmpClass, head, raw)

	type acceptor struct {
		inst *Instance
		cast CastType
	}
	var accepted []acceptor

	for _, ifc := range s.configuredInterfaces() {
		cast := interfaceLocalCast(ifc, head.Dst, pb.clip.CastType)
		if cast == CastNone {
			continue
		}
		for _, inst := range ifc.Instances {
			if inst.acceptable(head, cast, isErr, proto) == StatusSuccess {
				accepted = append(accepted, acceptor{inst, cast})
			}
		}
	}

	if len(accepted) == 0 {
		pb.release()
		return StatusNotFound
	}

	for i, a := range accepted {
		var buf *PktBuf
		if i == len(accepted)-1 {
			buf = pb
		} else {
			buf = pb.clone()
		}
		buf.clip.CastType = a.cast
		if !a.inst.Config.ReceiveTimeout.Disabled {
			buf.clip.Life = a.inst.Config.ReceiveTimeout.Ticks
		}
		a.inst.enqueueReceived(buf)
		deliverPending(a.inst)
	}

	return StatusSuccess
}
