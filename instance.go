/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import "sync"

// InstanceState tracks an Instance's configuration lifecycle.
type InstanceState int

const (
	InstanceUnconfigured InstanceState = iota
	InstanceConfigured
	InstanceStopping
)

// ReceiveTimeout is a sum type for the receive-timeout configuration: an
// instance is either send-only (Disabled) or has a tick count to honor.
// The wire configuration still uses an all-ones sentinel value
// (receiveTimeoutDisabledSentinel) to mean "send-only"; it's converted to
// this proper variant once at configuration time rather than threaded
// through the packet path as a magic number.
type ReceiveTimeout struct {
	Disabled bool
	Ticks    int
}

const receiveTimeoutDisabledSentinel = 0xffffffff

// receiveTimeoutFromMicros converts the wire configuration value into the
// sum-type form, deriving ticks from microseconds using the aging
// timer's 1 Hz tick rate, so microseconds simply divide by 1e6.
func receiveTimeoutFromMicros(us uint32) ReceiveTimeout {
	if us == receiveTimeoutDisabledSentinel {
		return ReceiveTimeout{Disabled: true}
	}
	ticks := int(us / 1000000)
	if ticks == 0 && us > 0 {
		ticks = 1
	}
	return ReceiveTimeout{Ticks: ticks}
}

// InstanceConfig holds one client's registered filter configuration.
type InstanceConfig struct {
	AcceptAnyProtocol bool
	DefaultProtocol   byte
	AcceptICMPErrors  bool
	AcceptBroadcast   bool
	AcceptPromiscuous bool
	UseDefaultAddress bool
	StationAddress    IP4Addr
	SubnetMask        IP4Addr
	ReceiveTimeout    ReceiveTimeout
	TypeOfService     byte
	TimeToLive        byte
	Groups            []IP4Addr
}

// receiveToken is the client-supplied structure the core fills in and
// signals when a datagram is delivered.
type receiveToken struct {
	done    chan struct{}
	Status  DeliveryStatus
	Wrapper *RxWrapper
}

func newReceiveToken() *receiveToken {
	return &receiveToken{done: make(chan struct{})}
}

func (t *receiveToken) signal() {
	close(t.done)
}

// Wait blocks until the token is signaled, the shape an upper layer uses
// to await delivery.
func (t *receiveToken) Wait() {
	<-t.done
}

// Instance is a client session bound to an interface.
type Instance struct {
	Name   string
	Config InstanceConfig
	State  InstanceState
	ifc    *Interface

	received []*PktBuf
	rxTokens []*receiveToken

	deliveredMu sync.Mutex
	delivered   []*RxWrapper
}

func newInstance(name string, cfg InstanceConfig) *Instance {
	return &Instance{Name: name, Config: cfg, State: InstanceUnconfigured}
}

func (inst *Instance) configure() {
	inst.State = InstanceConfigured
}

func (inst *Instance) enqueueReceived(pb *PktBuf) {
	inst.received = append(inst.received, pb)
}

func (inst *Instance) hasReceived() bool {
	return len(inst.received) > 0
}

func (inst *Instance) popReceived() *PktBuf {
	pb := inst.received[0]
	inst.received = inst.received[1:]
	return pb
}

// submitToken enqueues a client receive token onto the FIFO of pending
// receive tokens.
func (inst *Instance) submitToken(t *receiveToken) {
	inst.rxTokens = append(inst.rxTokens, t)
}

func (inst *Instance) hasToken() bool {
	return len(inst.rxTokens) > 0
}

func (inst *Instance) popToken() *receiveToken {
	t := inst.rxTokens[0]
	inst.rxTokens = inst.rxTokens[1:]
	return t
}

func (inst *Instance) addDelivered(w *RxWrapper) {
	inst.deliveredMu.Lock()
	inst.delivered = append(inst.delivered, w)
	inst.deliveredMu.Unlock()
}

func (inst *Instance) removeDelivered(w *RxWrapper) {
	inst.deliveredMu.Lock()
	for i, cur := range inst.delivered {
		if cur == w {
			inst.delivered = append(inst.delivered[:i], inst.delivered[i+1:]...)
			break
		}
	}
	inst.deliveredMu.Unlock()
}

func (inst *Instance) isDelivered(w *RxWrapper) bool {
	inst.deliveredMu.Lock()
	defer inst.deliveredMu.Unlock()
	for _, cur := range inst.delivered {
		if cur == w {
			return true
		}
	}
	return false
}

// icmpClass distinguishes ICMP query messages from error messages, the
// table the Acceptance Filter consults to find the embedded datagram's
// real protocol.
type icmpClass int

const (
	icmpQueryMessage icmpClass = iota
	icmpErrorMessage
)

const (
	icmpTypeEchoReply      = 0
	icmpTypeDestUnreach    = 3
	icmpTypeSourceQuench   = 4
	icmpTypeRedirect       = 5
	icmpTypeEchoRequest    = 8
	icmpTypeTimeExceeded   = 11
	icmpTypeParamProblem   = 12
	icmpTypeTimestamp      = 13
	icmpTypeTimestampReply = 14
)

// classifyICMPType is a small fixed table of ICMP type -> query/error
// class.
func classifyICMPType(t byte) icmpClass {
	switch t {
	case icmpTypeDestUnreach, icmpTypeSourceQuench, icmpTypeRedirect,
		icmpTypeTimeExceeded, icmpTypeParamProblem:
		return icmpErrorMessage
	default:
		return icmpQueryMessage
	}
}

// acceptable is the per-instance acceptance filter. effectiveProto is
// the protocol to match against DefaultProtocol: for ICMP errors the
// caller has already dug out the protocol field of the embedded IP
// header (so a client registered for UDP sees UDP ICMP errors); for
// everything else it is simply head.Protocol. localCast is the
// interface-local cast type, computed by the demultiplexer and passed
// in explicitly rather than mutated onto shared packet state.
func (inst *Instance) acceptable(head *IP4Header, localCast CastType, isICMPError bool, effectiveProto byte) DeliveryStatus {
	if inst.State != InstanceConfigured {
		return StatusNotStarted
	}
	if inst.Config.ReceiveTimeout.Disabled {
		return StatusInvalidParameter
	}
	if inst.Config.AcceptPromiscuous {
		return StatusSuccess
	}

	if isICMPError && !inst.Config.AcceptICMPErrors {
		return StatusInvalidParameter
	}

	if !inst.Config.AcceptAnyProtocol && effectiveProto != inst.Config.DefaultProtocol {
		return StatusInvalidParameter
	}

	if localCast.isBroadcast() {
		if inst.Config.AcceptBroadcast {
			return StatusSuccess
		}
		return StatusInvalidParameter
	}

	if localCast == CastMulticast {
		if !inst.Config.UseDefaultAddress && inst.ifc != nil && inst.ifc.IP.IsZero() {
			return StatusSuccess
		}
		for _, g := range inst.Config.Groups {
			if g == head.Dst {
				return StatusSuccess
			}
		}
		return StatusInvalidParameter
	}

	return StatusSuccess
}
