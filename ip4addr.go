/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import "fmt"

// IP4Addr is a 32 bit IPv4 address held in host byte order. Keeping it a
// plain value type, rather than reaching for net.IP, avoids an
// allocation on every header parse.
type IP4Addr uint32

const (
	ip4AddrAny       IP4Addr = 0
	ip4AddrBroadcast IP4Addr = 0xffffffff
)

func ip4AddrFromBytes(b []byte) IP4Addr {
	return IP4Addr(be.Uint32(b))
}

func (a IP4Addr) bytes() [4]byte {
	var b [4]byte
	be.PutUint32(b[:], uint32(a))
	return b
}

func (a IP4Addr) String() string {
	b := a.bytes()
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func (a IP4Addr) IsZero() bool {
	return a == ip4AddrAny
}

func (a IP4Addr) IsLimitedBroadcast() bool {
	return a == ip4AddrBroadcast
}

// IsMulticast reports whether a falls in 224.0.0.0/4.
func (a IP4Addr) IsMulticast() bool {
	return a&0xf0000000 == 0xe0000000
}

func (a IP4Addr) Mask(netmask IP4Addr) IP4Addr {
	return a & netmask
}

// DirectedBroadcast computes the subnet's directed broadcast address given
// the subnet's netmask, eg. 10.0.0.2 with mask 255.255.255.0 yields
// 10.0.0.255.
func (a IP4Addr) DirectedBroadcast(netmask IP4Addr) IP4Addr {
	return (a & netmask) | ^netmask
}

func (a IP4Addr) SameSubnet(b, netmask IP4Addr) bool {
	return a.Mask(netmask) == b.Mask(netmask)
}
