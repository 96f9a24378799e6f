/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

const (
	ip4MinHeaderLen = 20
	ip4MaxHeaderLen = 60
	ip4MaxPacketLen = 0xffff

	// byte offsets within the fixed part of an IPv4 header.
	ip4offVer      = 0
	ip4offTOS      = 1
	ip4offTotalLen = 2
	ip4offID       = 4
	ip4offFrag     = 6
	ip4offTTL      = 8
	ip4offProto    = 9
	ip4offChecksum = 10
	ip4offSrc      = 12
	ip4offDst      = 16

	ip4FragOffsetMask = 0x1fff
	ip4FlagDF         = 0x4000
	ip4FlagMF         = 0x2000

	protoICMP = 1
	protoIGMP = 2
	protoTCP  = 6
	protoUDP  = 17
)

// IP4Header is the parsed, host-byte-order view of an IPv4 header that
// stays live inside the owning buffer as a back-pointer to a parsed
// header view.
type IP4Header struct {
	Version   byte
	HeaderLen byte // in bytes, not 32 bit words
	TOS       byte
	TotalLen  uint16
	ID        uint16
	DF        bool
	MF        bool
	FragOff   int // in bytes
	TTL       byte
	Protocol  byte
	Checksum  uint16
	Src       IP4Addr
	Dst       IP4Addr
	Options   []byte
}

// parseIP4Header reads the fixed 20 byte header plus any options out of
// raw (network byte order) without mutating raw, ahead of any trimming
// applied to the buffer.
func parseIP4Header(raw []byte) *IP4Header {
	h := &IP4Header{
		Version:   raw[ip4offVer] >> 4,
		HeaderLen: (raw[ip4offVer] & 0x0f) * 4,
		TOS:       raw[ip4offTOS],
		TotalLen:  be.Uint16(raw[ip4offTotalLen : ip4offTotalLen+2]),
		ID:        be.Uint16(raw[ip4offID : ip4offID+2]),
		TTL:       raw[ip4offTTL],
		Protocol:  raw[ip4offProto],
		Checksum:  be.Uint16(raw[ip4offChecksum : ip4offChecksum+2]),
		Src:       ip4AddrFromBytes(raw[ip4offSrc : ip4offSrc+4]),
		Dst:       ip4AddrFromBytes(raw[ip4offDst+0 : ip4offDst+4]),
	}
	frag := be.Uint16(raw[ip4offFrag : ip4offFrag+2])
	h.DF = frag&ip4FlagDF != 0
	h.MF = frag&ip4FlagMF != 0
	h.FragOff = int(frag&ip4FragOffsetMask) << 3
	if int(h.HeaderLen) > ip4MinHeaderLen && len(raw) >= int(h.HeaderLen) {
		h.Options = append([]byte(nil), raw[ip4MinHeaderLen:h.HeaderLen]...)
	}
	return h
}

// encode writes the header back out in network byte order, headerLen
// bytes total (fixed part plus options), for when the upper-layer-facing
// header needs to be rebuilt.
func (h *IP4Header) encode() []byte {
	out := make([]byte, int(h.HeaderLen))
	out[ip4offVer] = (h.Version << 4) | byte(h.HeaderLen/4)
	out[ip4offTOS] = h.TOS
	be.PutUint16(out[ip4offTotalLen:], h.TotalLen)
	be.PutUint16(out[ip4offID:], h.ID)
	frag := uint16(h.FragOff >> 3)
	if h.DF {
		frag |= ip4FlagDF
	}
	if h.MF {
		frag |= ip4FlagMF
	}
	be.PutUint16(out[ip4offFrag:], frag)
	out[ip4offTTL] = h.TTL
	out[ip4offProto] = h.Protocol
	be.PutUint16(out[ip4offChecksum:], h.Checksum)
	srcb, dstb := h.Src.bytes(), h.Dst.bytes()
	copy(out[ip4offSrc:], srcb[:])
	copy(out[16:20], dstb[:])
	copy(out[ip4MinHeaderLen:], h.Options)
	return out
}

// ip4Checksum computes the one's-complement-of-sum header checksum over
// buf (which should be the raw header bytes with the checksum field
// either zeroed, for computing a fresh checksum, or left as received,
// for verification).
func ip4Checksum(buf []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(be.Uint16(buf[i : i+2]))
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1]) << 8
	}
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

// verifyChecksum reports whether a received header's checksum is valid:
// the one's complement of the header sum must be zero; a carried
// checksum field of zero is treated as "sender omitted it" and accepted
// regardless of the computed sum.
func verifyChecksum(raw []byte, headerLen int) bool {
	carried := be.Uint16(raw[ip4offChecksum : ip4offChecksum+2])
	if carried == 0 {
		return true
	}
	return ^ip4Checksum(raw[:headerLen]) == 0
}
