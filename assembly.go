/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

// assemblyHashBuckets is the fixed bucket count for the assembly table.
// 127 is a prime chosen over a power of two to spread the XOR-folded
// hash of (dst, src, id, protocol) more evenly across buckets.
const assemblyHashBuckets = 127

// fragmentLife is the number of aging-timer ticks an assembly entry
// survives without forward progress before it is discarded. The aging
// timer runs at 1 Hz (see timer.go), so 120 ticks is 120 seconds.
const fragmentLife = 120

// assembleKey is the identity of one in-flight reassembly.
type assembleKey struct {
	dst, src IP4Addr
	id       uint16
	protocol byte
}

func (k assembleKey) hash() int {
	h := uint32(k.dst) ^ uint32(k.src) ^ uint32(k.id) ^ uint32(k.protocol)
	h ^= h >> 16
	return int(h % assemblyHashBuckets)
}

// AssembleEntry is one partially assembled datagram.
type AssembleEntry struct {
	key assembleKey

	fragments []*PktBuf // ordered by clip.Start, pairwise non-overlapping
	totalLen  int       // 0 until the last fragment is observed
	curLen    int       // sum of clip.Length over fragments currently listed
	head      *IP4Header
	savedInfo ClipInfo
	life      int
}

func newAssembleEntry(k assembleKey) *AssembleEntry {
	return &AssembleEntry{key: k, life: fragmentLife}
}

// free releases every fragment still owned by this entry, used both when
// an entry times out and when reassembly discovers the completed
// datagram is malformed.
func (e *AssembleEntry) free() {
	for _, f := range e.fragments {
		f.release()
	}
	e.fragments = nil
}

// AssembleTable is the hash-bucketed set of in-flight reassembly entries.
type AssembleTable struct {
	buckets [assemblyHashBuckets][]*AssembleEntry
}

func newAssembleTable() *AssembleTable {
	return &AssembleTable{}
}

// lookup performs a linear scan of one bucket for a matching entry.
func (t *AssembleTable) lookup(k assembleKey) (idx int, pos int, entry *AssembleEntry) {
	idx = k.hash()
	for i, e := range t.buckets[idx] {
		if e.key == k {
			return idx, i, e
		}
	}
	return idx, -1, nil
}

func (t *AssembleTable) insert(e *AssembleEntry) {
	idx := e.key.hash()
	t.buckets[idx] = append(t.buckets[idx], e)
}

func (t *AssembleTable) remove(idx, pos int) {
	b := t.buckets[idx]
	t.buckets[idx] = append(b[:pos], b[pos+1:]...)
}

// forEach walks every live entry, used by the aging timer. The callback
// may request removal by returning true.
func (t *AssembleTable) forEach(fn func(e *AssembleEntry) (remove bool)) {
	for idx := range t.buckets {
		b := t.buckets[idx]
		out := b[:0]
		for _, e := range b {
			if fn(e) {
				continue
			}
			out = append(out, e)
		}
		t.buckets[idx] = out
	}
}

// reassemble is the fragment reassembler. frag's
// ClipInfo must already carry Start/Length/End and frag.head must be the
// fragment's own parsed header (used only when Start == 0 or to read
// Protocol/MF for the identity key and completion test). It returns the
// completed datagram, or nil if reassembly is still pending (ownership of
// frag is always consumed: it is either linked into an entry, or
// released).
func (t *AssembleTable) reassemble(frag *PktBuf) *PktBuf {
	h := frag.head
	k := assembleKey{dst: h.Dst, src: h.Src, id: h.ID, protocol: h.Protocol}

	idx, pos, entry := t.lookup(k)
	if entry == nil {
		entry = newAssembleEntry(k)
		t.insert(entry)
		pos = len(t.buckets[idx]) - 1
	}

	this := frag.clip

	// Find the insertion point: the first fragment whose Start exceeds
	// this fragment's Start.
	insertAt := len(entry.fragments)
	for i, f := range entry.fragments {
		if this.Start < f.clip.Start {
			insertAt = i
			break
		}
	}

	// Left-overlap resolution against the predecessor.
	if insertAt > 0 {
		prev := entry.fragments[insertAt-1]
		if this.Start < prev.clip.End {
			if this.End <= prev.clip.End {
				frag.release()
				return nil
			}
			trimFragmentHead(frag, prev.clip.End)
			this = frag.clip
		}
	}

	// Insert, then resolve right-overlap against successors.
	entry.fragments = insertSlice(entry.fragments, insertAt, frag)

	i := insertAt + 1
	for i < len(entry.fragments) {
		succ := entry.fragments[i]
		if succ.clip.End <= this.End {
			entry.curLen -= succ.clip.Length
			succ.release()
			entry.fragments = append(entry.fragments[:i], entry.fragments[i+1:]...)
			continue
		}
		if succ.clip.Start < this.End {
			if this.Start == succ.clip.Start {
				entry.fragments = append(entry.fragments[:insertAt], entry.fragments[insertAt+1:]...)
				frag.release()
				return nil
			}
			trimFragmentTail(frag, succ.clip.Start)
			this = frag.clip
		}
		break
	}

	entry.curLen += this.Length

	if this.Start == 0 {
		entry.head = frag.head
		entry.savedInfo = this
	}

	if !frag.head.MF && entry.totalLen == 0 {
		entry.totalLen = this.End
	}

	if entry.totalLen != 0 && entry.curLen >= entry.totalLen {
		t.remove(idx, pos)

		last := entry.fragments[len(entry.fragments)-1]
		if last.clip.End != entry.totalLen {
			entry.free()
			return nil
		}

		return materializeDatagram(entry)
	}

	return nil
}

// trimFragmentHead head-trims frag so its Start becomes newStart,
// updating its ClipInfo.
func trimFragmentHead(frag *PktBuf, newStart int) {
	n := newStart - frag.clip.Start
	frag.trimHead(n)
	frag.clip.Start = newStart
	frag.clip.Length -= n
}

// trimFragmentTail tail-trims frag so its End becomes newEnd, used by
// right-overlap resolution.
func trimFragmentTail(frag *PktBuf, newEnd int) {
	n := frag.clip.End - newEnd
	frag.trimTail(n)
	frag.clip.End = newEnd
	frag.clip.Length -= n
}

func insertSlice(s []*PktBuf, at int, v *PktBuf) []*PktBuf {
	s = append(s, nil)
	copy(s[at+1:], s[at:])
	s[at] = v
	return s
}

// materializeDatagram concatenates an entry's fragments into one
// logical, freshly backed buffer. Fragment bytes are copied rather than
// aliased and the fragments are released immediately afterward: their
// storage comes from a recycling bufPool, whose reuse discipline assumes
// a returned buffer has no other live reader.
func materializeDatagram(entry *AssembleEntry) *PktBuf {
	data := make([]byte, entry.totalLen)
	for _, f := range entry.fragments {
		copy(data[f.clip.Start:f.clip.End], f.bytes())
	}

	refs := 1
	out := &PktBuf{
		blocks: []blockRef{{data: data, off: 0, end: len(data)}},
		refs:   &refs,
		head:   entry.head,
		clip:   entry.savedInfo,
	}
	out.clip.Start = 0
	out.clip.End = entry.totalLen
	out.clip.Length = entry.totalLen

	entry.free()
	return out
}
