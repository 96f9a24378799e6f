/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import (
	prng "math/rand"
	"time"
)

const (
	agingTick = 1000 // [ms] nominal 1 Hz
	agingFuzz = 37
)

// runAgingTimer drives the aging pass on a fixed tick, with a random
// fuzz added to the sleep so that every daemon on a LAN doesn't tick in
// lockstep. It runs until stop is closed.
func runAgingTimer(s *Service, outboundAging func(), stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(time.Duration(agingTick-agingFuzz/2+prng.Intn(agingFuzz)) * time.Millisecond):
			timerTick(s)
			if outboundAging != nil {
				outboundAging()
			}
		}
	}
}

// timerTick runs one aging pass: assembly entries and per-instance
// received queues both age out on cooperative tick counters. A life of
// zero never expires, so only strictly positive lives are decremented.
func timerTick(s *Service) {
	s.Assemble.forEach(func(e *AssembleEntry) bool {
		if e.life <= 0 {
			return false
		}
		e.life--
		if e.life == 0 {
			e.free()
			return true
		}
		return false
	})

	for _, inst := range s.allInstances() {
		kept := inst.received[:0]
		for _, pb := range inst.received {
			if pb.clip.Life == 0 {
				kept = append(kept, pb)
				continue
			}
			pb.clip.Life--
			if pb.clip.Life == 0 {
				pb.release()
				continue
			}
			kept = append(kept, pb)
		}
		inst.received = kept
	}
}
