/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import "sync"

// ServiceState tracks whether a Service is still accepting work.
type ServiceState int

const (
	ServiceRunning ServiceState = iota
	ServiceDestroying
)

// Interface binds an address, netmask, and promiscuous flag, grouping the
// instances that share it.
type Interface struct {
	IP          IP4Addr
	Netmask     IP4Addr
	Promiscuous bool
	Configured  bool
	Instances   []*Instance
}

// Service is the process-wide singleton per driver binding: the
// assembly table, the interfaces, every child instance, and a handle to
// the link layer for restarting receives.
type Service struct {
	mu sync.Mutex

	State      ServiceState
	Assemble   *AssembleTable
	Interfaces []*Interface
	Instances  []*Instance

	Link LinkService
	Pool *bufPool

	// icmpClass classifies ICMP types into query vs. error for the
	// acceptance filter; injected so the dispatch stub and the filter
	// share one table.
	icmpClass func(icmpType byte) icmpClass

	// validOptions is the options validity predicate the ingress
	// validator calls on any header carrying options. Option parsing
	// itself stays an external collaborator beyond this predicate.
	validOptions func(options []byte) bool
}

func newService(link LinkService, pool *bufPool) *Service {
	return &Service{
		State:        ServiceRunning,
		Assemble:     newAssembleTable(),
		Link:         link,
		Pool:         pool,
		icmpClass:    classifyICMPType,
		validOptions: validOptions,
	}
}

func (s *Service) destroying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State == ServiceDestroying
}

func (s *Service) addInterface(ifc *Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Interfaces = append(s.Interfaces, ifc)
}

func (s *Service) addInstance(inst *Instance, ifc *Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Instances = append(s.Instances, inst)
	ifc.Instances = append(ifc.Instances, inst)
	inst.ifc = ifc
}

func (s *Service) configuredInterfaces() []*Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Interface, 0, len(s.Interfaces))
	for _, ifc := range s.Interfaces {
		if ifc.Configured {
			out = append(out, ifc)
		}
	}
	return out
}

func (s *Service) allInstances() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Instance(nil), s.Instances...)
}
