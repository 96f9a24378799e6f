/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import (
	"os"
	"os/signal"
	"syscall"
)

var goexit chan (string)

func catch_signals() {

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigchan

	signal.Stop(sigchan)
	goexit <- "signal(" + sig.String() + ")"
}

func main() {

	parse_cli() // also initializes log

	log.info("START ip4core")

	goexit = make(chan string)
	go catch_signals()

	pool := newBufPool(cli.buflen, cli.maxbuf)

	store, err := openRegistrationStore(cli.datadir)
	if err != nil {
		log.fatal("cannot open registration store: %v", err)
	}

	restored, err := store.loadAll()
	if err != nil {
		log.fatal("cannot restore registration store: %v", err)
	}

	ifc := &Interface{IP: ip4AddrAny, Netmask: ip4AddrAny, Configured: true}

	svc := newService(nil, pool)
	svc.addInterface(ifc)

	byName := make(map[string]*Instance)
	for name, cfg := range restored {
		inst := newInstance(name, cfg)
		inst.configure()
		svc.addInstance(inst, ifc)
		byName[name] = inst
		log.info("restored instance configuration: %v", name)
	}

	link, err := newRawLinkService(cli.ifname, pool, func(pb *PktBuf) {
		acceptFrame(svc, ifc, pb, LinkStatusOK, 0)
	})
	if err != nil {
		log.fatal("cannot open link service on %v: %v", cli.ifname, err)
	}
	svc.Link = link

	if cli.config != "" {
		_, err := newConfigWatcher(cli.config, svc, byName)
		if err != nil {
			log.err("cannot watch config file %v: %v", cli.config, err)
		}
	}

	stop := make(chan struct{})
	go runAgingTimer(svc, nil, stop)

	msg := <-goexit
	close(stop)
	store.close()
	log.info("STOP ip4core: %v", msg)
}
