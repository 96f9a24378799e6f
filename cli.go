/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	ddir = "/var/lib/ip4core"
)

var cli struct { // no locks, once setup in cli, never modified thereafter
	debuglist string
	trace     bool
	stamps    bool
	datadir   string
	ifname    string
	config    string
	maxbuf    int
	buflen    int
	// derived
	debug     map[string]bool
	log_level uint
}

func parse_cli() {

	flag.StringVar(&cli.debuglist, "debug", "", "enable debug in listed files, comma separated")
	flag.BoolVar(&cli.trace, "trace", false, "enable packet trace")
	flag.BoolVar(&cli.stamps, "time-stamps", false, "print logs with time stamps")
	flag.StringVar(&cli.datadir, "data", ddir, "data directory for the registration store")
	flag.StringVar(&cli.ifname, "interface", "", "network interface to receive on")
	flag.StringVar(&cli.config, "config", "", "optional JSON config file to watch for instance reconfiguration")
	flag.IntVar(&cli.maxbuf, "max-buffers", 64, "max number of packet buffers")
	flag.IntVar(&cli.buflen, "buffer-len", 9216, "size in bytes of each packet buffer (must fit the interface MTU)")
	flag.Usage = func() {
		toks := strings.Split(os.Args[0], "/")
		prog := toks[len(toks)-1]
		fmt.Println("Receive-side IPv4 core: validates, reassembles, and fans out")
		fmt.Println("incoming datagrams to registered client instances.")
		fmt.Println("")
		fmt.Println("   ", prog, "[FLAGS]")
		fmt.Println("")
		flag.PrintDefaults()
	}
	flag.Parse()

	cli.debug = make(map[string]bool)
	for _, fname := range strings.Split(cli.debuglist, ",") {
		if len(fname) == 0 {
			continue
		}
		bix := 0
		eix := len(fname)
		if ix := strings.LastIndex(fname, "/"); ix >= 0 {
			bix = ix + 1
		}
		if ix := strings.LastIndex(fname, "."); ix >= 0 {
			eix = ix
		}
		cli.debug[fname[bix:eix]] = true
	}

	if cli.trace {
		cli.log_level = TRACE
	} else {
		cli.log_level = INFO
	}
	log.set(cli.log_level, cli.stamps)

	if cli.ifname == "" {
		log.fatal("missing network interface (try -interface eth0)")
	}

	cli.datadir = absolute("data directory path", cli.datadir)
	if cli.config != "" {
		cli.config = absolute("config file path", cli.config)
	}

	if cli.maxbuf < 16 {
		cli.maxbuf = 16
	}
	if cli.maxbuf > 4096 {
		cli.maxbuf = 4096
	}
	if cli.buflen < ip4MinHeaderLen {
		log.fatal("buffer-len too small: %v", cli.buflen)
	}
}

func absolute(desc, path string) string {

	if len(path) == 0 {
		log.fatal("missing %v", desc)
	}

	apath, err := filepath.Abs(path)
	if err != nil {
		log.fatal("invalid %v: %v: %v", desc, path, err)
	}
	return apath
}
