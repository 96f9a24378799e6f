/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegistrationStoreRoundTrip(t *testing.T) {

	dir := t.TempDir()
	rs, err := openRegistrationStore(dir)
	if err != nil {
		t.Fatalf("openRegistrationStore: %v", err)
	}
	defer rs.close()

	cfg := InstanceConfig{
		AcceptAnyProtocol: true,
		AcceptBroadcast:   true,
		StationAddress:    ip4AddrFromBytes([]byte{10, 0, 0, 2}),
		SubnetMask:        ip4AddrFromBytes([]byte{255, 255, 255, 0}),
		ReceiveTimeout:    ReceiveTimeout{Ticks: 30},
		Groups:            []IP4Addr{ip4AddrFromBytes([]byte{224, 0, 0, 5})},
	}

	if err := rs.save("client-a", cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := rs.loadAll()
	if err != nil {
		t.Fatalf("loadAll: %v", err)
	}
	got, ok := all["client-a"]
	if !ok {
		t.Fatalf("expected client-a to be persisted")
	}
	if got.StationAddress != cfg.StationAddress || got.ReceiveTimeout.Ticks != 30 || len(got.Groups) != 1 {
		t.Fatalf("round-tripped config mismatch: got %+v", got)
	}

	if err := rs.remove("client-a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	all, err = rs.loadAll()
	if err != nil {
		t.Fatalf("loadAll after remove: %v", err)
	}
	if _, ok := all["client-a"]; ok {
		t.Fatalf("expected client-a to be gone after remove")
	}
}

func TestRegistrationStoreDisabledReceiveTimeoutSentinel(t *testing.T) {

	dir := t.TempDir()
	rs, err := openRegistrationStore(dir)
	if err != nil {
		t.Fatalf("openRegistrationStore: %v", err)
	}
	defer rs.close()

	cfg := InstanceConfig{AcceptAnyProtocol: true, ReceiveTimeout: ReceiveTimeout{Disabled: true}}
	if err := rs.save("send-only", cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := rs.loadAll()
	if err != nil {
		t.Fatalf("loadAll: %v", err)
	}
	if !all["send-only"].ReceiveTimeout.Disabled {
		t.Fatalf("expected send-only instance to round-trip as receive-disabled")
	}
}

func TestConfigWatcherReload(t *testing.T) {

	dir := t.TempDir()
	configPath := filepath.Join(dir, "instances.json")

	initial := map[string]storedConfig{
		"client-a": toStoredConfig(InstanceConfig{AcceptAnyProtocol: true}),
	}
	data, _ := json.Marshal(initial)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	inst := newInstance("client-a", InstanceConfig{AcceptAnyProtocol: true})
	inst.configure()

	s := newService(newFakeLinkService(nil), nil)
	cw, err := newConfigWatcher(configPath, s, map[string]*Instance{"client-a": inst})
	if err != nil {
		t.Fatalf("newConfigWatcher: %v", err)
	}
	defer cw.close()

	updated := map[string]storedConfig{
		"client-a": toStoredConfig(InstanceConfig{AcceptAnyProtocol: true, AcceptBroadcast: true}),
	}
	data, _ = json.Marshal(updated)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !inst.Config.AcceptBroadcast && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !inst.Config.AcceptBroadcast {
		t.Fatalf("expected config watcher to pick up the updated file")
	}
}
