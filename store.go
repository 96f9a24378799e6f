/* Copyright (c) 2018-2021 Waldemar Augustyn */

package main

import (
	"encoding/json"
	"os"
	"path"
	"time"

	"github.com/fsnotify/fsnotify"
	bolt "go.etcd.io/bbolt"
)

const (
	storeDBName = "instances.db"
	storeBucket = "instance"
)

// RegistrationStore persists per-instance filter configuration across
// restarts, the same split this code keeps between volatile packet-path
// state and the bbolt-backed address records elsewhere: reassembly and
// receive-queue state are never written here, only the ambient
// configuration layer around the core.
type RegistrationStore struct {
	db *bolt.DB
}

func openRegistrationStore(datadir string) (*RegistrationStore, error) {
	if err := os.MkdirAll(datadir, 0775); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path.Join(datadir, storeDBName), 0664, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(storeBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &RegistrationStore{db: db}, nil
}

func (rs *RegistrationStore) close() error {
	return rs.db.Close()
}

// storedConfig is the JSON-on-disk shape of one instance's configuration,
// kept separate from InstanceConfig so the wire/store format can evolve
// without reshaping the live struct the Acceptance Filter reads.
type storedConfig struct {
	AcceptAnyProtocol bool     `json:"accept_any_protocol"`
	DefaultProtocol   byte     `json:"default_protocol"`
	AcceptICMPErrors  bool     `json:"accept_icmp_errors"`
	AcceptBroadcast   bool     `json:"accept_broadcast"`
	AcceptPromiscuous bool     `json:"accept_promiscuous"`
	UseDefaultAddress bool     `json:"use_default_address"`
	StationAddress    uint32   `json:"station_address"`
	SubnetMask        uint32   `json:"subnet_mask"`
	ReceiveTimeoutUS  uint32   `json:"receive_timeout_us"`
	TypeOfService     byte     `json:"type_of_service"`
	TimeToLive        byte     `json:"time_to_live"`
	Groups            []uint32 `json:"group_list"`
}

func toStoredConfig(cfg InstanceConfig) storedConfig {
	us := uint32(receiveTimeoutDisabledSentinel)
	if !cfg.ReceiveTimeout.Disabled {
		us = uint32(cfg.ReceiveTimeout.Ticks) * 1000000
	}
	groups := make([]uint32, len(cfg.Groups))
	for i, g := range cfg.Groups {
		groups[i] = uint32(g)
	}
	return storedConfig{
		AcceptAnyProtocol: cfg.AcceptAnyProtocol,
		DefaultProtocol:   cfg.DefaultProtocol,
		AcceptICMPErrors:  cfg.AcceptICMPErrors,
		AcceptBroadcast:   cfg.AcceptBroadcast,
		AcceptPromiscuous: cfg.AcceptPromiscuous,
		UseDefaultAddress: cfg.UseDefaultAddress,
		StationAddress:    uint32(cfg.StationAddress),
		SubnetMask:        uint32(cfg.SubnetMask),
		ReceiveTimeoutUS:  us,
		TypeOfService:     cfg.TypeOfService,
		TimeToLive:        cfg.TimeToLive,
		Groups:            groups,
	}
}

func fromStoredConfig(sc storedConfig) InstanceConfig {
	groups := make([]IP4Addr, len(sc.Groups))
	for i, g := range sc.Groups {
		groups[i] = IP4Addr(g)
	}
	return InstanceConfig{
		AcceptAnyProtocol: sc.AcceptAnyProtocol,
		DefaultProtocol:   sc.DefaultProtocol,
		AcceptICMPErrors:  sc.AcceptICMPErrors,
		AcceptBroadcast:   sc.AcceptBroadcast,
		AcceptPromiscuous: sc.AcceptPromiscuous,
		UseDefaultAddress: sc.UseDefaultAddress,
		StationAddress:    IP4Addr(sc.StationAddress),
		SubnetMask:        IP4Addr(sc.SubnetMask),
		ReceiveTimeout:    receiveTimeoutFromMicros(sc.ReceiveTimeoutUS),
		TypeOfService:     sc.TypeOfService,
		TimeToLive:        sc.TimeToLive,
		Groups:            groups,
	}
}

// save persists one instance's configuration, keyed by name.
func (rs *RegistrationStore) save(name string, cfg InstanceConfig) error {
	data, err := json.Marshal(toStoredConfig(cfg))
	if err != nil {
		return err
	}
	return rs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(storeBucket)).Put([]byte(name), data)
	})
}

func (rs *RegistrationStore) remove(name string) error {
	return rs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(storeBucket)).Delete([]byte(name))
	})
}

// loadAll restores every persisted instance configuration, used on
// daemon startup to recreate instances without a management-plane round
// trip.
func (rs *RegistrationStore) loadAll() (map[string]InstanceConfig, error) {
	out := make(map[string]InstanceConfig)
	err := rs.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(storeBucket)).ForEach(func(key, val []byte) error {
			var sc storedConfig
			if err := json.Unmarshal(val, &sc); err != nil {
				log.err("store: corrupted record for %v: %v, skipping", string(key), err)
				return nil
			}
			out[string(key)] = fromStoredConfig(sc)
			return nil
		})
	})
	return out, err
}

// configWatcher watches a JSON config file for changes with fsnotify and
// applies the result to live instance configuration. Only instances
// named in the file are touched; instances not mentioned keep their
// current configuration.
type configWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	s       *Service
	byName  map[string]*Instance
}

func newConfigWatcher(configPath string, s *Service, instancesByName map[string]*Instance) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path.Dir(configPath)); err != nil {
		w.Close()
		return nil, err
	}
	cw := &configWatcher{path: configPath, watcher: w, s: s, byName: instancesByName}
	go cw.run()
	return cw, nil
}

func (cw *configWatcher) run() {
	for event := range cw.watcher.Events {
		if event.Name != cw.path {
			continue
		}
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		if err := cw.reload(); err != nil {
			log.err("store: config reload failed: %v", err)
		}
	}
}

func (cw *configWatcher) reload() error {
	data, err := os.ReadFile(cw.path)
	if err != nil {
		return err
	}
	var byName map[string]storedConfig
	if err := json.Unmarshal(data, &byName); err != nil {
		return err
	}
	for name, sc := range byName {
		inst, ok := cw.byName[name]
		if !ok {
			continue
		}
		inst.Config = fromStoredConfig(sc)
		log.info("store: reloaded configuration for instance %v", name)
	}
	return nil
}

func (cw *configWatcher) close() error {
	return cw.watcher.Close()
}
