// Package config loads kelpie's process configuration from a JSON
// file, matching the shape the teacher's own cmn.Config load path
// takes (read file, unmarshal with jsoniter, validate, keep behind a
// pointer the rest of the process reads from).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/sandialabs/faodel-sub003/cmn"
)

// IOMConfig names one configured I/O module: a driver kind plus the
// driver-specific parameters it needs to open (a directory, a bucket
// name, a connection string -- see iom/driver/*).
type IOMConfig struct {
	Name   string            `json:"name"`
	Driver string            `json:"driver"` // "bunt", "s3", "azureblob", "gcs", "hdfs"
	Params map[string]string `json:"params,omitempty"`
}

// Config is the top-level process configuration: identity, listen
// address, pool membership seed, configured IOMs, background worker
// sizing, and log verbosity.
type Config struct {
	Self       cmn.NodeID  `json:"self"`
	ListenAddr string      `json:"listen_addr"`
	PoolURL    string      `json:"pool_url"`
	IOMs       []IOMConfig `json:"ioms,omitempty"`

	BackburnerWorkers int `json:"backburner_workers"`
	BackburnerQueue   int `json:"backburner_queue"`

	Verbosity int `json:"verbosity"`
}

// Default returns a Config with the same defaults a bare-minimum
// single-node deployment would run with.
func Default() Config {
	return Config{
		ListenAddr:        ":31850",
		BackburnerWorkers: 4,
		BackburnerQueue:   256,
		Verbosity:         1,
	}
}

// Load reads and parses the JSON config file at path, starting from
// Default() so a file only needs to override what it cares about.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := jsoniter.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a config that bootstrap could not possibly act on.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return &ValidationError{Field: "listen_addr", Reason: "must not be empty"}
	}
	if c.BackburnerWorkers <= 0 {
		return &ValidationError{Field: "backburner_workers", Reason: "must be positive"}
	}
	for _, iomCfg := range c.IOMs {
		if iomCfg.Name == "" || iomCfg.Driver == "" {
			return &ValidationError{Field: "ioms", Reason: "each entry needs name and driver"}
		}
	}
	return nil
}

// ValidationError names the offending field, matching the teacher's
// convention of typed config errors a caller can match on rather than
// string-sniffing.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "kelpie: config: " + e.Field + ": " + e.Reason
}

// Marshal serializes c back to JSON.
func (c Config) Marshal() ([]byte, error) {
	return jsoniter.Marshal(c)
}
