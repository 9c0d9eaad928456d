// Copyright 2026 The Routeguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config contains the configuration of the RTR engine process.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/routeguard/routeguard/pkg/log"
	"github.com/routeguard/routeguard/pkg/private/serrors"
)

// Config is the top level engine configuration.
type Config struct {
	Logging log.Config `toml:"log,omitempty"`
	Metrics Metrics    `toml:"metrics,omitempty"`
	RTR     RTR        `toml:"rtr,omitempty"`
}

// InitDefaults fills in unset fields.
func (cfg *Config) InitDefaults() {
	cfg.Logging.InitDefaults()
	cfg.RTR.InitDefaults()
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	return cfg.RTR.Validate()
}

// Metrics configures the metrics and status HTTP endpoint.
type Metrics struct {
	// Prometheus is the address the HTTP endpoint listens on. Empty
	// disables the endpoint.
	Prometheus string `toml:"prometheus,omitempty"`
}

// RTR contains the engine specific configuration.
type RTR struct {
	// ID is the element id of this engine instance.
	ID string `toml:"id,omitempty"`
	// SupervisorSocket is the unix socket of the supervising parent.
	// When empty the control channel is inherited on descriptor 3.
	SupervisorSocket string `toml:"supervisor_socket,omitempty"`
	// ExpireIntervalSeconds is the cadence of the expiration sweep.
	ExpireIntervalSeconds uint32 `toml:"expire_interval,omitempty"`
}

// InitDefaults fills in unset fields.
func (cfg *RTR) InitDefaults() {
	if cfg.ExpireIntervalSeconds == 0 {
		cfg.ExpireIntervalSeconds = 300
	}
}

// Validate checks the engine configuration.
func (cfg *RTR) Validate() error {
	if cfg.ID == "" {
		return serrors.New("id must be set")
	}
	return nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Wrap("reading config file", err, "file", path)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, serrors.Wrap("parsing config file", err, "file", path)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, serrors.Wrap("validating config file", err, "file", path)
	}
	return &cfg, nil
}
