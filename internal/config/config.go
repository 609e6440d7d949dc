// Package config loads client configuration files.
package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuafuller/espif/client"
)

// Load decodes the YAML file fname over cfg. Fields absent from the file
// keep their current values, so callers normally pass client.DefaultConfig.
// Unknown keys are rejected and the result must validate.
//
// Example file:
//
//	connect_timeout: 1500ms
//	send_attempts: 6
//	force_tcp: true
//	family: ipv6
func Load(fname string, cfg *client.Config) error {
	file, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("err opening config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return fmt.Errorf("err decoding config file (%s): %w", fname, err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config file (%s): %w", fname, err)
	}
	return nil
}
