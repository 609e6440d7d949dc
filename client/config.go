package client

import (
	"time"

	"github.com/joshuafuller/espif/internal/errors"
)

// Default configuration values.
const (
	DefaultConnectTimeout        = time.Second
	DefaultConnectAttempts       = 2
	DefaultInitialReceiveTimeout = time.Second
	DefaultReceiveTimeout        = 10 * time.Millisecond
	DefaultRetryDelay            = 100 * time.Millisecond
	DefaultSendAttempts          = 4
	DefaultPort                  = 24
	DefaultResolveTimeout        = 5 * time.Second
	DefaultMaxReply              = 128 * 1024
)

// Config is the per-call delivery configuration. A Config is read, never
// modified, by a call, so one value may be shared between calls.
//
// Durations decode from YAML as Go duration strings ("1500ms", "2s").
type Config struct {
	// Verbose enables debug logging of every attempt and failure.
	Verbose bool `yaml:"verbose"`

	// ConnectTimeout bounds the TCP handshake and every send.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ConnectAttempts is the number of channel establishment tries per
	// send attempt.
	ConnectAttempts int `yaml:"connect_attempts"`

	// InitialReceiveTimeout bounds the wait for the first reply chunk.
	InitialReceiveTimeout time.Duration `yaml:"initial_receive_timeout"`

	// ReceiveTimeout bounds the wait for every later chunk. Silence for
	// this long ends the reply.
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`

	// RetryDelay is slept between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// SendAttempts is the number of full connect/send/receive cycles.
	SendAttempts int `yaml:"send_attempts"`

	// ForceTCP starts on TCP instead of UDP.
	ForceTCP bool `yaml:"force_tcp"`

	// ForceUDP forbids the fallback from UDP to TCP.
	ForceUDP bool `yaml:"force_udp"`

	// Multicast treats the resolved address as a group to join. It implies
	// ForceUDP and overrides ForceTCP.
	Multicast bool `yaml:"multicast"`

	Port int `yaml:"port"`

	// Family selects ipv4 or ipv6 resolution.
	Family Family `yaml:"family"`

	// ResolveTimeout bounds the name lookup.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	// MaxReply is the reply capacity in bytes. A longer reply fails the
	// call with ReplyTooLargeError.
	MaxReply int `yaml:"max_reply"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:        DefaultConnectTimeout,
		ConnectAttempts:       DefaultConnectAttempts,
		InitialReceiveTimeout: DefaultInitialReceiveTimeout,
		ReceiveTimeout:        DefaultReceiveTimeout,
		RetryDelay:            DefaultRetryDelay,
		SendAttempts:          DefaultSendAttempts,
		Port:                  DefaultPort,
		Family:                FamilyIPv4,
		ResolveTimeout:        DefaultResolveTimeout,
		MaxReply:              DefaultMaxReply,
	}
}

// Validate checks every field and returns the first problem found.
//
// Returns:
//   - error: *ValidationError naming the offending field, or nil
func (c Config) Validate() error {
	positive := []struct {
		field string
		value time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout},
		{"initial_receive_timeout", c.InitialReceiveTimeout},
		{"receive_timeout", c.ReceiveTimeout},
		{"resolve_timeout", c.ResolveTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &errors.ValidationError{Field: p.field, Value: p.value, Message: "must be positive"}
		}
	}

	if c.RetryDelay < 0 {
		return &errors.ValidationError{Field: "retry_delay", Value: c.RetryDelay, Message: "must not be negative"}
	}
	if c.ConnectAttempts < 1 {
		return &errors.ValidationError{Field: "connect_attempts", Value: c.ConnectAttempts, Message: "must be at least 1"}
	}
	if c.SendAttempts < 1 {
		return &errors.ValidationError{Field: "send_attempts", Value: c.SendAttempts, Message: "must be at least 1"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &errors.ValidationError{Field: "port", Value: c.Port, Message: "must be in 1..65535"}
	}
	if !c.Family.Valid() {
		return &errors.ValidationError{Field: "family", Value: c.Family, Message: "must be ipv4 or ipv6"}
	}
	if c.MaxReply < 1 {
		return &errors.ValidationError{Field: "max_reply", Value: c.MaxReply, Message: "must be positive"}
	}
	return nil
}
