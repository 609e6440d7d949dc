package client

import (
	"github.com/joshuafuller/espif/internal/errors"
	"github.com/joshuafuller/espif/internal/resolver"
	"github.com/joshuafuller/espif/internal/trace"
)

// Error types returned by Command. Every one renders as
// "<host>: <phase> (<cause>)" and unwraps to its cause.
type (
	ResolutionError    = errors.ResolutionError
	ConnectError       = errors.ConnectError
	BindError          = errors.BindError
	TransportError     = errors.TransportError
	ExhaustedError     = errors.ExhaustedError
	ReplyTooLargeError = errors.ReplyTooLargeError
	ValidationError    = errors.ValidationError
	NetworkError       = errors.NetworkError
)

// Family selects the address family used to reach a device.
type Family = resolver.Family

const (
	FamilyIPv4 = resolver.FamilyIPv4
	FamilyIPv6 = resolver.FamilyIPv6
)

// Lookup is a name resolution backend; *net.Resolver satisfies it.
type Lookup = resolver.Lookup

// Span is one measured section of a call, delivered to a TraceHook.
type Span = trace.Span

// TraceHook receives spans tagged "resolve", "connect" and "command".
type TraceHook = trace.Hook

// Span tags.
const (
	TagResolve = trace.TagResolve
	TagConnect = trace.TagConnect
	TagCommand = trace.TagCommand
)
