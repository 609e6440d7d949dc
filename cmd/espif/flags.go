package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/joshuafuller/espif/client"
)

type globalFlags struct {
	flagset         *pflag.FlagSet
	connectAttempts int
	connectTimeout  int
	retryDelay      int
	multicast       bool
	port            int
	recvTimeout1    int
	recvTimeout2    int
	sendAttempts    int
	tcp             bool
	udp             bool
	verbose         bool
	ipv6            bool
	configFile      string
}

// newGlobalFlags registers every option with a one-letter shorthand and a
// long name. Shorthands may be bundled (-tv, -C3) and options may follow
// the host.
func newGlobalFlags(output io.Writer) *globalFlags {
	def := client.DefaultConfig()
	f := &globalFlags{
		flagset: pflag.NewFlagSet("espif", pflag.ContinueOnError),
	}
	f.flagset.SetOutput(output)
	f.flagset.SortFlags = false
	f.flagset.Usage = func() {
		fmt.Fprintf(output, "usage: espif [options] host word...\n")
		f.flagset.PrintDefaults()
	}

	f.flagset.IntVarP(&f.connectAttempts, "conntr", "C", def.ConnectAttempts, "set connect attempts")
	f.flagset.IntVarP(&f.connectTimeout, "connto", "c", millis(def.ConnectTimeout), "set connect / send timeout in milliseconds")
	f.flagset.IntVarP(&f.retryDelay, "retrydelay", "d", millis(def.RetryDelay), "set delay in milliseconds before each retry")
	f.flagset.BoolVarP(&f.multicast, "multicast", "m", false, "use multicast (implies --udp)")
	f.flagset.IntVarP(&f.port, "port", "p", def.Port, "set port")
	f.flagset.IntVarP(&f.recvTimeout1, "recvto1", "r", millis(def.InitialReceiveTimeout), "set initial receive timeout in milliseconds")
	f.flagset.IntVarP(&f.recvTimeout2, "recvto2", "R", millis(def.ReceiveTimeout), "set subsequent receive timeout in milliseconds")
	f.flagset.IntVarP(&f.sendAttempts, "sendtr", "s", def.SendAttempts, "set send/receive attempts")
	f.flagset.BoolVarP(&f.tcp, "tcp", "t", false, "force use of tcp")
	f.flagset.BoolVarP(&f.udp, "udp", "u", false, "force use of udp")
	f.flagset.BoolVarP(&f.verbose, "verbose", "v", false, "enable verbose output on stderr")
	f.flagset.BoolVarP(&f.ipv6, "ipv6", "6", false, "resolve and connect using ipv6")
	f.flagset.StringVar(
		&f.configFile,
		"config",
		"",
		"YAML config file applied before the other flags",
	)
	return f
}

// apply copies the flags given on the command line onto cfg. Flags left
// unset do not override values loaded from a config file. Multicast always
// forces UDP, whatever order the flags came in.
func (f *globalFlags) apply(cfg *client.Config) {
	set := f.flagset.Changed

	if set("conntr") {
		cfg.ConnectAttempts = f.connectAttempts
	}
	if set("connto") {
		cfg.ConnectTimeout = time.Duration(f.connectTimeout) * time.Millisecond
	}
	if set("retrydelay") {
		cfg.RetryDelay = time.Duration(f.retryDelay) * time.Millisecond
	}
	if set("port") {
		cfg.Port = f.port
	}
	if set("recvto1") {
		cfg.InitialReceiveTimeout = time.Duration(f.recvTimeout1) * time.Millisecond
	}
	if set("recvto2") {
		cfg.ReceiveTimeout = time.Duration(f.recvTimeout2) * time.Millisecond
	}
	if set("sendtr") {
		cfg.SendAttempts = f.sendAttempts
	}
	if f.tcp {
		cfg.ForceTCP = true
	}
	if f.udp {
		cfg.ForceUDP = true
	}
	if f.verbose {
		cfg.Verbose = true
	}
	if f.ipv6 {
		cfg.Family = client.FamilyIPv6
	}
	if f.multicast {
		cfg.Multicast = true
		cfg.ForceUDP = true
		cfg.ForceTCP = false
	}
}

func millis(d time.Duration) int {
	return int(d / time.Millisecond)
}
