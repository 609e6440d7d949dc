// Command espif sends one command to an embedded device and prints the
// reply.
//
//	espif [options] host word...
//
// Options may appear anywhere before "--"; everything after it is taken
// as command words. The words are joined with single spaces and terminated
// with CRLF.
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/joshuafuller/espif/client"
	"github.com/joshuafuller/espif/internal/config"
	"github.com/joshuafuller/espif/internal/trace"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	f := newGlobalFlags(stderr)
	if err := f.flagset.Parse(args); err != nil {
		if !stderrors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stderr, "espif: %s\n", err)
			f.flagset.Usage()
		}
		return 1
	}
	if f.flagset.NArg() < 2 {
		f.flagset.Usage()
		return 1
	}

	cfg := client.DefaultConfig()
	if f.configFile != "" {
		if err := config.Load(f.configFile, &cfg); err != nil {
			fmt.Fprintf(stdout, "ERROR: %s\n", err)
			return 1
		}
	}
	f.apply(&cfg)

	opts := []client.Option{client.WithConfig(cfg)}
	if cfg.Verbose {
		logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts,
			client.WithLogger(logger),
			client.WithTraceHook(trace.LogHook(logger)),
		)
	}

	c, err := client.New(opts...)
	if err != nil {
		fmt.Fprintf(stdout, "ERROR: %s\n", err)
		return 1
	}

	host := f.flagset.Arg(0)
	reply, err := c.Command(host, buildCommand(f.flagset.Args()[1:]))
	if err != nil {
		fmt.Fprintf(stdout, "ERROR: %s\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "%s\n", reply)
	return 0
}

// buildCommand joins words with single spaces and appends CRLF.
func buildCommand(words []string) []byte {
	return []byte(strings.Join(words, " ") + "\r\n")
}
