// Command sakuraedl is a thin CLI around the loader core in
// pkg/session: it parses flags, builds a Session, and drives one of
// a handful of top-level operations. Session orchestration itself —
// retries, framing, VIP cadence — lives entirely in the library
// packages this command wires together.
package main

import (
	"github.com/alecthomas/kong"
)

// CLI is the full set of flags and subcommands. Subcommands receive
// it as a bound Run argument so they can read the shared transport
// flags without a side channel.
type CLI struct {
	Transport   string `enum:"com,hsuart,pipe" default:"hsuart" help:"Transport to use: com, hsuart, or pipe."`
	Port        string `help:"Device path (or pipe base path) to open." required:""`
	RedisAddr   string `help:"Redis address for session telemetry (host:port). Disabled when empty."`
	MetricsFile string `help:"Path to write a one-shot Prometheus text dump after the run. Disabled when empty."`
	Trace       string `help:"Path to a CBOR frame trace file. Disabled when empty."`

	Handshake HandshakeCmd `cmd:"" help:"Open the transport and perform the version handshake only."`
	Send      SendCmd      `cmd:"" help:"Send a file's raw bytes and print any XML response."`
	Program   ProgramCmd   `cmd:"" help:"Enable VIP and stream a payload file through it."`
}

var cli CLI

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("sakuraedl"),
		kong.Description("Host-side loader for the boot firmware programming protocol."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
