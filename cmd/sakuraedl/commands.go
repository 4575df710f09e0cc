package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hoplik/SakuraEDL/pkg/metrics"
	"github.com/hoplik/SakuraEDL/pkg/session"
	"github.com/hoplik/SakuraEDL/pkg/telemetry"
	"github.com/hoplik/SakuraEDL/pkg/trace"
	"github.com/hoplik/SakuraEDL/pkg/transport"
)

// HandshakeCmd opens the configured transport and performs the
// version handshake only, useful for confirming cabling and line
// settings before a real programming run.
type HandshakeCmd struct{}

func (h *HandshakeCmd) Run(cli *CLI) error {
	_, m, closeAll, err := buildSession(cli)
	if err != nil {
		return err
	}
	defer closeAll()

	log.Printf("handshake with %s on %s succeeded", cli.Transport, cli.Port)
	return writeMetricsIfRequested(cli, m)
}

// SendCmd sends a file's raw bytes through the session and prints
// any XML response envelope the target sends back.
type SendCmd struct {
	File string `arg:"" help:"Path to the file whose bytes will be sent."`
}

func (s *SendCmd) Run(cli *CLI) error {
	sess, m, closeAll, err := buildSession(cli)
	if err != nil {
		return err
	}
	defer closeAll()

	data, err := os.ReadFile(s.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.File, err)
	}
	if err := sess.Tx(data); err != nil {
		return fmt.Errorf("sending %s: %w", s.File, err)
	}

	buf := make([]byte, 8192)
	n, err := sess.RxXML(buf)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Println(string(buf[:n]))
	return writeMetricsIfRequested(cli, m)
}

// ProgramCmd enables Verified Image Programming and streams a
// payload file through it in fixed-size frames.
type ProgramCmd struct {
	SignedTable     string `help:"Path to the signed hash table." required:""`
	ChainedTable    string `help:"Path to the chained hash table file." required:""`
	DigestsPerTable int    `help:"Digests per table (clamped to 256)." default:"256"`
	Payload         string `arg:"" help:"Path to the image payload to stream."`
	FrameSize       int    `help:"Bytes per Tx frame." default:"4000"`
}

func (p *ProgramCmd) Run(cli *CLI) error {
	sess, m, closeAll, err := buildSession(cli)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := sess.EnableVIP(p.SignedTable, p.ChainedTable, p.DigestsPerTable); err != nil {
		return fmt.Errorf("enabling VIP: %w", err)
	}

	data, err := os.ReadFile(p.Payload)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p.Payload, err)
	}

	for offset := 0; offset < len(data); offset += p.FrameSize {
		end := offset + p.FrameSize
		if end > len(data) {
			end = len(data)
		}
		if err := sess.Tx(data[offset:end]); err != nil {
			return fmt.Errorf("sending frame at offset %d: %w", offset, err)
		}
	}

	log.Printf("programmed %d bytes from %s", len(data), p.Payload)
	return writeMetricsIfRequested(cli, m)
}

// buildSession wires a Session with whichever of telemetry/metrics/
// trace the CLI flags request, initializes the chosen transport, and
// opens it. The returned closer releases every collaborator in
// order.
func buildSession(cli *CLI) (*session.Session, *metrics.Collector, func(), error) {
	typ, err := parseTransportType(cli.Transport)
	if err != nil {
		return nil, nil, nil, err
	}

	pub := telemetry.New(cli.RedisAddr)
	var m *metrics.Collector
	if cli.MetricsFile != "" {
		m = metrics.New()
	}
	var tracer *trace.Recorder
	if cli.Trace != "" {
		tracer, err = trace.Open(cli.Trace)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	var opts []session.Option
	if pub != nil {
		opts = append(opts, session.WithTelemetry(pub))
	}
	if m != nil {
		opts = append(opts, session.WithMetrics(m))
	}
	if tracer != nil {
		opts = append(opts, session.WithTrace(tracer))
	}

	sess := session.New(opts...)
	if err := sess.Init(typ); err != nil {
		return nil, nil, nil, err
	}
	if err := sess.Open(cli.Port); err != nil {
		return nil, nil, nil, err
	}

	closeAll := func() {
		if err := sess.Close(); err != nil {
			log.Printf("session close: %v", err)
		}
		if pub != nil {
			pub.Close()
		}
		if tracer != nil {
			tracer.Close()
		}
	}
	return sess, m, closeAll, nil
}

func parseTransportType(s string) (transport.Type, error) {
	switch s {
	case "com":
		return transport.COM, nil
	case "hsuart":
		return transport.HSUART, nil
	case "pipe":
		return transport.Pipe, nil
	default:
		return transport.None, fmt.Errorf("unknown transport %q", s)
	}
}

func writeMetricsIfRequested(cli *CLI, m *metrics.Collector) error {
	if m == nil || cli.MetricsFile == "" {
		return nil
	}
	f, err := os.Create(cli.MetricsFile)
	if err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	defer f.Close()
	return m.WriteText(f)
}
