// Package metrics exposes Prometheus counters for a loader session:
// sessions opened, frames and bytes moved, errors, plus counters for
// NAKs, retries and VIP tables sent. These are observational, updated
// at Session call boundaries, never on the COBS byte path itself.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector owns a private registry and the counters a Session
// updates over its lifetime. Session increments SessionsOpened,
// FramesSent, FramesReceived, BytesSent and Errors; NAKs, Retries and
// VIPTablesSent are registered and exported but nothing in this
// module increments them.
type Collector struct {
	reg *prometheus.Registry

	SessionsOpened prometheus.Counter
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	BytesSent      prometheus.Counter
	NAKs           prometheus.Counter
	Retries        prometheus.Counter
	VIPTablesSent  prometheus.Counter
	Errors         prometheus.Counter
}

// New builds a Collector with its own private registry, so multiple
// Collectors can coexist in one process (e.g. under test) without
// colliding on the default global registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg:            reg,
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_sessions_opened_total", Help: "Loader sessions opened."}),
		FramesSent:     prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_frames_sent_total", Help: "Data frames passed to Session.Tx."}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_frames_received_total", Help: "Response envelopes received."}),
		BytesSent:      prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_bytes_sent_total", Help: "Payload bytes sent."}),
		NAKs:           prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_naks_total", Help: "NAKs received from the target."}),
		Retries:        prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_retries_total", Help: "Raw transport I/O retries."}),
		VIPTablesSent:  prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_vip_tables_sent_total", Help: "Signed or chained VIP tables sent."}),
		Errors:         prometheus.NewCounter(prometheus.CounterOpts{Name: "sakuraedl_errors_total", Help: "Tx/Rx calls that returned an error."}),
	}
	reg.MustRegister(
		c.SessionsOpened, c.FramesSent, c.FramesReceived, c.BytesSent,
		c.NAKs, c.Retries, c.VIPTablesSent, c.Errors,
	)
	return c
}

// Registry exposes the private registry, for wiring an HTTP scrape
// endpoint with promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// WriteText dumps the current metric families in Prometheus text
// exposition format, for a one-shot CLI report rather than a scrape
// endpoint.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, f := range families {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}
