package rpcstats

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts a PeerStats provider function into a
// prometheus.Collector, the same "describe the metric shapes once,
// compute values on every scrape" pattern client_golang's own
// process/go collectors use.
type Collector struct {
	snapshot func() PeerStats

	questions prometheus.Desc
	answers   prometheus.Desc
	exports   prometheus.Desc
	imports   prometheus.Desc
	embargoes prometheus.Desc

	callsIn    prometheus.Desc
	callsOut   prometheus.Desc
	returnsIn  prometheus.Desc
	returnsOut prometheus.Desc
	abortsIn   prometheus.Desc
	abortsOut  prometheus.Desc
}

// NewCollector returns a Collector that calls snapshot on every scrape.
// snapshot is normally a bound Conn.Stats.
func NewCollector(connLabel string, snapshot func() PeerStats) *Collector {
	labels := prometheus.Labels{"conn": connLabel}
	desc := func(name, help string) prometheus.Desc {
		return *prometheus.NewDesc("capnrpc_"+name, help, nil, labels)
	}
	return &Collector{
		snapshot:   snapshot,
		questions:  desc("questions", "Open questions awaiting a Return."),
		answers:    desc("answers", "Inbound calls awaiting local resolution."),
		exports:    desc("exports", "Capabilities this vat has exported to the peer."),
		imports:    desc("imports", "Capabilities imported from the peer."),
		embargoes:  desc("embargoes", "Disembargoes pending acknowledgement."),
		callsIn:    desc("calls_in_total", "Call messages received."),
		callsOut:   desc("calls_out_total", "Call messages sent."),
		returnsIn:  desc("returns_in_total", "Return messages received."),
		returnsOut: desc("returns_out_total", "Return messages sent."),
		abortsIn:   desc("aborts_in_total", "Abort messages received."),
		abortsOut:  desc("aborts_out_total", "Abort messages sent."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- &c.questions
	ch <- &c.answers
	ch <- &c.exports
	ch <- &c.imports
	ch <- &c.embargoes
	ch <- &c.callsIn
	ch <- &c.callsOut
	ch <- &c.returnsIn
	ch <- &c.returnsOut
	ch <- &c.abortsIn
	ch <- &c.abortsOut
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(&c.questions, prometheus.GaugeValue, float64(s.Questions))
	ch <- prometheus.MustNewConstMetric(&c.answers, prometheus.GaugeValue, float64(s.Answers))
	ch <- prometheus.MustNewConstMetric(&c.exports, prometheus.GaugeValue, float64(s.Exports))
	ch <- prometheus.MustNewConstMetric(&c.imports, prometheus.GaugeValue, float64(s.Imports))
	ch <- prometheus.MustNewConstMetric(&c.embargoes, prometheus.GaugeValue, float64(s.Embargoes))
	ch <- prometheus.MustNewConstMetric(&c.callsIn, prometheus.CounterValue, float64(s.CallsIn))
	ch <- prometheus.MustNewConstMetric(&c.callsOut, prometheus.CounterValue, float64(s.CallsOut))
	ch <- prometheus.MustNewConstMetric(&c.returnsIn, prometheus.CounterValue, float64(s.ReturnsIn))
	ch <- prometheus.MustNewConstMetric(&c.returnsOut, prometheus.CounterValue, float64(s.ReturnsOut))
	ch <- prometheus.MustNewConstMetric(&c.abortsIn, prometheus.CounterValue, float64(s.AbortsIn))
	ch <- prometheus.MustNewConstMetric(&c.abortsOut, prometheus.CounterValue, float64(s.AbortsOut))
}
