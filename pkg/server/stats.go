package server

import (
	"fmt"
	"io"
)

// Reporter emits the statistics report when triggered. It runs as its own
// goroutine, blocking on an explicit trigger channel (fed by SIGHUP in the
// server binary) so the mechanism stays portable and testable. It only ever
// reads the registry, via Snapshot.
type Reporter struct {
	registry *Registry
	out      io.Writer
}

// NewReporter creates a reporter writing to out.
func NewReporter(registry *Registry, out io.Writer) *Reporter {
	return &Reporter{registry: registry, out: out}
}

// Run reports once per trigger event until shutdown closes. Re-arms after
// every report.
func (r *Reporter) Run(trigger <-chan struct{}, shutdown <-chan struct{}) {
	for {
		select {
		case <-shutdown:
			return
		case <-trigger:
			r.Report()
		}
	}
}

// Report writes the per-client counters in registry order followed by the
// server totals.
func (r *Reporter) Report() {
	stats, totals := r.registry.Snapshot()

	fmt.Fprintf(r.out, "@CLIENTS@\n")
	for _, c := range stats {
		fmt.Fprintf(r.out, "%s:SAY:%d:KICK:%d:LIST:%d\n", c.Name, c.Say, c.Kick, c.List)
	}
	fmt.Fprintf(r.out, "@SERVER@\n")
	fmt.Fprintf(r.out, "server:AUTH:%d:NAME:%d:SAY:%d:KICK:%d:LIST:%d:LEAVE:%d\n",
		totals.Auth, totals.Name, totals.Say, totals.Kick, totals.List, totals.Leave)
}
