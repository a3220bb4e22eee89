package aggregator

import (
	"cmp"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"firestige.xyz/pulso/internal/core"
	"firestige.xyz/pulso/internal/privacy"
)

// PortCount is the number of attempts seen towards one destination port.
type PortCount struct {
	Port  uint16 `json:"port" yaml:"port"`
	Count uint64 `json:"count" yaml:"count"`
}

// Group is the rendered view of one source address.
type Group struct {
	Source string      `json:"source" yaml:"source"`
	Total  uint64      `json:"total" yaml:"total"`
	Ports  []PortCount `json:"ports" yaml:"ports"`
}

// String formats the group as "<source>:<total> <port>:<count> ...".
func (g Group) String() string {
	var b strings.Builder
	b.WriteString(g.Source)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(g.Total, 10))
	for _, pc := range g.Ports {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(pc.Port), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(pc.Count, 10))
	}
	return b.String()
}

// Report is the ordered result of a run.
type Report struct {
	Total  uint64  `json:"total" yaml:"total"`
	Groups []Group `json:"groups" yaml:"groups"`
}

// Lines returns one line per group, without trailing newlines.
func (r Report) Lines() []string {
	lines := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		lines = append(lines, g.String())
	}
	return lines
}

// Empty reports whether no connections were observed.
func (r Report) Empty() bool {
	return len(r.Groups) == 0
}

type sourceGroup struct {
	addr  netip.Addr
	total uint64
	ports []PortCount
}

// Render groups the counters by source address and orders them for output.
// Ports are sorted by descending count, then ascending port. Groups are
// sorted by descending total, then by address. Render drains the aggregate:
// a second call returns core.ErrReportConsumed.
func (a *Aggregator) Render(p privacy.Protector) (Report, error) {
	if a.consumed {
		return Report{}, core.ErrReportConsumed
	}
	a.consumed = true

	bySource := make(map[netip.Addr]*sourceGroup)
	for k, n := range a.counts {
		g, ok := bySource[k.src]
		if !ok {
			g = &sourceGroup{addr: k.src}
			bySource[k.src] = g
		}
		g.total += n
		g.ports = append(g.ports, PortCount{Port: k.port, Count: n})
	}

	groups := make([]*sourceGroup, 0, len(bySource))
	for _, g := range bySource {
		slices.SortFunc(g.ports, func(x, y PortCount) int {
			if c := cmp.Compare(y.Count, x.Count); c != 0 {
				return c
			}
			return cmp.Compare(x.Port, y.Port)
		})
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(x, y *sourceGroup) int {
		if c := cmp.Compare(y.total, x.total); c != 0 {
			return c
		}
		return x.addr.Compare(y.addr)
	})

	report := Report{Total: a.total, Groups: make([]Group, 0, len(groups))}
	for _, g := range groups {
		report.Groups = append(report.Groups, Group{
			Source: p.Protect(g.addr),
			Total:  g.total,
			Ports:  g.ports,
		})
	}

	a.counts = nil
	return report, nil
}
