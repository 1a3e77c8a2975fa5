package channel

import (
	"sort"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/network"
)

// flight is a transmission on the air together with its links and the
// transmissions it overlapped.
type flight struct {
	tx       lora.Transmission
	links    []link
	overlaps []*flight
}

// Air tracks transmissions that are still on the air. A transmission is
// resolved once no future transmission can overlap it.
type Air struct {
	ch       *Channel
	gateways []*network.Gateway
	active   []*flight
}

// NewAir creates an in-flight tracker over gateways, sorted by ascending id.
func (c *Channel) NewAir(gateways []*network.Gateway) *Air {
	gws := append([]*network.Gateway(nil), gateways...)
	sort.Slice(gws, func(i, j int) bool { return gws[i].ID < gws[j].ID })
	return &Air{ch: c, gateways: gws}
}

// Gateways returns the gateways in evaluation order.
func (a *Air) Gateways() []*network.Gateway { return a.gateways }

// Add puts tx on the air and records every overlap with transmissions already there.
func (a *Air) Add(tx lora.Transmission) {
	f := &flight{tx: tx, links: a.ch.measure(tx, a.gateways)}
	for _, other := range a.active {
		if other.tx.Overlaps(tx) {
			other.overlaps = append(other.overlaps, f)
			f.overlaps = append(f.overlaps, other)
		}
	}
	a.active = append(a.active, f)
}

// Active returns the number of transmissions on the air.
func (a *Air) Active() int { return len(a.active) }

// Complete resolves every transmission that ends at or before horizon. The
// caller guarantees that no transmission added later starts before horizon.
// Outcomes are grouped per transmission, in (start, node id, seq) order, and
// per gateway by ascending id.
func (a *Air) Complete(horizon float64) []lora.ReceptionOutcome {
	var done, keep []*flight
	for _, f := range a.active {
		if f.tx.End() <= horizon {
			done = append(done, f)
		} else {
			keep = append(keep, f)
		}
	}
	a.active = keep
	return a.resolve(done)
}

// Flush resolves everything still on the air.
func (a *Air) Flush() []lora.ReceptionOutcome {
	done := a.active
	a.active = nil
	return a.resolve(done)
}

func (a *Air) resolve(done []*flight) []lora.ReceptionOutcome {
	sort.Slice(done, func(i, j int) bool {
		ti, tj := done[i].tx, done[j].tx
		if ti.Start != tj.Start {
			return ti.Start < tj.Start
		}
		if ti.NodeID != tj.NodeID {
			return ti.NodeID < tj.NodeID
		}
		return ti.Seq < tj.Seq
	})
	out := make([]lora.ReceptionOutcome, 0, len(done)*len(a.gateways))
	for _, f := range done {
		for j, gw := range a.gateways {
			interferers := make([]link, 0, len(f.overlaps))
			for _, o := range f.overlaps {
				interferers = append(interferers, o.links[j])
			}
			out = append(out, a.ch.outcome(f.tx, gw, f.links[j], interferers))
		}
	}
	// pending flights keep pointing at resolved ones; only the resolved side is cleared
	for _, f := range done {
		f.overlaps = nil
	}
	return out
}
