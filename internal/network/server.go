// Network server aggregating gateway receptions into the delivery record
package network

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

var (
	// ErrUnknownGateway marks an outcome from a gateway the server was not built with.
	ErrUnknownGateway = errors.New("unknown gateway")
	// ErrNotDelivered marks an attempt to ingest a failed reception.
	ErrNotDelivered = errors.New("outcome is not delivered")
	// ErrFinalized is returned by Ingest once Finalize has been called.
	ErrFinalized = errors.New("server finalized")
)

// Server deduplicates deliveries by (node id, sequence number). The first delivery wins.
type Server struct {
	gateways   map[int]struct{}
	records    map[lora.PacketKey]lora.Delivery
	order      []lora.PacketKey
	duplicates int
	snapshot   []lora.Delivery
	finalized  bool
}

// NewServer creates a server accepting outcomes from the given gateways.
func NewServer(gateways []*Gateway) *Server {
	ids := make(map[int]struct{}, len(gateways))
	for _, g := range gateways {
		ids[g.ID] = struct{}{}
	}
	return &Server{gateways: ids, records: map[lora.PacketKey]lora.Delivery{}}
}

// Ingest records a Delivered outcome. Duplicates are counted and otherwise ignored.
func (s *Server) Ingest(o lora.ReceptionOutcome) error {
	_, err := s.IngestNew(o)
	return err
}

// IngestNew is Ingest that also tells whether the packet was seen for the first time.
func (s *Server) IngestNew(o lora.ReceptionOutcome) (bool, error) {
	if s.finalized {
		return false, ErrFinalized
	}
	if o.Verdict != lora.Delivered {
		return false, fmt.Errorf("%w: node %d seq %d verdict %s", ErrNotDelivered, o.Transmission.NodeID, o.Transmission.Seq, o.Verdict)
	}
	if _, ok := s.gateways[o.GatewayID]; !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownGateway, o.GatewayID)
	}
	key := o.Transmission.Key()
	if _, seen := s.records[key]; seen {
		s.duplicates++
		return false, nil
	}
	s.records[key] = lora.Delivery{
		NodeID:    key.NodeID,
		Seq:       key.Seq,
		Time:      o.Time,
		GatewayID: o.GatewayID,
		RSSI:      o.RSSI,
		SF:        o.Transmission.SF,
		Delay:     o.Time - o.Transmission.Start,
	}
	s.order = append(s.order, key)
	return true, nil
}

// Has reports whether the packet has been delivered.
func (s *Server) Has(key lora.PacketKey) bool {
	_, ok := s.records[key]
	return ok
}

// Len returns the number of distinct delivered packets.
func (s *Server) Len() int { return len(s.records) }

// Duplicates returns how many extra gateway copies were merged.
func (s *Server) Duplicates() int { return s.duplicates }

// Deliveries returns the records in arrival order.
func (s *Server) Deliveries() []lora.Delivery {
	out := make([]lora.Delivery, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.records[k])
	}
	return out
}

// Finalize freezes the server and returns the delivery record sorted by node id
// then sequence number. Repeated calls return the same snapshot.
func (s *Server) Finalize() []lora.Delivery {
	if s.finalized {
		return append([]lora.Delivery(nil), s.snapshot...)
	}
	s.finalized = true
	snap := s.Deliveries()
	sort.Slice(snap, func(i, j int) bool {
		if snap[i].NodeID != snap[j].NodeID {
			return snap[i].NodeID < snap[j].NodeID
		}
		return snap[i].Seq < snap[j].Seq
	})
	s.snapshot = snap
	return append([]lora.Delivery(nil), snap...)
}
