package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/adr"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/logging"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/network"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/node"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/scenario"
)

var tracer = otel.Tracer("github.com/rot226/simulator-lora-sfrd-2.0/internal/sim")

// Run executes every remaining step and stops early when the context is done.
// With a pace configured each step waits for the next tick.
func (s *Simulator) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "simulate", trace.WithAttributes(
		attribute.String("run_id", s.runID),
		attribute.Int("steps", s.cfg.Run.Steps),
		attribute.Int64("seed", s.seed),
	))
	defer span.End()

	log.Info("starting simulator", "run_id", s.runID, "steps", s.cfg.Run.Steps, "pace", s.pace)
	var tick <-chan time.Time
	if s.pace > 0 {
		ticker := time.NewTicker(s.pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	for !s.Done() {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				log.Info("stopping simulator", "step", s.Latest().Step)
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			log.Info("stopping simulator", "step", s.Latest().Step)
			return err
		}
		if _, err := s.Step(ctx); err != nil {
			log.Error("step failed", "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	t := s.Totals()
	log.Info("simulation finished", "sent", t.Sent, "delivered", t.Delivered, "collided", t.Collided, "pdr", t.PDR())
	return nil
}

// Step runs one step: mobility, transmissions, channel resolution, gateway
// reports, server ingest and ADR, then hands the statistics to the writer.
func (s *Simulator) Step(ctx context.Context) (StepStats, error) {
	log := logging.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized || s.clock.Done() {
		return StepStats{}, ErrFinished
	}
	step, now := s.clock.Advance()
	_, span := tracer.Start(ctx, "step", trace.WithAttributes(attribute.Int("step", step)))
	defer span.End()

	st := StepStats{RunID: s.runID, Step: step, Time: now}
	if step > 1 {
		for _, n := range s.nodes {
			n.Position = s.mob.Update(n.ID, n.Position, s.clock.StepLength())
		}
	}
	limit := s.cfg.Run.PacketsToSend
	for _, n := range s.nodes {
		if limit > 0 && s.totals.Sent+st.Sent >= limit {
			break
		}
		tx, attempt := n.MaybeTransmit(now)
		switch attempt {
		case node.Sent:
			s.air.Add(tx)
			st.Sent++
		case node.Deferred:
			st.Deferred++
		}
	}

	events, err := s.settle(s.air.Complete(s.clock.Horizon()), &st)
	if err != nil {
		span.RecordError(err)
		return st, err
	}
	s.totals.add(st)
	if s.phases != nil {
		prev := s.phases.Current().Name
		if p, changed := s.phases.Observe(
			scenario.Event{Type: scenario.EventStep, Value: step},
			scenario.Event{Type: scenario.EventDelivered, Value: s.totals.Delivered},
		); changed {
			s.applyPhase(p)
			log.Info("scenario phase changed", "from", prev, "to", p.Name, "step", step, "interval_scale", p.IntervalScale)
		}
		st.Phase = s.phases.Current().Name
	}
	s.latest = st
	span.SetAttributes(
		attribute.Int("sent", st.Sent),
		attribute.Int("delivered", st.Delivered),
		attribute.Int("collided", st.Collided),
	)

	if s.writer != nil {
		if err := s.writer.Write(st); err != nil {
			log.Error("stats write failed", "step", step, "err", err)
		}
		if ew, ok := s.writer.(EventWriter); ok && len(events) > 0 {
			if err := ew.WriteEvents(events); err != nil {
				log.Error("event write failed", "step", step, "err", err)
			}
		}
	}
	return st, nil
}

// settle routes resolved outcomes through the gateways to the server and
// classifies each finished transmission. Outcomes arrive grouped per
// transmission with gateways in ascending id order.
func (s *Simulator) settle(outs []lora.ReceptionOutcome, st *StepStats) ([]Event, error) {
	var events []Event
	for i := 0; i < len(outs); {
		j := i + 1
		for j < len(outs) && outs[j].Transmission.Key() == outs[i].Transmission.Key() {
			j++
		}
		ev, err := s.settleOne(outs[i:j])
		if err != nil {
			return events, err
		}
		switch ev.Result {
		case ResultSuccess:
			st.Delivered++
		case ResultCollision:
			st.Collided++
		default:
			st.NoCoverage++
		}
		events = append(events, ev)
		i = j
	}
	s.events = append(s.events, events...)
	s.totals.Duplicates = s.server.Duplicates()
	return events, nil
}

func (s *Simulator) settleOne(group []lora.ReceptionOutcome) (Event, error) {
	tx := group[0].Transmission
	n, ok := s.byID[tx.NodeID]
	if !ok {
		return Event{}, fmt.Errorf("%w: transmission from unknown node %d", ErrInvariant, tx.NodeID)
	}
	ev := Event{
		RunID:      s.runID,
		NodeID:     tx.NodeID,
		Seq:        tx.Seq,
		Start:      tx.Start,
		End:        tx.End(),
		SF:         tx.SF,
		TxPowerDBm: tx.TxPowerDBm,
		Result:     ResultNoCoverage,
		GatewayID:  -1,
	}
	collided := false
	best, first := 0.0, 0.0
	for _, o := range group {
		gw, ok := s.gwByID[o.GatewayID]
		if !ok {
			return Event{}, fmt.Errorf("%w: outcome from unknown gateway %d", ErrInvariant, o.GatewayID)
		}
		reported, err := gw.Report(o, s.server)
		if err != nil {
			if errors.Is(err, network.ErrUnknownGateway) {
				return Event{}, fmt.Errorf("%w: %v", ErrInvariant, err)
			}
			return Event{}, err
		}
		if reported {
			if ev.GatewayID < 0 {
				ev.GatewayID = o.GatewayID
				best, first = o.RSSI, o.RSSI
			} else if o.RSSI > best {
				best = o.RSSI
			}
		}
		if o.Verdict == lora.Collided {
			collided = true
		}
	}
	switch {
	case ev.GatewayID >= 0:
		ev.Result = ResultSuccess
		ev.BestRSSI = best
		s.totals.DelaySum += ev.End - ev.Start
	case collided:
		ev.Result = ResultCollision
	}
	if ev.Result == ResultSuccess && s.cfg.ADR.Server {
		adr.ServerAdjust(n, first)
	}
	if s.adr != nil {
		s.adr.Observe(n.ID, n, ev.Result == ResultSuccess, best)
	}
	return ev, nil
}

// Finalize resolves transmissions still on the air, freezes the server and
// returns the delivery record sorted by node id then sequence number. The
// record, the summary and the finished events are handed to writers that
// support them. Repeated calls return the same record without writing again.
func (s *Simulator) Finalize(ctx context.Context) ([]lora.Delivery, error) {
	log := logging.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return append([]lora.Delivery(nil), s.record...), nil
	}
	st := StepStats{RunID: s.runID, Step: s.clock.Step(), Time: s.clock.Now(), Phase: s.latest.Phase}
	events, err := s.settle(s.air.Flush(), &st)
	if err != nil {
		return nil, err
	}
	s.totals.Delivered += st.Delivered
	s.totals.Collided += st.Collided
	s.totals.NoCoverage += st.NoCoverage

	s.record = s.server.Finalize()
	s.finalized = true
	log.Info("simulation finalized",
		"run_id", s.runID,
		"deliveries", len(s.record),
		"duplicates", s.server.Duplicates(),
		"flushed", len(events),
	)

	if s.writer != nil {
		if fw, ok := s.writer.(FlushWriter); ok && len(events) > 0 {
			if err := fw.WriteFlush(st); err != nil {
				log.Error("flush write failed", "err", err)
			}
		}
		if ew, ok := s.writer.(EventWriter); ok && len(events) > 0 {
			if err := ew.WriteEvents(events); err != nil {
				log.Error("event write failed", "err", err)
			}
		}
		if dw, ok := s.writer.(DeliveryWriter); ok {
			if err := dw.WriteDeliveries(s.record); err != nil {
				log.Error("delivery write failed", "err", err)
			}
		}
		if sw, ok := s.writer.(SummaryWriter); ok {
			if err := sw.WriteSummary(s.summaryLocked()); err != nil {
				log.Error("summary write failed", "err", err)
			}
		}
	}
	return append([]lora.Delivery(nil), s.record...), nil
}
