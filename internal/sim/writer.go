package sim

import "github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"

// StatsWriter is an interface to support different output writers.
type StatsWriter interface {
	Write(StepStats) error
}

// EventWriter receives the transmissions finished during a step.
type EventWriter interface {
	WriteEvents([]Event) error
}

// DeliveryWriter receives the final delivery record.
type DeliveryWriter interface {
	WriteDeliveries([]lora.Delivery) error
}

// SummaryWriter receives the run summary once the run is finalized.
type SummaryWriter interface {
	WriteSummary(Summary) error
}

// FlushWriter receives the outcomes resolved when the run is finalized. Only
// the outcome counters are set; Sent and Deferred are always zero.
type FlushWriter interface {
	WriteFlush(StepStats) error
}

// AdminStatusWriter allows writers to receive admin UI status updates.
type AdminStatusWriter interface {
	SetAdminStatus(listening bool)
}
