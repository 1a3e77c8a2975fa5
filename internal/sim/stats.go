package sim

import "github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"

// StepStats summarises one simulation step. Delivered, Collided and
// NoCoverage count packets whose airtime finished during the step.
type StepStats struct {
	RunID      string  `json:"run_id"`
	Step       int     `json:"step"`
	Time       float64 `json:"time"`
	Sent       int     `json:"sent"`
	Delivered  int     `json:"delivered"`
	Collided   int     `json:"collided"`
	NoCoverage int     `json:"no_coverage"`
	Deferred   int     `json:"deferred"`
	Phase      string  `json:"phase,omitempty"`
}

// Totals accumulates counters over the whole run.
type Totals struct {
	Steps      int     `json:"steps"`
	Time       float64 `json:"time"`
	Sent       int     `json:"sent"`
	Delivered  int     `json:"delivered"`
	Collided   int     `json:"collided"`
	NoCoverage int     `json:"no_coverage"`
	Deferred   int     `json:"deferred"`
	Duplicates int     `json:"duplicates"`
	DelaySum   float64 `json:"delay_sum"`
}

func (t *Totals) add(st StepStats) {
	t.Steps = st.Step
	t.Time = st.Time
	t.Sent += st.Sent
	t.Delivered += st.Delivered
	t.Collided += st.Collided
	t.NoCoverage += st.NoCoverage
	t.Deferred += st.Deferred
}

// PDR is delivered over sent, 0 before anything was sent.
func (t Totals) PDR() float64 {
	if t.Sent == 0 {
		return 0
	}
	return float64(t.Delivered) / float64(t.Sent)
}

// AvgDelay is the mean time from transmission start to delivery.
func (t Totals) AvgDelay() float64 {
	if t.Delivered == 0 {
		return 0
	}
	return t.DelaySum / float64(t.Delivered)
}

// Metrics is the run-level view exposed to the admin surface and the summary.
type Metrics struct {
	Totals
	PDR            float64     `json:"pdr"`
	AvgDelay       float64     `json:"avg_delay_s"`
	SFDistribution map[int]int `json:"sf_distribution"`
	Phase          string      `json:"phase,omitempty"`
}

// EventResult is the fate of one finished transmission across all gateways.
type EventResult string

const (
	ResultSuccess    EventResult = "Success"
	ResultCollision  EventResult = "CollisionLoss"
	ResultNoCoverage EventResult = "NoCoverage"
)

// Event records one finished transmission.
type Event struct {
	RunID      string      `json:"run_id"`
	NodeID     int         `json:"node_id"`
	Seq        int         `json:"seq"`
	Start      float64     `json:"start_time"`
	End        float64     `json:"end_time"`
	SF         int         `json:"sf"`
	TxPowerDBm float64     `json:"tx_power_dbm"`
	Result     EventResult `json:"result"`
	GatewayID  int         `json:"gateway_id"` // -1 unless delivered
	BestRSSI   float64     `json:"best_rssi_dbm"`
}

// Summary is the one-row run summary.
type Summary struct {
	RunID      string  `json:"run_id"`
	Seed       int64   `json:"seed"`
	Nodes      int     `json:"nodes"`
	Gateways   int     `json:"gateways"`
	AreaM      float64 `json:"area_m"`
	Mode       string  `json:"mode"`
	Interval   float64 `json:"interval"`
	Steps      int     `json:"steps"`
	Sent       int     `json:"sent"`
	Delivered  int     `json:"delivered"`
	Collisions int     `json:"collisions"`
	NoCoverage int     `json:"no_coverage"`
	PDRPct     float64 `json:"pdr_pct"`
	AvgDelay   float64 `json:"avg_delay"`
}

// NodeState is a read-only snapshot of one node.
type NodeState struct {
	ID         int           `json:"id"`
	Position   lora.Position `json:"position"`
	SF         int           `json:"sf"`
	TxPowerDBm float64       `json:"tx_power_dbm"`
	Seq        int           `json:"seq"`
	Sent       int           `json:"sent"`
	Deferred   int           `json:"deferred"`
	NextFire   float64       `json:"next_fire"`
}
