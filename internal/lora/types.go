// Radio domain values exchanged between simulator components
package lora

import "math"

// Position is a point in the simulation area, in metres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the euclidean distance to o.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Transmission is a single uplink on the air. Values are never mutated after creation.
type Transmission struct {
	NodeID     int      `json:"node_id"`
	Seq        int      `json:"seq"`
	Start      float64  `json:"start"`
	Airtime    float64  `json:"airtime"`
	SF         int      `json:"sf"`
	TxPowerDBm float64  `json:"tx_power_dbm"`
	Origin     Position `json:"origin"`
}

// End returns the instant the transmission leaves the air.
func (t Transmission) End() float64 {
	return t.Start + t.Airtime
}

// Overlaps reports whether the half-open intervals [Start, End) of t and o intersect.
func (t Transmission) Overlaps(o Transmission) bool {
	return t.Start < o.End() && o.Start < t.End()
}

// Key identifies the packet carried by the transmission.
func (t Transmission) Key() PacketKey {
	return PacketKey{NodeID: t.NodeID, Seq: t.Seq}
}

// PacketKey identifies a packet across gateways.
type PacketKey struct {
	NodeID int
	Seq    int
}

// Verdict is the reception result of one transmission at one gateway.
type Verdict string

// Verdict values.
const (
	Delivered  Verdict = "delivered"
	Collided   Verdict = "collided"
	OutOfRange Verdict = "out_of_range"
)

// ReceptionOutcome pairs a transmission with the verdict at one gateway.
type ReceptionOutcome struct {
	Transmission Transmission `json:"transmission"`
	GatewayID    int          `json:"gateway_id"`
	Verdict      Verdict      `json:"verdict"`
	RSSI         float64      `json:"rssi_dbm"`
	Time         float64      `json:"time"`
}

// Delivery is one entry of the delivery record: the first successful reception of a packet.
type Delivery struct {
	NodeID    int     `json:"node_id"`
	Seq       int     `json:"seq"`
	Time      float64 `json:"delivery_time"`
	GatewayID int     `json:"gateway_id"`
	RSSI      float64 `json:"rssi_dbm"`
	SF        int     `json:"sf"`
	Delay     float64 `json:"delay"`
}
