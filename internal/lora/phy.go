package lora

import "math"

// Spreading factor bounds.
const (
	MinSF = 7
	MaxSF = 12
)

// DefaultTxPowerDBm is the transmit power assigned to new nodes.
const DefaultTxPowerDBm = 14.0

// DefaultPayloadBytes is the application payload used for airtime when none is configured.
const DefaultPayloadBytes = 20

// sensitivityDBm holds receiver sensitivity per SF for BW 125 kHz, CR 4/5.
var sensitivityDBm = map[int]float64{
	7:  -123,
	8:  -126,
	9:  -129,
	10: -132,
	11: -134.5,
	12: -137,
}

// Sensitivity returns the minimum decodable power for sf. Unknown SFs report false.
func Sensitivity(sf int) (float64, bool) {
	v, ok := sensitivityDBm[sf]
	return v, ok
}

// ValidSF reports whether sf is a LoRa spreading factor.
func ValidSF(sf int) bool {
	return sf >= MinSF && sf <= MaxSF
}

// PHY describes the modulation settings used to compute airtime.
type PHY struct {
	BandwidthHz     float64
	CodingRate      int // 1..4 for 4/5..4/8
	PreambleSymbols int
	LowDataRateSF   int // SF at and above which low data rate optimisation is on
	CRC             bool
	ExplicitHeader  bool
}

// DefaultPHY is BW 125 kHz, CR 4/5, 8 preamble symbols, CRC on, LDRO from SF11.
var DefaultPHY = PHY{
	BandwidthHz:     125e3,
	CodingRate:      1,
	PreambleSymbols: 8,
	LowDataRateSF:   11,
	CRC:             true,
	ExplicitHeader:  true,
}

// Airtime returns the time on air, in seconds, of a payload sent with sf.
func (p PHY) Airtime(sf, payloadBytes int) float64 {
	ts := math.Pow(2, float64(sf)) / p.BandwidthHz
	de := 0
	if sf >= p.LowDataRateSF {
		de = 1
	}
	crc := 0
	if p.CRC {
		crc = 16
	}
	h := 0
	if !p.ExplicitHeader {
		h = 1
	}
	num := float64(8*payloadBytes - 4*sf + 28 + crc - 20*h)
	den := float64(4 * (sf - 2*de))
	nPayload := math.Max(math.Ceil(num/den), 0)*float64(p.CodingRate+4) + 8
	tPreamble := (float64(p.PreambleSymbols) + 4.25) * ts
	return tPreamble + nPayload*ts
}
