package sim

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// ReplayLog replays step stats from a JSONL log in r to writer. A speed >0
// plays one simulated second per 1/speed wall-clock seconds. If speed <= 0,
// no artificial delay is inserted.
func ReplayLog(r io.Reader, writer StatsWriter, speed float64) error {
	dec := json.NewDecoder(r)
	first := true
	var prev float64
	for {
		var st StepStats
		if err := dec.Decode(&st); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !first && speed > 0 {
			diff := time.Duration((st.Time - prev) / speed * float64(time.Second))
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.Write(st); err != nil {
			return err
		}
		prev = st.Time
		first = false
	}
}

// ReplayLogFile opens a file and replays its step stats.
func ReplayLogFile(path string, writer StatsWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
