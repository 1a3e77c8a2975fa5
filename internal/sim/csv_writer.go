package sim

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

var (
	deliveryHeader = []string{"node_id", "seq", "delivery_time", "gateway_id", "rssi_dbm", "sf"}
	summaryHeader  = []string{"nodes", "gateways", "area", "mode", "interval", "steps", "sent", "delivered", "collisions", "pdr_pct", "avg_delay"}
	statsHeader    = []string{"step", "time", "sent", "delivered", "collided", "no_coverage", "deferred"}
)

// CSVWriter exports the delivery record, the run summary and optionally the
// per-step statistics as CSV files. Empty paths disable the matching file.
type CSVWriter struct {
	deliveryPath string
	summaryPath  string
	statsFile    *os.File
	stats        *csv.Writer
}

// NewCSVWriter prepares the export. The stats file is created immediately,
// the others when the run is finalized.
func NewCSVWriter(statsPath, deliveryPath, summaryPath string) (*CSVWriter, error) {
	w := &CSVWriter{deliveryPath: deliveryPath, summaryPath: summaryPath}
	if statsPath != "" {
		f, err := os.Create(statsPath)
		if err != nil {
			return nil, err
		}
		w.statsFile = f
		w.stats = csv.NewWriter(f)
		if err := w.stats.Write(statsHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Write appends one step row, if enabled.
func (w *CSVWriter) Write(st StepStats) error {
	if w.stats == nil {
		return nil
	}
	if err := w.stats.Write([]string{
		strconv.Itoa(st.Step),
		ftoa(st.Time),
		strconv.Itoa(st.Sent),
		strconv.Itoa(st.Delivered),
		strconv.Itoa(st.Collided),
		strconv.Itoa(st.NoCoverage),
		strconv.Itoa(st.Deferred),
	}); err != nil {
		return err
	}
	w.stats.Flush()
	return w.stats.Error()
}

// WriteDeliveries writes one row per delivered packet.
func (w *CSVWriter) WriteDeliveries(rows []lora.Delivery) error {
	if w.deliveryPath == "" {
		return nil
	}
	records := make([][]string, 0, len(rows)+1)
	records = append(records, deliveryHeader)
	for _, d := range rows {
		records = append(records, []string{
			strconv.Itoa(d.NodeID),
			strconv.Itoa(d.Seq),
			ftoa(d.Time),
			strconv.Itoa(d.GatewayID),
			ftoa(d.RSSI),
			strconv.Itoa(d.SF),
		})
	}
	return writeCSVFile(w.deliveryPath, records)
}

// WriteSummary writes the single summary row.
func (w *CSVWriter) WriteSummary(s Summary) error {
	if w.summaryPath == "" {
		return nil
	}
	return writeCSVFile(w.summaryPath, [][]string{summaryHeader, {
		strconv.Itoa(s.Nodes),
		strconv.Itoa(s.Gateways),
		ftoa(s.AreaM),
		s.Mode,
		ftoa(s.Interval),
		strconv.Itoa(s.Steps),
		strconv.Itoa(s.Sent),
		strconv.Itoa(s.Delivered),
		strconv.Itoa(s.Collisions),
		strconv.FormatFloat(s.PDRPct, 'f', 2, 64),
		strconv.FormatFloat(s.AvgDelay, 'f', 4, 64),
	}})
}

// Close flushes and closes the stats file.
func (w *CSVWriter) Close() error {
	if w.statsFile == nil {
		return nil
	}
	w.stats.Flush()
	err := w.stats.Error()
	if e := w.statsFile.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

func writeCSVFile(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
