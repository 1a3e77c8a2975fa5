// ColorStdoutWriter prints human-friendly, colorized step statistics to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// sfPalette colours spreading factors 7..12.
var sfPalette = []string{colorGreen, colorCyan, colorBlue, colorMagenta, colorYellow, colorRed}

func sfColor(sf int) string {
	i := sf - 7
	if i < 0 || i >= len(sfPalette) {
		return colorGray
	}
	return sfPalette[i]
}

// ColorStdoutWriter prints step stats using ANSI colors.
type ColorStdoutWriter struct {
	cfg     *config.SimulationConfig
	out     io.Writer
	once    sync.Once
	verbose bool
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
// verbose also prints every finished transmission.
func NewColorStdoutWriter(cfg *config.SimulationConfig, verbose bool) *ColorStdoutWriter {
	return &ColorStdoutWriter{cfg: cfg, out: os.Stdout, verbose: verbose}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}
	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Nodes:\t%d\n", w.cfg.Nodes.Count)
	fmt.Fprintf(tw, "Gateways:\t%d\n", w.cfg.Gateways.Count)
	fmt.Fprintf(tw, "Area (m):\t%.0f\n", w.cfg.Area.SizeM)
	fmt.Fprintf(tw, "Traffic:\t%s every %.1fs\n", w.cfg.Nodes.TrafficMode, w.cfg.Nodes.Interval)
	fmt.Fprintf(tw, "SF Policy:\t%s\n", w.cfg.Nodes.SFPolicy)
	fmt.Fprintf(tw, "Duty Cycle:\t%s %.3f\n", w.cfg.DutyCycle.Policy, w.cfg.DutyCycle.Fraction)
	fmt.Fprintf(tw, "Capture Margin (dB):\t%.1f\n", w.cfg.Channel.CaptureMarginDB)
	fmt.Fprintf(tw, "Mobility:\t%s\n", w.cfg.Mobility.Model)
	fmt.Fprintf(tw, "Steps:\t%d x %.1fs\n", w.cfg.Run.Steps, w.cfg.Run.StepLength)
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single step in colorized format.
func (w *ColorStdoutWriter) Write(st StepStats) error {
	w.once.Do(w.printOverview)
	fmt.Fprintf(w.out, "%s[t=%8.1f]%s ", colorGray, st.Time, colorReset)
	fmt.Fprintf(w.out, "%sstep=%d%s ", colorBlue, st.Step, colorReset)
	fmt.Fprintf(w.out, "%ssent=%d%s ", colorCyan, st.Sent, colorReset)
	fmt.Fprintf(w.out, "%sdelivered=%d%s ", colorGreen, st.Delivered, colorReset)
	collided := colorGray
	if st.Collided > 0 {
		collided = colorRed
	}
	fmt.Fprintf(w.out, "%scollided=%d%s ", collided, st.Collided, colorReset)
	fmt.Fprintf(w.out, "%sno_coverage=%d%s ", colorYellow, st.NoCoverage, colorReset)
	fmt.Fprintf(w.out, "%sdeferred=%d%s", colorMagenta, st.Deferred, colorReset)
	if st.Phase != "" {
		fmt.Fprintf(w.out, " %sphase=%s%s", colorGray, st.Phase, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteEvents prints finished transmissions when verbose.
func (w *ColorStdoutWriter) WriteEvents(events []Event) error {
	if !w.verbose {
		return nil
	}
	for _, e := range events {
		resColor := colorGreen
		switch e.Result {
		case ResultCollision:
			resColor = colorRed
		case ResultNoCoverage:
			resColor = colorYellow
		}
		fmt.Fprintf(w.out, "  %snode=%d seq=%d%s %sSF%d%s [%.3f, %.3f) %s%s%s",
			colorBlue, e.NodeID, e.Seq, colorReset,
			sfColor(e.SF), e.SF, colorReset,
			e.Start, e.End,
			resColor, e.Result, colorReset)
		if e.GatewayID >= 0 {
			fmt.Fprintf(w.out, " gw=%d rssi=%.1f", e.GatewayID, e.BestRSSI)
		}
		fmt.Fprintln(w.out)
	}
	return nil
}

// WriteSummary prints the run summary table.
func (w *ColorStdoutWriter) WriteSummary(s Summary) error {
	fmt.Fprintf(w.out, "\n%sRun %s%s (seed %d)\n", colorBlue, s.RunID, colorReset, s.Seed)
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Sent:\t%d\n", s.Sent)
	fmt.Fprintf(tw, "Delivered:\t%s%d%s\n", colorGreen, s.Delivered, colorReset)
	fmt.Fprintf(tw, "Collisions:\t%s%d%s\n", colorRed, s.Collisions, colorReset)
	fmt.Fprintf(tw, "No Coverage:\t%d\n", s.NoCoverage)
	fmt.Fprintf(tw, "PDR:\t%.2f%%\n", s.PDRPct)
	fmt.Fprintf(tw, "Avg Delay (s):\t%.3f\n", s.AvgDelay)
	return tw.Flush()
}
