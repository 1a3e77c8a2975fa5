// Writer implementation printing step stats to STDOUT
package sim

import (
	"os"

	"golang.org/x/term"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
)

// NewStdoutWriter picks colorized output when STDOUT is a terminal and JSON
// lines otherwise.
func NewStdoutWriter(cfg *config.SimulationConfig, verbose bool) StatsWriter {
	return newStdoutWriter(cfg, verbose, term.IsTerminal(int(os.Stdout.Fd())))
}

func newStdoutWriter(cfg *config.SimulationConfig, verbose, tty bool) StatsWriter {
	if tty {
		return NewColorStdoutWriter(cfg, verbose)
	}
	return NewJSONStdoutWriter()
}
