package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/sim"
)

// writerOptions selects the outputs of a run.
type writerOptions struct {
	PrintOnly bool
	TUI       bool
	Verbose   bool
	LogFile   string // JSONL step stats; events and deliveries go next to it
	CSVDir    string // stats.csv, deliveries.csv and summary.csv
	Extra     []sim.StatsWriter
}

// newWriters sets up the writers chosen by opts and env vars. It returns the
// writer and a cleanup function that closes any resources.
func newWriters(cfg *config.SimulationConfig, opts writerOptions) (sim.StatsWriter, func(), error) {
	base, err := baseWriter(cfg, opts.PrintOnly, opts.TUI, opts.Verbose)
	if err != nil {
		return nil, nil, err
	}
	writers := []sim.StatsWriter{base}

	closeAll := func(ws []sim.StatsWriter) {
		for _, w := range ws {
			if c, ok := w.(io.Closer); ok {
				c.Close()
			}
		}
	}

	if opts.LogFile != "" {
		fw, err := sim.NewFileWriter(opts.LogFile, opts.LogFile+".events", opts.LogFile+".deliveries")
		if err != nil {
			closeAll(writers)
			return nil, nil, err
		}
		writers = append(writers, fw)
	}
	if opts.CSVDir != "" {
		if err := os.MkdirAll(opts.CSVDir, 0o755); err != nil {
			closeAll(writers)
			return nil, nil, err
		}
		cw, err := sim.NewCSVWriter(
			filepath.Join(opts.CSVDir, "stats.csv"),
			filepath.Join(opts.CSVDir, "deliveries.csv"),
			filepath.Join(opts.CSVDir, "summary.csv"),
		)
		if err != nil {
			closeAll(writers)
			return nil, nil, err
		}
		writers = append(writers, cw)
	}
	writers = append(writers, opts.Extra...)

	if len(writers) == 1 {
		return base, func() { closeAll(writers) }, nil
	}
	mw := sim.NewMultiWriter(writers...)
	return mw, func() { mw.Close() }, nil
}

// baseWriter chooses the primary writer based on flags and env vars.
func baseWriter(cfg *config.SimulationConfig, printOnly, tui, verbose bool) (sim.StatsWriter, error) {
	if tui && cfg != nil {
		return sim.NewTUIWriter(cfg), nil
	}
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if printOnly || endpoint == "" {
		return sim.NewStdoutWriter(cfg, verbose), nil
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	return sim.NewGreptimeDBWriter(endpoint, database,
		os.Getenv("GREPTIMEDB_STATS_TABLE"),
		os.Getenv("GREPTIMEDB_EVENT_TABLE"),
		os.Getenv("GREPTIMEDB_DELIVERY_TABLE"),
	)
}
