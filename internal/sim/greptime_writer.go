package sim

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// Default GreptimeDB table names.
const (
	DefaultStatsTable    = "lora_step_stats"
	DefaultEventTable    = "lora_events"
	DefaultDeliveryTable = "lora_deliveries"
)

const defaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes step stats, events and deliveries to GreptimeDB via
// the ingester client. Simulated seconds are mapped onto wall-clock
// timestamps starting at the writer's creation.
type GreptimeDBWriter struct {
	client        greptimeClient
	start         time.Time
	statsTable    string
	eventTable    string
	deliveryTable string
}

// NewGreptimeDBWriter connects to endpoint (host or host:port). Empty table
// names fall back to the defaults.
func NewGreptimeDBWriter(endpoint, database, statsTable, eventTable, deliveryTable string) (*GreptimeDBWriter, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint port: %w", err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return newGreptimeDBWriter(client, statsTable, eventTable, deliveryTable), nil
}

func newGreptimeDBWriter(client greptimeClient, statsTable, eventTable, deliveryTable string) *GreptimeDBWriter {
	if statsTable == "" {
		statsTable = DefaultStatsTable
	}
	if eventTable == "" {
		eventTable = DefaultEventTable
	}
	if deliveryTable == "" {
		deliveryTable = DefaultDeliveryTable
	}
	return &GreptimeDBWriter{
		client:        client,
		start:         time.Now().UTC(),
		statsTable:    statsTable,
		eventTable:    eventTable,
		deliveryTable: deliveryTable,
	}
}

func (w *GreptimeDBWriter) ts(simTime float64) time.Time {
	return w.start.Add(time.Duration(simTime * float64(time.Second)))
}

// Write inserts a single step row.
func (w *GreptimeDBWriter) Write(st StepStats) error {
	tbl, err := table.New(w.statsTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		column{"run_id", types.STRING, tag},
		column{"step", types.INT64, field},
		column{"sim_time", types.FLOAT64, field},
		column{"sent", types.INT64, field},
		column{"delivered", types.INT64, field},
		column{"collided", types.INT64, field},
		column{"no_coverage", types.INT64, field},
		column{"deferred", types.INT64, field},
		column{"phase", types.STRING, field},
		column{"ts", types.TIMESTAMP_MILLISECOND, timestamp},
	); err != nil {
		return err
	}
	if err := tbl.AddRow(st.RunID, int64(st.Step), st.Time, int64(st.Sent), int64(st.Delivered),
		int64(st.Collided), int64(st.NoCoverage), int64(st.Deferred), st.Phase, w.ts(st.Time)); err != nil {
		return err
	}
	return w.write(tbl)
}

// WriteEvents inserts finished transmissions.
func (w *GreptimeDBWriter) WriteEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tbl, err := table.New(w.eventTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		column{"run_id", types.STRING, tag},
		column{"node_id", types.INT64, tag},
		column{"seq", types.INT64, field},
		column{"sf", types.INT64, field},
		column{"tx_power_dbm", types.FLOAT64, field},
		column{"start_time", types.FLOAT64, field},
		column{"end_time", types.FLOAT64, field},
		column{"result", types.STRING, field},
		column{"gateway_id", types.INT64, field},
		column{"best_rssi_dbm", types.FLOAT64, field},
		column{"ts", types.TIMESTAMP_MILLISECOND, timestamp},
	); err != nil {
		return err
	}
	for _, e := range events {
		if err := tbl.AddRow(e.RunID, int64(e.NodeID), int64(e.Seq), int64(e.SF), e.TxPowerDBm,
			e.Start, e.End, string(e.Result), int64(e.GatewayID), e.BestRSSI, w.ts(e.End)); err != nil {
			return err
		}
	}
	return w.write(tbl)
}

// WriteDeliveries inserts the delivery record.
func (w *GreptimeDBWriter) WriteDeliveries(rows []lora.Delivery) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.deliveryTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		column{"node_id", types.INT64, tag},
		column{"seq", types.INT64, field},
		column{"delivery_time", types.FLOAT64, field},
		column{"gateway_id", types.INT64, field},
		column{"rssi_dbm", types.FLOAT64, field},
		column{"sf", types.INT64, field},
		column{"ts", types.TIMESTAMP_MILLISECOND, timestamp},
	); err != nil {
		return err
	}
	for _, d := range rows {
		if err := tbl.AddRow(int64(d.NodeID), int64(d.Seq), d.Time, int64(d.GatewayID), d.RSSI, int64(d.SF), w.ts(d.Time)); err != nil {
			return err
		}
	}
	return w.write(tbl)
}

func (w *GreptimeDBWriter) write(tbl *table.Table) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	return nil
}

type semantic int

const (
	tag semantic = iota
	field
	timestamp
)

type column struct {
	name string
	typ  types.ColumnType
	kind semantic
}

func addColumns(tbl *table.Table, cols ...column) error {
	for _, c := range cols {
		var err error
		switch c.kind {
		case tag:
			err = tbl.AddTagColumn(c.name, c.typ)
		case timestamp:
			err = tbl.AddTimestampColumn(c.name, c.typ)
		default:
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
