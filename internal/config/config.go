// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Run controls the simulated clock.
type Run struct {
	Steps         int           `yaml:"steps" json:"steps"`
	StepLength    float64       `yaml:"step_length" json:"step_length"`
	Seed          *int64        `yaml:"seed,omitempty" json:"seed,omitempty"`
	Pace          time.Duration `yaml:"pace" json:"pace"`
	PacketsToSend int           `yaml:"packets_to_send" json:"packets_to_send"` // whole run, 0 = unlimited
}

// Area is the square deployment area.
type Area struct {
	SizeM float64 `yaml:"size_m" json:"size_m"`
}

// Point is an explicit x/y placement in metres.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Nodes describes the end devices.
type Nodes struct {
	Count        int      `yaml:"count" json:"count"`
	TrafficMode  string   `yaml:"traffic_mode" json:"traffic_mode"`
	Interval     float64  `yaml:"interval" json:"interval"`
	Jitter       float64  `yaml:"jitter" json:"jitter"`
	Stagger      bool     `yaml:"stagger" json:"stagger"` // periodic first send uniform in [0, interval)
	PayloadBytes int      `yaml:"payload_bytes" json:"payload_bytes"`
	Airtime      float64  `yaml:"airtime" json:"airtime"`
	SFPolicy     string   `yaml:"sf_policy" json:"sf_policy"`
	SF           int      `yaml:"sf" json:"sf"`
	TxPowerDBm   *float64 `yaml:"tx_power_dbm,omitempty" json:"tx_power_dbm,omitempty"`
	Positions    []Point  `yaml:"positions,omitempty" json:"positions,omitempty"`
}

// DefaultTxPowerDBm is used when nodes.tx_power_dbm is not set.
const DefaultTxPowerDBm = 14.0

// TxPower returns the configured transmit power, DefaultTxPowerDBm when unset.
func (n Nodes) TxPower() float64 {
	if n.TxPowerDBm == nil {
		return DefaultTxPowerDBm
	}
	return *n.TxPowerDBm
}

// Gateways describes the receivers.
type Gateways struct {
	Count     int     `yaml:"count" json:"count"`
	RangeM    float64 `yaml:"range_m" json:"range_m"`
	Positions []Point `yaml:"positions,omitempty" json:"positions,omitempty"`
}

// Channel holds propagation and capture settings.
type Channel struct {
	PathLoss         string  `yaml:"path_loss" json:"path_loss"`
	FrequencyHz      float64 `yaml:"frequency_hz" json:"frequency_hz"`
	PathLossExponent float64 `yaml:"path_loss_exponent" json:"path_loss_exponent"`
	CaptureMarginDB  float64 `yaml:"capture_margin_db" json:"capture_margin_db"`
	ShadowingStdDB   float64 `yaml:"shadowing_std_db" json:"shadowing_std_db"`
}

// DutyCycle selects the transmit gate.
type DutyCycle struct {
	Policy   string  `yaml:"policy" json:"policy"` // none | bounded | off_time
	Fraction float64 `yaml:"fraction" json:"fraction"`
	Window   float64 `yaml:"window" json:"window"`
	Capacity int     `yaml:"capacity" json:"capacity"`
}

// Mobility selects the movement model.
type Mobility struct {
	Model    string  `yaml:"model" json:"model"` // static | random_walk
	MinSpeed float64 `yaml:"min_speed" json:"min_speed"`
	MaxSpeed float64 `yaml:"max_speed" json:"max_speed"`
}

// ADR toggles adaptive data rate. Node drives the link history and its
// change requests; Server applies those requests and runs the RSSI rule on
// every new delivery.
type ADR struct {
	Node   bool `yaml:"node" json:"node"`
	Server bool `yaml:"server" json:"server"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// SimulationConfig is the root configuration of a run.
type SimulationConfig struct {
	Run       Run       `yaml:"run" json:"run"`
	Area      Area      `yaml:"area" json:"area"`
	Nodes     Nodes     `yaml:"nodes" json:"nodes"`
	Gateways  Gateways  `yaml:"gateways" json:"gateways"`
	Channel   Channel   `yaml:"channel" json:"channel"`
	DutyCycle DutyCycle `yaml:"duty_cycle" json:"duty_cycle"`
	Mobility  Mobility  `yaml:"mobility" json:"mobility"`
	ADR       ADR       `yaml:"adr" json:"adr"`
	Logging   Logging   `yaml:"logging" json:"logging"`
}

// Default returns a configuration matching the command line defaults.
func Default() *SimulationConfig {
	cfg := &SimulationConfig{}
	cfg.Nodes.Count = 10
	cfg.Gateways.Count = 1
	cfg.Nodes.Interval = 10
	cfg.Run.Steps = 100
	cfg.ApplyDefaults()
	return cfg
}

// Load loads YAML config, validates it against a CUE schema when schemaPath
// is set, then applies defaults and semantic checks.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields. Counts and the traffic interval
// are left alone so that bad values still fail validation.
func (c *SimulationConfig) ApplyDefaults() {
	if c.Run.StepLength == 0 {
		c.Run.StepLength = 1
	}
	if c.Area.SizeM == 0 {
		c.Area.SizeM = 1000
	}
	if c.Nodes.TrafficMode == "" {
		c.Nodes.TrafficMode = "random"
	}
	c.Nodes.TrafficMode = strings.ToLower(c.Nodes.TrafficMode)
	if c.Nodes.PayloadBytes == 0 {
		c.Nodes.PayloadBytes = 20
	}
	if c.Nodes.SFPolicy == "" {
		if c.Nodes.SF != 0 {
			c.Nodes.SFPolicy = "fixed"
		} else {
			c.Nodes.SFPolicy = "random"
		}
	}
	if c.Nodes.SF == 0 {
		c.Nodes.SF = 7
	}
	if c.Nodes.TxPowerDBm == nil {
		p := DefaultTxPowerDBm
		c.Nodes.TxPowerDBm = &p
	}
	if c.Channel.PathLoss == "" {
		c.Channel.PathLoss = "log_distance"
	}
	if c.Channel.FrequencyHz == 0 {
		c.Channel.FrequencyHz = 868e6
	}
	if c.Channel.PathLossExponent == 0 {
		c.Channel.PathLossExponent = 2.7
	}
	if c.DutyCycle.Policy == "" {
		if c.DutyCycle.Fraction != 0 {
			c.DutyCycle.Policy = "bounded"
		} else {
			c.DutyCycle.Policy = "none"
		}
	}
	if c.DutyCycle.Window == 0 {
		c.DutyCycle.Window = 3600
	}
	if c.Mobility.Model == "" {
		c.Mobility.Model = "static"
	}
	if c.Mobility.MinSpeed == 0 && c.Mobility.MaxSpeed == 0 {
		c.Mobility.MinSpeed, c.Mobility.MaxSpeed = 1, 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks value ranges. Every error wraps ErrInvalid.
func (c *SimulationConfig) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if c.Run.Steps < 0 {
		add("run.steps must not be negative, got %d", c.Run.Steps)
	}
	if c.Run.StepLength <= 0 {
		add("run.step_length must be positive, got %v", c.Run.StepLength)
	}
	if c.Run.Pace < 0 {
		add("run.pace must not be negative")
	}
	if c.Area.SizeM <= 0 {
		add("area.size_m must be positive, got %v", c.Area.SizeM)
	}
	if c.Nodes.Count < 0 {
		add("nodes.count must not be negative, got %d", c.Nodes.Count)
	}
	if c.Gateways.Count < 1 {
		add("gateways.count must be at least 1, got %d", c.Gateways.Count)
	}
	if c.Nodes.Interval <= 0 {
		add("nodes.interval must be positive, got %v", c.Nodes.Interval)
	}
	if c.Nodes.Jitter < 0 {
		add("nodes.jitter must not be negative")
	}
	if c.Nodes.Airtime < 0 {
		add("nodes.airtime must not be negative")
	}
	if c.Run.PacketsToSend < 0 {
		add("run.packets_to_send must not be negative")
	}
	switch c.Nodes.TrafficMode {
	case "periodic", "random":
	default:
		add("nodes.traffic_mode %q is not periodic or random", c.Nodes.TrafficMode)
	}
	switch c.Nodes.SFPolicy {
	case "fixed", "random", "distance":
	default:
		add("nodes.sf_policy %q is not fixed, random or distance", c.Nodes.SFPolicy)
	}
	if c.Nodes.SF < 7 || c.Nodes.SF > 12 {
		add("nodes.sf %d outside 7..12", c.Nodes.SF)
	}
	if n := len(c.Nodes.Positions); n > 0 && n != c.Nodes.Count {
		add("nodes.positions has %d entries for %d nodes", n, c.Nodes.Count)
	}
	if n := len(c.Gateways.Positions); n > 0 && n != c.Gateways.Count {
		add("gateways.positions has %d entries for %d gateways", n, c.Gateways.Count)
	}
	if c.Gateways.RangeM < 0 {
		add("gateways.range_m must not be negative")
	}
	if c.Channel.CaptureMarginDB < 0 {
		add("channel.capture_margin_db must not be negative")
	}
	if c.Channel.ShadowingStdDB < 0 {
		add("channel.shadowing_std_db must not be negative")
	}
	switch c.DutyCycle.Policy {
	case "none":
	case "bounded", "off_time":
		if c.DutyCycle.Fraction <= 0 || c.DutyCycle.Fraction > 1 {
			add("duty_cycle.fraction %v outside (0,1]", c.DutyCycle.Fraction)
		}
		if c.DutyCycle.Window <= 0 {
			add("duty_cycle.window must be positive")
		}
		if c.DutyCycle.Capacity < 0 {
			add("duty_cycle.capacity must not be negative")
		}
	default:
		add("duty_cycle.policy %q is not none, bounded or off_time", c.DutyCycle.Policy)
	}
	switch c.Mobility.Model {
	case "static", "random_walk":
	default:
		add("mobility.model %q is not static or random_walk", c.Mobility.Model)
	}
	if c.Mobility.MinSpeed < 0 || c.Mobility.MaxSpeed < c.Mobility.MinSpeed {
		add("mobility speeds must satisfy 0 <= min_speed <= max_speed")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ApplyEnv overrides the seed and step count from LORASIM_SEED and LORASIM_STEPS.
func (c *SimulationConfig) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("LORASIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: LORASIM_SEED: %v", ErrInvalid, err)
		}
		c.Run.Seed = &seed
	}
	if v := getenv("LORASIM_STEPS"); v != "" {
		steps, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: LORASIM_STEPS: %v", ErrInvalid, err)
		}
		c.Run.Steps = steps
	}
	return nil
}

// DutyCycleEnabled reports whether a transmit gate other than Unlimited is configured.
func (c *SimulationConfig) DutyCycleEnabled() bool {
	return c.DutyCycle.Policy != "none"
}
