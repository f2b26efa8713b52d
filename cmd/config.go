package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration loaded from YAML. Every field has a
// usable default, so a missing config file runs the demo model as is.
type Config struct {
	Run   RunConfig   `yaml:"run"`
	Trace TraceConfig `yaml:"trace"`
	Bank  BankConfig  `yaml:"bank"`
}

// RunConfig controls the run itself.
type RunConfig struct {
	LengthMinutes float64 `yaml:"length-minutes"`
	Seed          uint64  `yaml:"seed"`
}

// TraceConfig controls activity trace output.
type TraceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Format    string `yaml:"format"`     // "table" or "csv"
	MaxEvents int    `yaml:"max-events"` // 0 = no cap
}

// BankConfig parameterizes the demo bank model.
type BankConfig struct {
	Tellers          int     `yaml:"tellers"`
	MerchantTellers  int     `yaml:"merchant-tellers"`
	MeanInterarrival float64 `yaml:"mean-interarrival-minutes"`
	MeanService      float64 `yaml:"mean-service-minutes"`
	ServiceStdev     float64 `yaml:"service-stdev-minutes"`

	TellerBreak BreakConfig `yaml:"teller-break"`
}

// BreakConfig schedules a recurring break for the first regular teller.
type BreakConfig struct {
	Enabled       bool    `yaml:"enabled"`
	CycleMinutes  float64 `yaml:"cycle-minutes"`
	StartMinute   float64 `yaml:"start-minute"`
	LengthMinutes float64 `yaml:"length-minutes"`
}

// DefaultConfig returns the configuration the run subcommand uses when no
// config file is given: a three-teller bank open for one 8-hour day.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			LengthMinutes: 480,
			Seed:          42,
		},
		Trace: TraceConfig{
			Enabled:   false,
			Format:    "table",
			MaxEvents: 0,
		},
		Bank: BankConfig{
			Tellers:          3,
			MerchantTellers:  1,
			MeanInterarrival: 1.0,
			MeanService:      3.0,
			ServiceStdev:     0.6,
			TellerBreak: BreakConfig{
				Enabled:       true,
				CycleMinutes:  120,
				StartMinute:   100,
				LengthMinutes: 10,
			},
		},
	}
}

// LoadConfig reads a YAML config file over the defaults, with strict field
// checking so typos surface as errors rather than silently ignored keys.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the model cannot run with.
func (c *Config) Validate() error {
	if c.Run.LengthMinutes <= 0 {
		return fmt.Errorf("run.length-minutes must be > 0, got %v", c.Run.LengthMinutes)
	}
	if c.Trace.Format != "table" && c.Trace.Format != "csv" {
		return fmt.Errorf("trace.format must be \"table\" or \"csv\", got %q", c.Trace.Format)
	}
	if c.Trace.MaxEvents < 0 {
		return fmt.Errorf("trace.max-events must be >= 0, got %d", c.Trace.MaxEvents)
	}
	if c.Bank.Tellers < 1 {
		return fmt.Errorf("bank.tellers must be >= 1, got %d", c.Bank.Tellers)
	}
	if c.Bank.MerchantTellers < 0 {
		return fmt.Errorf("bank.merchant-tellers must be >= 0, got %d", c.Bank.MerchantTellers)
	}
	if c.Bank.MeanInterarrival <= 0 {
		return fmt.Errorf("bank.mean-interarrival-minutes must be > 0, got %v", c.Bank.MeanInterarrival)
	}
	if c.Bank.MeanService <= 0 {
		return fmt.Errorf("bank.mean-service-minutes must be > 0, got %v", c.Bank.MeanService)
	}
	if c.Bank.ServiceStdev < 0 {
		return fmt.Errorf("bank.service-stdev-minutes must be >= 0, got %v", c.Bank.ServiceStdev)
	}
	if b := c.Bank.TellerBreak; b.Enabled {
		if b.CycleMinutes <= 0 {
			return fmt.Errorf("bank.teller-break.cycle-minutes must be > 0, got %v", b.CycleMinutes)
		}
		if b.StartMinute < 0 || b.StartMinute >= b.CycleMinutes {
			return fmt.Errorf("bank.teller-break.start-minute must be in [0, cycle), got %v", b.StartMinute)
		}
		if b.LengthMinutes <= 0 {
			return fmt.Errorf("bank.teller-break.length-minutes must be > 0, got %v", b.LengthMinutes)
		}
		if b.StartMinute+b.LengthMinutes > b.CycleMinutes {
			return fmt.Errorf("bank.teller-break ends at minute %v, after the %v-minute cycle",
				b.StartMinute+b.LengthMinutes, b.CycleMinutes)
		}
	}
	return nil
}
