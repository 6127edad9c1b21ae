// Package config loads cardledger settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/cardledger/internal/cycle"
	"github.com/rumor-ml/commons.systems/cardledger/internal/logger"
)

// Parser selection values for importer.parser
const (
	ParserAuto = "auto"
	ParserOFX  = "ofx"
	ParserSGML = "sgml"
	ParserCSV  = "csv"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Importer  ImporterConfig  `yaml:"importer"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CalendarConfig struct {
	Holidays []string `yaml:"holidays"` // YYYY-MM-DD
}

type ReconcileConfig struct {
	ToleranceDays  int     `yaml:"tolerance_days"`
	ToleranceValue float64 `yaml:"tolerance_value"`
}

type ImporterConfig struct {
	Parser         string `yaml:"parser"`
	DefaultAccount string `yaml:"default_account"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns the settings used when no file is given
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Path: "cardledger.db"},
		Reconcile: ReconcileConfig{ToleranceDays: 2, ToleranceValue: 0.01},
		Importer:  ImporterConfig{Parser: ParserAuto, DefaultAccount: "Conta Corrente"},
		Server:    ServerConfig{Addr: "127.0.0.1:8080"},
		Log:       LogConfig{Level: "info", Format: logger.FormatConsole},
	}
}

// Load reads path on top of Default and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Database.Path = getEnv("CARDLEDGER_DB", c.Database.Path)
	c.Server.Addr = getEnv("CARDLEDGER_ADDR", c.Server.Addr)
	c.Log.Level = getEnv("CARDLEDGER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("CARDLEDGER_LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("CARDLEDGER_TOLERANCE_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CARDLEDGER_TOLERANCE_DAYS: %w", err)
		}
		c.Reconcile.ToleranceDays = days
	}
	return nil
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if _, err := c.Holidays(); err != nil {
		errs = append(errs, fmt.Errorf("calendar.holidays: %w", err))
	}
	if c.Reconcile.ToleranceDays < 0 {
		errs = append(errs, fmt.Errorf("reconcile.tolerance_days must not be negative, got %d", c.Reconcile.ToleranceDays))
	}
	if c.Reconcile.ToleranceValue < 0 {
		errs = append(errs, fmt.Errorf("reconcile.tolerance_value must not be negative, got %v", c.Reconcile.ToleranceValue))
	}
	switch strings.ToLower(c.Importer.Parser) {
	case "", ParserAuto, ParserOFX, ParserSGML, ParserCSV:
	default:
		errs = append(errs, fmt.Errorf("importer.parser must be one of auto, ofx, sgml, csv, got %q", c.Importer.Parser))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logger.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Holidays parses calendar.holidays
func (c *Config) Holidays() (cycle.Holidays, error) {
	return cycle.ParseHolidays(c.Calendar.Holidays)
}

// ToleranceValue returns reconcile.tolerance_value as money
func (c *Config) ToleranceValue() decimal.Decimal {
	return decimal.NewFromFloat(c.Reconcile.ToleranceValue).Round(2)
}

// ParserName returns importer.parser normalized, with empty meaning auto
func (c *Config) ParserName() string {
	name := strings.ToLower(strings.TrimSpace(c.Importer.Parser))
	if name == "" {
		return ParserAuto
	}
	return name
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
