package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "cardledger.db", cfg.Database.Path)
	assert.Equal(t, 2, cfg.Reconcile.ToleranceDays)
	assert.Equal(t, "0.01", cfg.ToleranceValue().StringFixed(2))
	assert.Equal(t, ParserAuto, cfg.ParserName())
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)

	h, err := cfg.Holidays()
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/ledger.db
calendar:
  holidays:
    - 2024-04-21
    - 2024-05-01
reconcile:
  tolerance_days: 3
  tolerance_value: 0.5
importer:
  parser: SGML
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Reconcile.ToleranceDays)
	assert.Equal(t, "0.50", cfg.ToleranceValue().StringFixed(2))
	assert.Equal(t, ParserSGML, cfg.ParserName())
	assert.Equal(t, "Conta Corrente", cfg.Importer.DefaultAccount, "unset keys keep defaults")

	h, err := cfg.Holidays()
	require.NoError(t, err)
	assert.True(t, h.Contains(time.Date(2024, 4, 21, 0, 0, 0, 0, time.UTC)))
	assert.True(t, h.Contains(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CARDLEDGER_DB", "/data/env.db")
	t.Setenv("CARDLEDGER_ADDR", ":9090")
	t.Setenv("CARDLEDGER_TOLERANCE_DAYS", "5")
	t.Setenv("CARDLEDGER_LOG_FORMAT", "json")

	cfg, err := Load(writeConfig(t, "database:\n  path: file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data/env.db", cfg.Database.Path)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Reconcile.ToleranceDays)
	assert.Equal(t, "json", cfg.Log.Format)

	t.Setenv("CARDLEDGER_TOLERANCE_DAYS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "CARDLEDGER_TOLERANCE_DAYS")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "database: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = " "
	cfg.Calendar.Holidays = []string{"2024-13-01"}
	cfg.Reconcile.ToleranceDays = -1
	cfg.Reconcile.ToleranceValue = -0.01
	cfg.Importer.Parser = "qif"
	cfg.Log.Level = "chatty"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"database.path",
		"calendar.holidays",
		"reconcile.tolerance_days",
		"reconcile.tolerance_value",
		"importer.parser",
		"log.level",
		"log.format",
	} {
		assert.ErrorContains(t, err, want)
	}

	assert.NoError(t, Default().Validate())
}
