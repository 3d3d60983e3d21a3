package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gridcore/internal/core"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownStrategyAccount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies[0].Account = "ghost"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "account not found")
}

func TestValidateRejectsDuplicateStratID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = append(cfg.Strategies, cfg.Strategies[0])
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be unique")
}

func TestValidateRejectsOddGridCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies[0].GridCount = 41
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "grid_count must be even")
}

func TestValidateRejectsInvertedLiqRatios(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies[0].Risk.MinLiqRatio = cfg.Strategies[0].Risk.MaxLiqRatio.Add(cfg.Strategies[0].Risk.MaxLiqRatio)
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "min_liq_ratio")
}

func TestValidateRejectsZeroPositionCheckInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Orchestrator.PositionCheckInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "position_check_interval")
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("GRIDCORE_TEST_API_KEY", "from-env")

	raw := `
accounts:
  main:
    api_key: "${GRIDCORE_TEST_API_KEY}"
    api_secret: "shh"
    testnet: true
strategies:
  - strat_id: s1
    account: main
    symbol: BTCUSDT
    tick_size: "0.1"
    grid_count: 10
    grid_step: "0.2"
    risk_config:
      min_liq_ratio: "0.2"
      max_liq_ratio: "0.8"
      max_margin: "1000"
      min_total_margin: "100"
orchestrator:
  position_check_interval: 5
system:
  log_level: INFO
  anchor_db_path: ./anchors.db
  risk_cache_path: ./risk.json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, Secret("from-env"), cfg.Accounts["main"].APIKey)
}

func TestSecretStringMasksValue(t *testing.T) {
	s := Secret("super-secret")
	require.Equal(t, "[REDACTED]", s.String())
	require.Equal(t, "", Secret("").String())
}

func TestStrategyConfigGridConfigDefaultsRebalanceThreshold(t *testing.T) {
	s := DefaultConfig().Strategies[0]
	gc := s.GridConfig()
	require.True(t, gc.RebalanceThreshold.Equal(defaultRebalanceThreshold))
}

func TestGridDirectionDefaultsToLong(t *testing.T) {
	s := DefaultConfig().Strategies[0]
	require.Equal(t, core.DirectionLong, s.GridDirection())

	s.Direction = "short"
	require.Equal(t, core.DirectionShort, s.GridDirection())
}

func TestValidateRejectsBogusDirection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies[0].Direction = "sideways"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be long or short")
}
