package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
APP_ENV: test
APP_NAME: rewards-engine
LEDGER:
  INDEXING_DELAY: 2s
  ENDPOINTS:
    - NAME: primary
      URL: https://rpc.primary.example
      TIMEOUT: 3s
      RETRIES: 2
    - NAME: backup
      URL: https://rpc.backup.example
      TIMEOUT: 5s
      RETRIES: 1
PAYMENT:
  TOLERANCE: 0.05
  REWARD_MINT: RewardMint111111111111111111111111111111111
`

func TestLoadReadsFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sampleConfig), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "test", cfg.AppEnv)
	require.Equal(t, 2*time.Second, cfg.Ledger.IndexingDelay)
	require.Len(t, cfg.Ledger.Endpoints, 2)
	require.Equal(t, "backup", cfg.Ledger.Endpoints[1].Name)
	require.Equal(t, 5*time.Second, cfg.Ledger.Endpoints[1].Timeout)
	require.Equal(t, int64(50000), cfg.Entries.Ceiling)
	require.Equal(t, 30*time.Second, cfg.Pricing.TTL)
	require.Equal(t, DefaultTiers(), cfg.Membership.Tiers)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sampleConfig), 0o600))
	t.Setenv("ENTRIES_CEILING", "1200")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, int64(1200), cfg.Entries.Ceiling)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{}
	cfg.Payment.Tolerance = 1.5
	cfg.Entries.Ceiling = 0
	cfg.Entries.USDPerEntry = 10
	cfg.Ledger.Endpoints = []Endpoint{{Name: "empty"}}

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PAYMENT.TOLERANCE")
	require.Contains(t, err.Error(), "ENTRIES.CEILING")
	require.Contains(t, err.Error(), "LEDGER.ENDPOINTS[0].URL")
}
