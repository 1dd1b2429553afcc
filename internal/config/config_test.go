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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultGraduationThresholdSol, cfg.Curve.GraduationThresholdSol)
	assert.Equal(t, DefaultTotalSupply, cfg.Curve.TotalSupply)
	assert.Equal(t, uint16(DefaultTradingFeeBps), cfg.Curve.DefaultTradingFeeBps)
	assert.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, cfg.Retry.BaseDelay)
	assert.Equal(t, 0.001, cfg.Fees.MinClaimSol)
	assert.Equal(t, 10*time.Minute, cfg.Fees.ProvisionalExpiry)
	assert.Equal(t, "confirmed", cfg.RPC.Commitment)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
rpc:
  url: "https://rpc.example.org"
  confirm_timeout: 45s
curve:
  graduation_threshold_sol: 70
fees:
  claim_delay: 250ms
`)
	t.Setenv("LAUNCHPAD_TREASURY_SECRET", "s3cret")
	t.Setenv("LAUNCHPAD_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.RPC.URL)
	assert.Equal(t, 45*time.Second, cfg.RPC.ConfirmTimeout)
	assert.Equal(t, 70.0, cfg.Curve.GraduationThresholdSol)
	assert.Equal(t, 250*time.Millisecond, cfg.Fees.ClaimDelay)
	assert.Equal(t, "s3cret", cfg.Treasury.Secret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.RPC.URL = "ftp://nope"
	cfg.RPC.Commitment = "eventually"
	cfg.Retry.MaxAttempts = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc.url")
	assert.Contains(t, err.Error(), "rpc.commitment")
	assert.Contains(t, err.Error(), "retry.max_attempts")
}

func TestString_HidesSecrets(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Keys.Deployer = "deployer-secret-key"
	cfg.Treasury.Secret = "treasury-secret"

	out := cfg.String()
	assert.NotContains(t, out, "deployer-secret-key")
	assert.NotContains(t, out, "treasury-secret")
}

func TestLoadConfig_FallbackURLsFromEnv(t *testing.T) {
	t.Setenv("LAUNCHPAD_RPC_FALLBACK_URLS", "https://a.example.org, https://b.example.org")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.RPC.FallbackURLs)
	assert.Equal(t, 30*time.Second, cfg.RPC.EndpointCooldown)

	cfg.RPC.FallbackURLs = append(cfg.RPC.FallbackURLs, "not a url")
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc.fallback_urls[2]")
}
