package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, time.Minute, c.TokenValidity)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
	assert.Empty(t, c.SecretKey)
}

func TestLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "admin.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server_endpoint_addr": "relay:50051",
		"secret_key": "from-file",
		"token_validity": "2m"
	}`), 0o600))

	args := []string{"-c", path, "-s", "from-flag", "-w", "1s"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)

	want := &Config{
		ServerEndpointAddr: "relay:50051",
		SecretKey:          "from-flag",
		TokenValidity:      2 * time.Minute,
		RequestTimeout:     time.Second,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJson_Invalid(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))

	require.Panics(t, func() { parseJson(&Config{}, []string{"-config", bad}) })
}

func TestParseFlags_BadDuration(t *testing.T) {
	require.Panics(t, func() { parseFlags(&Config{}, []string{"-t", "later"}) })
}
