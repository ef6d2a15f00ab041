package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "nmap", cfg.NmapBinary)
	assert.Equal(t, 300*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Len(t, cfg.VulnerablePorts, 13)

	assert.Equal(t, "FTP", cfg.VulnerablePorts[21].Service)
	assert.Equal(t, "vsftpd", cfg.Packages["linux"][21])
	assert.Equal(t, "TermService", cfg.Services["windows"][3389])
}

func TestHighRiskSet(t *testing.T) {
	set := DefaultConfig().HighRiskSet()

	assert.True(t, set[21])
	assert.True(t, set[3389])
	assert.False(t, set[22])
	assert.False(t, set[80])
}

func TestLoadConfigFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"target":"192.168.1.10","max_retries":5}`), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.10", cfg.Target)
	assert.Equal(t, 5, cfg.MaxRetries)
	// Untouched fields keep their defaults.
	assert.Equal(t, "nmap", cfg.NmapBinary)
	assert.Len(t, cfg.VulnerablePorts, 13)
}

func TestLoadConfigFromMissingFile(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestWriteReportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReportToFile(map[string]int{"open_ports": 2}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "open_ports")
}
