package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostInfoFromProc(t *testing.T) {
	proc := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(proc, name), []byte(content), 0644))
	}
	write("version", "Linux version 6.8.0-45-generic (buildd@lcy02) #45-Ubuntu SMP\n")
	write("uptime", "93784.12 180000.00\n")
	write("loadavg", "0.52 0.41 0.30 1/512 4242\n")
	write("meminfo", "MemTotal:        4096 kB\nMemFree:          512 kB\nMemAvailable:    1024 kB\n")

	svc := &HostService{procRoot: proc, hostname: func() (string, error) { return "pbx01", nil }}
	info := svc.Info()

	assert.Equal(t, "pbx01", info.Hostname)
	assert.Equal(t, "6.8.0-45-generic", info.KernelVersion)
	assert.Equal(t, "1d 2h 3m", info.Uptime)
	assert.Equal(t, "0.52 0.41 0.30", info.LoadAverage)
	assert.Equal(t, "4.0 MB", info.MemoryTotal)
	assert.Equal(t, "3.0 MB", info.MemoryUsed)
	assert.Equal(t, 75, info.MemoryPercent)
}

func TestHostInfoDegradesWithoutProc(t *testing.T) {
	svc := &HostService{procRoot: filepath.Join(t.TempDir(), "absent"), hostname: func() (string, error) { return "", os.ErrNotExist }}
	info := svc.Info()
	assert.Empty(t, info.Hostname)
	assert.Empty(t, info.Uptime)
	assert.Zero(t, info.MemoryPercent)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 GB", formatBytes(2<<30))
}
