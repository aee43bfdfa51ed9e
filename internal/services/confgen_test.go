package services

import (
	"os"
	"path/filepath"
	"testing"

	"asteriskgui/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPJSIPEmpty(t *testing.T) {
	data, err := RenderPJSIP(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "; Managed by asteriskgui. Manual edits are overwritten.\n", string(data))
}

func TestRenderTrunkWithoutAuthOrRegistration(t *testing.T) {
	data, err := RenderPJSIP(nil, []models.Trunk{{
		ID: "carrier", Host: "203.0.113.5", Port: 5080, Context: "from-trunk", Qualify: "no",
		QualifyFrequency: 60, Protocol: "TCP", Register: "yes", Status: "active",
	}})
	require.NoError(t, err)

	conf := string(data)
	assert.Contains(t, conf, "transport=transport-tcp\n")
	assert.Contains(t, conf, "qualify_frequency=0\n")
	assert.NotContains(t, conf, "outbound_auth")
	assert.NotContains(t, conf, "type=registration")
}

func TestRenderQueuesHeader(t *testing.T) {
	data, err := RenderQueues([]models.Queue{})
	require.NoError(t, err)
	assert.Equal(t, "; Managed by asteriskgui. Manual edits are overwritten.\n\n[general]\npersistentmembers=yes\n", string(data))
}

func TestWriteFileAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.conf")

	require.NoError(t, writeFileAtomic(path, []byte("one")))
	require.NoError(t, writeFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.NoFileExists(t, path+".tmp")
}
