package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corehttpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	m, err := New("")
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, float64(120), cfg.KeepAlive.Timeout.Seconds())
	assert.Equal(t, 2, cfg.DBPool.Connections)
}

func TestLoadFromFile(t *testing.T) {
	path := writeTempConfig(t, `
pool:
  default:
    minthreads: 1
    maxthreads: 20
    maxconns: 0
    timeout: 60s
server:
  maxheaders: 8192
  maxline: 4096
prebind: "0.0.0.0:80,0.0.0.0:443"
redirects:
  "404": "/not-found"
`)
	m, err := New(path)
	require.NoError(t, err)
	cfg := m.Get()

	p, ok := cfg.PoolConfig("default")
	require.True(t, ok, "expected default pool to be present")
	assert.Equal(t, 20, p.MaxThreads)
	assert.Equal(t, 8192, cfg.Server.MaxHeaders)

	url, ok := cfg.RedirectFor(404)
	assert.True(t, ok)
	assert.Equal(t, "/not-found", url)
}

func TestPoolConfigFallsBackToDefault(t *testing.T) {
	path := writeTempConfig(t, `
pool:
  default:
    maxthreads: 5
`)
	m, err := New(path)
	require.NoError(t, err)

	p, ok := m.Get().PoolConfig("admin")
	require.True(t, ok, "expected fallback to default pool")
	assert.Equal(t, 5, p.MaxThreads)
}
