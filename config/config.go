// Package config loads the server's typed configuration surface from file
// and environment, matching the recognized keys (pool.*, server.*,
// keepalive.*, dbpool.*, prebind, redirects.*), and supports live-reload
// callbacks the way the teacher's hand-rolled config/manager.go did, now
// backed by viper's own file-watcher instead of a custom fsnotify loop.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Pool holds one named worker pool's admission-control knobs.
type Pool struct {
	MinThreads int           `mapstructure:"minthreads"`
	MaxThreads int           `mapstructure:"maxthreads"`
	MaxConns   int           `mapstructure:"maxconns"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Server holds parser/transport limits.
type Server struct {
	MaxHeaders   int `mapstructure:"maxheaders"`
	MaxLine      int `mapstructure:"maxline"`
	MaxPost      int `mapstructure:"maxpost"`
	SendFdMin    int `mapstructure:"sendfdmin"`
	ErrorMinSize int `mapstructure:"errorminsize"`
}

// KeepAlive holds the keep-alive waiter's knobs.
type KeepAlive struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	MaxKeep int           `mapstructure:"maxkeep"`
}

// DBPool holds the database handle pool's knobs.
type DBPool struct {
	Connections    int           `mapstructure:"connections"`
	MaxIdle        time.Duration `mapstructure:"maxidle"`
	MaxOpen        time.Duration `mapstructure:"maxopen"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DataSource     string        `mapstructure:"datasource"`
	Verbose        bool          `mapstructure:"verbose"`
	LogSQLErrors   bool          `mapstructure:"logsqlerrors"`
}

// Config is the fully-loaded configuration surface.
type Config struct {
	Pools     map[string]Pool  `mapstructure:"pool"`
	Server    Server           `mapstructure:"server"`
	KeepAlive KeepAlive        `mapstructure:"keepalive"`
	DBPool    DBPool           `mapstructure:"dbpool"`
	PreBind   string           `mapstructure:"prebind"`
	Redirects map[string]string `mapstructure:"redirects"`
}

// defaults sets the server limits, keep-alive and DB pool keys (DB pool
// connections 2, MaxIdle 600s, MaxOpen 3600s). Worker pool defaults
// (maxthreads, timeout, ...) are not set here; app.AddPool and pool.New
// apply them.
func defaults(v *viper.Viper) {
	v.SetDefault("server.maxheaders", 0)
	v.SetDefault("server.maxline", 0)
	v.SetDefault("server.maxpost", 0)
	v.SetDefault("keepalive.enabled", true)
	v.SetDefault("keepalive.timeout", "120s")
	v.SetDefault("dbpool.connections", 2)
	v.SetDefault("dbpool.maxidle", "600s")
	v.SetDefault("dbpool.maxopen", "3600s")
}

// Manager owns the live viper instance and the Config decoded from it,
// re-decoding and invoking registered Watch callbacks whenever the
// backing file changes.
type Manager struct {
	v        *viper.Viper
	cfg      *Config
	watchers []func(*Config)
	log      *logrus.Entry
}

// New loads configuration from path (if non-empty) plus environment
// variables prefixed COREHTTPD_, decoding into a Config.
func New(path string) (*Manager, error) {
	v := viper.New()
	v.SetEnvPrefix("corehttpd")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	}

	m := &Manager{v: v, log: logrus.WithField("component", "config")}
	if err := m.decode(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(in fsnotify.Event) {
		m.log.WithField("file", in.Name).Info("config file changed, reloading")
		if err := m.decode(); err != nil {
			m.log.WithError(err).Error("config: reload failed, keeping previous values")
			return
		}
		for _, w := range m.watchers {
			w(m.cfg)
		}
	})
	if path != "" {
		v.WatchConfig()
	}

	return m, nil
}

func (m *Manager) decode() error {
	cfg := &Config{}
	if err := m.v.Unmarshal(cfg); err != nil {
		return errors.Wrap(err, "config: decode")
	}
	m.cfg = cfg
	return nil
}

// Get returns the current decoded configuration.
func (m *Manager) Get() *Config { return m.cfg }

// Watch registers fn to be called with the newly decoded config every
// time the backing file changes.
func (m *Manager) Watch(fn func(*Config)) {
	m.watchers = append(m.watchers, fn)
}

// PoolConfig looks up a named pool's configuration, falling back to the
// "default" pool if name isn't present.
func (c *Config) PoolConfig(name string) (Pool, bool) {
	p, ok := c.Pools[name]
	if !ok {
		p, ok = c.Pools["default"]
	}
	return p, ok
}

// RedirectFor returns the configured redirect URL for a status code, if
// any.
func (c *Config) RedirectFor(status int) (string, bool) {
	url, ok := c.Redirects[fmt.Sprintf("%d", status)]
	return url, ok
}
