// Package app wires together the configuration, pool manager, drivers,
// and keep-alive waiter into a runnable server, mirroring the teacher's
// App/Engine split but built on the connection lifecycle engine instead
// of a single-event-loop zero-allocation engine.
package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/corehttpd/corehttpd/config"
	"github.com/corehttpd/corehttpd/core/dbpool"
	"github.com/corehttpd/corehttpd/core/driver"
	"github.com/corehttpd/corehttpd/core/httpmsg"
	"github.com/corehttpd/corehttpd/core/jobqueue"
	"github.com/corehttpd/corehttpd/core/keepalive"
	"github.com/corehttpd/corehttpd/core/metrics"
	"github.com/corehttpd/corehttpd/core/pool"
	"github.com/corehttpd/corehttpd/core/pools"
	"github.com/corehttpd/corehttpd/core/scheduler"
	"github.com/corehttpd/corehttpd/core/syncx"
)

// App is the top-level process: it owns the pool manager, the listening
// drivers, and the keep-alive waiter, and coordinates startup/shutdown.
type App struct {
	cfg *config.Config
	log *logrus.Entry

	registry  *syncx.Registry
	manager   *pool.Manager
	waiter    *keepalive.Waiter
	drivers   []driver.Driver
	listeners []string
	dbpools   map[string]*dbpool.Pool
	dbstop    chan struct{}
	sched     *scheduler.Scheduler
	jobs      *jobqueue.Manager

	pidPath    string
	metricsSrv *http.Server
}

// New builds an App from loaded configuration. Pools and routes are added
// with AddPool/Route before calling Run.
func New(cfg *config.Config) *App {
	return &App{
		cfg:      cfg,
		log:      logrus.WithField("component", "app"),
		registry: syncx.NewRegistry(),
		manager:  pool.NewManager("default", "default"),
		dbpools:  make(map[string]*dbpool.Pool),
		dbstop:   make(chan struct{}),
		sched:    scheduler.New(),
		jobs:     jobqueue.NewManager(),
	}
}

// Scheduler exposes the app's background job scheduler for registering
// one-shot, periodic, daily, or weekly tasks.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Jobs exposes the app's named job queue manager.
func (a *App) Jobs() *jobqueue.Manager { return a.jobs }

// Manager exposes the pool manager for route/pool registration.
func (a *App) Manager() *pool.Manager { return a.manager }

// AddPool registers a named pool built from the app's configuration and
// Prometheus registry, with the keep-alive waiter as its handoff sink.
func (a *App) AddPool(name string, handler pool.Handler, reg prometheus.Registerer) *pool.Pool {
	pc, _ := a.cfg.PoolConfig(name)
	if pc.MaxThreads == 0 {
		pc.MaxThreads = 10
	}
	timeout := pc.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	gauges := metrics.NewPoolGauges(reg, name)
	p := pool.New(name, pool.Config{
		MinThreads:  pc.MinThreads,
		MaxThreads:  pc.MaxThreads,
		MaxConns:    pc.MaxConns,
		IdleTimeout: timeout,
		Limits: httpmsg.Limits{
			MaxLine:    a.cfg.Server.MaxLine,
			MaxHeaders: a.cfg.Server.MaxHeaders,
			MaxPost:    a.cfg.Server.MaxPost,
		},
	}, a.registry, handler, a.waiterSink(), gauges)

	a.manager.Register(p)
	return p
}

func (a *App) waiterSink() pool.KeepAliveSink {
	if a.waiter == nil {
		return nil
	}
	return a.waiter
}

// EnableDBPool builds a named database handle pool from configuration,
// starts its idle-reclaim sweep, and registers it for lookup via DBPool.
func (a *App) EnableDBPool(name string) *dbpool.Pool {
	dc := a.cfg.DBPool
	opener := dbpool.NewGormOpener(dc.DataSource, dc.Verbose)
	p := dbpool.New(name, dbpool.Config{
		Connections: dc.Connections,
		MaxIdle:     dc.MaxIdle,
		MaxOpen:     dc.MaxOpen,
	}, opener, a.registry)

	p.StartSweep(time.Minute, a.dbstop)
	a.dbpools[name] = p
	return p
}

// DBPool looks up a database pool previously built with EnableDBPool.
func (a *App) DBPool(name string) (*dbpool.Pool, bool) {
	p, ok := a.dbpools[name]
	return p, ok
}

// EnableKeepAlive starts the keep-alive waiter, requeuing readable
// parked connections back through the pool manager.
func (a *App) EnableKeepAlive(maxSlots int) {
	if maxSlots <= 0 {
		maxSlots = 1024
	}
	a.waiter = keepalive.New(maxSlots, a.manager)
}

// Listen registers a TCP driver bound to addr, to be started by Run.
func (a *App) Listen(addr string) {
	a.drivers = append(a.drivers, driver.NewTCPDriver(addr))
	a.listeners = append(a.listeners, addr)
}

// ServeMetrics starts a /metrics endpoint on addr using the default
// Prometheus registry, for the pool-stats CLI subcommand and external
// scrapers alike.
func (a *App) ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metricsSrv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.WithError(err).Warn("metrics server stopped")
		}
	}()
}

// Run binds every registered listener, writes the pid file, and blocks
// accepting connections until a shutdown signal arrives.
func (a *App) Run() error {
	pools.OptimizeForHighThroughput()
	if err := a.writePidFile(); err != nil {
		return err
	}
	defer a.removePidFile()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range a.drivers {
		d := d
		g.Go(func() error {
			if err := d.Init(gctx); err != nil {
				return errors.Wrapf(err, "app: init driver %s", d.Name())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, d := range a.drivers {
		go a.acceptLoop(ctx, d)
	}
	a.log.WithField("listeners", a.listeners).Info("server started")

	a.awaitSignal()
	return a.shutdown()
}

func (a *App) acceptLoop(ctx context.Context, d driver.Driver) {
	for {
		c, err := d.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.WithError(err).Warn("accept failed")
			continue
		}
		if err := a.manager.Dispatch(c); err != nil {
			a.log.WithError(err).Warn("dispatch failed")
			c.Close()
		}
	}
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.log.WithField("signal", sig).Info("shutdown signal received")
}

func (a *App) shutdown() error {
	deadline := time.Now().Add(30 * time.Second)
	close(a.dbstop)
	a.sched.Shutdown()
	for _, d := range a.drivers {
		d.Close()
	}
	if a.waiter != nil {
		if err := a.waiter.Shutdown(deadline); err != nil {
			a.log.WithError(err).Warn("keepalive shutdown did not complete cleanly")
		}
	}
	if a.metricsSrv != nil {
		a.metricsSrv.Close()
	}
	return nil
}

func (a *App) writePidFile() error {
	a.pidPath = "corehttpd.pid"
	return os.WriteFile(a.pidPath, []byte(itoaPid(os.Getpid())+"\n"), 0o644)
}

func (a *App) removePidFile() {
	if a.pidPath != "" {
		os.Remove(a.pidPath)
	}
}

func itoaPid(pid int) string {
	if pid == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for pid > 0 {
		i--
		b[i] = byte('0' + pid%10)
		pid /= 10
	}
	return string(b[i:])
}
