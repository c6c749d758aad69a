package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corehttpd/corehttpd/app"
	"github.com/corehttpd/corehttpd/config"
	"github.com/corehttpd/corehttpd/core/httpmsg"
	"github.com/corehttpd/corehttpd/core/pool"
	"github.com/corehttpd/corehttpd/core/scripting"
	"github.com/prometheus/client_golang/prometheus"
)

func newServeCmd() *cobra.Command {
	var addr string
	var metricsAddr string
	var keepAliveSlots int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start accepting connections and serving requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.New(configPath)
			if err != nil {
				return err
			}

			a := app.New(mgr.Get())
			a.EnableKeepAlive(keepAliveSlots)
			a.ServeMetrics(metricsAddr)
			if mgr.Get().DBPool.DataSource != "" {
				a.EnableDBPool("default")
			}

			handler := pool.HandlerFunc(func(_ context.Context, req *httpmsg.Request, resp *httpmsg.Response) {
				resp.Status = 200
				resp.Body = []byte("corehttpd\n")
			})
			a.AddPool("default", handler, prometheus.DefaultRegisterer)
			a.Manager().Route("GET", "/*path", "default")

			a.Scheduler().ScheduleProc(5*time.Minute, false, false, func() {
				logrus.WithField("component", "scheduler").Info("heartbeat")
			})
			if _, err := a.Jobs().CreateQueue("default", 4, scripting.NewEchoEngine()); err != nil {
				return err
			}

			a.Listen(addr)
			return a.Run()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	cmd.Flags().IntVar(&keepAliveSlots, "keepalive-slots", 1024, "maximum parked keep-alive connections")
	return cmd
}
