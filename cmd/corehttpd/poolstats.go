package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corehttpd/corehttpd/core/pools"
)

// newPoolStatsCmd scrapes a running server's /metrics endpoint and prints
// only the pool-related series, a lightweight analogue of the original's
// ns_pools admin command.
func newPoolStatsCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "pool-stats",
		Short: "Print pool admission-control gauges from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get("http://" + metricsAddr + "/metrics")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if err := printPoolMetrics(cmd.OutOrStdout(), resp.Body); err != nil {
				return err
			}

			gc := pools.GetGCStats()
			fmt.Fprintf(cmd.OutOrStdout(), "gc: numgc=%d goroutines=%d alloc=%d avgpause=%s\n",
				gc.NumGC, gc.NumGoroutine, gc.AllocBytes, gc.AvgPause)
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9090", "address of the running server's metrics endpoint")
	return cmd
}

func printPoolMetrics(w io.Writer, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "_pool_") {
			fmt.Fprintln(w, line)
		}
	}
	return scanner.Err()
}
