package monitor

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/w3f-community/iroha/monitor/monitor_options"
)

type MetricsServer struct {
	opts   *monitor_options.Options
	server *http.Server
}

func NewMetricsServer(opts *monitor_options.Options) *MetricsServer {
	return &MetricsServer{
		opts: opts.WithDefaults(),
	}
}

// Serve runs the scrape endpoint until ctx is canceled. When a stdout
// interval is configured it also periodically dumps metrics as a table,
// which is handy when running without a Prometheus around.
func (m *MetricsServer) Serve(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Addr: m.opts.ListenAddress, Handler: mux}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("Metrics server finished with error: %v", err)
		}
	}()

	if m.opts.StdoutIntervalSeconds > 0 {
		ticker := time.NewTicker(time.Duration(m.opts.StdoutIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.shutdown()
				return
			case <-ticker.C:
				m.spewStdout()
			}
		}
	}

	<-ctx.Done()
	m.shutdown()
}

func (m *MetricsServer) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = m.server.Shutdown(shutdownCtx)
}

func (m *MetricsServer) spewStdout() {
	table := tablewriter.NewWriter(os.Stdout)

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		logrus.Errorf("Can't gather metrics: %v", err)
		return
	}

	for _, mf := range metricFamilies {
		if strings.HasPrefix(mf.GetName(), "go_") || strings.HasPrefix(mf.GetName(), "process_") {
			// Default runtime metrics, skip them.
			continue
		}
		for _, metric := range mf.GetMetric() {
			table.Append([]string{mf.GetName(), metric.String()})
		}
	}

	table.Render()
}
