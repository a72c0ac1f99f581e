package exporter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewHandler serves c alongside the exporter's own Go runtime and process
// metrics.
func NewHandler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, fmt.Errorf("register taskstats collector: %w", err)
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorLog: zapErrorLog{c.log}}), nil
}

// zapErrorLog adapts zap to promhttp's Println-style logger.
type zapErrorLog struct {
	log *zap.Logger
}

func (l zapErrorLog) Println(v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintln(v...)))
}
