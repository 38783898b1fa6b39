package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus registry.
type MetricsHandler struct {
	handler gin.HandlerFunc
}

// NewMetricsHandler serves metrics gathered from g.
func NewMetricsHandler(g prometheus.Gatherer) *MetricsHandler {
	return &MetricsHandler{
		handler: gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})),
	}
}

// Metrics godoc
// @Summary Prometheus metrics
// @Tags System
// @Produce plain
// @Success 200 {string} string "Prometheus exposition format"
// @Router /metrics [get]
func (h *MetricsHandler) Metrics(c *gin.Context) {
	h.handler(c)
}
