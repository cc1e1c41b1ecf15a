// Package metrics exposes Prometheus counters for the access-control
// gates. Each server instance carries its own registry so multiple
// instances in one process never collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gate counters and their registry.
type Metrics struct {
	registry *prometheus.Registry

	SignedURLVerifications *prometheus.CounterVec
	CaptchaDecisions       *prometheus.CounterVec
	APIKeyVerifications    *prometheus.CounterVec
	PayloadRejections      *prometheus.CounterVec
}

// New creates and registers the gate counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SignedURLVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_signed_url_verifications_total",
				Help: "Signed download link verifications by outcome.",
			},
			[]string{"outcome"},
		),
		CaptchaDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_captcha_decisions_total",
				Help: "Captcha gate decisions by outcome and reason.",
			},
			[]string{"outcome", "reason"},
		),
		APIKeyVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_api_key_verifications_total",
				Help: "API key verifications by outcome.",
			},
			[]string{"outcome"},
		),
		PayloadRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_payload_rejections_total",
				Help: "Oversized request rejections by route class.",
			},
			[]string{"class"},
		),
	}

	m.registry.MustRegister(
		m.SignedURLVerifications,
		m.CaptchaDecisions,
		m.APIKeyVerifications,
		m.PayloadRejections,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
