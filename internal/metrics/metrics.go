package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the relay endpoints and the guard.
// Labels never carry tokens, codes or state values.
type Metrics struct {
	AuthorizeTotal        *prometheus.CounterVec
	CallbackTotal         *prometheus.CounterVec
	TokenExchangeTotal    *prometheus.CounterVec
	TokenExchangeDuration prometheus.Histogram
	GuardTotal            *prometheus.CounterVec
}

// New registers all relay metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthorizeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_relay_authorize_requests_total",
			Help: "Authorize relay requests by platform and outcome",
		}, []string{"platform", "result"}),
		CallbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_relay_callback_requests_total",
			Help: "Callback relay requests by platform and outcome",
		}, []string{"platform", "result"}),
		TokenExchangeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_relay_token_exchanges_total",
			Help: "Code exchanges by platform and outcome",
		}, []string{"platform", "result"}),
		TokenExchangeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_relay_token_exchange_duration_seconds",
			Help:    "Duration of code exchanges including the provider round trip",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GuardTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_relay_guard_decisions_total",
			Help: "Protected resource guard decisions",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncAuthorize(platform, result string) {
	m.AuthorizeTotal.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) IncCallback(platform, result string) {
	m.CallbackTotal.WithLabelValues(platform, result).Inc()
}

// ObserveTokenExchange records one exchange outcome and its duration.
// Call with time.Now() taken at the start of the exchange.
func (m *Metrics) ObserveTokenExchange(platform, result string, start time.Time) {
	m.TokenExchangeTotal.WithLabelValues(platform, result).Inc()
	m.TokenExchangeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncGuard(result string) {
	m.GuardTotal.WithLabelValues(result).Inc()
}
