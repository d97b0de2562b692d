package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "es_maker_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		FramesMalformed: promCounter{newCounter("frames_malformed_total", "Total number of ingress frames dropped as malformed.")},
		FramesDropped:   promCounter{newCounter("frames_dropped_total", "Total number of frames evicted from the full event queue.")},
		ModelSkips:      promCounter{newCounter("model_skips_total", "Total number of pricing-model updates discarded by the numeric guard.")},
		GateRejections:  promCounter{newCounter("gate_rejections_total", "Total number of candidate signals rejected by a filter gate.")},
		OrdersPlaced:    promCounter{newCounter("orders_placed_total", "Total number of passive orders placed.")},
		OrdersModified:  promCounter{newCounter("orders_modified_total", "Total number of re-price modifications emitted.")},
		OrdersCancelled: promCounter{newCounter("orders_cancelled_total", "Total number of cancels emitted.")},
		RegimeTrips:     promCounter{newCounter("regime_trips_total", "Total number of BTC regime circuit-breaker trips.")},
		Flattens:        promCounter{newCounter("flattens_total", "Total number of CLOSE_ALL flatten commands emitted.")},
		SendFailures:    promCounter{newCounter("send_failures_total", "Total number of order-sink send failures.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
