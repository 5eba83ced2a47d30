// Package metrics records factory outcomes as Prometheus counters and as
// InfluxDB points.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromRecorder counts wallet creations and rejections.
type PromRecorder struct {
	created  *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// NewPromRecorder registers the factory metrics on reg. If reg is nil, the
// default registerer is used. Collectors that are already registered are
// reused.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletfactory",
		Name:      "wallets_created_total",
		Help:      "Total number of wallets created",
	}, []string{"variant"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletfactory",
		Name:      "creation_rejections_total",
		Help:      "Total number of rejected wallet creation requests",
	}, []string{"variant", "code"})

	var err error
	if created, err = register(reg, created); err != nil {
		return nil, err
	}
	if rejected, err = register(reg, rejected); err != nil {
		return nil, err
	}
	return &PromRecorder{created: created, rejected: rejected}, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

// WalletCreated counts a successful creation.
func (r *PromRecorder) WalletCreated(variant string) {
	r.created.WithLabelValues(variant).Inc()
}

// CreationRejected counts a rejected creation by reason code.
func (r *PromRecorder) CreationRejected(variant, code string) {
	r.rejected.WithLabelValues(variant, code).Inc()
}

// WriteTextfile dumps everything gathered by g to path in the text format
// read by the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
