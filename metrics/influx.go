package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

const creationMeasurement = "wallet_creation"

// InfluxConfig locates the bucket creation outcomes are written to.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxRecorder writes one point per creation attempt.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      zerolog.Logger
	now      func() time.Time
}

func NewInfluxRecorder(cfg InfluxConfig, log zerolog.Logger) *InfluxRecorder {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      log.With().Str("component", "influx").Logger(),
		now:      time.Now,
	}
}

// Ping checks that the server is healthy.
func (r *InfluxRecorder) Ping(ctx context.Context) error {
	ok, err := r.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errInfluxUnhealthy
	}
	return nil
}

func (r *InfluxRecorder) point(variant, outcome, code string) *write.Point {
	p := write.NewPointWithMeasurement(creationMeasurement).
		AddTag("variant", variant).
		AddTag("outcome", outcome).
		AddField("count", 1).
		SetTime(r.now())
	if code != "" {
		p.AddTag("code", code)
	}
	return p
}

func (r *InfluxRecorder) write(p *write.Point) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.writeAPI.WritePoint(ctx, p); err != nil {
		r.log.Warn().Err(err).Msg("writing point failed")
	}
}

func (r *InfluxRecorder) WalletCreated(variant string) {
	r.write(r.point(variant, "created", ""))
}

func (r *InfluxRecorder) CreationRejected(variant, code string) {
	r.write(r.point(variant, "rejected", code))
}

func (r *InfluxRecorder) Close() {
	r.client.Close()
}
