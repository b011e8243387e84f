// Package metrics records operational counters — gate decisions and
// rotation outcomes — to InfluxDB. Writes are batched and asynchronous;
// a metrics outage never affects an auth operation. The recorder is
// optional; a disabled configuration yields the no-op implementation.
package metrics

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/inkboard/inkboard-auth/internal/infrastructure/config"
)

// Recorder records auth operation outcomes.
type Recorder interface {
	GateDecision(state string)
	RotationOutcome(outcome string)
	PromotionOutcome(outcome string)
	Close()
}

// Nop is a Recorder that discards everything. Used when metrics are disabled.
type Nop struct{}

func (Nop) GateDecision(_ string)     {}
func (Nop) RotationOutcome(_ string)  {}
func (Nop) PromotionOutcome(_ string) {}
func (Nop) Close()                    {}

// InfluxRecorder writes counters to InfluxDB using the non-blocking
// write API.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInflux creates a connected recorder from validated configuration.
func NewInflux(cfg config.InfluxDBConfig) *InfluxRecorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
}

// GateDecision counts one gate decision by terminal state.
func (r *InfluxRecorder) GateDecision(state string) {
	r.count("auth_gate", "state", state)
}

// RotationOutcome counts one rotation attempt by outcome
// (rotated, malformed, expired, revoked, storage).
func (r *InfluxRecorder) RotationOutcome(outcome string) {
	r.count("auth_rotation", "outcome", outcome)
}

// PromotionOutcome counts one promotion attempt by outcome
// (promoted, or the failing saga step).
func (r *InfluxRecorder) PromotionOutcome(outcome string) {
	r.count("auth_promotion", "outcome", outcome)
}

// Close flushes buffered points and releases the client.
func (r *InfluxRecorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}

func (r *InfluxRecorder) count(measurement, tagKey, tagValue string) {
	point := write.NewPoint(
		measurement,
		map[string]string{tagKey: tagValue},
		map[string]interface{}{"count": 1},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}
