package influx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/config"
	"github.com/berfenger/speedwire2mqtt/internal/core/domain"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

var ErrNotConfigured = errors.New("influx: url, org and bucket must be set")

// Writer stores averaged samples in an InfluxDB v2 bucket.
type Writer struct {
	client   influxdb2.Client
	writeAPI influxapi.WriteAPIBlocking
}

func NewWriter(cfg config.InfluxConfig) (*Writer, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	timeout := uint(cfg.TimeoutMillis / 1000)
	if timeout == 0 {
		timeout = 5
	}
	options := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(timeout).
		SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)
	return &Writer{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

func (w *Writer) Ping(ctx context.Context) error {
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx: ping: %w", err)
	}
	if !ok {
		return errors.New("influx: ping: unreachable")
	}
	return nil
}

func (w *Writer) Write(ctx context.Context, samples []domain.MeasurementSample) error {
	if len(samples) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, SampleToPoint(s))
	}
	if err := w.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx: write %d points: %w", len(points), err)
	}
	return nil
}

func (w *Writer) Close() {
	w.client.Close()
}

// SampleToPoint maps a sample to a point of the device class measurement, one field per measurement name.
func SampleToPoint(sample domain.MeasurementSample) *write.Point {
	tags := map[string]string{
		"serial":    strconv.FormatUint(uint64(sample.Device.SerialNumber), 10),
		"susy_id":   strconv.FormatUint(uint64(sample.Device.SusyID), 10),
		"line":      sample.Line.String(),
		"direction": sample.Type.Direction.String(),
		"quantity":  sample.Type.Quantity.String(),
		"type":      sample.Type.Type.String(),
	}
	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}
	fields := map[string]any{
		sample.Name: sample.Value,
	}
	if sample.Text != "" {
		fields[sample.Name+"_text"] = sample.Text
	}
	ts := sample.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(string(sample.Device.DeviceClass), tags, fields, ts)
}
