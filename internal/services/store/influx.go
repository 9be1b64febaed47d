package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/auralink/plantlink/internal/model/entities"
	"github.com/auralink/plantlink/internal/model/messages"
)

// Measurement names. Profiles are last-value-wins: the freshest point per
// field is the current value.
const (
	measReading  = "sensor_reading"
	measAdvisory = "advisory"
	measProfile  = "device_profile"
)

// Profile field names accepted by SetProfileField.
const (
	FieldPlantName   = "plant_name"
	FieldNotifyEmail = "notify_email"
)

// Config for the InfluxDB-backed store.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Store is the system of record: readings, advisory history and device
// profiles, all kept in one bucket.
type Store struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
}

func New(cfg Config) (*Store, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Store{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close() { s.client.Close() }

// ---------------- readings ----------------

// SaveReading appends one sensor reading.
func (s *Store) SaveReading(ctx context.Context, r messages.SensorReading) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	point := influxdb2.NewPoint(measReading,
		map[string]string{"device_id": r.DeviceID},
		map[string]interface{}{
			"t_c":      r.TempC,
			"h_pct":    r.HumPct,
			"soil_pct": r.SoilPct,
		},
		ts)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write reading: %w", err)
	}
	return nil
}

// ReadingsSince returns all readings for deviceID with timestamp >= since,
// oldest first.
func (s *Store) ReadingsSince(ctx context.Context, deviceID string, since time.Time) ([]messages.SensorReading, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q and r.device_id == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])
`, s.bucket, since.UTC().Format(time.RFC3339), measReading, deviceID)
	return s.queryReadings(ctx, flux, deviceID)
}

// LastReadings returns the most recent n readings for deviceID in
// chronological order (queried newest-first, then reversed).
func (s *Store) LastReadings(ctx context.Context, deviceID string, n int) ([]messages.SensorReading, error) {
	if n <= 0 {
		return nil, nil
	}
	out, err := s.RecentReadings(ctx, deviceID, n)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// RecentReadings returns up to limit readings, newest first (history API).
func (s *Store) RecentReadings(ctx context.Context, deviceID string, limit int) ([]messages.SensorReading, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %q and r.device_id == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`, s.bucket, measReading, deviceID, limit)
	return s.queryReadings(ctx, flux, deviceID)
}

func (s *Store) queryReadings(ctx context.Context, flux, deviceID string) ([]messages.SensorReading, error) {
	res, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer res.Close()

	var out []messages.SensorReading
	for res.Next() {
		rec := res.Record()
		out = append(out, messages.SensorReading{
			DeviceID:  deviceID,
			Timestamp: rec.Time().UTC(),
			TempC:     asFloat(rec.ValueByKey("t_c")),
			HumPct:    asFloat(rec.ValueByKey("h_pct")),
			SoilPct:   asFloat(rec.ValueByKey("soil_pct")),
		})
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("iterate readings: %w", res.Err())
	}
	return out, nil
}

// ---------------- advisories ----------------

// SaveAdvisory appends one generated advisory, keyed by device and timestamp.
// The full payload is kept as a JSON blob next to the queryable fields.
func (s *Store) SaveAdvisory(ctx context.Context, deviceID string, p messages.AdvisoryPayload) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal advisory: %w", err)
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	point := influxdb2.NewPoint(measAdvisory,
		map[string]string{
			"device_id": deviceID,
			"priority":  string(p.Priority),
		},
		map[string]interface{}{
			"quote":     p.Quote,
			"water_now": p.Advice.WaterNow,
			"reason":    p.Advice.Reason,
			"payload":   string(blob),
		},
		ts)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write advisory: %w", err)
	}
	return nil
}

// LatestAdvisory returns the most recent advisory for deviceID; ok is false
// when the device has none yet.
func (s *Store) LatestAdvisory(ctx context.Context, deviceID string) (messages.AdvisoryPayload, bool, error) {
	list, err := s.RecentAdvisories(ctx, deviceID, 1)
	if err != nil {
		return messages.AdvisoryPayload{}, false, err
	}
	if len(list) == 0 {
		return messages.AdvisoryPayload{}, false, nil
	}
	return list[0], true, nil
}

// RecentAdvisories returns up to limit advisories, newest first.
func (s *Store) RecentAdvisories(ctx context.Context, deviceID string, limit int) ([]messages.AdvisoryPayload, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %q and r.device_id == %q and r._field == "payload")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`, s.bucket, measAdvisory, deviceID, limit)

	res, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query advisories: %w", err)
	}
	defer res.Close()

	var out []messages.AdvisoryPayload
	for res.Next() {
		blob := asString(res.Record().Value())
		if blob == "" {
			continue
		}
		var p messages.AdvisoryPayload
		if err := json.Unmarshal([]byte(blob), &p); err != nil {
			// skip rows written by incompatible versions
			continue
		}
		out = append(out, p)
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("iterate advisories: %w", res.Err())
	}
	return out, nil
}

// ---------------- device profiles ----------------

// Profile returns the current profile for deviceID; unknown devices resolve
// to a profile with empty fields, not an error.
func (s *Store) Profile(ctx context.Context, deviceID string) (entities.DeviceProfile, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %q and r.device_id == %q)
  |> last()
  |> pivot(rowKey: ["device_id"], columnKey: ["_field"], valueColumn: "_value")
`, s.bucket, measProfile, deviceID)

	p := entities.DeviceProfile{DeviceID: deviceID}
	res, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return p, fmt.Errorf("query profile: %w", err)
	}
	defer res.Close()

	for res.Next() {
		rec := res.Record()
		if v := asString(rec.ValueByKey(FieldPlantName)); v != "" {
			p.PlantName = v
		}
		if v := asString(rec.ValueByKey(FieldNotifyEmail)); v != "" {
			p.NotifyEmail = v
		}
	}
	if res.Err() != nil {
		return p, fmt.Errorf("iterate profile: %w", res.Err())
	}
	return p, nil
}

// SetProfileField upserts one profile field (FieldPlantName or
// FieldNotifyEmail). The device row is created implicitly on first write.
func (s *Store) SetProfileField(ctx context.Context, deviceID, field, value string) error {
	switch field {
	case FieldPlantName, FieldNotifyEmail:
	default:
		return fmt.Errorf("unknown profile field %q", field)
	}
	point := influxdb2.NewPoint(measProfile,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{field: strings.TrimSpace(value)},
		time.Now().UTC())
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// ---------------- helpers ----------------

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func reverse(rs []messages.SensorReading) {
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
}
